package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/quernlabs/quern"
	"github.com/quernlabs/quern/pkg/hashing"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "store":
		runStore(os.Args[2:])
	case "retrieve":
		runRetrieve(os.Args[2:])
	case "diff":
		runDiffCommand(os.Args[2:])
	case "info":
		runInfo(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: quern <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  store <file>")
	fmt.Println("  retrieve <root-hash> <output-file>")
	fmt.Println("  diff <old-path> <new-path>")
	fmt.Println("  info")
}

// fileConfig mirrors the YAML configuration file.
type fileConfig struct {
	DataDir     string `yaml:"data_dir"`
	Backend     string `yaml:"backend"`
	Hasher      string `yaml:"hasher"`
	BlockSize   string `yaml:"block_size"`
	Compression bool   `yaml:"compression"`
	MinFreeGB   uint   `yaml:"min_free_gb"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Backend:   "badger",
		Hasher:    "blake3",
		BlockSize: "medium",
	}
}

func loadConfig(path string) (fileConfig, error) {
	conf := defaultFileConfig()
	if path == "" {
		return conf, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return conf, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return conf, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return conf, nil
}

func (c fileConfig) dataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		fatal(err)
	}
	dir := filepath.Join(home, ".quern", "data")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fatal(err)
	}
	return dir
}

func openEngine(conf fileConfig) *quern.Quern {
	q, err := quern.New(quern.Config{
		Paths:         []string{conf.dataDir()},
		Backend:       conf.Backend,
		Hasher:        conf.Hasher,
		BlockSize:     conf.BlockSize,
		Compression:   conf.Compression,
		MinimumFreeGB: conf.MinFreeGB,
	})
	if err != nil {
		fatal(err)
	}
	return q
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runStore(args []string) {
	flags := flag.NewFlagSet("store", flag.ExitOnError)
	configPath := flags.String("config", "", "path to YAML config file")
	flags.Parse(args)
	if flags.NArg() < 1 {
		fmt.Println("Usage: quern store <file>")
		os.Exit(1)
	}

	conf, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	q := openEngine(conf)
	defer q.Close()

	f, err := os.Open(flags.Arg(0))
	if err != nil {
		fatal(err)
	}
	defer f.Close()

	start := time.Now()
	tree, err := q.Snapshot(context.Background(), f)
	if err != nil {
		fatal(err)
	}
	if err := saveTree(conf.dataDir(), tree); err != nil {
		fatal(err)
	}

	fmt.Printf("Stored %d blocks in %s. Root: %s\n",
		tree.BlockCount, time.Since(start).Round(time.Millisecond), tree.RootHash)
}

func runRetrieve(args []string) {
	flags := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := flags.String("config", "", "path to YAML config file")
	flags.Parse(args)
	if flags.NArg() < 2 {
		fmt.Println("Usage: quern retrieve <root-hash> <output-file>")
		os.Exit(1)
	}

	conf, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	q := openEngine(conf)
	defer q.Close()

	root, err := hashing.FromHex(flags.Arg(0))
	if err != nil {
		fatal(fmt.Errorf("invalid root hash: %w", err))
	}

	tree, err := loadTree(conf.dataDir(), root)
	if err != nil {
		fatal(err)
	}
	content, err := q.Restore(context.Background(), tree)
	if err != nil {
		fatal(err)
	}
	if err := os.WriteFile(flags.Arg(1), content, 0o644); err != nil {
		fatal(err)
	}
	fmt.Printf("Retrieved %d bytes.\n", len(content))
}

func runInfo(args []string) {
	flags := flag.NewFlagSet("info", flag.ExitOnError)
	configPath := flags.String("config", "", "path to YAML config file")
	flags.Parse(args)

	conf, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	q := openEngine(conf)
	defer q.Close()

	count, err := q.Storage().EntryCount(context.Background())
	if err != nil {
		fatal(err)
	}
	fmt.Println("Store statistics:")
	fmt.Printf("  Backend:    %s\n", conf.Backend)
	fmt.Printf("  Hasher:     %s\n", q.Hasher().Algorithm())
	fmt.Printf("  Block size: %s (%d bytes)\n", q.BlockSize(), q.BlockSize().TargetBytes())
	fmt.Printf("  Chunks:     %d\n", count)
}
