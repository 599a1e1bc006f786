package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/quernlabs/quern"
	"github.com/quernlabs/quern/pkg/diff"
)

type diffOptions struct {
	depth          int
	format         string
	showSimilarity bool
	showUnchanged  bool
}

// fileReport is the per-file diff outcome.
type fileReport struct {
	Path    string
	Status  string // added, deleted, changed, unchanged
	Changes []diff.Change
}

func runDiffCommand(args []string) {
	flags := flag.NewFlagSet("diff", flag.ExitOnError)
	configPath := flags.String("config", "", "path to YAML config file")
	depth := flags.Int("depth", 0, "directory recursion depth limit (0 = unlimited)")
	format := flags.String("format", "plain", "output format: plain | json | detailed")
	showSimilarity := flags.Bool("show-similarity", false, "include similarity scores")
	showUnchanged := flags.Bool("show-unchanged", false, "include unchanged files")
	flags.Parse(args)
	if flags.NArg() < 2 {
		fmt.Println("Usage: quern diff [flags] <old-path> <new-path>")
		os.Exit(1)
	}
	switch *format {
	case "plain", "json", "detailed":
	default:
		fatal(fmt.Errorf("unknown format %q", *format))
	}

	conf, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}

	// Diff runs against a throwaway in-memory store: both sides' chunks
	// are needed for similarity scoring but nothing should persist.
	q, err := quern.New(quern.Config{
		Backend:   "memory",
		Hasher:    conf.Hasher,
		BlockSize: conf.BlockSize,
	})
	if err != nil {
		fatal(err)
	}
	defer q.Close()

	opts := diffOptions{
		depth:          *depth,
		format:         *format,
		showSimilarity: *showSimilarity,
		showUnchanged:  *showUnchanged,
	}

	start := time.Now()
	reports, total, err := diffPaths(context.Background(), q, flags.Arg(0), flags.Arg(1), opts.depth)
	if err != nil {
		fatal(err)
	}
	if err := renderReports(os.Stdout, reports, total, time.Since(start), opts); err != nil {
		fatal(err)
	}
}

// collectFiles maps the relative path of every regular file under root,
// honoring the recursion depth limit (0 means unlimited). A root that
// is itself a file maps its base name.
func collectFiles(root string, depth int) (map[string]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	files := make(map[string]string)
	if !info.IsDir() {
		files[filepath.Base(root)] = root
		return files, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if depth > 0 && rel != "." && strings.Count(rel, string(filepath.Separator))+1 >= depth {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		files[filepath.ToSlash(rel)] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

// diffPaths compares two files or directory trees and returns per-file
// reports sorted by path, plus the total change count.
func diffPaths(ctx context.Context, q *quern.Quern, oldPath, newPath string, depth int) ([]fileReport, int, error) {
	oldFiles, err := collectFiles(oldPath, depth)
	if err != nil {
		return nil, 0, err
	}
	newFiles, err := collectFiles(newPath, depth)
	if err != nil {
		return nil, 0, err
	}

	paths := make(map[string]struct{}, len(oldFiles)+len(newFiles))
	for p := range oldFiles {
		paths[p] = struct{}{}
	}
	for p := range newFiles {
		paths[p] = struct{}{}
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var reports []fileReport
	total := 0
	for _, p := range sorted {
		oldAbs, inOld := oldFiles[p]
		newAbs, inNew := newFiles[p]

		switch {
		case inOld && !inNew:
			reports = append(reports, fileReport{Path: p, Status: "deleted"})
			total++
		case !inOld && inNew:
			reports = append(reports, fileReport{Path: p, Status: "added"})
			total++
		default:
			changes, err := diffFile(ctx, q, oldAbs, newAbs)
			if err != nil {
				return nil, 0, err
			}
			status := "unchanged"
			if len(changes) > 0 {
				status = "changed"
			}
			reports = append(reports, fileReport{Path: p, Status: status, Changes: changes})
			total += len(changes)
		}
	}
	return reports, total, nil
}

func diffFile(ctx context.Context, q *quern.Quern, oldAbs, newAbs string) ([]diff.Change, error) {
	oldData, err := os.ReadFile(oldAbs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", oldAbs, err)
	}
	newData, err := os.ReadFile(newAbs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", newAbs, err)
	}

	oldTree, err := q.SnapshotBytes(ctx, oldData)
	if err != nil {
		return nil, err
	}
	newTree, err := q.SnapshotBytes(ctx, newData)
	if err != nil {
		return nil, err
	}
	return q.Compare(ctx, oldTree, newTree, diff.SourceUserEdit)
}

type jsonChange struct {
	Type       string    `json:"type"`
	Index      *int      `json:"index,omitempty"`
	OldIndex   *int      `json:"old_index,omitempty"`
	NewIndex   *int      `json:"new_index,omitempty"`
	Hash       string    `json:"hash,omitempty"`
	OldHash    string    `json:"old_hash,omitempty"`
	NewHash    string    `json:"new_hash,omitempty"`
	Similarity *float32  `json:"similarity,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type jsonFileReport struct {
	Path    string       `json:"path"`
	Status  string       `json:"status"`
	Changes []jsonChange `json:"changes,omitempty"`
}

type jsonReport struct {
	Files        []jsonFileReport `json:"files"`
	TotalChanges int              `json:"total_changes"`
	DurationMS   int64            `json:"duration_ms"`
}

func toJSONChange(c diff.Change, showSimilarity bool) jsonChange {
	out := jsonChange{Type: string(c.Type), Timestamp: c.Meta.Timestamp}
	switch c.Type {
	case diff.Moved:
		oldIdx, newIdx := c.OldIndex, c.NewIndex
		out.OldIndex = &oldIdx
		out.NewIndex = &newIdx
		out.Hash = c.Hash.String()
	case diff.Modified:
		idx := c.Index
		out.Index = &idx
		out.OldHash = c.OldHash.String()
		out.NewHash = c.NewHash.String()
		if showSimilarity {
			sim := c.Similarity
			out.Similarity = &sim
		}
	default:
		idx := c.Index
		out.Index = &idx
		out.Hash = c.Hash.String()
	}
	return out
}

// renderReports writes the reports in the selected format, ending with
// a count/duration summary line (part of the JSON object in json mode).
func renderReports(w io.Writer, reports []fileReport, total int, elapsed time.Duration, opts diffOptions) error {
	if opts.format == "json" {
		out := jsonReport{TotalChanges: total, DurationMS: elapsed.Milliseconds()}
		for _, r := range reports {
			if r.Status == "unchanged" && !opts.showUnchanged {
				continue
			}
			jr := jsonFileReport{Path: r.Path, Status: r.Status}
			for _, c := range r.Changes {
				jr.Changes = append(jr.Changes, toJSONChange(c, opts.showSimilarity))
			}
			out.Files = append(out.Files, jr)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, r := range reports {
		if r.Status == "unchanged" && !opts.showUnchanged {
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", r.Path, r.Status)
		for _, c := range r.Changes {
			renderChange(w, c, opts)
		}
	}
	fmt.Fprintf(w, "%d change(s) in %s\n", total, elapsed.Round(time.Millisecond))
	return nil
}

func renderChange(w io.Writer, c diff.Change, opts diffOptions) {
	switch c.Type {
	case diff.Moved:
		fmt.Fprintf(w, "  moved     block %d -> %d  %s\n", c.OldIndex, c.NewIndex, c.Hash.Short())
	case diff.Modified:
		if opts.showSimilarity {
			fmt.Fprintf(w, "  modified  block %d  %s -> %s  (similarity %.2f)\n",
				c.Index, c.OldHash.Short(), c.NewHash.Short(), c.Similarity)
		} else {
			fmt.Fprintf(w, "  modified  block %d  %s -> %s\n", c.Index, c.OldHash.Short(), c.NewHash.Short())
		}
	case diff.Added:
		fmt.Fprintf(w, "  added     block %d  %s\n", c.Index, c.Hash.Short())
	case diff.Deleted:
		fmt.Fprintf(w, "  deleted   block %d  %s\n", c.Index, c.Hash.Short())
	}
	if opts.format == "detailed" {
		fmt.Fprintf(w, "            at %s, source %s\n",
			c.Meta.Timestamp.Format(time.RFC3339), c.Meta.Source)
	}
}
