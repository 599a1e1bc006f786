// Package blockstore persists hierarchical document blocks in SQLite.
// Blocks are semantic units (headings, paragraphs) with a parent/child
// hierarchy and an application-assigned position, distinct from the
// content-addressing chunks the storage layer deals in.
package blockstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/quernlabs/quern/pkg/hashing"
)

// openDB is swappable for tests.
var openDB = sql.Open

// ErrBlockNotFound is returned when a block id resolves to nothing.
var ErrBlockNotFound = errors.New("blockstore: block not found")

// timeLayout is the storage-boundary timestamp format.
const timeLayout = time.RFC3339Nano

// Block is one persisted document unit. ID is stable across edits;
// Content and UpdatedAt change on update.
type Block struct {
	ID            string        `json:"id"`
	EntityID      string        `json:"entity_id"`
	ParentBlockID *string       `json:"parent_block_id,omitempty"`
	Content       []byte        `json:"content"`
	BlockType     string        `json:"block_type"`
	Position      int32         `json:"position"`
	ContentHash   *hashing.Hash `json:"content_hash,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Config holds block store configuration.
type Config struct {
	// Path is the directory holding the database file.
	Path string
	// Logger is optional.
	Logger *logrus.Logger
	// Clock supplies timestamps; defaults to time.Now.
	Clock func() time.Time
}

// Store is the hierarchical block store backed by SQLite.
type Store struct {
	db    *sql.DB
	log   *logrus.Logger
	clock func() time.Time
}

// New opens the store, creating the data directory and running the
// schema migration.
func New(config Config) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("blockstore: no data path configured")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	if err := os.MkdirAll(config.Path, 0o700); err != nil {
		return nil, fmt.Errorf("blockstore: creating data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(config.Path, "blocks.db"))
	if err != nil {
		return nil, fmt.Errorf("blockstore: opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("blockstore: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, log: config.Logger, clock: config.Clock}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("blockstore: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS blocks (
			id              TEXT    PRIMARY KEY,
			entity_id       TEXT    NOT NULL,
			block_index     INTEGER NOT NULL,
			block_type      TEXT    NOT NULL,
			content         BLOB    NOT NULL,
			content_hash    TEXT,
			parent_block_id TEXT,
			created_at      TEXT    NOT NULL,
			updated_at      TEXT    NOT NULL,
			FOREIGN KEY (parent_block_id) REFERENCES blocks(id)
		);

		CREATE INDEX IF NOT EXISTS idx_blocks_entity ON blocks(entity_id, block_index);
		CREATE INDEX IF NOT EXISTS idx_blocks_parent ON blocks(parent_block_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// StoreBlock inserts or replaces a block by id. A missing ID gets a
// fresh UUID. Upserts are idempotent: re-storing the same block leaves
// one row and preserves created_at.
func (s *Store) StoreBlock(ctx context.Context, block *Block) error {
	if block == nil {
		return fmt.Errorf("blockstore: nil block")
	}
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	now := s.clock().UTC()
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}
	block.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks
			(id, entity_id, block_index, block_type, content, content_hash, parent_block_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity_id       = excluded.entity_id,
			block_index     = excluded.block_index,
			block_type      = excluded.block_type,
			content         = excluded.content,
			content_hash    = excluded.content_hash,
			parent_block_id = excluded.parent_block_id,
			updated_at      = excluded.updated_at`,
		block.ID, block.EntityID, block.Position, block.BlockType, block.Content,
		hashToText(block.ContentHash), block.ParentBlockID,
		block.CreatedAt.Format(timeLayout), block.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("blockstore: storing block %s: %w", block.ID, err)
	}
	return nil
}

// GetBlock returns the block with the given id.
func (s *Store) GetBlock(ctx context.Context, id string) (*Block, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	block, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blockstore: block %s: %w", id, ErrBlockNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("blockstore: reading block %s: %w", id, err)
	}
	return block, nil
}

// GetBlocks returns every block of an entity ordered by position.
func (s *Store) GetBlocks(ctx context.Context, entityID string) ([]*Block, error) {
	return s.queryBlocks(ctx,
		selectColumns+` WHERE entity_id = ? ORDER BY block_index, id`, entityID)
}

// GetChildBlocks returns the direct children of a block ordered by
// position.
func (s *Store) GetChildBlocks(ctx context.Context, parentID string) ([]*Block, error) {
	return s.queryBlocks(ctx,
		selectColumns+` WHERE parent_block_id = ? ORDER BY block_index, id`, parentID)
}

// UpdateBlock rewrites a block's content, type, position and hash. The
// id and created_at stay stable; updated_at advances.
func (s *Store) UpdateBlock(ctx context.Context, block *Block) error {
	if block == nil || block.ID == "" {
		return fmt.Errorf("blockstore: update requires a block id")
	}
	block.UpdatedAt = s.clock().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE blocks SET
			block_index  = ?,
			block_type   = ?,
			content      = ?,
			content_hash = ?,
			updated_at   = ?
		WHERE id = ?`,
		block.Position, block.BlockType, block.Content,
		hashToText(block.ContentHash), block.UpdatedAt.Format(timeLayout), block.ID,
	)
	if err != nil {
		return fmt.Errorf("blockstore: updating block %s: %w", block.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("blockstore: updating block %s: %w", block.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("blockstore: block %s: %w", block.ID, ErrBlockNotFound)
	}
	return nil
}

// DeleteBlock removes a block and, when recursive, all of its
// descendants. It returns the number of rows removed.
func (s *Store) DeleteBlock(ctx context.Context, id string, recursive bool) (int, error) {
	var res sql.Result
	var err error
	if recursive {
		res, err = s.db.ExecContext(ctx, `
			WITH RECURSIVE subtree(id) AS (
				SELECT id FROM blocks WHERE id = ?
				UNION ALL
				SELECT b.id FROM blocks b JOIN subtree st ON b.parent_block_id = st.id
			)
			DELETE FROM blocks WHERE id IN (SELECT id FROM subtree)`, id)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id)
	}
	if err != nil {
		return 0, fmt.Errorf("blockstore: deleting block %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("blockstore: deleting block %s: %w", id, err)
	}
	return int(n), nil
}

// DeleteBlocks removes every block of an entity and returns the count.
func (s *Store) DeleteBlocks(ctx context.Context, entityID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE entity_id = ?`, entityID)
	if err != nil {
		return 0, fmt.Errorf("blockstore: deleting blocks of %s: %w", entityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("blockstore: deleting blocks of %s: %w", entityID, err)
	}
	return int(n), nil
}

// GetContentHash returns the stored content hash of a block, or nil
// when the block carries none.
func (s *Store) GetContentHash(ctx context.Context, blockID string) (*hashing.Hash, error) {
	var text sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM blocks WHERE id = ?`, blockID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blockstore: block %s: %w", blockID, ErrBlockNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("blockstore: reading hash of block %s: %w", blockID, err)
	}
	return hashFromText(text)
}

const selectColumns = `
	SELECT id, entity_id, block_index, block_type, content, content_hash,
	       parent_block_id, created_at, updated_at
	FROM blocks`

func (s *Store) queryBlocks(ctx context.Context, query string, args ...any) ([]*Block, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("blockstore: querying blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*Block
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("blockstore: scanning block row: %w", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("blockstore: iterating block rows: %w", err)
	}
	return blocks, nil
}

type rowLike interface {
	Scan(dest ...any) error
}

func scanBlock(row rowLike) (*Block, error) {
	var (
		block     Block
		hashText  sql.NullString
		parent    sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&block.ID, &block.EntityID, &block.Position, &block.BlockType,
		&block.Content, &hashText, &parent, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if parent.Valid {
		block.ParentBlockID = &parent.String
	}
	if block.ContentHash, err = hashFromText(hashText); err != nil {
		return nil, err
	}
	if block.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if block.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &block, nil
}

func hashToText(h *hashing.Hash) any {
	if h == nil {
		return nil
	}
	return h.String()
}

func hashFromText(text sql.NullString) (*hashing.Hash, error) {
	if !text.Valid || text.String == "" {
		return nil, nil
	}
	h, err := hashing.FromHex(text.String)
	if err != nil {
		return nil, fmt.Errorf("parsing content_hash: %w", err)
	}
	return &h, nil
}
