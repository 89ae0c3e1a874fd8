package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/geoul/internal/bundle"
)

// Entry is one registered bundle. All fields except Dir and RegisteredAt
// come straight from the bundle manifest.
type Entry struct {
	RunID        string
	Dir          string
	StartedAt    uint64
	DetTier      uint32
	NumBackend   uint32
	TraceTier    string
	CommitPolicy uint32
	StartMadi    uint64
	EndMadi      uint64
	FrameCount   uint64
	ByteSize     uint64
	AuditHash    string
	ToolchainID  string
	EntryFile    string
	EntryHash    string
	RegisteredAt int64
}

// Register loads the manifest of a finished bundle directory and upserts
// it into the registry. Registering the same run id again refreshes the
// row, so moving a bundle and re-registering it updates the stored path.
func (c *Catalog) Register(ctx context.Context, dir string) (*Entry, error) {
	m, err := bundle.LoadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", dir, err)
	}
	return c.register(ctx, dir, m, time.Now().Unix())
}

func (c *Catalog) register(ctx context.Context, dir string, m *bundle.Manifest, now int64) (*Entry, error) {
	e := &Entry{
		RunID:        m.RunID,
		Dir:          dir,
		StartedAt:    m.StartedAt,
		DetTier:      m.DetTier,
		NumBackend:   m.NumBackend,
		TraceTier:    m.TraceTier,
		CommitPolicy: m.CommitPolicy,
		StartMadi:    m.StartMadi,
		EndMadi:      m.EndMadi,
		FrameCount:   m.FrameCount,
		ByteSize:     m.ByteSize,
		AuditHash:    m.AuditHash,
		ToolchainID:  m.ToolchainID,
		EntryFile:    m.EntryFile,
		EntryHash:    m.EntryHash,
		RegisteredAt: now,
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO bundles
		(run_id, dir, started_at, det_tier, num_backend, trace_tier, commit_policy,
		 start_madi, end_madi, frame_count, byte_size, audit_hash, toolchain_id,
		 entry_file, entry_hash, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			dir = excluded.dir,
			started_at = excluded.started_at,
			det_tier = excluded.det_tier,
			num_backend = excluded.num_backend,
			trace_tier = excluded.trace_tier,
			commit_policy = excluded.commit_policy,
			start_madi = excluded.start_madi,
			end_madi = excluded.end_madi,
			frame_count = excluded.frame_count,
			byte_size = excluded.byte_size,
			audit_hash = excluded.audit_hash,
			toolchain_id = excluded.toolchain_id,
			entry_file = excluded.entry_file,
			entry_hash = excluded.entry_hash,
			registered_at = excluded.registered_at
	`,
		e.RunID, e.Dir, e.StartedAt, e.DetTier, e.NumBackend, e.TraceTier,
		e.CommitPolicy, e.StartMadi, e.EndMadi, e.FrameCount, e.ByteSize,
		e.AuditHash, e.ToolchainID, e.EntryFile, e.EntryHash, e.RegisteredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("register bundle: %w", err)
	}
	return e, nil
}

// List returns all registered bundles with deterministic ordering:
// newest recording first, run id as the tiebreaker.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT run_id, dir, started_at, det_tier, num_backend, trace_tier,
		       commit_policy, start_madi, end_madi, frame_count, byte_size,
		       audit_hash, toolchain_id, entry_file, entry_hash, registered_at
		FROM bundles
		ORDER BY started_at DESC, run_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query bundles: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bundles: %w", err)
	}
	return entries, nil
}

// ByRunID looks up a single registered bundle. Returns (nil, nil) when
// the run id is unknown.
func (c *Catalog) ByRunID(ctx context.Context, runID string) (*Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT run_id, dir, started_at, det_tier, num_backend, trace_tier,
		       commit_policy, start_madi, end_madi, frame_count, byte_size,
		       audit_hash, toolchain_id, entry_file, entry_hash, registered_at
		FROM bundles
		WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query bundle %s: %w", runID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query bundle %s: %w", runID, err)
		}
		return nil, nil
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Remove deletes a registration. Removing an unknown run id is not an
// error; returns whether a row was deleted.
func (c *Catalog) Remove(ctx context.Context, runID string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM bundles WHERE run_id = ?`, runID)
	if err != nil {
		return false, fmt.Errorf("remove bundle %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove bundle %s: %w", runID, err)
	}
	return n > 0, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	err := rows.Scan(
		&e.RunID, &e.Dir, &e.StartedAt, &e.DetTier, &e.NumBackend,
		&e.TraceTier, &e.CommitPolicy, &e.StartMadi, &e.EndMadi,
		&e.FrameCount, &e.ByteSize, &e.AuditHash, &e.ToolchainID,
		&e.EntryFile, &e.EntryHash, &e.RegisteredAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("scan bundle row: %w", err)
	}
	return e, nil
}
