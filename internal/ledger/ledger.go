// Package ledger records pipeline runs in a local sqlite database.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "modernc.org/sqlite"

	"tier0/internal/manifest"
	"tier0/internal/models"
)

// ErrRunNotFound is returned when a run id is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ledger: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("ledger: CBOR decoder initialization failed: " + err.Error())
	}
}

// Run is one row of run history.
type Run struct {
	RunID         string
	GeneratedAt   time.Time
	OverallDigest string
	Signed        bool
	Accepted      int
	Rejected      int
}

// Ledger is an open run ledger.
type Ledger struct {
	conn *sql.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	l := &Ledger{conn: conn}
	if err := l.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

func (l *Ledger) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  generated_at TEXT NOT NULL,
  overall_digest TEXT NOT NULL,
  signed INTEGER NOT NULL,
  accepted INTEGER NOT NULL,
  rejected INTEGER NOT NULL,
  manifest_cbor BLOB NOT NULL,
  recorded_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at);

CREATE TABLE IF NOT EXISTS verdicts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  entity_key TEXT NOT NULL,
  reasons TEXT NOT NULL,
  FOREIGN KEY(run_id) REFERENCES runs(run_id)
);
CREATE INDEX IF NOT EXISTS idx_verdicts_run ON verdicts(run_id);
`

	_, err := l.conn.Exec(schema)

	return err
}

// Record stores a sealed manifest with the run's counts and rejected
// verdicts in one transaction.
func (l *Ledger) Record(ctx context.Context, m *manifest.Manifest, counts models.Counts, rejected []models.Verdict) error {
	blob, err := encMode.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (run_id, generated_at, overall_digest, signed, accepted, rejected, manifest_cbor)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.GeneratedAt.UTC().Format(time.RFC3339), m.OverallDigest, m.Signed(),
		counts.FirmsAccepted+counts.OfficesAccepted, counts.FirmsRejected+counts.OfficesRejected, blob,
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO verdicts (run_id, kind, entity_key, reasons) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range rejected {
		reasons, _ := json.Marshal(v.Reasons)
		if _, err := stmt.ExecContext(ctx, m.RunID, string(v.Kind), v.Key, string(reasons)); err != nil {
			return fmt.Errorf("inserting verdict: %w", err)
		}
	}

	return tx.Commit()
}

// Runs lists the most recent runs, newest first. A limit below 1 lists all.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = -1
	}

	rows, err := l.conn.QueryContext(ctx, `
SELECT run_id, generated_at, overall_digest, signed, accepted, rejected
FROM runs
ORDER BY generated_at DESC, recorded_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run

	for rows.Next() {
		var (
			r         Run
			generated string
		)

		if err := rows.Scan(&r.RunID, &generated, &r.OverallDigest, &r.Signed, &r.Accepted, &r.Rejected); err != nil {
			return nil, err
		}

		r.GeneratedAt, err = time.Parse(time.RFC3339, generated)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", r.RunID, err)
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

// Manifest decodes the manifest stored for runID.
func (l *Ledger) Manifest(ctx context.Context, runID string) (*manifest.Manifest, error) {
	var blob []byte

	err := l.conn.QueryRowContext(ctx, `SELECT manifest_cbor FROM runs WHERE run_id = ?`, runID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if err != nil {
		return nil, err
	}

	var m manifest.Manifest
	if err := decMode.Unmarshal(blob, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	return &m, nil
}

// Rejections returns the rejected verdicts recorded for runID.
func (l *Ledger) Rejections(ctx context.Context, runID string) ([]models.Verdict, error) {
	rows, err := l.conn.QueryContext(ctx, `
SELECT kind, entity_key, reasons FROM verdicts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Verdict

	for rows.Next() {
		var (
			v       models.Verdict
			kind    string
			reasons string
		)

		if err := rows.Scan(&kind, &v.Key, &reasons); err != nil {
			return nil, err
		}

		v.Kind = models.EntityKind(kind)
		if err := json.Unmarshal([]byte(reasons), &v.Reasons); err != nil {
			return nil, fmt.Errorf("verdict %s: %w", v.Key, err)
		}

		out = append(out, v)
	}

	return out, rows.Err()
}
