package terrain

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RX12/RF-LOS-CH/model"
)

// StoredHeight is one persisted height sample.
type StoredHeight struct {
	Pos       model.PlanarPoint
	HeightM   float64
	FetchedAt time.Time
}

// Store persists height samples in SQLite so a restarted engine can
// rebuild its cache without re-fetching. Positions are rounded to
// centimetres for the primary key; two samples closer than that are
// the same ground.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS terrain_heights (
	easting    REAL    NOT NULL,
	northing   REAL    NOT NULL,
	height_m   REAL    NOT NULL,
	fetched_at INTEGER NOT NULL,
	PRIMARY KEY (easting, northing)
);
`

// OpenStore opens (and if needed creates) the store at path. Use
// ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open terrain store: %w", err)
	}
	if path == ":memory:" {
		// The pool must stay on one connection or each new conn gets
		// its own empty in-memory database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	// WAL keeps concurrent reads cheap while the engine writes
	// freshly fetched samples.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create terrain schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping terrain store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts one sample, keyed by its centimetre-rounded position.
func (s *Store) Save(ctx context.Context, p model.PlanarPoint, heightM float64, fetchedAt time.Time) error {
	const query = `
		INSERT INTO terrain_heights (easting, northing, height_m, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (easting, northing) DO UPDATE SET
			height_m = excluded.height_m,
			fetched_at = excluded.fetched_at
	`
	_, err := s.db.ExecContext(ctx, query, roundCm(p.E), roundCm(p.N), heightM, fetchedAt.Unix())
	if err != nil {
		return fmt.Errorf("save terrain height: %w", err)
	}
	return nil
}

// Load returns all samples fetched after the cutoff, oldest first.
// A zero cutoff loads everything.
func (s *Store) Load(ctx context.Context, cutoff time.Time) ([]StoredHeight, error) {
	const query = `
		SELECT easting, northing, height_m, fetched_at
		FROM terrain_heights
		WHERE fetched_at >= ?
		ORDER BY fetched_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("load terrain heights: %w", err)
	}
	defer rows.Close()

	var out []StoredHeight
	for rows.Next() {
		var sh StoredHeight
		var fetchedUnix int64
		if err := rows.Scan(&sh.Pos.E, &sh.Pos.N, &sh.HeightM, &fetchedUnix); err != nil {
			return nil, fmt.Errorf("scan terrain height: %w", err)
		}
		sh.FetchedAt = time.Unix(fetchedUnix, 0)
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate terrain heights: %w", err)
	}
	return out, nil
}

// Prune deletes samples fetched before the cutoff and reports how many
// rows went away.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM terrain_heights WHERE fetched_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune terrain heights: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned heights: %w", err)
	}
	return n, nil
}

// Count returns the number of persisted samples.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM terrain_heights`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count terrain heights: %w", err)
	}
	return n, nil
}

// roundCm snaps a coordinate to the centimetre grid used as the
// storage key.
func roundCm(v float64) float64 {
	return math.Round(v*100) / 100
}
