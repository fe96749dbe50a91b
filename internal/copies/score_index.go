package copies

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// scoreIndex is the sqlite sidecar tracking, per copy name, the
// accumulated score contributed by each distinct source (§3 "Copies":
// "scores from distinct sources accumulate to rank the copy"). This
// metadata lives outside the spec-mandated wallet/remotes/farm text
// formats, so it is free to use a real embedded database rather than a
// hand-rolled line format.
type scoreIndex struct {
	db *sql.DB
}

func openScoreIndex(path string) (*scoreIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open score index %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS copy_scores (
			name   TEXT NOT NULL,
			source TEXT NOT NULL,
			score  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (name, source)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate score index: %w", err)
	}
	return &scoreIndex{db: db}, nil
}

func (s *scoreIndex) close() error {
	return s.db.Close()
}

// accumulate records score for (name, source), overwriting any prior
// value from that same source (a source rescoring a copy replaces its
// old contribution rather than stacking), then returns the new total
// across all sources.
func (s *scoreIndex) accumulate(name string, score int, source string) (int, error) {
	_, err := s.db.Exec(`
		INSERT INTO copy_scores (name, source, score)
		VALUES (?, ?, ?)
		ON CONFLICT(name, source) DO UPDATE SET score = excluded.score
	`, name, source, score)
	if err != nil {
		return 0, fmt.Errorf("accumulate score for %s: %w", name, err)
	}
	return s.total(name)
}

// total sums the recorded score for name across all sources.
func (s *scoreIndex) total(name string) (int, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(score) FROM copy_scores WHERE name = ?`, name).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum score for %s: %w", name, err)
	}
	return int(total.Int64), nil
}

func (s *scoreIndex) reset() error {
	if _, err := s.db.Exec(`DELETE FROM copy_scores`); err != nil {
		return fmt.Errorf("reset score index: %w", err)
	}
	return nil
}
