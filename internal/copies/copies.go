// Package copies implements the Copies directory (§3 "Copies",
// §5 "Copies directory"): the per-wallet store of candidate ledger bodies
// received from peers, which Patch later merges against the local wallet.
package copies

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zold-go/zold/internal/domain"
)

// Copy is one candidate ledger body for a wallet, tagged with the score
// of the remote that delivered it.
type Copy struct {
	Name   string
	Body   []byte
	Score  int
	Source string // "host:port", empty for a locally-originated copy
}

// Store manages the on-disk Copies directory for one wallet Id. New
// copies are written under content-addressed names and never overwritten
// (§5 "Copies directory"); a sqlite sidecar in the same directory tracks
// each name's score and source so repeated pushes from the same content
// can accumulate rank without re-reading every body from disk.
type Store struct {
	Dir   string
	mu    sync.Mutex
	index *scoreIndex
}

// Open returns a Store rooted at <root>/<id>, creating the directory and
// its sidecar index if necessary.
func Open(root string, id domain.Id) (*Store, error) {
	dir := filepath.Join(root, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create copies dir %s: %w", dir, err)
	}
	idx, err := openScoreIndex(filepath.Join(dir, "scores"))
	if err != nil {
		return nil, err
	}
	return &Store{Dir: dir, index: idx}, nil
}

// Close releases the sidecar index's database handle.
func (s *Store) Close() error {
	return s.index.close()
}

// contentName derives the content-addressed file name for a body: dedup
// by content hash means two pushes of an identical ledger collapse to
// one file on disk, with their scores accumulated in the sidecar index.
func contentName(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Put stores body (if not already present) and records score against it
// from source, accumulating with any previously recorded score from a
// distinct source. Put is idempotent: storing the same body twice from
// the same source does not double-count.
func (s *Store) Put(body []byte, score int, source string) (Copy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := contentName(body)
	path := filepath.Join(s.Dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, body, 0o444); err != nil {
			return Copy{}, fmt.Errorf("write copy %s: %w", path, err)
		}
	} else if err != nil {
		return Copy{}, fmt.Errorf("stat copy %s: %w", path, err)
	}

	total, err := s.index.accumulate(name, score, source)
	if err != nil {
		return Copy{}, err
	}
	return Copy{Name: name, Body: body, Score: total, Source: source}, nil
}

// All returns every copy currently stored for this wallet, sorted by
// descending score (Patch's expected baseline-selection order, §4.2
// step 1).
func (s *Store) All() ([]Copy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("list copies %s: %w", s.Dir, err)
	}
	out := make([]Copy, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == "scores" {
			continue
		}
		body, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read copy %s: %w", e.Name(), err)
		}
		score, err := s.index.total(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Copy{Name: e.Name(), Body: body, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// Count returns the number of distinct copy bodies stored.
func (s *Store) Count() (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return 0, fmt.Errorf("list copies %s: %w", s.Dir, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && e.Name() != "scores" {
			n++
		}
	}
	return n, nil
}

// Clean removes every stored copy body and resets the score index. Used
// by the `clean` CLI command's equivalent once a wallet has been fully
// merged and the candidates are no longer needed.
func (s *Store) Clean() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return fmt.Errorf("list copies %s: %w", s.Dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == "scores" {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, e.Name())); err != nil {
			return fmt.Errorf("remove copy %s: %w", e.Name(), err)
		}
	}
	return s.index.reset()
}
