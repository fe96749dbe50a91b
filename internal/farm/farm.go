// Package farm implements the Score engine (§4.3 "Score engine (Farm)"):
// a pool of concurrent proof-of-work workers that extend the node's best
// known score, backed by an append-only history file.
package farm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/zold-go/zold/internal/atomicfile"
	"github.com/zold-go/zold/internal/metrics"
	"github.com/zold-go/zold/internal/score"
)

// Farm runs Threads worker goroutines, each independently searching for
// nonces that extend the best candidate score for Invoice. Workers
// coordinate through a single mutex-guarded ordered list of scores
// (§5 "Best-score structure").
type Farm struct {
	Host     string
	Port     int
	Invoice  string
	Strength int
	History  string // path to the farm history file, or "" to disable persistence

	logger *log.Logger

	mu      sync.Mutex
	best    []score.Score // sorted by descending Value, deduplicated by canonical String form
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New constructs a Farm. logger defaults to log.Default() if nil.
func New(host string, port int, invoice string, strength int, history string, logger *log.Logger) *Farm {
	if logger == nil {
		logger = log.Default()
	}
	return &Farm{
		Host:     host,
		Port:     port,
		Invoice:  invoice,
		Strength: strength,
		History:  history,
		logger:   logger,
	}
}

// Start launches `threads` worker goroutines, each continuously
// extending the best known score (§4.3 "start"). Threads of 0 disables
// mining entirely while leaving history load/replay and best() intact.
func (f *Farm) Start(threads int) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("farm already running")
	}
	f.running = true
	f.stop = make(chan struct{})
	f.mu.Unlock()

	if err := f.loadHistory(); err != nil {
		return err
	}

	for i := 0; i < threads; i++ {
		f.wg.Add(1)
		go f.worker(uint64(i), uint64(max(threads, 1)))
	}
	return nil
}

// Stop cancels every worker and waits for them to exit (§4.3 "stop").
func (f *Farm) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stop)
	f.mu.Unlock()
	f.wg.Wait()
}

// Best returns the current candidate scores, descending by value. The
// head is the single distinguished "best" score the node presents
// (§4.3 "best").
func (f *Farm) Best() []score.Score {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]score.Score, len(f.best))
	copy(out, f.best)
	return out
}

func (f *Farm) worker(start, stride uint64) {
	defer f.wg.Done()
	for {
		select {
		case <-f.stop:
			return
		default:
		}
		f.extendOnce(start, stride)
	}
}

// extendOnce performs one extension attempt: read the current best,
// search for the next suffix, and commit it if it is still the best
// candidate when the search completes (§4.3 "coordination").
func (f *Farm) extendOnce(start, stride uint64) {
	current := f.currentBest()
	if current.Expired(time.Now()) {
		current = current.Reduced()
	}
	suffix, ok := score.Search(current.Tail(), current.Strength, start, stride, f.stop)
	if !ok {
		return
	}
	extended := current.Extend(suffix)
	if !extended.Valid() {
		return
	}
	f.commit(extended)
}

func (f *Farm) currentBest() score.Score {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.best) > 0 {
		return f.best[0]
	}
	return score.New(f.Host, f.Port, f.Invoice, f.Strength)
}

// commit inserts s into the candidate pool if it improves on (or is not
// yet present in) the pool, keeping the list sorted by descending value.
func (f *Farm) commit(s score.Score) {
	f.mu.Lock()
	text := s.String()
	found := false
	for _, existing := range f.best {
		if existing.String() == text {
			found = true
			break
		}
	}
	if !found {
		f.best = append(f.best, s)
		sort.SliceStable(f.best, func(i, j int) bool {
			return f.best[i].Value() > f.best[j].Value()
		})
		if len(f.best) > 32 {
			f.best = f.best[:32]
		}
	}
	best := len(f.best)
	var bestValue int
	if best > 0 {
		bestValue = f.best[0].Value()
	}
	f.mu.Unlock()

	metrics.FarmCandidates.Set(float64(best))
	metrics.FarmBestScore.Set(float64(bestValue))

	if found {
		return
	}
	if err := f.appendHistory(s); err != nil {
		f.logger.Printf("[farm] append history: %v", err)
	}
}

// loadHistory scans the history file, re-admitting each syntactically
// valid, non-expired score matching this node's invoice into the
// candidate pool; invalid or garbage lines are logged and skipped
// (§4.3 "Persistence").
func (f *Farm) loadHistory() error {
	if f.History == "" {
		return nil
	}
	data, err := atomicfile.Read(f.History)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("read farm history %s: %w", f.History, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s, err := score.Parse(line)
		if err != nil {
			f.logger.Printf("[farm] Invalid score: %q: %v", line, err)
			continue
		}
		if s.Invoice != f.Invoice {
			continue
		}
		if s.Expired(time.Now()) {
			continue
		}
		if !s.Valid() {
			f.logger.Printf("[farm] Invalid score: %q", line)
			continue
		}
		f.mu.Lock()
		f.best = append(f.best, s)
		f.mu.Unlock()
	}
	f.mu.Lock()
	sort.SliceStable(f.best, func(i, j int) bool {
		return f.best[i].Value() > f.best[j].Value()
	})
	f.mu.Unlock()
	return scanner.Err()
}

// appendHistory persists one canonical-form line for s to the history
// file (§4.3 "Persistence": "every advance appends one line"). A single
// AtomicFile.Update call per advance keeps the append crash-safe without
// requiring a separate append-mode file handle.
func (f *Farm) appendHistory(s score.Score) error {
	if f.History == "" {
		return nil
	}
	line := s.String() + "\n"
	return atomicfile.Update(f.History, 0o644, func(current []byte, existed bool) ([]byte, bool, error) {
		return append(append([]byte(nil), current...), line...), true, nil
	})
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}

// ToText renders every candidate score, one per line, in canonical form
// (§4.3 "to_text").
func (f *Farm) ToText() string {
	var b bytes.Buffer
	for _, s := range f.Best() {
		b.WriteString(s.String())
		b.WriteString("\n")
	}
	return b.String()
}

// farmJSON is the shape ToJSON serializes (§4.3 "to_json").
type farmJSON struct {
	Best []string `json:"best"`
}

// ToJSON renders the candidate pool as {"best": [...]}, each score in
// canonical form. The "/farm" route serves ToText instead, and the "/"
// status route reports only the number of candidates.
func (f *Farm) ToJSON() ([]byte, error) {
	best := f.Best()
	texts := make([]string, len(best))
	for i, s := range best {
		texts[i] = s.String()
	}
	return json.Marshal(farmJSON{Best: texts})
}
