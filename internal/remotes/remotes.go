// Package remotes implements the Remotes registry (§4.4 "Remotes
// registry"): a persistent CSV of peers with per-peer error counters and
// cached scores, the primary producer of the peer iteration order used
// by fetch/push/propagate.
package remotes

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zold-go/zold/internal/atomicfile"
	"github.com/zold-go/zold/internal/metrics"
)

// Tolerance is the error count above which a peer is auto-removed
// (§3 "Remote entry").
const Tolerance = 8

// RuntimeLimit bounds how long a single Iterate callback may run before
// the peer is treated as errored (§4.4 "iterate").
const RuntimeLimit = 16 * time.Second

// Remote is one peer entry (§3 "Remote entry").
type Remote struct {
	Host   string
	Port   int
	Score  int
	Errors int
}

func (r Remote) key() string {
	return r.Host + ":" + strconv.Itoa(r.Port)
}

// Remotes is the mutex-guarded, CSV-persisted peer table.
type Remotes struct {
	path string

	mu   sync.Mutex
	byID map[string]*Remote
	idx  []string // insertion order, for deterministic CSV output
}

// Open loads path (if present) into a Remotes table. Unparseable lines
// are silently dropped (§6 "Remotes CSV").
func Open(path string) (*Remotes, error) {
	r := &Remotes{path: path, byID: map[string]*Remote{}}
	data, err := atomicfile.Read(path)
	if err != nil {
		if isNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("open remotes %s: %w", path, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rem, ok := parseLine(line)
		if !ok {
			continue
		}
		r.byID[rem.key()] = &rem
		r.idx = append(r.idx, rem.key())
	}
	return r, nil
}

func parseLine(line string) (Remote, bool) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return Remote{}, false
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return Remote{}, false
	}
	score, err := strconv.Atoi(fields[2])
	if err != nil {
		return Remote{}, false
	}
	errs, err := strconv.Atoi(fields[3])
	if err != nil {
		return Remote{}, false
	}
	return Remote{Host: fields[0], Port: port, Score: score, Errors: errs}, true
}

func (r Remote) line() string {
	return fmt.Sprintf("%s,%d,%d,%d", r.Host, r.Port, r.Score, r.Errors)
}

// Add registers a peer if not already known.
func (r *Remotes) Add(host string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := host + ":" + strconv.Itoa(port)
	if _, ok := r.byID[key]; ok {
		return nil
	}
	r.byID[key] = &Remote{Host: host, Port: port}
	r.idx = append(r.idx, key)
	return r.saveLocked()
}

// Remove deletes a peer from the table.
func (r *Remotes) Remove(host string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := host + ":" + strconv.Itoa(port)
	if _, ok := r.byID[key]; !ok {
		return nil
	}
	delete(r.byID, key)
	for i, k := range r.idx {
		if k == key {
			r.idx = append(r.idx[:i], r.idx[i+1:]...)
			break
		}
	}
	return r.saveLocked()
}

// Exists reports whether (host, port) is known.
func (r *Remotes) Exists(host string, port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byID[host+":"+strconv.Itoa(port)]
	return ok
}

// All returns every peer, ranked highest-first (§4.4 "Ranking").
func (r *Remotes) All() []Remote {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rankedLocked()
}

func (r *Remotes) rankedLocked() []Remote {
	out := make([]Remote, 0, len(r.idx))
	maxScore, maxErrors := 1, 1
	for _, k := range r.idx {
		rem := r.byID[k]
		if rem.Score > maxScore {
			maxScore = rem.Score
		}
		if rem.Errors > maxErrors {
			maxErrors = rem.Errors
		}
	}
	for _, k := range r.idx {
		out = append(out, *r.byID[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i], maxErrors, maxScore) > rank(out[j], maxErrors, maxScore)
	})
	return out
}

// rank implements §4.4's ranking formula:
// (1 − errors/maxErrors) * 5 + score/maxScore.
func rank(r Remote, maxErrors, maxScore int) float64 {
	return (1-float64(r.Errors)/float64(maxErrors))*5 + float64(r.Score)/float64(maxScore)
}

// Error increments a peer's error counter, auto-removing it once it
// exceeds Tolerance.
func (r *Remotes) Error(host string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := host + ":" + strconv.Itoa(port)
	rem, ok := r.byID[key]
	if !ok {
		return nil
	}
	rem.Errors++
	metrics.RemotesErrorsTotal.Inc()
	if rem.Errors > Tolerance {
		delete(r.byID, key)
		for i, k := range r.idx {
			if k == key {
				r.idx = append(r.idx[:i], r.idx[i+1:]...)
				break
			}
		}
		metrics.RemotesEvictedTotal.Inc()
	}
	return r.saveLocked()
}

// Errors reads a peer's current error count.
func (r *Remotes) Errors(host string, port int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.byID[host+":"+strconv.Itoa(port)]
	if !ok {
		return 0
	}
	return rem.Errors
}

// Rescore updates a peer's cached score and resets its error counter
// (§4.4 "Successful completion resets the error counter").
func (r *Remotes) Rescore(host string, port, score int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.byID[host+":"+strconv.Itoa(port)]
	if !ok {
		return nil
	}
	rem.Score = score
	rem.Errors = 0
	return r.saveLocked()
}

func (r *Remotes) saveLocked() error {
	var b bytes.Buffer
	for _, k := range r.idx {
		b.WriteString(r.byID[k].line())
		b.WriteString("\n")
	}
	metrics.RemotesKnown.Set(float64(len(r.idx)))
	return atomicfile.Write(r.path, b.Bytes(), 0o644)
}

// IteratorFn is the callback Iterate invokes per peer. Returning an error
// counts as an exception per §4.4: the peer is errored and possibly
// evicted.
type IteratorFn func(r Remote) error

// Iterate yields each peer, highest-ranked first, to fn. A panic or
// returned error from fn increments that peer's error counter; a run
// longer than RuntimeLimit is treated the same way (§4.4 "iterate").
// Successful completion resets the peer's error counter to 0.
func (r *Remotes) Iterate(logger *log.Logger, fn IteratorFn) {
	if logger == nil {
		logger = log.Default()
	}
	for _, rem := range r.All() {
		r.runOne(logger, rem, fn)
	}
}

func (r *Remotes) runOne(logger *log.Logger, rem Remote, fn IteratorFn) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- fn(rem)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Printf("[remotes] %s:%d: %v", rem.Host, rem.Port, err)
			_ = r.Error(rem.Host, rem.Port)
			return
		}
		_ = r.Rescore(rem.Host, rem.Port, rem.Score)
	case <-time.After(RuntimeLimit):
		logger.Printf("[remotes] %s:%d: Took too long to execute", rem.Host, rem.Port)
		_ = r.Error(rem.Host, rem.Port)
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
