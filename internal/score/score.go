// Package score implements the Score record (§3 "Score") and the
// proof-of-work hash chain it is built from (§4.3 "Score engine").
package score

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zold-go/zold/internal/domain"
)

// DefaultStrength is the trailing-zero-hex-nibble count required when a
// node does not specify one (§3 "Score").
const DefaultStrength = 6

// Expiry is the lifetime of a Score before it is treated as value 0.
const Expiry = 24 * time.Hour

// Score is an immutable proof-of-work record bound to one invoice
// (§3 "Score"). Extend never mutates a Score in place; it returns a new
// one with one more suffix appended.
type Score struct {
	Time     time.Time
	Host     string
	Port     int
	Invoice  string
	Suffixes []string
	Strength int
}

// New returns a fresh, zero-value score (no suffixes) for invoice.
func New(host string, port int, invoice string, strength int) Score {
	if strength <= 0 {
		strength = DefaultStrength
	}
	return Score{
		Time:     time.Now().UTC(),
		Host:     host,
		Port:     port,
		Invoice:  invoice,
		Strength: strength,
	}
}

// Value is the number of suffixes accumulated so far.
func (s Score) Value() int {
	return len(s.Suffixes)
}

// Expired reports whether s is older than Expiry.
func (s Score) Expired(now time.Time) bool {
	return now.Sub(s.Time) > Expiry
}

// prefix is h0 in the §4.3 hash chain: "<iso-time> <host> <port> <invoice>".
func (s Score) prefix() string {
	return fmt.Sprintf("%s %s %d %s", s.Time.UTC().Format(time.RFC3339), s.Host, s.Port, s.Invoice)
}

// Tail returns the current end of the hash chain — the value a worker
// must extend by searching for a suffix that, appended and rehashed,
// still ends in Strength hex zeros (§4.3 "Extension").
func (s Score) Tail() string {
	return s.chain()
}

// chain walks the hash chain h0=prefix, hi=SHA256_hex(hi-1+" "+si) and
// returns the final hash hn. An empty suffix list returns h0, the prefix
// itself, so Search(Tail(), ...) and chain() hash the same strings.
func (s Score) chain() string {
	h := s.prefix()
	for _, suffix := range s.Suffixes {
		sum := sha256.Sum256([]byte(h + " " + suffix))
		h = hex.EncodeToString(sum[:])
	}
	return h
}

// Valid reports whether s's suffix list is empty, or its hash chain ends
// in Strength hex zero characters (§3 "Score": "Validity").
func (s Score) Valid() bool {
	if len(s.Suffixes) == 0 {
		return true
	}
	tail := s.chain()
	if s.Strength <= 0 || s.Strength > len(tail) {
		return false
	}
	return strings.Count(tail[len(tail)-s.Strength:], "0") == s.Strength
}

// Extend appends suffix as the next element of the chain and returns the
// resulting Score. The caller (internal/farm) is responsible for having
// searched for a suffix that keeps the chain valid; Extend itself does
// not search.
func (s Score) Extend(suffix string) Score {
	next := s
	next.Suffixes = append(append([]string(nil), s.Suffixes...), suffix)
	return next
}

// Reduced returns s with its suffix list cleared, used when an expired
// score is reset to value 0 at its next extension attempt (§4.3).
func (s Score) Reduced() Score {
	next := s
	next.Time = time.Now().UTC()
	next.Suffixes = nil
	return next
}

// Text renders the §6 "Score header text form":
// "<strength> <time-hex-unix> <host> <port-hex> <prefix> <id> <suffix>*".
func (s Score) Text() (string, error) {
	prefix, id, err := splitInvoice(s.Invoice)
	if err != nil {
		return "", err
	}
	fields := []string{
		strconv.Itoa(s.Strength),
		strconv.FormatInt(s.Time.Unix(), 16),
		s.Host,
		strconv.FormatInt(int64(s.Port), 16),
		prefix,
		id.String(),
	}
	fields = append(fields, s.Suffixes...)
	return strings.Join(fields, " "), nil
}

// ParseText parses the §6 "Score header text form".
func ParseText(line string) (Score, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return Score{}, fmt.Errorf("parse score header %q: %w", line, domain.ErrScoreInvalid)
	}
	strength, err := strconv.Atoi(fields[0])
	if err != nil {
		return Score{}, fmt.Errorf("parse score strength %q: %w", fields[0], domain.ErrScoreInvalid)
	}
	unixTime, err := strconv.ParseInt(fields[1], 16, 64)
	if err != nil {
		return Score{}, fmt.Errorf("parse score time %q: %w", fields[1], domain.ErrScoreInvalid)
	}
	host := fields[2]
	port, err := strconv.ParseInt(fields[3], 16, 64)
	if err != nil {
		return Score{}, fmt.Errorf("parse score port %q: %w", fields[3], domain.ErrScoreInvalid)
	}
	invoicePrefix := fields[4]
	id, err := domain.ParseId(fields[5])
	if err != nil {
		return Score{}, fmt.Errorf("parse score invoice id %q: %w", fields[5], domain.ErrScoreInvalid)
	}
	return Score{
		Time:     time.Unix(unixTime, 0).UTC(),
		Host:     host,
		Port:     int(port),
		Invoice:  invoicePrefix + "@" + id.String(),
		Strength: strength,
		Suffixes: append([]string(nil), fields[6:]...),
	}, nil
}

// String renders the §6 "Score canonical form":
// "<value>/<strength>: <ISO8601-UTC-time> <host> <port> <invoice> <suffix>*".
func (s Score) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d: %s %s %d %s", s.Value(), s.Strength, s.Time.UTC().Format(time.RFC3339), s.Host, s.Port, s.Invoice)
	for _, suffix := range s.Suffixes {
		b.WriteString(" ")
		b.WriteString(suffix)
	}
	return b.String()
}

// Parse parses the §6 "Score canonical form" produced by String.
func Parse(line string) (Score, error) {
	head, rest, ok := strings.Cut(line, ": ")
	if !ok {
		return Score{}, fmt.Errorf("parse score %q: %w", line, domain.ErrScoreInvalid)
	}
	valueStrength := strings.SplitN(head, "/", 2)
	if len(valueStrength) != 2 {
		return Score{}, fmt.Errorf("parse score %q: %w", line, domain.ErrScoreInvalid)
	}
	strength, err := strconv.Atoi(valueStrength[1])
	if err != nil {
		return Score{}, fmt.Errorf("parse score strength %q: %w", valueStrength[1], domain.ErrScoreInvalid)
	}

	fields := strings.Fields(rest)
	if len(fields) < 4 {
		return Score{}, fmt.Errorf("parse score %q: %w", line, domain.ErrScoreInvalid)
	}
	when, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Score{}, fmt.Errorf("parse score time %q: %w", fields[0], domain.ErrScoreInvalid)
	}
	host := fields[1]
	port, err := strconv.Atoi(fields[2])
	if err != nil {
		return Score{}, fmt.Errorf("parse score port %q: %w", fields[2], domain.ErrScoreInvalid)
	}
	invoice := fields[3]
	if _, _, err := splitInvoice(invoice); err != nil {
		return Score{}, err
	}

	return Score{
		Time:     when.UTC(),
		Host:     host,
		Port:     port,
		Invoice:  invoice,
		Strength: strength,
		Suffixes: append([]string(nil), fields[4:]...),
	}, nil
}

func splitInvoice(invoice string) (prefix string, id domain.Id, err error) {
	p, idStr, ok := strings.Cut(invoice, "@")
	if !ok {
		return "", 0, fmt.Errorf("parse invoice %q: %w", invoice, domain.ErrScoreInvalid)
	}
	id, err = domain.ParseId(idStr)
	if err != nil {
		return "", 0, fmt.Errorf("parse invoice %q: %w", invoice, err)
	}
	return p, id, nil
}
