package score

import (
	"testing"
	"time"
)

func TestZeroValueScoreIsValid(t *testing.T) {
	s := New("localhost", 80, "NOPREFIX@ffffffffffffffff", 3)
	if !s.Valid() {
		t.Error("fresh zero-suffix score should be valid")
	}
	if s.Value() != 0 {
		t.Errorf("Value() = %d, want 0", s.Value())
	}
}

func TestExtendWithMinedSuffix(t *testing.T) {
	s := New("localhost", 80, "NOPREFIX@ffffffffffffffff", 3)
	suffix, ok := Search(s.chain(), s.Strength, 0, 1, nil)
	if !ok {
		t.Fatal("Search did not find a suffix")
	}
	extended := s.Extend(suffix)
	if !extended.Valid() {
		t.Error("extended score with a mined suffix should be valid")
	}
	if extended.Value() != 1 {
		t.Errorf("Value() = %d, want 1", extended.Value())
	}
}

func TestExtendWithWrongSuffixInvalidatesChain(t *testing.T) {
	s := New("localhost", 80, "NOPREFIX@ffffffffffffffff", 6)
	extended := s.Extend("not-a-real-nonce")
	if extended.Valid() {
		t.Error("extending with an unmined suffix should (almost always) be invalid")
	}
}

func TestExpired(t *testing.T) {
	s := New("localhost", 80, "NOPREFIX@ffffffffffffffff", 3)
	s.Time = time.Now().Add(-25 * time.Hour)
	if !s.Expired(time.Now()) {
		t.Error("25h-old score should be expired")
	}
	fresh := New("localhost", 80, "NOPREFIX@ffffffffffffffff", 3)
	if fresh.Expired(time.Now()) {
		t.Error("fresh score should not be expired")
	}
}

func TestCanonicalStringRoundTrip(t *testing.T) {
	s := New("178.128.165.12", 4096, "MIR@0000000000000001", 3)
	s.Time = s.Time.Truncate(time.Second)
	suffix, ok := Search(s.chain(), s.Strength, 0, 1, nil)
	if !ok {
		t.Fatal("Search did not find a suffix")
	}
	s = s.Extend(suffix)

	line := s.String()
	parsed, err := Parse(line)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if parsed.Host != s.Host || parsed.Port != s.Port || parsed.Invoice != s.Invoice {
		t.Errorf("round-tripped score = %+v, want %+v", parsed, s)
	}
	if parsed.Value() != s.Value() {
		t.Errorf("round-tripped Value() = %d, want %d", parsed.Value(), s.Value())
	}
	if !parsed.Valid() {
		t.Error("round-tripped score should still be valid")
	}
}

func TestHeaderTextRoundTrip(t *testing.T) {
	s := New("example.com", 80, "NOPREFIX@0000000000000002", 4)
	s.Time = s.Time.Truncate(time.Second)
	text, err := s.Text()
	if err != nil {
		t.Fatalf("Text error: %v", err)
	}
	parsed, err := ParseText(text)
	if err != nil {
		t.Fatalf("ParseText error: %v", err)
	}
	if parsed.Host != s.Host || parsed.Port != s.Port || parsed.Invoice != s.Invoice || parsed.Strength != s.Strength {
		t.Errorf("round-tripped header score = %+v, want %+v", parsed, s)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("0/6: 2018-06-26ABCT00:32:43Z 178.128.165.12 4096 MIR@..."); err == nil {
		t.Error("Parse of malformed score line: expected error")
	}
}

func TestReducedClearsSuffixes(t *testing.T) {
	s := New("localhost", 80, "NOPREFIX@ffffffffffffffff", 3)
	suffix, ok := Search(s.chain(), s.Strength, 0, 1, nil)
	if !ok {
		t.Fatal("Search did not find a suffix")
	}
	s = s.Extend(suffix)
	if s.Value() == 0 {
		t.Fatal("test setup: expected non-zero value before Reduced")
	}
	r := s.Reduced()
	if r.Value() != 0 {
		t.Errorf("Reduced().Value() = %d, want 0", r.Value())
	}
}
