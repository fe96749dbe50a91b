package remotes

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAddExistsRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.csv")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if r.Exists("localhost", 80) {
		t.Error("Exists() = true before Add")
	}
	if err := r.Add("localhost", 80); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if !r.Exists("localhost", 80) {
		t.Error("Exists() = false after Add")
	}
	if err := r.Remove("localhost", 80); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if r.Exists("localhost", 80) {
		t.Error("Exists() = true after Remove")
	}
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.csv")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := r.Add("1.2.3.4", 1234); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := r.Rescore("1.2.3.4", 1234, 9); err != nil {
		t.Fatalf("Rescore error: %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	all := reloaded.All()
	if len(all) != 1 || all[0].Host != "1.2.3.4" || all[0].Port != 1234 || all[0].Score != 9 {
		t.Errorf("All() = %+v, want one 1.2.3.4:1234 score=9 entry", all)
	}
}

func TestOpenDropsUnparseableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.csv")
	// A path with no file at all opens as empty.
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if len(r.All()) != 0 {
		t.Error("All() on missing file should be empty")
	}

	// A file with one valid line and one garbage line keeps only the
	// valid entry.
	if err := os.WriteFile(path, []byte("1.2.3.4,1234,0,0\nnot,a,valid,line\n"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	r, err = Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	all := r.All()
	if len(all) != 1 || all[0].Host != "1.2.3.4" || all[0].Port != 1234 {
		t.Errorf("All() = %+v, want only the 1.2.3.4:1234 entry", all)
	}
}

func TestAutoTrimAfterToleranceErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.csv")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := r.Add("peer", 1); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	for i := 0; i < Tolerance+1; i++ {
		if err := r.Error("peer", 1); err != nil {
			t.Fatalf("Error error: %v", err)
		}
	}
	if r.Exists("peer", 1) {
		t.Error("peer should be auto-removed after Tolerance+1 errors")
	}
}

func TestSuccessfulIterateResetsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.csv")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := r.Add("peer", 1); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	for i := 0; i < Tolerance; i++ {
		_ = r.Error("peer", 1)
	}
	if r.Errors("peer", 1) != Tolerance {
		t.Fatalf("Errors() = %d, want %d", r.Errors("peer", 1), Tolerance)
	}

	r.Iterate(nil, func(Remote) error { return nil })
	if r.Errors("peer", 1) != 0 {
		t.Errorf("Errors() after successful iterate = %d, want 0", r.Errors("peer", 1))
	}
}

func TestIterateErrorIncrementsCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.csv")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := r.Add("peer", 1); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	r.Iterate(nil, func(Remote) error { return errors.New("boom") })
	if r.Errors("peer", 1) != 1 {
		t.Errorf("Errors() = %d, want 1", r.Errors("peer", 1))
	}
}

func TestIterateUnderRuntimeLimitDoesNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.csv")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := r.Add("slow-peer", 1); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	r.Iterate(nil, func(rem Remote) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	if r.Errors("slow-peer", 1) != 0 {
		t.Error("a fn well under RuntimeLimit should not increment errors")
	}
}

func TestRankingOrdersHighScoreLowErrorFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.csv")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := r.Add("good", 1); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := r.Add("bad", 2); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := r.Rescore("good", 1, 10); err != nil {
		t.Fatalf("Rescore error: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = r.Error("bad", 2)
	}

	all := r.All()
	if len(all) != 2 || all[0].Host != "good" {
		t.Errorf("All() = %+v, want \"good\" ranked first", all)
	}
}
