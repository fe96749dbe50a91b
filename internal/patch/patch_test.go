package patch

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/zold-go/zold/internal/domain"
	"github.com/zold-go/zold/internal/wallet"
)

func newSignedWallet(t *testing.T, id domain.Id) (*wallet.Wallet, *domain.PrivateKey) {
	t.Helper()
	priv, pub, err := domain.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair error: %v", err)
	}
	path := filepath.Join(t.TempDir(), id.String()+".zld")
	w, err := wallet.Init(path, id, pub, "test", false)
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	return w, priv
}

func TestJoinSingleCandidateUnchanged(t *testing.T) {
	w, _ := newSignedWallet(t, domain.Id(1))
	merged, changed, err := Join([]*wallet.Wallet{w}, nil)
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if changed {
		t.Error("Join of a single candidate against itself should report unchanged")
	}
	if merged.Balance() != w.Balance() {
		t.Error("merged balance mismatch")
	}
}

func TestJoinIdempotent(t *testing.T) {
	baseline, priv := newSignedWallet(t, domain.Id(2))
	if _, err := baseline.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000003", priv, "", time.Now()); err != nil {
		t.Fatalf("Sub error: %v", err)
	}

	once, _, err := Join([]*wallet.Wallet{baseline, baseline}, nil)
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	twice, _, err := Join([]*wallet.Wallet{once, baseline}, nil)
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if len(once.Txns) != len(twice.Txns) {
		t.Errorf("Join not idempotent: %d vs %d txns", len(once.Txns), len(twice.Txns))
	}
}

func TestJoinRejectsMismatchedKey(t *testing.T) {
	baseline, _ := newSignedWallet(t, domain.Id(3))
	other, _ := newSignedWallet(t, domain.Id(3))
	// other has a different generated key pair but same id/network; it
	// must be skipped rather than merged.
	merged, _, err := Join([]*wallet.Wallet{baseline, other}, nil)
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if len(merged.Txns) != 0 {
		t.Error("mismatched-key candidate should contribute no transactions")
	}
}

func TestJoinRejectsRevisedHistory(t *testing.T) {
	baseline, priv := newSignedWallet(t, domain.Id(4))
	if _, err := baseline.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000005", priv, "", time.Now()); err != nil {
		t.Fatalf("Sub error: %v", err)
	}
	if _, err := baseline.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000005", priv, "", time.Now()); err != nil {
		t.Fatalf("Sub error: %v", err)
	}

	// A candidate claiming a conflicting id=1 transaction (different bnf)
	// must not override committed history once id=2 already exists.
	conflicting := domain.Transaction{
		ID:      1,
		Date:    time.Now().UTC(),
		Amount:  -domain.NewAmountZld(1),
		Prefix:  "ABCDEFGH",
		Bnf:     domain.Id(6),
		Details: "",
	}
	sig, err := domain.SignTransaction(priv, baseline.ID, conflicting)
	if err != nil {
		t.Fatalf("SignTransaction error: %v", err)
	}
	conflicting.Sign = sig

	candidate := &wallet.Wallet{
		Network: baseline.Network,
		ID:      baseline.ID,
		PubKey:  baseline.PubKey,
		Txns:    []domain.Transaction{conflicting},
	}

	merged, _, err := Join([]*wallet.Wallet{baseline, candidate}, nil)
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	for _, txn := range merged.Txns {
		if txn.ID == 1 && txn.Bnf == domain.Id(6) {
			t.Error("revised history transaction should have been dropped")
		}
	}
}

func TestJoinRejectsBadSignature(t *testing.T) {
	// The root wallet skips the balance check, so the signature check is
	// what rejects the transaction.
	baseline, _ := newSignedWallet(t, domain.RootId)
	otherPriv, _, err := domain.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair error: %v", err)
	}

	txn := domain.Transaction{
		ID:      1,
		Date:    time.Now().UTC(),
		Amount:  -domain.NewAmountZld(1),
		Prefix:  "ABCDEFGH",
		Bnf:     domain.Id(8),
		Details: "",
	}
	sig, err := domain.SignTransaction(otherPriv, baseline.ID, txn)
	if err != nil {
		t.Fatalf("SignTransaction error: %v", err)
	}
	txn.Sign = sig

	candidate := &wallet.Wallet{
		Network: baseline.Network,
		ID:      baseline.ID,
		PubKey:  baseline.PubKey,
		Txns:    []domain.Transaction{txn},
	}

	merged, _, err := Join([]*wallet.Wallet{baseline, candidate}, nil)
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if len(merged.Txns) != 0 {
		t.Error("transaction signed with the wrong key should not survive merge")
	}
}

func TestJoinRejectsPositiveWithSignature(t *testing.T) {
	baseline, priv := newSignedWallet(t, domain.Id(9))

	tampered := domain.Transaction{
		ID:      1,
		Date:    time.Now().UTC(),
		Amount:  domain.NewAmountZld(1),
		Prefix:  "ABCDEFGH",
		Bnf:     domain.Id(10),
		Details: "",
	}
	sig, err := domain.SignTransaction(priv, baseline.ID, tampered)
	if err != nil {
		t.Fatalf("SignTransaction error: %v", err)
	}
	tampered.Sign = sig

	candidate := &wallet.Wallet{
		Network: baseline.Network,
		ID:      baseline.ID,
		PubKey:  baseline.PubKey,
		Txns:    []domain.Transaction{tampered},
	}

	merged, _, err := Join([]*wallet.Wallet{baseline, candidate}, nil)
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if len(merged.Txns) != 0 {
		t.Error("positive transaction carrying a signature should be rejected as tampering evidence")
	}
}

func TestSaveWritesOnlyWhenChanged(t *testing.T) {
	baseline, priv := newSignedWallet(t, domain.Id(11))
	merged, _, err := Join([]*wallet.Wallet{baseline}, nil)
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	changed, err := Save(merged, baseline.Path, false)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if changed {
		t.Error("Save with identical content should report unchanged")
	}

	if _, err := baseline.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000012", priv, "", time.Now()); err != nil {
		t.Fatalf("Sub error: %v", err)
	}
	merged2, _, err := Join([]*wallet.Wallet{baseline}, nil)
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	changed, err = Save(merged2, baseline.Path, false)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if !changed {
		t.Error("Save with new content should report changed")
	}
}
