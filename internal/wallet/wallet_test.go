package wallet

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zold-go/zold/internal/domain"
)

func newTestWallet(t *testing.T, id domain.Id) (*Wallet, *domain.PrivateKey) {
	t.Helper()
	priv, pub, err := domain.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair error: %v", err)
	}
	path := filepath.Join(t.TempDir(), id.String()+FileExt)
	w, err := Init(path, id, pub, "test", false)
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	return w, priv
}

func TestInitRejectsExisting(t *testing.T) {
	w, _ := newTestWallet(t, domain.Id(1))
	_, _, err := func() (*Wallet, *domain.PrivateKey, error) {
		priv, pub, err := domain.GenerateKeyPair(2048)
		if err != nil {
			return nil, nil, err
		}
		_, err = Init(w.Path, domain.Id(1), pub, "test", false)
		return nil, priv, err
	}()
	if err == nil {
		t.Fatal("Init over existing file without overwrite: expected error")
	}
}

func TestInitRejectsBadNetwork(t *testing.T) {
	_, pub, err := domain.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "x.zld")
	if _, err := Init(path, domain.Id(1), pub, "AB", false); err == nil {
		t.Fatal("Init with invalid network: expected error")
	}
}

func TestWalletBytesRoundTrip(t *testing.T) {
	w, priv := newTestWallet(t, domain.Id(5))
	if _, err := w.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000002", priv, "rent", time.Now()); err != nil {
		t.Fatalf("Sub error: %v", err)
	}

	reloaded, err := Load(w.Path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if reloaded.ID != w.ID || reloaded.Network != w.Network {
		t.Errorf("reloaded wallet header mismatch: %+v vs %+v", reloaded, w)
	}
	if len(reloaded.Txns) != 1 {
		t.Fatalf("reloaded txn count = %d, want 1", len(reloaded.Txns))
	}
	if !reloaded.PubKey.Equal(w.PubKey) {
		t.Error("reloaded public key does not match")
	}
}

func TestSubThenBalance(t *testing.T) {
	w, priv := newTestWallet(t, domain.Id(10))
	if _, err := w.Sub(domain.NewAmountZld(2.5), "ABCDEFGH@0000000000000002", priv, "", time.Now()); err != nil {
		t.Fatalf("Sub error: %v", err)
	}
	if w.Balance().Zld() != -2.5 {
		t.Errorf("Balance() = %v, want -2.5", w.Balance().Zld())
	}
}

func TestSubRejectsNonPositiveAmount(t *testing.T) {
	w, priv := newTestWallet(t, domain.Id(11))
	if _, err := w.Sub(domain.Amount(0), "ABCDEFGH@0000000000000002", priv, "", time.Now()); err != domain.ErrNegativeAmount {
		t.Errorf("Sub(0) error = %v, want ErrNegativeAmount", err)
	}
}

func TestAddRejectsDuplicatePair(t *testing.T) {
	w, priv := newTestWallet(t, domain.Id(12))
	txn, err := w.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000002", priv, "", time.Now())
	if err != nil {
		t.Fatalf("Sub error: %v", err)
	}
	if err := w.Add(txn); err == nil {
		t.Fatal("Add duplicate (id, bnf): expected error")
	}
}

func TestAddRejectsDuplicateTaxSameDay(t *testing.T) {
	w, priv := newTestWallet(t, domain.Id(13))
	when := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	if _, err := w.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000000", priv, "tax", when); err != nil {
		t.Fatalf("first tax Sub error: %v", err)
	}
	if _, err := w.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000000", priv, "tax", when.Add(2*time.Hour)); !errors.Is(err, domain.ErrDuplicateTax) {
		t.Errorf("second same-day tax error = %v, want ErrDuplicateTax", err)
	}
}

func TestAddAllowsTaxOnDifferentDays(t *testing.T) {
	w, priv := newTestWallet(t, domain.Id(14))
	day1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	if _, err := w.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000000", priv, "tax", day1); err != nil {
		t.Fatalf("day1 tax Sub error: %v", err)
	}
	if _, err := w.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000000", priv, "tax", day2); err != nil {
		t.Errorf("day2 tax Sub error: %v, want nil", err)
	}
}

func TestAddRejectsOverflow(t *testing.T) {
	w, priv := newTestWallet(t, domain.Id(15))
	if _, err := w.Sub(domain.MaxAmount, "ABCDEFGH@0000000000000002", priv, "", time.Now()); err != nil {
		t.Fatalf("first Sub error: %v", err)
	}
	// The balance is already -MaxAmount; a second -MaxAmount payment
	// takes the running balance out of range.
	txn := domain.Transaction{
		ID:      2,
		Date:    time.Now().UTC(),
		Amount:  -domain.MaxAmount,
		Prefix:  "ABCDEFGH",
		Bnf:     domain.Id(3),
		Details: "",
	}
	sig, err := domain.SignTransaction(priv, w.ID, txn)
	if err != nil {
		t.Fatalf("SignTransaction error: %v", err)
	}
	txn.Sign = sig
	if err := w.Add(txn); err == nil {
		t.Fatal("Add overflowing amount: expected error")
	}
}

func TestHasPrefixAndHas(t *testing.T) {
	w, priv := newTestWallet(t, domain.Id(16))
	txn, err := w.Sub(domain.NewAmountZld(1), "MYPREFIX@0000000000000002", priv, "", time.Now())
	if err != nil {
		t.Fatalf("Sub error: %v", err)
	}
	if !w.HasPrefix("MYPREFIX") {
		t.Error("HasPrefix(\"MYPREFIX\") = false, want true")
	}
	if w.HasPrefix("NOPE") {
		t.Error("HasPrefix(\"NOPE\") = true, want false")
	}
	if !w.Has(txn.ID, txn.Bnf) {
		t.Error("Has(txn.ID, txn.Bnf) = false, want true")
	}
}

func TestRefurbishSortsTxns(t *testing.T) {
	w, priv := newTestWallet(t, domain.Id(17))
	later := time.Now().UTC()
	earlier := later.Add(-time.Hour)
	if _, err := w.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000002", priv, "", later); err != nil {
		t.Fatalf("Sub error: %v", err)
	}
	w.Txns = append(w.Txns, domain.Transaction{
		ID:     2,
		Date:   earlier,
		Amount: domain.NewAmountZld(1),
		Prefix: "ABCDEFGH",
		Bnf:    domain.Id(4),
	})
	if err := w.Refurbish(); err != nil {
		t.Fatalf("Refurbish error: %v", err)
	}
	if !w.Txns[0].Date.Equal(earlier) {
		t.Error("Refurbish did not sort transactions by date ascending")
	}
}

func TestDigestChangesWithContent(t *testing.T) {
	w, priv := newTestWallet(t, domain.Id(18))
	d1, err := w.Digest()
	if err != nil {
		t.Fatalf("Digest error: %v", err)
	}
	if _, err := w.Sub(domain.NewAmountZld(1), "ABCDEFGH@0000000000000002", priv, "", time.Now()); err != nil {
		t.Fatalf("Sub error: %v", err)
	}
	d2, err := w.Digest()
	if err != nil {
		t.Fatalf("Digest error: %v", err)
	}
	if d1 == d2 {
		t.Error("Digest() unchanged after adding a transaction")
	}
}

func TestIsRootAndRemove(t *testing.T) {
	root, _ := newTestWallet(t, domain.RootId)
	if !root.IsRoot() {
		t.Error("IsRoot() = false for RootId wallet")
	}
	if err := root.Remove(); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := Load(root.Path); err == nil {
		t.Error("Load after Remove: expected error")
	}
}

func TestWalletsRegistry(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewWallets(dir)
	if err != nil {
		t.Fatalf("NewWallets error: %v", err)
	}

	id := domain.Id(99)
	if reg.Exists(id) {
		t.Error("Exists() = true before Create")
	}

	_, pub, err := domain.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair error: %v", err)
	}
	if _, err := reg.Create(id, pub, "test"); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !reg.Exists(id) {
		t.Error("Exists() = false after Create")
	}

	if _, err := reg.Create(id, pub, "test"); err == nil {
		t.Error("Create over existing wallet: expected error")
	}

	got, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ID != id {
		t.Errorf("Get().ID = %v, want %v", got.ID, id)
	}

	if _, err := reg.Get(domain.Id(12345)); err == nil {
		t.Error("Get of missing wallet: expected error")
	}

	ids, err := reg.All()
	if err != nil {
		t.Fatalf("All error: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("All() = %v, want [%v]", ids, id)
	}

	count, err := reg.Count()
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}
