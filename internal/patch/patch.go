// Package patch implements the Patch merge algorithm (§4.2 "Patch
// (merge)"): fusing N candidate wallet ledgers that share (id,
// public-key, network) into a single canonical sequence of transactions.
package patch

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/zold-go/zold/internal/atomicfile"
	"github.com/zold-go/zold/internal/domain"
	"github.com/zold-go/zold/internal/wallet"
)

// StrictBalanceCheck controls whether the non-root balance-non-negativity
// rule (§4.2 step 2.c.iii) is evaluated against the running total of
// already-merged transactions only (strict) or also credits the
// not-yet-reconciled positive transactions carried over from the
// candidate being merged (the source's historical semantics, preserved
// per §9 "Open questions" — the merge balance check uses the sum of
// prior transactions, including unreconciled positives, as the ceiling).
// Tests that need the stricter reading set this to true explicitly.
var StrictBalanceCheck = false

// Join merges candidates (sorted by the caller in descending source
// score, §4.2 step 1 — the first element is the baseline) into a single
// wallet. It returns the merged wallet and whether its content differs
// from baseline's.
func Join(candidates []*wallet.Wallet, logger *log.Logger) (*wallet.Wallet, bool, error) {
	if logger == nil {
		logger = log.Default()
	}
	if len(candidates) == 0 {
		return nil, false, fmt.Errorf("patch join: no candidates")
	}

	baseline := candidates[0]
	merged := &wallet.Wallet{
		Path:     baseline.Path,
		Network:  baseline.Network,
		Protocol: baseline.Protocol,
		ID:       baseline.ID,
		PubKey:   baseline.PubKey,
		Txns:     append([]domain.Transaction(nil), baseline.Txns...),
	}

	for _, candidate := range candidates[1:] {
		if candidate.Network != baseline.Network || candidate.ID != baseline.ID || !candidate.PubKey.Equal(baseline.PubKey) {
			logger.Printf("[patch] skipping candidate %s: network/id/key mismatch with baseline", candidate.ID)
			continue
		}
		mergeOne(merged, candidate, logger)
	}

	changed := !sameTxns(merged.Txns, baseline.Txns)
	return merged, changed, nil
}

// mergeOne applies §4.2 step 2 for every transaction in candidate against
// the running merged set.
func mergeOne(merged *wallet.Wallet, candidate *wallet.Wallet, logger *log.Logger) {
	for _, t := range candidate.Txns {
		if containsEqual(merged.Txns, t) {
			continue
		}

		if t.Amount < 0 {
			maxNegID := maxNegativeID(merged.Txns)
			if t.ID <= maxNegID {
				logger.Printf("[patch] skipping transaction %d: would revise committed history (max_neg_id=%d)", t.ID, maxNegID)
				continue
			}
			if hasID(merged.Txns, t.ID) {
				logger.Printf("[patch] Transaction already exists: id %d conflicts", t.ID)
				continue
			}
			if !merged.ID.Root() {
				if !balanceHolds(merged, candidate, t, StrictBalanceCheck) {
					logger.Printf("[patch] skipping transaction %d: would drive balance negative", t.ID)
					continue
				}
			}
			if len(t.Sign) == 0 {
				logger.Printf("[patch] skipping transaction %d: missing signature", t.ID)
				continue
			}
			if err := t.Sign.Verify(merged.PubKey, merged.ID, t); err != nil {
				logger.Printf("[patch] skipping transaction %d: signature does not verify: %v", t.ID, err)
				continue
			}
			merged.Txns = append(merged.Txns, t)
			continue
		}

		// t.Amount > 0: incoming rows must not carry signatures.
		if len(t.Sign) != 0 {
			logger.Printf("[patch] skipping positive transaction %d: unexpected signature, possible tampering", t.ID)
			continue
		}
		merged.Txns = append(merged.Txns, t)
	}
}

func maxNegativeID(txns []domain.Transaction) uint16 {
	var max uint16
	seen := false
	for _, t := range txns {
		if t.Amount < 0 && (!seen || t.ID > max) {
			max = t.ID
			seen = true
		}
	}
	return max
}

func hasID(txns []domain.Transaction, id uint16) bool {
	for _, t := range txns {
		if t.Amount < 0 && t.ID == id {
			return true
		}
	}
	return false
}

func containsEqual(txns []domain.Transaction, t domain.Transaction) bool {
	for _, existing := range txns {
		if existing.Equal(t) {
			return true
		}
	}
	return false
}

// balanceHolds reports whether appending t to merged's current set keeps
// the balance non-negative. In strict mode the ceiling is the sum of
// merged's already-committed transactions; in the preserved historical
// mode it also includes candidate's not-yet-merged positive
// transactions, which the source used as a permissive ceiling
// (§9 "Open questions").
func balanceHolds(merged *wallet.Wallet, candidate *wallet.Wallet, t domain.Transaction, strict bool) bool {
	total := merged.Balance()
	if !strict {
		for _, c := range candidate.Txns {
			if c.Amount > 0 && !containsEqual(merged.Txns, c) {
				total += c.Amount
			}
		}
	}
	result, err := total.Add(t.Amount)
	if err != nil {
		return false
	}
	return result >= 0
}

func sameTxns(a, b []domain.Transaction) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Save writes merged to path if its content differs from what is
// currently on disk at path (or if path does not yet exist), returning
// whether a write occurred (§4.2 step 3).
func Save(merged *wallet.Wallet, path string, overwrite bool) (bool, error) {
	existing, err := wallet.Load(path)
	if err == nil {
		if !overwrite && sameTxns(existing.Txns, merged.Txns) {
			return false, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("patch save: %w", err)
	}

	merged.Path = path
	data, err := merged.Bytes()
	if err != nil {
		return false, fmt.Errorf("patch save: %w", err)
	}
	if err := atomicfile.Write(path, data, wallet.FilePerm); err != nil {
		return false, fmt.Errorf("patch save: %w", err)
	}
	return true, nil
}
