// Package entrance implements the server-side intake for pushed wallet
// bodies (§4.5 "Entrance").
package entrance

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/zold-go/zold/internal/copies"
	"github.com/zold-go/zold/internal/domain"
	"github.com/zold-go/zold/internal/metrics"
	"github.com/zold-go/zold/internal/patch"
	"github.com/zold-go/zold/internal/wallet"
)

// Entrance wires together the Copies stores, the local Wallets registry,
// and Patch to implement push/merge/propagate (§4.5).
type Entrance struct {
	Wallets    *wallet.Wallets
	CopiesRoot string
	Network    string
	Protocol   string
	Logger     *log.Logger

	pushes int64
	merges int64
}

// Stats is a snapshot of Entrance activity, surfaced by the HTTP front's
// node status endpoint (§4.6 "entrance state").
type Stats struct {
	Pushes int64
	Merges int64
}

// Stats reports how many pushes this Entrance has accepted and how many
// of them resulted in a changed, merged wallet.
func (e *Entrance) Stats() Stats {
	return Stats{Pushes: atomic.LoadInt64(&e.pushes), Merges: atomic.LoadInt64(&e.merges)}
}

// New constructs an Entrance. logger defaults to log.Default() if nil.
func New(wallets *wallet.Wallets, copiesRoot, network, protocol string, logger *log.Logger) *Entrance {
	if logger == nil {
		logger = log.Default()
	}
	return &Entrance{Wallets: wallets, CopiesRoot: copiesRoot, Network: network, Protocol: protocol, Logger: logger}
}

// Push implements §4.5 "push(id, body) → modifiedWalletIds[]".
func (e *Entrance) Push(id domain.Id, body []byte, sourceScore int, source string) ([]domain.Id, error) {
	atomic.AddInt64(&e.pushes, 1)
	metrics.EntrancePushesTotal.Inc()
	parsed, err := wallet.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", id, err)
	}
	if parsed.ID != id {
		return nil, fmt.Errorf("push %s: body id %s does not match: %w", id, parsed.ID, domain.ErrWalletCorrupted)
	}
	if parsed.Network != e.Network {
		return nil, fmt.Errorf("push %s: %w", id, domain.ErrNetworkMismatch)
	}
	if parsed.Protocol != e.Protocol {
		return nil, fmt.Errorf("push %s: %w", id, domain.ErrProtocolMismatch)
	}

	store, err := copies.Open(e.CopiesRoot, id)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", id, err)
	}
	defer store.Close()

	if _, err := store.Put(body, sourceScore, source); err != nil {
		return nil, fmt.Errorf("push %s: %w", id, err)
	}

	candidates, err := e.candidatesFor(id, store)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", id, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Join's changed flag compares against the highest-scored copy, not
	// the local wallet; Save below compares against the local file and
	// decides whether the local ledger changed.
	merged, _, err := patch.Join(candidates, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", id, err)
	}

	path := e.Wallets.Path(id)
	wrote, err := patch.Save(merged, path, false)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", id, err)
	}
	if !wrote {
		return nil, nil
	}

	atomic.AddInt64(&e.merges, 1)
	metrics.EntranceMergesTotal.Inc()
	affected := []domain.Id{id}
	propagated, err := e.propagate(merged)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", id, err)
	}
	affected = append(affected, propagated...)
	return affected, nil
}

// candidatesFor loads every stored copy for id as a parsed Wallet, sorted
// by descending score (the order copies.Store.All already returns),
// followed by the current local wallet if one exists — so the local
// ledger's own negative history participates in the merge as a
// candidate rather than being silently overwritten.
func (e *Entrance) candidatesFor(id domain.Id, store *copies.Store) ([]*wallet.Wallet, error) {
	stored, err := store.All()
	if err != nil {
		return nil, err
	}

	var out []*wallet.Wallet
	for _, c := range stored {
		w, err := wallet.Parse(c.Body)
		if err != nil {
			e.Logger.Printf("[entrance] skipping corrupted copy %s for %s: %v", c.Name, id, err)
			continue
		}
		out = append(out, w)
	}

	if e.Wallets.Exists(id) {
		local, err := e.Wallets.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, local)
	}
	return out, nil
}

// propagate implements §4.5 step 4: for every negative transaction
// t with bnf=B, append its inverse to B's wallet when B is known
// locally, the inverse is not already present, and B's network matches.
// The invoice prefix of t is not checked against B. Self-payment
// (bnf == id) is a silent skip logged at debug —
// preserved per the source's behavior without a clear rationale
// recorded for it.
func (e *Entrance) propagate(source *wallet.Wallet) ([]domain.Id, error) {
	var affected []domain.Id
	for _, t := range source.Txns {
		if t.Amount >= 0 {
			continue
		}
		if t.Bnf == source.ID {
			e.Logger.Printf("[entrance] propagate: skipping self-payment on %s id=%d", source.ID, t.ID)
			continue
		}
		if !e.Wallets.Exists(t.Bnf) {
			continue
		}
		beneficiary, err := e.Wallets.Get(t.Bnf)
		if err != nil {
			return affected, err
		}
		if beneficiary.Network != source.Network {
			continue
		}
		inverse := t.Inverse(source.ID)
		if beneficiary.Has(inverse.ID, inverse.Bnf) {
			continue
		}
		if err := beneficiary.Add(inverse); err != nil {
			e.Logger.Printf("[entrance] propagate to %s: %v", t.Bnf, err)
			continue
		}
		affected = append(affected, t.Bnf)
	}
	return affected, nil
}
