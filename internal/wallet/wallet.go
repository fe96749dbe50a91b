// Package wallet implements the file-backed append-only wallet ledger
// (§4.1 "Wallet") and the directory-of-wallets registry (§3 "Wallets").
package wallet

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/zold-go/zold/internal/atomicfile"
	"github.com/zold-go/zold/internal/domain"
)

// ProtocolVersion is the wallet-file protocol version this repo writes
// and accepts.
const ProtocolVersion = "3"

// FilePerm is the permission mode wallet files are written with.
const FilePerm = 0o600

var networkPattern = regexp.MustCompile(`^[a-z]{4,16}$`)

// Wallet is an in-memory view of one wallet's append-only ledger file.
// It is not safe for concurrent mutation from multiple goroutines without
// external serialization. Add and Sub rewrite the whole backing file from
// this in-memory value with atomicfile.Write; they do not re-read the
// file first, so two Wallet values loaded from the same path and mutated
// independently overwrite each other's appends.
type Wallet struct {
	Path     string
	Network  string
	Protocol string
	ID       domain.Id
	PubKey   *domain.PublicKey
	Txns     []domain.Transaction
}

// Init creates a new wallet file at path. It fails if the file already
// exists and overwrite is false, or if network is malformed
// (§4.1 "init").
func Init(path string, id domain.Id, pub *domain.PublicKey, network string, overwrite bool) (*Wallet, error) {
	if !networkPattern.MatchString(network) {
		return nil, fmt.Errorf("init wallet: network %q: %w", network, domain.ErrInvalidNetwork)
	}
	if !overwrite && atomicfile.Exists(path) {
		return nil, fmt.Errorf("init wallet %s: %w", path, domain.ErrWalletExists)
	}
	w := &Wallet{
		Path:     path,
		Network:  network,
		Protocol: ProtocolVersion,
		ID:       id,
		PubKey:   pub,
		Txns:     nil,
	}
	if err := w.save(); err != nil {
		return nil, err
	}
	return w, nil
}

// Load reads and parses a wallet file from path.
func Load(path string) (*Wallet, error) {
	data, err := atomicfile.Read(path)
	if err != nil {
		return nil, fmt.Errorf("load wallet %s: %w", path, err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load wallet %s: %w", path, err)
	}
	w.Path = path
	return w, nil
}

// Parse parses the text layout from §3 into a Wallet with Path left empty.
func Parse(data []byte) (*Wallet, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	lines := make([]string, 0, 64)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrWalletCorrupted, err)
	}
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: too few header lines", domain.ErrWalletCorrupted)
	}

	network := lines[0]
	protocol := lines[1]
	idLine := lines[2]
	id, err := domain.ParseId(idLine)
	if err != nil {
		return nil, fmt.Errorf("parse wallet id: %w", err)
	}

	// The public key block runs from line 3 until the first blank line.
	i := 3
	var keyLines []string
	for ; i < len(lines); i++ {
		if lines[i] == "" {
			break
		}
		keyLines = append(keyLines, lines[i])
	}
	if i >= len(lines) {
		return nil, fmt.Errorf("%w: missing blank line after public key", domain.ErrWalletCorrupted)
	}
	i++ // skip the blank separator line

	pub, err := domain.ParsePublicKeyPEM(strings.Join(keyLines, "\n") + "\n")
	if err != nil {
		return nil, fmt.Errorf("parse wallet public key: %w", err)
	}

	var txns []domain.Transaction
	for ; i < len(lines); i++ {
		if lines[i] == "" {
			continue
		}
		txn, err := domain.ParseTransactionLine(lines[i])
		if err != nil {
			return nil, fmt.Errorf("parse wallet transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	return &Wallet{
		Network:  network,
		Protocol: protocol,
		ID:       id,
		PubKey:   pub,
		Txns:     txns,
	}, nil
}

// Bytes renders the wallet in the §3 text layout.
func (w *Wallet) Bytes() ([]byte, error) {
	keyText, err := w.PubKey.Text()
	if err != nil {
		return nil, fmt.Errorf("render wallet key: %w", err)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\n%s\n%s\n", w.Network, w.Protocol, w.ID.String())
	b.WriteString(keyText)
	if !strings.HasSuffix(keyText, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n") // blank line terminates the header
	for _, t := range w.Txns {
		b.WriteString(t.Line())
		b.WriteString("\n")
	}
	return b.Bytes(), nil
}

func (w *Wallet) save() error {
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	return atomicfile.Write(w.Path, data, FilePerm)
}

// Add appends txn to the wallet, rejecting it per §4.1 "add": overflow of
// the running balance, a duplicate (id, bnf) pair, or a duplicate tax
// payment (a negative transaction to the root wallet on the same UTC
// calendar day — zold's "taxes" command pays at most one tax transaction
// per day, so a second same-day attempt is necessarily a duplicate).
func (w *Wallet) Add(txn domain.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}
	for _, existing := range w.Txns {
		if existing.ID == txn.ID && existing.Bnf == txn.Bnf {
			return fmt.Errorf("add transaction %d/%s: %w", txn.ID, txn.Bnf, domain.ErrDuplicateTxn)
		}
		if isTaxPayment(existing) && isTaxPayment(txn) && sameUTCDay(existing.Date, txn.Date) {
			return fmt.Errorf("add tax transaction: %w", domain.ErrDuplicateTax)
		}
	}
	if _, err := w.Balance().Add(txn.Amount); err != nil {
		return fmt.Errorf("add transaction: %w", err)
	}
	w.Txns = append(w.Txns, txn)
	return w.save()
}

func isTaxPayment(t domain.Transaction) bool {
	return t.Amount < 0 && t.Bnf.Root()
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Sub constructs and appends the signed outgoing transaction for paying
// `amount` against `invoice` ("<prefix>@<id>"), per §4.1 "sub". The
// constructed id is max(existing negative ids)+1.
func (w *Wallet) Sub(amount domain.Amount, invoice string, priv *domain.PrivateKey, details string, when time.Time) (domain.Transaction, error) {
	if amount <= 0 {
		return domain.Transaction{}, domain.ErrNegativeAmount
	}
	prefix, bnf, err := ParseInvoice(invoice)
	if err != nil {
		return domain.Transaction{}, err
	}

	nextID := w.nextNegativeID()
	if nextID > domain.MaxTxnID {
		return domain.Transaction{}, domain.ErrIDOutOfRange
	}

	txn := domain.Transaction{
		ID:      nextID,
		Date:    when.UTC(),
		Amount:  -amount,
		Prefix:  prefix,
		Bnf:     bnf,
		Details: details,
	}
	sig, err := domain.SignTransaction(priv, w.ID, txn)
	if err != nil {
		return domain.Transaction{}, err
	}
	txn.Sign = sig
	if err := sig.Verify(w.PubKey, w.ID, txn); err != nil {
		return domain.Transaction{}, fmt.Errorf("sub: signed with mismatched key: %w", err)
	}
	if err := w.Add(txn); err != nil {
		return domain.Transaction{}, err
	}
	return txn, nil
}

func (w *Wallet) nextNegativeID() uint16 {
	var max uint16
	seen := false
	for _, t := range w.Txns {
		if t.Amount < 0 {
			if !seen || t.ID > max {
				max = t.ID
				seen = true
			}
		}
	}
	if !seen {
		return 1
	}
	return max + 1
}

// ParseInvoice parses an invoice string "<prefix>@<id>" (§3 "Score",
// "invoice").
func ParseInvoice(invoice string) (prefix string, bnf domain.Id, err error) {
	parts := strings.SplitN(invoice, "@", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("parse invoice %q: malformed", invoice)
	}
	bnf, err = domain.ParseId(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("parse invoice %q: %w", invoice, err)
	}
	return parts[0], bnf, nil
}

// Balance returns the sum of all transaction amounts, O(n) (§4.1 "balance").
func (w *Wallet) Balance() domain.Amount {
	var total domain.Amount
	for _, t := range w.Txns {
		total += t.Amount
	}
	return total
}

// SortedTxns returns the transactions sorted by (date ascending, amount
// descending), the order Refurbish writes the body in (§4.1 "txns"). The
// Txns field itself keeps insertion order.
func (w *Wallet) SortedTxns() []domain.Transaction {
	out := make([]domain.Transaction, len(w.Txns))
	copy(out, w.Txns)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Amount > out[j].Amount
	})
	return out
}

// Digest returns the SHA-256 of the wallet's raw on-disk bytes, used as
// an ETag-like identity (§4.1 "digest").
func (w *Wallet) Digest() (string, error) {
	data, err := atomicfile.Read(w.Path)
	if err != nil {
		return "", fmt.Errorf("digest wallet %s: %w", w.Path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Mtime returns the backing file's modification time.
func (w *Wallet) Mtime() (time.Time, error) {
	info, err := os.Stat(w.Path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat wallet %s: %w", w.Path, err)
	}
	return info.ModTime(), nil
}

// Age returns the time elapsed since the wallet file was last modified.
func (w *Wallet) Age() (time.Duration, error) {
	mtime, err := w.Mtime()
	if err != nil {
		return 0, err
	}
	return time.Since(mtime), nil
}

// HasPrefix reports whether any transaction carries the given invoice
// prefix (§4.1 "prefix?").
func (w *Wallet) HasPrefix(prefix string) bool {
	for _, t := range w.Txns {
		if t.Prefix == prefix {
			return true
		}
	}
	return false
}

// Has reports whether a transaction with the given (id, bnf) pair exists
// (§4.1 "has?").
func (w *Wallet) Has(id uint16, bnf domain.Id) bool {
	for _, t := range w.Txns {
		if t.ID == id && t.Bnf == bnf {
			return true
		}
	}
	return false
}

// IsRoot reports whether this is the distinguished root wallet
// (§4.1 "root?").
func (w *Wallet) IsRoot() bool {
	return w.ID.Root()
}

// Refurbish rewrites the wallet's header and body canonically: the body
// is sorted by (date ascending, amount descending) (§3 "Wallet file
// layout" lifecycle).
func (w *Wallet) Refurbish() error {
	w.Txns = w.SortedTxns()
	return w.save()
}

// Remove deletes the wallet file, returning the lifecycle to "absent"
// (§4.1 state machine: "(on explicit clean)"). Not used by normal
// push/merge flow — only by an explicit operator action.
func (w *Wallet) Remove() error {
	if err := os.Remove(w.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove wallet %s: %w", w.Path, err)
	}
	return nil
}
