package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxTxnID is the upper bound on a per-wallet transaction id (§3).
const MaxTxnID = 0xFFFF

// MaxDetailsLen is the maximum length of Transaction.Details (§3).
const MaxDetailsLen = 512

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9]{8,32}$`)

// detailsPattern constrains Details to printable, non-control text.
var detailsPattern = regexp.MustCompile(`^[\x20-\x7E]*$`)

// Transaction is one signed or counter-signed row in a wallet ledger
// (§3 "Transaction").
type Transaction struct {
	ID      uint16    // per-wallet id, monotonic across negative txns only
	Date    time.Time // UTC
	Amount  Amount    // non-zero; sign determines direction
	Prefix  string    // invoice prefix chosen by the payee, 8-32 alnum chars
	Bnf     Id        // beneficiary (amount<0) or payer (amount>0)
	Details string    // ≤512 chars, constrained printable text
	Sign    Signature // present iff Amount<0
}

// Validate checks the structural invariants from §3 that do not require
// wallet context (signature verification, duplicate detection, and
// balance checks happen one layer up, in Wallet and Patch).
func (t Transaction) Validate() error {
	if t.Amount == 0 {
		return ErrZeroAmount
	}
	if t.ID > MaxTxnID {
		return ErrIDOutOfRange
	}
	if !prefixPattern.MatchString(t.Prefix) {
		return ErrInvalidPrefix
	}
	if len(t.Details) > MaxDetailsLen || !detailsPattern.MatchString(t.Details) {
		return ErrDetailsTooLong
	}
	if t.Amount < 0 && len(t.Sign) == 0 {
		return ErrMissingSignature
	}
	if t.Amount > 0 && len(t.Sign) != 0 {
		return ErrUnexpectedSign
	}
	return nil
}

// Invoice returns "<prefix>@<id>" built from Prefix and the walletID
// argument; Bnf is not used.
func (t Transaction) Invoice(walletID Id) string {
	return t.Prefix + "@" + walletID.String()
}

// CanonicalBytes returns the deterministic byte form that is signed or
// verified, bound to a specific wallet Id (§3 "Signature"). The form
// never includes the signature itself.
func (t Transaction) CanonicalBytes(walletID Id) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%016x;%d;%s;%d;%s;%s;%s",
		uint64(walletID), t.ID, t.Date.UTC().Format(time.RFC3339),
		int64(t.Amount), t.Prefix, t.Bnf.String(), t.Details)
	return []byte(b.String())
}

// Inverse builds the mirror transaction that propagation appends to the
// counterparty's wallet: same id and prefix, opposite sign, no signature
// (§3 invariant, §4.5 step 4).
func (t Transaction) Inverse(ownerID Id) Transaction {
	return Transaction{
		ID:      t.ID,
		Date:    t.Date,
		Amount:  t.Amount.Neg(),
		Prefix:  t.Prefix,
		Bnf:     ownerID,
		Details: t.Details,
		Sign:    nil,
	}
}

// Equal reports structural equality, used by Patch to detect transactions
// already present in a merged set (§4.2 step 2).
func (t Transaction) Equal(o Transaction) bool {
	return t.ID == o.ID &&
		t.Date.Equal(o.Date) &&
		t.Amount == o.Amount &&
		t.Prefix == o.Prefix &&
		t.Bnf == o.Bnf &&
		t.Details == o.Details &&
		string(t.Sign) == string(o.Sign)
}

// Line renders the transaction as a single line for the wallet file body.
// The wire format is not fixed by the wallet-file layout in §3 (it only
// defines the tuple); this repo uses a comma-separated line with the
// free-text Details field base64-encoded, so that commas or newlines
// inside Details can never corrupt the line-oriented file.
func (t Transaction) Line() string {
	sign := ""
	if len(t.Sign) > 0 {
		sign = t.Sign.Base64()
	}
	return strings.Join([]string{
		strconv.Itoa(int(t.ID)),
		t.Date.UTC().Format(time.RFC3339),
		t.Amount.String(),
		t.Prefix,
		t.Bnf.String(),
		sign,
		base64DetailsEncode(t.Details),
	}, ",")
}

// ParseTransactionLine parses a line produced by Transaction.Line.
func ParseTransactionLine(line string) (Transaction, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 7 {
		return Transaction{}, fmt.Errorf("parse transaction line %q: %w", line, ErrWalletCorrupted)
	}
	idVal, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse transaction id: %w", err)
	}
	date, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return Transaction{}, fmt.Errorf("parse transaction date: %w", err)
	}
	amount, err := ParseAmount(fields[2])
	if err != nil {
		return Transaction{}, fmt.Errorf("parse transaction amount: %w", err)
	}
	bnf, err := ParseId(fields[4])
	if err != nil {
		return Transaction{}, fmt.Errorf("parse transaction bnf: %w", err)
	}
	sign, err := ParseSignatureBase64(fields[5])
	if err != nil {
		return Transaction{}, fmt.Errorf("parse transaction signature: %w", err)
	}
	details, err := base64DetailsDecode(fields[6])
	if err != nil {
		return Transaction{}, fmt.Errorf("parse transaction details: %w", err)
	}
	return Transaction{
		ID:      uint16(idVal),
		Date:    date.UTC(),
		Amount:  amount,
		Prefix:  fields[3],
		Bnf:     bnf,
		Details: details,
		Sign:    sign,
	}, nil
}
