package domain

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Signature is a deterministic RSA-SHA256 signature (PKCS#1 v1.5, which is
// deterministic for a fixed key and message) over the canonical byte form
// of a transaction bound to a specific wallet Id (§3 "Signature").
type Signature []byte

// SignTransaction signs the canonical bytes of txn as bound to wallet
// walletID, using priv.
func SignTransaction(priv *PrivateKey, walletID Id, txn Transaction) (Signature, error) {
	digest := sha256.Sum256(txn.CanonicalBytes(walletID))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv.Key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return sig, nil
}

// Verify checks sig against the canonical bytes of txn bound to walletID,
// under pub.
func (sig Signature) Verify(pub *PublicKey, walletID Id, txn Transaction) error {
	if pub == nil || pub.Key == nil {
		return fmt.Errorf("verify signature: %w", ErrInvalidKey)
	}
	digest := sha256.Sum256(txn.CanonicalBytes(walletID))
	if err := rsa.VerifyPKCS1v15(pub.Key, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// Base64 renders the signature in the base64 form stored in a wallet
// file's transaction line.
func (sig Signature) Base64() string {
	return base64.StdEncoding.EncodeToString(sig)
}

// ParseSignatureBase64 parses a base64-encoded signature. An empty string
// yields a nil (absent) signature with no error, matching the "sign?"
// optionality in §3.
func ParseSignatureBase64(s string) (Signature, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	return Signature(data), nil
}
