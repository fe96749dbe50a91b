package score

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// Search scans nonces starting at `from` in steps of `stride` (workers
// partition the nonce space by giving each a distinct start/stride pair,
// §4.3 "Extension") looking for the smallest nonce whose hex form,
// appended to tail, hashes to something ending in `strength` hex zeros.
// It returns the winning nonce's hex string and true, or ("", false)
// if ctx-like cancellation via the done channel fires first.
func Search(tail string, strength int, from, stride uint64, done <-chan struct{}) (string, bool) {
	for nonce := from; ; nonce += stride {
		select {
		case <-done:
			return "", false
		default:
		}
		suffix := strconv.FormatUint(nonce, 16)
		sum := sha256.Sum256([]byte(tail + " " + suffix))
		hashed := hex.EncodeToString(sum[:])
		if strength <= len(hashed) && strings.Count(hashed[len(hashed)-strength:], "0") == strength {
			return suffix, true
		}
		if nonce > math.MaxUint64-stride {
			return "", false
		}
	}
}
