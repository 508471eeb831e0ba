package pbft

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Digest computes the canonical block hash: the unseparated
// concatenation of data, previous_hash, and the decimal string of
// height. Every node must compute this identically, or agreement
// breaks; the concatenation order and lack of separator are load
// bearing, not a stylistic choice.
func Digest(data, previousHash string, height uint64) string {
	record := data + previousHash + strconv.FormatUint(height, 10)
	sum := blake2b.Sum256([]byte(record))
	return hex.EncodeToString(sum[:])
}
