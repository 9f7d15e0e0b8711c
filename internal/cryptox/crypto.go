// Package cryptox holds hashing helpers.
package cryptox

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Digest returns the hex BLAKE2b-256 of parts. Each part is length-prefixed,
// so ("ab","c") and ("a","bc") hash differently.
func Digest(parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
