package vaultpatch

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// ContentHash is the hex BLAKE3-256 digest used by the vault file index.
func ContentHash(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
