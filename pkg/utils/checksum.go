package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the hex SHA-256 digest of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether checksum matches the digest of data
func VerifyChecksum(data []byte, checksum string) bool {
	return Checksum(data) == checksum
}
