package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// SumSHA256 returns the SHA-256 checksum of the provided data.
func SumSHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ContentChecksum is the hex SHA-256 of a file body, used to detect unchanged saves.
func ContentChecksum(content string) string {
	sum := SumSHA256([]byte(content))
	return hex.EncodeToString(sum[:])
}
