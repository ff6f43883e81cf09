package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// FileSHA256 returns the hex SHA-256 digest of the file at path
func FileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", NewIOError(path, err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", NewIOError(path, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
