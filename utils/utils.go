package utils

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
)

// GetEnv returns the value of the environment variable or a default.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// CreateFolder creates a directory (and parents) if it doesn't exist.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %q: %v", path, err)
	}
	return nil
}

// GenerateUniqueID returns a random non-zero uint32 identifier.
func GenerateUniqueID() uint32 {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic("failed to read random bytes: " + err.Error())
		}
		if id := binary.BigEndian.Uint32(buf[:]); id != 0 {
			return id
		}
	}
}
