// Package digest computes normalized content hashes for protected code.
// All whitespace is stripped before hashing so that formatting-only edits
// do not register as modifications.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"unicode"
)

// Unknown is the sentinel digest returned for unreadable input.
const Unknown = "unknown"

// Hash returns the hex-encoded SHA-256 digest of text with every
// whitespace rune removed. Two inputs differing only in whitespace
// hash identically.
func Hash(text string) string {
	normalized := Normalize(text)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Normalize strips all whitespace (spaces, tabs, newlines, carriage
// returns and any other unicode space) from text.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HashFile hashes the whole content of the file at path. On read failure
// it returns the Unknown sentinel and the error; callers log and continue
// rather than aborting.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Unknown, err
	}
	return Hash(string(data)), nil
}
