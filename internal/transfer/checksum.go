package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

type Chunk struct {
	Index    int
	Offset   int64
	Length   int
	Checksum string
}

// ChunkChecksum is the lowercase hex SHA-256 digest of one chunk.
func ChunkChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChecksumOfChecksums hashes the concatenated hex digests of every chunk in
// order. Reordering chunks changes the result.
func ChecksumOfChecksums(sums []string) string {
	return ChunkChecksum([]byte(strings.Join(sums, "")))
}

func checksums(chunks []Chunk) []string {
	sums := make([]string, len(chunks))
	for i, c := range chunks {
		sums[i] = c.Checksum
	}
	return sums
}

// IntegrityError means the transferred content does not match its checksum.
// The file has to be transferred again from scratch.
type IntegrityError struct {
	Key      string
	Name     string
	Expected string
	Actual   string
	Err      error
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("integrity check failed for %s/%s", e.Key, e.Name)
	if e.Expected != "" || e.Actual != "" {
		msg += fmt.Sprintf(": expected %s, got %s", e.Expected, e.Actual)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}
