package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// FileHash identifies a file by path, size, and modification time, so an
// unchanged file keeps its hash across cycles and a touched or rewritten
// file gets a new one. Content is never read for hashing.
func FileHash(path string, sizeBytes int64, lastModified time.Time) string {
	input := fmt.Sprintf("%s|%d|%s",
		normalizePath(path),
		sizeBytes,
		lastModified.UTC().Format(time.RFC3339Nano),
	)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// normalizePath makes the hash insensitive to case and separator style, so
// the same file reached via different spellings dedups to one marker.
func normalizePath(path string) string {
	return strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
}
