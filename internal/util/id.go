// Package util holds small helpers with no domain knowledge.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a short random hex identifier. The prefix names the id's
// purpose in log lines; "req" is used for HTTP request ids. Drafts, slots and
// templates are identified by the client, never here.
func NewID(prefix string) string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
