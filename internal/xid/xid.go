package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random UUIDv4 tagged with prefix, e.g. "txn-3f2c...".
func New(prefix string) string {
	id := uuid.NewString()
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		return id
	}
	return prefix + "-" + id
}
