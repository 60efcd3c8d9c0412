package util

import (
	"github.com/google/uuid"
)

// NewID returns a request id with the given prefix.
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
