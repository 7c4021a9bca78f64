package service

import (
	"strings"

	"github.com/google/uuid"
)

// newID generates a prefixed identifier, e.g. "usr_9f3c..."
func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:26]
}
