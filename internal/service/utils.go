package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

// newReference builds a human-readable unique reference such as
// ORD-20260831-1A2B3C4D. The embedded date helps support staff; uniqueness
// comes from the uuid fragment plus the column's unique constraint.
func newReference(prefix string) string {
	return fmt.Sprintf("%s-%s-%s",
		prefix,
		time.Now().UTC().Format("20060102"),
		strings.ToUpper(uuid.NewString()[:8]),
	)
}
