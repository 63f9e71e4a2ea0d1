// Package pagination implements the keyset cursor codec used for invoice
// listing. The cursor is the tuple of the last-seen sort keys so pages stay
// stable under concurrent inserts, unlike offset pagination.
package pagination

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	// DefaultLimit applies when the caller does not request a page size.
	DefaultLimit = 20
	// MaxLimit caps the page size regardless of caller input.
	MaxLimit = 100

	cursorSeparator  = "_"
	cursorTimeLayout = time.RFC3339Nano
)

var ErrInvalidCursor = errors.New("invalid_cursor")

// Cursor identifies a position in the (created_at DESC, id DESC) total order.
type Cursor struct {
	CreatedAt time.Time
	ID        snowflake.ID
}

// Encode renders the cursor as "{createdAtRFC3339Nano}_{id}".
func Encode(c Cursor) string {
	return c.CreatedAt.UTC().Format(cursorTimeLayout) + cursorSeparator + c.ID.String()
}

// Decode parses a cursor produced by Encode. The separator is searched from
// the right because RFC3339 timestamps never contain underscores while the
// guard keeps malformed input from panicking.
func Decode(raw string) (Cursor, error) {
	raw = strings.TrimSpace(raw)
	idx := strings.LastIndex(raw, cursorSeparator)
	if idx <= 0 || idx == len(raw)-1 {
		return Cursor{}, ErrInvalidCursor
	}

	createdAt, err := time.Parse(cursorTimeLayout, raw[:idx])
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	id, err := snowflake.ParseString(raw[idx+1:])
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	return Cursor{CreatedAt: createdAt.UTC(), ID: id}, nil
}

// ClampLimit normalizes a requested page size into [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
