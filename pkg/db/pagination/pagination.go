// Package pagination implements keyset page tokens for lists ordered by
// created_at DESC, id DESC.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidToken = errors.New("invalid_page_token")

// PageInfo is embedded in list responses.
type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

// Cursor is the sort key of the last row on a page.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id,string"`
}

func (c Cursor) Encode() string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a token produced by Encode.
func Decode(token string) (Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidToken
	}
	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return Cursor{}, ErrInvalidToken
	}
	if cursor.ID <= 0 || cursor.CreatedAt.IsZero() {
		return Cursor{}, ErrInvalidToken
	}
	return cursor, nil
}

// Trim takes rows fetched with a limit of size+1, keeps the first size and
// points the next token at the last kept row.
func Trim[T any](items []T, size int, cursorOf func(T) Cursor) ([]T, PageInfo) {
	if size <= 0 || len(items) <= size {
		return items, PageInfo{}
	}
	items = items[:size]
	return items, PageInfo{
		HasMore:       true,
		NextPageToken: cursorOf(items[len(items)-1]).Encode(),
	}
}
