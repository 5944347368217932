// Package pagination implements opaque cursor tokens for keyset listing.
// A token encodes the sort position of the last row on the page; callers
// never parse it, they only hand it back.
package pagination

import (
	"encoding/base64"
	"encoding/json"
)

type Pagination struct {
	PageToken string `json:"page_token"`
	PageSize  int    `json:"page_size"` // Min 1, Max 250
}

// Cursor is the decoded position inside a listing, keyed by row id and
// creation time so ties break deterministically.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken     string `json:"next_page_token"`
	PreviousPageToken string `json:"previous_page_token"`
	HasMore           bool   `json:"has_more"`
}

// EncodeCursor serializes the cursor into a URL-safe opaque token.
func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor reverses EncodeCursor. Tokens from other builds or tampered
// input fail here and the caller falls back to the first page.
func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	cursor := new(Cursor)
	if err := json.Unmarshal(b, cursor); err != nil {
		return nil, err
	}
	return cursor, nil
}

// BuildCursorPageInfo inspects a page fetched with limit+1 rows: the extra
// row signals another page, and the token points at the last row kept.
func BuildCursorPageInfo[T any](data []*T, limit int32, extractCursor func(*T) string) *PageInfo {
	if len(data) == 0 {
		return &PageInfo{}
	}

	info := &PageInfo{}
	if len(data) > int(limit) {
		info.HasMore = true
		data = data[:limit]
	}
	info.NextPageToken = extractCursor(data[len(data)-1])
	return info
}
