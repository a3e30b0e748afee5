// Package pagination implements opaque keyset cursors for list endpoints.
// Tokens are base64 JSON of the last row's sort keys, so a page boundary
// survives inserts that would shift an offset.
package pagination

import (
	"encoding/base64"
	"encoding/json"
)

// Pagination is the request half, bound from query parameters.
type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=10" validate:"gte=1,lte=250"`
}

// Cursor marks the keyset position of the last row on a page.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Encode packs the cursor into an opaque token.
func (c Cursor) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeCursor unpacks a token produced by Encode.
func DecodeCursor(token string) (*Cursor, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// PageInfo is the response half of the list envelope.
type PageInfo struct {
	NextPageToken     string `json:"next_page_token"`
	PreviousPageToken string `json:"previous_page_token"`
	HasMore           bool   `json:"has_more"`
}

// TrimPage drops the probe row fetched past the page size, returning the
// visible rows and the page envelope with the continuation token.
func TrimPage[T any](rows []*T, limit int32, cursorFor func(*T) string) ([]*T, *PageInfo) {
	if len(rows) == 0 {
		return rows, &PageInfo{}
	}

	hasMore := len(rows) > int(limit)
	if hasMore {
		rows = rows[:limit]
	}
	return rows, &PageInfo{
		HasMore:       hasMore,
		NextPageToken: cursorFor(rows[len(rows)-1]),
	}
}
