// Package catalog stores uploaded PDFs and finds them again by content
// signature or origin URL so each document is uploaded at most once.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// FileRef identifies a document held by a catalog.
type FileRef struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URI       string    `json:"uri"`
	OriginURL string    `json:"origin_url,omitempty"`
	Signature string    `json:"signature"`
	MIMEType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	Pages     int       `json:"pages,omitempty"`
	Excerpt   string    `json:"excerpt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Upload describes a document to store.
type Upload struct {
	Data      []byte
	Name      string
	OriginURL string
	Signature string
	MIMEType  string
}

// Catalog is implemented by the remote Gemini file store and the local disk
// store. Lookups return (nil, nil) when nothing matches.
type Catalog interface {
	Name() string
	FindBySignature(ctx context.Context, signature string) (*FileRef, error)
	FindByOrigin(ctx context.Context, originURL string) (*FileRef, error)
	Upload(ctx context.Context, up Upload) (*FileRef, error)
	Delete(ctx context.Context, id string) error
}

// ErrNotFound is returned by Delete for unknown ids.
var ErrNotFound = errors.New("file not found")

// Signature is the hex SHA-256 of data.
func Signature(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
