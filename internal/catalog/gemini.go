package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// fileService is the subset of *genai.Files used by Gemini.
type fileService interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
	All(ctx context.Context) iter.Seq2[*genai.File, error]
}

// Gemini is a Catalog over the Gemini Files API. Stored files carry the
// origin URL (or the attachment name) as their display name, which is how
// FindByOrigin recognizes them.
type Gemini struct {
	files fileService
	// PollInterval and PollTimeout bound the wait for an upload to leave the
	// PROCESSING state.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// NewGemini builds a catalog from an API key. httpClient may be nil.
func NewGemini(ctx context.Context, apiKey string, httpClient *http.Client) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini catalog: missing api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &Gemini{files: client.Files}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// FindBySignature lists remote files and compares their SHA-256.
func (g *Gemini) FindBySignature(ctx context.Context, signature string) (*FileRef, error) {
	if signature == "" {
		return nil, nil
	}
	return g.find(ctx, func(f *genai.File) bool { return hashMatches(f.Sha256Hash, signature) })
}

// FindByOrigin lists remote files and compares display names.
func (g *Gemini) FindByOrigin(ctx context.Context, originURL string) (*FileRef, error) {
	originURL = strings.TrimSpace(originURL)
	if originURL == "" {
		return nil, nil
	}
	name := displayName(originURL)
	ref, err := g.find(ctx, func(f *genai.File) bool { return f.DisplayName == name })
	if ref != nil {
		ref.OriginURL = originURL
	}
	return ref, err
}

func (g *Gemini) find(ctx context.Context, match func(*genai.File) bool) (*FileRef, error) {
	for f, err := range g.files.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}
		if f == nil || f.State == genai.FileStateFailed {
			continue
		}
		if match(f) {
			return toRef(f, ""), nil
		}
	}
	return nil, nil
}

func (g *Gemini) Upload(ctx context.Context, up Upload) (*FileRef, error) {
	mime := up.MIMEType
	if mime == "" {
		mime = "application/pdf"
	}
	label := up.OriginURL
	if label == "" {
		label = up.Name
	}
	f, err := g.files.Upload(ctx, bytes.NewReader(up.Data), &genai.UploadFileConfig{
		MIMEType:    mime,
		DisplayName: displayName(label),
	})
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	f, err = g.waitActive(ctx, f)
	if err != nil {
		return nil, err
	}
	sig := up.Signature
	if sig == "" {
		sig = Signature(up.Data)
	}
	ref := toRef(f, sig)
	ref.OriginURL = up.OriginURL
	if up.Name != "" {
		ref.Name = up.Name
	}
	if ref.SizeBytes == 0 {
		ref.SizeBytes = int64(len(up.Data))
	}
	log.Debug().Str("stage", "catalog").Str("file", ref.ID).Str("signature", sig).Msg("uploaded")
	return ref, nil
}

func (g *Gemini) waitActive(ctx context.Context, f *genai.File) (*genai.File, error) {
	interval := g.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timeout := g.PollTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for f.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("file %s still processing after %s", f.Name, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		next, err := g.files.Get(ctx, f.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("get file: %w", err)
		}
		f = next
	}
	if f.State == genai.FileStateFailed {
		msg := "processing failed"
		if f.Error != nil && f.Error.Message != "" {
			msg = f.Error.Message
		}
		return nil, fmt.Errorf("file %s: %s", f.Name, msg)
	}
	return f, nil
}

func (g *Gemini) Delete(ctx context.Context, id string) error {
	if _, err := g.files.Delete(ctx, id, nil); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

func toRef(f *genai.File, signature string) *FileRef {
	ref := &FileRef{
		ID:        f.Name,
		Name:      f.DisplayName,
		URI:       f.URI,
		Signature: signature,
		MIMEType:  f.MIMEType,
		CreatedAt: f.CreateTime,
	}
	if strings.Contains(f.DisplayName, "://") && !strings.Contains(f.DisplayName, hashedNameMarker) {
		ref.OriginURL = f.DisplayName
	}
	if f.SizeBytes != nil {
		ref.SizeBytes = *f.SizeBytes
	}
	if ref.Signature == "" {
		ref.Signature = hexSignature(f.Sha256Hash)
	}
	return ref
}

const (
	maxDisplayName = 512
	// hashedNameMarker separates a shortened display name from the hash of
	// the full value. URLs cannot contain the space.
	hashedNameMarker = " sha256:"
)

// displayName fits s into the display-name limit. Longer values keep a
// prefix and end with a hash of the whole value, so distinct long URLs
// never share a name.
func displayName(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxDisplayName {
		return s
	}
	sum := sha256.Sum256([]byte(s))
	suffix := hashedNameMarker + hex.EncodeToString(sum[:16])
	return string(r[:maxDisplayName-len(suffix)]) + suffix
}

// hashMatches compares a remote hash with a hex signature. The API documents
// base64, but hex and base64-of-hex have both been observed.
func hashMatches(remote, signature string) bool {
	return remote != "" && strings.EqualFold(hexSignature(remote), signature)
}

// hexSignature converts a remote hash into lower-case hex when possible.
func hexSignature(remote string) string {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return ""
	}
	if len(remote) == 64 {
		if _, err := hex.DecodeString(remote); err == nil {
			return strings.ToLower(remote)
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		b, err := enc.DecodeString(remote)
		if err != nil {
			continue
		}
		if len(b) == 32 {
			return hex.EncodeToString(b)
		}
		if len(b) == 64 {
			if _, err := hex.DecodeString(string(b)); err == nil {
				return strings.ToLower(string(b))
			}
		}
	}
	return ""
}
