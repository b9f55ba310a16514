// Package ingest downloads PDFs named by search results or attached by the
// user, deduplicates them by content and registers them with a catalog.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hyperifyio/dentalguide/internal/catalog"
	"github.com/hyperifyio/dentalguide/internal/extract"
	"github.com/hyperifyio/dentalguide/internal/fetch"
	"github.com/hyperifyio/dentalguide/internal/search"
)

var (
	// ErrTooLarge: the document exceeds the size ceiling and was not uploaded.
	ErrTooLarge = fetch.ErrTooLarge
	// ErrNotPDF: the downloaded body is not a PDF.
	ErrNotPDF = extract.ErrNotPDF
	// ErrNotCandidate: the URL does not name a PDF.
	ErrNotCandidate = errors.New("url does not name a pdf")
)

// DefaultConcurrency bounds IngestAll fan-out.
const DefaultConcurrency = 4

// DefaultMaxExcerpt is the stored text preview size in runes.
const DefaultMaxExcerpt = 4000

// Downloader is implemented by *fetch.Client.
type Downloader interface {
	Download(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error)
}

// RobotsPolicy is implemented by *robots.Checker.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) error
}

// Outcome reports what happened to one URL or attachment.
type Outcome struct {
	URL string
	Ref *catalog.FileRef
	// Reused is true when no upload was needed.
	Reused bool
	Err    error
}

// Citation returns what to cite for this outcome: the source URL, or the
// stored file URI for attachments that have no URL.
func (o Outcome) Citation() string {
	if o.URL == "" && o.Ref != nil {
		return o.Ref.URI
	}
	return o.URL
}

// Ingester is session-scoped: it remembers what this session has already
// ingested and the catalog remembers across sessions.
type Ingester struct {
	Fetcher Downloader
	Catalog catalog.Catalog
	// Robots, when set, is consulted before each download. Attachments skip
	// it.
	Robots RobotsPolicy
	// MaxBytes is the per-document ceiling.
	MaxBytes int64
	// MaxExcerpt bounds the stored text preview in runes. Zero means
	// DefaultMaxExcerpt.
	MaxExcerpt      int
	DownloadTimeout time.Duration
	UploadTimeout   time.Duration
	Concurrency     int

	flight singleflight.Group

	mu    sync.Mutex
	byURL map[string]*catalog.FileRef
	bySig map[string]*catalog.FileRef
	// order keeps refs in first-seen order for Files.
	order []*catalog.FileRef
	// owned marks refs uploaded by this session.
	owned    map[string]bool
	sigLocks map[string]*sync.Mutex
}

// IsCandidate reports whether rawURL's path ends in .pdf.
func IsCandidate(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".pdf")
}

type flightResult struct {
	ref    *catalog.FileRef
	reused bool
}

// Ingest processes one URL. Failures are reported in Outcome.Err; the caller
// cites the bare URL in that case.
func (in *Ingester) Ingest(ctx context.Context, rawURL string) Outcome {
	out := Outcome{URL: rawURL}
	if !IsCandidate(rawURL) {
		out.Err = ErrNotCandidate
		return out
	}
	key := search.NormalizeURL(rawURL)
	if ref := in.lookupURL(key); ref != nil {
		out.Ref, out.Reused = ref, true
		return out
	}
	v, err, _ := in.flight.Do(key, func() (any, error) {
		return in.ingestURL(ctx, rawURL, key)
	})
	if err != nil {
		out.Err = err
		log.Debug().Str("stage", "ingest").Str("url", rawURL).Err(err).Msg("pdf not ingested")
		return out
	}
	res := v.(flightResult)
	out.Ref, out.Reused = res.ref, res.reused
	return out
}

// IngestAll ingests urls concurrently and returns outcomes in input order.
func (in *Ingester) IngestAll(ctx context.Context, urls []string) []Outcome {
	out := make([]Outcome, len(urls))
	limit := in.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			out[i] = in.Ingest(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// IngestBytes stores a user attachment under the same size and content rules
// as downloaded documents.
func (in *Ingester) IngestBytes(ctx context.Context, name string, data []byte) Outcome {
	var out Outcome
	if in.MaxBytes > 0 && int64(len(data)) > in.MaxBytes {
		out.Err = fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), in.MaxBytes)
		return out
	}
	if !extract.IsPDF(data, "") {
		out.Err = ErrNotPDF
		return out
	}
	ref, reused, err := in.store(ctx, data, name, "")
	if err != nil {
		out.Err = err
		return out
	}
	out.Ref, out.Reused = ref, reused
	return out
}

func (in *Ingester) ingestURL(ctx context.Context, rawURL, key string) (flightResult, error) {
	if in.Catalog != nil {
		ref, err := in.Catalog.FindByOrigin(ctx, rawURL)
		if err != nil {
			log.Warn().Str("stage", "ingest").Str("url", rawURL).Err(err).Msg("catalog origin lookup failed")
		} else if ref != nil {
			in.remember(key, ref, false)
			return flightResult{ref: ref, reused: true}, nil
		}
	}
	if in.Fetcher == nil {
		return flightResult{}, errors.New("ingest: no downloader configured")
	}

	if in.Robots != nil {
		if err := in.Robots.Allowed(ctx, rawURL); err != nil {
			return flightResult{}, err
		}
	}

	dctx := ctx
	if in.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, in.DownloadTimeout)
		defer cancel()
	}
	start := time.Now()
	data, contentType, err := in.Fetcher.Download(dctx, rawURL, in.MaxBytes)
	if err != nil {
		return flightResult{}, fmt.Errorf("download %s: %w", rawURL, err)
	}
	log.Debug().Str("stage", "ingest").Str("url", rawURL).Int("bytes", len(data)).
		Int64("duration_ms", time.Since(start).Milliseconds()).Msg("downloaded")
	if !extract.IsPDF(data, contentType) {
		return flightResult{}, ErrNotPDF
	}
	ref, reused, err := in.store(ctx, data, path.Base(mustPath(rawURL)), rawURL)
	if err != nil {
		return flightResult{}, err
	}
	in.remember(key, ref, false)
	return flightResult{ref: ref, reused: reused}, nil
}

// store deduplicates by signature and uploads when nothing matches. The
// per-signature lock makes the check and the upload one step.
func (in *Ingester) store(ctx context.Context, data []byte, name, origin string) (*catalog.FileRef, bool, error) {
	sig := catalog.Signature(data)
	lock := in.sigLock(sig)
	lock.Lock()
	defer lock.Unlock()

	if ref := in.lookupSig(sig); ref != nil {
		return ref, true, nil
	}
	if in.Catalog == nil {
		return nil, false, errors.New("ingest: no catalog configured")
	}
	if ref, err := in.Catalog.FindBySignature(ctx, sig); err != nil {
		log.Warn().Str("stage", "ingest").Str("signature", sig).Err(err).Msg("catalog signature lookup failed")
	} else if ref != nil {
		in.attachPreview(ref, data)
		in.remember("", ref, false)
		return ref, true, nil
	}

	uctx := ctx
	if in.UploadTimeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, in.UploadTimeout)
		defer cancel()
	}
	ref, err := in.Catalog.Upload(uctx, catalog.Upload{
		Data:      data,
		Name:      name,
		OriginURL: origin,
		Signature: sig,
		MIMEType:  "application/pdf",
	})
	if err != nil {
		return nil, false, fmt.Errorf("upload to %s catalog: %w", in.Catalog.Name(), err)
	}
	in.attachPreview(ref, data)
	in.remember("", ref, true)
	log.Info().Str("stage", "ingest").Str("file", ref.ID).Str("signature", sig).Str("url", origin).Msg("pdf uploaded")
	return ref, false, nil
}

func (in *Ingester) attachPreview(ref *catalog.FileRef, data []byte) {
	if ref.Excerpt != "" {
		return
	}
	doc, err := extract.FromPDF(data, in.maxExcerpt())
	if err != nil {
		log.Debug().Str("stage", "ingest").Str("file", ref.ID).Err(err).Msg("no text preview")
		return
	}
	ref.Pages = doc.Pages
	ref.Excerpt = doc.Text
	if doc.Title != "" && ref.Name == "" {
		ref.Name = doc.Title
	}
}

func (in *Ingester) sigLock(sig string) *sync.Mutex {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.sigLocks == nil {
		in.sigLocks = make(map[string]*sync.Mutex)
	}
	l, ok := in.sigLocks[sig]
	if !ok {
		l = &sync.Mutex{}
		in.sigLocks[sig] = l
	}
	return l
}

func (in *Ingester) lookupURL(key string) *catalog.FileRef {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.byURL[key]
}

func (in *Ingester) lookupSig(sig string) *catalog.FileRef {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.bySig[sig]
}

func (in *Ingester) remember(key string, ref *catalog.FileRef, owned bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.byURL == nil {
		in.byURL = make(map[string]*catalog.FileRef)
	}
	if in.bySig == nil {
		in.bySig = make(map[string]*catalog.FileRef)
	}
	if in.owned == nil {
		in.owned = make(map[string]bool)
	}
	if key != "" {
		in.byURL[key] = ref
	}
	if ref.Signature != "" {
		if _, ok := in.bySig[ref.Signature]; !ok {
			in.bySig[ref.Signature] = ref
		}
	}
	for _, r := range in.order {
		if r.ID == ref.ID {
			return
		}
	}
	in.order = append(in.order, ref)
	if owned {
		in.owned[ref.ID] = true
	}
}

// Files returns the session's refs in first-seen order.
func (in *Ingester) Files() []catalog.FileRef {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]catalog.FileRef, 0, len(in.order))
	for _, r := range in.order {
		out = append(out, *r)
	}
	return out
}

// Remove forgets id for this session. Files this session uploaded are also
// deleted from the catalog; reused files are left for other sessions.
func (in *Ingester) Remove(ctx context.Context, id string) error {
	in.mu.Lock()
	idx := -1
	for i, r := range in.order {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		in.mu.Unlock()
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	ref := in.order[idx]
	in.order = append(in.order[:idx], in.order[idx+1:]...)
	for k, r := range in.byURL {
		if r.ID == id {
			delete(in.byURL, k)
		}
	}
	if r, ok := in.bySig[ref.Signature]; ok && r.ID == id {
		delete(in.bySig, ref.Signature)
	}
	owned := in.owned[id]
	delete(in.owned, id)
	in.mu.Unlock()

	if owned && in.Catalog != nil {
		return in.Catalog.Delete(ctx, id)
	}
	return nil
}

// Reset forgets every ref without touching the catalog.
func (in *Ingester) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.byURL = nil
	in.bySig = nil
	in.owned = nil
	in.order = nil
}

func mustPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

func (in *Ingester) maxExcerpt() int {
	if in.MaxExcerpt > 0 {
		return in.MaxExcerpt
	}
	return DefaultMaxExcerpt
}
