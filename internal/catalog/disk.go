package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Disk stores documents as <id>.pdf with a sibling <id>.meta.json. It serves
// offline runs and tests; nothing is evicted.
type Disk struct {
	Dir string
	// StrictPerms, when true, enforces 0700 on the directory and 0600 on
	// files.
	StrictPerms bool

	mu sync.Mutex
	// newID is uuid.NewString unless a test replaces it.
	newID func() string
}

func (d *Disk) Name() string { return "disk" }

func (d *Disk) ensureDir() error {
	if d == nil || strings.TrimSpace(d.Dir) == "" {
		return errors.New("catalog dir not configured")
	}
	perm := os.FileMode(0o755)
	if d.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(d.Dir, perm); err != nil {
		return err
	}
	if d.StrictPerms {
		if info, err := os.Stat(d.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(d.Dir, 0o700)
		}
	}
	return nil
}

func (d *Disk) fileMode() os.FileMode {
	if d.StrictPerms {
		return 0o600
	}
	return 0o644
}

func (d *Disk) metaPath(id string) string { return filepath.Join(d.Dir, id+".meta.json") }
func (d *Disk) bodyPath(id string) string { return filepath.Join(d.Dir, id+".pdf") }

// FindBySignature scans stored metadata for a matching signature.
func (d *Disk) FindBySignature(ctx context.Context, signature string) (*FileRef, error) {
	if signature == "" {
		return nil, nil
	}
	return d.find(ctx, func(r *FileRef) bool { return strings.EqualFold(r.Signature, signature) })
}

// FindByOrigin scans stored metadata for a matching origin URL.
func (d *Disk) FindByOrigin(ctx context.Context, originURL string) (*FileRef, error) {
	if originURL == "" {
		return nil, nil
	}
	return d.find(ctx, func(r *FileRef) bool { return r.OriginURL == originURL })
}

func (d *Disk) find(ctx context.Context, match func(*FileRef) bool) (*FileRef, error) {
	if err := d.ensureDir(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var found *FileRef
	err := filepath.WalkDir(d.Dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			if path != d.Dir {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !strings.HasSuffix(e.Name(), ".meta.json") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil // skip unreadable
		}
		var ref FileRef
		if err := json.Unmarshal(b, &ref); err != nil {
			return nil // skip malformed
		}
		if match(&ref) {
			found = &ref
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Upload writes the body first and the metadata last, so a crash never leaves
// metadata pointing at a missing body. A failed metadata write removes the
// body again.
func (d *Disk) Upload(ctx context.Context, up Upload) (*FileRef, error) {
	if err := d.ensureDir(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig := up.Signature
	if sig == "" {
		sig = Signature(up.Data)
	}
	mime := up.MIMEType
	if mime == "" {
		mime = "application/pdf"
	}
	newID := d.newID
	if newID == nil {
		newID = uuid.NewString
	}
	id := newID()
	ref := &FileRef{
		ID:        id,
		Name:      up.Name,
		OriginURL: up.OriginURL,
		Signature: sig,
		MIMEType:  mime,
		SizeBytes: int64(len(up.Data)),
		CreatedAt: time.Now().UTC(),
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	body := d.bodyPath(id)
	if err := os.WriteFile(body, up.Data, d.fileMode()); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	abs, err := filepath.Abs(body)
	if err != nil {
		abs = body
	}
	ref.URI = "file://" + filepath.ToSlash(abs)

	if err := d.writeMeta(ref); err != nil {
		_ = os.Remove(body)
		return nil, err
	}
	return ref, nil
}

// writeMeta stores ref through a temporary file and a rename. The temporary
// file never outlives a failure.
func (d *Disk) writeMeta(ref *FileRef) (err error) {
	tmp := d.metaPath(ref.ID) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, d.fileMode())
	if err != nil {
		return fmt.Errorf("create meta: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if err := json.NewEncoder(f).Encode(ref); err != nil {
		f.Close()
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close meta: %w", err)
	}
	if err := os.Rename(tmp, d.metaPath(ref.ID)); err != nil {
		return fmt.Errorf("store meta: %w", err)
	}
	return nil
}

// Delete removes both files for id.
func (d *Disk) Delete(_ context.Context, id string) error {
	if err := d.ensureDir(); err != nil {
		return err
	}
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.Remove(d.metaPath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	_ = os.Remove(d.bodyPath(id))
	return nil
}

// Clear removes every stored document and recreates an empty directory.
func (d *Disk) Clear() error {
	if d == nil || strings.TrimSpace(d.Dir) == "" {
		return errors.New("empty dir")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.RemoveAll(d.Dir); err != nil {
		return err
	}
	return os.MkdirAll(d.Dir, 0o755)
}
