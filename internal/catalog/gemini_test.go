package catalog

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeFiles struct {
	mu       sync.Mutex
	files    []*genai.File
	uploads  int
	getCalls int
	listErr  error
	// processing makes uploads start in PROCESSING until polled once.
	processing bool
}

func (f *fakeFiles) Upload(_ context.Context, r io.Reader, cfg *genai.UploadFileConfig) (*genai.File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	sum := Signature(data)
	raw, _ := hex.DecodeString(sum)
	size := int64(len(data))
	state := genai.FileStateActive
	if f.processing {
		state = genai.FileStateProcessing
	}
	file := &genai.File{
		Name:        "files/f" + string(rune('0'+f.uploads)),
		DisplayName: cfg.DisplayName,
		MIMEType:    cfg.MIMEType,
		SizeBytes:   &size,
		Sha256Hash:  base64.StdEncoding.EncodeToString(raw),
		URI:         "https://generativelanguage.googleapis.com/v1beta/files/f",
		State:       state,
	}
	f.files = append(f.files, file)
	return file, nil
}

func (f *fakeFiles) Get(_ context.Context, name string, _ *genai.GetFileConfig) (*genai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	for _, file := range f.files {
		if file.Name == name {
			file.State = genai.FileStateActive
			return file, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeFiles) Delete(_ context.Context, name string, _ *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, file := range f.files {
		if file.Name == name {
			f.files = append(f.files[:i], f.files[i+1:]...)
			return &genai.DeleteFileResponse{}, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeFiles) All(context.Context) iter.Seq2[*genai.File, error] {
	return func(yield func(*genai.File, error) bool) {
		if f.listErr != nil {
			yield(nil, f.listErr)
			return
		}
		f.mu.Lock()
		snapshot := append([]*genai.File(nil), f.files...)
		f.mu.Unlock()
		for _, file := range snapshot {
			if !yield(file, nil) {
				return
			}
		}
	}
}

func TestGemini_UploadThenFind(t *testing.T) {
	ctx := context.Background()
	fake := &fakeFiles{}
	g := &Gemini{files: fake}
	data := []byte("%PDF-1.7 amalgam")
	origin := "https://www.fda.gov/media/amalgam.pdf"

	ref, err := g.Upload(ctx, Upload{Data: data, Name: "amalgam.pdf", OriginURL: origin, Signature: Signature(data)})
	require.NoError(t, err)
	assert.Equal(t, "files/f1", ref.ID)
	assert.Equal(t, origin, ref.OriginURL)
	assert.Equal(t, "amalgam.pdf", ref.Name)
	assert.Equal(t, int64(len(data)), ref.SizeBytes)

	bySig, err := g.FindBySignature(ctx, Signature(data))
	require.NoError(t, err)
	require.NotNil(t, bySig)
	assert.Equal(t, ref.ID, bySig.ID)
	assert.Equal(t, Signature(data), bySig.Signature)

	byOrigin, err := g.FindByOrigin(ctx, origin)
	require.NoError(t, err)
	require.NotNil(t, byOrigin)
	assert.Equal(t, origin, byOrigin.OriginURL)

	none, err := g.FindByOrigin(ctx, "https://www.fda.gov/other.pdf")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, g.Delete(ctx, ref.ID))
	assert.Error(t, g.Delete(ctx, ref.ID))
}

func TestGemini_LongOriginsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	g := &Gemini{files: &fakeFiles{}}
	prefix := "https://www.ada.org/" + strings.Repeat("a", 600)
	first, second := prefix+"/one.pdf", prefix+"/two.pdf"

	ref, err := g.Upload(ctx, Upload{Data: []byte("%PDF-1.4 one"), OriginURL: first})
	require.NoError(t, err)
	assert.Equal(t, first, ref.OriginURL)
	assert.LessOrEqual(t, utf8.RuneCountInString(displayName(first)), maxDisplayName)
	assert.NotEqual(t, displayName(first), displayName(second))

	got, err := g.FindByOrigin(ctx, second)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = g.FindByOrigin(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ref.ID, got.ID)
	assert.Equal(t, first, got.OriginURL)

	short := "https://www.ada.org/x.pdf"
	assert.Equal(t, short, displayName("  "+short+" "))
}

func TestGemini_WaitsForProcessing(t *testing.T) {
	fake := &fakeFiles{processing: true}
	g := &Gemini{files: fake, PollInterval: time.Millisecond}
	ref, err := g.Upload(context.Background(), Upload{Data: []byte("x"), Name: "x.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.getCalls)
	assert.Equal(t, "x.pdf", ref.Name)
}

func TestGemini_ListErrorIsWrapped(t *testing.T) {
	boom := errors.New("quota")
	g := &Gemini{files: &fakeFiles{listErr: boom}}
	_, err := g.FindBySignature(context.Background(), "abc")
	assert.ErrorIs(t, err, boom)
}

func TestHashMatches_AcceptsEncodings(t *testing.T) {
	sig := Signature([]byte("guideline"))
	raw, _ := hex.DecodeString(sig)
	cases := map[string]string{
		"hex":           sig,
		"base64":        base64.StdEncoding.EncodeToString(raw),
		"base64url raw": base64.RawURLEncoding.EncodeToString(raw),
		"base64 of hex": base64.StdEncoding.EncodeToString([]byte(sig)),
	}
	for name, remote := range cases {
		assert.True(t, hashMatches(remote, sig), name)
	}
	assert.False(t, hashMatches("", sig))
	assert.False(t, hashMatches("not-a-hash", sig))
	assert.False(t, hashMatches(base64.StdEncoding.EncodeToString(raw), Signature([]byte("other"))))
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), " ", nil)
	assert.Error(t, err)
}
