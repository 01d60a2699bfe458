package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/ruteri/certificate-trust-backend/interfaces"
	"github.com/ruteri/certificate-trust-backend/metrics"
)

const (
	maxUploadNameLength = 128
	ownerTagLength      = 16
)

// FileUploadStore stages uploaded documents in a private directory between
// issuance Prepare and Confirm. Handles are "<owner tag>.<uuid>_<sanitized name>"
// and never contain a path separator. The owner tag binds a handle to the
// institution that staged it.
type FileUploadStore struct {
	dir string
	log *slog.Logger
	now func() time.Time
}

func NewFileUploadStore(dir string, log *slog.Logger) (*FileUploadStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &FileUploadStore{dir: dir, log: log, now: time.Now}, nil
}

// Stage copies r into a new staged file owned by owner and returns its handle.
func (s *FileUploadStore) Stage(ctx context.Context, owner interfaces.InstitutionID, filename string, r io.Reader) (interfaces.UploadHandle, error) {
	if owner == "" {
		return "", fmt.Errorf("%w: upload has no owner", interfaces.ErrBadRequest)
	}
	handle := interfaces.UploadHandle(ownerTag(owner) + "." + uuid.NewString() + "_" + sanitizeUploadName(filename))

	f, err := os.OpenFile(filepath.Join(s.dir, string(handle)), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create staged upload: %w", err)
	}

	if _, err := io.Copy(f, &contextReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write staged upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write staged upload: %w", err)
	}

	s.log.Debug("Staged upload", slog.String("handle", string(handle)))
	return handle, nil
}

// Open returns a reader over a staged upload.
func (s *FileUploadStore) Open(handle interfaces.UploadHandle) (io.ReadCloser, error) {
	path, err := s.path(handle)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: staged upload %s", interfaces.ErrNotFound, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open staged upload: %w", err)
	}
	return f, nil
}

// OwnedBy reports whether handle is well formed and was staged by owner.
func (s *FileUploadStore) OwnedBy(handle interfaces.UploadHandle, owner interfaces.InstitutionID) bool {
	if _, err := s.path(handle); err != nil || owner == "" {
		return false
	}
	tag, _, _ := strings.Cut(string(handle), ".")
	return tag == ownerTag(owner)
}

// Filename returns the original (sanitized) file name of a handle.
func (s *FileUploadStore) Filename(handle interfaces.UploadHandle) string {
	_, name, found := strings.Cut(string(handle), "_")
	if !found {
		return ""
	}
	return name
}

// Remove deletes a staged upload. Removing an absent upload is not an error.
func (s *FileUploadStore) Remove(handle interfaces.UploadHandle) error {
	if handle == "" {
		return nil
	}
	path, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove staged upload: %w", err)
	}
	return nil
}

// Sweep removes uploads staged longer than maxAge ago and returns how many were removed.
func (s *FileUploadStore) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list staged uploads: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("Failed to remove abandoned upload", slog.String("handle", entry.Name()), "err", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		metrics.UploadsSwept.Add(float64(removed))
		s.log.Info("Removed abandoned uploads", slog.Int("count", removed))
	}
	return removed, nil
}

func (s *FileUploadStore) path(handle interfaces.UploadHandle) (string, error) {
	h := string(handle)
	if h == "" || strings.ContainsAny(h, `/\`) || h == "." || h == ".." {
		return "", fmt.Errorf("%w: invalid upload handle", interfaces.ErrBadRequest)
	}
	prefix, _, found := strings.Cut(h, "_")
	if !found {
		return "", fmt.Errorf("%w: invalid upload handle", interfaces.ErrBadRequest)
	}
	tag, id, found := strings.Cut(prefix, ".")
	if !found || len(tag) != ownerTagLength {
		return "", fmt.Errorf("%w: invalid upload handle", interfaces.ErrBadRequest)
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: invalid upload handle", interfaces.ErrBadRequest)
	}
	return filepath.Join(s.dir, h), nil
}

func ownerTag(owner interfaces.InstitutionID) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(owner)))[:ownerTagLength]
}

func sanitizeUploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		name = "document"
	}
	if len(name) > maxUploadNameLength {
		name = name[len(name)-maxUploadNameLength:]
	}
	return name
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
