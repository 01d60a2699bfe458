package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	require.True(t, backend.Available(ctx))

	data := []byte("%PDF-1.4 diploma")

	_, err = backend.Fetch(ctx, interfaces.ComputeID(data))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	id, err := backend.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(data), id)

	// Storing twice is idempotent.
	again, err := backend.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	fetched, err := backend.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)

	entries, err := os.ReadDir(filepath.Join(backend.baseDir, "documents"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id.String(), entries[0].Name())
}

func TestStorageBackendFactory(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())
	dir := t.TempDir()

	fileLocation, err := interfaces.NewStorageBackendLocation("file://" + dir)
	require.NoError(t, err)

	backend, err := factory.StorageBackendFor(fileLocation)
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, backend)

	s3Location, err := interfaces.NewStorageBackendLocation("s3://AKID:SECRET@diplomas/archive?region=eu-west-1&endpoint=http://localhost:9000")
	require.NoError(t, err)
	backend, err = factory.StorageBackendFor(s3Location)
	require.NoError(t, err)
	require.IsType(t, &S3Backend{}, backend)
	assert.Equal(t, "archive", backend.(*S3Backend).prefix)
	assert.Equal(t, "s3-diplomas", backend.Name())

	ipfsLocation, err := interfaces.NewStorageBackendLocation("ipfs://127.0.0.1/certs?timeout=5s")
	require.NoError(t, err)
	backend, err = factory.StorageBackendFor(ipfsLocation)
	require.NoError(t, err)
	require.IsType(t, &IPFSBackend{}, backend)
	assert.Equal(t, "ipfs-127.0.0.1-5001", backend.Name())
	assert.Equal(t, "/certs", backend.(*IPFSBackend).root)

	t.Setenv("ARCHIVE_VAULT_TOKEN", "s.test")
	vaultLocation, err := interfaces.NewStorageBackendLocation("vault://vault.local:8200/kv/diplomas?tls=false&token_env=ARCHIVE_VAULT_TOKEN")
	require.NoError(t, err)
	backend, err = factory.StorageBackendFor(vaultLocation)
	require.NoError(t, err)
	require.IsType(t, &VaultBackend{}, backend)
	assert.Equal(t, "vault-kv-diplomas", backend.Name())
	assert.Equal(t, "s.test", backend.(*VaultBackend).client.Token())

	badTimeout, err := interfaces.NewStorageBackendLocation("ipfs://127.0.0.1?timeout=soon")
	require.NoError(t, err)
	_, err = factory.StorageBackendFor(badTimeout)
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	_, err = interfaces.NewStorageBackendLocation("github://owner/repo")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	multi, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{fileLocation, badTimeout})
	require.NoError(t, err)
	assert.Equal(t, "multi:[file://"+dir+"]", multi.LocationURI())

	_, err = factory.CreateMultiBackend([]interfaces.StorageBackendLocation{badTimeout})
	assert.Error(t, err)
}

func TestFileUploadStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileUploadStore(dir, testLogger())
	require.NoError(t, err)

	handle, err := store.Stage(ctx, "inst-1", "../../etc/Diploma 2024.pdf", bytes.NewReader([]byte("document")))
	require.NoError(t, err)
	assert.False(t, strings.ContainsAny(string(handle), `/\ `))
	assert.Equal(t, "Diploma_2024.pdf", store.Filename(handle))

	r, err := store.Open(handle)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, []byte("document"), data)

	require.NoError(t, store.Remove(handle))
	require.NoError(t, store.Remove(handle))

	_, err = store.Open(handle)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = store.Open("../secrets")
	assert.ErrorIs(t, err, interfaces.ErrBadRequest)
	_, err = store.Open("not-a-uuid_file.pdf")
	assert.ErrorIs(t, err, interfaces.ErrBadRequest)
	_, err = store.Open(interfaces.UploadHandle(uuid.NewString() + "_file.pdf"))
	assert.ErrorIs(t, err, interfaces.ErrBadRequest)
	_, err = store.Stage(ctx, "", "x.pdf", bytes.NewReader([]byte("document")))
	assert.ErrorIs(t, err, interfaces.ErrBadRequest)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Stage(canceled, "inst-1", "x.pdf", bytes.NewReader([]byte("document")))
	assert.ErrorIs(t, err, context.Canceled)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileUploadStore_OwnedBy(t *testing.T) {
	store, err := NewFileUploadStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	handle, err := store.Stage(context.Background(), "inst-1", "diploma.pdf", strings.NewReader("document"))
	require.NoError(t, err)

	assert.True(t, store.OwnedBy(handle, "inst-1"))
	assert.False(t, store.OwnedBy(handle, "inst-2"))
	assert.False(t, store.OwnedBy(handle, ""))
	assert.False(t, store.OwnedBy("../secrets", "inst-1"))

	// Without its owner tag the handle is malformed.
	_, untagged, found := strings.Cut(string(handle), ".")
	require.True(t, found)
	assert.False(t, store.OwnedBy(interfaces.UploadHandle(untagged), "inst-1"))
}

func TestFileUploadStore_Sweep(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileUploadStore(dir, testLogger())
	require.NoError(t, err)

	stale, err := store.Stage(ctx, "inst-1", "stale.pdf", strings.NewReader("old"))
	require.NoError(t, err)
	fresh, err := store.Stage(ctx, "inst-2", "fresh.pdf", strings.NewReader("new"))
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, string(stale)), old, old))

	removed, err := store.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Open(stale)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	r, err := store.Open(fresh)
	require.NoError(t, err)
	r.Close()
}
