package indiclient

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rickbassham/logging"
	"github.com/spf13/afero"
)

// blobKey identifies one BLOB element within one device's property.
type blobKey struct {
	device   string
	property string
	value    string
}

// storedBlob is what BlobStore remembers about the most recently ingested
// BLOB for a key. available is cleared by GetBlob so a replayed read fails
// with ErrBlobNotFound instead of silently returning stale bytes --
// grounded on jnmorley's indiclient.go, which resets Value/Size to zero
// after a successful GetBlob for exactly this reason.
type storedBlob struct {
	path      string
	size      int64
	format    string
	available bool
}

// BlobStore persists incoming BLOB payloads to an afero filesystem (BLOBs
// can be large enough that keeping them resident on the Property forever is
// wasteful) and fans them out to live subscribers created by
// GetBlobStream, mirroring the teacher's client-level GetBlob/
// GetBlobStream/CloseBlobStream trio one level down, decoupled from the
// Registry's in-memory Value model.
type BlobStore struct {
	fs  afero.Fs
	log logging.Logger

	mu      sync.Mutex
	files   map[blobKey]storedBlob
	streams map[blobKey]map[string]io.WriteCloser
}

// NewBlobStore creates a store backed by fs (typically afero.NewOsFs() in
// production, an afero.NewMemMapFs() in tests).
func NewBlobStore(fs afero.Fs, log logging.Logger) *BlobStore {
	return &BlobStore{
		fs:      fs,
		log:     log,
		files:   map[blobKey]storedBlob{},
		streams: map[blobKey]map[string]io.WriteCloser{},
	}
}

// ingest is called by the registry whenever a Blob-kind value is applied; it
// writes the decoded bytes to disk and pushes them to any open streams.
func (b *BlobStore) ingest(device, property, valueName string, data []byte, format string) {
	key := blobKey{device, property, valueName}
	path := fmt.Sprintf("/blobs/%s-%s-%s-%s", device, property, valueName, uuid.New().String())

	f, err := b.fs.Create(path)
	if err != nil {
		b.log.WithField("path", path).WithError(err).Error("blob store create failed")
		return
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		b.log.WithField("path", path).Error("blob store write failed")
		return
	}

	b.mu.Lock()
	b.files[key] = storedBlob{path: path, size: int64(len(data)), format: format, available: true}
	writers := make([]io.WriteCloser, 0, len(b.streams[key]))
	for _, w := range b.streams[key] {
		writers = append(writers, w)
	}
	b.mu.Unlock()

	for _, w := range writers {
		if _, err := w.Write(data); err != nil {
			b.log.WithError(err).Warn("blob stream subscriber write failed")
		}
	}
}

// GetBlob opens the most recently received BLOB for (device, property,
// value). The read is one-shot: once returned, the same BLOB cannot be
// retrieved again until the server sends a new one (ErrBlobNotFound on
// replay), matching jnmorley's semantics rather than the teacher's, which
// allows unlimited re-reads of a stale file.
func (b *BlobStore) GetBlob(device, property, valueName string) (rdr io.ReadCloser, size int64, format string, err error) {
	key := blobKey{device, property, valueName}

	b.mu.Lock()
	stored, ok := b.files[key]
	if !ok || !stored.available {
		b.mu.Unlock()
		return nil, 0, "", ErrBlobNotFound
	}
	stored.available = false
	b.files[key] = stored
	b.mu.Unlock()

	f, err := b.fs.Open(stored.path)
	if err != nil {
		return nil, 0, "", err
	}
	return f, stored.size, stored.format, nil
}

// GetBlobStream opens a live feed of every future BLOB received for
// (device, property, value) as an io.Pipe, identified by a uuid the caller
// passes back to CloseBlobStream.
func (b *BlobStore) GetBlobStream(device, property, valueName string) (rdr io.ReadCloser, id string, err error) {
	key := blobKey{device, property, valueName}
	r, w := io.Pipe()
	id = uuid.New().String()

	b.mu.Lock()
	if b.streams[key] == nil {
		b.streams[key] = map[string]io.WriteCloser{}
	}
	b.streams[key][id] = w
	b.mu.Unlock()

	return r, id, nil
}

// CloseBlobStream closes and forgets the stream created by GetBlobStream.
func (b *BlobStore) CloseBlobStream(device, property, valueName, id string) error {
	key := blobKey{device, property, valueName}

	b.mu.Lock()
	defer b.mu.Unlock()
	writers, ok := b.streams[key]
	if !ok {
		return nil
	}
	if w, ok := writers[id]; ok {
		w.Close()
		delete(writers, id)
	}
	return nil
}
