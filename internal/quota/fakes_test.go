package quota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/models"
)

const mb = int64(1024 * 1024)

type fakeLimits struct {
	mu    sync.Mutex
	limit *models.Limit
	err   error
	calls int
}

func (f *fakeLimits) GetLimit(ctx context.Context) (*models.Limit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.limit == nil {
		return nil, apperrors.ErrNotConfigured
	}
	cp := *f.limit
	return &cp, nil
}

func (f *fakeLimits) set(totalMB int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = &models.Limit{ID: 1, TotalMB: totalMB}
}

// fakeRecords is an in-memory file record store
type fakeRecords struct {
	mu        sync.Mutex
	files     []*models.File
	createErr error
}

func (f *fakeRecords) SumSizeByOwner(ctx context.Context, ownerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, file := range f.files {
		if file.OwnerID == ownerID {
			total += file.Size
		}
	}
	return total, nil
}

func (f *fakeRecords) CreateFile(ctx context.Context, file *models.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *file
	f.files = append(f.files, &cp)
	return nil
}

func (f *fakeRecords) seed(ownerID string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, &models.File{ID: fmt.Sprintf("seed-%d", len(f.files)), OwnerID: ownerID, Size: size})
}

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// fakeBlobs is an in-memory blob store with injectable failures
type fakeBlobs struct {
	mu          sync.Mutex
	blobs       map[string][]byte
	seq         int
	puts        int
	deletes     int
	putErr      error
	deleteFails int
	cancelOnPut context.CancelFunc
	deleteCtxs  []error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: map[string][]byte{}}
}

func (f *fakeBlobs) PutBlob(ctx context.Context, r io.Reader, contentType, ext string) (string, error) {
	f.mu.Lock()
	f.seq++
	f.puts++
	key := fmt.Sprintf("blob-%d%s", f.seq, ext)
	f.mu.Unlock()

	data, err := io.ReadAll(r)
	if err != nil {
		return key, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// a partial object lands before the failure surfaces
	f.blobs[key] = data
	if f.cancelOnPut != nil {
		f.cancelOnPut()
		return key, ctx.Err()
	}
	if f.putErr != nil {
		return key, f.putErr
	}
	return key, nil
}

func (f *fakeBlobs) DeleteBlob(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.deleteCtxs = append(f.deleteCtxs, ctx.Err())
	if f.deleteFails > 0 {
		f.deleteFails--
		return errors.New("minio: connection reset")
	}
	delete(f.blobs, key)
	return nil
}

func (f *fakeBlobs) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[key]
	return ok
}

func (f *fakeBlobs) size(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs[key])
}

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

type fakeLocker struct {
	mu       sync.Mutex
	err      error
	held     map[string]bool
	released int
}

func (f *fakeLocker) Acquire(ctx context.Context, ownerID string) (func(context.Context) error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[ownerID] {
		return nil, apperrors.ErrUploadBusy
	}
	f.held[ownerID] = true
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, ownerID)
		f.released++
		return nil
	}, nil
}
