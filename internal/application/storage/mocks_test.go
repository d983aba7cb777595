package storage_test

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/erp/docservice/internal/domain/document"
	"github.com/erp/docservice/internal/infrastructure/remotefile"
)

// callLog records the order of backend calls across collaborators.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, c := range l.all() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// =============================================================================
// Mock Implementations
// =============================================================================

type MockSessions struct {
	mock.Mock
	log *callLog
}

func (m *MockSessions) Acquire(ctx context.Context) (*document.Session, error) {
	m.log.add("acquire")
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Session), args.Error(1)
}

func (m *MockSessions) Release(ctx context.Context, s *document.Session, opts remotefile.ReleaseOptions) {
	m.log.add("release")
	m.Called(ctx, s, opts)
}

type MockRemote struct {
	mock.Mock
	log *callLog
}

func (m *MockRemote) Upload(ctx context.Context, s *document.Session, req document.UploadRequest) (document.StorageLocator, error) {
	m.log.add("remote upload " + req.RelativePath)
	args := m.Called(ctx, s, req)
	return args.Get(0).(document.StorageLocator), args.Error(1)
}

func (m *MockRemote) Download(ctx context.Context, s *document.Session, rel string) ([]byte, error) {
	m.log.add("remote download " + rel)
	args := m.Called(ctx, s, rel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRemote) Move(ctx context.Context, s *document.Session, src, dst string) error {
	m.log.add("remote move " + src + " " + dst)
	args := m.Called(ctx, s, src, dst)
	return args.Error(0)
}

func (m *MockRemote) List(ctx context.Context, s *document.Session, dir string) ([]document.FileEntry, error) {
	m.log.add("remote list " + dir)
	args := m.Called(ctx, s, dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.FileEntry), args.Error(1)
}

func (m *MockRemote) FullPath(rel string) string {
	return path.Join("/data/documents", rel)
}

type MockPrinter struct {
	mock.Mock
	log *callLog
}

func (m *MockPrinter) Print(ctx context.Context, job document.PrintJob) error {
	m.log.add("print " + job.Locator.String())
	args := m.Called(ctx, job)
	return args.Error(0)
}

// fakeObjects is an in-memory object store with key prefix "docs/".
type fakeObjects struct {
	mu      sync.Mutex
	log     *callLog
	objects map[string][]byte
	failOn  map[string]error
}

func newFakeObjects(log *callLog) *fakeObjects {
	return &fakeObjects{log: log, objects: map[string][]byte{}, failOn: map[string]error{}}
}

func (f *fakeObjects) fail(call string) error {
	f.log.add(call)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failOn[call]
}

func (f *fakeObjects) Upload(_ context.Context, req document.UploadRequest) (document.StorageLocator, error) {
	if err := f.fail("object upload " + req.RelativePath); err != nil {
		return document.StorageLocator{}, err
	}
	f.mu.Lock()
	f.objects[req.RelativePath] = req.Payload
	f.mu.Unlock()
	return document.NewObjectLocator(f.Bucket(), f.Key(req.RelativePath), req.RelativePath, "https://docs-bucket.s3.eu-west-1.amazonaws.com/"+f.Key(req.RelativePath), int64(len(req.Payload))), nil
}

func (f *fakeObjects) Download(_ context.Context, rel string) ([]byte, error) {
	if err := f.fail("object download " + rel); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[rel]
	if !ok {
		return nil, document.NewDownloadError("object store download", "object not found", nil)
	}
	return data, nil
}

func (f *fakeObjects) Copy(_ context.Context, src, dst string) error {
	if err := f.fail("object copy " + src); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[dst] = f.objects[src]
	return nil
}

func (f *fakeObjects) Delete(_ context.Context, rel string) error {
	if err := f.fail("object delete " + rel); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, rel)
	return nil
}

func (f *fakeObjects) List(_ context.Context, prefix string) ([]string, error) {
	if err := f.fail("object list " + prefix); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeObjects) Bucket() string { return "docs-bucket" }

func (f *fakeObjects) Key(rel string) string { return "docs/" + strings.TrimLeft(rel, "/") }

func (f *fakeObjects) Relative(key string) string { return strings.TrimPrefix(key, "docs/") }

func (f *fakeObjects) has(rel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[rel]
	return ok
}
