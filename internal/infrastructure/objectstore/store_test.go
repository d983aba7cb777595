package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/docservice/internal/domain/document"
	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
)

// fakeS3 is an in-memory bucket that records every call.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	calls    []string
	pageSize int
	failOn   map[string]error
	lastCopy *s3.CopyObjectInput
	lastPut  *s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, pageSize: 1000, failOn: map[string]error{}}
}

func (f *fakeS3) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := f.record("put " + *in.Key); err != nil {
		return nil, err
	}
	data, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	f.objects[*in.Key] = data
	f.lastPut = in
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := f.record("get " + *in.Key); err != nil {
		return nil, err
	}
	f.mu.Lock()
	data, ok := f.objects[*in.Key]
	f.mu.Unlock()
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	if err := f.record("copy " + *in.Key); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCopy = in
	src := strings.TrimPrefix(*in.CopySource, *in.Bucket+"/")
	for k, v := range f.objects {
		if escapeKey(k) == src {
			f.objects[*in.Key] = v
			return &s3.CopyObjectOutput{}, nil
		}
	}
	return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if err := f.record("delete " + *in.Key); err != nil {
		return nil, err
	}
	f.mu.Lock()
	delete(f.objects, *in.Key)
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if err := f.record("head " + *in.Bucket); err != nil {
		return nil, err
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if err := f.record("list " + aws.ToString(in.Prefix)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start = sort.SearchStrings(keys, tok)
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeS3) {
	t.Helper()
	fake := newFakeS3()
	s, err := New(fake, "docs-bucket", opts...)
	require.NoError(t, err)
	return s, fake
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "docs-bucket")
	require.Error(t, err)

	_, err = New(newFakeS3(), "")
	require.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("nil config", func(t *testing.T) {
		_, err := NewFromConfig(ctx, nil)
		require.Error(t, err)
	})

	t.Run("access key without secret", func(t *testing.T) {
		_, err := NewFromConfig(ctx, &infraconfig.ObjectStoreConfig{Bucket: "docs-bucket", AccessKey: "AKIA"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key")
	})

	t.Run("custom endpoint", func(t *testing.T) {
		s, err := NewFromConfig(ctx, &infraconfig.ObjectStoreConfig{
			Bucket:       "docs-bucket",
			Region:       "eu-central-1",
			Endpoint:     "minio.local:9000",
			AccessKey:    "key",
			SecretKey:    "secret",
			UsePathStyle: true,
			KeyPrefix:    "/archive/",
		})
		require.NoError(t, err)
		assert.Equal(t, "docs-bucket", s.Bucket())
		assert.Equal(t, "archive/a/b.pdf", s.Key("a/b.pdf"))
		assert.Equal(t, "http://minio.local:9000/docs-bucket/archive/a/b.pdf", s.URL("a/b.pdf"))
	})

	t.Run("aws virtual hosted", func(t *testing.T) {
		s, err := NewFromConfig(ctx, &infraconfig.ObjectStoreConfig{
			Bucket:    "docs-bucket",
			Region:    "eu-west-1",
			AccessKey: "key",
			SecretKey: "secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://docs-bucket.s3.eu-west-1.amazonaws.com/a%20b.pdf", s.URL("a b.pdf"))
	})
}

func TestStore_Upload(t *testing.T) {
	s, fake := newTestStore(t, WithKeyPrefix("prefix"))

	loc, err := s.Upload(context.Background(), document.UploadRequest{
		Payload:      []byte("%PDF-1.7"),
		RelativePath: "/klanten/acme/2025/facturen/INV-001.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, document.BackendObjectStore, loc.Backend)
	assert.Equal(t, "klanten/acme/2025/facturen/INV-001.pdf", loc.RelativePath)
	assert.Equal(t, "docs-bucket", loc.Bucket)
	assert.Equal(t, int64(8), loc.SizeHint)
	assert.Equal(t, "prefix/klanten/acme/2025/facturen/INV-001.pdf", loc.Key)
	assert.Equal(t, "s3://docs-bucket/prefix/klanten/acme/2025/facturen/INV-001.pdf", loc.String())

	// The canonical form names the key that was written
	parsed, err := document.ParseLocator(loc.String())
	require.NoError(t, err)
	assert.Equal(t, "docs-bucket", parsed.Bucket)
	assert.Equal(t, aws.ToString(fake.lastPut.Key), parsed.ObjectKey())
	assert.Equal(t, loc.RelativePath, s.Relative(parsed.ObjectKey()))

	assert.Equal(t, []string{"put prefix/klanten/acme/2025/facturen/INV-001.pdf"}, fake.calls)
	assert.Equal(t, document.ContentTypePDF, aws.ToString(fake.lastPut.ContentType))
	assert.Equal(t, int64(8), aws.ToInt64(fake.lastPut.ContentLength))

	// The absolute URI parses back to the same bucket and key
	bucket, key, err := document.ParseObjectURI(loc.AbsoluteURI)
	require.NoError(t, err)
	assert.Equal(t, "docs-bucket", bucket)
	assert.Equal(t, "prefix/klanten/acme/2025/facturen/INV-001.pdf", key)
}

func TestStore_Upload_Errors(t *testing.T) {
	t.Run("empty payload rejected before any call", func(t *testing.T) {
		s, fake := newTestStore(t)
		_, err := s.Upload(context.Background(), document.UploadRequest{RelativePath: "a.pdf"})
		require.ErrorIs(t, err, document.ErrInvalidInput)
		assert.Empty(t, fake.calls)
	})

	t.Run("api error becomes upload error", func(t *testing.T) {
		s, fake := newTestStore(t)
		fake.failOn["put a.pdf"] = &smithy.GenericAPIError{Code: "AccessDenied"}

		_, err := s.Upload(context.Background(), document.UploadRequest{Payload: []byte("x"), RelativePath: "a.pdf"})
		require.ErrorIs(t, err, document.ErrUpload)
		assert.Contains(t, err.Error(), "AccessDenied")
		assert.Equal(t, "AccessDenied", ErrorCode(err))
	})

	t.Run("deadline becomes timeout error", func(t *testing.T) {
		s, fake := newTestStore(t)
		fake.failOn["put a.pdf"] = context.DeadlineExceeded

		_, err := s.Upload(context.Background(), document.UploadRequest{Payload: []byte("x"), RelativePath: "a.pdf"})
		require.ErrorIs(t, err, document.ErrTimeout)
	})
}

func TestStore_Download(t *testing.T) {
	s, fake := newTestStore(t)
	fake.objects["a/doc.pdf"] = []byte("pdf-bytes")
	fake.objects["a/empty.pdf"] = []byte{}

	data, err := s.Download(context.Background(), "a/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), data)

	_, err = s.Download(context.Background(), "a/empty.pdf")
	require.ErrorIs(t, err, document.ErrDownload)
	assert.Contains(t, err.Error(), "empty")

	_, err = s.Download(context.Background(), "a/missing.pdf")
	require.ErrorIs(t, err, document.ErrDownload)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_CopyAndDelete(t *testing.T) {
	s, fake := newTestStore(t)
	fake.objects["old/Factuur 1.pdf"] = []byte("x")

	require.NoError(t, s.Copy(context.Background(), "old/Factuur 1.pdf", "new/Factuur 1.pdf"))
	assert.Equal(t, "docs-bucket/old/Factuur%201.pdf", aws.ToString(fake.lastCopy.CopySource))

	require.NoError(t, s.Delete(context.Background(), "old/Factuur 1.pdf"))
	assert.NotContains(t, fake.objects, "old/Factuur 1.pdf")
	assert.Contains(t, fake.objects, "new/Factuur 1.pdf")

	err := s.Copy(context.Background(), "old/missing.pdf", "new/missing.pdf")
	require.ErrorIs(t, err, document.ErrMove)
}

func TestStore_List_FollowsContinuation(t *testing.T) {
	s, fake := newTestStore(t, WithKeyPrefix("root"))
	fake.pageSize = 2
	for _, k := range []string{"a/1.pdf", "a/2.pdf", "a/3.pdf", "a/4.pdf", "a/5.pdf", "ab/6.pdf"} {
		fake.objects["root/"+k] = []byte("x")
	}

	paths, err := s.List(context.Background(), "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1.pdf", "a/2.pdf", "a/3.pdf", "a/4.pdf", "a/5.pdf"}, paths)

	lists := 0
	for _, c := range fake.calls {
		if strings.HasPrefix(c, "list ") {
			lists++
		}
	}
	assert.Equal(t, 3, lists)
}

func TestStore_Ping(t *testing.T) {
	s, fake := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))

	fake.failOn["head docs-bucket"] = &smithy.GenericAPIError{Code: "NoSuchBucket"}
	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket not found")
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
	assert.Equal(t, "NoSuchKey", ErrorCode(&smithy.GenericAPIError{Code: "NoSuchKey"}))
}
