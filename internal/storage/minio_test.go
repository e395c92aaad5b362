package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/sharebox/internal/logger"
)

const testBucket = "sharebox"

var uuidPrefix = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func TestNewStoredName(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want string
	}{
		{"keeps extension", ".txt", ".txt"},
		{"lowercases", ".PDF", ".pdf"},
		{"no extension", "", ""},
		{"sixteen chars kept", ".abcdefghijklmno", ".abcdefghijklmno"},
		{"too long dropped", ".abcdefghijklmnop", ""},
		{"slash dropped", "./../etc", ""},
		{"backslash dropped", `.a\b`, ""},
		{"space dropped", ".tar gz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewStoredName(tt.ext)
			prefix := uuidPrefix.FindString(got)
			require.NotEmpty(t, prefix, got)
			assert.Equal(t, tt.want, strings.TrimPrefix(got, prefix))
		})
	}

	assert.NotEqual(t, NewStoredName(".txt"), NewStoredName(".txt"))
}

// s3Stub answers the handful of S3 calls the blob store makes
type s3Stub struct {
	mu        sync.Mutex
	failParts bool
	partSizes []int64
	completed []string
	aborted   []string
	deleted   []string
}

func (s *s3Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := r.URL.Query()
	path := strings.TrimSuffix(r.URL.Path, "/")
	key := strings.TrimPrefix(path, "/"+testBucket+"/")

	switch {
	case q.Has("location"):
		fmt.Fprint(w, `<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
	case r.Method == http.MethodHead && path == "/"+testBucket:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && q.Has("uploads"):
		fmt.Fprintf(w, `<InitiateMultipartUploadResult><Bucket>%s</Bucket><Key>%s</Key><UploadId>upload-1</UploadId></InitiateMultipartUploadResult>`, testBucket, key)
	case r.Method == http.MethodPut && q.Has("partNumber"):
		n, _ := io.Copy(io.Discard, r.Body)
		// streaming signatures add chunk framing to the body
		if decoded := r.Header.Get("X-Amz-Decoded-Content-Length"); decoded != "" {
			n, _ = strconv.ParseInt(decoded, 10, 64)
		}
		if s.failParts {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `<Error><Code>AccessDenied</Code><Message>Access Denied.</Message></Error>`)
			return
		}
		s.partSizes = append(s.partSizes, n)
		w.Header().Set("ETag", `"etag-`+q.Get("partNumber")+`"`)
	case r.Method == http.MethodPost && q.Has("uploadId"):
		io.Copy(io.Discard, r.Body)
		s.completed = append(s.completed, key)
		fmt.Fprintf(w, `<CompleteMultipartUploadResult><Bucket>%s</Bucket><Key>%s</Key><ETag>"done"</ETag></CompleteMultipartUploadResult>`, testBucket, key)
	case r.Method == http.MethodDelete && q.Has("uploadId"):
		s.aborted = append(s.aborted, key)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodDelete:
		s.deleted = append(s.deleted, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func setupMinio(t *testing.T, stub *s3Stub, partSize uint64) *MinioClient {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	mc, err := NewMinioClient(context.Background(), MinioOptions{
		Endpoint:   u.Host,
		AccessKey:  "access",
		SecretKey:  "secret",
		BucketName: testBucket,
		Region:     "us-east-1",
		PartSize:   partSize,
	}, logger.NewNop())
	require.NoError(t, err)
	return mc
}

func TestPutOptionsBoundPartSize(t *testing.T) {
	mc := &MinioClient{partSize: DefaultPartSize}

	opts := mc.putOptions("")
	assert.Equal(t, uint64(DefaultPartSize), opts.PartSize)
	assert.Equal(t, "application/octet-stream", opts.ContentType)

	assert.Equal(t, "text/plain", mc.putOptions("text/plain").ContentType)
}

func TestNewMinioClientDefaultsPartSize(t *testing.T) {
	mc := setupMinio(t, &s3Stub{}, 0)
	assert.Equal(t, uint64(DefaultPartSize), mc.partSize)
}

func TestPutBlobUploadsInBoundedParts(t *testing.T) {
	const partSize = 5 << 20
	stub := &s3Stub{}
	mc := setupMinio(t, stub, partSize)

	data := bytes.Repeat([]byte("x"), partSize+1<<20)
	key, err := mc.PutBlob(context.Background(), bytes.NewReader(data), "text/plain", ".txt")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(key, ".txt"))
	assert.Equal(t, []int64{partSize, 1 << 20}, stub.partSizes)
	assert.Equal(t, []string{key}, stub.completed)
}

func TestPutBlobReturnsKeyOnFailure(t *testing.T) {
	stub := &s3Stub{failParts: true}
	mc := setupMinio(t, stub, 5<<20)

	key, err := mc.PutBlob(context.Background(), strings.NewReader("hello"), "text/plain", ".md")
	require.Error(t, err)

	assert.NotEmpty(t, key)
	assert.True(t, strings.HasSuffix(key, ".md"))
	assert.Equal(t, []string{key}, stub.aborted)
	assert.Empty(t, stub.completed)
}

func TestDeleteBlob(t *testing.T) {
	stub := &s3Stub{}
	mc := setupMinio(t, stub, 0)

	require.NoError(t, mc.DeleteBlob(context.Background(), "abc.txt"))
	assert.Equal(t, []string{"abc.txt"}, stub.deleted)
}
