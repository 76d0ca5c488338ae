package storage_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/MotionAge/sn-sub000/internal/config"
	"github.com/MotionAge/sn-sub000/internal/storage"
)

func TestMemoryStoreOverwritesSameKey(t *testing.T) {
	st := storage.NewMemoryStore("https://files.example.org")
	ctx := context.Background()

	url, err := st.Upload(ctx, "certificates/membership-CERT-M-2024-1.pdf", []byte("v1"), "application/pdf")
	require.NoError(t, err)
	require.Equal(t, "https://files.example.org/certificates/membership-CERT-M-2024-1.pdf", url)

	again, err := st.Upload(ctx, "certificates/membership-CERT-M-2024-1.pdf", []byte("v2"), "application/pdf")
	require.NoError(t, err)
	require.Equal(t, url, again)
	require.Equal(t, 1, st.Len())

	obj, ok := st.Get("certificates/membership-CERT-M-2024-1.pdf")
	require.True(t, ok)
	require.Equal(t, "v2", string(obj.Body))
	require.Equal(t, "application/pdf", obj.ContentType)
}

func TestMemoryStoreRejectsBadKeys(t *testing.T) {
	st := storage.NewMemoryStore("")
	_, err := st.Upload(context.Background(), "", nil, "application/pdf")
	require.ErrorIs(t, err, storage.ErrInvalidKey)
	_, err = st.Upload(context.Background(), "../etc/passwd", nil, "text/plain")
	require.ErrorIs(t, err, storage.ErrInvalidKey)
}

type recordingPut struct {
	mu    sync.Mutex
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (r *recordingPut) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input = in
	r.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, r.err
}

func TestS3StoreUpload(t *testing.T) {
	api := &recordingPut{}
	st := &storage.S3Store{Client: api, Bucket: "docs", PublicBase: "https://cdn.example.org"}

	url, err := st.Upload(context.Background(), "receipts/donation-RCP-D-2024-1.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.org/receipts/donation-RCP-D-2024-1.pdf", url)
	require.Equal(t, "docs", *api.input.Bucket)
	require.Equal(t, "receipts/donation-RCP-D-2024-1.pdf", *api.input.Key)
	require.Equal(t, "application/pdf", *api.input.ContentType)
	require.Equal(t, "%PDF", string(api.body))

	api.err = errors.New("access denied")
	_, err = st.Upload(context.Background(), "receipts/x.pdf", []byte("x"), "application/pdf")
	require.Error(t, err)
}

func TestS3StoreAgainstCompatibleEndpoint(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := storage.FromConfig(context.Background(), config.StorageConfig{
		Driver:          "s3",
		Bucket:          "docs",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "secret",
		ForcePathStyle:  true,
	}, "")
	require.NoError(t, err)

	url, err := up.Upload(context.Background(), "certificates/honor-CERT-H-1.pdf", []byte("%PDF-1.3"), "application/pdf")
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/docs/certificates/honor-CERT-H-1.pdf", gotPath)
	require.Equal(t, srv.URL+"/docs/certificates/honor-CERT-H-1.pdf", url)
}

func TestFromConfigMemoryDefaultsToAPIFiles(t *testing.T) {
	up, err := storage.FromConfig(context.Background(), config.StorageConfig{Driver: "memory"}, "http://localhost:8080")
	require.NoError(t, err)
	url, err := up.Upload(context.Background(), "receipts/a.pdf", []byte("x"), "application/pdf")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/files/receipts/a.pdf", url)
}

func TestMemoryStoreServesObjects(t *testing.T) {
	st := storage.NewMemoryStore("http://localhost:8080/files")
	_, err := st.Upload(context.Background(), "receipts/b.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)

	h := http.StripPrefix("/files/", st)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/receipts/b.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Equal(t, "%PDF", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/receipts/missing.pdf", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
