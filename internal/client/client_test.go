package client_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DocScrub/internal/api"
	"github.com/dharsanguruparan/DocScrub/internal/artifact"
	"github.com/dharsanguruparan/DocScrub/internal/client"
	"github.com/dharsanguruparan/DocScrub/internal/config"
	"github.com/dharsanguruparan/DocScrub/internal/model"
	"github.com/dharsanguruparan/DocScrub/internal/pdf/pdftest"
	"github.com/dharsanguruparan/DocScrub/internal/processing"
	"github.com/dharsanguruparan/DocScrub/internal/redact"
	"github.com/dharsanguruparan/DocScrub/internal/signing"
	"github.com/dharsanguruparan/DocScrub/internal/storage"
	"github.com/dharsanguruparan/DocScrub/internal/submission"
)

func startServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files, err := artifact.NewFileStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "outputs"))
	require.NoError(t, err)
	manager := submission.NewManager(storage.NewMemoryStore(), files, redact.New())
	pool := processing.New(manager, 1, 4)
	manager.SetScheduler(pool)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	cfg := &config.Config{MaxFileSize: 1 << 20, SignedURLTTL: time.Minute, LogLevel: "error", CORSOrigins: []string{"*"}}
	srv := httptest.NewServer(api.New(cfg, manager, signing.NewSigner([]byte("k"))).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		pool.Wait()
	})
	return srv.URL
}

func TestSubmitWaitDownload(t *testing.T) {
	ctx := context.Background()
	c := client.New(startServer(t), nil)
	require.NoError(t, c.Health(ctx))

	path := filepath.Join(t.TempDir(), "memo.pdf")
	require.NoError(t, os.WriteFile(path, pdftest.Build([]pdftest.Line{pdftest.At(72, 700, "Zed met Acme")}), 0o600))

	sub, err := c.Submit(ctx, path, model.Replacements{{Old: "Zed", New: "Someone"}, {Old: "Acme", New: "a company"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, sub.Status)
	assert.Equal(t, "memo.pdf", sub.Filename)
	assert.Equal(t, "Zed", sub.Replacements[0].Old, "order is kept on the wire")

	done, err := c.Wait(ctx, sub.ID, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, model.StatusDone, done.Status)
	assert.Equal(t, 2, *done.ReplacedCount)
	require.NotNil(t, done.OutputURL)

	var buf bytes.Buffer
	n, err := c.Download(ctx, sub.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	note := "ok"
	rated, err := c.Rate(ctx, sub.ID, 5, &note)
	require.NoError(t, err)
	assert.Equal(t, 5, *rated.Rating)

	list, err := c.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAPIErrors(t *testing.T) {
	ctx := context.Background()
	c := client.New(startServer(t), nil)

	_, err := c.Get(ctx, "missing")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Not found", apiErr.Detail)

	_, err = c.Rate(ctx, "missing", 9, nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestPostIsNotRetriedOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
	_, err := client.New(srv.URL, nil).Submit(context.Background(), path, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
