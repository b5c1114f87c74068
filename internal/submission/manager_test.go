package submission_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DocScrub/internal/artifact"
	"github.com/dharsanguruparan/DocScrub/internal/model"
	"github.com/dharsanguruparan/DocScrub/internal/pdf/pdftest"
	"github.com/dharsanguruparan/DocScrub/internal/processing"
	"github.com/dharsanguruparan/DocScrub/internal/redact"
	"github.com/dharsanguruparan/DocScrub/internal/storage"
	"github.com/dharsanguruparan/DocScrub/internal/submission"
)

type harness struct {
	manager *submission.Manager
	store   *storage.MemoryStore
	files   *artifact.FileStore
	pool    *processing.Processor
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, workers int) *harness {
	t.Helper()
	dir := t.TempDir()
	files, err := artifact.NewFileStore(dir+"/uploads", dir+"/outputs")
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	m := submission.NewManager(store, files, redact.New())
	pool := processing.New(m, workers, 16)
	m.SetScheduler(pool)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	h := &harness{manager: m, store: store, files: files, pool: pool, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		pool.Wait()
	})
	return h
}

func (h *harness) await(t *testing.T, id string) *model.Submission {
	t.Helper()
	var rec *model.Submission
	require.Eventually(t, func() bool {
		var err error
		rec, err = h.manager.Get(context.Background(), id)
		return err == nil && rec.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
	return rec
}

func acmeUpload(pairs model.Replacements) submission.CreateInput {
	doc := pdftest.Build(
		[]pdftest.Line{pdftest.At(72, 700, "Acme Corp"), pdftest.At(72, 680, "Acme Corp signs here")},
		[]pdftest.Line{pdftest.At(72, 700, "Property of Acme Corp")},
	)
	return submission.CreateInput{
		Filename:     "contract.pdf",
		ContentType:  "application/pdf",
		Body:         bytes.NewReader(doc),
		Size:         int64(len(doc)),
		Replacements: pairs,
	}
}

func TestCreateAndProcess(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	rec, err := h.manager.Create(ctx, acmeUpload(model.Replacements{
		{Old: "Acme Corp", New: "REDACTED"},
		{Old: "", New: "ignored"},
	}))
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, rec.Status)
	assert.Len(t, rec.ID, 32)
	assert.Nil(t, rec.OutputLocation)

	done := h.await(t, rec.ID)
	require.Equal(t, model.StatusDone, done.Status, "error: %v", done.ErrorMessage)
	require.NotNil(t, done.ReplacedCount)
	assert.Equal(t, 3, *done.ReplacedCount)
	assert.Nil(t, done.ErrorMessage)

	rc, _, err := h.manager.OpenOutput(ctx, rec.ID)
	require.NoError(t, err)
	defer rc.Close()
	out, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestCreateRejectsNonPDF(t *testing.T) {
	h := newHarness(t, 1)
	in := acmeUpload(nil)
	in.ContentType = "image/png"

	_, err := h.manager.Create(context.Background(), in)
	var verr *submission.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, submission.ErrUnsupportedMediaType)

	all, err := h.manager.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, all, "nothing is recorded for a rejected upload")
}

func TestCorruptUploadFails(t *testing.T) {
	h := newHarness(t, 1)
	junk := []byte("%PDF-1.4 this is not a document")
	rec, err := h.manager.Create(context.Background(), submission.CreateInput{
		Filename:     "broken.pdf",
		ContentType:  "application/pdf",
		Body:         bytes.NewReader(junk),
		Size:         int64(len(junk)),
		Replacements: model.Replacements{{Old: "a", New: "b"}},
	})
	require.NoError(t, err)

	failed := h.await(t, rec.ID)
	assert.Equal(t, model.StatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorKind)
	assert.Equal(t, model.ErrorUnparseable, *failed.ErrorKind)
	require.NotNil(t, failed.ErrorMessage)
	assert.NotEmpty(t, *failed.ErrorMessage)
	assert.Nil(t, failed.OutputLocation)

	_, _, err = h.manager.OpenOutput(context.Background(), rec.ID)
	assert.ErrorIs(t, err, submission.ErrNotReady)
}

func TestConcurrentSubmissionsAreIsolated(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		ids [2]string
	)
	junk := []byte("garbage")
	inputs := [2]submission.CreateInput{
		acmeUpload(model.Replacements{{Old: "Acme Corp", New: "X"}}),
		{Filename: "contract.pdf", ContentType: "application/pdf", Body: bytes.NewReader(junk), Size: int64(len(junk))},
	}
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := h.manager.Create(ctx, inputs[i])
			if assert.NoError(t, err) {
				ids[i] = rec.ID
			}
		}(i)
	}
	wg.Wait()
	require.NotEmpty(t, ids[0])
	require.NotEmpty(t, ids[1])
	require.NotEqual(t, ids[0], ids[1])

	assert.Equal(t, model.StatusDone, h.await(t, ids[0]).Status)
	assert.Equal(t, model.StatusFailed, h.await(t, ids[1]).Status)
}

func TestExecuteSkipsClaimedSubmission(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	rec, err := h.manager.Create(ctx, acmeUpload(nil))
	require.NoError(t, err)
	h.await(t, rec.ID)

	assert.NoError(t, h.manager.Execute(ctx, rec.ID), "redelivery is a no-op")
	assert.Error(t, h.manager.Execute(ctx, "unknown"))
}

func TestOpenOutputMissingArtifact(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	rec, err := h.manager.Create(ctx, acmeUpload(nil))
	require.NoError(t, err)
	done := h.await(t, rec.ID)
	require.Equal(t, model.StatusDone, done.Status)

	require.NoError(t, os.Remove(*done.OutputLocation))
	_, _, err = h.manager.OpenOutput(ctx, rec.ID)
	assert.ErrorIs(t, err, submission.ErrOutputMissing)

	_, _, err = h.manager.OpenOutput(ctx, "unknown")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRate(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	rec, err := h.manager.Create(ctx, acmeUpload(nil))
	require.NoError(t, err)

	note := "good"
	rated, err := h.manager.Rate(ctx, rec.ID, submission.RateInput{Rating: 5, Note: &note})
	require.NoError(t, err)
	assert.Equal(t, 5, *rated.Rating)

	_, err = h.manager.Rate(ctx, rec.ID, submission.RateInput{Rating: 6})
	var verr *submission.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "rating")

	long := string(bytes.Repeat([]byte("é"), 501))
	_, err = h.manager.Rate(ctx, rec.ID, submission.RateInput{Rating: 3, Note: &long})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "note")

	_, err = h.manager.Rate(ctx, "unknown", submission.RateInput{Rating: 3})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

type failingScheduler struct{}

func (failingScheduler) Schedule(context.Context, string) error {
	return errors.New("queue unavailable")
}

func TestSchedulingFailureIsRecorded(t *testing.T) {
	dir := t.TempDir()
	files, err := artifact.NewFileStore(dir+"/u", dir+"/o")
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	m := submission.NewManager(store, files, redact.New())
	m.SetScheduler(failingScheduler{})

	_, err = m.Create(context.Background(), acmeUpload(nil))
	require.Error(t, err)

	all, err := m.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.StatusFailed, all[0].Status)
	assert.Equal(t, model.ErrorScheduling, *all[0].ErrorKind)
}

type rejectingStore struct {
	*storage.MemoryStore
}

func (rejectingStore) Create(context.Context, *model.Submission) error {
	return errors.New("database unavailable")
}

func TestCreateRemovesUploadWhenRecordFails(t *testing.T) {
	dir := t.TempDir()
	files, err := artifact.NewFileStore(dir+"/u", dir+"/o")
	require.NoError(t, err)
	m := submission.NewManager(rejectingStore{storage.NewMemoryStore()}, files, redact.New())
	m.SetScheduler(failingScheduler{})

	_, err = m.Create(context.Background(), acmeUpload(nil))
	require.ErrorContains(t, err, "database unavailable")

	entries, err := os.ReadDir(dir + "/u")
	require.NoError(t, err)
	assert.Empty(t, entries, "no upload left without a record")
}

func TestListBounds(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.manager.Create(ctx, acmeUpload(nil))
		require.NoError(t, err)
	}
	all, err := h.manager.List(ctx, -5, -5)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	one, err := h.manager.List(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
