// Package storetest holds the behaviour every submission.Store must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DocScrub/internal/model"
	"github.com/dharsanguruparan/DocScrub/internal/submission"
)

// Run exercises a fresh store from newStore in each subtest.
func Run(t *testing.T, newStore func(t *testing.T) submission.Store) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("Lifecycle", func(t *testing.T) { testLifecycle(t, newStore(t)) })
	t.Run("FailFromQueued", func(t *testing.T) { testFailFromQueued(t, newStore(t)) })
	t.Run("TransitionsNeverRegress", func(t *testing.T) { testNoRegress(t, newStore(t)) })
	t.Run("RateAnyStatus", func(t *testing.T) { testRate(t, newStore(t)) })
	t.Run("ListNewestFirst", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("ConcurrentProcessingClaim", func(t *testing.T) { testConcurrentClaim(t, newStore(t)) })
}

func newRecord() *model.Submission {
	return &model.Submission{
		ID:          uuid.NewString(),
		Filename:    "contract.pdf",
		ContentType: "application/pdf",
		Replacements: model.Replacements{
			{Old: "Acme Corp", New: "REDACTED"},
			{Old: "Zed", New: "A"},
		},
	}
}

func testCreateAndGet(t *testing.T, s submission.Store) {
	ctx := context.Background()
	rec := newRecord()
	require.NoError(t, s.Create(ctx, rec))
	assert.Equal(t, model.StatusQueued, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "contract.pdf", got.Filename)
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Equal(t, model.StatusQueued, got.Status)
	assert.Equal(t, rec.Replacements, got.Replacements, "pair order survives storage")
	assert.Nil(t, got.OutputLocation)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.Rating)
}

func testGetMissing(t *testing.T, s submission.Store) {
	ctx := context.Background()
	_, err := s.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.MarkProcessing(ctx, "does-not-exist"), model.ErrNotFound)
	_, err = s.Rate(ctx, "does-not-exist", 3, nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testLifecycle(t *testing.T, s submission.Store) {
	ctx := context.Background()
	rec := newRecord()
	require.NoError(t, s.Create(ctx, rec))

	require.NoError(t, s.MarkProcessing(ctx, rec.ID))
	processing, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, processing.Status)
	assert.True(t, processing.UpdatedAt.After(rec.UpdatedAt) || processing.UpdatedAt.Equal(rec.UpdatedAt))

	require.NoError(t, s.MarkDone(ctx, rec.ID, "/out/"+rec.ID+".sanitized.pdf", 3))
	done, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, done.Status)
	require.NotNil(t, done.OutputLocation)
	assert.Equal(t, "/out/"+rec.ID+".sanitized.pdf", *done.OutputLocation)
	require.NotNil(t, done.ReplacedCount)
	assert.Equal(t, 3, *done.ReplacedCount)
	assert.Nil(t, done.ErrorMessage)
	assert.Nil(t, done.ErrorKind)
	assert.False(t, done.UpdatedAt.Before(processing.UpdatedAt))
}

func testFailFromQueued(t *testing.T, s submission.Store) {
	ctx := context.Background()
	rec := newRecord()
	require.NoError(t, s.Create(ctx, rec))
	require.NoError(t, s.MarkFailed(ctx, rec.ID, model.ErrorScheduling, "queue closed"))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorKind)
	assert.Equal(t, model.ErrorScheduling, *got.ErrorKind)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "queue closed", *got.ErrorMessage)
	assert.Nil(t, got.OutputLocation)
}

func testNoRegress(t *testing.T, s submission.Store) {
	ctx := context.Background()
	rec := newRecord()
	require.NoError(t, s.Create(ctx, rec))

	assert.ErrorIs(t, s.MarkDone(ctx, rec.ID, "x", 1), model.ErrInvalidTransition, "done requires processing")
	require.NoError(t, s.MarkProcessing(ctx, rec.ID))
	assert.ErrorIs(t, s.MarkProcessing(ctx, rec.ID), model.ErrInvalidTransition)
	require.NoError(t, s.MarkFailed(ctx, rec.ID, model.ErrorUnparseable, "bad pdf"))
	assert.ErrorIs(t, s.MarkDone(ctx, rec.ID, "x", 1), model.ErrInvalidTransition)
	assert.ErrorIs(t, s.MarkProcessing(ctx, rec.ID), model.ErrInvalidTransition)
	assert.ErrorIs(t, s.MarkFailed(ctx, rec.ID, model.ErrorInternal, "again"), model.ErrInvalidTransition)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "bad pdf", *got.ErrorMessage)
}

func testRate(t *testing.T, s submission.Store) {
	ctx := context.Background()
	rec := newRecord()
	require.NoError(t, s.Create(ctx, rec))

	note := "looks right"
	rated, err := s.Rate(ctx, rec.ID, 4, &note)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, rated.Status)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, *rated.Rating)
	assert.Equal(t, "looks right", *rated.RatingNote)

	rated, err = s.Rate(ctx, rec.ID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, *rated.Rating, "later rating overwrites")
	assert.Nil(t, rated.RatingNote)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *got.Rating)
}

func testList(t *testing.T, s submission.Store) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		rec := newRecord()
		rec.Filename = fmt.Sprintf("doc-%d.pdf", i)
		require.NoError(t, s.Create(ctx, rec))
		ids = append(ids, rec.ID)
		time.Sleep(2 * time.Millisecond)
	}

	all, err := s.List(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, rec := range all {
		assert.Equal(t, ids[len(ids)-1-i], rec.ID)
	}

	page, err := s.List(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)

	empty, err := s.List(ctx, 10, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testConcurrentClaim(t *testing.T, s submission.Store) {
	ctx := context.Background()
	rec := newRecord()
	require.NoError(t, s.Create(ctx, rec))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.MarkProcessing(ctx, rec.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "exactly one caller claims a queued record")
}
