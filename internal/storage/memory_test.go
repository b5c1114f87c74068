package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DocScrub/internal/model"
	"github.com/dharsanguruparan/DocScrub/internal/submission"
	"github.com/dharsanguruparan/DocScrub/internal/submission/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) submission.Store { return NewMemoryStore() })
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := &model.Submission{ID: "a", Replacements: model.Replacements{{Old: "x", New: "y"}}}
	require.NoError(t, s.Create(ctx, rec))

	rec.Replacements[0].New = "mutated"
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "y", got.Replacements[0].New)

	got.Status = model.StatusDone
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, again.Status)
}

func TestMemoryStoreRejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, &model.Submission{ID: "a"}))
	assert.Error(t, s.Create(ctx, &model.Submission{ID: "a"}))
}
