package results

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srq20.org/internal/ids"
	"srq20.org/internal/questionnaire"
	"srq20.org/internal/storage"
)

func sampleResult(score int, band questionnaire.Band) *questionnaire.Result {
	return &questionnaire.Result{
		Assessment: questionnaire.Assessment{
			ID:          7,
			UserID:      1,
			Score:       score,
			Band:        band,
			EvaluatedAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		},
		Activities: []questionnaire.Activity{
			{ID: 3, Band: band, Description: "Conversar com amigos"},
		},
	}
}

func TestLoadWithoutSaveIsNoResult(t *testing.T) {
	s := New(storage.NewMemory())
	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, ErrNoResult)
}

func TestSaveThenLoad(t *testing.T) {
	s := New(storage.NewMemory())
	fixed := time.Date(2024, 5, 1, 12, 31, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	want := sampleResult(9, questionnaire.BandModerate)
	require.NoError(t, s.Save(context.Background(), want))

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(want, snap.Result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, snap.SavedAt.Equal(fixed))
	at, ok := ids.Time(snap.ID)
	require.True(t, ok)
	assert.True(t, at.Equal(fixed))
}

func TestSaveOverwrites(t *testing.T) {
	s := New(storage.NewMemory())
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleResult(3, questionnaire.BandMild)))
	first, err := s.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, sampleResult(17, questionnaire.BandSevere)))
	second, err := s.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 17, second.Result.Assessment.Score)
	assert.Equal(t, questionnaire.BandSevere, second.Result.Assessment.Band)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestUnknownBandPreserved(t *testing.T) {
	s := New(storage.NewMemory())
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleResult(4, questionnaire.Band("Indefinido"))))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, questionnaire.Band("Indefinido"), snap.Result.Assessment.Band)
	assert.Equal(t, "Indefinido", snap.Result.Assessment.Band.Label())
	assert.False(t, snap.Result.Assessment.Band.Known())
}

func TestResultSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "sqlite:" + filepath.Join(t.TempDir(), "state.db")

	state, err := storage.Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, New(state).Save(ctx, sampleResult(12, questionnaire.BandModerate)))
	require.NoError(t, state.Close())

	reopened, err := storage.Open(ctx, dsn)
	require.NoError(t, err)
	defer reopened.Close()

	snap, err := New(reopened).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, snap.Result.Assessment.Score)
	assert.Len(t, snap.Result.Activities, 1)
}

func TestCorruptSnapshot(t *testing.T) {
	state := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, state.Set(ctx, Key, "{broken"))

	_, err := New(state).Load(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoResult))
}

func TestClear(t *testing.T) {
	s := New(storage.NewMemory())
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleResult(1, questionnaire.BandMild)))
	require.NoError(t, s.Clear(ctx))
	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNoResult)
}

func TestSaveNil(t *testing.T) {
	require.Error(t, New(storage.NewMemory()).Save(context.Background(), nil))
}
