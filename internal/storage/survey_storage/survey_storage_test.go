package surveystorage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"drilltrack/internal/survey"
	"drilltrack/internal/util/logger/handlers/slogdiscard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	config := DefaultConfig()
	config.DBPath = filepath.Join(t.TempDir(), "survey.sqlite")

	storage, err := New(config, slogdiscard.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, storage.Close()) })

	return storage
}

func ptr[T any](v T) *T { return &v }

func TestInsertRun_AssignsIDs(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	id1, err := storage.InsertRun(ctx, survey.Run{Name: "R1", MnTime: "2024-03-01 08:00", Len: 120, Mine: "North"})
	require.NoError(t, err)
	id2, err := storage.InsertRun(ctx, survey.Run{Name: "R2"})
	require.NoError(t, err)

	assert.Positive(t, id1)
	assert.Greater(t, id2, id1)

	runs, err := storage.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "R1", runs[0].Name)
	assert.Equal(t, id1, *runs[0].ID)
	assert.Equal(t, "2024-03-01 08:00", runs[0].MnTime)
	assert.Equal(t, int64(120), runs[0].Len)
	assert.Equal(t, "North", runs[0].Mine)
	assert.Equal(t, "R2", runs[1].Name)
}

func TestInsertRun_ExplicitID(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	id, err := storage.InsertRun(ctx, survey.Run{ID: ptr(int64(42)), Name: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = storage.InsertRun(ctx, survey.Run{ID: ptr(int64(42)), Name: "dup"})
	assert.ErrorIs(t, err, ErrDBOperationFailed)
}

func TestInsertRun_Invalid(t *testing.T) {
	storage := setupTestStorage(t)

	_, err := storage.InsertRun(context.Background(), survey.Run{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInsert_NonPositiveIDs(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	runID, err := storage.InsertRun(ctx, survey.Run{Name: "R1"})
	require.NoError(t, err)

	for _, id := range []int64{0, -1} {
		t.Run(fmt.Sprintf("id %d", id), func(t *testing.T) {
			_, err := storage.InsertRun(ctx, survey.Run{ID: ptr(id), Name: "bad"})
			assert.ErrorIs(t, err, ErrInvalidInput)

			_, err = storage.InsertPoint(ctx, survey.Point{ID: ptr(id), RunID: &runID, Depth: 1})
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	runs, err := storage.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	points, err := storage.ListPoints(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestInsertPoint(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	runID, err := storage.InsertRun(ctx, survey.Run{Name: "R1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		point   survey.Point
		wantErr error
	}{
		{
			name:  "all fields",
			point: survey.Point{RunID: &runID, Depth: 30, Time: ptr("10:00:05"), Pitch: ptr(-1.5), Roll: ptr(0.2), Heading: ptr(181.0), DesignPitch: ptr(-2.0), DesignHeading: ptr(180.0)},
		},
		{
			name:  "depth only",
			point: survey.Point{RunID: &runID, Depth: 10},
		},
		{
			name:    "no run id",
			point:   survey.Point{Depth: 5},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unknown run",
			point:   survey.Point{RunID: ptr(int64(9999)), Depth: 5},
			wantErr: ErrDBOperationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := storage.InsertPoint(ctx, tt.point)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Positive(t, id)
		})
	}

	points, err := storage.ListPoints(ctx, runID)
	require.NoError(t, err)
	require.Len(t, points, 2)

	// ordered by depth
	assert.Equal(t, 10.0, points[0].Depth)
	assert.Nil(t, points[0].Pitch)
	assert.Nil(t, points[0].Time)

	assert.Equal(t, 30.0, points[1].Depth)
	assert.Equal(t, runID, *points[1].RunID)
	assert.Equal(t, "10:00:05", *points[1].Time)
	assert.Equal(t, -1.5, *points[1].Pitch)
	assert.Equal(t, 0.2, *points[1].Roll)
	assert.Equal(t, 181.0, *points[1].Heading)
	assert.Equal(t, -2.0, *points[1].DesignPitch)
	assert.Equal(t, 180.0, *points[1].DesignHeading)
}

func TestListPoints_Empty(t *testing.T) {
	storage := setupTestStorage(t)

	points, err := storage.ListPoints(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.NotNil(t, points)
}

func TestReopenKeepsData(t *testing.T) {
	config := DefaultConfig()
	config.DBPath = filepath.Join(t.TempDir(), "survey.sqlite")

	storage, err := New(config, slogdiscard.NewDiscardLogger())
	require.NoError(t, err)
	_, err = storage.InsertRun(context.Background(), survey.Run{Name: "persisted"})
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	storage, err = New(config, slogdiscard.NewDiscardLogger())
	require.NoError(t, err)
	defer storage.Close()

	runs, err := storage.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "persisted", runs[0].Name)
}
