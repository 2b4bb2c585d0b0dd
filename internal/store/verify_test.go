package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyLog_Contiguous(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	p := createTestProject("p1", "alpha")
	for seq := int64(1); seq <= 3; seq++ {
		p.Append(createTestEvent("p1", seq))
	}
	require.NoError(t, s.CreateProject(ctx, p))

	state, err := s.VerifyLog(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, state.Contiguous)
	assert.Equal(t, 3, state.RowCount)
	assert.Equal(t, 3, state.EventCount)
	assert.Equal(t, int64(3), state.LastSeq)
	assert.Empty(t, state.Gaps)
}

func TestVerifyLog_EmptyProject(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, createTestProject("p1", "alpha")))

	state, err := s.VerifyLog(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, state.Contiguous)
	assert.Equal(t, 0, state.RowCount)
}

func TestVerifyLog_DetectsGap(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	p := createTestProject("p1", "alpha")
	p.Append(createTestEvent("p1", 1))
	p.Append(createTestEvent("p1", 2))
	p.Append(createTestEvent("p1", 3))
	require.NoError(t, s.CreateProject(ctx, p))

	_, err := s.db.Exec(`DELETE FROM project_events WHERE project_id = 'p1' AND seq_no = 2`)
	require.NoError(t, err)

	state, err := s.VerifyLog(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, state.Contiguous)
	assert.Equal(t, []int64{2}, state.Gaps)
	assert.Equal(t, 2, state.RowCount)
}

func TestVerifyLog_DetectsMismatchedPayload(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	p := createTestProject("p1", "alpha")
	p.Append(createTestEvent("p1", 1))
	require.NoError(t, s.CreateProject(ctx, p))

	other, err := marshalEvent(createTestEvent("p1", 7))
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE project_events SET payload = ? WHERE project_id = 'p1' AND seq_no = 1`, other)
	require.NoError(t, err)

	state, err := s.VerifyLog(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, state.Contiguous)
	assert.Equal(t, []int64{1}, state.Mismatched)
}

func TestVerifyLog_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.VerifyLog(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
