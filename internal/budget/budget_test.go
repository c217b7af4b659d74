package budget

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileOracle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "budget", "usage.json")
	o := NewFileOracle(path, 100)

	st, err := o.Check(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, st.OK)
	assert.Equal(t, 100.0, st.BudgetLimit)

	spend, err := o.TrackUsage(ctx, "p1", "gpt-4o-mini", 40, 20)
	require.NoError(t, err)
	assert.Equal(t, 60.0, spend)
	require.NoError(t, Guard(ctx, o, "p1"))

	spend, err = NewFileOracle(path, 100).TrackUsage(ctx, "p1", "gpt-4o", 30, 10)
	require.NoError(t, err)
	assert.Equal(t, 100.0, spend, "spend survives a new oracle instance")

	err = Guard(ctx, o, "p1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
}

func TestFileOracle_NoLimit(t *testing.T) {
	o := NewFileOracle(filepath.Join(t.TempDir(), "usage.json"), 0)
	_, err := o.TrackUsage(context.Background(), "p1", "m", 1_000_000, 0)
	require.NoError(t, err)
	assert.NoError(t, Guard(context.Background(), o, "p1"))
}

func TestUnlimited(t *testing.T) {
	o := NewUnlimited()
	spend, err := o.TrackUsage(context.Background(), "p1", "m", 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 7.0, spend)

	st, err := o.Check(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, st.OK)
	assert.Equal(t, 7.0, st.CurrentSpend)
	assert.NoError(t, Guard(context.Background(), nil, "p1"))
}
