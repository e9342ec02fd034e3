package optim

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGridSearchRejectsMismatch(t *testing.T) {
	_, err := NewGridSearch([]string{"a", "b"}, [][]float64{{1}})
	assert.Error(t, err)

	_, err = NewGridSearch([]string{"a"}, [][]float64{{}})
	assert.Error(t, err)

	_, err = NewGridSearch(nil, nil)
	assert.Error(t, err)
}

func TestPointsOrder(t *testing.T) {
	g, err := NewGridSearch([]string{"n", "ts"}, [][]float64{{10, 20}, {0.1, 0.2, 0.5}})
	require.NoError(t, err)

	points := g.Points()
	require.Len(t, points, 6)
	assert.Equal(t, Point{"n": 10, "ts": 0.1}, points[0])
	assert.Equal(t, Point{"n": 10, "ts": 0.2}, points[1])
	assert.Equal(t, Point{"n": 20, "ts": 0.5}, points[5])
}

func TestSearchFindsMinimum(t *testing.T) {
	g, err := NewGridSearch([]string{"a", "b"}, [][]float64{{-1, 0, 1, 2}, {-2, 0.5, 3}})
	require.NoError(t, err)

	var calls atomic.Int32
	eval := func(ctx context.Context, p Point) (map[string]float64, error) {
		calls.Add(1)
		return map[string]float64{"loss": math.Pow(p["a"]-1, 2) + math.Pow(p["b"]-0.5, 2)}, nil
	}

	trials, best, err := g.WithWorkers(3).Search(context.Background(), eval, "loss")
	require.NoError(t, err)
	assert.Len(t, trials, 12)
	assert.EqualValues(t, 12, calls.Load())
	assert.Equal(t, Point{"a": 1, "b": 0.5}, best.Point)
	assert.Zero(t, best.Score("loss"))
}

func TestSearchRecordsFailures(t *testing.T) {
	g, err := NewGridSearch([]string{"a"}, [][]float64{{1, 2, 3}})
	require.NoError(t, err)

	boom := errors.New("boom")
	eval := func(ctx context.Context, p Point) (map[string]float64, error) {
		switch p["a"] {
		case 1:
			return nil, boom
		case 2:
			return map[string]float64{"loss": math.NaN()}, nil
		}
		return map[string]float64{"loss": 7}, nil
	}

	trials, best, err := g.Search(context.Background(), eval, "loss")
	require.NoError(t, err)
	assert.ErrorIs(t, trials[0].Err, boom)
	assert.True(t, math.IsInf(trials[1].Score("loss"), 1))
	assert.Equal(t, 3.0, best.Point["a"])
}

func TestSearchKeepsCallerContextLive(t *testing.T) {
	g, err := NewGridSearch([]string{"a"}, [][]float64{{1, 2}})
	require.NoError(t, err)

	eval := func(ctx context.Context, p Point) (map[string]float64, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return map[string]float64{"loss": p["a"]}, nil
	}
	trials, best, err := g.Search(context.Background(), eval, "loss")
	require.NoError(t, err)
	require.Len(t, trials, 2)
	for _, tr := range trials {
		assert.NoError(t, tr.Err)
	}
	assert.Equal(t, 1.0, best.Point["a"])
}

func TestSearchAllFailed(t *testing.T) {
	g, err := NewGridSearch([]string{"a"}, [][]float64{{1, 2}})
	require.NoError(t, err)

	eval := func(ctx context.Context, p Point) (map[string]float64, error) {
		return map[string]float64{}, nil
	}
	trials, _, err := g.Search(context.Background(), eval, "loss")
	assert.ErrorIs(t, err, ErrNoTrial)
	assert.Len(t, trials, 2)
}

func TestSearchCanceled(t *testing.T) {
	g, err := NewGridSearch([]string{"a"}, [][]float64{{1, 2, 3}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eval := func(ctx context.Context, p Point) (map[string]float64, error) {
		return map[string]float64{"loss": 1}, nil
	}
	_, _, err = g.Search(ctx, eval, "loss")
	assert.ErrorIs(t, err, context.Canceled)
}
