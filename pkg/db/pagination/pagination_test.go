package pagination

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func pager(data []int, calls *int) func(Page) ([]int, error) {
	return func(p Page) ([]int, error) {
		*calls++
		start := p.Offset()
		if start >= len(data) {
			return nil, nil
		}
		end := start + p.Size
		if end > len(data) {
			end = len(data)
		}
		return data[start:end], nil
	}
}

func TestWalk_ExactMultipleEndsOnEmptyPage(t *testing.T) {
	calls := 0
	rows, err := Walk(10, pager(fixture(30), &calls))
	require.NoError(t, err)
	assert.Equal(t, fixture(30), rows)
	assert.Equal(t, 4, calls)
}

func TestWalk_ShortPageStops(t *testing.T) {
	calls := 0
	rows, err := Walk(10, pager(fixture(25), &calls))
	require.NoError(t, err)
	assert.Len(t, rows, 25)
	assert.Equal(t, 3, calls)
}

func TestWalk_ErrorKeepsAccumulatedRows(t *testing.T) {
	boom := errors.New("boom")
	rows, err := Walk(2, func(p Page) ([]int, error) {
		if p.Number == 1 {
			return nil, boom
		}
		return []int{1, 2}, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, rows)
}

func TestPage_Offset(t *testing.T) {
	assert.Equal(t, 0, Page{Number: 0, Size: 50}.Offset())
	assert.Equal(t, 150, Page{Number: 3, Size: 50}.Offset())
	assert.Equal(t, 0, Page{Number: 3}.Offset())
}
