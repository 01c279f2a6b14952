package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClamps(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, DefaultPageSize, Pagination{PageSize: -3}.Size())
	assert.Equal(t, 7, Pagination{PageSize: 7}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 5000}.Size())
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 30, 0, 123, time.UTC)
	token, err := EncodeCursor(Cursor{ID: 42, CreatedAt: at})
	require.NoError(t, err)
	assert.NotContains(t, token, "=")

	got, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
	assert.True(t, at.Equal(got.CreatedAt))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	got, err := DecodeCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, token := range []string{"%%%", "bm90LWpzb24", "e30"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestPage(t *testing.T) {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cursorOf := func(id int64) Cursor { return Cursor{ID: id, CreatedAt: at} }

	items, info, err := Page([]int64{5, 4, 3}, 3, cursorOf)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	items, info, err = Page([]int64{5, 4, 3, 2}, 3, cursorOf)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4, 3}, items)
	assert.True(t, info.HasMore)
	next, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.ID)
}
