package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC), ID: 1893456}
	got, err := Decode(want.Encode())
	require.NoError(t, err)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.ID, got.ID)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm90LWpzb24", Cursor{}.Encode()} {
		_, err := Decode(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestTrim(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cursorOf := func(id int64) Cursor { return Cursor{CreatedAt: at, ID: id} }

	items, info := Trim([]int64{5, 4, 3}, 2, cursorOf)
	assert.Equal(t, []int64{5, 4}, items)
	assert.True(t, info.HasMore)
	next, err := Decode(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, int64(4), next.ID)

	items, info = Trim([]int64{2, 1}, 2, cursorOf)
	assert.Equal(t, []int64{2, 1}, items)
	assert.Equal(t, PageInfo{}, info)
}
