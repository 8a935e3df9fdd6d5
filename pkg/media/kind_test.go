package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKind(t *testing.T) {
	k, ok := ParseKind(" Video ")
	assert.True(t, ok)
	assert.Equal(t, KindVideo, k)

	_, ok = ParseKind("hologram")
	assert.False(t, ok)

	assert.Len(t, Kinds(), 4)
}
