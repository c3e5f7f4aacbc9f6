package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	// "武" is three bytes; a cut inside it backs off to the rune start
	assert.Equal(t, "a...", Truncate("a武汉", 2))
	assert.Equal(t, "a武...", Truncate("a武汉", 4))
}
