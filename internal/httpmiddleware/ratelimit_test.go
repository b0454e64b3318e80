package httpmiddleware

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenBucketExhausts(t *testing.T) {
	l := NewSimpleTokenBucket(3, 3)
	for i := 0; i < 3; i++ {
		require.True(t, l.allow("10.0.0.1"), "request %d should pass", i)
	}
	require.False(t, l.allow("10.0.0.1"))

	// Another key has its own bucket.
	require.True(t, l.allow("10.0.0.2"))
}

func TestTokenBucketDefaultsCapacity(t *testing.T) {
	l := NewSimpleTokenBucket(0, 5)
	require.Equal(t, 5, l.capacity)
}
