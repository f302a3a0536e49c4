package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowAdvances(t *testing.T) {
	t.Parallel()

	c := New()
	first := c.Now()
	require.False(t, first.IsZero())
	require.LessOrEqual(t, time.Since(first), time.Minute)
}
