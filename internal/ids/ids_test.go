package ids

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSnowflakeID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewSnowflakeID()
		_, err := strconv.ParseInt(id, 10, 64)
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewKSUID(t *testing.T) {
	a, b := NewKSUID(), NewKSUID()
	require.Len(t, a, 27)
	require.NotEqual(t, a, b)
}

func TestSessionID(t *testing.T) {
	id := NewSessionID()
	require.True(t, ValidSessionID(id))
	require.False(t, ValidSessionID("not-a-session"))
	require.False(t, ValidSessionID(""))
}
