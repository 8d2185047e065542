package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestampOrNilMapsZeroTimeToNull(t *testing.T) {
	require.Nil(t, timestampOrNil(time.Time{}))

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	require.Equal(t, at, timestampOrNil(at))
}
