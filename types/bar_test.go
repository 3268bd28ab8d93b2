package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotKeyIsFixedWidthUTC(t *testing.T) {
	bar := Bar{Timestamp: time.Date(2024, 3, 9, 14, 30, 5, 0, time.FixedZone("EST", -5*3600))}
	require.Equal(t, "2024-03-09T19:30:05Z", bar.SnapshotKey())
	require.Len(t, bar.SnapshotKey(), 20)
}

func TestTimeframeValid(t *testing.T) {
	for _, tf := range []Timeframe{TimeframeD1, TimeframeH4, TimeframeH1, TimeframeM15, TimeframeM1} {
		require.True(t, tf.Valid())
	}
	require.False(t, Timeframe("W1").Valid())
	require.False(t, Timeframe("").Valid())
}

func TestSideValid(t *testing.T) {
	require.True(t, SideBuy.Valid())
	require.True(t, SideSell.Valid())
	require.False(t, Side("HOLD").Valid())
	require.False(t, Side("buy").Valid())
}
