package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStandardImpl(t *testing.T) {
	clock, err := NewStandardImpl("")
	require.NoError(t, err)
	require.Equal(t, DefaultTimezone, clock.Location().String())
	require.Equal(t, DefaultTimezone, clock.Now().Location().String())
	require.WithinDuration(t, time.Now(), clock.Now(), time.Minute)

	_, err = NewStandardImpl("Nowhere/Atlantis")
	require.Error(t, err)
}

func TestFixedImpl(t *testing.T) {
	clock := &FixedImpl{Instant: time.Unix(1_700_000_000, 0).UTC()}
	require.Equal(t, int64(1_700_000_000), clock.Now().Unix())

	clock.Instant = clock.Instant.Add(time.Hour)
	require.Equal(t, int64(1_700_003_600), clock.Now().Unix())
	require.Equal(t, time.UTC, clock.Location())
}
