package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("0 3 * * *"))
	require.NoError(t, Validate("@daily"))
	require.Error(t, Validate("bad cron"))
	require.Error(t, Validate("0 0 3 * * *"))
}

func TestGetTriggerInfo_NextDailyRun(t *testing.T) {
	ref := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 3 * * *", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, 15*time.Hour, info.TimeUntilNext)
}
