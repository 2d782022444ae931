package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobStatusJSONRoundTrip(t *testing.T) {
	for status, name := range jobStatusNames {
		raw, err := json.Marshal(status)
		require.NoError(t, err)
		require.Equal(t, `"`+name+`"`, string(raw))

		var parsed JobStatus
		require.NoError(t, json.Unmarshal(raw, &parsed))
		require.Equal(t, status, parsed)
	}

	var parsed JobStatus
	require.Error(t, json.Unmarshal([]byte(`"sleeping"`), &parsed))
	_, err := json.Marshal(JobStatus(99))
	require.Error(t, err)
}

func TestJobStatusClassification(t *testing.T) {
	complete := []JobStatus{JobCompleted, JobFailed, JobCanceled, JobTerminated}
	for _, s := range complete {
		require.True(t, s.IsComplete(), s.String())
		require.True(t, s.IsTerminal(), s.String())
	}
	require.False(t, JobDisabled.IsComplete())
	require.True(t, JobDisabled.IsTerminal())

	for _, s := range []JobStatus{JobUninitialized, JobBlocked, JobReady, JobPending, JobSubmittedPending, JobSubmitted, JobRunning} {
		require.False(t, s.IsComplete(), s.String())
		require.False(t, s.IsTerminal(), s.String())
	}
}

func TestParseJobStatus(t *testing.T) {
	s, err := ParseJobStatus("submitted_pending")
	require.NoError(t, err)
	require.Equal(t, JobSubmittedPending, s)

	_, err = ParseJobStatus("Submitted_Pending")
	require.Error(t, err)
}
