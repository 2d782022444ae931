package types

import (
	"encoding/json"
	"fmt"
)

// JobStatus is stored as a small stable integer and rendered as a lowercase
// string on the API surface.
type JobStatus int

const (
	JobUninitialized JobStatus = iota
	JobBlocked
	JobReady
	JobPending
	JobSubmittedPending
	JobSubmitted
	JobRunning
	JobCompleted
	JobFailed
	JobCanceled
	JobTerminated
	JobDisabled
)

var jobStatusNames = map[JobStatus]string{
	JobUninitialized:    "uninitialized",
	JobBlocked:          "blocked",
	JobReady:            "ready",
	JobPending:          "pending",
	JobSubmittedPending: "submitted_pending",
	JobSubmitted:        "submitted",
	JobRunning:          "running",
	JobCompleted:        "completed",
	JobFailed:           "failed",
	JobCanceled:         "canceled",
	JobTerminated:       "terminated",
	JobDisabled:         "disabled",
}

func (s JobStatus) String() string {
	if name, ok := jobStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

func ParseJobStatus(s string) (JobStatus, error) {
	for status, name := range jobStatusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown job status %q", s)
}

// IsComplete reports whether the job finished a run, successfully or not.
func (s JobStatus) IsComplete() bool {
	switch s {
	case JobCompleted, JobFailed, JobCanceled, JobTerminated:
		return true
	}
	return false
}

// IsTerminal reports whether the job will never run again without a reset.
func (s JobStatus) IsTerminal() bool {
	return s.IsComplete() || s == JobDisabled
}

func (s JobStatus) MarshalJSON() ([]byte, error) {
	name, ok := jobStatusNames[s]
	if !ok {
		return nil, fmt.Errorf("cannot marshal unknown job status %d", int(s))
	}
	return json.Marshal(name)
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseJobStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
