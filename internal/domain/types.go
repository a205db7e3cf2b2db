package domain

// JobState represents where a job is in the processing pipeline
type JobState string

const (
	StatePending     JobState = "pending"
	StateExistsCheck JobState = "exists_check"
	StateSkipped     JobState = "skipped"
	StateGenerating  JobState = "generating"
	StateEncoding    JobState = "encoding"
	StateUploading   JobState = "uploading"
	StateDone        JobState = "done"
	StateFailed      JobState = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s JobState) IsTerminal() bool {
	switch s {
	case StateSkipped, StateDone, StateFailed:
		return true
	}
	return false
}

// RunStatus represents the state of a whole batch run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// AudioExtension is appended to every job's base name
const AudioExtension = ".wav"

// AudioContentType is the content type of uploaded renders
const AudioContentType = "audio/wav"
