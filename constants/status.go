package constants

// JobStatus tracks an extraction job through the pipeline.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusTextOK  JobStatus = "TEXT_OK"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

// Mode selects the extraction variant for a job.
type Mode string

const (
	ModeRegex  Mode = "regex"
	ModeLLM    Mode = "llm"
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode string; empty defaults to regex.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "":
		return ModeRegex, true
	case ModeRegex, ModeLLM, ModeHybrid:
		return Mode(s), true
	default:
		return "", false
	}
}
