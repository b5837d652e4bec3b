package constants

// DocumentStatus is the canonical lifecycle status for a document.
type DocumentStatus string

// Stable values (store these exact strings, the polling UI matches on them).
const (
	DocUploading  DocumentStatus = "uploading"
	DocProcessing DocumentStatus = "processing"
	DocCompleted  DocumentStatus = "completed"
	DocError      DocumentStatus = "error"
)

// Terminal reports whether the document can no longer be mutated by the pipeline.
func (s DocumentStatus) Terminal() bool {
	return s == DocCompleted || s == DocError
}

// StepStatus is the canonical status for a single pipeline step record.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)
