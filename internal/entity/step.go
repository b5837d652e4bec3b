package entity

import (
	"time"

	"github.com/munifact/munifact/constants"
)

// Step is one stage's status record for a document. Five steps are created
// atomically with the document and transition pending -> processing ->
// {completed | error} exactly once each.
type Step struct {
	ID           int64                `json:"id"`
	DocumentID   int64                `json:"documentId"`
	StepName     constants.StepName   `json:"stepName"`
	Status       constants.StepStatus `json:"status"`
	StartedAt    *time.Time           `json:"startedAt,omitempty"`
	CompletedAt  *time.Time           `json:"completedAt,omitempty"`
	ErrorMessage *string              `json:"errorMessage,omitempty"`
}
