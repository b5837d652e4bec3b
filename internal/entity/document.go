package entity

import (
	"time"

	"github.com/munifact/munifact/constants"
)

// Document is one uploaded file and its end-to-end processing record.
//
// Nullable columns are pointers: CompletedAt is set exactly once on the
// terminal transition, ErrorMessage only on error, RecordCount and
// ArtifactRef only on success.
type Document struct {
	ID           int64                    `json:"id"`
	OwnerID      int64                    `json:"ownerId"`
	Filename     string                   `json:"filename"`
	OriginalSize int64                    `json:"originalSize"`
	Status       constants.DocumentStatus `json:"status"`
	UploadedAt   time.Time                `json:"uploadedAt"`
	CompletedAt  *time.Time               `json:"completedAt,omitempty"`
	ErrorMessage *string                  `json:"errorMessage,omitempty"`
	RecordCount  *int                     `json:"recordCount,omitempty"`
	ArtifactRef  *string                  `json:"artifactRef,omitempty"`

	// SourcePath locates the uploaded bytes on disk for the duration of the
	// pipeline run. Cleared semantics are owned by the orchestrator; it is
	// not part of the public read surface.
	SourcePath string `json:"-"`
}
