package constants

// StepName identifies one stage of the fixed extraction pipeline.
type StepName string

const (
	StepUpload          StepName = "upload"
	StepTextExtract     StepName = "text_extract"
	StepOpticalFallback StepName = "optical_fallback"
	StepSemanticExtract StepName = "semantic_extract"
	StepSerialize       StepName = "serialize"
)

// PipelineSteps is the fixed stage order. Step records for a document are
// seeded in this order and advance monotonically along it, with the single
// exception of optical_fallback, which stays pending when the primary text
// extraction yields enough text.
var PipelineSteps = []StepName{
	StepUpload,
	StepTextExtract,
	StepOpticalFallback,
	StepSemanticExtract,
	StepSerialize,
}
