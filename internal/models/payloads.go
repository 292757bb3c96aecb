package models

// These structs define the JSON payloads for HTTP requests and responses
// between the field app, the Cloud Workflow and the Cloud Functions.

// PhaseCompleteRequest is the input for the phase-complete function.
type PhaseCompleteRequest struct {
	JobID   string `json:"jobId"`
	Phase   Phase  `json:"phase"`
	ActorID string `json:"actorId"`
	// Force completes the phase even when readiness reports warnings.
	Force bool `json:"force,omitempty"`
}

// PhaseCompleteResponse is the output of the phase-complete function.
// Status is "completed" or "blocked"; a blocked phase lists its warnings.
type PhaseCompleteResponse struct {
	Status        string                    `json:"status"`
	Phase         Phase                     `json:"phase"`
	NextPhase     Phase                     `json:"nextPhase"`
	Ready         bool                      `json:"ready"`
	Warnings      []*DataConsistencyWarning `json:"warnings,omitempty"`
	ExecutionName string                    `json:"executionName,omitempty"`
}

// PostPhaseWorkflowArgs is the argument passed to the post-phase workflow.
type PostPhaseWorkflowArgs struct {
	JobID          string `json:"jobId"`
	CompletedPhase Phase  `json:"completedPhase"`
	NextPhase      Phase  `json:"nextPhase"`
	ActorID        string `json:"actorId,omitempty"`
}

// DryingReportRequest is the input for the drying-report function.
type DryingReportRequest struct {
	JobID       string `json:"jobId"`
	ExecutionID string `json:"executionId,omitempty"`
	// DehumidifierKind selects the sizing chart; defaults to lgr.
	DehumidifierKind string `json:"dehumidifierKind,omitempty"`
}

// DryingReportResponse is the output of the drying-report function.
type DryingReportResponse struct {
	Status         string `json:"status"`
	ReportGCSUri   string `json:"reportGcsUri"`
	AppendixGCSUri string `json:"appendixGcsUri,omitempty"`
	AppendixPages  int    `json:"appendixPages,omitempty"`
	AllDry         bool   `json:"allDry"`
	WarningCount   int    `json:"warningCount"`
}
