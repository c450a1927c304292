package sync

import "fmt"

// UploadSizeMax reserves 16KB below the server's 6MB body cap for request
// framing overhead.
const (
	UploadBatchSize   = 250
	UploadConcurrency = 6
	UploadSizeMax     = 6*1024*1024 - 16*1024
)

// Well-known error codes the remote service or client may surface.
const (
	CodeJobNotAwaitingUploads          = "JOB_NOT_AWAITING_UPLOADS"
	CodeRequestEntityTooLargeException = "RequestEntityTooLargeException"
	CodeCredentialsError               = "CredentialsError"
	CodeIntegrationUploadAfterJobEnded = "INTEGRATION_UPLOAD_AFTER_JOB_ENDED"
	CodeIntegrationUploadFailed        = "INTEGRATION_UPLOAD_FAILED"
	CodeSynchronizationAPIError        = "synchronizationApiError"
)

// SynchronizationJob is the remote-issued handle returned by initiate and
// threaded through upload, finalize, and abort.
type SynchronizationJob struct {
	ID                    string `json:"id"`
	IntegrationJobID      string `json:"integrationJobId"`
	IntegrationInstanceID string `json:"integrationInstanceId"`
	Status                string `json:"status"`
}

// PartialDatasets accompanies finalize, telling the server which declared
// types a step marked partial so it does not delete absent objects for them.
type PartialDatasets struct {
	Entities      []string `json:"entities"`
	Relationships []string `json:"relationships"`
}

// APIError wraps an underlying HTTP/transport failure with a stable code and
// the original cause. It is fatal only when Code is
// CodeIntegrationUploadAfterJobEnded (callers check via stepmodel.IsFatal on
// the wrapped error, since that is where the fatal marker is applied).
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("synchronization api error (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("synchronization api error: %s", e.Message)
}

func (e *APIError) Unwrap() error { return e.Cause }

// ShrinkError is raised by ShrinkRawData when a batch cannot be reduced
// below the size cap because its largest entity carries no _rawData left to
// truncate.
type ShrinkError struct {
	Code    string
	Message string
}

func (e *ShrinkError) Error() string { return e.Message }

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
