package services

import (
	"fmt"
	"net/http"
)

// Stable error codes returned to clients. These are part of the API contract;
// callers branch on them.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeConsentRequired    = "CONSENT_REQUIRED"
	CodeInvalidChannel     = "INVALID_CHANNEL"
	CodeCompanyNotFound    = "COMPANY_NOT_FOUND"
	CodeProjectInactive    = "PROJECT_INACTIVE"
	CodeChannelNotAllowed  = "CHANNEL_NOT_ALLOWED"
	CodeConfigurationError = "CONFIGURATION_ERROR"
	CodeQueueSendError     = "SQS_SEND_ERROR"
)

// AppError is a client-visible error with a stable code and HTTP status.
type AppError struct {
	Code    string
	Status  int
	Message string
	Details map[string]any
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest reports a malformed or structurally invalid request body.
func NewInvalidRequest(message string) *AppError {
	return &AppError{Code: CodeInvalidRequest, Status: http.StatusBadRequest, Message: message}
}

// NewConsentRequired reports a request without recipient consent.
func NewConsentRequired() *AppError {
	return &AppError{
		Code:    CodeConsentRequired,
		Status:  http.StatusBadRequest,
		Message: "recipient has not consented to communications",
	}
}

// NewInvalidChannel reports an unrecognized channel_method.
func NewInvalidChannel(channel string) *AppError {
	return &AppError{
		Code:    CodeInvalidChannel,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("unsupported channel_method %q", channel),
	}
}

// NewCompanyNotFound reports an unknown (company_id, project_id) pair.
func NewCompanyNotFound(companyID, projectID string) *AppError {
	return &AppError{
		Code:    CodeCompanyNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("no configuration for company %q project %q", companyID, projectID),
	}
}

// NewProjectInactive reports a project not in active status.
func NewProjectInactive(projectID string) *AppError {
	return &AppError{
		Code:    CodeProjectInactive,
		Status:  http.StatusForbidden,
		Message: fmt.Sprintf("project %q is not active", projectID),
	}
}

// NewChannelNotAllowed reports a channel outside the tenant's allow-list.
func NewChannelNotAllowed(channel string) *AppError {
	return &AppError{
		Code:    CodeChannelNotAllowed,
		Status:  http.StatusForbidden,
		Message: fmt.Sprintf("channel %q is not enabled for this project", channel),
	}
}

// NewConfigurationError reports a tenant or deployment misconfiguration the
// client cannot repair.
func NewConfigurationError(message string) *AppError {
	return &AppError{Code: CodeConfigurationError, Status: http.StatusInternalServerError, Message: message}
}

// NewQueueSendError reports a failed enqueue.
func NewQueueSendError(err error) *AppError {
	return &AppError{
		Code:    CodeQueueSendError,
		Status:  http.StatusInternalServerError,
		Message: "failed to enqueue conversation request",
		Details: map[string]any{"cause": err.Error()},
	}
}
