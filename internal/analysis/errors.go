package analysis

import "fmt"

// remoteError carries the HTTP status and the error message extracted from
// the analysis backend's response body, when one was present.
type remoteError struct {
	Op      string
	Status  int
	Message string
}

func (e *remoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: request failed (status %d)", e.Op, e.Status)
}

// AnalysisError reports a failed document-analysis call.
type AnalysisError struct{ remoteError }

// NewAnalysisError builds an AnalysisError from a backend status and message.
func NewAnalysisError(status int, message string) *AnalysisError {
	return &AnalysisError{remoteError{Op: "analyze document", Status: status, Message: message}}
}

// AuthURLError reports a failed Gmail auth-URL retrieval.
type AuthURLError struct{ remoteError }

// NewAuthURLError builds an AuthURLError from a backend status and message.
func NewAuthURLError(status int, message string) *AuthURLError {
	return &AuthURLError{remoteError{Op: "get gmail auth url", Status: status, Message: message}}
}

// ImportError reports a failed Gmail import call.
type ImportError struct{ remoteError }

// NewImportError builds an ImportError from a backend status and message.
func NewImportError(status int, message string) *ImportError {
	return &ImportError{remoteError{Op: "gmail import", Status: status, Message: message}}
}
