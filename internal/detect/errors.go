package detect

import (
	"errors"
	"fmt"
)

// Kind classifies a failed Detect call.
type Kind int

const (
	// ModelUnavailable means the backend's one-time setup did not complete.
	ModelUnavailable Kind = iota + 1
	// DetectionFailed means setup succeeded but the detection call errored.
	DetectionFailed
)

const (
	CodeModelDownload = "MODEL_DOWNLOAD_ERROR"
	CodeDetection     = "DETECTION_ERROR"
)

var (
	ErrModelUnavailable = errors.New("detection model unavailable")
	ErrDetectionFailed  = errors.New("entity detection failed")
)

func (k Kind) String() string {
	switch k {
	case ModelUnavailable:
		return "ModelUnavailable"
	case DetectionFailed:
		return "DetectionFailed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Code is the machine readable form handed across the bridge.
func (k Kind) Code() string {
	switch k {
	case ModelUnavailable:
		return CodeModelDownload
	case DetectionFailed:
		return CodeDetection
	default:
		return "UNKNOWN_ERROR"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case ModelUnavailable:
		return ErrModelUnavailable
	case DetectionFailed:
		return ErrDetectionFailed
	default:
		return nil
	}
}

// Error is returned by Detect. The backend error is kept verbatim in Err.
type Error struct {
	Kind    Kind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message()
	if e.Backend == "" {
		return fmt.Sprintf("%s: %s", e.Kind.Code(), msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind.Code(), e.Backend, msg)
}

// Message is the human readable part, the backend's own message when present.
func (e *Error) Message() string {
	if e.Err != nil && e.Err.Error() != "" {
		return e.Err.Error()
	}
	if s := e.Kind.sentinel(); s != nil {
		return s.Error()
	}
	return "unknown error"
}

func (e *Error) Code() string { return e.Kind.Code() }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// ErrorCode extracts the bridge code from any error chain, or "" when err is
// not a detection error.
func ErrorCode(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code()
	}
	return ""
}
