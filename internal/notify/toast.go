// Package notify turns errors into the toast notifications shown to users.
package notify

import (
	"net/http"

	xerrors "SuiCoPilot/internal/errors"
)

// Variants understood by the front end.
const (
	VariantDefault     = "default"
	VariantDestructive = "destructive"
)

// Toast is a user-facing notification.
type Toast struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant,omitempty"`
}

// Info builds a non-error toast.
func Info(title, description string) Toast {
	return Toast{Title: title, Description: description, Variant: VariantDefault}
}

// FromError renders err as a destructive toast. The title comes from the
// error code, the description from the error message.
func FromError(err error) Toast {
	if err == nil {
		return Toast{}
	}
	code := xerrors.CodeOf(err)
	desc := err.Error()
	if e, ok := xerrors.From(err); ok {
		desc = e.Message()
	}
	return Toast{
		Title:       xerrors.AttributesOf(code).Title,
		Description: desc,
		Variant:     VariantDestructive,
	}
}

// Status maps an error code to the HTTP status used when rendering it.
func Status(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeValidation:
		return http.StatusBadRequest
	case xerrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict:
		return http.StatusConflict
	case xerrors.CodeUpstream, xerrors.CodeNetwork:
		return http.StatusBadGateway
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeInitializationFailure, xerrors.CodeQueueFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
