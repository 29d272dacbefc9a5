// Package fault defines the error kinds shared across the control plane.
// Kinds survive the Temporal serialization boundary: activities and workflows
// surface them as ApplicationError types (see the worker interceptor), so
// callers can branch on Is(err, kind) regardless of which side raised them.
package fault

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.temporal.io/sdk/temporal"
)

type Kind string

const (
	// Validation errors, surfaced to the caller with no state change.
	InvalidModel Kind = "InvalidModel"
	BadRequest   Kind = "BadRequest"
	MissingKey   Kind = "MissingKey"
	BadValue     Kind = "BadValue"

	// Capacity errors: the reservation was refused.
	QuotaExceeded        Kind = "QuotaExceeded"
	QuotaResourceUnknown Kind = "QuotaResourceUnknown"
	OverLimit            Kind = "OverLimit"

	// Not found.
	NotFound                Kind = "NotFound"
	ComputeInstanceNotFound Kind = "ComputeInstanceNotFound"
	DNSRecordNotFound       Kind = "DNSRecordNotFound"

	// Conflict: resource not in a state to accept the action.
	UnprocessableEntity Kind = "UnprocessableEntity"

	// External dependency.
	VolumeCreationFailure Kind = "VolumeCreationFailure"
	SubstrateAuth         Kind = "SubstrateAuth"
	ObjectStoreAuth       Kind = "ObjectStoreAuth"
	GuestError            Kind = "GuestError"
	GuestTimeout          Kind = "GuestTimeout"
	PollTimeout           Kind = "PollTimeout"

	Internal Kind = "Internal"
)

type Error struct {
	Kind    Kind
	Message string
	// Overs is only set for QuotaExceeded: the offending resource names,
	// sorted.
	Overs []string
}

func (e *Error) Error() string { return e.Message }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewQuotaExceeded builds a QuotaExceeded error with a deterministic,
// sorted list of over-limit resources.
func NewQuotaExceeded(overs []string) *Error {
	sorted := append([]string(nil), overs...)
	sort.Strings(sorted)
	return &Error{
		Kind:    QuotaExceeded,
		Message: fmt.Sprintf("quota exceeded for resources: %s", strings.Join(sorted, ", ")),
		Overs:   sorted,
	}
}

// Is reports whether err carries the given kind, either as a *fault.Error in
// its chain or as a Temporal ApplicationError whose type is the kind name.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf extracts the fault kind from an error chain. Unknown errors map to
// Internal; nil maps to the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		if k := Kind(appErr.Type()); known(k) {
			return k
		}
	}
	if temporal.IsTimeoutError(err) {
		return GuestTimeout
	}
	return Internal
}

// IsAnyNotFound reports whether the error is any of the not-found kinds.
func IsAnyNotFound(err error) bool {
	switch KindOf(err) {
	case NotFound, ComputeInstanceNotFound, DNSRecordNotFound:
		return true
	}
	return false
}

func known(k Kind) bool {
	switch k {
	case InvalidModel, BadRequest, MissingKey, BadValue,
		QuotaExceeded, QuotaResourceUnknown, OverLimit,
		NotFound, ComputeInstanceNotFound, DNSRecordNotFound,
		UnprocessableEntity,
		VolumeCreationFailure, SubstrateAuth, ObjectStoreAuth, GuestError, GuestTimeout, PollTimeout,
		Internal:
		return true
	}
	return false
}
