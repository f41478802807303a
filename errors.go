package experiment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidKey indicates an empty or dotted configuration key.
	ErrInvalidKey = errors.New("experiment: configuration keys must be non-empty and dot-free")
	// ErrSourceRequired indicates RegisterDefaults was called without a source id.
	ErrSourceRequired = errors.New("experiment: source id must be provided")
	// ErrNameRequired indicates a named config or function without a name.
	ErrNameRequired = errors.New("experiment: name must be provided")
	// ErrFunctionRequired indicates a nil function body at registration.
	ErrFunctionRequired = errors.New("experiment: function body must not be nil")
	// ErrDuplicateFunction indicates two captured functions share a name.
	ErrDuplicateFunction = errors.New("experiment: function already captured")
	// ErrDuplicateParameter indicates a function spec lists the same parameter twice.
	ErrDuplicateParameter = errors.New("experiment: parameter names must be unique")
	// ErrNoMain indicates Run was called before a main function was designated.
	ErrNoMain = errors.New("experiment: no main function designated")
	// ErrRunInProgress indicates a second run was started while one is executing.
	ErrRunInProgress = errors.New("experiment: a run is already in progress")
	// ErrInterrupted marks runs stopped by cancellation.
	ErrInterrupted = errors.New("experiment: run interrupted")
	// ErrUnknownNamedConfig indicates UseNamedConfig received an undefined name.
	ErrUnknownNamedConfig = errors.New("experiment: named config not defined")

	// ErrConflict, ErrMissingParameter, ErrDuplicateMain and ErrUndeclaredKey
	// match the typed errors below through errors.Is.
	ErrConflict         = errors.New("experiment: conflicting defaults")
	ErrMissingParameter = errors.New("experiment: missing parameter")
	ErrDuplicateMain    = errors.New("experiment: main function already designated")
	ErrUndeclaredKey    = errors.New("experiment: override targets undeclared key")
)

// ConflictError reports a key registered with different defaults by two
// sources where neither declared that it overrides the other.
type ConflictError struct {
	Key      string
	Sources  [2]string
	Existing any
	Incoming any
}

func (e *ConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("experiment: key %q has conflicting defaults: %s=%v, %s=%v",
		e.Key, e.Sources[0], e.Existing, e.Sources[1], e.Incoming)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// MissingParameterError reports a parameter with no explicit argument, no
// configuration value and no function default.
type MissingParameterError struct {
	Function  string
	Parameter string
	Missing   []string
}

func (e *MissingParameterError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Missing) > 1 {
		return fmt.Sprintf("experiment: %s missing parameters: %s", e.Function, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("experiment: %s missing parameter %q", e.Function, e.Parameter)
}

func (e *MissingParameterError) Is(target error) bool {
	return target == ErrMissingParameter
}

// DuplicateMainError reports a second main designation.
type DuplicateMainError struct {
	Existing string
	Rejected string
}

func (e *DuplicateMainError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("experiment: cannot designate %q as main, %q already is", e.Rejected, e.Existing)
}

func (e *DuplicateMainError) Is(target error) bool {
	return target == ErrDuplicateMain
}

// UndeclaredKeyError is returned under DeadOverrideError when an override
// names keys nothing declared.
type UndeclaredKeyError struct {
	Keys []string
}

func (e *UndeclaredKeyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("experiment: override targets undeclared keys: %s", strings.Join(e.Keys, ", "))
}

func (e *UndeclaredKeyError) Is(target error) bool {
	return target == ErrUndeclaredKey
}

// ArgumentError reports a call whose explicit arguments do not fit the
// function spec (too many positional values, unknown or doubly bound names).
type ArgumentError struct {
	Function string
	Reason   string
}

func (e *ArgumentError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("experiment: %s: %s", e.Function, e.Reason)
}

// ArtifactError wraps a sink failure for a run that otherwise completed.
type ArtifactError struct {
	RunID string
	Err   error
}

func (e *ArtifactError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("experiment: artifact handoff for run %s: %v", e.RunID, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func validateKey(key string) error {
	if key == "" || strings.Contains(key, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
