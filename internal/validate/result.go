// Package validate implements the multi-phase content validators for
// episodic, semantic, and sensory memory proposals. Validators are pure:
// they accumulate findings into a Result and never fail mid-scan.
package validate

import (
	"fmt"
	"strings"
)

// Mode gates what happens when a proposal fails validation.
type Mode string

const (
	// ModeStrict rejects writes that carry any blocking finding.
	ModeStrict Mode = "strict"
	// ModeWarn logs findings but lets the write through.
	ModeWarn Mode = "warn"
	// ModeOff skips validation entirely.
	ModeOff Mode = "off"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, ModeWarn, ModeOff:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid validation mode %q (use strict, warn, or off)", s)
}

// Result accumulates validation findings. Errors mark the result invalid;
// warnings and info never do.
type Result struct {
	Valid    bool           `json:"valid"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Info     []string       `json:"info,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

func newResult() *Result {
	return &Result{Valid: true, Context: map[string]any{}}
}

// AddError records a blocking finding and marks the result invalid.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

// AddWarning records a non-blocking finding.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddInfo records an informational note.
func (r *Result) AddInfo(msg string) {
	r.Info = append(r.Info, msg)
}

// Merge folds another result into this one. Merge is associative:
// valid = valid AND other.valid, lists concatenate in order.
func (r *Result) Merge(other *Result) {
	r.Valid = r.Valid && other.Valid
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Info = append(r.Info, other.Info...)
	for k, v := range other.Context {
		r.Context[k] = v
	}
}

// Error is raised by the orchestrator (never by validators) when a strict
// mode write fails validation. It carries the full finding list.
type Error struct {
	Msg     string
	Errors  []string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Errors) == 0 {
		return e.Msg
	}
	return e.Msg + ":\n" + strings.Join(e.Errors, "\n")
}
