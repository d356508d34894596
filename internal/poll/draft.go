// ABOUTME: Poll creation draft state and its validation rules
// ABOUTME: Bounds option counts and rejects blank, over-long, duplicate input

package poll

import (
	"strings"

	"github.com/2389/threadline/internal/fault"
)

// Limits bounds poll creation input. The zero value is not usable; take
// DefaultLimits or build one from configuration.
type Limits struct {
	MinOptions     int
	MaxOptions     int
	MaxQuestionLen int
	MaxOptionLen   int
}

// DefaultLimits returns the standard poll creation bounds.
func DefaultLimits() Limits {
	return Limits{
		MinOptions:     2,
		MaxOptions:     10,
		MaxQuestionLen: 500,
		MaxOptionLen:   100,
	}
}

// Draft is the transient poll creation state. Nothing is persisted until
// submit. Options always holds between MinOptions and MaxOptions slots;
// blank slots are allowed while drafting and dropped on submit.
type Draft struct {
	Question             string
	Options              []string
	Anonymous            bool
	AllowMultipleAnswers bool
	Creating             bool
	Err                  error
}

// newDraft starts a draft with the minimum number of blank option slots.
func newDraft(limits Limits) Draft {
	return Draft{Options: make([]string, limits.MinOptions)}
}

// validate applies the full validity predicate: non-blank question within
// length, at least MinOptions non-blank options, every option within length,
// and no two non-blank options equal after trimming and case folding.
func (d Draft) validate(limits Limits) error {
	const op = "poll.create"

	if strings.TrimSpace(d.Question) == "" {
		return fault.Validationf(op, "question is empty")
	}
	if len(d.Question) > limits.MaxQuestionLen {
		return fault.Validationf(op, "question exceeds %d characters", limits.MaxQuestionLen)
	}

	nonBlank := 0
	seen := make(map[string]struct{}, len(d.Options))
	for _, opt := range d.Options {
		if len(opt) > limits.MaxOptionLen {
			return fault.Validationf(op, "option exceeds %d characters", limits.MaxOptionLen)
		}
		trimmed := strings.TrimSpace(opt)
		if trimmed == "" {
			continue
		}
		nonBlank++
		folded := strings.ToLower(trimmed)
		if _, dup := seen[folded]; dup {
			return fault.Validationf(op, "duplicate option %q", trimmed)
		}
		seen[folded] = struct{}{}
	}
	if nonBlank < limits.MinOptions {
		return fault.Validationf(op, "at least %d options required", limits.MinOptions)
	}
	return nil
}

// optionTexts returns the trimmed non-blank options in draft order.
func (d Draft) optionTexts() []string {
	out := make([]string, 0, len(d.Options))
	for _, opt := range d.Options {
		if trimmed := strings.TrimSpace(opt); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
