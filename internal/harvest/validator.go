package harvest

import (
	"github.com/JakeFAU/cropharvest/internal/clock/system"
)

// Validator rejects records missing a required attribute and stamps the rest
// with the time they were accepted.
type Validator struct {
	clock Clock
}

// NewValidator returns a Validator reading time from clock. A nil clock uses
// the wall clock.
func NewValidator(clock Clock) *Validator {
	if clock == nil {
		clock = system.New()
	}
	return &Validator{clock: clock}
}

// Validate returns rec with ScrapedAt set, or a *RejectionError. It performs
// no I/O.
func (v *Validator) Validate(rec Record) (Record, error) {
	if field := rec.requiredField(); field != "" {
		return nil, &RejectionError{
			Reason:    ReasonMissingRequiredField,
			Field:     field,
			Kind:      rec.Kind(),
			SourceURL: rec.URL(),
		}
	}
	rec.stamp(v.clock.Now().UTC())
	return rec, nil
}
