package models

import (
	"fmt"
	"time"
)

// ConflictType classifies why a candidate window cannot be booked.
type ConflictType string

const (
	ConflictNoWeeklySlot      ConflictType = "no_weekly_slot"
	ConflictUnavailablePeriod ConflictType = "unavailable_period"
	ConflictExistingClass     ConflictType = "existing_class"
)

// ConflictDetail describes the first conflicting record.
type ConflictDetail struct {
	ID          string    `json:"id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Counterpart *string   `json:"counterpart,omitempty"`
	Subject     *string   `json:"subject,omitempty"`
	Reason      *string   `json:"reason,omitempty"`
}

// AvailabilityResult is the structured outcome of an availability check.
type AvailabilityResult struct {
	Available    bool            `json:"available"`
	Reason       string          `json:"reason,omitempty"`
	ConflictType ConflictType    `json:"conflict_type,omitempty"`
	Conflict     *ConflictDetail `json:"conflict,omitempty"`
}

// AvailabilityConflictError carries a negative availability result through error returns.
type AvailabilityConflictError struct {
	Result AvailabilityResult
}

func (e *AvailabilityConflictError) Error() string {
	if e.Result.ConflictType == "" {
		return e.Result.Reason
	}
	return fmt.Sprintf("%s: %s", e.Result.ConflictType, e.Result.Reason)
}
