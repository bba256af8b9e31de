package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// OccurrenceStatus is the lifecycle state of a class occurrence.
type OccurrenceStatus string

const (
	OccurrenceScheduled  OccurrenceStatus = "scheduled"
	OccurrenceInProgress OccurrenceStatus = "in_progress"
	OccurrenceCompleted  OccurrenceStatus = "completed"
	OccurrenceCancelled  OccurrenceStatus = "cancelled"
	OccurrenceNoShow     OccurrenceStatus = "no_show"
)

// BusyStatuses lists the statuses that occupy a teacher's calendar.
var BusyStatuses = []OccurrenceStatus{OccurrenceScheduled, OccurrenceInProgress}

// IsBusy reports whether the status blocks the teacher's time.
func (s OccurrenceStatus) IsBusy() bool {
	return s == OccurrenceScheduled || s == OccurrenceInProgress
}

// AnchorDesignation names whose wall clock is authoritative for an occurrence.
type AnchorDesignation string

const (
	AnchorStudent AnchorDesignation = "student"
	AnchorTeacher AnchorDesignation = "teacher"
)

// Valid reports whether the designation is recognised.
func (a AnchorDesignation) Valid() bool {
	return a == AnchorStudent || a == AnchorTeacher
}

// ClassOccurrence is a single concrete lesson.
type ClassOccurrence struct {
	ID                  string            `db:"id" json:"id"`
	TeacherID           string            `db:"teacher_id" json:"teacher_id"`
	StudentID           string            `db:"student_id" json:"student_id"`
	StudentName         *string           `db:"student_name" json:"student_name,omitempty"`
	Subject             *string           `db:"subject" json:"subject,omitempty"`
	ScheduledAt         time.Time         `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes     int               `db:"duration_minutes" json:"duration_minutes"`
	Anchor              AnchorDesignation `db:"anchor" json:"anchor"`
	AnchorTimezone      string            `db:"anchor_timezone" json:"anchor_timezone"`
	AnchorOffsetMinutes *int              `db:"anchor_offset_minutes" json:"anchor_offset_minutes,omitempty"`
	RecurringPatternID  *string           `db:"recurring_pattern_id" json:"recurring_pattern_id,omitempty"`
	OccurrenceKey       *string           `db:"occurrence_key" json:"occurrence_key,omitempty"`
	Status              OccurrenceStatus  `db:"status" json:"status"`
	DSTAdjustments      types.JSONText    `db:"dst_adjustments" json:"dst_adjustments,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updated_at"`
}

// EndsAt returns the exclusive end instant of the occurrence.
func (o ClassOccurrence) EndsAt() time.Time {
	return o.ScheduledAt.Add(time.Duration(o.DurationMinutes) * time.Minute)
}

// DSTAdjustment is one audit entry written by the re-anchor service.
type DSTAdjustment struct {
	OldInstant time.Time     `json:"oldInstant"`
	NewInstant time.Time     `json:"newInstant"`
	Reason     string        `json:"reason"`
	Transition DSTTransition `json:"transition"`
	AdjustedAt time.Time     `json:"adjustedAt"`
}

// Adjustments decodes the stored DST audit log.
func (o ClassOccurrence) Adjustments() ([]DSTAdjustment, error) {
	if len(o.DSTAdjustments) == 0 {
		return []DSTAdjustment{}, nil
	}
	var entries []DSTAdjustment
	if err := json.Unmarshal(o.DSTAdjustments, &entries); err != nil {
		return nil, fmt.Errorf("decode dst adjustments: %w", err)
	}
	return entries, nil
}

// AppendAdjustment encodes a new audit entry onto the occurrence.
func (o *ClassOccurrence) AppendAdjustment(entry DSTAdjustment) error {
	entries, err := o.Adjustments()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode dst adjustments: %w", err)
	}
	o.DSTAdjustments = types.JSONText(raw)
	return nil
}

// TransitionType distinguishes DST start from DST end.
type TransitionType string

const (
	TransitionForward  TransitionType = "forward"
	TransitionBackward TransitionType = "backward"
)

// DSTTransition is an instant where a timezone's UTC offset changes.
type DSTTransition struct {
	Timezone            string         `json:"timezone" yaml:"timezone"`
	Instant             time.Time      `json:"instant" yaml:"instant"`
	Type                TransitionType `json:"type" yaml:"type"`
	OffsetBeforeMinutes int            `json:"offsetBeforeMinutes" yaml:"offsetBeforeMinutes"`
	OffsetAfterMinutes  int            `json:"offsetAfterMinutes" yaml:"offsetAfterMinutes"`
}

// DeltaMinutes returns the change in UTC offset.
func (t DSTTransition) DeltaMinutes() int {
	return t.OffsetAfterMinutes - t.OffsetBeforeMinutes
}
