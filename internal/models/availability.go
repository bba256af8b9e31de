package models

import (
	"fmt"
	"strconv"
	"time"
)

// EntityStatus is the soft-deactivation state shared by slots, periods and profiles.
type EntityStatus string

const (
	StatusActive   EntityStatus = "active"
	StatusInactive EntityStatus = "inactive"
)

// ApprovalStatus tracks review of an unavailability request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// WeeklyAvailabilitySlot is a recurring window in which a teacher accepts lessons.
type WeeklyAvailabilitySlot struct {
	ID            string       `db:"id" json:"id"`
	TeacherID     string       `db:"teacher_id" json:"teacher_id"`
	DayOfWeek     int          `db:"day_of_week" json:"day_of_week"`
	StartTime     string       `db:"start_time" json:"start_time"`
	EndTime       string       `db:"end_time" json:"end_time"`
	Timezone      string       `db:"timezone" json:"timezone"`
	EffectiveFrom *time.Time   `db:"effective_from" json:"effective_from,omitempty"`
	EffectiveTo   *time.Time   `db:"effective_to" json:"effective_to,omitempty"`
	Status        EntityStatus `db:"status" json:"status"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the slot participates in availability checks.
func (s WeeklyAvailabilitySlot) IsActive() bool {
	return s.Status == StatusActive
}

// EffectiveOn reports whether the slot applies on the given local calendar date.
func (s WeeklyAvailabilitySlot) EffectiveOn(year int, month time.Month, day int) bool {
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if s.EffectiveFrom != nil {
		from := time.Date(s.EffectiveFrom.Year(), s.EffectiveFrom.Month(), s.EffectiveFrom.Day(), 0, 0, 0, 0, time.UTC)
		if date.Before(from) {
			return false
		}
	}
	if s.EffectiveTo != nil {
		to := time.Date(s.EffectiveTo.Year(), s.EffectiveTo.Month(), s.EffectiveTo.Day(), 0, 0, 0, 0, time.UTC)
		if date.After(to) {
			return false
		}
	}
	return true
}

// Minutes returns the slot bounds as minutes of day.
func (s WeeklyAvailabilitySlot) Minutes() (int, int, error) {
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// UnavailabilityPeriod blocks a teacher for an absolute UTC range.
type UnavailabilityPeriod struct {
	ID        string         `db:"id" json:"id"`
	TeacherID string         `db:"teacher_id" json:"teacher_id"`
	StartAt   time.Time      `db:"start_at" json:"start_at"`
	EndAt     time.Time      `db:"end_at" json:"end_at"`
	Reason    string         `db:"reason" json:"reason"`
	Approval  ApprovalStatus `db:"approval" json:"approval"`
	Status    EntityStatus   `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Blocks reports whether the period should be treated as busy time.
func (p UnavailabilityPeriod) Blocks() bool {
	return p.Status == StatusActive && p.Approval == ApprovalApproved
}

// ParseClock converts "HH:MM" into minutes of day. "24:00" is accepted as end of day.
func ParseClock(raw string) (int, error) {
	if len(raw) != 5 || raw[2] != ':' {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	h, errH := strconv.Atoi(raw[:2])
	m, errM := strconv.Atoi(raw[3:])
	if errH != nil || errM != nil || m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock value %q", raw)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes of day as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
