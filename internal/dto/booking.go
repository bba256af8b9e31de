package dto

import "time"

// BookOccurrenceRequest books a single lesson.
type BookOccurrenceRequest struct {
	TeacherID       string    `json:"teacherId" validate:"required"`
	StudentID       string    `json:"studentId" validate:"required"`
	Subject         *string   `json:"subject"`
	ScheduledAt     time.Time `json:"scheduledAt" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"required,min=5,max=480"`
	Anchor          string    `json:"anchor" validate:"required,oneof=student teacher"`
	AnchorTimezone  string    `json:"anchorTimezone" validate:"required"`
}

// RescheduleOccurrenceRequest moves an existing lesson.
type RescheduleOccurrenceRequest struct {
	ScheduledAt     time.Time `json:"scheduledAt" validate:"required"`
	DurationMinutes *int      `json:"durationMinutes" validate:"omitempty,min=5,max=480"`
}
