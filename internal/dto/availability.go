package dto

import "time"

// AvailabilityQuery carries a candidate booking window.
type AvailabilityQuery struct {
	Start     time.Time `form:"start" json:"start" validate:"required"`
	End       time.Time `form:"end" json:"end" validate:"required"`
	ExcludeID string    `form:"excludeId" json:"excludeId"`
}

// FreeSegmentsQuery asks for free time inside a window, optionally rendered in a display timezone.
type FreeSegmentsQuery struct {
	Start    time.Time `form:"start" json:"start" validate:"required"`
	End      time.Time `form:"end" json:"end" validate:"required"`
	Timezone string    `form:"tz" json:"tz"`
}

// Segment is a free range expressed in UTC and in the display timezone.
type Segment struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	LocalStart   string    `json:"localStart,omitempty"`
	LocalEnd     string    `json:"localEnd,omitempty"`
	DurationMins int       `json:"durationMinutes"`
}

// FreeSummary is the shareable "when is this teacher free" view.
type FreeSummary struct {
	TeacherID   string    `json:"teacherId"`
	TeacherName string    `json:"teacherName"`
	Timezone    string    `json:"timezone"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Segments    []Segment `json:"segments"`
	TotalMins   int       `json:"totalMinutes"`
}
