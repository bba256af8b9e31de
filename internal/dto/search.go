package dto

// RequestedSegment is a local HH:MM window asked for on a weekday.
type RequestedSegment struct {
	Start string `json:"start" validate:"required,len=5"`
	End   string `json:"end" validate:"required,len=5"`
}

// DayRequest lists the requested segments for one weekday. An empty list means any time.
type DayRequest struct {
	Weekday  int                `json:"weekday" validate:"min=0,max=6"`
	Segments []RequestedSegment `json:"segments" validate:"omitempty,dive"`
}

// SearchFilters narrow the candidate teachers before scoring.
type SearchFilters struct {
	Subject string `json:"subject"`
	Gender  string `json:"gender" validate:"omitempty,oneof=male female"`
	MinAge  *int   `json:"minAge" validate:"omitempty,min=0"`
	MaxAge  *int   `json:"maxAge" validate:"omitempty,min=0"`
}

// SearchTeachersRequest describes a "who is free for X" query.
type SearchTeachersRequest struct {
	Days            []DayRequest  `json:"days" validate:"required,min=1,max=7,dive"`
	DurationMinutes int           `json:"durationMinutes" validate:"required,min=5,max=480"`
	From            string        `json:"from" validate:"omitempty,datetime=2006-01-02"`
	Weeks           int           `json:"weeks" validate:"omitempty,min=1,max=8"`
	TeacherIDs      []string      `json:"teacherIds"`
	Filters         SearchFilters `json:"filters"`
}

// MatchedSegment is a free range satisfying a requested segment, in the display timezone.
type MatchedSegment struct {
	Date      string `json:"date"`
	Weekday   int    `json:"weekday"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Requested string `json:"requested,omitempty"`
}

// TeacherMatch is a scored search hit.
type TeacherMatch struct {
	TeacherID   string           `json:"teacherId"`
	TeacherName string           `json:"teacherName"`
	Score       int              `json:"score"`
	Segments    []MatchedSegment `json:"segments"`
}

// SearchStats counts how candidates were classified.
type SearchStats struct {
	Candidates     int `json:"candidates"`
	Filtered       int `json:"filtered"`
	NoAvailability int `json:"noAvailability"`
	Failed         int `json:"failed"`
	Exact          int `json:"exact"`
	Flexible       int `json:"flexible"`
}

// SearchTeachersResponse is the search result set.
type SearchTeachersResponse struct {
	Timezone        string         `json:"timezone"`
	ExactMatches    []TeacherMatch `json:"exactMatches"`
	FlexibleMatches []TeacherMatch `json:"flexibleMatches"`
	Stats           SearchStats    `json:"stats"`
	Diagnostic      string         `json:"diagnostic,omitempty"`
}
