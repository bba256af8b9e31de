package dto

import "time"

// TransitionQuery asks for the offset transitions of a timezone in a year.
type TransitionQuery struct {
	Timezone string `form:"tz" json:"tz" validate:"required"`
	Year     int    `form:"year" json:"year" validate:"required,min=1970,max=2100"`
}

// ReanchorRequest replays a single transition against stored occurrences.
type ReanchorRequest struct {
	Timezone            string    `json:"timezone" validate:"required"`
	Instant             time.Time `json:"instant" validate:"required"`
	Type                string    `json:"type" validate:"required,oneof=forward backward"`
	OffsetBeforeMinutes int       `json:"offsetBeforeMinutes"`
	OffsetAfterMinutes  int       `json:"offsetAfterMinutes"`
}

// ReanchorReport summarises one reanchor run for a transition.
type ReanchorReport struct {
	Timezone string       `json:"timezone" yaml:"timezone"`
	Instant  time.Time    `json:"instant" yaml:"instant"`
	Examined int          `json:"examined" yaml:"examined"`
	Adjusted int          `json:"adjusted" yaml:"adjusted"`
	Skipped  int          `json:"skipped" yaml:"skipped"`
	Failed   int          `json:"failed" yaml:"failed"`
	Errors   []SweepError `json:"errors" yaml:"errors"`
}
