package dto

import "time"

// CreateSlotRequest registers a weekly availability window.
type CreateSlotRequest struct {
	DayOfWeek     int        `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime     string     `json:"startTime" validate:"required,len=5"`
	EndTime       string     `json:"endTime" validate:"required,len=5"`
	Timezone      string     `json:"timezone" validate:"required"`
	EffectiveFrom *time.Time `json:"effectiveFrom"`
	EffectiveTo   *time.Time `json:"effectiveTo"`
}

// UpdateSlotRequest patches a weekly availability window.
type UpdateSlotRequest struct {
	DayOfWeek     *int       `json:"dayOfWeek" validate:"omitempty,min=0,max=6"`
	StartTime     *string    `json:"startTime" validate:"omitempty,len=5"`
	EndTime       *string    `json:"endTime" validate:"omitempty,len=5"`
	Timezone      *string    `json:"timezone"`
	EffectiveFrom *time.Time `json:"effectiveFrom"`
	EffectiveTo   *time.Time `json:"effectiveTo"`
}

// CreateUnavailabilityRequest blocks an absolute range.
type CreateUnavailabilityRequest struct {
	StartAt time.Time `json:"startAt" validate:"required"`
	EndAt   time.Time `json:"endAt" validate:"required"`
	Reason  string    `json:"reason" validate:"required,max=255"`
}
