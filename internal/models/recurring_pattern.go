package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/jmoiron/sqlx/types"
)

// PatternStatus is the lifecycle state of a recurring pattern.
type PatternStatus string

const (
	PatternActive PatternStatus = "active"
	PatternPaused PatternStatus = "paused"
	PatternEnded  PatternStatus = "ended"
)

// PatternSlot is one weekly lesson time expressed in a local timezone.
type PatternSlot struct {
	Hour            int    `json:"hour"`
	Minute          int    `json:"minute"`
	DurationMinutes int    `json:"duration"`
	Timezone        string `json:"timezone"`
}

// Key identifies the slot inside a calendar day.
func (s PatternSlot) Key() string {
	return fmt.Sprintf("%02d%02d@%s", s.Hour, s.Minute, s.Timezone)
}

// RecurringPattern is a weekly lesson template materialised into occurrences.
type RecurringPattern struct {
	ID               string            `db:"id" json:"id"`
	TeacherID        string            `db:"teacher_id" json:"teacher_id"`
	StudentID        string            `db:"student_id" json:"student_id"`
	Subject          *string           `db:"subject" json:"subject,omitempty"`
	Anchor           AnchorDesignation `db:"anchor" json:"anchor"`
	Slots            types.JSONText    `db:"slots" json:"slots,omitempty"`
	AnchorInstant    *time.Time        `db:"anchor_instant" json:"anchor_instant,omitempty"`
	AnchorTimezone   *string           `db:"anchor_timezone" json:"anchor_timezone,omitempty"`
	DurationMinutes  int               `db:"duration_minutes" json:"duration_minutes"`
	HorizonMonths    int               `db:"horizon_months" json:"horizon_months"`
	GeneratedThrough *time.Time        `db:"generated_through" json:"generated_through,omitempty"`
	Status           PatternStatus     `db:"status" json:"status"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// RecurrenceSourceKind tags how a pattern's weekly slots were obtained.
type RecurrenceSourceKind string

const (
	SourceExplicitPerDaySlots RecurrenceSourceKind = "explicit_per_day_slots"
	SourceDerivedFromAnchor   RecurrenceSourceKind = "derived_from_anchor"
)

// RecurrenceSource is the resolved weekly slot map of a pattern.
type RecurrenceSource struct {
	Kind  RecurrenceSourceKind
	Slots map[time.Weekday][]PatternSlot
}

// Weekdays returns the configured weekdays in ascending order.
func (r RecurrenceSource) Weekdays() []time.Weekday {
	days := make([]time.Weekday, 0, len(r.Slots))
	for day := range r.Slots {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// ResolveSource decides once whether the pattern has explicit per-day slots or
// needs a single slot derived from its anchor instant.
func (p RecurringPattern) ResolveSource() (RecurrenceSource, error) {
	explicit, err := decodePatternSlots(p.Slots)
	if err != nil {
		return RecurrenceSource{}, err
	}
	if len(explicit) > 0 {
		for day, slots := range explicit {
			for i := range slots {
				if slots[i].DurationMinutes <= 0 {
					slots[i].DurationMinutes = p.DurationMinutes
				}
				if slots[i].Timezone == "" && p.AnchorTimezone != nil {
					slots[i].Timezone = *p.AnchorTimezone
				}
				if err := validatePatternSlot(slots[i]); err != nil {
					return RecurrenceSource{}, fmt.Errorf("weekday %d: %w", day, err)
				}
			}
		}
		return RecurrenceSource{Kind: SourceExplicitPerDaySlots, Slots: explicit}, nil
	}

	if p.AnchorInstant == nil {
		return RecurrenceSource{}, fmt.Errorf("pattern %s has neither slots nor an anchor instant", p.ID)
	}
	tz := "UTC"
	if p.AnchorTimezone != nil && *p.AnchorTimezone != "" {
		tz = *p.AnchorTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return RecurrenceSource{}, fmt.Errorf("load anchor timezone %q: %w", tz, err)
	}
	local := p.AnchorInstant.In(loc)
	slot := PatternSlot{Hour: local.Hour(), Minute: local.Minute(), DurationMinutes: p.DurationMinutes, Timezone: tz}
	if err := validatePatternSlot(slot); err != nil {
		return RecurrenceSource{}, err
	}
	return RecurrenceSource{
		Kind:  SourceDerivedFromAnchor,
		Slots: map[time.Weekday][]PatternSlot{local.Weekday(): {slot}},
	}, nil
}

func validatePatternSlot(s PatternSlot) error {
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("invalid slot time %02d:%02d", s.Hour, s.Minute)
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("slot duration must be positive")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("load slot timezone %q: %w", s.Timezone, err)
	}
	return nil
}

func decodePatternSlots(raw types.JSONText) (map[time.Weekday][]PatternSlot, error) {
	result := make(map[time.Weekday][]PatternSlot)
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		return result, nil
	}
	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("decode pattern slots: %w", err)
	}
	for key, value := range byKey {
		day, ok := parseWeekdayKey(key)
		if !ok {
			return nil, fmt.Errorf("unknown weekday key %q", key)
		}
		var many []PatternSlot
		if err := json.Unmarshal(value, &many); err != nil {
			var single PatternSlot
			if errSingle := json.Unmarshal(value, &single); errSingle != nil {
				return nil, fmt.Errorf("decode slots for %q: %w", key, err)
			}
			many = []PatternSlot{single}
		}
		if len(many) > 0 {
			result[day] = append(result[day], many...)
		}
	}
	return result, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekdayKey(key string) (time.Weekday, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if n, err := strconv.Atoi(key); err == nil {
		if n < 0 || n > 6 {
			return 0, false
		}
		return time.Weekday(n), true
	}
	day, ok := weekdayNames[key]
	return day, ok
}
