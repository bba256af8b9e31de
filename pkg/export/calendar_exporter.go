package export

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
)

// CalendarEvent is one VEVENT of an exported feed.
type CalendarEvent struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Cancelled   bool
	Updated     time.Time
}

// Calendar is an iCalendar feed.
type Calendar struct {
	Name     string
	Timezone string
	Events   []CalendarEvent
}

// CalendarExporter serialises feeds as text/calendar.
type CalendarExporter struct {
	productID string
}

// NewCalendarExporter builds an exporter stamping productID into PRODID.
func NewCalendarExporter(productID string) *CalendarExporter {
	if productID == "" {
		productID = "-//tutor-scheduler//calendar//EN"
	}
	return &CalendarExporter{productID: productID}
}

// Render emits a VCALENDAR with one VEVENT per event. Instants are written in UTC.
func (e *CalendarExporter) Render(feed Calendar) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(e.productID)
	if feed.Name != "" {
		cal.SetXWRCalName(feed.Name)
	}
	if feed.Timezone != "" {
		cal.SetXWRTimezone(feed.Timezone)
	}

	for _, item := range feed.Events {
		if item.UID == "" {
			return nil, fmt.Errorf("calendar event requires a uid")
		}
		if !item.End.After(item.Start) {
			return nil, fmt.Errorf("calendar event %s ends before it starts", item.UID)
		}
		event := cal.AddEvent(item.UID)
		stamp := item.Updated
		if stamp.IsZero() {
			stamp = item.Start
		}
		event.SetDtStampTime(stamp.UTC())
		event.SetStartAt(item.Start.UTC())
		event.SetEndAt(item.End.UTC())
		event.SetSummary(item.Summary)
		if item.Description != "" {
			event.SetDescription(item.Description)
		}
		if item.Cancelled {
			event.SetStatus(ical.ObjectStatusCancelled)
		} else {
			event.SetStatus(ical.ObjectStatusConfirmed)
		}
	}
	return []byte(cal.Serialize()), nil
}
