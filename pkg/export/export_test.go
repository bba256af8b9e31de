package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	return Table{
		Title:   "Free time",
		Columns: []string{"Start", "End", "Minutes"},
		Rows: [][]string{
			{"2025-03-12T10:00:00+02:00", "2025-03-12T11:00:00+02:00", "60"},
			{"2025-03-12T13:00:00+02:00", "2025-03-12T13:30:00+02:00", "30"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleTable())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Start,End,Minutes", lines[0])
	assert.Equal(t, "2025-03-12T13:00:00+02:00,2025-03-12T13:30:00+02:00,30", lines[2])
}

func TestTableValidation(t *testing.T) {
	_, err := NewCSVExporter().Render(Table{})
	assert.Error(t, err)

	ragged := sampleTable()
	ragged.Rows = append(ragged.Rows, []string{"only one"})
	_, err = NewPDFExporter().Render(ragged)
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	table := sampleTable()
	table.Caption = "Africa/Cairo"

	out, err := NewPDFExporter().Render(table)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestCalendarExporterRoundTrip(t *testing.T) {
	start := time.Date(2025, time.March, 10, 13, 0, 0, 0, time.UTC)
	feed := Calendar{
		Name:     "Amina Farouk",
		Timezone: "America/New_York",
		Events: []CalendarEvent{
			{UID: "occ-1@tutor-scheduler", Summary: "math with Laila", Start: start, End: start.Add(time.Hour)},
			{UID: "occ-2@tutor-scheduler", Summary: "math with Omar", Start: start.Add(48 * time.Hour), End: start.Add(49 * time.Hour), Cancelled: true},
		},
	}

	out, err := NewCalendarExporter("").Render(feed)
	require.NoError(t, err)

	cal, err := ical.ParseCalendar(bytes.NewReader(out))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "occ-1@tutor-scheduler", events[0].GetProperty(ical.ComponentPropertyUniqueId).Value)
	assert.Equal(t, "math with Laila", events[0].GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "20250310T130000Z", events[0].GetProperty(ical.ComponentPropertyDtStart).Value)
	assert.Equal(t, "CANCELLED", events[1].GetProperty(ical.ComponentPropertyStatus).Value)
}

func TestCalendarExporterRejectsBadEvents(t *testing.T) {
	start := time.Date(2025, time.March, 10, 13, 0, 0, 0, time.UTC)

	_, err := NewCalendarExporter("").Render(Calendar{Events: []CalendarEvent{{Start: start, End: start.Add(time.Hour)}}})
	assert.Error(t, err)

	_, err = NewCalendarExporter("").Render(Calendar{Events: []CalendarEvent{{UID: "x", Start: start, End: start}}})
	assert.Error(t, err)
}
