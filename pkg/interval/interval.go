// Package interval implements half-open [Start, End) range algebra over UTC
// instants. All comparisons are performed at millisecond granularity.
package interval

import (
	"sort"
	"time"
)

// Interval types produced by the availability engine.
const (
	TypeClass       = "existing_class"
	TypeUnavailable = "unavailable_period"
	TypeMerged      = "merged"
	TypeFree        = "free"
)

// Interval is a half-open time range with optional provenance metadata.
type Interval struct {
	Start time.Time        `json:"start"`
	End   time.Time        `json:"end"`
	Type  string           `json:"type,omitempty"`
	Meta  []map[string]any `json:"meta,omitempty"`
}

// New builds a normalised interval.
func New(start, end time.Time, typ string, meta map[string]any) Interval {
	iv := Interval{Start: Normalize(start), End: Normalize(end), Type: typ}
	if meta != nil {
		iv.Meta = []map[string]any{meta}
	}
	return iv
}

// Normalize truncates t to the millisecond and converts it to UTC.
func Normalize(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// Duration returns End-Start, or zero for empty intervals.
func (i Interval) Duration() time.Duration {
	d := i.End.UnixMilli() - i.Start.UnixMilli()
	if d <= 0 {
		return 0
	}
	return time.Duration(d) * time.Millisecond
}

// Empty reports whether the interval contains no instants.
func (i Interval) Empty() bool {
	return i.End.UnixMilli() <= i.Start.UnixMilli()
}

// Overlaps is the half-open overlap test a.Start < b.End && a.End > b.Start.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.UnixMilli() < bEnd.UnixMilli() && aEnd.UnixMilli() > bStart.UnixMilli()
}

// Clip restricts iv to window. The second return value is false when nothing remains.
func Clip(iv, window Interval) (Interval, bool) {
	start, end := iv.Start, iv.End
	if start.UnixMilli() < window.Start.UnixMilli() {
		start = window.Start
	}
	if end.UnixMilli() > window.End.UnixMilli() {
		end = window.End
	}
	out := Interval{Start: Normalize(start), End: Normalize(end), Type: iv.Type, Meta: iv.Meta}
	if out.Empty() {
		return Interval{}, false
	}
	return out, true
}

// Merge sorts intervals and combines overlapping or touching ones. Metadata of
// combined sources is concatenated; the type becomes TypeMerged when sources differ.
func Merge(list []Interval) []Interval {
	items := make([]Interval, 0, len(list))
	for _, iv := range list {
		norm := Interval{Start: Normalize(iv.Start), End: Normalize(iv.End), Type: iv.Type, Meta: iv.Meta}
		if norm.Empty() {
			continue
		}
		items = append(items, norm)
	}
	if len(items) == 0 {
		return []Interval{}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Start.Equal(items[j].Start) {
			return items[i].End.Before(items[j].End)
		}
		return items[i].Start.Before(items[j].Start)
	})

	merged := make([]Interval, 0, len(items))
	current := copyInterval(items[0])
	for _, next := range items[1:] {
		if next.Start.UnixMilli() <= current.End.UnixMilli() {
			if next.End.After(current.End) {
				current.End = next.End
			}
			if current.Type != next.Type {
				current.Type = TypeMerged
			}
			current.Meta = append(current.Meta, next.Meta...)
			continue
		}
		merged = append(merged, current)
		current = copyInterval(next)
	}
	merged = append(merged, current)
	return merged
}

// Subtract returns the free segments of window not covered by busy.
func Subtract(window Interval, busy []Interval) []Interval {
	window = Interval{Start: Normalize(window.Start), End: Normalize(window.End)}
	if window.Empty() {
		return []Interval{}
	}

	clipped := make([]Interval, 0, len(busy))
	for _, iv := range busy {
		if c, ok := Clip(iv, window); ok {
			clipped = append(clipped, c)
		}
	}

	free := make([]Interval, 0)
	cursor := window.Start
	for _, iv := range Merge(clipped) {
		if iv.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: iv.Start, Type: TypeFree})
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if window.End.After(cursor) {
		free = append(free, Interval{Start: cursor, End: window.End, Type: TypeFree})
	}
	return free
}

func copyInterval(iv Interval) Interval {
	out := iv
	if iv.Meta != nil {
		out.Meta = append([]map[string]any(nil), iv.Meta...)
	}
	return out
}
