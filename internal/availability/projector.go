package availability

import (
	"fmt"
	"time"

	"github.com/hireloop/scheduling/internal/interval"
	"github.com/hireloop/scheduling/internal/model"
)

// ProjectWorkingHours expands recurring weekly patterns into concrete UTC
// spans inside the [window.Start, window.End) UTC window.
//
// Each local HH:MM pair is resolved in the pattern's IANA zone at the specific
// calendar date being projected, so DST transitions shift the UTC offset per
// occurrence. Offsets are never reused across dates.
//
// When several patterns are active for the same owner on a date, the one with
// the later EffectiveFrom wins (overlapping ranges are a configuration error
// upstream; the projector resolves them deterministically).
func ProjectWorkingHours(patterns []model.WorkingHoursPattern, window interval.Span) ([]interval.Span, error) {
	if !window.Valid() {
		return nil, &ValidationError{Field: "range", Msg: "from must be before to"}
	}

	var spans []interval.Span
	for _, p := range patterns {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			return nil, &ValidationError{Field: "timezone", Msg: fmt.Sprintf("invalid IANA zone %q", p.Timezone)}
		}

		// Walk local calendar dates. Start one day early: a local day that
		// begins before window.Start in UTC can still produce spans inside it.
		first := window.Start.In(loc)
		last := window.End.In(loc)
		day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
		end := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

		for ; !day.After(end); day = day.AddDate(0, 0, 1) {
			if !patternActiveOn(p, day) || shadowedOn(p, patterns, day) {
				continue
			}
			for _, e := range p.Entries {
				if e.Weekday != int(day.Weekday()) {
					continue
				}
				sh, sm, err := parseHHMM(e.StartLocal)
				if err != nil {
					return nil, &ValidationError{Field: "start_local", Msg: err.Error()}
				}
				eh, em, err := parseHHMM(e.EndLocal)
				if err != nil {
					return nil, &ValidationError{Field: "end_local", Msg: err.Error()}
				}
				start := time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, loc).UTC()
				stop := time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, loc).UTC()
				if !start.Before(stop) {
					return nil, &ValidationError{Field: "working_hours", Msg: fmt.Sprintf("start %s must be before end %s", e.StartLocal, e.EndLocal)}
				}
				spans = append(spans, interval.Span{Start: start, End: stop})
			}
		}
	}

	return interval.Merge(interval.Clamp(spans, window)), nil
}

// patternActiveOn checks the pattern's effective date bounds against a local
// midnight. Bounds are inclusive dates.
func patternActiveOn(p model.WorkingHoursPattern, localDay time.Time) bool {
	d := localDay.Format("2006-01-02")
	if p.EffectiveFrom != nil && d < p.EffectiveFrom.Format("2006-01-02") {
		return false
	}
	if p.EffectiveTo != nil && d > p.EffectiveTo.Format("2006-01-02") {
		return false
	}
	return true
}

// shadowedOn reports whether another pattern for the same owner is active on
// the date with a later effective start.
func shadowedOn(p model.WorkingHoursPattern, all []model.WorkingHoursPattern, localDay time.Time) bool {
	for _, o := range all {
		if o.ID == p.ID || o.OwnerID != p.OwnerID {
			continue
		}
		if !patternActiveOn(o, localDay) {
			continue
		}
		if effectiveFromAfter(o, p) {
			return true
		}
	}
	return false
}

func effectiveFromAfter(a, b model.WorkingHoursPattern) bool {
	switch {
	case a.EffectiveFrom == nil:
		return false
	case b.EffectiveFrom == nil:
		return true
	default:
		return a.EffectiveFrom.After(*b.EffectiveFrom)
	}
}

func parseHHMM(s string) (hour, min int, err error) {
	if len(s) < 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	t, err := time.Parse("15:04", s[:5])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
