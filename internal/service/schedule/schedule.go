// Package schedule holds the static clinic windows, slot label generation and
// the clinic-timezone clock every slot comparison goes through.
package schedule

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// SlotLength is the fixed granularity of every clinic window
const SlotLength = 30 * time.Minute

// LabelLayout formats a slot label, zero padded 24h clock
const LabelLayout = "15:04"

// Window is a clinic's daily bookable interval [StartHour:00, EndHour:00)
type Window struct {
	StartHour int
	EndHour   int
}

var DefaultWindow = Window{StartHour: 10, EndHour: 16}

var clinicWindows = map[string]Window{
	"Janaklees Clinic":       {StartHour: 18, EndHour: 22},
	"Mahatet al Raml Clinic": {StartHour: 13, EndHour: 14},
}

// Resolve maps a clinic name onto its window; unknown and empty names get DefaultWindow
func Resolve(clinicName string) Window {
	if w, ok := clinicWindows[clinicName]; ok {
		return w
	}
	return DefaultWindow
}

// Labels returns the window's slot labels in order
func (w Window) Labels() []string {
	return GenerateSlots(w.StartHour, w.EndHour)
}

// GenerateSlots produces HH:MM labels at SlotLength steps over [start, end)
func GenerateSlots(startHour, endHour int) []string {
	if startHour >= endHour {
		return []string{}
	}

	perHour := int(time.Hour / SlotLength)
	labels := make([]string, 0, (endHour-startHour)*perHour)
	for h := startHour; h < endHour; h++ {
		for i := 0; i < perHour; i++ {
			m := i * int(SlotLength/time.Minute)
			labels = append(labels, fmt.Sprintf("%02d:%02d", h, m))
		}
	}
	return labels
}

// Clock pins slot arithmetic to the clinic's civil timezone
type Clock struct {
	loc *time.Location
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

// Label renders t as the slot label it occupies in clinic time
func (c *Clock) Label(t time.Time) string {
	return t.In(c.loc).Format(LabelLayout)
}

// DayBounds returns the closed interval [00:00:00.000, 23:59:59.999] of day in clinic time
func (c *Clock) DayBounds(day time.Time) (time.Time, time.Time) {
	d := day.In(c.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc)
	end := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, int(999*time.Millisecond), c.loc)
	return start, end
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate accepts a calendar date or a timestamp. Values without an offset
// are read as clinic time.
func (c *Clock) ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
