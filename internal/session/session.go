// Package session provides the market-session clock that gates signal
// evaluation.
package session

import (
	"time"

	"orderflow-signals/internal/models"
)

// Boundaries holds the trading-calendar cut points, in minutes from
// midnight local time.
type Boundaries struct {
	PreOpenStart int // pre-open begins, default 9:00
	Open         int // pre-open ends and live trading begins, default 9:15
	Close        int // live trading ends, default 15:30
	Weekdays     map[time.Weekday]bool
}

// DefaultBoundaries returns the NSE trading calendar.
func DefaultBoundaries() Boundaries {
	return Boundaries{
		PreOpenStart: 9 * 60,      // 9:00 AM
		Open:         9*60 + 15,   // 9:15 AM
		Close:        15*60 + 30,  // 3:30 PM
		Weekdays: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
	}
}

// Clock classifies wall-clock time into a market session state.
type Clock struct {
	location   *time.Location
	boundaries Boundaries
	holidays   map[string]bool // date string -> is holiday
}

// NewClock creates a session clock for the default NSE calendar.
func NewClock() *Clock {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*60*60+30*60)
	}
	return NewClockWith(loc, DefaultBoundaries())
}

// NewClockWith creates a session clock with custom location and boundaries.
func NewClockWith(loc *time.Location, b Boundaries) *Clock {
	return &Clock{
		location:   loc,
		boundaries: b,
		holidays:   make(map[string]bool),
	}
}

// AddHoliday adds a market holiday.
func (c *Clock) AddHoliday(date time.Time) {
	c.holidays[date.In(c.location).Format("2006-01-02")] = true
}

// IsHoliday checks if a date is a market holiday.
func (c *Clock) IsHoliday(date time.Time) bool {
	return c.holidays[date.In(c.location).Format("2006-01-02")]
}

// Classify returns the session state at time t. It is a pure, total
// function: any input time yields exactly one state.
func (c *Clock) Classify(t time.Time) models.SessionState {
	t = t.In(c.location)

	if !c.boundaries.Weekdays[t.Weekday()] {
		return models.SessionClosed
	}
	if c.IsHoliday(t) {
		return models.SessionClosed
	}

	timeMinutes := t.Hour()*60 + t.Minute()

	switch {
	case timeMinutes >= c.boundaries.PreOpenStart && timeMinutes < c.boundaries.Open:
		return models.SessionPreOpen
	case timeMinutes >= c.boundaries.Open && timeMinutes < c.boundaries.Close:
		return models.SessionLive
	default:
		return models.SessionClosed
	}
}

// Now returns the session state at the current time.
func (c *Clock) Now() models.SessionState {
	return c.Classify(time.Now())
}

// IsLive checks if the market is currently in the live session.
func (c *Clock) IsLive() bool {
	return c.Now() == models.SessionLive
}

// NextOpen returns the next time the live session begins.
func (c *Clock) NextOpen(after time.Time) time.Time {
	t := after.In(c.location)
	open := time.Date(t.Year(), t.Month(), t.Day(),
		c.boundaries.Open/60, c.boundaries.Open%60, 0, 0, c.location)

	if !t.Before(open) {
		open = open.AddDate(0, 0, 1)
	}
	for !c.boundaries.Weekdays[open.Weekday()] || c.IsHoliday(open) {
		open = open.AddDate(0, 0, 1)
	}
	return open
}

// TodayClose returns the close time on t's trading day.
func (c *Clock) TodayClose(t time.Time) time.Time {
	t = t.In(c.location)
	return time.Date(t.Year(), t.Month(), t.Day(),
		c.boundaries.Close/60, c.boundaries.Close%60, 0, 0, c.location)
}
