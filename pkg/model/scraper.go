package model

import "time"

// Schedule is the cadence at which a scraper's periodic task is triggered.
type Schedule string

const (
	ScheduleInactive    Schedule = "inactive"
	ScheduleEverySecond Schedule = "every_second"
	ScheduleEveryMinute Schedule = "every_minute"
	ScheduleEveryHour   Schedule = "every_hour"
	ScheduleEveryDay    Schedule = "every_day"
	ScheduleEveryWeek   Schedule = "every_week"
	ScheduleEveryMonth  Schedule = "every_month"
	ScheduleCrontab     Schedule = "crontab"
)

// Scraper is a persistent definition that, when scheduled, produces
// recurring tasks. Id is stable; Schedule == ScheduleCrontab requires
// Crontab to be set.
type Scraper struct {
	ID         string
	Name       string
	Handler    string
	Schedule   Schedule
	Crontab    string
	Priority   Priority
	Payload    string
	Timeout    *time.Duration
	// State is opaque, handler-owned state persisted between runs.
	State string
	// MiddlewareConfig maps middleware name to its per-scraper configuration.
	MiddlewareConfig map[string]map[string]any
}

// PeriodicTaskID identifies a periodic task descriptor across scheduler
// polls, independent of any particular Task instance's integer ID.
type PeriodicTaskID = string

// PeriodicTask is the unified descriptor of something that must be
// enqueued on a schedule, whether scraper-derived or internal housekeeping.
type PeriodicTask struct {
	ID       PeriodicTaskID
	Name     string
	Handler  string
	Priority Priority
	Payload  string
	Schedule Schedule
	Crontab  string
	Timeout  *time.Duration
	// ScraperID is the owning Scraper's ID, empty for non-scraper-derived
	// descriptors (e.g. housekeeping tasks). Enqueued tasks carry it so a
	// handler can update that scraper's persisted state.
	ScraperID string
	// State seeds the enqueued task's scraperctx state with the scraper's
	// last persisted value.
	State string
}
