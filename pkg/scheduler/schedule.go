package scheduler

import (
	"time"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// intervalSchedule implements cron.Schedule for the fixed-cadence EVERY_*
// schedule kinds. Unlike robfig/cron's own ConstantDelaySchedule, fires are
// anchored to a specific point in time (typically the last run's
// finished_at) rather than to whenever the schedule was registered, so a
// replica that restarts mid-cycle does not reset the cadence.
type intervalSchedule struct {
	interval time.Duration
	anchor   time.Time
}

// Next returns the earliest anchor + k*interval strictly after now.
func (s intervalSchedule) Next(now time.Time) time.Time {
	next := s.anchor.Add(s.interval)
	for !next.After(now) {
		next = next.Add(s.interval)
	}
	return next
}

// intervalFor maps a fixed-cadence schedule kind to its duration. Ok is
// false for INACTIVE and CRONTAB, which are handled elsewhere.
func intervalFor(schedule model.Schedule) (time.Duration, bool) {
	switch schedule {
	case model.ScheduleEverySecond:
		return time.Second, true
	case model.ScheduleEveryMinute:
		return time.Minute, true
	case model.ScheduleEveryHour:
		return time.Hour, true
	case model.ScheduleEveryDay:
		return 24 * time.Hour, true
	case model.ScheduleEveryWeek:
		return 7 * 24 * time.Hour, true
	case model.ScheduleEveryMonth:
		// Calendar months are not guaranteed; a 30-day interval is the
		// documented approximation.
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
