package service

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// invalidCronRetry is how far a schedule with an unparseable expression is pushed out.
const invalidCronRetry = time.Hour

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// LoadTimezone resolves an IANA zone name, treating empty as UTC.
func LoadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// ValidateCron checks a five-field expression or descriptor together with its timezone.
func ValidateCron(expr, timezone string) error {
	if _, err := LoadTimezone(timezone); err != nil {
		return err
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextRun returns the first activation of expr strictly after from, evaluated
// in timezone and expressed in UTC.
func NextRun(expr, timezone string, from time.Time) (time.Time, error) {
	loc, err := LoadTimezone(timezone)
	if err != nil {
		return time.Time{}, err
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	next := schedule.Next(from.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", expr)
	}
	return next.UTC(), nil
}

// nextRunOrRetry falls back to a fixed retry delay when the stored expression cannot be evaluated.
func nextRunOrRetry(expr, timezone string, from time.Time) (time.Time, error) {
	next, err := NextRun(expr, timezone, from)
	if err != nil {
		return from.Add(invalidCronRetry).UTC(), err
	}
	return next, nil
}
