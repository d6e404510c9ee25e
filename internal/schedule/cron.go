package schedule

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"project-alert-service/internal/apperr"
)

const cronFields = 5

// ValidateCron accepts exactly five whitespace-separated fields that robfig
// can parse. Descriptors such as @daily are rejected.
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != cronFields {
		return apperr.Configf("cron expression %q must have %d fields, got %d", expr, cronFields, len(fields))
	}
	if _, err := cron.ParseStandard(strings.Join(fields, " ")); err != nil {
		return apperr.Configf("invalid cron expression %q: %v", expr, err)
	}
	return nil
}

// ValidateTimezone accepts an empty value or an IANA zone name.
func ValidateTimezone(tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return apperr.Configf("invalid timezone %q", tz)
	}
	return nil
}

// parseSchedule turns an effective cron/timezone pair into a cron.Schedule.
func parseSchedule(expr, tz string) (cron.Schedule, error) {
	spec := strings.Join(strings.Fields(expr), " ")
	if tz != "" {
		spec = "CRON_TZ=" + tz + " " + spec
	}
	return cron.ParseStandard(spec)
}
