package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseSchedule translates a schedule expression into a robfig/cron spec.
//
// Accepted forms:
//
//	rate(5 minutes), rate(1 hour), rate(2 days)
//	cron(0 * * * ? *)          six-field cron with year, '?' allowed
//	@hourly, @every 10m        cron descriptors
//	*/5 * * * *                standard five-field cron
func ParseSchedule(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	var spec string
	switch {
	case expr == "":
		return "", fmt.Errorf("empty schedule expression")
	case strings.HasPrefix(expr, "rate(") && strings.HasSuffix(expr, ")"):
		d, err := parseRate(strings.TrimSuffix(strings.TrimPrefix(expr, "rate("), ")"))
		if err != nil {
			return "", fmt.Errorf("schedule %q: %w", expr, err)
		}
		spec = EverySpec(d)
	case strings.HasPrefix(expr, "cron(") && strings.HasSuffix(expr, ")"):
		fields := strings.Fields(strings.TrimSuffix(strings.TrimPrefix(expr, "cron("), ")"))
		if len(fields) != 6 {
			return "", fmt.Errorf("schedule %q: cron() needs 6 fields, got %d", expr, len(fields))
		}
		if fields[5] != "*" {
			return "", fmt.Errorf("schedule %q: only a wildcard year is supported", expr)
		}
		for i, f := range fields[:5] {
			if f == "?" {
				fields[i] = "*"
			}
		}
		spec = strings.Join(fields[:5], " ")
	default:
		spec = expr
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return "", fmt.Errorf("schedule %q: %w", expr, err)
	}
	return spec, nil
}

// EverySpec returns the cron descriptor for a fixed interval.
func EverySpec(d time.Duration) string {
	return "@every " + d.String()
}

func parseRate(body string) (time.Duration, error) {
	parts := strings.Fields(body)
	if len(parts) != 2 {
		return 0, fmt.Errorf("rate needs a value and a unit")
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("rate value must be a positive integer, got %q", parts[0])
	}

	var unit time.Duration
	switch parts[1] {
	case "minute", "minutes":
		unit = time.Minute
	case "hour", "hours":
		unit = time.Hour
	case "day", "days":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown rate unit %q", parts[1])
	}
	return time.Duration(n) * unit, nil
}
