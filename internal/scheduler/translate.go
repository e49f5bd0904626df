package scheduler

import (
	"fmt"
	"strings"
)

// Cron expressions cross the system boundary in two dialects: the Unix
// 6-field form (seconds first, `*` wildcards) used internally, and the
// Quartz form where day-of-month and day-of-week cannot both be `*`; one
// of them must be `?`. Translation is mechanical and lossless.

const cronFieldCount = 6

const (
	fieldDayOfMonth = 3
	fieldDayOfWeek  = 5
)

// ToQuartz converts a Unix 6-field expression to its Quartz equivalent.
// When both day fields are `*`, day-of-week becomes `?`. When exactly one
// day field is concrete, the other becomes `?`. Expressions already using
// `?`, or with both day fields concrete, pass through unchanged.
func ToQuartz(expr string) (string, error) {
	fields, err := splitFields(expr)
	if err != nil {
		return "", err
	}

	dom, dow := fields[fieldDayOfMonth], fields[fieldDayOfWeek]

	if dom == "?" || dow == "?" {
		return strings.Join(fields, " "), nil
	}

	switch {
	case dom == "*" && dow == "*":
		fields[fieldDayOfWeek] = "?"
	case dom == "*" && dow != "*":
		fields[fieldDayOfMonth] = "?"
	case dom != "*" && dow == "*":
		fields[fieldDayOfWeek] = "?"
	}

	return strings.Join(fields, " "), nil
}

// FromQuartz converts a Quartz 6-field expression back to the Unix form by
// replacing `?` with `*`.
func FromQuartz(expr string) (string, error) {
	fields, err := splitFields(expr)
	if err != nil {
		return "", err
	}

	for i, f := range fields {
		if f == "?" {
			fields[i] = "*"
		}
	}

	return strings.Join(fields, " "), nil
}

func splitFields(expr string) ([]string, error) {
	fields := strings.Fields(expr)
	if len(fields) != cronFieldCount {
		return nil, fmt.Errorf("cron expression must have %d fields, got %d: %q", cronFieldCount, len(fields), expr)
	}
	return fields, nil
}
