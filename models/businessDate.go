package models

import (
	"fmt"
	"strings"
	"time"
)

const BusinessDateLayout = "2006-01-02"

// ParseBusinessDate validates a YYYY-MM-DD business date and returns its canonical form.
func ParseBusinessDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(BusinessDateLayout, s)
	if err != nil {
		return "", NewValidationError("date", fmt.Sprintf("invalid business date %q", s))
	}
	return t.Format(BusinessDateLayout), nil
}

// BusinessDateOf returns the UTC calendar date of t.
func BusinessDateOf(t time.Time) string {
	return t.UTC().Format(BusinessDateLayout)
}

// ValidateDateRange checks start <= end and that the window spans at most maxDays days.
// maxDays <= 0 disables the width check.
func ValidateDateRange(start, end string, maxDays int) (string, string, error) {
	s, err := ParseBusinessDate(start)
	if err != nil {
		return "", "", NewValidationError("start", err.(*ValidationError).Message)
	}
	e, err := ParseBusinessDate(end)
	if err != nil {
		return "", "", NewValidationError("end", err.(*ValidationError).Message)
	}
	if e < s {
		return "", "", NewValidationError("end", "end date is before start date")
	}
	if maxDays > 0 {
		st, _ := time.Parse(BusinessDateLayout, s)
		et, _ := time.Parse(BusinessDateLayout, e)
		if days := int(et.Sub(st).Hours()/24) + 1; days > maxDays {
			return "", "", NewValidationError("end", fmt.Sprintf("date range spans %d days, limit is %d", days, maxDays))
		}
	}
	return s, e, nil
}
