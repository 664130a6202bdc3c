// Package validation содержит функции валидации входных данных.
package validation

import (
	"time"
)

// EventDateLayout задаёт формат даты события.
const EventDateLayout = "2006-01-02"

// IsValidEventDate проверяет, что дата события записана как YYYY-MM-DD и существует в календаре.
func IsValidEventDate(date string) bool {
	if len(date) != len(EventDateLayout) {
		return false
	}
	_, err := time.Parse(EventDateLayout, date)
	return err == nil
}

// ParseTime разбирает границу периода: RFC 3339 либо миллисекунды Unix.
func ParseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	ms, err := parseInt(raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
