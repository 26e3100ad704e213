package calendar

import (
	"errors"
	"fmt"
	"time"

	lunarcal "github.com/6tail/lunar-go/calendar"
)

// ErrLunarConversion is returned when a Gregorian date cannot be converted to
// the Chinese lunisolar calendar.
var ErrLunarConversion = errors.New("lunar conversion failed")

// Placeholder is the label used when conversion fails.
const Placeholder = "乙巳年腊月"

// Lunar conversion is only attempted inside this window.
const (
	MinLunarYear = 1900
	MaxLunarYear = 2100
)

// LunarLabel returns "<lunar year><lunar month>" for the first day of the
// given Gregorian month, e.g. "丙午年正月" for March 2026.
func LunarLabel(month time.Month, year int) (label string, err error) {
	if year < MinLunarYear || year > MaxLunarYear {
		return "", fmt.Errorf("%w: year %d outside %d-%d", ErrLunarConversion, year, MinLunarYear, MaxLunarYear)
	}
	if month < time.January || month > time.December {
		return "", fmt.Errorf("%w: month %d", ErrLunarConversion, month)
	}

	defer func() {
		if r := recover(); r != nil {
			label, err = "", fmt.Errorf("%w: %v", ErrLunarConversion, r)
		}
	}()

	l := lunarcal.NewSolarFromYmd(year, int(month), 1).GetLunar()
	ganzhi, monthName := l.GetYearInGanZhi(), l.GetMonthInChinese()
	if ganzhi == "" || monthName == "" {
		return "", fmt.Errorf("%w: empty result for %d-%02d", ErrLunarConversion, year, month)
	}
	return ganzhi + "年" + monthName + "月", nil
}

// LunarLabelOr is LunarLabel with a fallback label on failure. The error is
// still returned so the caller can log it.
func LunarLabelOr(month time.Month, year int, fallback string) (string, error) {
	label, err := LunarLabel(month, year)
	if err != nil {
		return fallback, err
	}
	return label, nil
}

// Label resolves the month by name and returns its lunar label, falling back
// to January for unknown names and to Placeholder when conversion fails.
func Label(monthName string, year int) string {
	m, _ := ParseMonth(monthName)
	label, _ := LunarLabelOr(m, year, Placeholder)
	return label
}
