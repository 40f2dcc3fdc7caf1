// Package calendar answers whether a market is open for trading at a
// given instant. Only equities observe a schedule; every other asset
// type trades around the clock.
package calendar

import "time"

var (
	equityOpen       = clockTime{9, 30}
	equityClose      = clockTime{16, 0}
	equityEarlyClose = clockTime{13, 0}

	// NYSE full-day holidays, dd-mm-yyyy.
	equityHolidays = map[string]bool{
		"01-01-2024": true, "15-01-2024": true, "19-02-2024": true,
		"29-03-2024": true, "27-05-2024": true, "19-06-2024": true,
		"04-07-2024": true, "02-09-2024": true, "28-11-2024": true,
		"25-12-2024": true,
		"01-01-2025": true, "20-01-2025": true, "17-02-2025": true,
		"18-04-2025": true, "26-05-2025": true, "19-06-2025": true,
		"04-07-2025": true, "01-09-2025": true, "27-11-2025": true,
		"25-12-2025": true,
	}

	// Early-close sessions, open until 13:00.
	equityEarlyHolidays = map[string]bool{
		"03-07-2024": true, "29-11-2024": true, "24-12-2024": true,
		"03-07-2025": true, "28-11-2025": true, "24-12-2025": true,
	}
)

type clockTime struct {
	hour, minute int
}

func (c clockTime) before(t time.Time) bool {
	return t.Hour() > c.hour || (t.Hour() == c.hour && t.Minute() >= c.minute)
}

func (c clockTime) after(t time.Time) bool {
	return t.Hour() < c.hour || (t.Hour() == c.hour && t.Minute() <= c.minute)
}

// Holiday is the standard trading-schedule evaluator.
type Holiday struct {
	location *time.Location
}

// NewHoliday builds a calendar pinned to the exchange timezone.
func NewHoliday() *Holiday {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Holiday{location: loc}
}

// IsMarketOpen reports whether the market for the asset type is open.
func (h *Holiday) IsMarketOpen(assetType string, t time.Time) bool {
	if assetType != "Equity" {
		return true
	}

	local := t.In(h.location)
	date := local.Format("02-01-2006")

	if equityEarlyHolidays[date] {
		return equityOpen.before(local) && equityEarlyClose.after(local)
	}
	if equityHolidays[date] {
		return false
	}

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	return equityOpen.before(local) && equityClose.after(local)
}
