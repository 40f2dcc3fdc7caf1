package calendar

import (
	"testing"
	"time"
)

func nyTime(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	parsed, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestEquityTradingHours(t *testing.T) {
	h := NewHoliday()

	cases := []struct {
		name string
		at   string
		want bool
	}{
		{"regular session", "2025-06-02 12:00", true},
		{"at the open", "2025-06-02 09:30", true},
		{"before the open", "2025-06-02 09:29", false},
		{"at the close", "2025-06-02 16:00", true},
		{"after the close", "2025-06-02 16:01", false},
		{"saturday", "2025-06-07 12:00", false},
		{"christmas", "2025-12-25 12:00", false},
		{"christmas eve morning", "2025-12-24 10:00", true},
		{"christmas eve afternoon", "2025-12-24 14:00", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := h.IsMarketOpen("Equity", nyTime(t, tc.at)); got != tc.want {
				t.Fatalf("IsMarketOpen(Equity, %s) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestNonEquityAlwaysOpen(t *testing.T) {
	h := NewHoliday()
	sundayNight := nyTime(t, "2025-06-08 03:00")

	for _, assetType := range []string{"Crypto", "FX", "Metal", "Crypto Redemption Rate"} {
		if !h.IsMarketOpen(assetType, sundayNight) {
			t.Fatalf("%s should trade around the clock", assetType)
		}
	}
}

func TestTimezoneConversion(t *testing.T) {
	h := NewHoliday()

	// 13:00 UTC on a June trading day is 09:00 in New York: closed.
	utc := time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
	if h.IsMarketOpen("Equity", utc) {
		t.Fatal("13:00 UTC is before the New York open")
	}
	// 15:00 UTC is 11:00 in New York: open.
	if !h.IsMarketOpen("Equity", utc.Add(2*time.Hour)) {
		t.Fatal("15:00 UTC is mid-session in New York")
	}
}
