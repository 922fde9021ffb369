package markethours

import (
	"strings"
	"testing"
	"time"
)

func et(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, NewYork)
}

func TestIsMarketOpen(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday mid-session", et(2026, 10, 19, 10, 0), true},
		{"at open", et(2026, 10, 19, 9, 30), true},
		{"before open", et(2026, 10, 19, 9, 29), false},
		{"at close", et(2026, 10, 19, 16, 0), false},
		{"saturday", et(2026, 10, 17, 12, 0), false},
		{"thanksgiving", et(2026, 11, 26, 12, 0), false},
		{"observed independence day", et(2026, 7, 3, 12, 0), false},
		{"summer utc open", time.Date(2026, 10, 19, 13, 30, 0, 0, time.UTC), true},
		{"winter utc same clock", time.Date(2026, 12, 14, 13, 30, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMarketOpen(tt.at); got != tt.want {
				t.Errorf("IsMarketOpen(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestIsOpen_AroundTheClockTickers(t *testing.T) {
	saturday := et(2026, 10, 17, 3, 0)
	for _, ticker := range []string{"BTC-USD", "eth-usd", "SOL-USDT", "BTC-EUR", "EURUSD=X"} {
		if !IsOpen(ticker, saturday) {
			t.Errorf("%s should trade on Saturday", ticker)
		}
	}
	for _, ticker := range []string{"AAPL", "BRK-B", "USD"} {
		if IsOpen(ticker, saturday) {
			t.Errorf("%s should not trade on Saturday", ticker)
		}
	}
}

func TestNextOpen(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"same day before open", et(2026, 10, 19, 7, 0), et(2026, 10, 19, 9, 30)},
		{"friday evening", et(2026, 10, 16, 17, 0), et(2026, 10, 19, 9, 30)},
		{"skips thanksgiving", et(2026, 11, 25, 17, 0), et(2026, 11, 27, 9, 30)},
		{"skips long weekend", et(2026, 7, 2, 16, 30), et(2026, 7, 6, 9, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextOpen(tt.from); !got.Equal(tt.want) {
				t.Errorf("NextOpen = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeUntilClose(t *testing.T) {
	if d := TimeUntilClose(et(2026, 10, 19, 14, 30)); d != 90*time.Minute {
		t.Errorf("got %v, want 1h30m", d)
	}
	if d := TimeUntilClose(et(2026, 10, 19, 17, 0)); d != 0 {
		t.Errorf("after close got %v", d)
	}
}

func TestStatusString(t *testing.T) {
	if s := StatusString(et(2026, 10, 19, 14, 30)); s != "NYSE open, closes in 1h30m" {
		t.Errorf("open status %q", s)
	}
	if s := StatusString(et(2026, 10, 16, 17, 0)); !strings.HasPrefix(s, "NYSE closed, opens Mon 09:30 ET") {
		t.Errorf("closed status %q", s)
	}
}
