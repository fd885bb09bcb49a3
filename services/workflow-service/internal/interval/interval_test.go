package interval

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	tod, err := ParseClock("21:30")
	if err != nil {
		t.Fatalf("ParseClock failed: %v", err)
	}
	if tod.Minutes() != 21*60+30 {
		t.Fatalf("expected 1290 minutes, got %d", tod.Minutes())
	}
	if tod.String() != "21:30" {
		t.Fatalf("round trip mismatch: %s", tod.String())
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Fatal("expected error for 25:00")
	}
	if _, err := ParseClock("9am"); err == nil {
		t.Fatal("expected error for 9am")
	}
}

func TestNormalizeSameDay(t *testing.T) {
	span := Normalize(date(2025, 1, 10), 9*60, 17*60)
	if !span.Start.Equal(date(2025, 1, 10).Add(9 * time.Hour)) {
		t.Fatalf("unexpected start %s", span.Start)
	}
	if !span.End.Equal(date(2025, 1, 10).Add(17 * time.Hour)) {
		t.Fatalf("unexpected end %s", span.End)
	}
}

func TestNormalizeCrossMidnight(t *testing.T) {
	// 22:00 -> 02:00 runs into the next day.
	span := Normalize(date(2025, 1, 10), 22*60, 2*60)
	if !span.Start.Equal(date(2025, 1, 10).Add(22 * time.Hour)) {
		t.Fatalf("unexpected start %s", span.Start)
	}
	if !span.End.Equal(date(2025, 1, 11).Add(2 * time.Hour)) {
		t.Fatalf("unexpected end %s", span.End)
	}
}

func TestNormalizeEqualClocksSpanFullDay(t *testing.T) {
	span := Normalize(date(2025, 1, 10), 8*60, 8*60)
	if got := span.End.Sub(span.Start); got != 24*time.Hour {
		t.Fatalf("expected 24h span, got %s", got)
	}
}

func TestOverlaps(t *testing.T) {
	base := Normalize(date(2025, 1, 10), 9*60, 12*60)

	cases := []struct {
		name    string
		other   Span
		overlap bool
	}{
		{"identical", Normalize(date(2025, 1, 10), 9*60, 12*60), true},
		{"partial", Normalize(date(2025, 1, 10), 11*60, 14*60), true},
		{"contained", Normalize(date(2025, 1, 10), 10*60, 11*60), true},
		{"adjacent after", Normalize(date(2025, 1, 10), 12*60, 14*60), false},
		{"adjacent before", Normalize(date(2025, 1, 10), 7*60, 9*60), false},
		{"disjoint", Normalize(date(2025, 1, 10), 15*60, 18*60), false},
	}
	for _, tc := range cases {
		if got := base.Overlaps(tc.other); got != tc.overlap {
			t.Fatalf("%s: expected overlap=%v, got %v", tc.name, tc.overlap, got)
		}
		// Overlap is symmetric.
		if got := tc.other.Overlaps(base); got != tc.overlap {
			t.Fatalf("%s (reversed): expected overlap=%v, got %v", tc.name, tc.overlap, got)
		}
	}
}

func TestCrossDayWindowsOverlapAcrossDates(t *testing.T) {
	// A 22:00->02:00 window on the 10th collides with a 01:00->03:00 window on the 11th.
	night := Normalize(date(2025, 1, 10), 22*60, 2*60)
	early := Normalize(date(2025, 1, 11), 1*60, 3*60)
	if !night.Overlaps(early) {
		t.Fatal("expected cross-day overlap")
	}
}

func TestContains(t *testing.T) {
	window := Normalize(date(2025, 1, 10), 22*60, 6*60)

	inside := Normalize(date(2025, 1, 10), 23*60, 1*60)
	if !window.Contains(inside) {
		t.Fatal("expected 23:00->01:00 inside 22:00->06:00")
	}

	// Starts before the window opens.
	before := Normalize(date(2025, 1, 10), 21*60, 23*60)
	if window.Contains(before) {
		t.Fatal("expected 21:00->23:00 outside 22:00->06:00")
	}

	// Next-day morning request still covered by the previous night's window.
	morning := Normalize(date(2025, 1, 11), 4*60, 6*60)
	if !window.Contains(morning) {
		t.Fatal("expected 04:00->06:00 next day inside the overnight window")
	}

	// Runs past the window's end.
	past := Normalize(date(2025, 1, 11), 5*60, 7*60)
	if window.Contains(past) {
		t.Fatal("expected 05:00->07:00 to escape the window")
	}
}

func TestCrossesMidnight(t *testing.T) {
	if CrossesMidnight(9*60, 17*60) {
		t.Fatal("09:00-17:00 should not cross midnight")
	}
	if !CrossesMidnight(22*60, 2*60) {
		t.Fatal("22:00-02:00 should cross midnight")
	}
	if !CrossesMidnight(8*60, 8*60) {
		t.Fatal("equal clocks span a full day")
	}
}
