package zipdate

import (
	"testing"
	"time"
)

func TestFromDOS(t *testing.T) {
	// 2020-03-15 13:45:30 packed into DOS date/time (2-second resolution).
	date := uint16((2020-1980)<<9 | 3<<5 | 15)
	clock := uint16(13<<11 | 45<<5 | 15) // 15*2 = 30 seconds

	got := FromDOS(date, clock)
	want := time.Date(2020, time.March, 15, 13, 45, 30, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFromDOSZeroIsZeroTime(t *testing.T) {
	got := FromDOS(0, 0)
	if !got.IsZero() {
		t.Errorf("got %v, want zero time", got)
	}
}

func TestFromDOSInvalidMonthIsZeroTime(t *testing.T) {
	date := uint16(0<<9 | 0<<5 | 15) // month field 0
	got := FromDOS(date, 0)
	if !got.IsZero() {
		t.Errorf("got %v, want zero time for an invalid month", got)
	}
}

func TestResolvePrefersLastCandidate(t *testing.T) {
	a := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

	got := Resolve(0, 0, []time.Time{a, b})
	if !got.Equal(b) {
		t.Errorf("got %v, want %v (the last candidate)", got, b)
	}
}

func TestResolveFallsBackToDOS(t *testing.T) {
	date := uint16((2000-1980)<<9 | 1<<5 | 1)
	got := Resolve(date, 0, nil)
	want := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
