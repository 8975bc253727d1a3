package service

import (
	"testing"
	"time"
)

func TestParseScheduledTime(t *testing.T) {
	st, err := parseScheduledTime("")
	if err != nil {
		t.Fatal(err)
	}
	if st.Valid {
		t.Error("empty input must not produce a scheduled time")
	}

	st, err = parseScheduledTime("2026-09-01T10:30:00+02:00")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Valid {
		t.Fatal("expected a valid scheduled time")
	}
	want := time.Date(2026, 9, 1, 8, 30, 0, 0, time.UTC)
	if !st.Time.UTC().Equal(want) {
		t.Errorf("expected %s, got %s", want, st.Time.UTC())
	}

	if _, err := parseScheduledTime("2026-09-01T10:30"); err == nil {
		t.Error("expected rejection of a timestamp without seconds and zone")
	}

	_, err = parseScheduledTime("not a time")
	if !IsValidationError(err) {
		t.Error("expected a validation error for garbage input")
	}
}
