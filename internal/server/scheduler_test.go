package server

import (
	"testing"
	"time"
)

func TestIsDueNeverRan(t *testing.T) {
	if !isDue("@daily", nil) {
		t.Fatal("a schedule that never ran is due")
	}
	if !isDue("0 3 * * *", nil) {
		t.Fatal("a cron schedule that never ran is due")
	}
}

func TestIsDueDaily(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	if isDue("@daily", &recent) {
		t.Fatal("ran an hour ago, @daily must not be due")
	}
	old := time.Now().Add(-25 * time.Hour)
	if !isDue("@daily", &old) {
		t.Fatal("ran 25h ago, @daily must be due")
	}
}

func TestIsDueHourly(t *testing.T) {
	recent := time.Now().Add(-time.Minute)
	if isDue("@hourly", &recent) {
		t.Fatal("ran a minute ago, @hourly must not be due")
	}
	old := time.Now().Add(-61 * time.Minute)
	if !isDue("@hourly", &old) {
		t.Fatal("ran 61m ago, @hourly must be due")
	}
}

func TestIsDueCronExpression(t *testing.T) {
	// every minute: last run two minutes ago has a next fire in the past
	last := time.Now().Add(-2 * time.Minute)
	if !isDue("* * * * *", &last) {
		t.Fatal("every-minute cron ran 2m ago, must be due")
	}
}

func TestIsDueInvalidSpecFallsBackToDaily(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	if isDue("not a cron", &recent) {
		t.Fatal("invalid spec falls back to @daily, ran 1h ago")
	}
}
