package server

import (
	"testing"
	"time"
)

func TestIsDue(t *testing.T) {
	now := time.Now()
	recent := now.Add(-5 * time.Minute)
	old := now.Add(-25 * time.Hour)

	cases := []struct {
		name string
		cron string
		last *time.Time
		want bool
	}{
		{"hourly never run", "@hourly", nil, true},
		{"hourly recent", "@hourly", &recent, false},
		{"hourly stale", "@hourly", &old, true},
		{"daily never run", "@daily", nil, true},
		{"daily recent", "@daily", &recent, false},
		{"daily stale", "@daily", &old, true},
		{"cron never run", "*/10 * * * *", nil, true},
		{"cron stale", "*/10 * * * *", &old, true},
		{"invalid falls back hourly", "not a cron", &recent, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isDue(tc.cron, tc.last); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}
