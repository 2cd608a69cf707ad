package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLastFriday(t *testing.T) {
	cases := []struct {
		name string
		now  string
		want string
	}{
		{"monday", "2025-06-09 10:30:00", "2025-06-06 00:00:00"},
		{"saturday", "2025-06-07 02:00:00", "2025-06-06 00:00:00"},
		{"sunday", "2025-06-08 23:59:59", "2025-06-06 00:00:00"},
		{"thursday", "2025-06-05 12:00:00", "2025-05-30 00:00:00"},
		// Ein Lauf am Freitag selbst greift eine volle Woche zurück.
		{"friday", "2025-06-06 15:00:00", "2025-05-30 00:00:00"},
		{"friday midnight", "2025-06-06 00:00:00", "2025-05-30 00:00:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now, err := time.Parse("2006-01-02 15:04:05", tc.now)
			require.NoError(t, err)
			got := LastFriday(now)
			require.Equal(t, tc.want, got.Format("2006-01-02 15:04:05"))
			require.Equal(t, time.Friday, got.Weekday())
		})
	}
}

func TestTryStartRefusesWhileRunning(t *testing.T) {
	p := &Pipeline{}
	p.mu.Lock()
	defer p.mu.Unlock()

	require.False(t, p.TryStart(context.Background(), func(int, error) {}))

	_, started, err := p.TryRun(context.Background())
	require.False(t, started)
	require.NoError(t, err)
}
