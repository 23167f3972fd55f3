package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lienharvest/pkg/schedule"
)

func TestEvery(t *testing.T) {
	s := schedule.Every(6 * time.Hour)
	from := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(6*time.Hour), s.Next(from))
}

func TestDaily(t *testing.T) {
	s := schedule.Daily(2, 30)

	before := time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 15, 2, 30, 0, 0, time.UTC), s.Next(before))

	after := time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 16, 2, 30, 0, 0, time.UTC), s.Next(after))

	exactly := time.Date(2024, 1, 15, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 16, 2, 30, 0, 0, time.UTC), s.Next(exactly))
}

func TestCron(t *testing.T) {
	s := schedule.Cron("0 2 * * *")
	from := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	next := s.Next(from)
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, 16, next.Day())
}

func TestCron_PanicsOnInvalidExpression(t *testing.T) {
	assert.Panics(t, func() { schedule.Cron("not a cron line") })
}

func TestWindow_CoversPreviousDay(t *testing.T) {
	firing := time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC)
	start, end := schedule.Window(firing)
	assert.Equal(t, "01/14/2024", start)
	assert.Equal(t, "01/14/2024", end)
}

func TestWindow_MonthBoundary(t *testing.T) {
	firing := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	start, end := schedule.Window(firing)
	assert.Equal(t, "02/29/2024", start)
	assert.Equal(t, end, start)
}

func TestScanner_FiresWithPreviousDayWindow(t *testing.T) {
	fired := make(chan [2]string, 1)
	scanner := schedule.NewScanner(
		schedule.Every(10*time.Millisecond),
		func(_ context.Context, dateStart, dateEnd string) error {
			select {
			case fired <- [2]string{dateStart, dateEnd}:
			default:
			}
			return nil
		},
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scanner.Start(ctx)

	select {
	case window := <-fired:
		wantStart, wantEnd := schedule.Window(time.Now())
		assert.Equal(t, wantStart, window[0])
		assert.Equal(t, wantEnd, window[1])
	case <-time.After(2 * time.Second):
		t.Fatal("scanner never fired")
	}
}

func TestScanner_StopsOnContextCancel(t *testing.T) {
	scanner := schedule.NewScanner(
		schedule.Every(time.Hour),
		func(context.Context, string, string) error { return nil },
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scanner.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop")
	}
}
