package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickup-push-backend/config"
	"pickup-push-backend/internal/model"
	"pickup-push-backend/internal/store"
	"pickup-push-backend/internal/testutil"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[string]string
	fail  map[string]error
}

func (r *recordingNotifier) NotifyMatch(_ context.Context, matchID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[matchID]; err != nil {
		return err
	}
	if r.calls == nil {
		r.calls = map[string]string{}
	}
	r.calls[matchID] = message
	return nil
}

func TestMessage(t *testing.T) {
	m := model.Match{Title: "Five-a-side", Location: "Park Pitch 2", StartsAt: time.Date(2026, 5, 1, 17, 30, 0, 0, time.UTC)}
	assert.Equal(t, "Reminder: Five-a-side starts at 17:30 at Park Pitch 2", Message(m, time.UTC))

	m.Location = ""
	loc := time.FixedZone("CEST", 2*60*60)
	assert.Equal(t, "Reminder: Five-a-side starts at 19:30", Message(m, loc))
}

func TestService_SweepOnce(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.MustOpenTestDB(t)
	s := store.NewGormStore(gdb)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, gdb.Create(&[]model.Match{
		{ID: "soon", Title: "Lunch kickabout", StartsAt: now.Add(45 * time.Minute)},
		{ID: "broken", Title: "Flaky", StartsAt: now.Add(50 * time.Minute)},
		{ID: "tomorrow", Title: "Sunday league", StartsAt: now.Add(24 * time.Hour)},
	}).Error)

	n := &recordingNotifier{fail: map[string]error{"broken": errors.New("store down")}}
	svc := NewService(config.ReminderConfig{LeadMinutes: 60, Timezone: "UTC"}, s, n, WithClock(func() time.Time { return now }))

	sent, err := svc.SweepOnce(ctx)
	assert.Equal(t, 1, sent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match broken")
	assert.Equal(t, map[string]string{"soon": "Reminder: Lunch kickabout starts at 12:45"}, n.calls)

	// The reminded match is skipped; the failed one is retried.
	delete(n.fail, "broken")
	sent, err = svc.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Contains(t, n.calls, "broken")
}

func TestService_StartDisabled(t *testing.T) {
	svc := NewService(config.ReminderConfig{Enabled: false}, nil, nil)
	assert.NoError(t, svc.Start(context.Background()))
	<-svc.Stop().Done()
}

func TestService_StartRejectsBadSchedule(t *testing.T) {
	svc := NewService(config.ReminderConfig{Enabled: true, Schedule: "not a cron", Timezone: "Nowhere/Invalid"}, nil, nil)
	assert.Error(t, svc.Start(context.Background()))
}
