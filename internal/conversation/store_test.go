package conversation

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func sampleState(phone string, now time.Time) *ConversationState {
	svc := Service{ID: 1, Name: "Signature Head Spa", PriceCents: 9900, DurationMinutes: 60}
	date := Date{Year: 2025, Month: time.July, Day: 30}
	return &ConversationState{
		Phone:           phone,
		Step:            StepAwaitingTime,
		SelectedService: &svc,
		SelectedDate:    &date,
		CandidateSlots: []Slot{
			{Start: time.Date(2025, 7, 30, 14, 0, 0, 0, time.UTC), StaffID: 3},
			{Start: time.Date(2025, 7, 30, 15, 0, 0, 0, time.UTC), StaffID: 3},
		},
		LastActivityAt: now,
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 7, 29, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(30*time.Minute, clock.Now)
	ctx := context.Background()

	state := sampleState("+15125550100", clock.now)
	require.NoError(t, store.Save(ctx, state))

	// The store keeps its own copy.
	state.Step = StepIdle

	loaded, err := store.Load(ctx, "+15125550100")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StepAwaitingTime, loaded.Step)
	assert.Len(t, loaded.CandidateSlots, 2)

	count, err := store.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Delete(ctx, "+15125550100"))
	loaded, err = store.Load(ctx, "+15125550100")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStoreExpiresInactiveConversations(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 7, 29, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(30*time.Minute, clock.Now)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleState("+15125550100", clock.now)))

	clock.Advance(29 * time.Minute)
	loaded, err := store.Load(ctx, "+15125550100")
	require.NoError(t, err)
	require.NotNil(t, loaded, "state should survive inside the window")

	clock.Advance(2 * time.Minute)
	loaded, err = store.Load(ctx, "+15125550100")
	require.NoError(t, err)
	assert.Nil(t, loaded, "state should expire after the window")

	count, err := store.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStoreRejectsMissingPhone(t *testing.T) {
	store := NewMemoryStore(0, nil)
	err := store.Save(context.Background(), &ConversationState{Step: StepIdle})
	assert.ErrorIs(t, err, errMissingPhone)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := &fakeClock{now: time.Date(2025, 7, 29, 10, 0, 0, 0, time.UTC)}
	store := NewRedisStore(client, 30*time.Minute, clock.Now)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleState("+15125550100", clock.now)))
	assert.True(t, mr.Exists("conversation:state:+15125550100"))
	assert.Equal(t, 30*time.Minute, mr.TTL("conversation:state:+15125550100"))

	loaded, err := store.Load(ctx, "+15125550100")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StepAwaitingTime, loaded.Step)
	assert.Equal(t, Date{Year: 2025, Month: time.July, Day: 30}, *loaded.SelectedDate)
	assert.Equal(t, "Signature Head Spa", loaded.SelectedService.Name)
	assert.True(t, loaded.CandidateSlots[1].Start.Equal(time.Date(2025, 7, 30, 15, 0, 0, 0, time.UTC)))

	count, err := store.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Delete(ctx, "+15125550100"))
	assert.False(t, mr.Exists("conversation:state:+15125550100"))
}

func TestRedisStoreMissingKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, 0, nil)

	loaded, err := store.Load(context.Background(), "+15125550199")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisStoreHonorsInjectedClock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := &fakeClock{now: time.Date(2025, 7, 29, 10, 0, 0, 0, time.UTC)}
	store := NewRedisStore(client, 30*time.Minute, clock.Now)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleState("+15125550100", clock.now)))
	clock.Advance(31 * time.Minute)

	loaded, err := store.Load(ctx, "+15125550100")
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.False(t, mr.Exists("conversation:state:+15125550100"), "expired state should be removed")
}

func TestRedisStoreKeyTTLExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, 30*time.Minute, time.Now)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleState("+15125550100", time.Now())))
	mr.FastForward(31 * time.Minute)

	loaded, err := store.Load(ctx, "+15125550100")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisStoreSurfacesConnectionErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := NewRedisStore(client, 0, nil)
	mr.Close()

	_, err := store.Load(context.Background(), "+15125550100")
	assert.Error(t, err)
}

func TestConversationStateCloneIsDeep(t *testing.T) {
	now := time.Date(2025, 7, 29, 10, 0, 0, 0, time.UTC)
	original := sampleState("+15125550100", now)
	tod := TimeOfDay{Hour: 15, Exact: true}
	original.RequestedTime = &tod

	clone := original.Clone()
	clone.SelectedService.Name = "changed"
	clone.SelectedDate.Day = 1
	clone.CandidateSlots[0].StaffID = 99
	clone.RequestedTime.Hour = 9

	assert.Equal(t, "Signature Head Spa", original.SelectedService.Name)
	assert.Equal(t, 30, original.SelectedDate.Day)
	assert.Equal(t, int64(3), original.CandidateSlots[0].StaffID)
	assert.Equal(t, 15, original.RequestedTime.Hour)
}

func TestConversationStateReset(t *testing.T) {
	state := sampleState("+15125550100", time.Now())
	assert.False(t, state.IsBlank())
	state.Reset()
	assert.True(t, state.IsBlank())
	assert.Equal(t, StepIdle, state.Step)
	assert.Equal(t, "+15125550100", state.Phone)
}
