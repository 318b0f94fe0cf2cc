package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bondoverhobbies/internal/models"
)

type sessionSourceStub struct {
	broker *Broker
	mu     sync.Mutex
	calls  int
	err    error
	block  chan struct{}
}

func (s *sessionSourceStub) Watch(uid string) *Subscription {
	return s.broker.Subscribe(sessionTopic(uid))
}

func (s *sessionSourceStub) EnsureProfile(ctx context.Context, principal Principal) (models.User, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return models.User{}, ctx.Err()
		}
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return models.User{}, s.err
	}
	return models.User{UID: principal.UID, DisplayName: principal.DisplayName}, nil
}

func waitReady(t *testing.T, ic *IdentityContext) {
	t.Helper()
	select {
	case <-ic.Ready():
	case <-time.After(time.Second):
		t.Fatal("identity context did not resolve")
	}
}

func TestIdentityContextStartsLoadingAndResolves(t *testing.T) {
	source := &sessionSourceStub{broker: NewBroker(BrokerOptions{}, testLogger()), block: make(chan struct{})}
	ic := NewIdentityContext(context.Background(), source, Principal{UID: "u1", DisplayName: "Ana", TokenID: "t1"}, testLogger())
	defer ic.Close()

	state := ic.State()
	require.True(t, state.Loading)
	require.Nil(t, state.User)

	close(source.block)
	waitReady(t, ic)

	state = ic.State()
	require.False(t, state.Loading)
	require.NotNil(t, state.User)
	require.NotNil(t, state.UserData)
	require.Equal(t, "Ana", state.UserData.DisplayName)
}

func TestIdentityContextSignOutRunsTeardown(t *testing.T) {
	broker := NewBroker(BrokerOptions{}, testLogger())
	source := &sessionSourceStub{broker: broker}
	ic := NewIdentityContext(context.Background(), source, Principal{UID: "u1", TokenID: "t1"}, testLogger())
	defer ic.Close()
	waitReady(t, ic)

	var torn atomic.Int32
	ic.OnSignOut(func() { torn.Add(1) })

	// Another device signing out leaves this session alone.
	require.NoError(t, broker.Publish(context.Background(), sessionTopic("u1"), SessionEvent{Type: SessionSignedOut, UID: "u1", TokenID: "other"}))
	require.NoError(t, broker.Publish(context.Background(), sessionTopic("u1"), SessionEvent{Type: SessionSignedOut, UID: "u1", TokenID: "t1"}))

	select {
	case <-ic.SignedOut():
	case <-time.After(time.Second):
		t.Fatal("expected sign out")
	}

	require.Equal(t, int32(1), torn.Load())
	state := ic.State()
	require.Nil(t, state.User)
	require.Nil(t, state.UserData)
	require.False(t, state.Loading)

	ic.OnSignOut(func() { torn.Add(1) })
	require.Equal(t, int32(2), torn.Load())
}

func TestIdentityContextSurvivesProfileFailure(t *testing.T) {
	source := &sessionSourceStub{broker: NewBroker(BrokerOptions{}, testLogger()), err: errors.New("store down")}
	ic := NewIdentityContext(context.Background(), source, Principal{UID: "u1"}, testLogger())
	defer ic.Close()
	waitReady(t, ic)

	state := ic.State()
	require.False(t, state.Loading)
	require.Nil(t, state.UserData)
}

func TestIdentityContextCloseReleasesSubscription(t *testing.T) {
	broker := NewBroker(BrokerOptions{}, testLogger())
	source := &sessionSourceStub{broker: broker}
	ic := NewIdentityContext(context.Background(), source, Principal{UID: "u1"}, testLogger())
	waitReady(t, ic)

	ic.Close()
	ic.Close()

	broker.mu.RLock()
	defer broker.mu.RUnlock()
	require.Empty(t, broker.topics[sessionTopic("u1")])
}
