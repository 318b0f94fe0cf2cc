package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bondoverhobbies/internal/models"
)

// SessionSource is the part of the identity provider an IdentityContext needs.
type SessionSource interface {
	Watch(uid string) *Subscription
	EnsureProfile(ctx context.Context, principal Principal) (models.User, error)
}

// IdentityState is the resolved identity of one client connection.
type IdentityState struct {
	User     *Principal
	UserData *models.User
	Loading  bool
}

// IdentityContext tracks the session of one live connection. It starts in the
// loading state, resolves the profile in the background and reacts to session
// events of its principal until closed. Sign-out of its own session resets the
// state and runs the registered teardown callbacks.
type IdentityContext struct {
	source    SessionSource
	principal Principal
	logger    zerolog.Logger

	mu       sync.RWMutex
	state    IdentityState
	teardown []func()

	sub       *Subscription
	ready     chan struct{}
	readyOnce sync.Once
	signedOut chan struct{}
	outOnce   sync.Once
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewIdentityContext starts tracking the session of principal. It never
// blocks on the provider.
func NewIdentityContext(ctx context.Context, source SessionSource, principal Principal, logger zerolog.Logger) *IdentityContext {
	runCtx, cancel := context.WithCancel(ctx)

	ic := &IdentityContext{
		source:    source,
		principal: principal,
		logger:    logger.With().Str("component", "identity_context").Str("uid", principal.UID).Logger(),
		state:     IdentityState{Loading: true},
		sub:       source.Watch(principal.UID),
		ready:     make(chan struct{}),
		signedOut: make(chan struct{}),
		cancel:    cancel,
	}

	go ic.run(runCtx)
	return ic
}

// State returns a snapshot of the current identity state.
func (ic *IdentityContext) State() IdentityState {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return ic.state
}

// Ready is closed once the first state resolution finished.
func (ic *IdentityContext) Ready() <-chan struct{} {
	return ic.ready
}

// SignedOut is closed when the session of this context ends.
func (ic *IdentityContext) SignedOut() <-chan struct{} {
	return ic.signedOut
}

// OnSignOut registers fn to run when the session ends. When the session has
// already ended fn runs immediately.
func (ic *IdentityContext) OnSignOut(fn func()) {
	ic.mu.Lock()
	select {
	case <-ic.signedOut:
		ic.mu.Unlock()
		fn()
		return
	default:
	}
	ic.teardown = append(ic.teardown, fn)
	ic.mu.Unlock()
}

// Close stops listening for session events. Teardown callbacks do not run.
func (ic *IdentityContext) Close() {
	ic.closeOnce.Do(func() {
		ic.cancel()
		ic.sub.Close()
	})
}

func (ic *IdentityContext) run(ctx context.Context) {
	ic.resolve(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ic.sub.Done():
			if ic.sub.Overflowed() {
				ic.logger.Warn().Msg("session stream fell behind")
			}
			return
		case raw := <-ic.sub.Events():
			var event SessionEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				ic.logger.Warn().Err(err).Msg("invalid session event")
				continue
			}
			ic.apply(ctx, event)
		}
	}
}

func (ic *IdentityContext) apply(ctx context.Context, event SessionEvent) {
	switch event.Type {
	case SessionSignedOut:
		if event.TokenID != "" && event.TokenID != ic.principal.TokenID {
			return
		}
		ic.endSession()
	case SessionSignedIn:
		if ic.isSignedOut() {
			return
		}
		ic.resolve(ctx)
	}
}

func (ic *IdentityContext) resolve(ctx context.Context) {
	defer ic.readyOnce.Do(func() { close(ic.ready) })

	user, err := ic.source.EnsureProfile(ctx, ic.principal)
	if err != nil {
		if ctx.Err() == nil {
			ic.logger.Error().Err(err).Msg("failed to resolve profile")
		}
		ic.mu.Lock()
		ic.state.Loading = false
		ic.mu.Unlock()
		return
	}

	principal := ic.principal
	ic.mu.Lock()
	ic.state = IdentityState{User: &principal, UserData: &user, Loading: false}
	ic.mu.Unlock()
}

func (ic *IdentityContext) endSession() {
	ic.outOnce.Do(func() {
		ic.mu.Lock()
		ic.state = IdentityState{}
		callbacks := ic.teardown
		ic.teardown = nil
		close(ic.signedOut)
		ic.mu.Unlock()

		ic.readyOnce.Do(func() { close(ic.ready) })
		ic.logger.Debug().Msg("session signed out")
		for _, fn := range callbacks {
			fn()
		}
	})
}

func (ic *IdentityContext) isSignedOut() bool {
	select {
	case <-ic.signedOut:
		return true
	default:
		return false
	}
}
