package oidckit

import (
	"context"
	"time"
)

// StateData is what a pending login remembers between BeginLogin and the
// provider's callback.
type StateData struct {
	// SessionID binds the login to the browser session that started it.
	SessionID   string    `json:"session_id,omitempty"`
	Verifier    string    `json:"verifier"`
	RedirectURI string    `json:"redirect_uri"`
	OriginURL   string    `json:"origin_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateCache stores pending logins keyed by the OAuth state parameter.
// Implementations expire entries on their own.
type StateCache interface {
	Put(ctx context.Context, state string, v StateData) error
	Get(ctx context.Context, state string) (StateData, bool, error)
	// Take returns and removes the entry in one step, so a state can be
	// redeemed at most once even by concurrent callbacks.
	Take(ctx context.Context, state string) (StateData, bool, error)
	Del(ctx context.Context, state string) error
}
