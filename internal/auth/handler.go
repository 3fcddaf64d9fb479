// Package auth holds the authenticated-session credentials: the JWT from the
// code exchange and the refresh token kept in the vault.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/codefionn/webmessaging/internal/vault"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Client is the REST surface the handler needs.
type Client interface {
	ExchangeAuthCode(ctx context.Context, params protocol.OAuthParams) (*protocol.AuthJwt, error)
	RefreshAuthToken(ctx context.Context, refreshToken string) (*protocol.AuthJwt, error)
	Logout(ctx context.Context, jwt string) error
}

// Handler is safe for concurrent use. No lock is held during HTTP calls.
type Handler struct {
	client Client
	vault  vault.Vault
	log    *logger.Logger

	mu  sync.Mutex
	jwt fn.Option[string]
}

func NewHandler(client Client, v vault.Vault, log *logger.Logger) *Handler {
	return &Handler{
		client: client,
		vault:  v,
		log:    log.WithPrefix("auth"),
		jwt:    fn.None[string](),
	}
}

// Authorize exchanges an authorization code. On failure the error is an
// *errcode.Error with code AuthFailed.
func (h *Handler) Authorize(ctx context.Context, code, redirectURI, codeVerifier string) error {
	issued, err := h.client.ExchangeAuthCode(ctx, protocol.OAuthParams{
		Code:         code,
		RedirectURI:  redirectURI,
		CodeVerifier: codeVerifier,
	})
	if err != nil {
		h.log.Warn("code exchange failed: %v", err)
		return errcode.New(errcode.AuthFailed, describe(err))
	}

	h.log.Redact(issued.Jwt)
	h.log.Redact(issued.RefreshToken)
	h.setJwt(fn.Some(issued.Jwt))

	if issued.RefreshToken != "" {
		if err := h.vault.Store(vault.KeyRefreshToken, issued.RefreshToken); err != nil {
			h.log.Warn("refresh token not stored: %v", err)
		}
	}
	if err := h.vault.Store(vault.KeyWasAuthenticated, "true"); err != nil {
		h.log.Warn("auth flag not stored: %v", err)
	}
	return nil
}

// Jwt returns the current authenticated JWT.
func (h *Handler) Jwt() fn.Option[string] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.jwt
}

// IsAuthorized reports whether a JWT is held.
func (h *Handler) IsAuthorized() bool {
	return h.Jwt().IsSome()
}

// WasAuthenticated reports whether a previous run signed in.
func (h *Handler) WasAuthenticated() bool {
	v, ok := h.vault.Fetch(vault.KeyWasAuthenticated)
	return ok && v == "true"
}

// RefreshToken replaces the JWT using the stored refresh token. Failure
// clears all credentials and returns RefreshAuthTokenFailure.
func (h *Handler) RefreshToken(ctx context.Context) error {
	refresh, ok := h.vault.Fetch(vault.KeyRefreshToken)
	if !ok || refresh == "" {
		h.Clear()
		return errcode.New(errcode.RefreshAuthTokenFailure, "no refresh token available")
	}

	issued, err := h.client.RefreshAuthToken(ctx, refresh)
	if err != nil {
		h.log.Warn("refresh failed: %v", err)
		h.Clear()
		return errcode.New(errcode.RefreshAuthTokenFailure, describe(err))
	}

	h.log.Redact(issued.Jwt)
	h.setJwt(fn.Some(issued.Jwt))
	return nil
}

// Logout revokes the JWT on the gateway. Credentials are dropped once the
// gateway confirms with a logout event.
func (h *Handler) Logout(ctx context.Context) error {
	jwt := h.Jwt()
	if jwt.IsNone() {
		return errcode.New(errcode.AuthLogoutFailed, "not authorized")
	}
	if err := h.client.Logout(ctx, jwt.UnsafeFromSome()); err != nil {
		h.log.Warn("logout failed: %v", err)
		return errcode.New(errcode.AuthLogoutFailed, describe(err))
	}
	return nil
}

// Clear drops the JWT and removes stored credentials.
func (h *Handler) Clear() {
	h.setJwt(fn.None[string]())
	for _, key := range []string{vault.KeyRefreshToken, vault.KeyWasAuthenticated} {
		if err := h.vault.Remove(key); err != nil {
			h.log.Warn("remove %s: %v", key, err)
		}
	}
}

func (h *Handler) setJwt(jwt fn.Option[string]) {
	h.mu.Lock()
	h.jwt = jwt
	h.mu.Unlock()
}

func describe(err error) string {
	var ce *errcode.Error
	if errors.As(err, &ce) {
		return ce.Error()
	}
	return err.Error()
}
