package rest

import (
	"context"
	"net/http"

	"github.com/codefionn/webmessaging/internal/protocol"
)

// ExchangeAuthCode trades an authorization code for a JWT and refresh token.
func (c *Client) ExchangeAuthCode(ctx context.Context, params protocol.OAuthParams) (*protocol.AuthJwt, error) {
	body := protocol.JwtExchangeRequest{DeploymentID: c.cfg.DeploymentID, OAuth: params}
	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.JwtExchangeURL(), body)
	if err != nil {
		return nil, err
	}

	var out protocol.AuthJwt
	if err := c.do(c.http, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshAuthToken returns a fresh JWT for a refresh token.
func (c *Client) RefreshAuthToken(ctx context.Context, refreshToken string) (*protocol.AuthJwt, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.RefreshURL(), protocol.RefreshTokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	var out protocol.AuthJwt
	if err := c.do(c.http, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the authenticated session behind jwt.
func (c *Client) Logout(ctx context.Context, jwt string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.cfg.LogoutURL(), nil)
	if err != nil {
		return err
	}
	bearer(req, jwt)
	return c.do(c.http, req, nil)
}
