package rest

import (
	"context"
	"net/http"

	"github.com/codefionn/webmessaging/internal/protocol"
)

// FetchMessages returns one 1-based page of history, newest first.
func (c *Client) FetchMessages(ctx context.Context, jwt string, page int) (*protocol.MessageEntityList, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.HistoryURL(page), nil)
	if err != nil {
		return nil, err
	}
	bearer(req, jwt)

	var list protocol.MessageEntityList
	if err := c.do(c.http, req, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
