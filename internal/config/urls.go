package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/codefionn/webmessaging/internal/consts"
)

func (c *Configuration) base(override, scheme, host string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	return fmt.Sprintf("%s://%s.%s", scheme, host, c.Domain)
}

// WebSocketURL is the gateway socket endpoint for the deployment.
func (c *Configuration) WebSocketURL() string {
	return fmt.Sprintf("%s/v1?deploymentId=%s",
		c.base(c.WebSocketBase, "wss", "webmessaging"), url.QueryEscape(c.DeploymentID))
}

// DeploymentConfigURL is where the published deployment config lives.
func (c *Configuration) DeploymentConfigURL() string {
	return fmt.Sprintf("%s/webdeployments/v1/deployments/%s/config.json",
		c.base(c.CDNBase, "https", "api-cdn"), url.PathEscape(c.DeploymentID))
}

// HistoryURL returns the message history endpoint for a 1-based page.
func (c *Configuration) HistoryURL(page int) string {
	return fmt.Sprintf("%s/api/v2/webmessaging/messages?pageNumber=%d&pageSize=%d",
		c.base(c.APIBase, "https", "api"), page, consts.DefaultPageSize)
}

func (c *Configuration) tokenURL(path string) string {
	return fmt.Sprintf("%s/api/v2/webdeployments/token/%s", c.base(c.APIBase, "https", "api"), path)
}

// JwtExchangeURL exchanges an authorization code for a JWT.
func (c *Configuration) JwtExchangeURL() string {
	return c.tokenURL("oauthcodegrantjwtexchange")
}

// RefreshURL refreshes an authenticated JWT.
func (c *Configuration) RefreshURL() string {
	return c.tokenURL("refresh")
}

// LogoutURL revokes the authenticated session.
func (c *Configuration) LogoutURL() string {
	return c.tokenURL("revoke")
}
