// Package testutil provides fakes of the gateway for tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/codefionn/webmessaging/internal/config"
	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/julienschmidt/httprouter"
)

// Gateway is an in-process fake of the gateway's REST endpoints.
type Gateway struct {
	server *httptest.Server
	router *httprouter.Router

	mu             sync.Mutex
	deployment     config.DeploymentConfig
	pages          map[int]protocol.MessageEntityList
	validJwt       string
	authCode       string
	issued         protocol.AuthJwt
	refreshToken   string
	refreshedJwt   string
	uploads        map[string][]byte
	uploadHeaders  map[string]http.Header
	failures       map[string]int
	historyQueries []int
	revoked        []string
}

// NewGateway starts a fake gateway that is closed when t ends.
func NewGateway(t testing.TB) *Gateway {
	g := &Gateway{
		router:        httprouter.New(),
		pages:         make(map[int]protocol.MessageEntityList),
		uploads:       make(map[string][]byte),
		uploadHeaders: make(map[string]http.Header),
		failures:      make(map[string]int),
	}
	g.setupRoutes()
	g.server = httptest.NewServer(g.router)
	t.Cleanup(g.server.Close)
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.GET("/webdeployments/v1/deployments/:id/config.json", g.handleDeployment)
	g.router.GET("/api/v2/webmessaging/messages", g.handleMessages)
	g.router.POST("/api/v2/webdeployments/token/oauthcodegrantjwtexchange", g.handleExchange)
	g.router.POST("/api/v2/webdeployments/token/refresh", g.handleRefresh)
	g.router.DELETE("/api/v2/webdeployments/token/revoke", g.handleRevoke)
	g.router.PUT("/uploads/:id", g.handleUpload)
}

// URL is the base URL of the fake.
func (g *Gateway) URL() string {
	return g.server.URL
}

// Configuration returns a configuration pointing API and CDN at the fake.
func (g *Gateway) Configuration(deploymentID string) *config.Configuration {
	cfg := config.DefaultConfiguration()
	cfg.DeploymentID = deploymentID
	cfg.Domain = "example.invalid"
	cfg.APIBase = g.server.URL
	cfg.CDNBase = g.server.URL
	cfg.WebSocketBase = "ws" + strings.TrimPrefix(g.server.URL, "http")
	return cfg
}

// UploadURL is the presigned URL the fake accepts for an attachment.
func (g *Gateway) UploadURL(attachmentID string) string {
	return g.server.URL + "/uploads/" + attachmentID
}

// SetDeployment sets the deployment config served for every id.
func (g *Gateway) SetDeployment(dc config.DeploymentConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deployment = dc
}

// SetHistoryPage serves page to requests authorized with SetJwt's token.
func (g *Gateway) SetHistoryPage(number int, page protocol.MessageEntityList) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pages[number] = page
}

// SetJwt sets the JWT history requests must carry.
func (g *Gateway) SetJwt(jwt string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.validJwt = jwt
}

// SetAuthCode makes code exchangeable for issued.
func (g *Gateway) SetAuthCode(code string, issued protocol.AuthJwt) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authCode = code
	g.issued = issued
	g.refreshToken = issued.RefreshToken
}

// SetRefreshedJwt sets the JWT returned by a successful refresh.
func (g *Gateway) SetRefreshedJwt(jwt string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshedJwt = jwt
}

// Fail makes the route named by its last path element answer with status.
// Zero clears the failure.
func (g *Gateway) Fail(route string, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if status == 0 {
		delete(g.failures, route)
		return
	}
	g.failures[route] = status
}

// Uploaded returns the body stored for an attachment.
func (g *Gateway) Uploaded(attachmentID string) ([]byte, http.Header, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.uploads[attachmentID]
	return data, g.uploadHeaders[attachmentID], ok
}

// HistoryQueries lists requested page numbers in order.
func (g *Gateway) HistoryQueries() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.historyQueries...)
}

// Revoked lists the JWTs logged out.
func (g *Gateway) Revoked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.revoked...)
}

func (g *Gateway) failed(w http.ResponseWriter, route string) bool {
	g.mu.Lock()
	status, ok := g.failures[route]
	g.mu.Unlock()
	if ok {
		http.Error(w, route+" failed", status)
	}
	return ok
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) authorized(r *http.Request, jwt string) bool {
	return jwt != "" && r.Header.Get("Authorization") == "Bearer "+jwt
}

func (g *Gateway) handleDeployment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if g.failed(w, "config.json") {
		return
	}
	g.mu.Lock()
	dc := g.deployment
	g.mu.Unlock()
	dc.ID = ps.ByName("id")
	writeJSON(w, dc)
}

func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if g.failed(w, "messages") {
		return
	}
	page, err := strconv.Atoi(r.URL.Query().Get("pageNumber"))
	if err != nil {
		http.Error(w, "bad pageNumber", http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	g.historyQueries = append(g.historyQueries, page)
	jwt := g.validJwt
	list, ok := g.pages[page]
	g.mu.Unlock()

	if !g.authorized(r, jwt) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !ok {
		list = protocol.MessageEntityList{PageNumber: page}
	}
	writeJSON(w, list)
}

func (g *Gateway) handleExchange(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if g.failed(w, "oauthcodegrantjwtexchange") {
		return
	}
	var req protocol.JwtExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	code, issued := g.authCode, g.issued
	g.mu.Unlock()

	if req.OAuth.Code == "" || req.OAuth.Code != code {
		http.Error(w, "invalid code", http.StatusUnauthorized)
		return
	}
	writeJSON(w, issued)
}

func (g *Gateway) handleRefresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if g.failed(w, "refresh") {
		return
	}
	var req protocol.RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	token, jwt := g.refreshToken, g.refreshedJwt
	g.mu.Unlock()

	if req.RefreshToken == "" || req.RefreshToken != token {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, protocol.AuthJwt{Jwt: jwt})
}

func (g *Gateway) handleRevoke(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if g.failed(w, "revoke") {
		return
	}
	jwt := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	g.mu.Lock()
	g.revoked = append(g.revoked, jwt)
	g.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if g.failed(w, "uploads") {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := ps.ByName("id")
	g.mu.Lock()
	g.uploads[id] = data
	g.uploadHeaders[id] = r.Header.Clone()
	g.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}
