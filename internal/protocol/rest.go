package protocol

// MessageEntityList is one page of conversation history.
type MessageEntityList struct {
	Entities   []StructuredMessage `json:"entities"`
	PageSize   int                 `json:"pageSize"`
	PageNumber int                 `json:"pageNumber"`
	Total      int                 `json:"total"`
	PageCount  int                 `json:"pageCount"`
}

// OAuthParams carry an authorization code grant.
type OAuthParams struct {
	Code         string `json:"code"`
	RedirectURI  string `json:"redirectUri"`
	CodeVerifier string `json:"codeVerifier,omitempty"`
}

type JwtExchangeRequest struct {
	DeploymentID string      `json:"deploymentId"`
	OAuth        OAuthParams `json:"oauth"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthJwt is returned by the code exchange and by refresh, where only Jwt
// is set.
type AuthJwt struct {
	Jwt          string `json:"jwt"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
