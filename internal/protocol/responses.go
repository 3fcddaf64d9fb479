package protocol

import (
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Inbound is a decoded server frame. The set of implementations is closed.
type Inbound interface {
	inbound()
}

// Envelope classes.
const (
	ClassSessionResponse           = "SessionResponse"
	ClassJwtResponse               = "JwtResponse"
	ClassPresignedURLResponse      = "PresignedUrlResponse"
	ClassUploadSuccessEvent        = "UploadSuccessEvent"
	ClassUploadFailureEvent        = "UploadFailureEvent"
	ClassStructuredMessage         = "StructuredMessage"
	ClassAttachmentDeletedResponse = "AttachmentDeletedResponse"
	ClassGenerateURLError          = "GenerateUrlError"
	ClassSessionExpiredEvent       = "SessionExpiredEvent"
	ClassTooManyRequests           = "TooManyRequestsErrorMessage"
	ClassConnectionClosedEvent     = "ConnectionClosedEvent"
	ClassLogoutEvent               = "LogoutEvent"
	ClassSessionClearedEvent       = "SessionClearedEvent"
	ClassString                    = "string"
)

// Message directions as reported by the gateway.
const (
	DirectionInbound  = "Inbound"
	DirectionOutbound = "Outbound"
)

type SessionResponse struct {
	Connected              bool `json:"connected"`
	NewSession             bool `json:"newSession"`
	ReadOnly               bool `json:"readOnly"`
	MaxCustomDataBytes     *int `json:"maxCustomDataBytes,omitempty"`
	ClearedExistingSession bool `json:"clearedExistingSession"`
}

// MaxCustomData returns the custom attribute limit if the gateway sent one.
func (r SessionResponse) MaxCustomData() fn.Option[int] {
	if r.MaxCustomDataBytes == nil {
		return fn.None[int]()
	}
	return fn.Some(*r.MaxCustomDataBytes)
}

type JwtResponse struct {
	Jwt string `json:"jwt"`
	Exp int64  `json:"exp"`
}

type PresignedURLResponse struct {
	AttachmentID string            `json:"attachmentId"`
	Headers      map[string]string `json:"headers"`
	URL          string            `json:"url"`
	FileName     string            `json:"fileName,omitempty"`
}

type UploadSuccessEvent struct {
	AttachmentID string `json:"attachmentId"`
	DownloadURL  string `json:"downloadUrl"`
	Timestamp    string `json:"timestamp"`
}

type UploadFailureEvent struct {
	AttachmentID string `json:"attachmentId"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Timestamp    string `json:"timestamp"`
}

type GenerateURLError struct {
	AttachmentID string `json:"attachmentId"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type AttachmentDeletedResponse struct {
	AttachmentID string `json:"attachmentId"`
}

type TooManyRequestsErrorMessage struct {
	RetryAfter   int    `json:"retryAfter"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type SessionExpiredEvent struct{}

type ConnectionClosedEvent struct{}

type LogoutEvent struct{}

type SessionClearedEvent struct{}

// ErrorResponse is a frame whose body is a bare string.
type ErrorResponse struct {
	Code    int
	Message string
}

type Participant struct {
	ID       string `json:"id,omitempty"`
	IDType   string `json:"idType,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Image    string `json:"image,omitempty"`
}

type StructuredChannel struct {
	Time      string       `json:"time,omitempty"`
	MessageID string       `json:"messageId,omitempty"`
	Type      string       `json:"type,omitempty"`
	From      *Participant `json:"from,omitempty"`
}

type AttachmentContent struct {
	ID        string `json:"id"`
	URL       string `json:"url,omitempty"`
	Filename  string `json:"filename,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

type QuickReplyContent struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
	Action  string `json:"action,omitempty"`
}

type StructuredContent struct {
	ContentType    string             `json:"contentType"`
	Attachment     *AttachmentContent `json:"attachment,omitempty"`
	ButtonResponse *ButtonResponse    `json:"buttonResponse,omitempty"`
	QuickReply     *QuickReplyContent `json:"quickReply,omitempty"`
}

type StructuredEvent struct {
	EventType string         `json:"eventType"`
	Typing    *TypingEvent   `json:"typing,omitempty"`
	Presence  *PresenceEvent `json:"presence,omitempty"`
}

// StructuredMessage is a chat message pushed by the gateway, possibly an
// echo of a message the user sent.
type StructuredMessage struct {
	ID        string              `json:"id"`
	Channel   *StructuredChannel  `json:"channel,omitempty"`
	Type      string              `json:"type"`
	Text      string              `json:"text,omitempty"`
	Direction string              `json:"direction"`
	Content   []StructuredContent `json:"content,omitempty"`
	Events    []StructuredEvent   `json:"events,omitempty"`
	Metadata  map[string]string   `json:"metadata,omitempty"`
}

func (SessionResponse) inbound()             {}
func (JwtResponse) inbound()                 {}
func (PresignedURLResponse) inbound()        {}
func (UploadSuccessEvent) inbound()          {}
func (UploadFailureEvent) inbound()          {}
func (GenerateURLError) inbound()            {}
func (AttachmentDeletedResponse) inbound()   {}
func (TooManyRequestsErrorMessage) inbound() {}
func (SessionExpiredEvent) inbound()         {}
func (ConnectionClosedEvent) inbound()       {}
func (LogoutEvent) inbound()                 {}
func (SessionClearedEvent) inbound()         {}
func (ErrorResponse) inbound()               {}
func (StructuredMessage) inbound()           {}

var (
	_ Inbound = SessionResponse{}
	_ Inbound = StructuredMessage{}
	_ Inbound = ErrorResponse{}
)
