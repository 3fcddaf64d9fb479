// Package protocol defines the JSON frames exchanged with the messaging
// gateway. Outbound structs declare their fields in wire order with the
// action discriminator last, so encoding is byte-stable.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Actions understood by the gateway.
const (
	ActionConfigureSession              = "configureSession"
	ActionConfigureAuthenticatedSession = "configureAuthenticatedSession"
	ActionOnMessage                     = "onMessage"
	ActionOnAttachment                  = "onAttachment"
	ActionDeleteAttachment              = "deleteAttachment"
	ActionEcho                          = "echo"
	ActionTyping                        = "typing"
	ActionGetJwt                        = "getJwt"
	ActionCloseSession                  = "closeSession"
)

// Message type tags.
const (
	TypeText       = "Text"
	TypeEvent      = "Event"
	TypeStructured = "Structured"
	TypeQuickReply = "QuickReply"
)

// Content type tags.
const (
	ContentTypeAttachment     = "Attachment"
	ContentTypeButtonResponse = "ButtonResponse"
	ContentTypeQuickReply     = "QuickReply"
)

// Event type tags and presence kinds.
const (
	EventTypeTyping   = "Typing"
	EventTypePresence = "Presence"

	PresenceJoin       = "Join"
	PresenceDisconnect = "Disconnect"
	PresenceClear      = "Clear"
	PresenceSignIn     = "SignIn"

	TypingOn = "On"
)

// JourneyContext links the session to a web journey.
type JourneyContext struct {
	Customer        JourneyCustomer        `json:"customer"`
	CustomerSession JourneyCustomerSession `json:"customerSession"`
}

type JourneyCustomer struct {
	ID     string `json:"id"`
	IDType string `json:"idType"`
}

type JourneyCustomerSession struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ConfigureSessionRequest opens an anonymous session.
type ConfigureSessionRequest struct {
	Token          string          `json:"token"`
	DeploymentID   string          `json:"deploymentId"`
	StartNew       bool            `json:"startNew"`
	JourneyContext *JourneyContext `json:"journeyContext,omitempty"`
	Action         string          `json:"action"`
}

func NewConfigureSessionRequest(token, deploymentID string, startNew bool, journey *JourneyContext) ConfigureSessionRequest {
	return ConfigureSessionRequest{
		Token:          token,
		DeploymentID:   deploymentID,
		StartNew:       startNew,
		JourneyContext: journey,
		Action:         ActionConfigureSession,
	}
}

// AuthData carries the JWT of an authenticated session.
type AuthData struct {
	Code string `json:"code"`
}

// ConfigureAuthenticatedSessionRequest opens a session bound to a signed-in user.
type ConfigureAuthenticatedSessionRequest struct {
	Token          string          `json:"token"`
	DeploymentID   string          `json:"deploymentId"`
	StartNew       bool            `json:"startNew"`
	JourneyContext *JourneyContext `json:"journeyContext,omitempty"`
	Data           AuthData        `json:"data"`
	Action         string          `json:"action"`
}

func NewConfigureAuthenticatedSessionRequest(token, deploymentID string, startNew bool, journey *JourneyContext, jwt string) ConfigureAuthenticatedSessionRequest {
	return ConfigureAuthenticatedSessionRequest{
		Token:          token,
		DeploymentID:   deploymentID,
		StartNew:       startNew,
		JourneyContext: journey,
		Data:           AuthData{Code: jwt},
		Action:         ActionConfigureAuthenticatedSession,
	}
}

// ChannelMetadata carries conversation-scoped custom attributes.
type ChannelMetadata struct {
	CustomAttributes map[string]string `json:"customAttributes"`
}

type Channel struct {
	Metadata ChannelMetadata `json:"metadata"`
}

// NewChannel returns nil for empty attributes so the field is omitted.
func NewChannel(attrs map[string]string) *Channel {
	if len(attrs) == 0 {
		return nil
	}
	return &Channel{Metadata: ChannelMetadata{CustomAttributes: attrs}}
}

type AttachmentRef struct {
	ID string `json:"id"`
}

// ButtonResponse is a quick reply chosen by the user.
type ButtonResponse struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
	Type    string `json:"type"`
}

// Content is one outbound content item.
type Content struct {
	ContentType    string          `json:"contentType"`
	Attachment     *AttachmentRef  `json:"attachment,omitempty"`
	ButtonResponse *ButtonResponse `json:"buttonResponse,omitempty"`
}

// TextMessage is the message body of onMessage and echo frames.
type TextMessage struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Content  []Content         `json:"content,omitempty"`
	Channel  *Channel          `json:"channel,omitempty"`
	Type     string            `json:"type"`
}

// OnMessageRequest sends a user message.
type OnMessageRequest struct {
	Token   string      `json:"token"`
	Message TextMessage `json:"message"`
	Action  string      `json:"action"`
}

func NewOnMessageRequest(token string, message TextMessage) OnMessageRequest {
	return OnMessageRequest{Token: token, Message: message, Action: ActionOnMessage}
}

type PresenceEvent struct {
	Type string `json:"type"`
}

type TypingEvent struct {
	Type     string `json:"type"`
	Duration int64  `json:"duration,omitempty"`
}

// Event is one entry of an event message.
type Event struct {
	EventType string         `json:"eventType"`
	Presence  *PresenceEvent `json:"presence,omitempty"`
	Typing    *TypingEvent   `json:"typing,omitempty"`
}

type EventMessage struct {
	Events  []Event  `json:"events"`
	Channel *Channel `json:"channel,omitempty"`
	Type    string   `json:"type"`
}

// OnEventRequest sends presence events such as autostart or clear.
type OnEventRequest struct {
	Token   string       `json:"token"`
	Message EventMessage `json:"message"`
	Action  string       `json:"action"`
}

func NewPresenceRequest(token, presence string, attrs map[string]string) OnEventRequest {
	return OnEventRequest{
		Token: token,
		Message: EventMessage{
			Events:  []Event{{EventType: EventTypePresence, Presence: &PresenceEvent{Type: presence}}},
			Channel: NewChannel(attrs),
			Type:    TypeEvent,
		},
		Action: ActionOnMessage,
	}
}

// EchoRequest is the health check frame.
type EchoRequest struct {
	Token   string      `json:"token"`
	Action  string      `json:"action"`
	Message TextMessage `json:"message"`
}

func NewEchoRequest(token, healthCheckID string) EchoRequest {
	return EchoRequest{
		Token:  token,
		Action: ActionEcho,
		Message: TextMessage{
			Text:     "ping",
			Metadata: map[string]string{"customMessageId": healthCheckID},
			Type:     TypeText,
		},
	}
}

// TypingRequest tells the agent the user is typing.
type TypingRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
}

func NewTypingRequest(token string) TypingRequest {
	return TypingRequest{Token: token, Action: ActionTyping}
}

// OnAttachmentRequest asks for a presigned upload URL.
type OnAttachmentRequest struct {
	Token        string `json:"token"`
	AttachmentID string `json:"attachmentId"`
	FileName     string `json:"fileName"`
	FileType     string `json:"fileType"`
	FileSize     int64  `json:"fileSize"`
	ErrorsAsJSON bool   `json:"errorsAsJson"`
	Action       string `json:"action"`
}

func NewOnAttachmentRequest(token, attachmentID, fileName, fileType string, fileSize int64) OnAttachmentRequest {
	return OnAttachmentRequest{
		Token:        token,
		AttachmentID: attachmentID,
		FileName:     fileName,
		FileType:     fileType,
		FileSize:     fileSize,
		ErrorsAsJSON: true,
		Action:       ActionOnAttachment,
	}
}

type DeleteAttachmentRequest struct {
	Token        string `json:"token"`
	AttachmentID string `json:"attachmentId"`
	Action       string `json:"action"`
}

func NewDeleteAttachmentRequest(token, attachmentID string) DeleteAttachmentRequest {
	return DeleteAttachmentRequest{Token: token, AttachmentID: attachmentID, Action: ActionDeleteAttachment}
}

type JwtRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
}

func NewJwtRequest(token string) JwtRequest {
	return JwtRequest{Token: token, Action: ActionGetJwt}
}

// CloseSessionRequest closes every connection of the session, used before
// starting a new chat from a read-only conversation.
type CloseSessionRequest struct {
	Token               string `json:"token"`
	CloseAllConnections bool   `json:"closeAllConnections"`
	Action              string `json:"action"`
}

func NewCloseSessionRequest(token string) CloseSessionRequest {
	return CloseSessionRequest{Token: token, CloseAllConnections: true, Action: ActionCloseSession}
}

// Encode serializes an outbound frame.
func Encode(frame any) (string, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("encode %T: %w", frame, err)
	}
	return string(data), nil
}
