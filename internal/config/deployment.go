package config

import (
	"github.com/codefionn/webmessaging/internal/attachment"
)

// Conversation disconnect behaviours.
const (
	DisconnectSend     = "Send"
	DisconnectReadOnly = "ReadOnly"
)

// DeploymentConfig is the published configuration of a web deployment.
type DeploymentConfig struct {
	ID              string        `json:"id"`
	Version         string        `json:"version"`
	Languages       []string      `json:"languages,omitempty"`
	DefaultLanguage string        `json:"defaultLanguage,omitempty"`
	APIEndpoint     string        `json:"apiEndpoint,omitempty"`
	Messenger       Messenger     `json:"messenger"`
	Auth            Auth          `json:"auth"`
	JourneyEvents   JourneyEvents `json:"journeyEvents"`
	Status          string        `json:"status,omitempty"`
}

type Messenger struct {
	Enabled    bool       `json:"enabled"`
	Apps       Apps       `json:"apps"`
	FileUpload FileUpload `json:"fileUpload"`
}

type Apps struct {
	Conversations Conversations `json:"conversations"`
}

type Conversations struct {
	Enabled                  bool                   `json:"enabled"`
	ShowAgentTypingIndicator bool                   `json:"showAgentTypingIndicator"`
	ShowUserTypingIndicator  bool                   `json:"showUserTypingIndicator"`
	AutoStart                Toggle                 `json:"autoStart"`
	ConversationDisconnect   ConversationDisconnect `json:"conversationDisconnect"`
	ConversationClear        Toggle                 `json:"conversationClear"`
}

type Toggle struct {
	Enabled bool `json:"enabled"`
}

type ConversationDisconnect struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"type"`
}

type FileUpload struct {
	EnableAttachments *bool        `json:"enableAttachments,omitempty"`
	Modes             []UploadMode `json:"modes"`
}

type UploadMode struct {
	FileTypes     []string `json:"fileTypes"`
	MaxFileSizeKB int64    `json:"maxFileSizeKB"`
}

type Auth struct {
	Enabled             bool `json:"enabled"`
	AllowSessionUpgrade bool `json:"allowSessionUpgrade"`
}

type JourneyEvents struct {
	Enabled bool `json:"enabled"`
}

// Extensions that are never uploaded regardless of the deployment modes.
var defaultBlockedExtensions = []string{
	".ade", ".adp", ".app", ".asp", ".bas", ".bat", ".chm", ".cmd", ".com",
	".cpl", ".crt", ".csh", ".exe", ".hlp", ".hta", ".inf", ".ins", ".isp",
	".jar", ".js", ".jse", ".lnk", ".msc", ".msi", ".msp", ".mst", ".pif",
	".reg", ".scr", ".sct", ".shb", ".shs", ".vb", ".vbe", ".vbs", ".wsc",
	".wsf", ".wsh",
}

// AutostartEnabled reports whether new sessions start the conversation.
func (d *DeploymentConfig) AutostartEnabled() bool {
	return d.Messenger.Apps.Conversations.AutoStart.Enabled
}

// ReadOnlyOnDisconnect reports whether an agent disconnect leaves the
// session read-only.
func (d *DeploymentConfig) ReadOnlyOnDisconnect() bool {
	cd := d.Messenger.Apps.Conversations.ConversationDisconnect
	return cd.Enabled && cd.Type == DisconnectReadOnly
}

func (d *DeploymentConfig) ClearEnabled() bool {
	return d.Messenger.Apps.Conversations.ConversationClear.Enabled
}

// AttachmentProfile derives the upload policy. Attachments are enabled when
// at least one upload mode is published and not explicitly switched off.
func (d *DeploymentConfig) AttachmentProfile() attachment.Profile {
	fu := d.Messenger.FileUpload
	enabled := len(fu.Modes) > 0
	if fu.EnableAttachments != nil && !*fu.EnableAttachments {
		enabled = false
	}

	var maxKB int64
	for _, m := range fu.Modes {
		if m.MaxFileSizeKB > maxKB {
			maxKB = m.MaxFileSizeKB
		}
	}

	return attachment.Profile{
		Enabled:           enabled,
		MaxFileSizeKB:     maxKB,
		BlockedExtensions: append([]string(nil), defaultBlockedExtensions...),
	}
}
