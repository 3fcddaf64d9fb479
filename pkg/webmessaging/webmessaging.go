// Package webmessaging is the public API of the web messaging client.
//
// A Client is created from a Configuration, connected with Connect and then
// driven with SendMessage, Attach, FetchNextPage and the other operations.
// Everything the gateway pushes arrives through the listeners registered
// with OnState, OnMessageEvent and OnEvent.
package webmessaging

import (
	"github.com/codefionn/webmessaging/internal/attachment"
	"github.com/codefionn/webmessaging/internal/config"
	"github.com/codefionn/webmessaging/internal/conversation"
	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/event"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/codefionn/webmessaging/internal/messaging"
	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/codefionn/webmessaging/internal/state"
	"github.com/codefionn/webmessaging/internal/vault"
)

type (
	Client           = messaging.Client
	Option           = messaging.Option
	Configuration    = config.Configuration
	DeploymentConfig = config.DeploymentConfig

	ConnectionState = state.ConnectionState
	StateChange     = state.StateChange

	Message           = conversation.Message
	MessageEvent      = conversation.Event
	MessageInserted   = conversation.MessageInserted
	MessageUpdated    = conversation.MessageUpdated
	AttachmentUpdated = conversation.AttachmentUpdated
	HistoryFetched    = conversation.HistoryFetched

	Attachment     = attachment.Attachment
	ProgressFunc   = attachment.ProgressFunc
	ButtonResponse = protocol.ButtonResponse

	Event      = event.Event
	ErrorEvent = event.Error
	ErrorCode  = errcode.ErrorCode
	Error      = errcode.Error

	Vault     = vault.Vault
	FileVault = vault.File
	Logger    = logger.Logger
)

// ErrIllegalState is matched by errors.Is for operations called in the
// wrong connection state.
var ErrIllegalState = state.ErrIllegalState

var (
	WithSocketFactory    = messaging.WithSocketFactory
	WithVault            = messaging.WithVault
	WithLogger           = messaging.WithLogger
	WithIDGenerator      = messaging.WithIDGenerator
	WithDeploymentConfig = messaging.WithDeploymentConfig
)

// NewClient validates cfg and returns an idle client.
func NewClient(cfg *Configuration, opts ...Option) (*Client, error) {
	return messaging.NewClient(cfg, opts...)
}

// DefaultConfiguration returns a configuration with every optional setting
// at its default. DeploymentID and Domain must still be set.
func DefaultConfiguration() *Configuration {
	return config.DefaultConfiguration()
}

// LoadConfiguration reads a YAML file (optional) and WEBMESSAGING_*
// environment variables.
func LoadConfiguration(path string) (*Configuration, error) {
	return config.Load(path)
}

// NewMemoryVault keeps secrets in protected memory for the process lifetime.
func NewMemoryVault() Vault {
	return vault.NewMemory()
}

// OpenFileVault opens a password-encrypted vault file and locks it for
// this process until Close.
func OpenFileVault(path, password string) (*FileVault, error) {
	return vault.OpenFile(path, password)
}
