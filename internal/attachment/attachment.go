// Package attachment drives file attachments through presign, upload,
// confirmation and send, one state machine per attachment id.
package attachment

import (
	"fmt"

	"github.com/codefionn/webmessaging/internal/errcode"
)

// State is the sealed set of attachment states.
type State interface {
	String() string

	// isState seals the interface.
	isState()
}

type (
	// Presigning waits for the presigned upload URL.
	Presigning struct{}
	// Uploading means the bytes are being PUT to the presigned URL.
	Uploading struct{}
	// Uploaded means the gateway confirmed the upload.
	Uploaded struct{ DownloadURL string }
	// Sending means the attachment rides on an in-flight message.
	Sending struct{}
	// Sent means the message carrying the attachment was delivered.
	Sent struct{ DownloadURL string }
	// Detaching waits for the gateway to delete an uploaded attachment.
	Detaching struct{}
	// Detached is terminal: removed by the user.
	Detached struct{}
	// Deleted is terminal: removed by the gateway.
	Deleted struct{}
	// Error is terminal.
	Error struct {
		Code    errcode.ErrorCode
		Message string
	}
)

func (Presigning) String() string { return "Presigning" }
func (Uploading) String() string  { return "Uploading" }
func (s Uploaded) String() string { return fmt.Sprintf("Uploaded(%s)", s.DownloadURL) }
func (Sending) String() string    { return "Sending" }
func (s Sent) String() string     { return fmt.Sprintf("Sent(%s)", s.DownloadURL) }
func (Detaching) String() string  { return "Detaching" }
func (Detached) String() string   { return "Detached" }
func (Deleted) String() string    { return "Deleted" }
func (s Error) String() string    { return fmt.Sprintf("Error(%s, %q)", s.Code, s.Message) }

func (Presigning) isState() {}
func (Uploading) isState()  {}
func (Uploaded) isState()   {}
func (Sending) isState()    {}
func (Sent) isState()       {}
func (Detaching) isState()  {}
func (Detached) isState()   {}
func (Deleted) isState()    {}
func (Error) isState()      {}

var (
	_ State = Presigning{}
	_ State = Uploading{}
	_ State = Uploaded{}
	_ State = Sending{}
	_ State = Sent{}
	_ State = Detaching{}
	_ State = Detached{}
	_ State = Deleted{}
	_ State = Error{}
)

// Attachment is the user-visible record of one file.
type Attachment struct {
	ID       string
	FileName string
	FileSize int64
	State    State
}

// DownloadURL returns the URL of an uploaded or sent attachment.
func (a Attachment) DownloadURL() string {
	switch s := a.State.(type) {
	case Uploaded:
		return s.DownloadURL
	case Sent:
		return s.DownloadURL
	}
	return ""
}
