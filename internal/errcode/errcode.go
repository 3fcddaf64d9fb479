// Package errcode maps protocol, socket and HTTP failures onto one closed set
// of error codes and derives the corrective action a caller should take.
package errcode

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure. Named codes use the gateway's numbering;
// values in 300..599 are HTTP status wrappers.
type ErrorCode int

// Protocol codes reported by the gateway.
const (
	FeatureUnavailable                ErrorCode = 4000
	FileTypeInvalid                   ErrorCode = 4001
	FileSizeInvalid                   ErrorCode = 4002
	FileContentInvalid                ErrorCode = 4003
	FileNameInvalid                   ErrorCode = 4004
	FileNameTooLong                   ErrorCode = 4005
	SessionHasExpired                 ErrorCode = 4006
	SessionNotFound                   ErrorCode = 4007
	AttachmentHasExpired              ErrorCode = 4008
	AttachmentNotFound                ErrorCode = 4009
	AttachmentNotSuccessfullyUploaded ErrorCode = 4010
	MessageTooLong                    ErrorCode = 4011
	CustomAttributeSizeTooLarge       ErrorCode = 4013
	MissingParameter                  ErrorCode = 4020
	RequestRateTooHigh                ErrorCode = 4029
	UnexpectedError                   ErrorCode = 5000
)

// Socket and network codes.
const (
	WebsocketError        ErrorCode = 1001
	WebsocketAccessDenied ErrorCode = 1002
	NetworkDisabled       ErrorCode = -1009
)

// Client-local codes.
const (
	CancellationError        ErrorCode = 6000
	AuthFailed               ErrorCode = 6001
	AuthLogoutFailed         ErrorCode = 6002
	RefreshAuthTokenFailure  ErrorCode = 6003
	HistoryFetchFailure      ErrorCode = 6004
	ClearConversationFailure ErrorCode = 6005
)

var names = map[ErrorCode]string{
	FeatureUnavailable:                "FeatureUnavailable",
	FileTypeInvalid:                   "FileTypeInvalid",
	FileSizeInvalid:                   "FileSizeInvalid",
	FileContentInvalid:                "FileContentInvalid",
	FileNameInvalid:                   "FileNameInvalid",
	FileNameTooLong:                   "FileNameTooLong",
	SessionHasExpired:                 "SessionHasExpired",
	SessionNotFound:                   "SessionNotFound",
	AttachmentHasExpired:              "AttachmentHasExpired",
	AttachmentNotFound:                "AttachmentNotFound",
	AttachmentNotSuccessfullyUploaded: "AttachmentNotSuccessfullyUploaded",
	MessageTooLong:                    "MessageTooLong",
	CustomAttributeSizeTooLarge:       "CustomAttributeSizeTooLarge",
	MissingParameter:                  "MissingParameter",
	RequestRateTooHigh:                "RequestRateTooHigh",
	UnexpectedError:                   "UnexpectedError",
	WebsocketError:                    "WebsocketError",
	WebsocketAccessDenied:             "WebsocketAccessDenied",
	NetworkDisabled:                   "NetworkDisabled",
	CancellationError:                 "CancellationError",
	AuthFailed:                        "AuthFailed",
	AuthLogoutFailed:                  "AuthLogoutFailed",
	RefreshAuthTokenFailure:           "RefreshAuthTokenFailure",
	HistoryFetchFailure:               "HistoryFetchFailure",
	ClearConversationFailure:          "ClearConversationFailure",
}

// Kind groups codes by origin.
type Kind int

const (
	KindNamed Kind = iota
	KindRedirect
	KindClientResponse
	KindServerResponse
)

// FromCode resolves a numeric code. Unknown values outside the HTTP ranges
// resolve to UnexpectedError.
func FromCode(value int) ErrorCode {
	c := ErrorCode(value)
	if _, ok := names[c]; ok {
		return c
	}
	if value >= 300 && value < 600 {
		return c
	}
	return UnexpectedError
}

// FromHTTPStatus wraps an HTTP status code.
func FromHTTPStatus(status int) ErrorCode {
	if status >= 300 && status < 600 {
		return ErrorCode(status)
	}
	return UnexpectedError
}

// Kind reports whether the code is a named code or an HTTP wrapper.
func (c ErrorCode) Kind() Kind {
	switch {
	case c >= 300 && c < 400:
		return KindRedirect
	case c >= 400 && c < 500:
		return KindClientResponse
	case c >= 500 && c < 600:
		return KindServerResponse
	default:
		return KindNamed
	}
}

// Code returns the numeric value.
func (c ErrorCode) Code() int {
	return int(c)
}

func (c ErrorCode) String() string {
	switch c.Kind() {
	case KindRedirect:
		return fmt.Sprintf("RedirectResponseError(%d)", int(c))
	case KindClientResponse:
		return fmt.Sprintf("ClientResponseError(%d)", int(c))
	case KindServerResponse:
		return fmt.Sprintf("ServerResponseError(%d)", int(c))
	}
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// IsSessionFatal reports codes that end the session.
func (c ErrorCode) IsSessionFatal() bool {
	switch c {
	case SessionHasExpired, SessionNotFound, WebsocketAccessDenied:
		return true
	}
	return false
}

// IsMessageScoped reports codes that fail only the in-flight message.
func (c ErrorCode) IsMessageScoped() bool {
	switch c {
	case MessageTooLong, CustomAttributeSizeTooLarge, RequestRateTooHigh, MissingParameter:
		return true
	}
	return false
}

// IsAttachmentScoped reports codes that fail a single attachment.
func (c ErrorCode) IsAttachmentScoped() bool {
	switch c {
	case FileTypeInvalid, FileSizeInvalid, FileContentInvalid, FileNameInvalid, FileNameTooLong,
		AttachmentHasExpired, AttachmentNotFound, AttachmentNotSuccessfullyUploaded:
		return true
	}
	return false
}

// Error is a failure reported to listeners or returned from an operation.
type Error struct {
	Code    ErrorCode
	Message string
	Action  CorrectiveAction
}

// New builds an Error with the corrective action derived from code.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Action: code.CorrectiveAction()}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Canceled marks cause as a CancellationError. The result still matches
// cause with errors.Is.
func Canceled(cause error) error {
	return fmt.Errorf("%w: %w", New(CancellationError, "operation cancelled"), cause)
}

// IsCanceled reports whether err carries a CancellationError.
func IsCanceled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CancellationError
}
