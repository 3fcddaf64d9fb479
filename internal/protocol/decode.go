package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownClass is returned for envelopes whose class has no decoder.
	ErrUnknownClass = errors.New("unknown message class")
	// ErrMalformed is returned when the envelope or body cannot be parsed.
	ErrMalformed = errors.New("malformed frame")
)

// Envelope is the outer shape of every inbound frame.
type Envelope struct {
	Type  string          `json:"type"`
	Class string          `json:"class"`
	Code  int             `json:"code"`
	Body  json.RawMessage `json:"body"`
}

// Decode parses an inbound frame into its typed body.
func Decode(raw string) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}

	body := bytes.TrimSpace(env.Body)
	if len(body) > 0 && body[0] == '"' {
		var text string
		if err := json.Unmarshal(body, &text); err != nil {
			return nil, fmt.Errorf("%w: string body: %v", ErrMalformed, err)
		}
		return ErrorResponse{Code: env.Code, Message: text}, nil
	}

	switch env.Class {
	case ClassSessionResponse:
		return decodeBody[SessionResponse](env)
	case ClassJwtResponse:
		return decodeBody[JwtResponse](env)
	case ClassPresignedURLResponse:
		return decodeBody[PresignedURLResponse](env)
	case ClassUploadSuccessEvent:
		return decodeBody[UploadSuccessEvent](env)
	case ClassUploadFailureEvent:
		return decodeBody[UploadFailureEvent](env)
	case ClassGenerateURLError:
		return decodeBody[GenerateURLError](env)
	case ClassAttachmentDeletedResponse:
		return decodeBody[AttachmentDeletedResponse](env)
	case ClassTooManyRequests:
		return decodeBody[TooManyRequestsErrorMessage](env)
	case ClassStructuredMessage:
		return decodeBody[StructuredMessage](env)
	case ClassSessionExpiredEvent:
		return SessionExpiredEvent{}, nil
	case ClassConnectionClosedEvent:
		return ConnectionClosedEvent{}, nil
	case ClassLogoutEvent:
		return LogoutEvent{}, nil
	case ClassSessionClearedEvent:
		return SessionClearedEvent{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownClass, env.Class)
}

func decodeBody[T Inbound](env Envelope) (Inbound, error) {
	var v T
	if len(env.Body) == 0 || string(env.Body) == "null" {
		return nil, fmt.Errorf("%w: %s without body", ErrMalformed, env.Class)
	}
	if err := json.Unmarshal(env.Body, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Class, err)
	}
	return v, nil
}

// EncodeEnvelope wraps body into an inbound envelope. The gateway fakes use
// it to produce server frames.
func EncodeEnvelope(typ, class string, code int, body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode %s body: %w", class, err)
	}
	data, err := json.Marshal(Envelope{Type: typ, Class: class, Code: code, Body: raw})
	if err != nil {
		return "", fmt.Errorf("encode %s envelope: %w", class, err)
	}
	return string(data), nil
}
