package errcode

// CorrectiveAction tells the integrator what to do about an ErrorCode.
type CorrectiveAction int

const (
	ActionUnknown CorrectiveAction = iota
	ActionBadRequest
	ActionForbidden
	ActionNotFound
	ActionRequestTimeOut
	ActionTooManyRequests
	ActionReAuthenticate
	ActionCustomAttributeSizeTooLarge
)

func (a CorrectiveAction) String() string {
	switch a {
	case ActionBadRequest:
		return "BadRequest"
	case ActionForbidden:
		return "Forbidden"
	case ActionNotFound:
		return "NotFound"
	case ActionRequestTimeOut:
		return "RequestTimeOut"
	case ActionTooManyRequests:
		return "TooManyRequests"
	case ActionReAuthenticate:
		return "ReAuthenticate"
	case ActionCustomAttributeSizeTooLarge:
		return "CustomAttributeSizeTooLarge"
	default:
		return "Unknown"
	}
}

// Message is a short human instruction.
func (a CorrectiveAction) Message() string {
	switch a {
	case ActionBadRequest:
		return "Refer to the error details."
	case ActionForbidden:
		return "Check the deployment id and the allowed domains of the deployment."
	case ActionNotFound:
		return "Verify the requested resource exists."
	case ActionRequestTimeOut:
		return "Check connectivity and retry the request."
	case ActionTooManyRequests:
		return "Wait before sending another request."
	case ActionReAuthenticate:
		return "Sign in again to obtain a new auth code."
	case ActionCustomAttributeSizeTooLarge:
		return "Shorten the custom attributes and send again."
	default:
		return "Report the error to the deployment administrator."
	}
}

// CorrectiveAction maps a code deterministically. Codes without a dedicated
// action resolve to ActionUnknown.
func (c ErrorCode) CorrectiveAction() CorrectiveAction {
	switch c {
	case 400:
		return ActionBadRequest
	case 403:
		return ActionForbidden
	case 404:
		return ActionNotFound
	case 408:
		return ActionRequestTimeOut
	case 429, RequestRateTooHigh:
		return ActionTooManyRequests
	case 401, AuthFailed, AuthLogoutFailed, RefreshAuthTokenFailure:
		return ActionReAuthenticate
	case CustomAttributeSizeTooLarge:
		return ActionCustomAttributeSizeTooLarge
	default:
		return ActionUnknown
	}
}
