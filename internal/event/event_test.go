package event

import (
	"testing"
	"time"

	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/stretchr/testify/assert"
)

func TestNewErrorDerivesAction(t *testing.T) {
	e := NewError(errcode.RequestRateTooHigh, "slow down")
	assert.Equal(t, errcode.ActionTooManyRequests, e.Action)
	assert.Equal(t, `Error(RequestRateTooHigh, "slow down", TooManyRequests)`, e.String())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "AgentTyping(5s)", AgentTyping{Duration: 5 * time.Second}.String())
	assert.Equal(t, "HealthChecked", HealthChecked{}.String())
}
