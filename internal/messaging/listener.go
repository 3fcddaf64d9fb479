package messaging

import (
	"github.com/codefionn/webmessaging/internal/actor"
	"github.com/codefionn/webmessaging/internal/logger"
)

// socketListener forwards transport callbacks into the session actor.
type socketListener struct {
	ref *actor.Ref
	gen int
	log *logger.Logger
}

func (l *socketListener) post(msg actor.Message) {
	if err := l.ref.Send(msg); err != nil {
		l.log.Debug("socket report %s dropped: %v", msg.Type(), err)
	}
}

func (l *socketListener) OnOpen() {
	l.post(socketOpenedMsg{gen: l.gen})
}

func (l *socketListener) OnMessage(text string) {
	l.post(socketTextMsg{gen: l.gen, text: text})
}

func (l *socketListener) OnFailure(err error) {
	l.post(socketFailedMsg{gen: l.gen, err: err})
}

func (l *socketListener) OnClosing(code int, reason string) {
	l.post(socketClosingMsg{gen: l.gen, code: code, reason: reason})
}

func (l *socketListener) OnClosed(code int, reason string) {
	l.post(socketClosedMsg{gen: l.gen, code: code, reason: reason})
}
