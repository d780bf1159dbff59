package google

import log "github.com/sirupsen/logrus"

// Notification is one flow outcome delivered to the host. Exactly one of
// Token and Err is set.
type Notification struct {
	// Token carries the delivered tokens on success.
	Token *TokenPayload
	// Err carries the error message on failure.
	Err string
}

// Notifier receives the asynchronous outcome of an authorization flow. The
// subsystem emits exactly one notification per flow and then discards the
// tokens; persisting them is the host's responsibility.
type Notifier interface {
	// NotifyToken delivers the tokens of a completed flow.
	NotifyToken(payload TokenPayload)
	// NotifyError delivers the failure message of a concluded flow.
	NotifyError(message string)
}

// ChannelNotifier buffers notifications on a channel for the host to drain.
type ChannelNotifier struct {
	ch chan Notification
}

// NewChannelNotifier creates a notifier with room for a few undrained
// outcomes so a slow host never blocks the flow worker.
func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{ch: make(chan Notification, 4)}
}

// NotifyToken implements Notifier.
func (n *ChannelNotifier) NotifyToken(payload TokenPayload) {
	n.send(Notification{Token: &payload})
}

// NotifyError implements Notifier.
func (n *ChannelNotifier) NotifyError(message string) {
	n.send(Notification{Err: message})
}

// Events exposes the notification stream.
func (n *ChannelNotifier) Events() <-chan Notification {
	return n.ch
}

func (n *ChannelNotifier) send(note Notification) {
	select {
	case n.ch <- note:
	default:
		log.Warn("oauth notification channel full, dropping notification")
	}
}
