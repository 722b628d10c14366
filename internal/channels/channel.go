// Package channels defines the outbound channel contract and the registry
// the delivery fabric dispatches through. Channel adapters (DingTalk, Feishu,
// QQ, WeCom wire protocols) are registered by the embedding application at
// process start; the core only consumes the SendMessage contract.
package channels

import "context"

// Recognized channel IDs. The set is closed; "last" is a sentinel resolved
// to a configured default by the delivery layer, never a real channel.
const (
	DingTalk = "dingtalk"
	Feishu   = "feishu"
	QQ       = "qq"
	WeCom    = "wecom"
	Webchat  = "webchat"

	Last = "last"
)

var known = map[string]bool{
	DingTalk: true,
	Feishu:   true,
	QQ:       true,
	WeCom:    true,
	Webchat:  true,
}

// IsKnown reports whether id names a real channel (the sentinel "last" is not one).
func IsKnown(id string) bool { return known[id] }

// OutboundMessage is one message handed to a channel adapter.
type OutboundMessage struct {
	ChatID    string   `json:"chatId"`
	Content   string   `json:"content"`
	ReplyToID string   `json:"replyToId,omitempty"`
	MediaURLs []string `json:"mediaUrls,omitempty"`
}

// SendResult reports the adapter outcome. Adapters report failures here;
// they never panic past the registry boundary.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Channel is the narrow contract a registered adapter provides.
type Channel interface {
	Name() string
	IsAvailable() bool
	SendMessage(ctx context.Context, msg OutboundMessage) SendResult
}
