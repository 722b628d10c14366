package channels

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const webchatHistoryCap = 200

// WebchatMessage is one delivered message held for the browser client.
type WebchatMessage struct {
	ID        string   `json:"id"`
	ChatID    string   `json:"chatId"`
	Content   string   `json:"content"`
	ReplyToID string   `json:"replyToId,omitempty"`
	MediaURLs []string `json:"mediaUrls,omitempty"`
}

// WebchatChannel is the in-process loopback channel behind the embedded
// browser client. Outbound messages land in a bounded ring the web layer
// polls; there is no wire protocol.
type WebchatChannel struct {
	mu       sync.Mutex
	messages []WebchatMessage
}

func NewWebchat() *WebchatChannel { return &WebchatChannel{} }

func (w *WebchatChannel) Name() string      { return Webchat }
func (w *WebchatChannel) IsAvailable() bool { return true }

func (w *WebchatChannel) SendMessage(_ context.Context, msg OutboundMessage) SendResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	m := WebchatMessage{
		ID:        uuid.NewString(),
		ChatID:    msg.ChatID,
		Content:   msg.Content,
		ReplyToID: msg.ReplyToID,
		MediaURLs: msg.MediaURLs,
	}
	w.messages = append(w.messages, m)
	if len(w.messages) > webchatHistoryCap {
		w.messages = w.messages[len(w.messages)-webchatHistoryCap:]
	}
	return SendResult{Success: true, MessageID: m.ID}
}

// Messages returns a copy of the retained history for chatID
// (all chats if chatID is empty).
func (w *WebchatChannel) Messages(chatID string) []WebchatMessage {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []WebchatMessage
	for _, m := range w.messages {
		if chatID == "" || m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}
