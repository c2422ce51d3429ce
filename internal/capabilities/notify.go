package capabilities

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nsharma/weft/internal/engine"
)

// ChatSender delivers a message to a chat on some messaging platform.
// Gateways satisfy this with their Send method.
type ChatSender interface {
	Send(chatID string, text string) error
}

type ChatNotifier struct {
	Sender ChatSender
	seq    atomic.Int64
}

func NewChatNotifier(sender ChatSender) *ChatNotifier {
	return &ChatNotifier{Sender: sender}
}

func (n *ChatNotifier) Capability() *engine.Capability {
	return &engine.Capability{
		Name:        "notify_chat",
		Description: "Send a message to a chat conversation.",
		Required:    []string{"chat_id", "text"},
		OutputKeys:  map[string]string{"message_id": "chat_message_id"},
		Invoke:      n.invoke,
	}
}

func (n *ChatNotifier) invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	chatID, _ := args["chat_id"].(string)
	text, _ := args["text"].(string)
	if chatID == "" || text == "" {
		return nil, &engine.CapabilityError{Message: "chat_id and text must be non-empty strings"}
	}
	if n.Sender == nil {
		return nil, &engine.CapabilityError{Message: "no chat gateway is connected"}
	}

	if err := n.Sender.Send(chatID, text); err != nil {
		return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to send message: %v", err)}
	}
	return map[string]any{
		"message_id": fmt.Sprintf("%s:%d", chatID, n.seq.Add(1)),
		"chat_id":    chatID,
	}, nil
}
