package ws

import (
	"github.com/planner/internal/model"
)

type EventType string

// Входящие кадры.
const (
	EventChatSubscribe   EventType = "chat_subscribe"
	EventChatUnsubscribe EventType = "chat_unsubscribe"
	EventChatSend        EventType = "chat_send"
	EventPing            EventType = "ping"
)

// Исходящие кадры.
const (
	EventEvents       EventType = "events"
	EventGroups       EventType = "groups"
	EventChatMessages EventType = "chat_messages"
	EventChatSent     EventType = "chat_sent"
	EventPong         EventType = "pong"
	EventError        EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type    EventType `json:"type"`
	GroupID string    `json:"group_id,omitempty"`
	Message string    `json:"message,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// EventsPayload — полный снимок видимых записей календаря.
type EventsPayload struct {
	Events []model.Event `json:"events"`
}

type GroupsPayload struct {
	Groups []model.Group `json:"groups"`
}

// ChatMessagesPayload — полная история чата группы после очередного изменения.
type ChatMessagesPayload struct {
	GroupID  string              `json:"group_id"`
	Messages []model.ChatMessage `json:"messages"`
}

// ErrorPayload — ошибка фида или запроса. GroupID пуст для ошибок календарной подписки.
type ErrorPayload struct {
	GroupID string `json:"group_id,omitempty"`
	Error   string `json:"error"`
}
