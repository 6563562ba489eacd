package model

import "time"

// Group — группа пользователей. Создатель всегда есть в Members.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Members     []string  `json:"members"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func (g Group) Clone() Group {
	g.Members = cloneStrings(g.Members)
	return g
}

// ChatMessage — сообщение группового чата. Не редактируется и не удаляется.
type ChatMessage struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
