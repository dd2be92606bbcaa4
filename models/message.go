package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const (
	MessagePending    = "pending"
	MessageProcessing = "processing"
	MessageCompleted  = "completed"
	MessageError      = "error"
)

type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	Role      string    `gorm:"size:10;not null" json:"role"`
	Content   string    `gorm:"type:text" json:"content"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
	Status    string    `gorm:"size:20;not null;default:'completed'" json:"status"`

	ModelUsed  string `gorm:"size:100" json:"model_used,omitempty"`
	TokensUsed *int   `json:"tokens_used,omitempty"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	// Distributed-trace correlation, filled when tracing is enabled upstream.
	TraceID string `gorm:"size:100" json:"trace_id,omitempty"`
	SpanID  string `gorm:"size:100" json:"span_id,omitempty"`

	Session    ChatSession    `gorm:"foreignKey:SessionID" json:"-"`
	Operations []MCPOperation `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"operations,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return nil
}

func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
