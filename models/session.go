package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChatSession struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title     string    `gorm:"size:200" json:"title"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Correlation id for the external tool server's own session tracking.
	MCPSessionID string `gorm:"size:100" json:"mcp_session_id"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`

	User     User      `gorm:"foreignKey:UserID" json:"-"`
	Messages []Message `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Metadata == nil {
		s.Metadata = datatypes.JSONMap{}
	}
	return nil
}

// DisplayTitle falls back to a timestamp-based label when no title has
// been derived from a first message yet.
func (s *ChatSession) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "Chat " + s.CreatedAt.Format("2006-01-02 15:04")
}
