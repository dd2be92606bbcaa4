package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

const (
	DefaultOpenAIModel = "gpt-3.5-turbo"
	DefaultOllamaModel = "llama2"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

type UserPreferences struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`

	PreferredAIProvider string  `gorm:"size:20;not null;default:'openai'" json:"preferred_ai_provider"`
	OpenAIModel         string  `gorm:"size:50;not null;default:'gpt-3.5-turbo'" json:"openai_model"`
	OllamaModel         string  `gorm:"size:50;not null;default:'llama2'" json:"ollama_model"`
	MaxTokens           int     `gorm:"not null;default:1000" json:"max_tokens"`
	Temperature         float64 `gorm:"not null;default:0.7" json:"temperature"`

	Theme             string `gorm:"size:20;not null;default:'light'" json:"theme"`
	ShowTimestamps    bool   `gorm:"not null;default:true" json:"show_timestamps"`
	ShowTokenUsage    bool   `gorm:"not null;default:false" json:"show_token_usage"`
	ShowMCPOperations bool   `gorm:"not null;default:false" json:"show_mcp_operations"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (p *UserPreferences) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// DefaultPreferences builds the row created on first access for a user.
func DefaultPreferences(userID uuid.UUID) UserPreferences {
	return UserPreferences{
		UserID:              userID,
		PreferredAIProvider: ProviderOpenAI,
		OpenAIModel:         DefaultOpenAIModel,
		OllamaModel:         DefaultOllamaModel,
		MaxTokens:           DefaultMaxTokens,
		Temperature:         DefaultTemperature,
		Theme:               "light",
		ShowTimestamps:      true,
	}
}

// Model returns the model name for the selected provider.
func (p *UserPreferences) Model() string {
	if p.PreferredAIProvider == ProviderOllama {
		return p.OllamaModel
	}
	return p.OpenAIModel
}

func ValidProvider(provider string) bool {
	return provider == ProviderOpenAI || provider == ProviderOllama
}
