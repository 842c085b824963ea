package engine

import (
	"time"

	"github.com/google/uuid"
)

type tokenModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MachineID string    `gorm:"type:text;index;not null"`
	Token     string    `gorm:"type:text;uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (tokenModel) TableName() string { return "session_tokens" }

func (m tokenModel) toToken() Token {
	return Token{
		ID:        m.ID,
		MachineID: m.MachineID,
		Value:     m.Token,
		ExpiresAt: m.ExpiresAt,
	}
}
