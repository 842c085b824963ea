package engine

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"kioskd/pkg/channel"
)

// ConfigSource resolves a machine-configuration identifier to its
// descriptor. The admin backend owns the rows; the engine only reads
// them.
type ConfigSource interface {
	Configuration(ctx context.Context, id string) (channel.MachineConfiguration, bool, error)
}

type machineConfigModel struct {
	ID                   string                      `gorm:"type:text;primaryKey"`
	DefaultLanguage      string                      `gorm:"type:text;not null"`
	InactivityTimeoutSec int                         `gorm:"type:integer;not null"`
	LoginMethods         datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Touch                bool                        `gorm:"type:boolean;not null;default:false"`
	Keyboard             bool                        `gorm:"type:boolean;not null;default:false"`
	Printer              bool                        `gorm:"type:boolean;not null;default:false"`
	Sound                bool                        `gorm:"type:boolean;not null;default:false"`
	CreatedAt            time.Time                   `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt            time.Time                   `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (machineConfigModel) TableName() string { return "machine_configurations" }

func (m machineConfigModel) toConfiguration() channel.MachineConfiguration {
	return channel.MachineConfiguration{
		ID:                   m.ID,
		DefaultLanguage:      m.DefaultLanguage,
		InactivityTimeoutSec: m.InactivityTimeoutSec,
		LoginMethods:         m.LoginMethods,
		Capabilities: channel.Capabilities{
			Touch:    m.Touch,
			Keyboard: m.Keyboard,
			Printer:  m.Printer,
			Sound:    m.Sound,
		},
	}
}

func configModelFrom(cfg channel.MachineConfiguration) machineConfigModel {
	return machineConfigModel{
		ID:                   cfg.ID,
		DefaultLanguage:      cfg.DefaultLanguage,
		InactivityTimeoutSec: cfg.InactivityTimeoutSec,
		LoginMethods:         datatypes.NewJSONSlice(cfg.LoginMethods),
		Touch:                cfg.Capabilities.Touch,
		Keyboard:             cfg.Capabilities.Keyboard,
		Printer:              cfg.Capabilities.Printer,
		Sound:                cfg.Capabilities.Sound,
	}
}

// GormConfigSource reads machine configurations through the ORM.
type GormConfigSource struct {
	ORM *gorm.DB
}

func (s GormConfigSource) Configuration(ctx context.Context, id string) (channel.MachineConfiguration, bool, error) {
	var model machineConfigModel
	err := s.ORM.WithContext(ctx).First(&model, "id = ?", id).Error
	switch {
	case err == nil:
		return model.toConfiguration(), true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return channel.MachineConfiguration{}, false, nil
	default:
		return channel.MachineConfiguration{}, false, err
	}
}

// StaticConfigSource serves configurations from a fixed map; tests and
// the local development profile use it in place of the database.
type StaticConfigSource map[string]channel.MachineConfiguration

func (s StaticConfigSource) Configuration(_ context.Context, id string) (channel.MachineConfiguration, bool, error) {
	cfg, ok := s[id]
	return cfg, ok, nil
}
