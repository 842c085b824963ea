package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type MachineConfiguration struct {
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

func (MachineConfiguration) TableName() string { return "machine_configurations" }

type SessionToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MachineID string    `gorm:"type:text;index;not null"`
	Token     string    `gorm:"type:text;uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (SessionToken) TableName() string { return "session_tokens" }

type ActionAudit struct {
	ID        int64             `gorm:"type:bigserial;primaryKey"`
	MachineID string            `gorm:"type:text;index;not null"`
	Kind      string            `gorm:"type:text;not null"`
	Action    string            `gorm:"type:text"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb"`
	At        time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (ActionAudit) TableName() string { return "action_audit" }

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).AutoMigrate(
		&MachineConfiguration{},
		&SessionToken{},
		&ActionAudit{},
	)
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&ActionAudit{},
		&SessionToken{},
		&MachineConfiguration{},
	)
}
