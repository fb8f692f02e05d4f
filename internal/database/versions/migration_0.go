package versions

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	Id           int64           `gorm:"primaryKey;autoIncrement"`
	Username     string          `gorm:"uniqueIndex;not null"`
	Email        string          `gorm:"uniqueIndex;not null"`
	Balance      decimal.Decimal `gorm:"type:numeric;not null"`
	CreationTime time.Time
}

type Model struct {
	Id           int64  `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"uniqueIndex;not null"`
	Description  string
	Price        decimal.Decimal `gorm:"type:numeric;not null"`
	CreationTime time.Time
}

type Transaction struct {
	Id           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserId       int64           `gorm:"not null;index"`
	Amount       decimal.Decimal `gorm:"type:numeric;not null"`
	Kind         string          `gorm:"size:20;not null"`
	CreationTime time.Time
}

type Prediction struct {
	Id           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserId       int64           `gorm:"not null;index"`
	ModelId      int64           `gorm:"not null"`
	Value        float64         `gorm:"not null"`
	Cost         decimal.Decimal `gorm:"type:numeric;not null"`
	InputData    datatypes.JSON
	CreationTime time.Time
}

func Migration0(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{}, &Model{}, &Transaction{}, &Prediction{},
	)
	if err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
