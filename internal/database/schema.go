package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	TransactionCredit string = "CREDIT"
	TransactionDebit  string = "DEBIT"
)

type User struct {
	Id           int64           `gorm:"primaryKey;autoIncrement"`
	Username     string          `gorm:"uniqueIndex;not null"`
	Email        string          `gorm:"uniqueIndex;not null"`
	Balance      decimal.Decimal `gorm:"type:numeric;not null"`
	CreationTime time.Time

	Transactions []Transaction `gorm:"foreignKey:UserId"`
	Predictions  []Prediction  `gorm:"foreignKey:UserId"`
}

type Model struct {
	Id           int64  `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"uniqueIndex;not null"`
	Description  string
	Price        decimal.Decimal `gorm:"type:numeric;not null"`
	CreationTime time.Time
}

// Transaction is an append-only ledger entry. The sum of credits minus the
// sum of debits for a user must always equal that user's current balance.
type Transaction struct {
	Id           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserId       int64           `gorm:"not null;index"`
	Amount       decimal.Decimal `gorm:"type:numeric;not null"`
	Kind         string          `gorm:"size:20;not null"`
	CreationTime time.Time
}

// Prediction is created in the same commit as its debit ledger entry,
// never separately.
type Prediction struct {
	Id           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserId       int64           `gorm:"not null;index"`
	ModelId      int64           `gorm:"not null"`
	Value        float64         `gorm:"not null"`
	Cost         decimal.Decimal `gorm:"type:numeric;not null"`
	InputData    datatypes.JSON
	CreationTime time.Time
}
