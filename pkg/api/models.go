package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	Id       int64
	Username string
	Email    string
	Balance  decimal.Decimal
}

type Model struct {
	Id          int64
	Name        string
	Description string
	Price       decimal.Decimal
}

type CreateUserRequest struct {
	Username string
	Email    string
}

type CreateUserResponse struct {
	Id int64
}

type PredictRequest struct {
	UserId    int64          `json:"user_id"`
	ModelId   int64          `json:"model_id"`
	InputData map[string]any `json:"input_data"`
}

type PredictResponse struct {
	Message string `json:"message"`
}

type TransactionRequest struct {
	UserId int64           `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	Kind   string          `json:"kind"`
}

type Transaction struct {
	Id           uuid.UUID
	UserId       int64
	Amount       decimal.Decimal
	Kind         string
	CreationTime time.Time
}

type Prediction struct {
	Id           uuid.UUID
	UserId       int64
	ModelId      int64
	Value        float64
	Cost         decimal.Decimal
	CreationTime time.Time
}

// HistoryQuery holds the paging query params for the history endpoints.
type HistoryQuery struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}
