package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrModelNotFound       = errors.New("model not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

func GetUser(ctx context.Context, db *gorm.DB, userId int64) (User, error) {
	var user User
	if err := db.WithContext(ctx).First(&user, "id = ?", userId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("error loading user %d: %w", userId, err)
	}
	return user, nil
}

// GetUserForUpdate loads the user row under an exclusive row lock. It must be
// called inside a transaction; the lock is held until that transaction
// commits, which serializes concurrent debits for the same user across worker
// instances. Sqlite has no FOR UPDATE and serializes writers itself, so the
// locking clause is skipped there.
func GetUserForUpdate(ctx context.Context, txn *gorm.DB, userId int64) (User, error) {
	query := txn.WithContext(ctx)
	if name := txn.Dialector.Name(); name != "sqlite" && name != "sqlite3" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var user User
	if err := query.First(&user, "id = ?", userId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("error locking user %d: %w", userId, err)
	}
	return user, nil
}

func GetModel(ctx context.Context, db *gorm.DB, modelId int64) (Model, error) {
	var model Model
	if err := db.WithContext(ctx).First(&model, "id = ?", modelId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Model{}, ErrModelNotFound
		}
		return Model{}, fmt.Errorf("error loading model %d: %w", modelId, err)
	}
	return model, nil
}

func ListModels(ctx context.Context, db *gorm.DB) ([]Model, error) {
	var models []Model
	if err := db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}
	return models, nil
}

// Deposit credits the user's balance and appends the matching ledger entry in
// one transaction.
func Deposit(ctx context.Context, db *gorm.DB, userId int64, amount decimal.Decimal) (Transaction, error) {
	var entry Transaction
	err := db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		user, err := GetUserForUpdate(ctx, txn, userId)
		if err != nil {
			return err
		}

		newBalance := user.Balance.Add(amount)
		if err := txn.Model(&User{Id: user.Id}).Update("balance", newBalance).Error; err != nil {
			return fmt.Errorf("error crediting user %d: %w", user.Id, err)
		}

		entry = Transaction{
			Id:           uuid.New(),
			UserId:       user.Id,
			Amount:       amount,
			Kind:         TransactionCredit,
			CreationTime: time.Now().UTC(),
		}
		return txn.Create(&entry).Error
	})
	return entry, err
}

// Withdraw debits the user's balance and appends the matching ledger entry,
// failing with ErrInsufficientBalance if the balance does not cover it.
func Withdraw(ctx context.Context, db *gorm.DB, userId int64, amount decimal.Decimal) (Transaction, error) {
	var entry Transaction
	err := db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		user, err := GetUserForUpdate(ctx, txn, userId)
		if err != nil {
			return err
		}

		if user.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		newBalance := user.Balance.Sub(amount)
		if err := txn.Model(&User{Id: user.Id}).Update("balance", newBalance).Error; err != nil {
			return fmt.Errorf("error debiting user %d: %w", user.Id, err)
		}

		entry = Transaction{
			Id:           uuid.New(),
			UserId:       user.Id,
			Amount:       amount,
			Kind:         TransactionDebit,
			CreationTime: time.Now().UTC(),
		}
		return txn.Create(&entry).Error
	})
	return entry, err
}

// ChargePrediction decrements the balance and appends the debit ledger entry
// and the prediction record. It must run inside the transaction that already
// holds the user's row lock: the debit and the prediction are committed
// together or not at all.
func ChargePrediction(ctx context.Context, txn *gorm.DB, user User, modelId int64, value float64, cost decimal.Decimal, inputData datatypes.JSON) error {
	newBalance := user.Balance.Sub(cost)
	if err := txn.WithContext(ctx).Model(&User{Id: user.Id}).Update("balance", newBalance).Error; err != nil {
		return fmt.Errorf("error debiting user %d: %w", user.Id, err)
	}

	now := time.Now().UTC()

	debit := Transaction{
		Id:           uuid.New(),
		UserId:       user.Id,
		Amount:       cost,
		Kind:         TransactionDebit,
		CreationTime: now,
	}
	if err := txn.WithContext(ctx).Create(&debit).Error; err != nil {
		return fmt.Errorf("error recording debit for user %d: %w", user.Id, err)
	}

	prediction := Prediction{
		Id:           uuid.New(),
		UserId:       user.Id,
		ModelId:      modelId,
		Value:        value,
		Cost:         cost,
		InputData:    inputData,
		CreationTime: now,
	}
	if err := txn.WithContext(ctx).Create(&prediction).Error; err != nil {
		return fmt.Errorf("error recording prediction for user %d: %w", user.Id, err)
	}

	return nil
}

func GetTransactionHistory(ctx context.Context, db *gorm.DB, userId int64, limit, offset int) ([]Transaction, error) {
	var entries []Transaction
	query := db.WithContext(ctx).Where("user_id = ?", userId).Order("creation_time DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("error listing transactions for user %d: %w", userId, err)
	}
	return entries, nil
}

func GetPredictionHistory(ctx context.Context, db *gorm.DB, userId int64, limit, offset int) ([]Prediction, error) {
	var predictions []Prediction
	query := db.WithContext(ctx).Where("user_id = ?", userId).Order("creation_time DESC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&predictions).Error; err != nil {
		return nil, fmt.Errorf("error listing predictions for user %d: %w", userId, err)
	}
	return predictions, nil
}
