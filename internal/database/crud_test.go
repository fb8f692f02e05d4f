package database_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"prediction-backend/internal/database"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func newUser(id int64, balance string) *database.User {
	return &database.User{
		Id:           id,
		Username:     "user" + uuid.NewString()[:8],
		Email:        uuid.NewString()[:8] + "@example.com",
		Balance:      decimal.RequireFromString(balance),
		CreationTime: time.Now().UTC(),
	}
}

func ledgerSum(t *testing.T, db *gorm.DB, userId int64) decimal.Decimal {
	var entries []database.Transaction
	require.NoError(t, db.Where("user_id = ?", userId).Find(&entries).Error)

	total := decimal.Zero
	for _, e := range entries {
		switch e.Kind {
		case database.TransactionCredit:
			total = total.Add(e.Amount)
		case database.TransactionDebit:
			total = total.Sub(e.Amount)
		default:
			t.Fatalf("unexpected transaction kind %q", e.Kind)
		}
	}
	return total
}

func TestDepositAndWithdraw(t *testing.T) {
	db := createDB(t, newUser(1, "0"))
	ctx := context.Background()

	credit, err := database.Deposit(ctx, db, 1, decimal.RequireFromString("25.50"))
	require.NoError(t, err)
	assert.Equal(t, database.TransactionCredit, credit.Kind)
	assert.True(t, credit.Amount.Equal(decimal.RequireFromString("25.50")))

	debit, err := database.Withdraw(ctx, db, 1, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, database.TransactionDebit, debit.Kind)

	user, err := database.GetUser(ctx, db, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(decimal.RequireFromString("15.50")), "balance is %s", user.Balance)
	assert.True(t, ledgerSum(t, db, 1).Equal(user.Balance))
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	db := createDB(t, newUser(1, "5"))
	ctx := context.Background()

	_, err := database.Withdraw(ctx, db, 1, decimal.NewFromInt(10))
	require.ErrorIs(t, err, database.ErrInsufficientBalance)

	// Neither the balance nor the ledger may change on a failed withdrawal.
	user, err := database.GetUser(ctx, db, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(decimal.NewFromInt(5)))

	var count int64
	require.NoError(t, db.Model(&database.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWithdrawExactBalance(t *testing.T) {
	db := createDB(t, newUser(1, "10"))
	ctx := context.Background()

	_, err := database.Withdraw(ctx, db, 1, decimal.NewFromInt(10))
	require.NoError(t, err)

	user, err := database.GetUser(ctx, db, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.IsZero())
}

func TestDepositMissingUser(t *testing.T) {
	db := createDB(t)

	_, err := database.Deposit(context.Background(), db, 42, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, database.ErrUserNotFound)

	_, err = database.Withdraw(context.Background(), db, 42, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, database.ErrUserNotFound)
}

func TestGetModel(t *testing.T) {
	db := createDB(t, &database.Model{Id: 1, Name: "basic", Price: decimal.NewFromInt(1)})
	ctx := context.Background()

	model, err := database.GetModel(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, "basic", model.Name)

	_, err = database.GetModel(ctx, db, 42)
	assert.ErrorIs(t, err, database.ErrModelNotFound)

	models, err := database.ListModels(ctx, db)
	require.NoError(t, err)
	require.Len(t, models, 1)
}

func TestChargePrediction(t *testing.T) {
	db := createDB(t, newUser(1, "100"), &database.Model{Id: 1, Name: "basic", Price: decimal.NewFromInt(10)})
	ctx := context.Background()

	input, err := json.Marshal(map[string]any{"feature1": 1.0})
	require.NoError(t, err)

	err = db.Transaction(func(txn *gorm.DB) error {
		user, err := database.GetUserForUpdate(ctx, txn, 1)
		if err != nil {
			return err
		}
		return database.ChargePrediction(ctx, txn, user, 1, 0.8, decimal.NewFromInt(10), datatypes.JSON(input))
	})
	require.NoError(t, err)

	user, err := database.GetUser(ctx, db, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(decimal.NewFromInt(90)))

	var predictions []database.Prediction
	require.NoError(t, db.Find(&predictions).Error)
	require.Len(t, predictions, 1)
	assert.Equal(t, int64(1), predictions[0].ModelId)
	assert.InDelta(t, 0.8, predictions[0].Value, 1e-9)
	assert.JSONEq(t, `{"feature1": 1.0}`, string(predictions[0].InputData))

	var debits []database.Transaction
	require.NoError(t, db.Where("kind = ?", database.TransactionDebit).Find(&debits).Error)
	require.Len(t, debits, 1)
	assert.True(t, debits[0].Amount.Equal(decimal.NewFromInt(10)))
}

func TestChargePredictionRollsBackTogether(t *testing.T) {
	db := createDB(t, newUser(1, "100"))
	ctx := context.Background()

	err := db.Transaction(func(txn *gorm.DB) error {
		user, err := database.GetUserForUpdate(ctx, txn, 1)
		if err != nil {
			return err
		}
		if err := database.ChargePrediction(ctx, txn, user, 1, 0.8, decimal.NewFromInt(10), nil); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	user, err := database.GetUser(ctx, db, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(decimal.NewFromInt(100)), "debit must not survive a rolled back transaction")

	var count int64
	require.NoError(t, db.Model(&database.Prediction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTransactionHistoryOrderAndPaging(t *testing.T) {
	db := createDB(t, newUser(1, "0"), newUser(2, "0"))
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&database.Transaction{
			Id:           uuid.New(),
			UserId:       1,
			Amount:       decimal.NewFromInt(int64(i + 1)),
			Kind:         database.TransactionCredit,
			CreationTime: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	require.NoError(t, db.Create(&database.Transaction{
		Id:           uuid.New(),
		UserId:       2,
		Amount:       decimal.NewFromInt(99),
		Kind:         database.TransactionCredit,
		CreationTime: base,
	}).Error)

	entries, err := database.GetTransactionHistory(ctx, db, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 5, "history must only include the user's own entries")
	for i := 1; i < len(entries); i++ {
		assert.True(t, !entries[i].CreationTime.After(entries[i-1].CreationTime), "entries must be most recent first")
	}

	page, err := database.GetTransactionHistory(ctx, db, 1, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Amount.Equal(decimal.NewFromInt(4)))
	assert.True(t, page[1].Amount.Equal(decimal.NewFromInt(3)))
}

func TestPredictionHistoryOrderAndPaging(t *testing.T) {
	db := createDB(t, newUser(1, "0"))
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&database.Prediction{
			Id:           uuid.New(),
			UserId:       1,
			ModelId:      1,
			Value:        float64(i),
			Cost:         decimal.NewFromInt(10),
			CreationTime: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	predictions, err := database.GetPredictionHistory(ctx, db, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, predictions, 3)
	assert.InDelta(t, 2.0, predictions[0].Value, 1e-9)

	page, err := database.GetPredictionHistory(ctx, db, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.InDelta(t, 1.0, page[0].Value, 1e-9)
}

func TestDuplicateUsernameTranslatesError(t *testing.T) {
	db := createDB(t, &database.User{Id: 1, Username: "alice", Email: "alice@example.com", Balance: decimal.Zero})

	err := db.Create(&database.User{Id: 2, Username: "alice", Email: "other@example.com", Balance: decimal.Zero}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
