package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"prediction-backend/internal/database"
	"prediction-backend/internal/messaging"
	"prediction-backend/pkg/models"
)

// TaskProcessor consumes prediction tasks one at a time from its reciever.
// Each delivery is settled exactly once: Ack after the debit and prediction
// commit together, Nack (requeue) on transient failure, Reject on poison.
type TaskProcessor struct {
	db       *gorm.DB
	reciever messaging.Reciever
	model    *LinearModel
}

func NewTaskProcessor(db *gorm.DB, reciever messaging.Reciever, model *LinearModel) *TaskProcessor {
	return &TaskProcessor{db: db, reciever: reciever, model: model}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.reciever.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {

	case messaging.PredictionQueue:
		var payload models.PredictionTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling prediction task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processPredictionTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil { // reject unknown message type
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

// processPredictionTask re-validates the task against current state and, if
// it still holds, commits the debit ledger entry and the prediction record in
// one transaction under the user's row lock. A nil return means the delivery
// is settled (either committed or deliberately abandoned) and must be acked;
// an error means the transaction rolled back and the delivery is requeued.
//
// Abandoned tasks (insufficient balance, missing rows, no scorable features)
// are dropped without notifying the original caller; the submission response
// was already sent. They are logged so replays and races stay observable.
func (proc *TaskProcessor) processPredictionTask(ctx context.Context, payload models.PredictionTaskPayload) error {
	return proc.db.Transaction(func(txn *gorm.DB) error {
		user, err := database.GetUserForUpdate(ctx, txn, payload.UserId)
		if errors.Is(err, database.ErrUserNotFound) {
			slog.Warn("abandoning task: user does not exist", "user_id", payload.UserId)
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := database.GetModel(ctx, txn, payload.ModelId); err != nil {
			if errors.Is(err, database.ErrModelNotFound) {
				slog.Warn("abandoning task: model does not exist", "user_id", payload.UserId, "model_id", payload.ModelId)
				return nil
			}
			return err
		}

		// Authoritative balance check. The dispatcher's check was optimistic;
		// the balance may have changed between submission and consumption.
		if user.Balance.LessThan(payload.Price) {
			slog.Warn("abandoning task: insufficient balance at consumption time",
				"user_id", payload.UserId, "balance", user.Balance, "price", payload.Price)
			return nil
		}

		valid, invalid := PartitionFeatures(payload.InputData)
		if len(invalid) > 0 {
			slog.Warn("excluding non-numeric input features", "user_id", payload.UserId, "count", len(invalid))
		}
		if len(valid) == 0 {
			slog.Warn("abandoning task: no scorable features in input", "user_id", payload.UserId)
			return nil
		}

		value := proc.model.Score(valid)

		inputData, err := json.Marshal(payload.InputData)
		if err != nil {
			return err
		}

		if err := database.ChargePrediction(ctx, txn, user, payload.ModelId, value, payload.Price, datatypes.JSON(inputData)); err != nil {
			return err
		}

		slog.Info("prediction committed", "user_id", payload.UserId, "model_id", payload.ModelId, "cost", payload.Price)
		return nil
	})
}
