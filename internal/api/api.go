package api

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"prediction-backend/internal/database"
	"prediction-backend/internal/messaging"
	"prediction-backend/pkg/api"
	"prediction-backend/pkg/models"
)

type BackendService struct {
	db        *gorm.DB
	publisher messaging.Publisher
}

func NewBackendService(db *gorm.DB, publisher messaging.Publisher) *BackendService {
	return &BackendService{db: db, publisher: publisher}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/users", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateUser))
		r.Get("/{user_id}", RestHandler(s.GetUser))
		r.Get("/{user_id}/transactions", RestHandler(s.GetTransactionHistory))
		r.Get("/{user_id}/predictions", RestHandler(s.GetPredictionHistory))
	})
	r.Route("/models", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListModels))
		r.Get("/{model_id}", RestHandler(s.GetModel))
	})
	r.Post("/transactions", RestHandler(s.CreateTransaction))
	r.Post("/predict", RestHandler(s.SubmitPrediction))
}

var usernamePattern = regexp.MustCompile(`^[\w-]{3,}$`)
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func (s *BackendService) CreateUser(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateUserRequest](r)
	if err != nil {
		return nil, err
	}

	if !usernamePattern.MatchString(req.Username) {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid username '%s': at least 3 characters, alphanumeric, underscores, and hyphens only", req.Username)
	}
	if !emailPattern.MatchString(req.Email) {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid email '%s'", req.Email)
	}

	ctx := r.Context()

	user := database.User{
		Username:     req.Username,
		Email:        req.Email,
		CreationTime: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, CodedErrorf(http.StatusConflict, "user with given username or email already exists")
		}
		slog.Error("error creating user", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create user")
	}

	slog.Info("created user", "user_id", user.Id, "username", user.Username)
	return api.CreateUserResponse{Id: user.Id}, nil
}

func (s *BackendService) GetUser(r *http.Request) (any, error) {
	userId, err := URLParamInt64(r, "user_id")
	if err != nil {
		return nil, err
	}

	user, err := database.GetUser(r.Context(), s.db, userId)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "user not found")
		}
		slog.Error("error getting user", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving user record")
	}

	return api.User{Id: user.Id, Username: user.Username, Email: user.Email, Balance: user.Balance}, nil
}

func (s *BackendService) ListModels(r *http.Request) (any, error) {
	dbModels, err := database.ListModels(r.Context(), s.db)
	if err != nil {
		slog.Error("error listing models", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing models")
	}

	result := make([]api.Model, 0, len(dbModels))
	for _, m := range dbModels {
		result = append(result, api.Model{Id: m.Id, Name: m.Name, Description: m.Description, Price: m.Price})
	}
	return result, nil
}

func (s *BackendService) GetModel(r *http.Request) (any, error) {
	modelId, err := URLParamInt64(r, "model_id")
	if err != nil {
		return nil, err
	}

	model, err := database.GetModel(r.Context(), s.db, modelId)
	if err != nil {
		if errors.Is(err, database.ErrModelNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "model not found")
		}
		slog.Error("error getting model", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving model record")
	}

	return api.Model{Id: model.Id, Name: model.Name, Description: model.Description, Price: model.Price}, nil
}

// CreateTransaction handles deposits and withdrawals. Both adjust the balance
// and append the ledger entry atomically under the user's row lock.
func (s *BackendService) CreateTransaction(r *http.Request) (any, error) {
	req, err := ParseRequest[api.TransactionRequest](r)
	if err != nil {
		return nil, err
	}

	if !req.Amount.IsPositive() {
		return nil, CodedErrorf(http.StatusBadRequest, "amount must be positive")
	}

	ctx := r.Context()

	var entry database.Transaction
	switch req.Kind {
	case database.TransactionCredit:
		entry, err = database.Deposit(ctx, s.db, req.UserId, req.Amount)
	case database.TransactionDebit:
		entry, err = database.Withdraw(ctx, s.db, req.UserId, req.Amount)
	default:
		return nil, CodedErrorf(http.StatusBadRequest, "invalid transaction kind '%s': must be %s or %s",
			req.Kind, database.TransactionCredit, database.TransactionDebit)
	}
	if err != nil {
		switch {
		case errors.Is(err, database.ErrUserNotFound):
			return nil, CodedErrorf(http.StatusNotFound, "user not found")
		case errors.Is(err, database.ErrInsufficientBalance):
			return nil, CodedErrorf(http.StatusPaymentRequired, "insufficient balance")
		default:
			slog.Error("error creating transaction", "user_id", req.UserId, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to create transaction")
		}
	}

	return api.Transaction{
		Id:           entry.Id,
		UserId:       entry.UserId,
		Amount:       entry.Amount,
		Kind:         entry.Kind,
		CreationTime: entry.CreationTime,
	}, nil
}

// SubmitPrediction validates a prediction request, authorizes it against the
// current balance, and enqueues a task with a price snapshot. The balance
// check here is optimistic: it rejects obviously-doomed submissions but does
// not reserve funds. The authoritative check happens in the worker under the
// row lock, so a submission may still be abandoned later if the balance
// changed in between.
func (s *BackendService) SubmitPrediction(r *http.Request) (any, error) {
	req, err := ParseRequest[api.PredictRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	user, err := database.GetUser(ctx, s.db, req.UserId)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "user not found")
		}
		slog.Error("error getting user", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving user record")
	}

	model, err := database.GetModel(ctx, s.db, req.ModelId)
	if err != nil {
		if errors.Is(err, database.ErrModelNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "model not found")
		}
		slog.Error("error getting model", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving model record")
	}

	if user.Balance.LessThan(model.Price) {
		return nil, CodedErrorf(http.StatusPaymentRequired, "insufficient balance: model costs %s, balance is %s",
			model.Price, user.Balance)
	}

	payload := models.PredictionTaskPayload{
		UserId:    user.Id,
		ModelId:   model.Id,
		InputData: req.InputData,
		Price:     model.Price,
	}

	if err := s.publisher.PublishPredictionTask(ctx, payload); err != nil {
		slog.Error("error publishing prediction task", "user_id", user.Id, "model_id", model.Id, "error", err)
		return nil, CodedErrorf(http.StatusServiceUnavailable, "failed to queue prediction task, please retry")
	}

	slog.Info("queued prediction task", "user_id", user.Id, "model_id", model.Id, "price", model.Price)
	return api.PredictResponse{Message: "Prediction task sent to queue"}, nil
}

func (s *BackendService) GetTransactionHistory(r *http.Request) (any, error) {
	userId, err := URLParamInt64(r, "user_id")
	if err != nil {
		return nil, err
	}

	query, err := ParseRequestQueryParams[api.HistoryQuery](r)
	if err != nil {
		return nil, err
	}

	entries, err := database.GetTransactionHistory(r.Context(), s.db, userId, query.Limit, query.Offset)
	if err != nil {
		slog.Error("error getting transaction history", "user_id", userId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving transaction history")
	}

	result := make([]api.Transaction, 0, len(entries))
	for _, e := range entries {
		result = append(result, api.Transaction{
			Id:           e.Id,
			UserId:       e.UserId,
			Amount:       e.Amount,
			Kind:         e.Kind,
			CreationTime: e.CreationTime,
		})
	}
	return result, nil
}

func (s *BackendService) GetPredictionHistory(r *http.Request) (any, error) {
	userId, err := URLParamInt64(r, "user_id")
	if err != nil {
		return nil, err
	}

	query, err := ParseRequestQueryParams[api.HistoryQuery](r)
	if err != nil {
		return nil, err
	}

	predictions, err := database.GetPredictionHistory(r.Context(), s.db, userId, query.Limit, query.Offset)
	if err != nil {
		slog.Error("error getting prediction history", "user_id", userId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving prediction history")
	}

	result := make([]api.Prediction, 0, len(predictions))
	for _, p := range predictions {
		result = append(result, api.Prediction{
			Id:           p.Id,
			UserId:       p.UserId,
			ModelId:      p.ModelId,
			Value:        p.Value,
			Cost:         p.Cost,
			CreationTime: p.CreationTime,
		})
	}
	return result, nil
}
