package models_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prediction-backend/pkg/models"
)

func TestPredictionTaskPayloadWireFormat(t *testing.T) {
	payload := models.PredictionTaskPayload{
		UserId:    1,
		ModelId:   2,
		InputData: map[string]any{"feature1": 1.5},
		Price:     decimal.RequireFromString("10.5"),
	}

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	// price must be a JSON number, not the quoted string decimal.Decimal
	// produces by default.
	assert.JSONEq(t, `{"user_id":1,"model_id":2,"input_data":{"feature1":1.5},"price":10.5}`, string(body))

	var decoded models.PredictionTaskPayload
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, payload.UserId, decoded.UserId)
	assert.Equal(t, payload.ModelId, decoded.ModelId)
	assert.True(t, decoded.Price.Equal(payload.Price))
}

func TestPredictionTaskPayloadWholeNumberPrice(t *testing.T) {
	payload := models.PredictionTaskPayload{UserId: 1, ModelId: 1, Price: decimal.NewFromInt(10)}

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"price":10`)
	assert.NotContains(t, string(body), `"price":"`)
}
