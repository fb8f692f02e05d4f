package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PredictionTaskPayload is the message body published by the dispatcher and
// consumed by the worker. The price is snapshotted at submission time so that
// catalog price changes do not retroactively affect in-flight tasks. Unknown
// extra fields are ignored on decode for forward compatibility.
type PredictionTaskPayload struct {
	UserId    int64           `json:"user_id"`
	ModelId   int64           `json:"model_id"`
	InputData map[string]any  `json:"input_data"`
	Price     decimal.Decimal `json:"price"`
}

// MarshalJSON writes the price as a bare JSON number. decimal.Decimal
// marshals to a quoted string by default, but the queue message format
// carries price as a number; consumers must not have to accept both.
func (p PredictionTaskPayload) MarshalJSON() ([]byte, error) {
	type payload PredictionTaskPayload
	return json.Marshal(struct {
		payload
		Price json.RawMessage `json:"price"`
	}{payload: payload(p), Price: json.RawMessage(p.Price.String())})
}
