package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// breakEvenWire carries the thresholds as json.RawMessage because
// encoding/json has no representation for +Inf.
type breakEvenWire struct {
	MonthlyThreshold json.RawMessage `json:"monthly_threshold"`
	DailyThreshold   json.RawMessage `json:"daily_threshold"`
	Unreachable      bool            `json:"unreachable"`
	WarningMessage   string          `json:"warning_message,omitempty"`
}

const infinityToken = `"Infinity"`

func encodeThreshold(v float64) json.RawMessage {
	if math.IsInf(v, 1) {
		return json.RawMessage(infinityToken)
	}
	return json.RawMessage(strconv.FormatFloat(v, 'f', -1, 64))
}

func decodeThreshold(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	if string(raw) == infinityToken {
		return math.Inf(1), nil
	}
	return strconv.ParseFloat(string(raw), 64)
}

func (b BreakEvenResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(breakEvenWire{
		MonthlyThreshold: encodeThreshold(b.MonthlyThreshold),
		DailyThreshold:   encodeThreshold(b.DailyThreshold),
		Unreachable:      b.Unreachable,
		WarningMessage:   b.WarningMessage,
	})
}

func (b *BreakEvenResult) UnmarshalJSON(data []byte) error {
	var wire breakEvenWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	monthly, err := decodeThreshold(wire.MonthlyThreshold)
	if err != nil {
		return err
	}
	daily, err := decodeThreshold(wire.DailyThreshold)
	if err != nil {
		return err
	}
	b.MonthlyThreshold = monthly
	b.DailyThreshold = daily
	b.Unreachable = wire.Unreachable
	b.WarningMessage = wire.WarningMessage
	return nil
}
