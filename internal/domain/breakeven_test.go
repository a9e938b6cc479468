package domain

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBreakEvenResultJSONRoundTrip(t *testing.T) {
	original := BreakEvenResult{
		MonthlyThreshold: 23000,
		DailyThreshold:   767,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"monthly_threshold":23000`) {
		t.Fatalf("expected numeric threshold in output, got %s", data)
	}

	var decoded BreakEvenResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded != original {
		t.Fatalf("round trip changed value: %+v vs %+v", decoded, original)
	}
}

func TestBreakEvenResultJSONInfinity(t *testing.T) {
	original := BreakEvenResult{
		MonthlyThreshold: math.Inf(1),
		DailyThreshold:   math.Inf(1),
		Unreachable:      true,
		WarningMessage:   "variable cost rate too high to reach break-even",
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"monthly_threshold":"Infinity"`) {
		t.Fatalf("expected Infinity token, got %s", data)
	}

	var decoded BreakEvenResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !math.IsInf(decoded.MonthlyThreshold, 1) || !math.IsInf(decoded.DailyThreshold, 1) {
		t.Fatalf("expected infinite thresholds after round trip, got %v/%v", decoded.MonthlyThreshold, decoded.DailyThreshold)
	}
	if !decoded.Unreachable {
		t.Fatalf("expected unreachable flag to survive")
	}
	if decoded.WarningMessage != original.WarningMessage {
		t.Fatalf("expected warning message to survive, got %q", decoded.WarningMessage)
	}
}

func TestBreakEvenResultUnmarshalMissingFields(t *testing.T) {
	var decoded BreakEvenResult
	if err := json.Unmarshal([]byte(`{"unreachable":false}`), &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.MonthlyThreshold != 0 || decoded.DailyThreshold != 0 {
		t.Fatalf("expected zero thresholds for absent fields, got %v/%v", decoded.MonthlyThreshold, decoded.DailyThreshold)
	}
}

func TestInsightPayloadPreservesNumerics(t *testing.T) {
	payload := InsightPayload{
		BranchID: "br-laban",
		Profit: ProfitResult{
			Revenue:       decimal.RequireFromString("50000"),
			VariableCosts: decimal.RequireFromString("15000"),
			FixedCosts:    decimal.RequireFromString("16100"),
			TotalCosts:    decimal.RequireFromString("31100"),
			NetProfit:     decimal.RequireFromString("18900"),
			ProfitMargin:  decimal.RequireFromString("37.8"),
			Status:        ProfitStatusProfit,
		},
		BreakEven: BreakEvenResult{MonthlyThreshold: 23000, DailyThreshold: 767},
		Kpi: KpiSnapshot{
			BranchID:     "br-laban",
			TotalRevenue: decimal.RequireFromString("50000"),
			NetProfit:    decimal.RequireFromString("18900"),
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded InsightPayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !decoded.Profit.NetProfit.Equal(payload.Profit.NetProfit) {
		t.Fatalf("net profit changed: %s vs %s", decoded.Profit.NetProfit, payload.Profit.NetProfit)
	}
	if !decoded.Profit.ProfitMargin.Equal(payload.Profit.ProfitMargin) {
		t.Fatalf("margin changed: %s vs %s", decoded.Profit.ProfitMargin, payload.Profit.ProfitMargin)
	}
	if decoded.BreakEven.MonthlyThreshold != 23000 {
		t.Fatalf("break-even threshold changed: %v", decoded.BreakEven.MonthlyThreshold)
	}
	if decoded.NarrativeAvailable {
		t.Fatalf("expected narrative flag to default false")
	}
}
