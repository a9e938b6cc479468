package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type RevenueRecord struct {
	ID       string          `json:"id"`
	BranchID string          `json:"branch_id"`
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
}

type ExpenseRecord struct {
	ID         string          `json:"id"`
	BranchID   string          `json:"branch_id"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
	Status     string          `json:"status"`
	Note       string          `json:"note,omitempty"`
	CreatedBy  string          `json:"created_by"`
	ApprovedBy string          `json:"approved_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type FixedCostLineItem struct {
	Name          string          `json:"name"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
}

type ProductRevenue struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type PriceChange struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangedBy string          `json:"changed_by"`
	ChangedAt time.Time       `json:"changed_at"`
}

// ProfitResult is computed per request and never persisted.
type ProfitResult struct {
	Revenue       decimal.Decimal `json:"revenue"`
	VariableCosts decimal.Decimal `json:"variable_costs"`
	FixedCosts    decimal.Decimal `json:"fixed_costs"`
	OtherExpenses decimal.Decimal `json:"other_expenses"`
	TotalCosts    decimal.Decimal `json:"total_costs"`
	NetProfit     decimal.Decimal `json:"net_profit"`
	ProfitMargin  decimal.Decimal `json:"profit_margin"`
	Status        string          `json:"status"`
}

// BreakEvenResult keeps its thresholds as float64 so an unreachable
// break-even is +Inf rather than an arithmetic fault.
type BreakEvenResult struct {
	MonthlyThreshold float64 `json:"-"`
	DailyThreshold   float64 `json:"-"`
	Unreachable      bool    `json:"unreachable"`
	WarningMessage   string  `json:"warning_message,omitempty"`
}

type DayStat struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	SampleCount  int             `json:"sample_count"`
}

// DayPattern maps time.Weekday indexes (0=Sunday) to their stats.
type DayPattern struct {
	Days          map[int]DayStat `json:"days"`
	GlobalAverage decimal.Decimal `json:"global_average"`
}

type ForecastResult struct {
	Date             time.Time       `json:"date"`
	Weekday          string          `json:"weekday"`
	ExpectedRevenue  decimal.Decimal `json:"expected_revenue"`
	Basis            string          `json:"basis"`
	SampleCount      int             `json:"sample_count"`
	UsedGlobalBackup bool            `json:"used_global_backup"`
}

type KpiSnapshot struct {
	BranchID          string          `json:"branch_id"`
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `json:"period_end"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalExpenses     decimal.Decimal `json:"total_expenses"`
	NetProfit         decimal.Decimal `json:"net_profit"`
	GrossProfitMargin decimal.Decimal `json:"gross_profit_margin"`
	NetProfitMargin   decimal.Decimal `json:"net_profit_margin"`
	ROI               decimal.Decimal `json:"roi"`
	CurrentRatio      decimal.Decimal `json:"current_ratio"`
	InvoiceCount      int64           `json:"invoice_count"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	CustomerCount     int64           `json:"customer_count"`
}

type TrendPoint struct {
	Month         string          `json:"month"`
	Revenue       decimal.Decimal `json:"revenue"`
	Expenses      decimal.Decimal `json:"expenses"`
	NetProfit     decimal.Decimal `json:"net_profit"`
	RevenueChange decimal.Decimal `json:"revenue_change"`
	Active        bool            `json:"active"`
}

type TrendSummary struct {
	Points           []TrendPoint    `json:"points"`
	ActiveMonthCount int             `json:"active_month_count"`
	AvgRevenue       decimal.Decimal `json:"avg_revenue"`
	AvgExpenses      decimal.Decimal `json:"avg_expenses"`
	AvgNetProfit     decimal.Decimal `json:"avg_net_profit"`
}

type AbcEntry struct {
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	Revenue       decimal.Decimal `json:"revenue"`
	RevenueShare  decimal.Decimal `json:"revenue_share"`
	CumulativePct decimal.Decimal `json:"cumulative_pct"`
	Tier          string          `json:"tier"`
}

type Alert struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Severity        string    `json:"severity"`
	Message         string    `json:"message"`
	ExpectedValue   float64   `json:"expected_value"`
	ActualValue     float64   `json:"actual_value"`
	MitigationSteps []string  `json:"mitigation_steps"`
	BranchID        string    `json:"branch_id,omitempty"`
	Read            bool      `json:"read"`
	CreatedAt       time.Time `json:"created_at"`
}

type InsightPayload struct {
	BranchID           string          `json:"branch_id"`
	PeriodStart        time.Time       `json:"period_start"`
	PeriodEnd          time.Time       `json:"period_end"`
	Profit             ProfitResult    `json:"profit"`
	BreakEven          BreakEvenResult `json:"break_even"`
	Kpi                KpiSnapshot     `json:"kpi"`
	Forecast           *ForecastResult `json:"forecast,omitempty"`
	Alerts             []Alert         `json:"alerts"`
	Narrative          string          `json:"narrative,omitempty"`
	NarrativeAvailable bool            `json:"narrative_available"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Email string
	Role  string
}

type ExpenseSubmitRequest struct {
	BranchID string `json:"branch_id"`
	Category string `json:"category"`
	Amount   string `json:"amount"`
	Date     string `json:"date"`
	Note     string `json:"note"`
}

type ExpenseApproveRequest struct {
	Approve    bool   `json:"approve"`
	ManagerPIN string `json:"manager_pin"`
}

type ExpenseResponse struct {
	Expense ExpenseRecord `json:"expense"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	ActorEmail string    `json:"actor_email"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Email     string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	ExpenseStatusPending  = "pending"
	ExpenseStatusApproved = "approved"
	ExpenseStatusRejected = "rejected"
)

const (
	ProfitStatusProfit = "profit"
	ProfitStatusLoss   = "loss"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const (
	AlertTypeLoss           = "loss"
	AlertTypeBelowBreakEven = "below_break_even"
	AlertTypeAboveBreakEven = "above_break_even"
	AlertTypePriceChange    = "price_change_review"
	AlertTypeExpenseSpike   = "expense_spike"
	AlertTypeMarginDrop     = "margin_drop"
	AlertTypeLoginPattern   = "login_pattern"
)

const (
	TierA = "A"
	TierB = "B"
	TierC = "C"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleAnalyst = "analyst"
)

const (
	ForecastBasisHistorical = "historical_average"
	ForecastBasisMultiplier = "multiplier"
)
