package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidRecord        = errors.New("invalid record")
	ErrForbidden            = errors.New("forbidden")
)

// BalanceSheet carries the liquidity inputs the KPI aggregator needs.
type BalanceSheet struct {
	CurrentAssets      decimal.Decimal
	CurrentLiabilities decimal.Decimal
	InvestedCapital    decimal.Decimal
}

// InvoiceStats carries order counts for average-order-value metrics.
type InvoiceStats struct {
	InvoiceCount  int64
	CustomerCount int64
}

type Repository interface {
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	GetBranch(ctx context.Context, branchID string) (*domain.Branch, error)

	ListRevenueRecords(ctx context.Context, branchID string, from, to time.Time) ([]domain.RevenueRecord, error)
	MonthlyRevenueTotals(ctx context.Context, branchID string, from, to time.Time) (map[string]decimal.Decimal, error)
	MonthlyExpenseTotals(ctx context.Context, branchID string, from, to time.Time) (map[string]decimal.Decimal, error)

	ListApprovedExpenses(ctx context.Context, branchID string, from, to time.Time) ([]domain.ExpenseRecord, error)
	CreateExpense(ctx context.Context, expense domain.ExpenseRecord) (*domain.ExpenseRecord, error)
	GetExpense(ctx context.Context, expenseID string) (*domain.ExpenseRecord, error)
	SetExpenseStatus(ctx context.Context, expenseID string, status string, approvedBy string) (*domain.ExpenseRecord, error)

	ListFixedCostItems(ctx context.Context) ([]domain.FixedCostLineItem, error)
	ListProductRevenues(ctx context.Context, branchID string, from, to time.Time) ([]domain.ProductRevenue, error)
	ListPriceChanges(ctx context.Context, from, to time.Time) ([]domain.PriceChange, error)

	GetBalanceSheet(ctx context.Context, branchID string, at time.Time) (BalanceSheet, error)
	GetInvoiceStats(ctx context.Context, branchID string, from, to time.Time) (InvoiceStats, error)

	CreateAlert(ctx context.Context, alert domain.Alert) (*domain.Alert, error)
	ListAlerts(ctx context.Context, branchID string, limit int) ([]domain.Alert, error)
	MarkAlertRead(ctx context.Context, alertID string) (*domain.Alert, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error)

	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
