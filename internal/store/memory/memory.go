package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/llu77/erp-system-sub005/internal/domain"
	"github.com/llu77/erp-system-sub005/internal/store"
	"github.com/llu77/erp-system-sub005/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	branches        map[string]domain.Branch
	revenues        []domain.RevenueRecord
	expensesByID    map[string]domain.ExpenseRecord
	fixedCosts      []domain.FixedCostLineItem
	productRevenues map[string][]domain.ProductRevenue
	priceChanges    []domain.PriceChange
	balanceSheets   map[string]store.BalanceSheet
	invoiceStats    map[string]store.InvoiceStats
	alertsByID      map[string]domain.Alert
	auditLogs       []domain.AuditLog
	usersByEmail    map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_ANALYST_PASSWORD.
// If unset, hardcoded dev defaults are used with a warning. These
// credentials are never used in production (the backend uses PostgreSQL
// when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	analystPwd := envOr("SEED_ANALYST_PASSWORD", "analyst123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_ANALYST_PASSWORD") == "" {
		log.Warn().Msg("memory store using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_ANALYST_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		email    string
		password string
		role     string
	}{
		{"admin@example.com", adminPwd, domain.RoleAdmin},
		{"analyst@example.com", analystPwd, domain.RoleAnalyst},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("email", u.email).Msg("failed to hash seed password")
		}
		users[u.email] = domain.UserAccount{
			Email:     u.email,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	branches := map[string]domain.Branch{
		"br-laban":  {ID: "br-laban", Name: "Laban", City: "Riyadh", Active: true, CreatedAt: now.AddDate(-1, 0, 0)},
		"br-tuwaiq": {ID: "br-tuwaiq", Name: "Tuwaiq", City: "Riyadh", Active: true, CreatedAt: now.AddDate(-1, 0, 0)},
	}

	fixedCosts := []domain.FixedCostLineItem{
		{Name: "salaries", MonthlyAmount: decimal.NewFromInt(15000)},
		{Name: "shop rent", MonthlyAmount: decimal.NewFromInt(10000)},
		{Name: "housing rent", MonthlyAmount: decimal.NewFromInt(3500)},
		{Name: "electricity", MonthlyAmount: decimal.NewFromInt(2500)},
		{Name: "internet", MonthlyAmount: decimal.NewFromInt(1200)},
	}

	s := &Store{
		branches:        branches,
		revenues:        make([]domain.RevenueRecord, 0, 256),
		expensesByID:    make(map[string]domain.ExpenseRecord),
		fixedCosts:      fixedCosts,
		productRevenues: make(map[string][]domain.ProductRevenue),
		priceChanges:    make([]domain.PriceChange, 0, 16),
		balanceSheets:   make(map[string]store.BalanceSheet),
		invoiceStats:    make(map[string]store.InvoiceStats),
		alertsByID:      make(map[string]domain.Alert),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByEmail:    seedUsers(),
	}
	s.seedActivity(now)
	return s
}

// seedActivity fills sixty days of daily revenue per branch with a
// weekly rhythm (Friday busiest, Monday slowest) plus service-level
// revenue for contribution analysis.
func (s *Store) seedActivity(now time.Time) {
	weekdayBase := map[time.Weekday]int64{
		time.Sunday:    1100,
		time.Monday:    700,
		time.Tuesday:   800,
		time.Wednesday: 850,
		time.Thursday:  1300,
		time.Friday:    1600,
		time.Saturday:  1400,
	}
	branchScale := map[string]int64{"br-laban": 10, "br-tuwaiq": 7}

	day := now.AddDate(0, 0, -60).Truncate(24 * time.Hour)
	for i := 0; i < 60; i++ {
		for branchID, scale := range branchScale {
			amount := weekdayBase[day.Weekday()] * scale / 10
			s.revenues = append(s.revenues, domain.RevenueRecord{
				ID:       xid.New("rev"),
				BranchID: branchID,
				Date:     day,
				Amount:   decimal.NewFromInt(amount),
			})
		}
		day = day.AddDate(0, 0, 1)
	}

	services := []struct {
		id      string
		name    string
		revenue int64
	}{
		{"svc-haircut", "Haircut", 14200},
		{"svc-beard", "Beard Trim", 8600},
		{"svc-skincare", "Skincare", 4100},
		{"svc-coloring", "Hair Coloring", 2300},
		{"svc-products", "Retail Products", 1100},
	}
	for branchID := range s.branches {
		list := make([]domain.ProductRevenue, 0, len(services))
		for _, svc := range services {
			list = append(list, domain.ProductRevenue{
				ProductID: svc.id,
				Name:      svc.name,
				Revenue:   decimal.NewFromInt(svc.revenue),
			})
		}
		s.productRevenues[branchID] = list

		s.balanceSheets[branchID] = store.BalanceSheet{
			CurrentAssets:      decimal.NewFromInt(42000),
			CurrentLiabilities: decimal.NewFromInt(18000),
			InvestedCapital:    decimal.NewFromInt(120000),
		}
		s.invoiceStats[branchID] = store.InvoiceStats{InvoiceCount: 410, CustomerCount: 260}
	}

	for branchID := range s.branches {
		exp := domain.ExpenseRecord{
			ID:        xid.New("exp"),
			BranchID:  branchID,
			Category:  "supplies",
			Amount:    decimal.NewFromInt(1850),
			Date:      now.AddDate(0, 0, -12),
			Status:    domain.ExpenseStatusApproved,
			CreatedBy: "admin@example.com",
			CreatedAt: now.AddDate(0, 0, -12),
		}
		s.expensesByID[exp.ID] = exp
	}
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		if !b.Active {
			continue
		}
		branches = append(branches, b)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return cmpString(a.Name, b.Name)
	})
	return branches, nil
}

func (s *Store) GetBranch(_ context.Context, branchID string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, exists := s.branches[branchID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBranch := branch
	return &copyBranch, nil
}

func (s *Store) ListRevenueRecords(_ context.Context, branchID string, from, to time.Time) ([]domain.RevenueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.RevenueRecord, 0, 64)
	for _, rec := range s.revenues {
		if branchID != "" && rec.BranchID != branchID {
			continue
		}
		if rec.Date.Before(from) || !rec.Date.Before(to) {
			continue
		}
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b domain.RevenueRecord) int {
		return a.Date.Compare(b.Date)
	})
	return records, nil
}

func (s *Store) MonthlyRevenueTotals(ctx context.Context, branchID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	records, err := s.ListRevenueRecords(ctx, branchID, from, to)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]decimal.Decimal)
	for _, rec := range records {
		key := rec.Date.Format("2006-01")
		totals[key] = totals[key].Add(rec.Amount)
	}
	return totals, nil
}

func (s *Store) MonthlyExpenseTotals(_ context.Context, branchID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]decimal.Decimal)
	for _, exp := range s.expensesByID {
		if exp.Status != domain.ExpenseStatusApproved {
			continue
		}
		if branchID != "" && exp.BranchID != branchID {
			continue
		}
		if exp.Date.Before(from) || !exp.Date.Before(to) {
			continue
		}
		key := exp.Date.Format("2006-01")
		totals[key] = totals[key].Add(exp.Amount)
	}
	return totals, nil
}

func (s *Store) ListApprovedExpenses(_ context.Context, branchID string, from, to time.Time) ([]domain.ExpenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.ExpenseRecord, 0, 16)
	for _, exp := range s.expensesByID {
		if exp.Status != domain.ExpenseStatusApproved {
			continue
		}
		if branchID != "" && exp.BranchID != branchID {
			continue
		}
		if exp.Date.Before(from) || !exp.Date.Before(to) {
			continue
		}
		expenses = append(expenses, exp)
	}
	slices.SortFunc(expenses, func(a, b domain.ExpenseRecord) int {
		return a.Date.Compare(b.Date)
	})
	return expenses, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.ExpenseRecord) (*domain.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.BranchID == "" || expense.Category == "" || !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidRecord
	}
	if _, exists := s.branches[expense.BranchID]; !exists {
		return nil, store.ErrNotFound
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.Status == "" {
		expense.Status = domain.ExpenseStatusPending
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) GetExpense(_ context.Context, expenseID string) (*domain.ExpenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, exists := s.expensesByID[expenseID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyExpense := expense
	return &copyExpense, nil
}

func (s *Store) SetExpenseStatus(_ context.Context, expenseID string, status string, approvedBy string) (*domain.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense, exists := s.expensesByID[expenseID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if status != domain.ExpenseStatusApproved && status != domain.ExpenseStatusRejected {
		return nil, fmt.Errorf("%w: status %q", store.ErrInvalidRecord, status)
	}
	if expense.Status != domain.ExpenseStatusPending {
		return nil, fmt.Errorf("%w: expense already %s", store.ErrInvalidRecord, expense.Status)
	}
	expense.Status = status
	expense.ApprovedBy = approvedBy
	s.expensesByID[expenseID] = expense
	updated := expense
	return &updated, nil
}

func (s *Store) ListFixedCostItems(_ context.Context) ([]domain.FixedCostLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.FixedCostLineItem, len(s.fixedCosts))
	copy(items, s.fixedCosts)
	return items, nil
}

func (s *Store) ListProductRevenues(_ context.Context, branchID string, _, _ time.Time) ([]domain.ProductRevenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, exists := s.productRevenues[branchID]
	if !exists {
		return []domain.ProductRevenue{}, nil
	}
	out := make([]domain.ProductRevenue, len(list))
	copy(out, list)
	return out, nil
}

func (s *Store) ListPriceChanges(_ context.Context, from, to time.Time) ([]domain.PriceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := make([]domain.PriceChange, 0, len(s.priceChanges))
	for _, change := range s.priceChanges {
		if change.ChangedAt.Before(from) || !change.ChangedAt.Before(to) {
			continue
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// AddPriceChange records a price move for the anomaly scanner. Used by
// seeding and tests; production price changes arrive via the POS tables.
func (s *Store) AddPriceChange(change domain.PriceChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if change.ID == "" {
		change.ID = xid.New("prc")
	}
	s.priceChanges = append(s.priceChanges, change)
}

func (s *Store) GetBalanceSheet(_ context.Context, branchID string, _ time.Time) (store.BalanceSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sheet, exists := s.balanceSheets[branchID]
	if !exists {
		return store.BalanceSheet{}, store.ErrNotFound
	}
	return sheet, nil
}

func (s *Store) GetInvoiceStats(_ context.Context, branchID string, _, _ time.Time) (store.InvoiceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, exists := s.invoiceStats[branchID]
	if !exists {
		return store.InvoiceStats{}, store.ErrNotFound
	}
	return stats, nil
}

func (s *Store) CreateAlert(_ context.Context, alert domain.Alert) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.ID == "" {
		alert.ID = xid.New("alt")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	s.alertsByID[alert.ID] = alert
	created := alert
	return &created, nil
}

func (s *Store) ListAlerts(_ context.Context, branchID string, limit int) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]domain.Alert, 0, len(s.alertsByID))
	for _, alert := range s.alertsByID {
		if branchID != "" && alert.BranchID != branchID {
			continue
		}
		alerts = append(alerts, alert)
	}
	slices.SortFunc(alerts, func(a, b domain.Alert) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (s *Store) MarkAlertRead(_ context.Context, alertID string) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, exists := s.alertsByID[alertID]
	if !exists {
		return nil, store.ErrNotFound
	}
	alert.Read = true
	s.alertsByID[alertID] = alert
	updated := alert
	return &updated, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, 32)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByEmail[strings.ToLower(email)]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.Password == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByEmail[email]; exists {
		return store.ErrInvalidRecord
	}
	user.Email = email
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByEmail[email] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByEmail))
	for _, user := range s.usersByEmail {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Email, b.Email)
	})
	return users, nil
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
