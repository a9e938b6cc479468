package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/domain"
	"github.com/llu77/erp-system-sub005/internal/store"
	"github.com/llu77/erp-system-sub005/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, city, active, created_at
		FROM branches
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 8)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.City, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) GetBranch(ctx context.Context, branchID string) (*domain.Branch, error) {
	var b domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, city, active, created_at
		FROM branches
		WHERE id = $1
	`, branchID).Scan(&b.ID, &b.Name, &b.City, &b.Active, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListRevenueRecords(ctx context.Context, branchID string, from, to time.Time) ([]domain.RevenueRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, date, amount::text
		FROM daily_revenues
		WHERE ($1 = '' OR branch_id = $1)
		  AND date >= $2 AND date < $3
		ORDER BY date
	`, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.RevenueRecord, 0, 64)
	for rows.Next() {
		var rec domain.RevenueRecord
		var amount string
		if err := rows.Scan(&rec.ID, &rec.BranchID, &rec.Date, &amount); err != nil {
			return nil, err
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse revenue amount: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) MonthlyRevenueTotals(ctx context.Context, branchID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(date, 'YYYY-MM') AS month, COALESCE(SUM(amount), 0)::text
		FROM daily_revenues
		WHERE ($1 = '' OR branch_id = $1)
		  AND date >= $2 AND date < $3
		GROUP BY month
	`, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var month, total string
		if err := rows.Scan(&month, &total); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("parse monthly revenue total: %w", err)
		}
		totals[month] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) MonthlyExpenseTotals(ctx context.Context, branchID string, from, to time.Time) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(date, 'YYYY-MM') AS month, COALESCE(SUM(amount), 0)::text
		FROM expenses
		WHERE status = 'approved'
		  AND ($1 = '' OR branch_id = $1)
		  AND date >= $2 AND date < $3
		GROUP BY month
	`, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var month, total string
		if err := rows.Scan(&month, &total); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("parse monthly expense total: %w", err)
		}
		totals[month] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) ListApprovedExpenses(ctx context.Context, branchID string, from, to time.Time) ([]domain.ExpenseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, category, amount::text, date, status, note, created_by, COALESCE(approved_by, ''), created_at
		FROM expenses
		WHERE status = 'approved'
		  AND ($1 = '' OR branch_id = $1)
		  AND date >= $2 AND date < $3
		ORDER BY date
	`, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExpenses(rows)
}

func scanExpenses(rows *sql.Rows) ([]domain.ExpenseRecord, error) {
	expenses := make([]domain.ExpenseRecord, 0, 32)
	for rows.Next() {
		var exp domain.ExpenseRecord
		var amount string
		if err := rows.Scan(&exp.ID, &exp.BranchID, &exp.Category, &amount, &exp.Date, &exp.Status, &exp.Note, &exp.CreatedBy, &exp.ApprovedBy, &exp.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse expense amount: %w", err)
		}
		exp.Amount = parsed
		expenses = append(expenses, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.ExpenseRecord) (*domain.ExpenseRecord, error) {
	if expense.BranchID == "" || expense.Category == "" || !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidRecord
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, branch_id, category, amount, date, status, note, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, expense.ID, expense.BranchID, expense.Category, expense.Amount.String(), expense.Date, expense.Status, expense.Note, expense.CreatedBy, expense.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := expense
	return &created, nil
}

func (s *Store) GetExpense(ctx context.Context, expenseID string) (*domain.ExpenseRecord, error) {
	var exp domain.ExpenseRecord
	var amount string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, category, amount::text, date, status, note, created_by, COALESCE(approved_by, ''), created_at
		FROM expenses
		WHERE id = $1
	`, expenseID).Scan(&exp.ID, &exp.BranchID, &exp.Category, &amount, &exp.Date, &exp.Status, &exp.Note, &exp.CreatedBy, &exp.ApprovedBy, &exp.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if exp.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse expense amount: %w", err)
	}
	return &exp, nil
}

func (s *Store) SetExpenseStatus(ctx context.Context, expenseID string, status string, approvedBy string) (*domain.ExpenseRecord, error) {
	if status != domain.ExpenseStatusApproved && status != domain.ExpenseStatusRejected {
		return nil, fmt.Errorf("%w: status %q", store.ErrInvalidRecord, status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET status = $2, approved_by = $3
		WHERE id = $1 AND status = 'pending'
	`, expenseID, status, approvedBy)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetExpense(ctx, expenseID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: expense not pending", store.ErrInvalidRecord)
	}
	return s.GetExpense(ctx, expenseID)
}

func (s *Store) ListFixedCostItems(ctx context.Context) ([]domain.FixedCostLineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, monthly_amount::text
		FROM fixed_cost_items
		ORDER BY monthly_amount DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.FixedCostLineItem, 0, 8)
	for rows.Next() {
		var item domain.FixedCostLineItem
		var amount string
		if err := rows.Scan(&item.Name, &amount); err != nil {
			return nil, err
		}
		if item.MonthlyAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse fixed cost amount: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListProductRevenues(ctx context.Context, branchID string, from, to time.Time) ([]domain.ProductRevenue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, COALESCE(SUM(amount), 0)::text
		FROM product_revenues
		WHERE ($1 = '' OR branch_id = $1)
		  AND date >= $2 AND date < $3
		GROUP BY product_id, product_name
		ORDER BY 3 DESC
	`, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.ProductRevenue, 0, 32)
	for rows.Next() {
		var p domain.ProductRevenue
		var revenue string
		if err := rows.Scan(&p.ProductID, &p.Name, &revenue); err != nil {
			return nil, err
		}
		if p.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, fmt.Errorf("parse product revenue: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListPriceChanges(ctx context.Context, from, to time.Time) ([]domain.PriceChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_price::text, new_price::text, changed_by, changed_at
		FROM price_changes
		WHERE changed_at >= $1 AND changed_at < $2
		ORDER BY changed_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]domain.PriceChange, 0, 16)
	for rows.Next() {
		var change domain.PriceChange
		var oldPrice, newPrice string
		if err := rows.Scan(&change.ID, &change.ProductID, &oldPrice, &newPrice, &change.ChangedBy, &change.ChangedAt); err != nil {
			return nil, err
		}
		if change.OldPrice, err = decimal.NewFromString(oldPrice); err != nil {
			return nil, fmt.Errorf("parse old price: %w", err)
		}
		if change.NewPrice, err = decimal.NewFromString(newPrice); err != nil {
			return nil, fmt.Errorf("parse new price: %w", err)
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

func (s *Store) GetBalanceSheet(ctx context.Context, branchID string, at time.Time) (store.BalanceSheet, error) {
	var sheet store.BalanceSheet
	var assets, liabilities, capital string
	err := s.db.QueryRowContext(ctx, `
		SELECT current_assets::text, current_liabilities::text, invested_capital::text
		FROM balance_sheets
		WHERE branch_id = $1 AND as_of <= $2
		ORDER BY as_of DESC
		LIMIT 1
	`, branchID, at).Scan(&assets, &liabilities, &capital)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.BalanceSheet{}, store.ErrNotFound
		}
		return store.BalanceSheet{}, err
	}
	if sheet.CurrentAssets, err = decimal.NewFromString(assets); err != nil {
		return store.BalanceSheet{}, fmt.Errorf("parse current assets: %w", err)
	}
	if sheet.CurrentLiabilities, err = decimal.NewFromString(liabilities); err != nil {
		return store.BalanceSheet{}, fmt.Errorf("parse current liabilities: %w", err)
	}
	if sheet.InvestedCapital, err = decimal.NewFromString(capital); err != nil {
		return store.BalanceSheet{}, fmt.Errorf("parse invested capital: %w", err)
	}
	return sheet, nil
}

func (s *Store) GetInvoiceStats(ctx context.Context, branchID string, from, to time.Time) (store.InvoiceStats, error) {
	var stats store.InvoiceStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT customer_id)
		FROM invoices
		WHERE ($1 = '' OR branch_id = $1)
		  AND created_at >= $2 AND created_at < $3
	`, branchID, from, to).Scan(&stats.InvoiceCount, &stats.CustomerCount)
	if err != nil {
		return store.InvoiceStats{}, err
	}
	return stats, nil
}

func (s *Store) CreateAlert(ctx context.Context, alert domain.Alert) (*domain.Alert, error) {
	if alert.ID == "" {
		alert.ID = xid.New("alt")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, type, severity, message, expected_value, actual_value, mitigation_steps, branch_id, read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, alert.ID, alert.Type, alert.Severity, alert.Message, alert.ExpectedValue, alert.ActualValue,
		strings.Join(alert.MitigationSteps, "\n"), alert.BranchID, alert.Read, alert.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := alert
	return &created, nil
}

func (s *Store) ListAlerts(ctx context.Context, branchID string, limit int) ([]domain.Alert, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, severity, message, expected_value, actual_value, mitigation_steps, COALESCE(branch_id, ''), read, created_at
		FROM alerts
		WHERE ($1 = '' OR branch_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]domain.Alert, 0, limit)
	for rows.Next() {
		var alert domain.Alert
		var steps string
		if err := rows.Scan(&alert.ID, &alert.Type, &alert.Severity, &alert.Message, &alert.ExpectedValue, &alert.ActualValue, &steps, &alert.BranchID, &alert.Read, &alert.CreatedAt); err != nil {
			return nil, err
		}
		if steps != "" {
			alert.MitigationSteps = strings.Split(steps, "\n")
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *Store) MarkAlertRead(ctx context.Context, alertID string) (*domain.Alert, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET read = true WHERE id = $1
	`, alertID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	var alert domain.Alert
	var steps string
	err = s.db.QueryRowContext(ctx, `
		SELECT id, type, severity, message, expected_value, actual_value, mitigation_steps, COALESCE(branch_id, ''), read, created_at
		FROM alerts
		WHERE id = $1
	`, alertID).Scan(&alert.ID, &alert.Type, &alert.Severity, &alert.Message, &alert.ExpectedValue, &alert.ActualValue, &steps, &alert.BranchID, &alert.Read, &alert.CreatedAt)
	if err != nil {
		return nil, err
	}
	if steps != "" {
		alert.MitigationSteps = strings.Split(steps, "\n")
	}
	return &alert, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_email, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorEmail, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_email, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorEmail, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT email, password, role, active, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(email)).Scan(&user.Email, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.Password == "" {
		return store.ErrInvalidRecord
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, email, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrInvalidRecord
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, password, role, active, created_at
		FROM users
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Email, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
