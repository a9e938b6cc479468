package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/anomaly"
	"github.com/llu77/erp-system-sub005/internal/cache"
	"github.com/llu77/erp-system-sub005/internal/domain"
	"github.com/llu77/erp-system-sub005/internal/finance"
	"github.com/llu77/erp-system-sub005/internal/forecast"
	"github.com/llu77/erp-system-sub005/internal/insight"
	"github.com/llu77/erp-system-sub005/internal/kpi"
	"github.com/llu77/erp-system-sub005/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo                store.Repository
	snapshots           cache.SnapshotCache
	narrator            insight.NarrativeGenerator
	detector            *anomaly.Detector
	logger              zerolog.Logger
	variableCostRatePct decimal.Decimal
	snapshotTTL         time.Duration
}

func New(repo store.Repository, snapshots cache.SnapshotCache, narrator insight.NarrativeGenerator, detector *anomaly.Detector, logger zerolog.Logger, variableCostRatePct decimal.Decimal, snapshotTTL time.Duration) *Service {
	if snapshots == nil {
		snapshots = cache.NoopSnapshotCache{}
	}
	if detector == nil {
		detector = anomaly.NewDetector(anomaly.DefaultThresholds())
	}
	if snapshotTTL < time.Second {
		snapshotTTL = 5 * time.Minute
	}

	return &Service{
		repo:                repo,
		snapshots:           snapshots,
		narrator:            narrator,
		detector:            detector,
		logger:              logger,
		variableCostRatePct: variableCostRatePct,
		snapshotTTL:         snapshotTTL,
	}
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.repo.ListBranches(ctx)
}

func (s *Service) ListFixedCosts(ctx context.Context) ([]domain.FixedCostLineItem, error) {
	return s.repo.ListFixedCostItems(ctx)
}

// costConfiguration assembles the per-request cost inputs from the
// fixed-cost items and branch roster on record.
func (s *Service) costConfiguration(ctx context.Context) (finance.CostConfiguration, error) {
	items, err := s.repo.ListFixedCostItems(ctx)
	if err != nil {
		return finance.CostConfiguration{}, fmt.Errorf("load fixed costs: %w", err)
	}
	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return finance.CostConfiguration{}, fmt.Errorf("load branches: %w", err)
	}
	return finance.CostConfiguration{
		LineItems:           items,
		BranchCount:         len(branches),
		VariableCostRatePct: s.variableCostRatePct,
	}, nil
}

func (s *Service) sumRevenue(ctx context.Context, branchID string, from, to time.Time) (decimal.Decimal, error) {
	records, err := s.repo.ListRevenueRecords(ctx, branchID, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load revenue records: %w", err)
	}
	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.Amount)
	}
	return total, nil
}

func (s *Service) sumOtherExpenses(ctx context.Context, branchID string, from, to time.Time) (decimal.Decimal, error) {
	expenses, err := s.repo.ListApprovedExpenses(ctx, branchID, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load expenses: %w", err)
	}
	total := decimal.Zero
	for _, exp := range expenses {
		total = total.Add(exp.Amount)
	}
	return total, nil
}

// ProfitOverview computes the profit position for one branch and period.
// Fixed costs are the equal per-branch share of the configured items.
func (s *Service) ProfitOverview(ctx context.Context, branchID string, from, to time.Time) (domain.ProfitResult, error) {
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return domain.ProfitResult{}, err
	}
	cfg, err := s.costConfiguration(ctx)
	if err != nil {
		return domain.ProfitResult{}, err
	}
	fixedCosts, err := cfg.PerBranchFixedCost()
	if err != nil {
		return domain.ProfitResult{}, err
	}
	revenue, err := s.sumRevenue(ctx, branchID, from, to)
	if err != nil {
		return domain.ProfitResult{}, err
	}
	otherExpenses, err := s.sumOtherExpenses(ctx, branchID, from, to)
	if err != nil {
		return domain.ProfitResult{}, err
	}
	return finance.CalculateProfit(revenue, cfg.VariableCostRatePct, fixedCosts, otherExpenses), nil
}

func (s *Service) BreakEvenStatus(ctx context.Context, branchID string, from, to time.Time) (domain.BreakEvenResult, error) {
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return domain.BreakEvenResult{}, err
	}
	cfg, err := s.costConfiguration(ctx)
	if err != nil {
		return domain.BreakEvenResult{}, err
	}
	fixedCosts, err := cfg.PerBranchFixedCost()
	if err != nil {
		return domain.BreakEvenResult{}, err
	}
	otherExpenses, err := s.sumOtherExpenses(ctx, branchID, from, to)
	if err != nil {
		return domain.BreakEvenResult{}, err
	}
	return finance.CalculateBreakEven(fixedCosts, cfg.VariableCostRatePct, otherExpenses), nil
}

const forecastLookbackDays = 56

// ForecastDay projects revenue for the target date from the trailing
// eight weeks of history for the branch.
func (s *Service) ForecastDay(ctx context.Context, branchID string, target time.Time, opts forecast.Options) (domain.ForecastResult, error) {
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return domain.ForecastResult{}, err
	}
	from := target.AddDate(0, 0, -forecastLookbackDays)
	records, err := s.repo.ListRevenueRecords(ctx, branchID, from, target)
	if err != nil {
		return domain.ForecastResult{}, fmt.Errorf("load revenue records: %w", err)
	}
	pattern := forecast.BuildDayPattern(records)
	return forecast.Forecast(s.logger, pattern, target, opts), nil
}

func snapshotKey(branchID string, from, to time.Time) string {
	return fmt.Sprintf("kpi:%s:%s:%s", branchID, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// KpiOverview computes the KPI snapshot for the period, consulting the
// snapshot cache first. Cache failures are logged and ignored.
func (s *Service) KpiOverview(ctx context.Context, branchID string, from, to time.Time) (domain.KpiSnapshot, error) {
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return domain.KpiSnapshot{}, err
	}

	key := snapshotKey(branchID, from, to)
	if cached, found, err := s.snapshots.Get(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("snapshot cache read failed")
	} else if found {
		return *cached, nil
	}

	revenues, err := s.repo.ListRevenueRecords(ctx, branchID, from, to)
	if err != nil {
		return domain.KpiSnapshot{}, fmt.Errorf("load revenue records: %w", err)
	}
	expenses, err := s.repo.ListApprovedExpenses(ctx, branchID, from, to)
	if err != nil {
		return domain.KpiSnapshot{}, fmt.Errorf("load expenses: %w", err)
	}
	sheet, err := s.repo.GetBalanceSheet(ctx, branchID, to)
	if err != nil {
		return domain.KpiSnapshot{}, fmt.Errorf("load balance sheet: %w", err)
	}
	stats, err := s.repo.GetInvoiceStats(ctx, branchID, from, to)
	if err != nil {
		return domain.KpiSnapshot{}, fmt.Errorf("load invoice stats: %w", err)
	}

	totalRevenue := decimal.Zero
	for _, rec := range revenues {
		totalRevenue = totalRevenue.Add(rec.Amount)
	}
	costOfGoods := totalRevenue.Mul(s.variableCostRatePct).Div(decimal.NewFromInt(100))

	snapshot := kpi.Aggregate(revenues, expenses, kpi.PeriodInputs{
		BranchID:           branchID,
		PeriodStart:        from,
		PeriodEnd:          to,
		CostOfGoods:        costOfGoods,
		CurrentAssets:      sheet.CurrentAssets,
		CurrentLiabilities: sheet.CurrentLiabilities,
		InvestedCapital:    sheet.InvestedCapital,
		InvoiceCount:       stats.InvoiceCount,
		CustomerCount:      stats.CustomerCount,
	})

	if err := s.snapshots.Set(ctx, key, &snapshot, s.snapshotTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("snapshot cache write failed")
	}
	return snapshot, nil
}

// MonthlyTrend builds the trend series for the trailing months ending at
// the reference time. Months with zero revenue stay in the series but
// are excluded from the averages.
func (s *Service) MonthlyTrend(ctx context.Context, branchID string, months int, ref time.Time) (domain.TrendSummary, error) {
	if months < 1 {
		months = 6
	}
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return domain.TrendSummary{}, err
	}

	end := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	start := end.AddDate(0, -months, 0)

	revenueTotals, err := s.repo.MonthlyRevenueTotals(ctx, branchID, start, end)
	if err != nil {
		return domain.TrendSummary{}, fmt.Errorf("load monthly revenue: %w", err)
	}
	expenseTotals, err := s.repo.MonthlyExpenseTotals(ctx, branchID, start, end)
	if err != nil {
		return domain.TrendSummary{}, fmt.Errorf("load monthly expenses: %w", err)
	}

	figures := make([]kpi.MonthlyFigure, 0, months)
	for cursor := start; cursor.Before(end); cursor = cursor.AddDate(0, 1, 0) {
		key := cursor.Format("2006-01")
		figures = append(figures, kpi.MonthlyFigure{
			Month:    key,
			Revenue:  revenueTotals[key],
			Expenses: expenseTotals[key],
		})
	}
	return kpi.BuildTrend(figures), nil
}

func (s *Service) AbcAnalysis(ctx context.Context, branchID string, from, to time.Time) ([]domain.AbcEntry, error) {
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return nil, err
	}
	products, err := s.repo.ListProductRevenues(ctx, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load product revenues: %w", err)
	}
	return kpi.ClassifyABC(products), nil
}

// FinancialAlerts evaluates the break-even rules against the period and
// persists the resulting alerts.
func (s *Service) FinancialAlerts(ctx context.Context, branchID string, from, to time.Time) ([]domain.Alert, error) {
	profit, err := s.ProfitOverview(ctx, branchID, from, to)
	if err != nil {
		return nil, err
	}
	breakEven, err := s.BreakEvenStatus(ctx, branchID, from, to)
	if err != nil {
		return nil, err
	}

	alerts := anomaly.GenerateFinancialAlerts(profit.Revenue, breakEven, profit.NetProfit)
	saved := make([]domain.Alert, 0, len(alerts))
	for _, alert := range alerts {
		alert.BranchID = branchID
		created, err := s.repo.CreateAlert(ctx, alert)
		if err != nil {
			return nil, fmt.Errorf("persist alert: %w", err)
		}
		saved = append(saved, *created)
	}
	return saved, nil
}

// RunAnomalyScan sweeps operational records for the trailing window and
// persists anything the detector flags. Admin or manager role required.
func (s *Service) RunAnomalyScan(ctx context.Context, now time.Time) ([]domain.Alert, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleManager) {
		return nil, store.ErrForbidden
	}

	from := now.AddDate(0, 0, -30)
	alerts := make([]domain.Alert, 0, 8)

	changes, err := s.repo.ListPriceChanges(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("load price changes: %w", err)
	}
	alerts = append(alerts, s.detector.ScanPriceChanges(changes)...)

	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("load branches: %w", err)
	}
	for _, branch := range branches {
		current, err := s.sumOtherExpenses(ctx, branch.ID, now.AddDate(0, -1, 0), now)
		if err != nil {
			return nil, err
		}
		trailing, err := s.sumOtherExpenses(ctx, branch.ID, now.AddDate(0, -4, 0), now.AddDate(0, -1, 0))
		if err != nil {
			return nil, err
		}
		trailingAvg := trailing.Div(decimal.NewFromInt(3))
		for _, alert := range s.detector.ScanExpenses(current, trailingAvg) {
			alert.BranchID = branch.ID
			alerts = append(alerts, alert)
		}
	}

	logs, err := s.repo.ListAuditLogs(ctx, now.Add(-24*time.Hour), now, 500)
	if err != nil {
		return nil, fmt.Errorf("load audit logs: %w", err)
	}
	alerts = append(alerts, s.detector.ScanLogins(logs, now)...)

	saved := make([]domain.Alert, 0, len(alerts))
	for _, alert := range alerts {
		created, err := s.repo.CreateAlert(ctx, alert)
		if err != nil {
			return nil, fmt.Errorf("persist alert: %w", err)
		}
		saved = append(saved, *created)
	}
	s.logAudit(ctx, "anomaly_scan", "alert", "", fmt.Sprintf("alerts=%d", len(saved)))
	return saved, nil
}

func (s *Service) ListAlerts(ctx context.Context, branchID string, limit int) ([]domain.Alert, error) {
	return s.repo.ListAlerts(ctx, branchID, limit)
}

func (s *Service) MarkAlertRead(ctx context.Context, alertID string) (domain.Alert, error) {
	updated, err := s.repo.MarkAlertRead(ctx, alertID)
	if err != nil {
		return domain.Alert{}, err
	}
	s.logAudit(ctx, "alert_read", "alert", alertID, "")
	return *updated, nil
}

// BusinessInsight assembles the full analytics payload and asks the
// narrative generator for commentary. A failed narrative call degrades
// to a payload without prose; the numbers always ship.
func (s *Service) BusinessInsight(ctx context.Context, branchID string, from, to time.Time) (domain.InsightPayload, error) {
	profit, err := s.ProfitOverview(ctx, branchID, from, to)
	if err != nil {
		return domain.InsightPayload{}, err
	}
	breakEven, err := s.BreakEvenStatus(ctx, branchID, from, to)
	if err != nil {
		return domain.InsightPayload{}, err
	}
	snapshot, err := s.KpiOverview(ctx, branchID, from, to)
	if err != nil {
		return domain.InsightPayload{}, err
	}
	forecastResult, err := s.ForecastDay(ctx, branchID, to, forecast.Options{})
	if err != nil {
		return domain.InsightPayload{}, err
	}
	alerts := anomaly.GenerateFinancialAlerts(profit.Revenue, breakEven, profit.NetProfit)
	for i := range alerts {
		alerts[i].BranchID = branchID
	}

	payload := domain.InsightPayload{
		BranchID:    branchID,
		PeriodStart: from,
		PeriodEnd:   to,
		Profit:      profit,
		BreakEven:   breakEven,
		Kpi:         snapshot,
		Forecast:    &forecastResult,
		Alerts:      alerts,
	}

	if s.narrator == nil {
		return payload, nil
	}
	narrative, err := s.narrator.Summarize(ctx, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("branch_id", branchID).Msg("narrative generation failed, returning numeric payload")
		return payload, nil
	}
	payload.Narrative = narrative
	payload.NarrativeAvailable = true
	return payload, nil
}

func (s *Service) SubmitExpense(ctx context.Context, req domain.ExpenseSubmitRequest) (domain.ExpenseRecord, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.ExpenseRecord{}, store.ErrForbidden
	}

	req.Category = strings.TrimSpace(req.Category)
	if req.BranchID == "" || req.Category == "" {
		return domain.ExpenseRecord{}, store.ErrInvalidRecord
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return domain.ExpenseRecord{}, fmt.Errorf("%w: amount", store.ErrInvalidRecord)
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return domain.ExpenseRecord{}, fmt.Errorf("%w: date", store.ErrInvalidRecord)
	}

	created, err := s.repo.CreateExpense(ctx, domain.ExpenseRecord{
		BranchID:  req.BranchID,
		Category:  req.Category,
		Amount:    amount,
		Date:      date,
		Status:    domain.ExpenseStatusPending,
		Note:      strings.TrimSpace(req.Note),
		CreatedBy: actor.Email,
	})
	if err != nil {
		return domain.ExpenseRecord{}, err
	}

	s.logAudit(ctx, "expense_submit", "expense", created.ID, fmt.Sprintf("branch=%s,amount=%s", created.BranchID, created.Amount.String()))
	return *created, nil
}

// ApproveExpense settles a pending expense. The caller validates the
// manager PIN before reaching this point; the role check lives here.
func (s *Service) ApproveExpense(ctx context.Context, expenseID string, approve bool) (domain.ExpenseRecord, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleManager) {
		return domain.ExpenseRecord{}, store.ErrForbidden
	}

	status := domain.ExpenseStatusApproved
	if !approve {
		status = domain.ExpenseStatusRejected
	}
	updated, err := s.repo.SetExpenseStatus(ctx, expenseID, status, actor.Email)
	if err != nil {
		return domain.ExpenseRecord{}, err
	}

	// Approved expenses change every cached snapshot for the branch.
	if err := s.snapshots.Invalidate(ctx, fmt.Sprintf("kpi:%s:", updated.BranchID)); err != nil {
		s.logger.Warn().Err(err).Str("branch_id", updated.BranchID).Msg("snapshot cache invalidation failed")
	}

	s.logAudit(ctx, "expense_"+status, "expense", updated.ID, fmt.Sprintf("branch=%s,amount=%s", updated.BranchID, updated.Amount.String()))
	return *updated, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, store.ErrForbidden
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("%w: date", store.ErrInvalidRecord)
	}
	return s.repo.ListAuditLogs(ctx, day, day.Add(24*time.Hour), limit)
}

func (s *Service) logAudit(ctx context.Context, action, entityType, entityID, detail string) {
	actor, _ := ActorFromContext(ctx)
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorEmail: actor.Email,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("failed to write audit log")
	}
}
