// Package anomaly turns expected-versus-actual comparisons into
// severity-ranked alerts with mitigation guidance.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/llu77/erp-system-sub005/internal/domain"
)

// Thresholds configures the operational rules. Severity is always a
// function of deviation against these values, never a fixed branch.
type Thresholds struct {
	PriceChangePct     float64
	ExpenseSpikeRatio  float64
	MarginDropPoints   float64
	FailedLoginCount   int
	FailedLoginWindow  time.Duration
	PriceChangeCritPct float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		PriceChangePct:     20,
		PriceChangeCritPct: 50,
		ExpenseSpikeRatio:  1.5,
		MarginDropPoints:   10,
		FailedLoginCount:   5,
		FailedLoginWindow:  15 * time.Minute,
	}
}

// GenerateFinancialAlerts evaluates the break-even rules independently,
// so one input set can raise several alerts.
func GenerateFinancialAlerts(actualRevenue decimal.Decimal, breakEven domain.BreakEvenResult, netProfit decimal.Decimal) []domain.Alert {
	alerts := make([]domain.Alert, 0, 2)
	revenue, _ := actualRevenue.Float64()
	profit, _ := netProfit.Float64()
	now := time.Now().UTC()

	if netProfit.IsNegative() {
		alerts = append(alerts, domain.Alert{
			Type:          domain.AlertTypeLoss,
			Severity:      domain.SeverityCritical,
			Message:       fmt.Sprintf("operating at a loss: net profit %s", netProfit.StringFixed(2)),
			ExpectedValue: 0,
			ActualValue:   profit,
			MitigationSteps: []string{
				"review variable cost rate against supplier contracts",
				"audit approved expenses for the period",
				"consider temporary price adjustments",
			},
			CreatedAt: now,
		})
	}

	switch {
	case revenue < breakEven.MonthlyThreshold:
		if !netProfit.IsNegative() {
			alerts = append(alerts, domain.Alert{
				Type:          domain.AlertTypeBelowBreakEven,
				Severity:      domain.SeverityWarning,
				Message:       "revenue below break-even threshold",
				ExpectedValue: breakEven.MonthlyThreshold,
				ActualValue:   revenue,
				MitigationSteps: []string{
					"increase marketing on the slowest weekdays",
					"check forecast against seasonal pattern",
				},
				CreatedAt: now,
			})
		}
	default:
		alerts = append(alerts, domain.Alert{
			Type:          domain.AlertTypeAboveBreakEven,
			Severity:      domain.SeverityInfo,
			Message:       "revenue above break-even threshold",
			ExpectedValue: breakEven.MonthlyThreshold,
			ActualValue:   revenue,
			MitigationSteps: []string{
				"maintain current pricing and staffing levels",
			},
			CreatedAt: now,
		})
	}

	sortBySeverity(alerts)
	return alerts
}

// Detector scans operational records for deviations worth review.
type Detector struct {
	thresholds Thresholds
}

func NewDetector(thresholds Thresholds) *Detector {
	return &Detector{thresholds: thresholds}
}

// ScanPriceChanges flags price moves whose magnitude exceeds the review
// threshold. Moves past the critical threshold escalate severity.
func (d *Detector) ScanPriceChanges(changes []domain.PriceChange) []domain.Alert {
	alerts := make([]domain.Alert, 0)
	for _, change := range changes {
		if change.OldPrice.IsZero() {
			continue
		}
		pct := change.NewPrice.Sub(change.OldPrice).Div(change.OldPrice).Mul(decimal.NewFromInt(100))
		magnitude := math.Abs(pct.InexactFloat64())
		if magnitude <= d.thresholds.PriceChangePct {
			continue
		}
		severity := domain.SeverityWarning
		if magnitude > d.thresholds.PriceChangeCritPct {
			severity = domain.SeverityHigh
		}
		alerts = append(alerts, domain.Alert{
			Type:          domain.AlertTypePriceChange,
			Severity:      severity,
			Message:       fmt.Sprintf("price of %s changed %.1f%%, review required", change.ProductID, magnitude),
			ExpectedValue: d.thresholds.PriceChangePct,
			ActualValue:   magnitude,
			MitigationSteps: []string{
				"confirm the change with the branch manager",
				"verify the product cost basis",
			},
			CreatedAt: change.ChangedAt,
		})
	}
	sortBySeverity(alerts)
	return alerts
}

// ScanExpenses compares the current period total against the trailing
// average and flags spikes above the configured ratio.
func (d *Detector) ScanExpenses(current, trailingAverage decimal.Decimal) []domain.Alert {
	if !trailingAverage.IsPositive() {
		return nil
	}
	ratio := current.Div(trailingAverage).InexactFloat64()
	if ratio <= d.thresholds.ExpenseSpikeRatio {
		return nil
	}
	severity := domain.SeverityWarning
	if ratio > d.thresholds.ExpenseSpikeRatio*2 {
		severity = domain.SeverityHigh
	}
	return []domain.Alert{{
		Type:          domain.AlertTypeExpenseSpike,
		Severity:      severity,
		Message:       fmt.Sprintf("expenses at %.2fx the trailing average", ratio),
		ExpectedValue: trailingAverage.InexactFloat64(),
		ActualValue:   current.InexactFloat64(),
		MitigationSteps: []string{
			"break down expenses by category for the period",
			"check for duplicate or miscategorized entries",
		},
		CreatedAt: time.Now().UTC(),
	}}
}

// ScanMargins flags a drop in net margin between two periods larger
// than the configured number of percentage points.
func (d *Detector) ScanMargins(current, previous decimal.Decimal) []domain.Alert {
	drop := previous.Sub(current).InexactFloat64()
	if drop <= d.thresholds.MarginDropPoints {
		return nil
	}
	return []domain.Alert{{
		Type:          domain.AlertTypeMarginDrop,
		Severity:      domain.SeverityHigh,
		Message:       fmt.Sprintf("net margin dropped %.1f points since the previous period", drop),
		ExpectedValue: previous.InexactFloat64(),
		ActualValue:   current.InexactFloat64(),
		MitigationSteps: []string{
			"compare variable cost rate across the two periods",
			"review pricing changes in the window",
		},
		CreatedAt: time.Now().UTC(),
	}}
}

// ScanLogins counts failed-login audit entries per actor inside the
// configured window.
func (d *Detector) ScanLogins(logs []domain.AuditLog, now time.Time) []domain.Alert {
	cutoff := now.Add(-d.thresholds.FailedLoginWindow)
	failures := make(map[string]int)
	for _, entry := range logs {
		if entry.Action != "login_failed" || entry.CreatedAt.Before(cutoff) {
			continue
		}
		failures[entry.ActorEmail]++
	}

	alerts := make([]domain.Alert, 0)
	for email, count := range failures {
		if count < d.thresholds.FailedLoginCount {
			continue
		}
		alerts = append(alerts, domain.Alert{
			Type:          domain.AlertTypeLoginPattern,
			Severity:      domain.SeverityHigh,
			Message:       fmt.Sprintf("%d failed logins for %s within %s", count, email, d.thresholds.FailedLoginWindow),
			ExpectedValue: float64(d.thresholds.FailedLoginCount),
			ActualValue:   float64(count),
			MitigationSteps: []string{
				"verify the account owner attempted the logins",
				"force a password reset if unrecognized",
			},
			CreatedAt: now,
		})
	}
	sortBySeverity(alerts)
	return alerts
}

func severityRank(severity string) int {
	switch severity {
	case domain.SeverityCritical:
		return 0
	case domain.SeverityHigh:
		return 1
	case domain.SeverityWarning:
		return 2
	default:
		return 3
	}
}

func sortBySeverity(alerts []domain.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return severityRank(alerts[i].Severity) < severityRank(alerts[j].Severity)
	})
}
