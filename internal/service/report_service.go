package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/momentumbot/internal/domain"
	"github.com/alanyoungcy/momentumbot/internal/notify"
)

// Summary scopes.
const (
	ScopeAllTime = "all_time"
	ScopeDay     = "day"
)

// ReportConfig holds the daily summary parameters.
type ReportConfig struct {
	At         string // local "HH:MM"
	Scope      string
	Location   *time.Location
	QuoteAsset string
}

// Summary is the content of one daily report.
type Summary struct {
	Date   string
	Profit decimal.Decimal
	Closed int
	Wins   int
	Losses int
}

// PositionLister exposes the position history.
type PositionLister interface {
	Positions() []domain.Position
}

// ReportService sends the daily realized-profit summary, at most once per
// calendar date.
type ReportService struct {
	positions PositionLister
	notifier  Notifier
	cfg       ReportConfig
	logger    *slog.Logger

	// minute of the day the summary becomes due; -1 disables it
	dueMinute int

	mu       sync.Mutex
	lastSent string
}

// NewReportService creates a ReportService.
func NewReportService(positions PositionLister, notifier Notifier, cfg ReportConfig, logger *slog.Logger) *ReportService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Scope == "" {
		cfg.Scope = ScopeAllTime
	}
	r := &ReportService{
		positions: positions,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "report_service")),
		dueMinute: -1,
	}
	if at, err := time.Parse("15:04", cfg.At); err == nil {
		r.dueMinute = at.Hour()*60 + at.Minute()
	} else {
		r.logger.Warn("daily summary disabled", slog.String("at", cfg.At), slog.String("error", err.Error()))
	}
	return r
}

// MaybeSend sends the summary on the first call at or after the configured
// time of day, once per calendar date, so a tick that misses the exact minute
// still reports. It reports whether a summary went out.
func (r *ReportService) MaybeSend(ctx context.Context, now time.Time) bool {
	local := now.In(r.cfg.Location)
	if r.dueMinute < 0 || local.Hour()*60+local.Minute() < r.dueMinute {
		return false
	}
	date := local.Format(time.DateOnly)

	r.mu.Lock()
	if r.lastSent == date {
		r.mu.Unlock()
		return false
	}
	r.lastSent = date
	r.mu.Unlock()

	sum := r.Build(r.positions.Positions(), now)
	r.logger.InfoContext(ctx, "sending daily summary",
		slog.String("date", sum.Date),
		slog.String("scope", r.cfg.Scope),
		slog.String("profit", sum.Profit.String()),
		slog.Int("closed", sum.Closed),
	)
	if r.notifier != nil {
		r.notifier.Notify(ctx, notify.EventSummary, "Summary "+sum.Date, r.Format(sum))
	}
	return true
}

// Build computes the summary for the date of now. The all-time scope sums
// every closed position regardless of when it closed.
func (r *ReportService) Build(positions []domain.Position, now time.Time) Summary {
	local := now.In(r.cfg.Location)
	date := local.Format(time.DateOnly)

	keep := func(p domain.Position) bool { return true }
	if r.cfg.Scope == ScopeDay {
		keep = func(p domain.Position) bool {
			return p.ExitTime != nil && p.ExitTime.In(r.cfg.Location).Format(time.DateOnly) == date
		}
	}

	sum := Summary{Date: date, Profit: decimal.Zero}
	for _, p := range positions {
		if !keep(p) {
			continue
		}
		pnl, ok := p.RealizedPnL()
		if !ok {
			continue
		}
		sum.Profit = sum.Profit.Add(pnl)
		sum.Closed++
		if pnl.IsPositive() {
			sum.Wins++
		} else {
			sum.Losses++
		}
	}
	return sum
}

// Format renders a summary as the notification body.
func (r *ReportService) Format(sum Summary) string {
	label := "Total realized profit"
	if r.cfg.Scope == ScopeDay {
		label = "Realized profit today"
	}
	return fmt.Sprintf("Closed trades: %d (%d wins, %d losses)\n%s: %s %s",
		sum.Closed, sum.Wins, sum.Losses, label, sum.Profit.StringFixed(2), r.cfg.QuoteAsset)
}
