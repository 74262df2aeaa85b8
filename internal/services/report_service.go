package services

import (
	"context"
	"fmt"
	"time"

	"cafe_backend/internal/models"
	"cafe_backend/internal/repositories"
)

const (
	ReportDateLayout = "2006-01-02"
	maxReportSpan    = 366 * 24 * time.Hour
)

// --- ReportService Interface ---
type ReportService interface {
	DashboardSummary(ctx context.Context) (*models.DashboardSummary, error)
	SalesReport(ctx context.Context, params models.ReportRequestParams) ([]models.SalesReportItem, error)
	DailyRevenue(ctx context.Context, params models.ReportRequestParams) ([]models.DailyRevenue, error)
}

type reportService struct {
	reportRepo        repositories.ReportRepository
	lowStockThreshold int
	loc               *time.Location
	now               func() time.Time
}

// NewReportService creates a new instance of ReportService. Day, week and month
// boundaries are taken in loc; weeks start on Monday.
func NewReportService(reportRepo repositories.ReportRepository, lowStockThreshold int, loc *time.Location) ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &reportService{reportRepo: reportRepo, lowStockThreshold: lowStockThreshold, loc: loc, now: time.Now}
}

// periodStarts returns the start of today, of this week and of this month in loc.
func periodStarts(now time.Time, loc *time.Location) (day, week, month time.Time) {
	local := now.In(loc)
	day = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := (int(day.Weekday()) + 6) % 7
	week = day.AddDate(0, 0, -offset)
	month = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return day, week, month
}

func (s *reportService) DashboardSummary(ctx context.Context) (*models.DashboardSummary, error) {
	now := s.now()
	day, week, month := periodStarts(now, s.loc)
	summary, err := s.reportRepo.GetDashboardSummary(ctx, day, week, month, s.lowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to build dashboard summary: %w", err)
	}
	summary.GeneratedAt = now
	return summary, nil
}

// resolveRange turns optional YYYY-MM-DD params into a half-open window. Both dates
// are inclusive calendar days. Missing dates default to the last 30 days.
func (s *reportService) resolveRange(params models.ReportRequestParams) (models.ReportRange, error) {
	today, _, _ := periodStarts(s.now(), s.loc)
	end := today.AddDate(0, 0, 1)
	start := today.AddDate(0, 0, -29)

	if params.StartDate != "" {
		t, err := time.ParseInLocation(ReportDateLayout, params.StartDate, s.loc)
		if err != nil {
			return models.ReportRange{}, fmt.Errorf("%w: start_date must be YYYY-MM-DD", ErrValidation)
		}
		start = t
	}
	if params.EndDate != "" {
		t, err := time.ParseInLocation(ReportDateLayout, params.EndDate, s.loc)
		if err != nil {
			return models.ReportRange{}, fmt.Errorf("%w: end_date must be YYYY-MM-DD", ErrValidation)
		}
		end = t.AddDate(0, 0, 1)
	}
	if !start.Before(end) {
		return models.ReportRange{}, fmt.Errorf("%w: start_date must not be after end_date", ErrValidation)
	}
	if end.Sub(start) > maxReportSpan {
		return models.ReportRange{}, fmt.Errorf("%w: report range cannot exceed one year", ErrValidation)
	}
	return models.ReportRange{Start: start, End: end}, nil
}

func (s *reportService) SalesReport(ctx context.Context, params models.ReportRequestParams) ([]models.SalesReportItem, error) {
	r, err := s.resolveRange(params)
	if err != nil {
		return nil, err
	}
	items, err := s.reportRepo.GetSalesByItem(ctx, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("failed to build sales report: %w", err)
	}
	return items, nil
}

func (s *reportService) DailyRevenue(ctx context.Context, params models.ReportRequestParams) ([]models.DailyRevenue, error) {
	r, err := s.resolveRange(params)
	if err != nil {
		return nil, err
	}
	days, err := s.reportRepo.GetDailyRevenue(ctx, r.Start, r.End, s.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to build revenue report: %w", err)
	}
	return days, nil
}
