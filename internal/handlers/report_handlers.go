package handlers

import (
	"net/http"

	"cafe_backend/internal/models"
	"cafe_backend/internal/services"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ReportHandler serves the admin dashboard figures.
type ReportHandler struct {
	reportService services.ReportService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(rs services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: rs}
}

// parseReportRequestParams reads start_date and end_date (YYYY-MM-DD); the service validates them.
func parseReportRequestParams(c *gin.Context) (models.ReportRequestParams, bool) {
	var params models.ReportRequestParams
	if err := c.ShouldBindQuery(&params); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return params, false
	}
	return params, true
}

// GetDashboardSummary provides today's, this week's and this month's key figures.
func (h *ReportHandler) GetDashboardSummary(c *gin.Context) {
	summary, err := h.reportService.DashboardSummary(c.Request.Context())
	if err != nil {
		utils.LogError(err, "GetDashboardSummary: Error from reportService.DashboardSummary")
		respondServiceError(c, err, "Failed to build dashboard summary.")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetSalesReport lists quantity and revenue per item over a date range.
func (h *ReportHandler) GetSalesReport(c *gin.Context) {
	params, ok := parseReportRequestParams(c)
	if !ok {
		return
	}

	items, err := h.reportService.SalesReport(c.Request.Context(), params)
	if err != nil {
		utils.LogError(err, "GetSalesReport: Error from reportService.SalesReport")
		respondServiceError(c, err, "Failed to build sales report.")
		return
	}
	if items == nil {
		items = []models.SalesReportItem{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "start_date": params.StartDate, "end_date": params.EndDate})
}

// GetRevenueReport lists revenue per café day over a date range.
func (h *ReportHandler) GetRevenueReport(c *gin.Context) {
	params, ok := parseReportRequestParams(c)
	if !ok {
		return
	}

	days, err := h.reportService.DailyRevenue(c.Request.Context(), params)
	if err != nil {
		utils.LogError(err, "GetRevenueReport: Error from reportService.DailyRevenue")
		respondServiceError(c, err, "Failed to build revenue report.")
		return
	}
	if days == nil {
		days = []models.DailyRevenue{}
	}
	c.JSON(http.StatusOK, gin.H{"data": days, "start_date": params.StartDate, "end_date": params.EndDate})
}
