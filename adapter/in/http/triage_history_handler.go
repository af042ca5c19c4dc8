package http

import (
	"bytes"

	"triage_server/core/port/in"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

const exportFilename = "classification_history.csv"

type HistoryHandler struct {
	reports      in.ReportService
	defaultLimit int
}

// NewHistoryHandler creates the history handler. defaultLimit applies when
// the request carries no limit.
func NewHistoryHandler(reports in.ReportService, defaultLimit int) *HistoryHandler {
	return &HistoryHandler{reports: reports, defaultLimit: defaultLimit}
}

func (h *HistoryHandler) Register(app fiber.Router) {
	app.Get("/history", h.History)
	app.Get("/export_history", h.Export)
	app.Get("/dashboard/data", h.DashboardData)
}

// History handles GET /history?limit=N.
func (h *HistoryHandler) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", h.defaultLimit)

	entries, err := h.reports.History(c.UserContext(), limit)
	if err != nil {
		return apperr.DatabaseError("list history", err)
	}
	return c.JSON(entries)
}

// Export handles GET /export_history as a CSV attachment.
func (h *HistoryHandler) Export(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.reports.ExportCSV(c.UserContext(), &buf); err != nil {
		logger.WithContext(c.UserContext()).WithError(err).Error("history export failed")
		return apperr.ExportFailed(err)
	}

	c.Attachment(exportFilename)
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(buf.Bytes())
}

// DashboardData handles GET /dashboard/data.
func (h *HistoryHandler) DashboardData(c *fiber.Ctx) error {
	data, err := h.reports.Dashboard(c.UserContext())
	if err != nil {
		return apperr.DatabaseError("dashboard data", err)
	}
	return c.JSON(data)
}
