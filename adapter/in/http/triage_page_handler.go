package http

import (
	"bytes"
	"embed"
	"html/template"

	"triage_server/core/port/out"
	"triage_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type pageData struct {
	Title    string
	IsVercel bool
}

// PageHandler serves the HTML shells and the environment check.
type PageHandler struct {
	history  out.HistoryRepository
	isVercel bool
}

func NewPageHandler(history out.HistoryRepository, isVercel bool) *PageHandler {
	return &PageHandler{history: history, isVercel: isVercel}
}

func (h *PageHandler) Register(app fiber.Router) {
	app.Get("/", h.Index)
	app.Get("/dashboard", h.Dashboard)
	app.Get("/api/environment", h.Environment)
}

// Index renders the main page. It also makes sure the history schema exists.
func (h *PageHandler) Index(c *fiber.Ctx) error {
	if h.history != nil {
		if err := h.history.EnsureSchema(c.UserContext()); err != nil {
			logger.WithContext(c.UserContext()).WithError(err).Warn("history schema check failed")
		}
	}
	return h.render(c, "index.html", pageData{Title: "Email Triage", IsVercel: h.isVercel})
}

func (h *PageHandler) Dashboard(c *fiber.Ctx) error {
	return h.render(c, "dashboard.html", pageData{Title: "Classification Dashboard", IsVercel: h.isVercel})
}

// Environment reports whether the app runs on Vercel.
func (h *PageHandler) Environment(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"is_vercel": h.isVercel})
}

func (h *PageHandler) render(c *fiber.Ctx, name string, data pageData) error {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}
