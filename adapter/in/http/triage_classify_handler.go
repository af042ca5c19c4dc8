package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"triage_server/core/port/in"
	"triage_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// Form field names accepted by POST /classify.
const (
	fieldEmailText = "email_text"
	fieldFiles     = "files[]"
	fieldFilesAlt  = "files"
)

type ClassifyHandler struct {
	service in.ClassifyService
}

func NewClassifyHandler(service in.ClassifyService) *ClassifyHandler {
	return &ClassifyHandler{service: service}
}

// Register mounts the classify route behind the given middleware.
func (h *ClassifyHandler) Register(app fiber.Router, middleware ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, middleware...), h.Classify)
	app.Post("/classify", handlers...)
}

// Classify handles POST /classify. A single successful item is returned as an
// object; anything else as the ordered list of results.
func (h *ClassifyHandler) Classify(c *fiber.Ctx) error {
	input := in.BatchInput{PastedText: c.FormValue(fieldEmailText)}

	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperr.BadRequest("could not parse multipart form").WithError(err)
		}
		headers := form.File[fieldFiles]
		if len(headers) == 0 {
			headers = form.File[fieldFilesAlt]
		}
		for _, fh := range headers {
			data, err := readUpload(fh)
			if err != nil {
				return apperr.BadRequest(fmt.Sprintf("could not read upload %s", fh.Filename)).WithError(err)
			}
			input.Files = append(input.Files, in.UploadedFile{Filename: fh.Filename, Data: data})
		}
	}

	results, err := h.service.ClassifyBatch(c.UserContext(), input)
	if err != nil {
		return err
	}

	if len(results) == 1 && !results[0].Failed() {
		return c.JSON(results[0])
	}
	return c.JSON(results)
}

func isMultipart(c *fiber.Ctx) bool {
	ct := strings.ToLower(c.Get(fiber.HeaderContentType))
	return strings.HasPrefix(ct, fiber.MIMEMultipartForm)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
