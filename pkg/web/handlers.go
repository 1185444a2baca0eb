// Package web provides the HTTP handlers of the workflow API.
package web

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/flowmirror/pkg/engine"
	"github.com/dukex/flowmirror/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const DefaultMaxUploadSize = 10 << 20

type Services struct {
	Listing        *services.Listing
	Sync           *services.Sync
	Importer       *services.Importer
	Dispatch       *services.Dispatch
	Activation     *services.Activation
	Overlays       *services.Overlays
	ServiceContext *services.ServiceContext
}

type APIHandlers struct {
	services      Services
	validator     *validator.Validate
	logger        *slog.Logger
	maxUploadSize int64
}

func NewAPIHandlers(
	svc Services,
	validator *validator.Validate,
	logger *slog.Logger,
	maxUploadSize int64,
) *APIHandlers {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}

	return &APIHandlers{
		services:      svc,
		validator:     validator,
		logger:        logger,
		maxUploadSize: maxUploadSize,
	}
}

func callerID(c fiber.Ctx) string {
	if caller := CallerFrom(c); caller != nil {
		return caller.UserID
	}

	return ""
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.services.Listing.ListWorkflows(c.Context(), callerID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

// BackupWorkflows runs a sync pass and answers with the per-workflow report.
// Partial failures are part of a successful answer.
func (h *APIHandlers) BackupWorkflows(c fiber.Ctx) error {
	report, err := h.services.Sync.Synchronize(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) ImportWorkflows(c fiber.Ctx) error {
	report, err := h.services.Importer.ImportAll(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	return h.setActive(c, true)
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *APIHandlers) setActive(c fiber.Ctx, active bool) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.services.Activation.SetActive(c.Context(), id, active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	req := services.ExecuteRequest{WorkflowID: c.Params("id"), CallerID: callerID(c)}

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return badRequest(c, "Invalid multipart form")
		}

		req.Input = formValue(form, "input")
		req.TriggerPath = formValue(form, "trigger_path")

		if files := form.File["file"]; len(files) > 0 {
			attachment, err := h.readAttachment(files[0])
			if err != nil {
				return problem(c, fiber.StatusRequestEntityTooLarge, "file_too_large", err.Error())
			}

			req.File = attachment
		}
	} else {
		var body ExecuteWorkflowRequest
		if err := c.Bind().JSON(&body); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(body); err != nil {
			return badRequest(c, err.Error())
		}

		req.Input = body.Input
		req.TriggerPath = body.TriggerPath
	}

	resp, err := h.services.Dispatch.Execute(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return sendEngineResponse(c, resp)
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}

	return ""
}

func (h *APIHandlers) readAttachment(header *multipart.FileHeader) (*services.FileAttachment, error) {
	if header.Size > h.maxUploadSize {
		return nil, fmt.Errorf("file exceeds %d bytes", h.maxUploadSize)
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if int64(len(data)) > h.maxUploadSize {
		return nil, fmt.Errorf("file exceeds %d bytes", h.maxUploadSize)
	}

	mediaType := header.Header.Get(fiber.HeaderContentType)
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}

	return &services.FileAttachment{Filename: header.Filename, MediaType: mediaType, Data: data}, nil
}

// RelayWebhook forwards anything posted under /webhook/ to the engine and
// answers with whatever the engine answered.
func (h *APIHandlers) RelayWebhook(c fiber.Ctx) error {
	header := http.Header{}

	for key, values := range c.GetReqHeaders() {
		for _, value := range values {
			header.Add(key, value)
		}
	}

	resp, err := h.services.Dispatch.RelayWebhook(c.Context(), engine.WebhookRequest{
		Path:   c.Params("*"),
		Query:  string(c.Request().URI().QueryString()),
		Header: header,
		Body:   bytes.Clone(c.Body()),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return sendEngineResponse(c, resp)
}

func sendEngineResponse(c fiber.Ctx, resp *engine.Response) error {
	if resp.ContentType != "" {
		c.Set(fiber.HeaderContentType, resp.ContentType)
	}

	return c.Status(resp.StatusCode).Send(resp.Body)
}

func (h *APIHandlers) GetPrompt(c fiber.Ctx) error {
	prompt, err := h.services.Overlays.GetPrompt(c.Context(), callerID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(prompt)
}

func (h *APIHandlers) SavePrompt(c fiber.Ctx) error {
	var req SavePromptRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	prompt, err := h.services.Overlays.SavePrompt(c.Context(), callerID(c), c.Params("id"), req.Content)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(prompt)
}

func (h *APIHandlers) GetSettings(c fiber.Ctx) error {
	setting, err := h.services.Overlays.GetSetting(c.Context(), callerID(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(setting)
}

func (h *APIHandlers) SaveSettings(c fiber.Ctx) error {
	var req SaveSettingsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	setting, err := h.services.Overlays.SaveSetting(c.Context(), callerID(c), c.Params("id"), *req.IsEnabled)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(setting)
}

// GetEligibleUsers answers the engine's service-context call. An empty body
// means only users that kept the workflow enabled.
func (h *APIHandlers) GetEligibleUsers(c fiber.Ctx) error {
	var req EligibleUsersRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	result, err := h.services.ServiceContext.GetEligibleUsers(c.Context(), c.Params("id"), req.onlyEnabled())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.services.Listing.HealthCheck(c.Context())

	status := "unhealthy"
	message := "flowmirror API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "flowmirror API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
