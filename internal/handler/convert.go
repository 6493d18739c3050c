package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/asciimotion/api/internal/admission"
	"github.com/asciimotion/api/internal/archive"
	"github.com/asciimotion/api/internal/model"
	"github.com/asciimotion/api/internal/service"
	"github.com/asciimotion/api/pkg/response"
)

type ConvertHandler struct {
	service   *service.ConvertService
	validator *validator.Validate
}

func NewConvertHandler(svc *service.ConvertService, v *validator.Validate) *ConvertHandler {
	return &ConvertHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/convert/start. Multipart form: a "video" file part
// and an optional "settings" JSON part overriding the defaults.
func (h *ConvertHandler) Start(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("video")
	if err != nil {
		return response.ValidationError(c, "Video file is required", nil)
	}

	var req model.ConvertStartRequest
	if raw := c.FormValue("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return response.ValidationError(c, "Invalid settings JSON", nil)
		}
		if err := h.validator.Struct(&req); err != nil {
			return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read upload")
	}
	defer file.Close()
	video, err := io.ReadAll(file)
	if err != nil {
		return response.ServiceError(c, "Failed to read upload")
	}

	result, err := h.service.StartConvert(video, &req)
	if err != nil {
		return convertError(c, err)
	}
	return response.Accepted(c, result)
}

// Status handles GET /api/convert/status/:jobId
func (h *ConvertHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(jobID)
	if err != nil {
		return convertError(c, err)
	}
	return response.OK(c, result)
}

// Result handles GET /api/convert/result/:jobId. With ?partial=true the
// retained frames of a failed job are returned for diagnostics.
func (h *ConvertHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	partial := c.QueryBool("partial", false)
	result, err := h.service.GetResult(jobID, partial)
	if err != nil {
		return convertError(c, err)
	}
	return response.OK(c, result)
}

// Cancel handles POST /api/convert/cancel/:jobId
func (h *ConvertHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(jobID)
	if err != nil {
		return convertError(c, err)
	}
	return response.OK(c, result)
}

// Download handles GET /api/convert/download/:jobId, serving a zip of a
// Complete job's frames.
func (h *ConvertHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetCompleteJob(jobID)
	if err != nil {
		return convertError(c, err)
	}

	data, err := archive.BuildZip(job)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.zip"`, jobID))
	return c.Send(data)
}

// convertError maps service errors onto the response envelope.
func convertError(c *fiber.Ctx, err error) error {
	var admErr *service.AdmissionError
	if errors.As(err, &admErr) {
		c.Set("Retry-After", fmt.Sprintf("%d", int(admErr.RetryAfter.Seconds())))
		switch admErr.Decision.Code {
		case admission.RejectInputTooLarge:
			return response.PayloadTooLarge(c, admErr.Decision.Reason)
		default:
			return response.CapacityExceeded(c, admErr.Decision.Reason)
		}
	}

	var valErr *model.ValidationError
	if errors.As(err, &valErr) {
		return response.ValidationError(c, valErr.Error(), nil)
	}
	var capErr *model.CapacityError
	if errors.As(err, &capErr) {
		return response.CapacityExceeded(c, capErr.Error())
	}

	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrJobNotComplete):
		return response.ValidationError(c, "Job not completed yet", nil)
	case errors.Is(err, service.ErrJobAlreadyDone):
		return response.ValidationError(c, "Job already completed", nil)
	}
	return response.ServiceError(c, err.Error())
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errs := make(map[string]string)
		for _, e := range validationErrors {
			errs[e.Field()] = e.Tag()
		}
		return errs
	}
	return nil
}
