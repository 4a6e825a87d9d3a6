package handler

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-roster-sync/internal/dto"
	"github.com/noah-isme/sma-roster-sync/internal/importer"
	"github.com/noah-isme/sma-roster-sync/internal/middleware"
	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/internal/service"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/middleware/requestid"
	"github.com/noah-isme/sma-roster-sync/pkg/response"
)

type importService interface {
	Variants() []importer.Variant
	Preview(ctx context.Context, req service.ImportRequest) (*models.ImportResult, error)
	Submit(ctx context.Context, req service.ImportRequest) (*models.ImportJob, error)
	Get(ctx context.Context, id string) (*models.ImportJob, error)
}

type templateService interface {
	Render(variant string, opts service.TemplateOptions) (string, []byte, error)
}

// ImportHandler exposes spreadsheet import endpoints.
type ImportHandler struct {
	imports   importService
	templates templateService
	apiPrefix string
	maxBytes  int64
}

// NewImportHandler constructs ImportHandler. maxBytes caps the bytes read per request.
func NewImportHandler(imports importService, templates templateService, apiPrefix string, maxBytes int64) *ImportHandler {
	return &ImportHandler{imports: imports, templates: templates, apiPrefix: apiPrefix, maxBytes: maxBytes}
}

// Variants godoc
// @Summary List supported import layouts
// @Tags Imports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /imports/variants [get]
func (h *ImportHandler) Variants(c *gin.Context) {
	variants := h.imports.Variants()
	out := make([]dto.VariantInfo, 0, len(variants))
	for _, v := range variants {
		info := dto.VariantInfo{
			Name:           v.Name,
			Title:          v.Title,
			Kind:           string(v.Kind),
			MobilityType:   string(v.MobilityType),
			StartRow:       v.StartRow,
			SectionFromRow: v.SectionFromRow(),
		}
		for _, col := range v.Columns {
			info.Columns = append(info.Columns, dto.VariantColumn{Field: string(col.Field), Letter: col.Letter, Header: col.Header})
		}
		out = append(out, info)
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Upload godoc
// @Summary Import spreadsheets
// @Description Queues a reconciliation run, or previews discovery when dryRun is true.
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param variant path string true "Layout name"
// @Param files[] formData file true "Workbooks (.xlsx or .xls)"
// @Param academicYear formData string false "Fallback academic year, e.g. 2025/2026"
// @Param dryRun formData bool false "Preview without writing"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /imports/{variant} [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	}
	var form dto.ImportForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload form"))
		return
	}
	if len(form.Files) == 0 {
		if mf, err := c.MultipartForm(); err == nil {
			form.Files = mf.File["files"]
		}
	}
	if err := validate.Struct(form); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "at least one file is required"))
		return
	}

	sources, err := readUploads(form.Files)
	if err != nil {
		response.Error(c, err)
		return
	}
	req := service.ImportRequest{
		Variant:      c.Param("variant"),
		Files:        sources,
		AcademicYear: form.AcademicYear,
		RequestID:    requestid.Value(c),
	}
	if claims := middleware.Claims(c); claims != nil {
		req.RequestedBy = claims.UserID
	}

	if form.DryRun {
		result, err := h.imports.Preview(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, result, nil)
		return
	}

	job, err := h.imports.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.ImportJobResponse{
		ID:        job.ID,
		Variant:   job.Variant,
		Files:     job.Files,
		Progress:  job.Progress,
		StatusURL: fmt.Sprintf("%s/imports/%s", h.apiPrefix, job.ID),
	})
}

// Status godoc
// @Summary Import job progress
// @Tags Imports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /imports/{id} [get]
func (h *ImportHandler) Status(c *gin.Context) {
	job, err := h.imports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Template godoc
// @Summary Download a blank import workbook
// @Tags Imports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param variant path string true "Layout name"
// @Param institution query string false "Institution name"
// @Param levelCode query string false "Level code"
// @Param section query string false "Section name"
// @Param academicYear query string false "Academic year"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /imports/templates/{variant} [get]
func (h *ImportHandler) Template(c *gin.Context) {
	var query dto.TemplateQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	if err := validate.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	name, data, err := h.templates.Render(c.Param("variant"), service.TemplateOptions{
		Institution:  query.Institution,
		LevelCode:    query.LevelCode,
		Section:      query.Section,
		AcademicYear: query.AcademicYear,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, name, service.XLSXContentType, data)
}

func readUploads(files []*multipart.FileHeader) ([]importer.Source, error) {
	sources := make([]importer.Source, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cannot read "+fh.Filename)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrTooLarge.Code, appErrors.ErrTooLarge.Status, "upload could not be read")
		}
		sources = append(sources, importer.Source{Name: fh.Filename, Data: data})
	}
	return sources, nil
}
