package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-roster-sync/internal/dto"
	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/internal/service"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/response"
)

type rosterService interface {
	List(ctx context.Context, sectionID, academicYear string, page, size int) (*service.RosterPage, error)
	Export(ctx context.Context, sectionID, format, academicYear string) (*service.RosterFile, error)
	Levels(ctx context.Context) ([]models.Level, error)
	Mobility(ctx context.Context, nationalID string) ([]models.MobilityRecord, error)
}

// RosterHandler exposes class list endpoints.
type RosterHandler struct {
	rosters rosterService
}

// NewRosterHandler constructs RosterHandler.
func NewRosterHandler(rosters rosterService) *RosterHandler {
	return &RosterHandler{rosters: rosters}
}

// Students godoc
// @Summary Class list of a section
// @Description Returns JSON by default, or a CSV, PDF or XLSX download when format is set.
// @Tags Rosters
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Section ID"
// @Param format query string false "json, csv, pdf or xlsx"
// @Param academicYear query string false "Academic year filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{id}/students [get]
func (h *RosterHandler) Students(c *gin.Context) {
	var query dto.RosterQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	if err := validate.Struct(query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}

	if query.Format == "" || query.Format == "json" {
		page, err := h.rosters.List(c.Request.Context(), c.Param("id"), query.AcademicYear, query.Page, query.PageSize)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, page.Students, &page.Pagination, map[string]interface{}{"section": page.Section})
		return
	}

	file, err := h.rosters.Export(c.Request.Context(), c.Param("id"), query.Format, query.AcademicYear)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// Levels godoc
// @Summary List levels
// @Tags Rosters
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /levels [get]
func (h *RosterHandler) Levels(c *gin.Context) {
	levels, err := h.rosters.Levels(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, levels, nil)
}

// Mobility godoc
// @Summary Mobility history of a student
// @Tags Rosters
// @Produce json
// @Param nationalId path string true "National ID"
// @Success 200 {object} response.Envelope
// @Router /students/{nationalId}/mobility [get]
func (h *RosterHandler) Mobility(c *gin.Context) {
	records, err := h.rosters.Mobility(c.Request.Context(), c.Param("nationalId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
