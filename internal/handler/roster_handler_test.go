package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/internal/service"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

type rosterServiceMock struct {
	listArgs   []interface{}
	exportArgs []string
}

func (m *rosterServiceMock) List(ctx context.Context, sectionID, academicYear string, page, size int) (*service.RosterPage, error) {
	m.listArgs = []interface{}{sectionID, academicYear, page, size}
	if sectionID != "sec-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
	}
	return &service.RosterPage{
		Section:    models.SectionDetail{Section: models.Section{ID: "sec-1", Name: "Sciences 1"}, LevelName: "Tronc Commun"},
		Students:   []models.Student{{NationalID: "J1", LastName: "Alaoui"}},
		Pagination: models.Pagination{Page: page, PageSize: size, TotalCount: 1},
	}, nil
}

func (m *rosterServiceMock) Export(ctx context.Context, sectionID, format, academicYear string) (*service.RosterFile, error) {
	m.exportArgs = []string{sectionID, format, academicYear}
	return &service.RosterFile{Filename: "class_list_TC.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3")}, nil
}

func (m *rosterServiceMock) Levels(ctx context.Context) ([]models.Level, error) {
	return []models.Level{{ID: "l-1", Name: "Tronc Commun", Code: "TC"}}, nil
}

func (m *rosterServiceMock) Mobility(ctx context.Context, nationalID string) ([]models.MobilityRecord, error) {
	if nationalID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "national id is required")
	}
	return []models.MobilityRecord{{StudentID: nationalID, Type: models.MobilityTransferOut}}, nil
}

func newRosterRouter(svc *rosterServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewRosterHandler(svc)
	r := gin.New()
	r.GET("/sections/:id/students", h.Students)
	r.GET("/levels", h.Levels)
	r.GET("/students/:nationalId/mobility", h.Mobility)
	return r
}

func TestRosterHandlerLevelsAndMobility(t *testing.T) {
	r := newRosterRouter(&rosterServiceMock{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/levels", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Tronc Commun")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/students/J1/mobility", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "TRANSFER_OUT")
}

func TestRosterHandlerJSON(t *testing.T) {
	svc := &rosterServiceMock{}
	r := newRosterRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sections/sec-1/students?academicYear=2025/2026&page=2&pageSize=10", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []interface{}{"sec-1", "2025/2026", 2, 10}, svc.listArgs)

	var body struct {
		Data       []models.Student       `json:"data"`
		Pagination models.Pagination      `json:"pagination"`
		Meta       map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, 1, body.Pagination.TotalCount)
	assert.Contains(t, body.Meta, "section")
}

func TestRosterHandlerExport(t *testing.T) {
	svc := &rosterServiceMock{}
	r := newRosterRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sections/sec-1/students?format=pdf", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"sec-1", "pdf", ""}, svc.exportArgs)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "class_list_TC.pdf")
}

func TestRosterHandlerRejectsBadQuery(t *testing.T) {
	svc := &rosterServiceMock{}
	r := newRosterRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sections/sec-1/students?format=docx", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.exportArgs)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sections/missing/students", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type probeStub struct{ err error }

func (p probeStub) Ping(ctx context.Context) error { return p.err }

func TestMetricsHandlerReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()

	r := gin.New()
	ok := NewMetricsHandler(metrics, probeStub{})
	down := NewMetricsHandler(metrics, probeStub{err: errors.New("connection refused")})
	r.GET("/health", ok.Health)
	r.GET("/ready", ok.Ready)
	r.GET("/ready-down", down.Ready)
	r.GET("/metrics", ok.Prometheus)
	r.GET("/metrics/summary", ok.Snapshot)

	for path, want := range map[string]int{
		"/health":          http.StatusOK,
		"/ready":           http.StatusOK,
		"/ready-down":      http.StatusServiceUnavailable,
		"/metrics":         http.StatusOK,
		"/metrics/summary": http.StatusOK,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}
