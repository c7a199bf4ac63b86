package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alumni-portal-api/internal/models"
	"github.com/noah-isme/alumni-portal-api/internal/service"
	appErrors "github.com/noah-isme/alumni-portal-api/pkg/errors"
	"github.com/noah-isme/alumni-portal-api/pkg/response"
)

type alumniService interface {
	Search(ctx context.Context, q models.AlumniQuery) (*models.AlumniPage, error)
	Get(ctx context.Context, id string) (*models.AlumniProfile, error)
	Import(ctx context.Context, records []models.RawProfileRecord, actorID string, meta models.RequestMeta) (*models.ImportSummary, error)
	Reindex(ctx context.Context) (int, error)
	Export(ctx context.Context, spec models.FilterSpec, format string) (*service.ExportFile, error)
}

// AlumniHandler serves the alumni directory.
type AlumniHandler struct {
	service alumniService
}

// NewAlumniHandler constructs an AlumniHandler.
func NewAlumniHandler(svc alumniService) *AlumniHandler {
	return &AlumniHandler{service: svc}
}

// List godoc
// @Summary Search alumni
// @Description Filter the directory by search term, degree, branch and batch. "any" disables a filter.
// @Tags Alumni
// @Produce json
// @Param search query string false "Name, id, company or location"
// @Param degree query string false "BTech, MTech or PhD"
// @Param branch query string false "Branch"
// @Param batch query string false "Start year"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 429 {object} map[string]interface{}
// @Router /alumni [get]
func (h *AlumniHandler) List(c *gin.Context) {
	var q models.AlumniQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid alumni query"))
		return
	}

	page, err := h.service.Search(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page, page.Pagination)
}

// Get godoc
// @Summary Get alumni profile
// @Tags Alumni
// @Produce json
// @Param id path string true "Profile ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.ErrorBody
// @Router /alumni/{id} [get]
func (h *AlumniHandler) Get(c *gin.Context) {
	profile, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Import godoc
// @Summary Import alumni profiles
// @Description Accepts scraped profile records. Storage happens asynchronously.
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body []models.RawProfileRecord true "Profile records"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.ErrorBody
// @Router /admin/alumni/import [post]
func (h *AlumniHandler) Import(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var records []models.RawProfileRecord
	if err := c.ShouldBindJSON(&records); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}

	summary, err := h.service.Import(c.Request.Context(), records, actor.ID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, summary, nil)
}

// Reindex recomputes derived profile fields.
// @Summary Re-derive alumni fields
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/alumni/reindex [post]
func (h *AlumniHandler) Reindex(c *gin.Context) {
	updated, err := h.service.Reindex(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}

// Export godoc
// @Summary Export alumni directory
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param search query string false "Search term"
// @Param degree query string false "Degree tier"
// @Param branch query string false "Branch"
// @Param batch query string false "Batch"
// @Success 200 {file} file
// @Failure 400 {object} response.ErrorBody
// @Router /admin/alumni/export [get]
func (h *AlumniHandler) Export(c *gin.Context) {
	var spec models.FilterSpec
	if err := c.ShouldBindQuery(&spec); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}

	file, err := h.service.Export(c.Request.Context(), spec, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
