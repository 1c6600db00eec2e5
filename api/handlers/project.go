// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/regassist/backend/internal/model"
	"github.com/regassist/backend/internal/repository"
	"github.com/regassist/backend/internal/ws"
)

// ProjectHandler handles HTTP requests for project management.
type ProjectHandler struct {
	projects *repository.ProjectRepository
	service  *ws.Service
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects *repository.ProjectRepository, service *ws.Service) *ProjectHandler {
	return &ProjectHandler{
		projects: projects,
		service:  service,
	}
}

// ProjectResponse represents a project in API responses.
type ProjectResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	DeviceName  string `json:"deviceName"`
	DeviceClass string `json:"deviceClass"`
	IntendedUse string `json:"intendedUse,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// toProjectResponse converts a model.Project to ProjectResponse.
func toProjectResponse(p *model.Project) *ProjectResponse {
	return &ProjectResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		Name:        p.Name,
		DeviceName:  p.DeviceName,
		DeviceClass: string(p.DeviceClass),
		IntendedUse: p.IntendedUse,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// getUserID extracts the user ID from the request context.
// In a real implementation, this would come from authentication middleware.
func getUserID(c *gin.Context) string {
	// Try to get from context (set by auth middleware)
	if userID, exists := c.Get("userID"); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	// Default user for development/testing
	return "default-user"
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Create handles POST /api/projects - creates a new project.
func (h *ProjectHandler) Create(c *gin.Context) {
	var req model.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	req.UserID = getUserID(c)
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if req.DeviceClass == "" {
		req.DeviceClass = model.DeviceClassII
	}

	now := time.Now()
	project := &model.Project{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Name:        req.Name,
		DeviceName:  req.DeviceName,
		DeviceClass: req.DeviceClass,
		IntendedUse: req.IntendedUse,
		Status:      model.ProjectStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.projects.Create(c.Request.Context(), project); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create project: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, toProjectResponse(project))
}

// List handles GET /api/projects - lists all projects for the user.
func (h *ProjectHandler) List(c *gin.Context) {
	userID := getUserID(c)

	projects, err := h.projects.List(c.Request.Context(), userID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list projects: "+err.Error())
		return
	}

	response := make([]*ProjectResponse, len(projects))
	for i, p := range projects {
		response[i] = toProjectResponse(p)
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/projects/:id - gets a specific project.
func (h *ProjectHandler) Get(c *gin.Context) {
	project, ok := h.loadOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toProjectResponse(project))
}

// Update handles PUT /api/projects/:id - updates a project.
func (h *ProjectHandler) Update(c *gin.Context) {
	project, ok := h.loadOwned(c)
	if !ok {
		return
	}

	var req model.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	req.Apply(project)

	if err := h.projects.Update(c.Request.Context(), project); err != nil {
		if errors.Is(err, model.ErrProjectNotFound) {
			sendError(c, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project "+project.ID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update project: "+err.Error())
		return
	}

	// Push the change to any subscribed dashboards
	h.service.NotifyProjectUpdated(project)

	c.JSON(http.StatusOK, toProjectResponse(project))
}

// Delete handles DELETE /api/projects/:id - deletes a project.
func (h *ProjectHandler) Delete(c *gin.Context) {
	project, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if err := h.projects.Delete(c.Request.Context(), project.ID); err != nil {
		if errors.Is(err, model.ErrProjectNotFound) {
			sendError(c, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project "+project.ID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete project: "+err.Error())
		return
	}

	h.service.NotifyProjectDeleted(project.ID)

	c.Status(http.StatusNoContent)
}

// GetTranscript handles GET /api/projects/:id/transcript - downloads the
// project's agent stream transcript.
func (h *ProjectHandler) GetTranscript(c *gin.Context) {
	project, ok := h.loadOwned(c)
	if !ok {
		return
	}

	path := h.service.TranscriptPath(project.ID)
	if _, err := os.Stat(path); err != nil {
		sendError(c, http.StatusNotFound, "TRANSCRIPT_NOT_FOUND", "No transcript recorded for project "+project.ID)
		return
	}

	c.Header("Content-Type", "application/jsonl")
	c.Header("Content-Disposition", "attachment; filename="+project.ID+".stream.jsonl")
	c.File(path)
}

// loadOwned fetches the project from the path parameter and enforces
// ownership; it writes the error response itself on failure.
func (h *ProjectHandler) loadOwned(c *gin.Context) (*model.Project, bool) {
	projectID := c.Param("id")
	if projectID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Project ID is required")
		return nil, false
	}

	project, err := h.projects.GetByID(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, model.ErrProjectNotFound) {
			sendError(c, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project "+projectID+" not found")
			return nil, false
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get project: "+err.Error())
		return nil, false
	}

	if project.UserID != getUserID(c) {
		sendError(c, http.StatusForbidden, "FORBIDDEN", "Access to project denied")
		return nil, false
	}

	return project, true
}

// RegisterRoutes registers the project handler routes on a Gin router group.
func (h *ProjectHandler) RegisterRoutes(rg *gin.RouterGroup) {
	projects := rg.Group("/projects")
	{
		projects.POST("", h.Create)
		projects.GET("", h.List)
		projects.GET("/:id", h.Get)
		projects.PUT("/:id", h.Update)
		projects.DELETE("/:id", h.Delete)
		projects.GET("/:id/transcript", h.GetTranscript)
	}
}
