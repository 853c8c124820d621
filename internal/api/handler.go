// internal/api/handler.go
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/engine"
	"github.com/xkilldash9x/formrunner/internal/forms"
	"github.com/xkilldash9x/formrunner/internal/store"
)

const healthTimeout = 2 * time.Second

// JobSubmitter is the part of the job engine the API drives.
type JobSubmitter interface {
	Submit(ctx context.Context, variant string, sub schemas.Submission) (*schemas.Job, error)
	Running() bool
	QueueDepth() int
}

// Handler serves the form and task endpoints.
type Handler struct {
	engine   JobSubmitter
	jobs     store.JobStore
	registry *forms.Registry
	logger   *zap.Logger
}

func NewHandler(submitter JobSubmitter, jobs store.JobStore, registry *forms.Registry, logger *zap.Logger) *Handler {
	return &Handler{engine: submitter, jobs: jobs, registry: registry, logger: logger.Named("api")}
}

// RegisterRoutes mounts the versioned endpoints on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/forms", h.ListForms)
	rg.POST("/forms/:variant", h.SubmitForm)
	rg.GET("/tasks", h.ListTasks)
	rg.GET("/tasks/:id", h.GetTask)
	rg.DELETE("/tasks/:id", h.DeleteTask)
}

// TaskCreated is returned when a submission is queued.
type TaskCreated struct {
	TaskID    string            `json:"task_id"`
	Status    schemas.JobStatus `json:"status"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
}

// SubmitForm validates a variant's body and queues it.
func (h *Handler) SubmitForm(c *gin.Context) {
	variant := c.Param("variant")
	runner, err := h.registry.GetRunner(variant)
	if err != nil {
		failure(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		failure(c, http.StatusBadRequest, ErrCodeValidation, "failed to read request body")
		return
	}
	sub, err := DecodeSubmission(variant, body)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			validationFailure(c, verr)
			return
		}
		h.logger.Error("Failed to decode submission.", zap.Error(err))
		failure(c, http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred")
		return
	}
	if err := runner.Validate(sub); err != nil {
		failure(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	job, err := h.engine.Submit(c.Request.Context(), variant, sub)
	switch {
	case errors.Is(err, engine.ErrQueueFull):
		failure(c, http.StatusServiceUnavailable, ErrCodeQueueFull, err.Error())
		return
	case errors.Is(err, engine.ErrEngineStopped):
		failure(c, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	case err != nil:
		h.logger.Error("Failed to submit job.", zap.String("variant", variant), zap.Error(err))
		failure(c, http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred")
		return
	}

	success(c, http.StatusAccepted, TaskCreated{
		TaskID:    job.ID,
		Status:    job.Status,
		Message:   "Task created. The form is being processed.",
		CreatedAt: job.CreatedAt,
	})
}

// GetTask returns one job with its outcome.
func (h *Handler) GetTask(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeFailure(c, err)
		return
	}
	success(c, http.StatusOK, job)
}

// TaskList is the body of GET /tasks.
type TaskList struct {
	Total int            `json:"total"`
	Tasks []*schemas.Job `json:"tasks"`
}

// ListTasks returns jobs newest first, optionally filtered.
func (h *Handler) ListTasks(c *gin.Context) {
	filter := store.ListFilter{
		Status:  schemas.JobStatus(c.Query("status")),
		Variant: c.Query("form_type"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		failure(c, http.StatusBadRequest, ErrCodeValidation, "status must be one of pending, running, completed, failed")
		return
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			failure(c, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		h.storeFailure(c, err)
		return
	}
	if jobs == nil {
		jobs = []*schemas.Job{}
	}
	success(c, http.StatusOK, TaskList{Total: len(jobs), Tasks: jobs})
}

// DeleteTask removes a job record. A running job keeps running.
func (h *Handler) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	if err := h.jobs.Delete(c.Request.Context(), id); err != nil {
		h.storeFailure(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"message": "Task " + id + " deleted"})
}

// VariantInfo describes one form variant.
type VariantInfo struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	URL            string        `json:"url"`
	Identification []string      `json:"identification"`
	Sections       []SectionInfo `json:"sections"`
	Gates          []GateInfo    `json:"gates"`
	TotalRows      int           `json:"total_rows"`
}

type SectionInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Rows        int    `json:"rows"`
}

type GateInfo struct {
	Name  string   `json:"name"`
	OnYes []string `json:"on_yes,omitempty"`
	OnNo  []string `json:"on_no,omitempty"`
}

// ListForms describes every variant's tables.
func (h *Handler) ListForms(c *gin.Context) {
	success(c, http.StatusOK, DescribeVariants(h.registry))
}

// DescribeVariants summarizes the registry's variants.
func DescribeVariants(registry *forms.Registry) []VariantInfo {
	var out []VariantInfo
	for _, id := range registry.IDs() {
		runner, _ := registry.GetRunner(id)
		v := runner.Variant()
		info := VariantInfo{ID: v.ID, Title: v.Title, URL: runner.URL(), TotalRows: v.TotalRows()}
		for _, f := range v.Identification {
			info.Identification = append(info.Identification, f.Name)
		}
		for _, name := range v.Sections.Names() {
			d := v.Sections[name]
			info.Sections = append(info.Sections, SectionInfo{Name: name, DisplayName: d.DisplayName, Rows: len(d.RowIDs)})
		}
		for _, g := range v.Gates() {
			info.Gates = append(info.Gates, GateInfo{Name: g.Name, OnYes: g.OnYes, OnNo: g.OnNo})
		}
		out = append(out, info)
	}
	return out
}

// Health reports store reachability and engine state.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	storeStatus := "ok"
	if err := h.jobs.Ping(ctx); err != nil {
		h.logger.Warn("Health check: store unreachable.", zap.Error(err))
		storeStatus = "unreachable"
	}
	running := h.engine.Running()

	status, code := "healthy", http.StatusOK
	if storeStatus != "ok" || !running {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, Response{Success: code == http.StatusOK, Data: gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"store":     storeStatus,
		"engine": gin.H{
			"running":     running,
			"queue_depth": h.engine.QueueDepth(),
		},
	}})
}

func (h *Handler) storeFailure(c *gin.Context, err error) {
	if errors.Is(err, store.ErrJobNotFound) {
		failure(c, http.StatusNotFound, ErrCodeNotFound, "Task "+c.Param("id")+" not found")
		return
	}
	h.logger.Error("Job store request failed.", zap.Error(err))
	failure(c, http.StatusInternalServerError, ErrCodeInternal, "An unexpected error occurred")
}
