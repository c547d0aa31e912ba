package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/usecase"
)

// Service is the slice of the pipeline exposed over HTTP.
type Service interface {
	TryRun(ctx context.Context, opts usecase.RunOptions) (domain.RunStats, error)
	Stats() domain.LedgerStats
	Check(id string) (domain.ProcessedRecord, bool)
}

// StatsResponse describes the ledger.
type StatsResponse struct {
	TotalItems  int        `json:"total_items"`
	LastUpdated *time.Time `json:"last_updated"`
	Storage     string     `json:"storage"`
}

// RecordResponse is one ledger entry.
type RecordResponse struct {
	ID        string    `json:"id"`
	FirstSeen time.Time `json:"first_seen"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
}

// RunRequest is the optional body of POST /api/runs.
type RunRequest struct {
	DryRun  bool `json:"dry_run"`
	Verbose bool `json:"verbose"`
}

// RunResponse reports what a triggered run did.
type RunResponse struct {
	RunID       string `json:"run_id"`
	Collected   int    `json:"collected"`
	Malformed   int    `json:"malformed"`
	New         int    `json:"new"`
	Candidates  int    `json:"candidates"`
	Analyzed    int    `json:"analyzed"`
	ModelErrors int    `json:"model_errors"`
	Relevant    int    `json:"relevant"`
	AlertsSent  int    `json:"alerts_sent"`
	Swept       int    `json:"swept"`
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(svc Service) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := &handlers{svc: svc}
	g := r.Group("/api")
	g.GET("/health", h.health)
	g.GET("/ledger/stats", h.stats)
	g.GET("/ledger/:id", h.record)
	g.POST("/runs", h.run)
	return r
}

type handlers struct {
	svc Service
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) stats(c *gin.Context) {
	s := h.svc.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		TotalItems:  s.TotalItems,
		LastUpdated: s.LastUpdated,
		Storage:     s.Storage,
	})
}

// record looks up an item id such as "nvd:CVE-2025-1234".
func (h *handlers) record(c *gin.Context) {
	id := c.Param("id")
	rec, ok := h.svc.Check(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not processed", "id": id})
		return
	}
	c.JSON(http.StatusOK, RecordResponse{
		ID:        rec.ID,
		FirstSeen: rec.FirstSeen,
		Source:    rec.Source,
		Title:     rec.Title,
	})
}

func (h *handlers) run(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// A run must finish its ledger write even if the caller hangs up.
	ctx := context.WithoutCancel(c.Request.Context())
	stats, err := h.svc.TryRun(ctx, usecase.RunOptions{DryRun: req.DryRun, Verbose: req.Verbose})
	switch {
	case errors.Is(err, usecase.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run_id": stats.RunID})
		return
	}

	c.JSON(http.StatusOK, RunResponse{
		RunID:       stats.RunID,
		Collected:   stats.Collected,
		Malformed:   stats.Malformed,
		New:         stats.New,
		Candidates:  stats.Candidates,
		Analyzed:    stats.Analyzed,
		ModelErrors: stats.ModelErrors,
		Relevant:    stats.Relevant,
		AlertsSent:  stats.AlertsSent,
		Swept:       stats.Swept,
	})
}
