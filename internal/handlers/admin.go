package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/novasocial/graph-backend/internal/data/social"
	apperrors "github.com/novasocial/graph-backend/internal/pkg/errors"
	"github.com/novasocial/graph-backend/internal/services"
)

// AdminHandler exposes the operator endpoints: backfill, verification and the
// latest verification result. These sit behind the internal-token gate.
type AdminHandler struct {
	backfill *services.BackfillJob
	verifier *services.ConsistencyVerifier
	runs     social.RunsRepo
}

func NewAdminHandler(backfill *services.BackfillJob, verifier *services.ConsistencyVerifier, runs social.RunsRepo) *AdminHandler {
	return &AdminHandler{backfill: backfill, verifier: verifier, runs: runs}
}

func (ah *AdminHandler) RunBackfill(c *gin.Context) {
	if ah.backfill == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "backfill requires the graph replica"})
		return
	}
	run, err := ah.backfill.Run(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if run != nil {
			c.JSON(status, gin.H{"error": err.Error(), "run": run})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (ah *AdminHandler) RunVerification(c *gin.Context) {
	if ah.verifier == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "verification requires the graph replica"})
		return
	}
	report, err := ah.verifier.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (ah *AdminHandler) LatestVerification(c *gin.Context) {
	if ah.runs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "run records unavailable"})
		return
	}
	run, err := ah.runs.LatestVerificationRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}
