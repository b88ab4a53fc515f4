package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: healthOK})
}

// GetReadiness handles GET /health/ready. The directory check reflects the
// outcome of the last refresh.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	if st := s.manager.State(); st.LastError != "" {
		checks["directory"] = "error"
		allHealthy = false
	} else {
		checks["directory"] = "ok"
	}

	if _, ok := s.account(); ok {
		checks["session"] = "signed_in"
	} else {
		checks["session"] = "signed_out"
	}

	status := healthOK
	httpStatus := http.StatusOK
	if !allHealthy {
		status = healthDegraded
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, healthResponse{Status: status, Checks: checks})
}
