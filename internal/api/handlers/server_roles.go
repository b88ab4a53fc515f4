package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/duration"
	"elevate.dev/elevate/internal/pim"
	apperrors "elevate.dev/elevate/internal/pkg/errors"
	"elevate.dev/elevate/internal/pkg/logger"
)

type deactivateRequest struct {
	RoleDefinitionID string `json:"roleDefinitionId"`
	DirectoryScopeID string `json:"directoryScopeId"`
}

// GetState handles GET /state.
func (s *Server) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.State())
}

// ListEligibleRoles handles GET /roles/eligible.
func (s *Server) ListEligibleRoles(c *gin.Context) {
	c.JSON(http.StatusOK, eligibleList{Items: s.manager.State().EligibleRoles})
}

// ListActiveRoles handles GET /roles/active.
func (s *Server) ListActiveRoles(c *gin.Context) {
	active := s.manager.State().ActiveRoles
	now := s.now()
	items := make([]activeRole, 0, len(active))
	for _, a := range active {
		items = append(items, activeRoleToAPI(a, now))
	}
	c.JSON(http.StatusOK, activeList{Items: items})
}

// RefreshRoles handles POST /roles/refresh. Any failure surfaces as
// DIRECTORY_UNAVAILABLE; the cause code travels in params.
func (s *Server) RefreshRoles(c *gin.Context) {
	if err := s.manager.Refresh(c.Request.Context()); err != nil {
		appErr := apperrors.BadGateway(err, apperrors.CodeDirectoryUnavailable, "Role refresh failed: "+apperrors.Message(err))
		if inner, ok := apperrors.IsAppError(err); ok && inner.Code != apperrors.CodeDirectoryUnavailable {
			appErr = appErr.WithParams(map[string]interface{}{"cause": inner.Code})
		}
		_ = c.Error(appErr)
		return
	}
	c.JSON(http.StatusOK, s.manager.State())
}

// ActivateRole handles POST /roles/activate.
func (s *Server) ActivateRole(c *gin.Context) {
	var req pim.ActivateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid activation request body", http.StatusBadRequest))
		return
	}

	if err := s.manager.Activate(c.Request.Context(), req); err != nil {
		logger.Debug("Activation request rejected",
			zap.String("role_definition_id", req.RoleDefinitionID),
			zap.String("directory_scope_id", req.DirectoryScopeID),
			zap.Error(err),
		)
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, s.manager.State())
}

// DeactivateRole handles POST /roles/deactivate.
func (s *Server) DeactivateRole(c *gin.Context) {
	var req deactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid deactivation request body", http.StatusBadRequest))
		return
	}

	if err := s.manager.Deactivate(c.Request.Context(), req.RoleDefinitionID, req.DirectoryScopeID); err != nil {
		logger.Debug("Deactivation request rejected",
			zap.String("role_definition_id", req.RoleDefinitionID),
			zap.String("directory_scope_id", req.DirectoryScopeID),
			zap.Error(err),
		)
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, s.manager.State())
}

// ListDurations handles GET /durations.
func (s *Server) ListDurations(c *gin.Context) {
	c.JSON(http.StatusOK, durationList{
		Items:   duration.Options(),
		Default: duration.DefaultToken,
	})
}

type eligibleList struct {
	Items []domain.EligibilitySchedule `json:"items"`
}

type activeRole struct {
	domain.AssignmentSchedule
	Remaining string `json:"remaining,omitempty"`
}

type activeList struct {
	Items []activeRole `json:"items"`
}

type durationList struct {
	Items   []duration.Option `json:"items"`
	Default string            `json:"default"`
}
