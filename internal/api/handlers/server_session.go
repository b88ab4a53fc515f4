package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/notification"
)

type sessionResponse struct {
	Mode          string          `json:"mode"`
	Authenticated bool            `json:"authenticated"`
	Account       *domain.Account `json:"account,omitempty"`
}

type notificationList struct {
	Items []notification.Notification `json:"items"`
}

// GetSession handles GET /session.
func (s *Server) GetSession(c *gin.Context) {
	resp := sessionResponse{Mode: s.mode}
	if s.accounts != nil {
		if acct, ok := s.accounts.Account(); ok {
			resp.Authenticated = true
			resp.Account = &acct
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ListNotifications handles GET /notifications. Signed out, the list is empty.
func (s *Server) ListNotifications(c *gin.Context) {
	items := []notification.Notification{}
	if principalID, ok := s.account(); ok && s.inbox != nil {
		items = s.inbox.List(principalID)
	}
	c.JSON(http.StatusOK, notificationList{Items: items})
}
