package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	"github.com/smallbiznis/petlog/internal/subscription/guard"
)

func (s *Server) GetSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetByTenant(c.Request.Context(), tenantIDFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, subscriptiondomain.ToResponse(sub))
}

// CheckSubscriptionAccess reports whether gated features are usable. A
// denied tenant gets 200 with the reason so the UI can render a paywall.
func (s *Server) CheckSubscriptionAccess(c *gin.Context) {
	err := s.subscriptionSvc.CheckAccess(c.Request.Context(), tenantIDFromContext(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"allowed": true})
	case guard.IsAccessError(err):
		c.JSON(http.StatusOK, gin.H{
			"allowed": false,
			"reason":  accessReason(err),
			"message": accessErrorMessage(err),
		})
	default:
		AbortWithError(c, err)
	}
}

func accessReason(err error) string {
	for _, sentinel := range []error{guard.ErrTrialExpired, guard.ErrPlanExpired, guard.ErrSubscriptionInactive, guard.ErrNoSubscription} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
