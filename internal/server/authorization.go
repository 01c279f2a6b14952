package server

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/petlog/internal/authorization"
)

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		err := s.authzSvc.Authorize(c.Request.Context(), roleFromContext(c), object, action)
		if errors.Is(err, authorization.ErrInvalidRole) {
			err = ErrUnauthorized
		}
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
