package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/wealthdesk/internal/orgcontext"
)

const (
	headerOrgID  = "X-Org-ID"
	headerUserID = "X-User-ID"
)

// OrgRequired resolves the calling firm from the X-Org-ID header and
// binds it to the request context. Requests without a valid firm never
// reach a handler.
func (s *Server) OrgRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerOrgID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		if userID := strings.TrimSpace(c.GetHeader(headerUserID)); userID != "" {
			ctx = orgcontext.WithUserID(ctx, userID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
