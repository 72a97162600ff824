package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/wealthdesk/internal/organization/domain"
)

func (s *Server) CreateOrganization(c *gin.Context) {
	var req organizationdomain.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	org, err := s.organizationSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (s *Server) GetOrganization(c *gin.Context) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := snowflake.ParseString(raw)
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	org, err := s.organizationSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}
