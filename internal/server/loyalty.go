package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/zenbill/zenbill/internal/invoice/domain"
	"github.com/zenbill/zenbill/internal/tenantctx"
)

func (s *Server) GetCustomerLoyalty(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, invoicedomain.ErrInvalidTenant)
		return
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, invoicedomain.ErrValidation)
		return
	}

	loyalty, err := s.loyaltySvc.GetCustomerLoyalty(c.Request.Context(), tenantID, customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if loyalty == nil {
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": loyalty})
}
