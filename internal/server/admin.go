package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	settingdomain "github.com/smallbiznis/petlog/internal/setting/domain"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	"github.com/smallbiznis/petlog/pkg/db/pagination"
)

// -------- Plans --------

func (s *Server) AdminListPlans(c *gin.Context) {
	plans, err := s.planSvc.ListAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plans})
}

func (s *Server) AdminCreatePlan(c *gin.Context) {
	var req plandomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.planSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) AdminUpdatePlan(c *gin.Context) {
	var req plandomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	resp, err := s.planSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AdminDeletePlan(c *gin.Context) {
	if err := s.planSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// -------- Hotels --------

func (s *Server) AdminGetSubscription(c *gin.Context) {
	tenantID, ok := parseTenantParam(c.Param("id"))
	if !ok {
		AbortWithError(c, subscriptiondomain.ErrInvalidTenant)
		return
	}
	sub, err := s.subscriptionSvc.GetByTenant(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": subscriptiondomain.ToResponse(sub)})
}

func (s *Server) AdminUpdateSubscription(c *gin.Context) {
	tenantID, ok := parseTenantParam(c.Param("id"))
	if !ok {
		AbortWithError(c, subscriptiondomain.ErrInvalidTenant)
		return
	}
	var req subscriptiondomain.AdminUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	req.TenantID = tenantID

	sub, err := s.subscriptionSvc.AdminUpdate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": subscriptiondomain.ToResponse(sub)})
}

// AdminStartTrial is the hook tenant registration calls. It is idempotent.
func (s *Server) AdminStartTrial(c *gin.Context) {
	tenantID, ok := parseTenantParam(c.Param("id"))
	if !ok {
		AbortWithError(c, subscriptiondomain.ErrInvalidTenant)
		return
	}
	sub, err := s.subscriptionSvc.StartTrial(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": subscriptiondomain.ToResponse(sub)})
}

func (s *Server) AdminTenantPayments(c *gin.Context) {
	tenantID, ok := parseTenantParam(c.Param("id"))
	if !ok {
		AbortWithError(c, paymentdomain.ErrInvalidTenant)
		return
	}
	items, err := s.paymentSvc.History(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) AdminStats(c *gin.Context) {
	stats, err := s.subscriptionSvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// -------- Config --------

func (s *Server) AdminListConfigs(c *gin.Context) {
	items, err := s.settingSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) AdminUpdateConfig(c *gin.Context) {
	var body struct {
		Value       string  `json:"value" binding:"required"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.settingSvc.Upsert(c.Request.Context(), settingdomain.UpsertRequest{
		Key:         strings.TrimSpace(c.Param("key")),
		Value:       strings.TrimSpace(body.Value),
		Description: body.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// -------- Payments --------

func (s *Server) AdminListPayments(c *gin.Context) {
	var query struct {
		pagination.Pagination
		TenantID string `form:"tenant_id"`
		Status   string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	tenantID, err := parseOptionalInt64(query.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}

	resp, err := s.paymentSvc.ListPayments(c.Request.Context(), paymentdomain.ListRequest{
		TenantID:   tenantID,
		Status:     strings.TrimSpace(query.Status),
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) AdminRevenue(c *gin.Context) {
	resp, err := s.paymentSvc.Revenue(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
