package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
)

type createPaymentRequest struct {
	Plan       string `json:"plan" binding:"required"`
	Months     int    `json:"months" binding:"omitempty,min=1,max=36"`
	Upgrade    bool   `json:"upgrade"`
	ExtraRooms int    `json:"extra_rooms" binding:"omitempty,min=0,max=10000"`
	Rooms      int    `json:"rooms" binding:"omitempty,min=0,max=10000"`
}

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (s *Server) UpgradeCost(c *gin.Context) {
	plan := strings.TrimSpace(c.Query("plan"))
	if plan == "" {
		AbortWithError(c, newValidationError("plan", "required", "plan is required"))
		return
	}

	quote, err := s.paymentSvc.QuoteUpgrade(c.Request.Context(), tenantIDFromContext(c), plan)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) ExtraRoomsCost(c *gin.Context) {
	rooms, err := parseIntDefault(c.Query("rooms"), 0)
	if err != nil {
		AbortWithError(c, newValidationError("rooms", "invalid_rooms", "invalid rooms"))
		return
	}

	quote, err := s.paymentSvc.QuoteExtraRooms(c.Request.Context(), tenantIDFromContext(c), rooms)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) RenewalCost(c *gin.Context) {
	plan := strings.TrimSpace(c.Query("plan"))
	if plan == "" {
		AbortWithError(c, newValidationError("plan", "required", "plan is required"))
		return
	}
	months, err := parseIntDefault(c.Query("months"), 1)
	if err != nil {
		AbortWithError(c, newValidationError("months", "invalid_months", "invalid months"))
		return
	}
	extraRooms, err := parseIntDefault(c.Query("extra_rooms"), 0)
	if err != nil {
		AbortWithError(c, newValidationError("extra_rooms", "invalid_extra_rooms", "invalid extra_rooms"))
		return
	}

	quote, err := s.paymentSvc.QuoteRenewal(c.Request.Context(), tenantIDFromContext(c), plan, months, extraRooms)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.paymentSvc.Checkout(c.Request.Context(), paymentdomain.CheckoutRequest{
		TenantID:   tenantIDFromContext(c),
		Plan:       strings.TrimSpace(req.Plan),
		Months:     req.Months,
		Upgrade:    req.Upgrade,
		ExtraRooms: req.ExtraRooms,
		Rooms:      req.Rooms,
		ReturnURL:  s.pricingURL("success"),
		CancelURL:  s.pricingURL("cancel"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CheckPayment(c *gin.Context) {
	orderCode, err := parseOptionalInt64(c.Query("orderCode"))
	if err != nil || orderCode == nil || *orderCode <= 0 {
		AbortWithError(c, newValidationError("orderCode", "invalid_order_code", "invalid orderCode"))
		return
	}

	resp, err := s.paymentSvc.CheckPayment(c.Request.Context(), tenantIDFromContext(c), *orderCode)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) PaymentHistory(c *gin.Context) {
	items, err := s.paymentSvc.History(c.Request.Context(), tenantIDFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) pricingURL(status string) string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + "/dashboard/pricing?status=" + status
}
