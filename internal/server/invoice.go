package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/orderstack/fulfill/internal/invoice/domain"
)

func (s *Server) QueueInvoice(c *gin.Context) {
	orderID, ok := parseIDParam(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.QueueInvoice(c.Request.Context(), orderID, invoicedomain.IssueOptions{})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

// IssueInvoice holds the order-level single-flight lock for the duration of
// the call. The core itself only locks at the sequence-prefix level, so a
// double submit without this guard could race.
func (s *Server) IssueInvoice(c *gin.Context) {
	orderID, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if s.guard != nil {
		token, acquired, err := s.guard.LockIssue(ctx, orderID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": gin.H{"type": "conflict", "message": "issuance already in progress"},
			})
			return
		}
		defer func() { _ = s.guard.ReleaseIssue(ctx, orderID, token) }()
	}

	inv, err := s.invoiceSvc.IssueInvoice(ctx, orderID, invoicedomain.IssueOptions{})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) RetryInvoice(c *gin.Context) {
	invoiceID, ok := parseIDParam(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.RetryInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

type bulkIssueRequest struct {
	OrderIDs []string `json:"order_ids" binding:"required"`
}

func (s *Server) IssueBulk(c *gin.Context) {
	var req bulkIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"type": "invalid_request", "message": err.Error()},
		})
		return
	}

	orderIDs := make([]snowflake.ID, 0, len(req.OrderIDs))
	for _, raw := range req.OrderIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"type": "invalid_request", "message": "invalid order id: " + raw},
			})
			return
		}
		orderIDs = append(orderIDs, id)
	}

	result, err := s.invoiceSvc.IssueBulk(c.Request.Context(), orderIDs, invoicedomain.IssueOptions{Bulk: true})
	if err != nil && len(result.Succeeded) == 0 && len(result.Failed) == 0 {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
		},
	})
}

func (s *Server) IssueRefundVoucher(c *gin.Context) {
	orderID, ok := parseIDParam(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.IssueRefundVoucher(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) GetInvoice(c *gin.Context) {
	invoiceID, ok := parseIDParam(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) GetInvoiceByOrder(c *gin.Context) {
	orderID, ok := parseIDParam(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.GetInvoiceByOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) CheckTaxpayer(c *gin.Context) {
	taxID := strings.TrimSpace(c.Param("taxid"))
	registered := s.invoiceSvc.IsRegisteredRecipient(c.Request.Context(), taxID)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"registered": registered}})
}

func parseIDParam(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"type": "invalid_request", "message": "invalid id"},
		})
		return 0, false
	}
	return id, true
}
