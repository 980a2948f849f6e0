package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/authorization"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

type cashListResponse struct {
	Balance      decimal.Decimal          `json:"balance"`
	Transactions []domain.CashTransaction `json:"transactions"`
}

func (s *Server) CreateCashTransaction(c *gin.Context) {
	var req domain.AddCashTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Type = domain.CashTransactionType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	req.Category = strings.TrimSpace(req.Category)
	req.Description = strings.TrimSpace(req.Description)
	req.Actor = authorization.CurrentUser(c)

	resp, err := s.store.AddCashTransaction(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListCashTransactions(c *gin.Context) {
	respond(c, http.StatusOK, cashListResponse{
		Balance:      s.store.CashBalance(),
		Transactions: s.store.CashTransactions(),
	})
}

func (s *Server) CancelCashTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.CancelCashTransaction(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (s *Server) SaveDailyClosing(c *gin.Context) {
	var req domain.SaveDailyClosingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.BusinessDate = strings.TrimSpace(req.BusinessDate)
	req.Notes = strings.TrimSpace(req.Notes)
	req.Actor = authorization.CurrentUser(c)

	resp, err := s.store.SaveDailyClosing(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (s *Server) ListDailyClosings(c *gin.Context) {
	respond(c, http.StatusOK, s.store.DailyClosings())
}
