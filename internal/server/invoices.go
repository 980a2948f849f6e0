package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/authorization"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

type invoiceView struct {
	domain.Invoice
	PaidAmount decimal.Decimal `json:"paid_amount"`
}

type purchaseInvoiceView struct {
	domain.PurchaseInvoice
	PaidAmount decimal.Decimal `json:"paid_amount"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req domain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = authorization.CurrentUser(c)
	req.Notes = strings.TrimSpace(req.Notes)

	resp, err := s.store.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListInvoices(c *gin.Context) {
	respond(c, http.StatusOK, s.store.Invoices())
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := s.store.Invoice(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, invoiceView{Invoice: resp, PaidAmount: s.store.InvoicePaidAmount(id)})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req domain.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = authorization.CurrentUser(c)

	resp, err := s.store.UpdateInvoice(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteInvoice(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (s *Server) PayInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req domain.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = authorization.CurrentUser(c)

	resp, err := s.store.RecordInvoicePayment(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) CreatePurchaseInvoice(c *gin.Context) {
	var req domain.CreatePurchaseInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = authorization.CurrentUser(c)
	req.Notes = strings.TrimSpace(req.Notes)

	resp, err := s.store.CreatePurchaseInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListPurchaseInvoices(c *gin.Context) {
	respond(c, http.StatusOK, s.store.PurchaseInvoices())
}

func (s *Server) GetPurchaseInvoiceByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := s.store.PurchaseInvoice(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, purchaseInvoiceView{PurchaseInvoice: resp, PaidAmount: s.store.InvoicePaidAmount(id).Abs()})
}

func (s *Server) DeletePurchaseInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeletePurchaseInvoice(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (s *Server) PayPurchaseInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req domain.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = authorization.CurrentUser(c)

	resp, err := s.store.RecordPurchasePayment(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) CreatePurchaseOrder(c *gin.Context) {
	var req domain.PurchaseOrder
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Envelope = domain.Envelope{}
	req.Notes = strings.TrimSpace(req.Notes)

	resp, err := s.store.AddPurchaseOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListPurchaseOrders(c *gin.Context) {
	respond(c, http.StatusOK, s.store.PurchaseOrders())
}

type purchaseOrderStateRequest struct {
	State domain.PurchaseOrderState `json:"state"`
}

func (s *Server) SetPurchaseOrderState(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req purchaseOrderStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	state := domain.PurchaseOrderState(strings.ToUpper(strings.TrimSpace(string(req.State))))
	resp, err := s.store.SetPurchaseOrderState(c.Request.Context(), id, state)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}
