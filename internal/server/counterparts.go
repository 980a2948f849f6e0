package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

type counterpartRequest struct {
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	Address        string          `json:"address"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Notes          string          `json:"notes"`
}

func (r counterpartRequest) customer() domain.Customer {
	return domain.Customer{
		Name:           strings.TrimSpace(r.Name),
		Phone:          strings.TrimSpace(r.Phone),
		Address:        strings.TrimSpace(r.Address),
		OpeningBalance: r.OpeningBalance,
		Notes:          strings.TrimSpace(r.Notes),
	}
}

func (r counterpartRequest) supplier() domain.Supplier {
	return domain.Supplier{
		Name:           strings.TrimSpace(r.Name),
		Phone:          strings.TrimSpace(r.Phone),
		Address:        strings.TrimSpace(r.Address),
		OpeningBalance: r.OpeningBalance,
		Notes:          strings.TrimSpace(r.Notes),
	}
}

func (s *Server) CreateCustomer(c *gin.Context) {
	var req counterpartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.AddCustomer(c.Request.Context(), req.customer())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListCustomers(c *gin.Context) {
	respond(c, http.StatusOK, s.store.Customers())
}

func (s *Server) GetCustomerByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := s.store.Customer(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (s *Server) UpdateCustomer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req counterpartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.UpdateCustomer(c.Request.Context(), id, req.customer())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (s *Server) DeleteCustomer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteCustomer(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (s *Server) ListCustomerInvoices(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, err := s.store.Customer(id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, s.store.CustomerInvoices(id))
}

func (s *Server) CreateSupplier(c *gin.Context) {
	var req counterpartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.AddSupplier(c.Request.Context(), req.supplier())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListSuppliers(c *gin.Context) {
	respond(c, http.StatusOK, s.store.Suppliers())
}

func (s *Server) GetSupplierByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := s.store.Supplier(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (s *Server) UpdateSupplier(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req counterpartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.UpdateSupplier(c.Request.Context(), id, req.supplier())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (s *Server) DeleteSupplier(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteSupplier(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

type representativeRequest struct {
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

func (s *Server) CreateRepresentative(c *gin.Context) {
	var req representativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.AddRepresentative(c.Request.Context(), domain.Representative{
		Name:           strings.TrimSpace(req.Name),
		Phone:          strings.TrimSpace(req.Phone),
		CommissionRate: req.CommissionRate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListRepresentatives(c *gin.Context) {
	respond(c, http.StatusOK, s.store.Representatives())
}
