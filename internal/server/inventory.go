package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storeledger/internal/authorization"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

type productRequest struct {
	Name          string              `json:"name"`
	Code          string              `json:"code"`
	Unit          string              `json:"unit"`
	Category      string              `json:"category"`
	SellingPrice  decimal.NullDecimal `json:"selling_price"`
	PurchasePrice decimal.NullDecimal `json:"purchase_price"`
	MinStock      decimal.Decimal     `json:"min_stock"`
}

func (r productRequest) toDomain() domain.Product {
	return domain.Product{
		Name:          strings.TrimSpace(r.Name),
		Code:          strings.TrimSpace(r.Code),
		Unit:          strings.TrimSpace(r.Unit),
		Category:      strings.TrimSpace(r.Category),
		SellingPrice:  r.SellingPrice,
		PurchasePrice: r.PurchasePrice,
		MinStock:      r.MinStock,
	}
}

func (s *Server) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.AddProduct(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp)
}

// ListProducts returns live products; low_stock=true narrows to those at or
// below their minimum (or the store threshold).
func (s *Server) ListProducts(c *gin.Context) {
	lowStock, err := parseOptionalBool(c.Query("low_stock"))
	if err != nil {
		AbortWithError(c, newValidationError("low_stock", "invalid_low_stock", "invalid low_stock"))
		return
	}
	if lowStock == nil || !*lowStock {
		respond(c, http.StatusOK, s.store.Products())
		return
	}

	threshold, err := parseOptionalDecimal(c.Query("threshold"))
	if err != nil {
		AbortWithError(c, newValidationError("threshold", "invalid_threshold", "invalid threshold"))
		return
	}
	if threshold == nil {
		fallback := decimal.NewFromInt(int64(s.lowStockThreshold()))
		threshold = &fallback
	}
	respond(c, http.StatusOK, s.store.LowStockProducts(*threshold))
}

func (s *Server) GetProductByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := s.store.Product(id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (s *Server) UpdateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.UpdateProduct(c.Request.Context(), id, req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (s *Server) DeleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteProduct(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

type stockResponse struct {
	ProductID   snowflake.ID    `json:"product_id"`
	WarehouseID snowflake.ID    `json:"warehouse_id,omitempty"`
	Available   decimal.Decimal `json:"available"`
}

func (s *Server) GetProductStock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	warehouseID, ok := queryID(c, "warehouse_id")
	if !ok {
		return
	}
	if _, err := s.store.Product(id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, stockResponse{
		ProductID:   id,
		WarehouseID: warehouseID,
		Available:   s.store.AvailableQuantity(id, warehouseID),
	})
}

type batchRequest struct {
	ProductID     snowflake.ID    `json:"product_id"`
	WarehouseID   snowflake.ID    `json:"warehouse_id"`
	BatchNumber   string          `json:"batch_number"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Quantity      decimal.Decimal `json:"quantity"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
}

func (s *Server) CreateBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.AddBatch(c.Request.Context(), domain.Batch{
		ProductID:     req.ProductID,
		WarehouseID:   req.WarehouseID,
		BatchNumber:   strings.TrimSpace(req.BatchNumber),
		PurchasePrice: req.PurchasePrice,
		SellingPrice:  req.SellingPrice,
		Quantity:      req.Quantity,
		ExpiryDate:    req.ExpiryDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListBatches(c *gin.Context) {
	productID, ok := queryID(c, "product_id")
	if !ok {
		return
	}
	warehouseID, ok := queryID(c, "warehouse_id")
	if !ok {
		return
	}
	respond(c, http.StatusOK, s.store.Batches(productID, warehouseID))
}

func (s *Server) CreateAdjustment(c *gin.Context) {
	var req domain.AddPendingAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = authorization.CurrentUser(c)

	resp, err := s.store.AddPendingAdjustment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListAdjustments(c *gin.Context) {
	respond(c, http.StatusOK, s.store.PendingAdjustments())
}

func (s *Server) ApproveAdjustment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := s.store.ApprovePendingAdjustment(c.Request.Context(), id, authorization.CurrentUser(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

func (s *Server) RejectAdjustment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := s.store.RejectPendingAdjustment(c.Request.Context(), id, authorization.CurrentUser(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}

type warehouseRequest struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	Location  string `json:"location"`
	IsDefault bool   `json:"is_default"`
}

func (s *Server) CreateWarehouse(c *gin.Context) {
	var req warehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.store.AddWarehouse(c.Request.Context(), domain.Warehouse{
		Name:      strings.TrimSpace(req.Name),
		Code:      strings.TrimSpace(req.Code),
		Location:  strings.TrimSpace(req.Location),
		IsDefault: req.IsDefault,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListWarehouses(c *gin.Context) {
	respond(c, http.StatusOK, s.store.Warehouses())
}

func (s *Server) lowStockThreshold() int {
	if s.settings == nil {
		return 0
	}
	return s.settings.Get().LowStockThreshold
}
