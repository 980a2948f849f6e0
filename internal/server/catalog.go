package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeledger/internal/search"
)

// GetCatalog returns the reconciled catalog, loading it once per process. With
// ?q= it ranks the catalog instead.
func (s *Server) GetCatalog(c *gin.Context) {
	if query := strings.TrimSpace(c.Query("q")); query != "" {
		limit, ok := searchLimit(c)
		if !ok {
			return
		}
		respond(c, http.StatusOK, s.catalog.Search(query, limit))
		return
	}

	state, err := s.catalog.Load(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, state)
}

func (s *Server) ReloadCatalog(c *gin.Context) {
	state, err := s.catalog.Reload(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, state)
}

func (s *Server) SearchProducts(c *gin.Context) {
	limit, ok := searchLimit(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, search.Search(c.Query("q"), s.store.Products(), limit))
}

func (s *Server) SearchCustomers(c *gin.Context) {
	limit, ok := searchLimit(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, search.Search(c.Query("q"), s.store.Customers(), limit))
}

func (s *Server) SearchSuppliers(c *gin.Context) {
	limit, ok := searchLimit(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, search.Search(c.Query("q"), s.store.Suppliers(), limit))
}
