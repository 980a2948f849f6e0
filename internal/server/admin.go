package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeledger/internal/bootstrap"
	"github.com/smallbiznis/storeledger/internal/cloudsync"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
	"go.uber.org/zap"
)

func (s *Server) RunSync(c *gin.Context) {
	report, err := s.syncer.SyncFromCloud(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, report)
}

type syncStatusResponse struct {
	cloudsync.Status
	Startup bootstrap.Summary `json:"startup"`
}

func (s *Server) GetSyncStatus(c *gin.Context) {
	respond(c, http.StatusOK, syncStatusResponse{
		Status:  s.syncer.Status(),
		Startup: s.startup.Status(),
	})
}

// ExportBackup streams the raw ExportDocument so it can be fed back to
// POST /v1/backup or ledgerctl import unchanged.
func (s *Server) ExportBackup(c *gin.Context) {
	doc := s.store.Export()
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="storeledger-%s.json"`, doc.ExportedAt.Format("20060102-150405")))
	c.JSON(http.StatusOK, doc)
}

func (s *Server) ImportBackup(c *gin.Context) {
	var doc domain.ExportDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if err := s.store.Import(ctx, doc); err != nil {
		AbortWithError(c, err)
		return
	}
	if s.persister != nil {
		if err := s.persister.Flush(ctx); err != nil {
			s.log.Warn("cache flush after import failed", zap.Error(err))
		}
	}
	respond(c, http.StatusOK, gin.H{"rows": doc.Data.Len()})
}

func (s *Server) GetSettings(c *gin.Context) {
	respond(c, http.StatusOK, s.currentSettings())
}

func (s *Server) UpdateSettings(c *gin.Context) {
	if s.settings == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	next := s.currentSettings()
	if err := c.ShouldBindJSON(&next); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.settings.Set(next); err != nil {
		AbortWithError(c, newValidationError("settings", "invalid_settings", err.Error()))
		return
	}
	if s.persister != nil {
		s.persister.Schedule()
	}
	respond(c, http.StatusOK, next)
}

func (s *Server) currentSettings() config.Settings {
	if s.settings == nil {
		return config.DefaultSettings()
	}
	return s.settings.Get()
}
