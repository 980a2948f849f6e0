package authorization

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/pkg/db"
	"github.com/smallbiznis/storeledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T, local *db.Local, roles map[string]string) *Service {
	t.Helper()
	enforcer, err := NewEnforcer(local)
	require.NoError(t, err)
	svc, err := NewService(Params{
		Config:   config.Config{ActorRoles: roles},
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})
	require.NoError(t, err)
	return svc
}

func TestAuthorize_Roles(t *testing.T) {
	svc := newService(t, dbtest.OpenLocal(t), map[string]string{
		"alice": RoleAdmin,
		"bob":   RoleCashier,
		"carol": RoleViewer,
	})
	ctx := context.Background()

	cases := []struct {
		actor, object, action string
		want                  error
	}{
		{"alice", ObjectBackup, ActionImport, nil},
		{"alice", ObjectInvoice, ActionDelete, nil},
		{"bob", ObjectInvoice, ActionCreate, nil},
		{"bob", ObjectInvoice, ActionPay, nil},
		{"bob", ObjectProduct, ActionView, nil},
		{"bob", ObjectInvoice, ActionDelete, ErrForbidden},
		{"bob", ObjectBackup, ActionExport, ErrForbidden},
		{"carol", ObjectCustomer, ActionView, nil},
		{"carol", ObjectCustomer, ActionCreate, ErrForbidden},
		{"mallory", ObjectProduct, ActionView, ErrForbidden},
		{"", ObjectProduct, ActionView, ErrInvalidActor},
		{"alice", "", ActionView, ErrInvalidObject},
		{"alice", ObjectProduct, " ", ErrInvalidAction},
	}
	for _, tc := range cases {
		err := svc.Authorize(ctx, tc.actor, tc.object, tc.action)
		if tc.want == nil {
			assert.NoError(t, err, "%s %s %s", tc.actor, tc.object, tc.action)
			continue
		}
		assert.ErrorIs(t, err, tc.want, "%s %s %s", tc.actor, tc.object, tc.action)
	}
}

func TestNewService_RoleChangeReplacesGrouping(t *testing.T) {
	local := dbtest.OpenLocal(t)

	before := newService(t, local, map[string]string{"bob": RoleAdmin})
	require.NoError(t, before.Authorize(context.Background(), "bob", ObjectInvoice, ActionDelete))

	after := newService(t, local, map[string]string{"bob": RoleViewer})
	assert.ErrorIs(t, after.Authorize(context.Background(), "bob", ObjectInvoice, ActionDelete), ErrForbidden)
	assert.NoError(t, after.Authorize(context.Background(), "bob", ObjectInvoice, ActionView))
}

func TestNewService_UnknownRole(t *testing.T) {
	enforcer, err := NewEnforcer(dbtest.OpenLocal(t))
	require.NoError(t, err)
	_, err = NewService(Params{
		Config:   config.Config{ActorRoles: map[string]string{"dave": "owner"}},
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestSession_OpenModeActsAsLocalAdmin(t *testing.T) {
	svc := newService(t, dbtest.OpenLocal(t), nil)
	require.True(t, svc.Open())

	session := svc.Session("whoever")
	assert.Equal(t, LocalActor, session.CurrentUser())
	assert.True(t, session.HasPermission(ObjectBackup, ActionImport))
}

func TestSession_HasPermission(t *testing.T) {
	svc := newService(t, dbtest.OpenLocal(t), map[string]string{"carol": RoleViewer})

	session := svc.Session(" carol ")
	assert.Equal(t, "carol", session.CurrentUser())
	assert.True(t, session.HasPermission(ObjectInvoice, ActionView))
	assert.False(t, session.HasPermission(ObjectInvoice, ActionCreate))
	assert.False(t, Session{}.HasPermission(ObjectInvoice, ActionView))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newService(t, dbtest.OpenLocal(t), map[string]string{"bob": RoleCashier})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if err := c.Errors.Last(); err != nil {
			switch {
			case errors.Is(err.Err, ErrUnauthorized):
				c.AbortWithStatus(http.StatusUnauthorized)
			default:
				c.AbortWithStatus(http.StatusForbidden)
			}
		}
	})
	r.POST("/invoices", svc.Middleware(ObjectInvoice, ActionCreate), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c))
	})
	r.DELETE("/invoices", svc.Middleware(ObjectInvoice, ActionDelete), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func(method, actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/invoices", nil)
		if actor != "" {
			req.Header.Set(HeaderActor, actor)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	ok := do(http.MethodPost, "bob")
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "bob", ok.Body.String())

	assert.Equal(t, http.StatusForbidden, do(http.MethodDelete, "bob").Code)
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "").Code)
}
