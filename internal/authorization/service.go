package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectProduct         = "product"
	ObjectBatch           = "batch"
	ObjectCustomer        = "customer"
	ObjectSupplier        = "supplier"
	ObjectInvoice         = "invoice"
	ObjectPurchaseInvoice = "purchase_invoice"
	ObjectCash            = "cash"
	ObjectWarehouse       = "warehouse"
	ObjectRepresentative  = "representative"
	ObjectPurchaseOrder   = "purchase_order"
	ObjectAdjustment      = "adjustment"
	ObjectDailyClosing    = "daily_closing"
	ObjectCatalog         = "catalog"
	ObjectSync            = "sync"
	ObjectBackup          = "backup"
	ObjectSettings        = "settings"
)

const (
	ActionView    = "view"
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionPay     = "pay"
	ActionCancel  = "cancel"
	ActionApprove = "approve"
	ActionRun     = "run"
	ActionExport  = "export"
	ActionImport  = "import"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
	RoleViewer  = "viewer"

	// LocalActor is used when no upstream proxy names the caller.
	LocalActor = "local"
)

var ledgerObjects = []string{
	ObjectProduct,
	ObjectBatch,
	ObjectCustomer,
	ObjectSupplier,
	ObjectInvoice,
	ObjectPurchaseInvoice,
	ObjectCash,
	ObjectWarehouse,
	ObjectRepresentative,
	ObjectPurchaseOrder,
	ObjectAdjustment,
	ObjectDailyClosing,
	ObjectCatalog,
	ObjectSync,
	ObjectSettings,
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

// Service answers hasPermission for actors named by the upstream proxy.
// Without any configured actor roles every caller acts as LocalActor with
// the admin role.
type Service struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	roles    map[string]string
}

func NewEnforcer(local *db.Local) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(local.DB)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) (*Service, error) {
	s := &Service{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		roles:    make(map[string]string, len(p.Config.ActorRoles)),
	}

	roles := p.Config.ActorRoles
	if len(roles) == 0 {
		roles = map[string]string{LocalActor: RoleAdmin}
	}
	for actor, role := range roles {
		actor = strings.TrimSpace(actor)
		role = strings.ToLower(strings.TrimSpace(role))
		if actor == "" {
			continue
		}
		if role != RoleAdmin && role != RoleCashier && role != RoleViewer {
			return nil, ErrUnknownRole
		}
		if err := s.ensureGrouping(actor, roleSubject(role)); err != nil {
			return nil, err
		}
		s.roles[actor] = role
	}
	return s, nil
}

// Open reports whether the service runs without an upstream proxy.
func (s *Service) Open() bool {
	_, ok := s.roles[LocalActor]
	return ok && len(s.roles) == 1
}

// Role returns the role bound to actor, if any.
func (s *Service) Role(actor string) (string, bool) {
	role, ok := s.roles[strings.TrimSpace(actor)]
	return role, ok
}

func (s *Service) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	if _, ok := s.roles[actor]; !ok {
		s.log.Debug("unknown actor", zap.String("actor", actor))
		return ErrForbidden
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("permission denied",
			zap.String("actor", actor),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *Service) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func roleSubject(role string) string {
	return "role:" + role
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleSubject(RoleAdmin), "*", "*"},

		{roleSubject(RoleCashier), ObjectInvoice, ActionCreate},
		{roleSubject(RoleCashier), ObjectInvoice, ActionUpdate},
		{roleSubject(RoleCashier), ObjectInvoice, ActionPay},
		{roleSubject(RoleCashier), ObjectCustomer, ActionCreate},
		{roleSubject(RoleCashier), ObjectCustomer, ActionUpdate},
		{roleSubject(RoleCashier), ObjectCash, ActionCreate},
		{roleSubject(RoleCashier), ObjectAdjustment, ActionCreate},
		{roleSubject(RoleCashier), ObjectDailyClosing, ActionCreate},
	}
	for _, object := range ledgerObjects {
		policies = append(policies,
			[]string{roleSubject(RoleCashier), object, ActionView},
			[]string{roleSubject(RoleViewer), object, ActionView},
		)
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
