package access

import (
	"sync"

	"gato-backoffice/pkg/config"
	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("access", fx.Provide(New))

type Capability struct {
	Object string
	Action string
}

var (
	LedgerAdjust    = Capability{"ledger", "adjust"}
	PromoManage     = Capability{"promo", "manage"}
	UserManage      = Capability{"user", "manage"}
	CosmeticManage  = Capability{"cosmetic", "manage"}
	ModerationAct   = Capability{"moderation", "act"}
	WorkCreate      = Capability{"work", "create"}
	WorkDelete      = Capability{"work", "delete"}
	WorkStaff       = Capability{"work", "staff"}
	ChapterManage   = Capability{"chapter", "manage"}
	ChapterOverride = Capability{"chapter", "override"}
	FinanceRead     = Capability{"finance", "read"}
)

const defaultModelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

func grant(c Capability, roles ...identity.Role) [][]string {
	rules := make([][]string, 0, len(roles))
	for _, r := range roles {
		rules = append(rules, []string{string(r), c.Object, c.Action})
	}
	return rules
}

// DefaultPolicy is the global role capability table.
func DefaultPolicy() [][]string {
	var rules [][]string
	rules = append(rules, grant(LedgerAdjust, identity.RoleOwner, identity.RoleAdmin)...)
	rules = append(rules, grant(PromoManage, identity.RoleOwner)...)
	rules = append(rules, grant(UserManage, identity.RoleOwner)...)
	rules = append(rules, grant(CosmeticManage, identity.RoleOwner, identity.RoleAdmin)...)
	rules = append(rules, grant(ModerationAct, identity.RoleOwner, identity.RoleModerator)...)
	rules = append(rules, grant(WorkCreate, identity.RoleOwner, identity.RoleAdmin, identity.RoleUploader)...)
	rules = append(rules, grant(WorkDelete, identity.RoleOwner, identity.RoleAdmin)...)
	rules = append(rules, grant(WorkStaff, identity.RoleOwner, identity.RoleAdmin)...)
	rules = append(rules, grant(ChapterManage, identity.RoleOwner, identity.RoleAdmin, identity.RoleUploader)...)
	rules = append(rules, grant(ChapterOverride, identity.RoleOwner, identity.RoleAdmin, identity.RoleUploader)...)
	rules = append(rules, grant(FinanceRead, identity.RoleOwner, identity.RoleAccountant)...)
	return rules
}

// Enforcer answers "may this role do that" for global roles. Work-scoped
// staff assignments are checked by the chapter service itself.
type Enforcer struct {
	mu sync.Mutex
	e  *casbin.Enforcer
}

// New loads ACCESS_CONTROL.MODEL/POLICY files when both are configured and
// otherwise uses the built-in table.
func New(cfg *config.Config) (*Enforcer, error) {
	if cfg != nil && cfg.AccessControl.Model != "" && cfg.AccessControl.Policy != "" {
		e, err := casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
		if err != nil {
			zap.L().Error("failed to load access control policy", zap.Error(err))
			return nil, err
		}
		return &Enforcer{e: e}, nil
	}
	return NewDefault()
}

func NewDefault() (*Enforcer, error) {
	m, err := model.NewModelFromString(defaultModelText)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	if _, err := e.AddPolicies(DefaultPolicy()); err != nil {
		return nil, err
	}

	return &Enforcer{e: e}, nil
}

func (a *Enforcer) Can(role identity.Role, c Capability) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	ok, err := a.e.Enforce(string(role), c.Object, c.Action)
	if err != nil {
		zap.L().Error("access enforce failed", zap.String("role", string(role)), zap.String("object", c.Object), zap.Error(err))
		return false
	}
	return ok
}

// Require returns Unauthorized for an anonymous actor and Forbidden when the
// actor's role lacks c.
func (a *Enforcer) Require(actor identity.Actor, c Capability) error {
	if actor.Anonymous() {
		return errutil.Unauthorized("authentication required", nil)
	}
	if !a.Can(actor.Role, c) {
		return errutil.Forbidden("role "+string(actor.Role)+" may not "+c.Action+" "+c.Object, nil)
	}
	return nil
}

// RequireSelfOr lets an actor through for their own user id and otherwise
// requires c.
func (a *Enforcer) RequireSelfOr(actor identity.Actor, userID string, c Capability) error {
	if actor.Anonymous() {
		return errutil.Unauthorized("authentication required", nil)
	}
	if actor.ID == userID {
		return nil
	}
	return a.Require(actor, c)
}
