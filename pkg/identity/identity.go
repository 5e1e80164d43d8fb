package identity

import (
	"context"
	"slices"
)

type Role string

const (
	RoleReader     Role = "READER"
	RoleTranslator Role = "TRANSLATOR"
	RoleEditor     Role = "EDITOR"
	RoleQC         Role = "QC"
	RoleUploader   Role = "UPLOADER"
	RoleModerator  Role = "MODERATOR"
	RoleAccountant Role = "ACCOUNTANT"
	RoleAdmin      Role = "ADMIN"
	RoleOwner      Role = "OWNER"
	RoleWorkOwner  Role = "WORK_OWNER"
)

var roles = []Role{
	RoleReader, RoleTranslator, RoleEditor, RoleQC, RoleUploader,
	RoleModerator, RoleAccountant, RoleAdmin, RoleOwner, RoleWorkOwner,
}

func Roles() []Role {
	return slices.Clone(roles)
}

func (r Role) Valid() bool {
	return slices.Contains(roles, r)
}

// Actor is the caller of an operation. Services receive it explicitly.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) Anonymous() bool {
	return a.ID == ""
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok && !a.Anonymous()
}
