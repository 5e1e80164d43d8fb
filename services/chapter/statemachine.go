package chapter

import (
	"gato-backoffice/pkg/access"
	"gato-backoffice/pkg/identity"
	"gato-backoffice/services/catalog"
)

type Action string

const (
	ActionStartTranslation  Action = "START_TRANSLATION"
	ActionSubmitTranslation Action = "SUBMIT_TRANSLATION"
	ActionSubmitEdit        Action = "SUBMIT_EDIT"
	ActionApprove           Action = "QC_APPROVE"
	ActionReject            Action = "QC_REJECT"
	ActionReopen            Action = "REOPEN_EDITING"
	ActionPublish           Action = "PUBLISH"
)

// transition is one edge of the production pipeline. Staff edges may be
// taken by the assigned work staff or by an override role; edges without a
// staff role need chapter:manage.
type transition struct {
	From  WorkStatus
	To    WorkStatus
	Staff catalog.StaffRole
}

var transitions = map[Action]transition{
	ActionStartTranslation:  {From: StatusDraft, To: StatusTranslating},
	ActionSubmitTranslation: {From: StatusTranslating, To: StatusEditing, Staff: catalog.StaffTranslator},
	ActionSubmitEdit:        {From: StatusEditing, To: StatusQCPending, Staff: catalog.StaffEditor},
	ActionApprove:           {From: StatusQCPending, To: StatusReady, Staff: catalog.StaffQC},
	ActionReject:            {From: StatusQCPending, To: StatusEditing, Staff: catalog.StaffQC},
	ActionReopen:            {From: StatusQCRejected, To: StatusEditing, Staff: catalog.StaffEditor},
	ActionPublish:           {From: StatusReady, To: StatusPublished},
}

// Guard is the capability table for pipeline transitions.
type Guard struct {
	access *access.Enforcer
}

func NewGuard(enforcer *access.Enforcer) Guard {
	return Guard{access: enforcer}
}

// Legal reports whether the pipeline has an edge from -> to.
func Legal(from, to WorkStatus) bool {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether a user with the global role and the staff
// roles assigned on the chapter's work may move it from -> to.
func (g Guard) CanTransition(role identity.Role, assigned []catalog.StaffRole, from, to WorkStatus) bool {
	for _, t := range transitions {
		if t.From != from || t.To != to {
			continue
		}
		if g.allowed(role, assigned, t) {
			return true
		}
	}
	return false
}

// CanPerform is CanTransition keyed by action, ignoring the current state.
func (g Guard) CanPerform(role identity.Role, assigned []catalog.StaffRole, a Action) bool {
	t, ok := transitions[a]
	return ok && g.allowed(role, assigned, t)
}

func (g Guard) allowed(role identity.Role, assigned []catalog.StaffRole, t transition) bool {
	if t.Staff == "" {
		return g.access.Can(role, access.ChapterManage)
	}
	for _, r := range assigned {
		if r == t.Staff {
			return true
		}
	}
	return g.access.Can(role, access.ChapterOverride)
}
