package models

import (
	id "docgate/pkg/domain"
	"docgate/pkg/platform/audit"
)

// Source identifies who produced a disposition.
type Source string

const (
	SourceSystem Source = "system"
	SourceMaker  Source = "maker"
)

// Actor is the principal a lifecycle change is attributed to.
type Actor struct {
	ID     id.UserID
	Source Source
}

// SystemActor attributes a change to the automatic pipeline.
func SystemActor() Actor {
	return Actor{ID: id.SystemUserID, Source: SourceSystem}
}

// MakerActor attributes a change to a human reviewer.
func MakerActor(userID id.UserID) Actor {
	return Actor{ID: userID, Source: SourceMaker}
}

// VerifiedAction returns the audit action for a verification by this actor.
func (a Actor) VerifiedAction() audit.Action {
	if a.Source == SourceMaker {
		return audit.ActionVerifiedByMaker
	}
	return audit.ActionVerifiedBySystem
}

// RejectedAction returns the audit action for a rejection by this actor.
func (a Actor) RejectedAction() audit.Action {
	if a.Source == SourceMaker {
		return audit.ActionRejectedByMaker
	}
	return audit.ActionRejectedBySystem
}
