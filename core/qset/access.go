package qset

import "github.com/askuphq/askup/core/user"

// Access describes what an actor may do with a Qset or Question.
type Access struct {
	View   bool
	Edit   bool
	Delete bool
}

// EvalQsetAccess applies the access rules in priority order, first match wins:
//  1. admins get everything;
//  2. organization members get VIEW, and EDIT/DELETE on subsets if they are
//     teachers (organizations themselves stay admin-managed);
//  3. for_any_authenticated grants VIEW to any signed-in user;
//  4. for_unauthenticated grants VIEW to anyone.
//
// actor is nil for anonymous callers. isMember refers to the membership list
// of the Qset's organization (TopID).
func EvalQsetAccess(actor *user.User, isMember bool, qs Qset) Access {
	switch {
	case actor != nil && actor.IsAdmin():
		return Access{View: true, Edit: true, Delete: true}
	case actor != nil && isMember:
		manage := actor.IsTeacher() && !qs.IsOrganization()
		return Access{View: true, Edit: manage, Delete: manage}
	case actor != nil && qs.ForAnyAuthenticated:
		return Access{View: true}
	case qs.ForUnauthenticated:
		return Access{View: true}
	}
	return Access{}
}

// EvalQuestionAccess extends EvalQsetAccess with question ownership: a member
// may always edit and delete their own questions.
func EvalQuestionAccess(actor *user.User, isMember bool, qs Qset, q Question) Access {
	acc := EvalQsetAccess(actor, isMember, qs)
	if actor != nil && isMember && q.AuthorID == actor.ID {
		acc.Edit = true
		acc.Delete = true
	}
	return acc
}
