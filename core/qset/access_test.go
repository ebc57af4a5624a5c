package qset

import (
	"testing"

	"github.com/askuphq/askup/core/user"
)

var (
	adminUsr   = user.User{ID: "adm", Roles: user.AdminRoles}
	teacherUsr = user.User{ID: "tea", Roles: user.TeacherRoles}
	studentUsr = user.User{ID: "stu", Roles: user.StudentRoles}
)

func TestEvalQsetAccess(t *testing.T) {
	org := Qset{ID: "org", TopID: "org"}
	subset := Qset{ID: "sub", ParentID: "org", TopID: "org"}
	authedSubset := Qset{ID: "sub2", ParentID: "org", TopID: "org", ForAnyAuthenticated: true}
	publicSubset := Qset{ID: "sub3", ParentID: "org", TopID: "org", ForUnauthenticated: true}

	tests := []struct {
		name     string
		actor    *user.User
		isMember bool
		qs       Qset
		want     Access
	}{
		{name: "admin gets everything", actor: &adminUsr, qs: subset, want: Access{View: true, Edit: true, Delete: true}},
		{name: "admin on organization", actor: &adminUsr, qs: org, want: Access{View: true, Edit: true, Delete: true}},
		{name: "teacher member manages subsets", actor: &teacherUsr, isMember: true, qs: subset, want: Access{View: true, Edit: true, Delete: true}},
		{name: "teacher member cannot manage the organization", actor: &teacherUsr, isMember: true, qs: org, want: Access{View: true}},
		{name: "student member only views", actor: &studentUsr, isMember: true, qs: subset, want: Access{View: true}},
		{name: "non-member authenticated on private qset", actor: &studentUsr, qs: subset, want: Access{}},
		{name: "non-member authenticated on for_any_authenticated", actor: &studentUsr, qs: authedSubset, want: Access{View: true}},
		{name: "anonymous on for_any_authenticated", qs: authedSubset, want: Access{}},
		{name: "anonymous on for_unauthenticated", qs: publicSubset, want: Access{View: true}},
		{name: "anonymous on private qset", qs: subset, want: Access{}},
		{name: "membership beats visibility flags", actor: &studentUsr, isMember: true, qs: publicSubset, want: Access{View: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvalQsetAccess(tt.actor, tt.isMember, tt.qs); got != tt.want {
				t.Errorf("EvalQsetAccess() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEvalQuestionAccess(t *testing.T) {
	subset := Qset{ID: "sub", ParentID: "org", TopID: "org"}
	own := Question{ID: "q1", QsetID: "sub", AuthorID: studentUsr.ID}
	other := Question{ID: "q2", QsetID: "sub", AuthorID: "someone-else"}

	tests := []struct {
		name     string
		actor    *user.User
		isMember bool
		q        Question
		want     Access
	}{
		{name: "member edits own question", actor: &studentUsr, isMember: true, q: own, want: Access{View: true, Edit: true, Delete: true}},
		{name: "member cannot edit another's question", actor: &studentUsr, isMember: true, q: other, want: Access{View: true}},
		{name: "ownership without membership grants nothing", actor: &studentUsr, q: own, want: Access{}},
		{name: "admin on any question", actor: &adminUsr, q: other, want: Access{View: true, Edit: true, Delete: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvalQuestionAccess(tt.actor, tt.isMember, subset, tt.q); got != tt.want {
				t.Errorf("EvalQuestionAccess() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
