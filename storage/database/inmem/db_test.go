package inmemdb

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/askuphq/askup/core/qset"
	"github.com/askuphq/askup/core/user"
)

// A failed cascade delete must leave every mutated table as it was,
// including answers and membership rows.
func TestDB_deleteRollbackRestoresCascadedRows(t *testing.T) {
	db, err := Open()
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	svc := qset.NewService(NewQsetRepository(db))
	ctx := context.Background()

	admin := user.User{ID: "admin", Roles: user.AdminRoles}
	teacher := user.User{ID: "teacher", Roles: user.TeacherRoles}
	student := user.User{ID: "student", Roles: user.StudentRoles}

	org, err := svc.CreateQset(ctx, &admin, qset.NewQset{Name: "Org"})
	if err != nil {
		t.Fatalf("CreateQset(): %v", err)
	}
	for _, id := range []string{teacher.ID, student.ID} {
		if err = svc.AddMember(ctx, &admin, org.ID, id); err != nil {
			t.Fatalf("AddMember(%q): %v", id, err)
		}
	}
	sub, err := svc.CreateQset(ctx, &teacher, qset.NewQset{Name: "Sub", ParentID: org.ID})
	if err != nil {
		t.Fatalf("CreateQset(): %v", err)
	}
	q, err := svc.CreateQuestion(ctx, &teacher, qset.NewQuestion{QsetID: sub.ID, Text: "What is DNA?", AnswerText: "x"})
	if err != nil {
		t.Fatalf("CreateQuestion(): %v", err)
	}
	if _, err = svc.CastVote(ctx, &student, q.ID, 1); err != nil {
		t.Fatalf("CastVote(): %v", err)
	}
	if _, err = svc.CreateAnswer(ctx, &student, qset.NewAnswer{QuestionID: q.ID, Text: "genetic code", SelfEvaluation: qset.EvaluationCorrect}); err != nil {
		t.Fatalf("CreateAnswer(): %v", err)
	}

	fault := errors.New("boom")
	PropagationFault = func(qsetID string) error {
		if qsetID == org.ID {
			return fault
		}
		return nil
	}
	defer func() { PropagationFault = nil }()

	if err = svc.DeleteQset(ctx, &admin, sub.ID); errors.Cause(err) != fault {
		t.Fatalf("DeleteQset() error = %v, want %v", err, fault)
	}

	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if len(db.qsets) != 2 {
		t.Errorf("len(qsets) = %d, want 2", len(db.qsets))
	}
	if len(db.questions) != 1 {
		t.Errorf("len(questions) = %d, want 1", len(db.questions))
	}
	if len(db.answers) != 1 {
		t.Errorf("len(answers) = %d, want 1", len(db.answers))
	}
	if len(db.votes) != 1 {
		t.Errorf("len(votes) = %d, want 1", len(db.votes))
	}
	if len(db.members[org.ID]) != 2 {
		t.Errorf("len(members[org]) = %d, want 2", len(db.members[org.ID]))
	}
}
