package qset_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/qset"
	"github.com/askuphq/askup/core/user"
	inmemdb "github.com/askuphq/askup/storage/database/inmem"
)

var (
	admin    = user.User{ID: "admin", Roles: user.AdminRoles}
	teacher  = user.User{ID: "teacher", Roles: user.TeacherRoles}
	student  = user.User{ID: "student", Roles: user.StudentRoles}
	student2 = user.User{ID: "student2", Roles: user.StudentRoles}
	outsider = user.User{ID: "outsider", Roles: user.StudentRoles}
)

func setup(t *testing.T) qset.ServiceInterface {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	return qset.NewService(inmemdb.NewQsetRepository(db))
}

func createQset(t *testing.T, svc qset.ServiceInterface, actor *user.User, name, parentID string, kind qset.Kind) qset.Qset {
	t.Helper()
	qs, err := svc.CreateQset(context.Background(), actor, qset.NewQset{Name: name, ParentID: parentID, Kind: kind})
	if err != nil {
		t.Fatalf("CreateQset(%q): %v", name, err)
	}
	return qs
}

func addMember(t *testing.T, svc qset.ServiceInterface, orgID string, userIDs ...string) {
	t.Helper()
	for _, id := range userIDs {
		if err := svc.AddMember(context.Background(), &admin, orgID, id); err != nil {
			t.Fatalf("AddMember(%q): %v", id, err)
		}
	}
}

func createQuestion(t *testing.T, svc qset.ServiceInterface, actor *user.User, qsetID, text string) qset.Question {
	t.Helper()
	q, err := svc.CreateQuestion(context.Background(), actor, qset.NewQuestion{QsetID: qsetID, Text: text, AnswerText: "42"})
	if err != nil {
		t.Fatalf("CreateQuestion(%q): %v", text, err)
	}
	return q
}

func wantCount(t *testing.T, svc qset.ServiceInterface, qsetID string, want int) {
	t.Helper()
	count, err := svc.QuestionsCount(context.Background(), qsetID)
	if err != nil {
		t.Fatalf("QuestionsCount(%q): %v", qsetID, err)
	}
	if count != want {
		t.Errorf("QuestionsCount(%q) = %d, want %d", qsetID, count, want)
	}
}

func Test_service_CreateQset(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID)

	if org.TopID != org.ID {
		t.Errorf("organization TopID = %q, want its own id", org.TopID)
	}

	t.Run("only admins create organizations", func(t *testing.T) {
		if _, err := svc.CreateQset(ctx, &teacher, qset.NewQset{Name: "Rogue Org"}); err != qset.ErrPermission {
			t.Errorf("CreateQset() error = %v, want %v", err, qset.ErrPermission)
		}
		if _, err := svc.CreateQset(ctx, nil, qset.NewQset{Name: "Anon Org"}); err != qset.ErrPermission {
			t.Errorf("CreateQset() error = %v, want %v", err, qset.ErrPermission)
		}
	})

	t.Run("teacher member creates subsets", func(t *testing.T) {
		sub := createQset(t, svc, &teacher, "Biology", org.ID, qset.KindMixed)
		if sub.ParentID != org.ID {
			t.Errorf("ParentID = %q, want %q", sub.ParentID, org.ID)
		}
		if sub.TopID != org.ID {
			t.Errorf("TopID = %q, want %q", sub.TopID, org.ID)
		}
	})

	t.Run("student member may not", func(t *testing.T) {
		if _, err := svc.CreateQset(ctx, &student, qset.NewQset{Name: "Nope", ParentID: org.ID}); err != qset.ErrPermission {
			t.Errorf("CreateQset() error = %v, want %v", err, qset.ErrPermission)
		}
	})

	t.Run("duplicate sibling name", func(t *testing.T) {
		_, err := svc.CreateQset(ctx, &teacher, qset.NewQset{Name: "Biology", ParentID: org.ID})
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("CreateQset() error = %v, want a validation error", err)
		}
	})

	t.Run("same name under another parent is fine", func(t *testing.T) {
		other := createQset(t, svc, &teacher, "Chemistry", org.ID, qset.KindMixed)
		createQset(t, svc, &teacher, "Biology", other.ID, qset.KindMixed)
	})

	t.Run("questions-only parent rejects subsets", func(t *testing.T) {
		leaf := createQset(t, svc, &teacher, "Leaf", org.ID, qset.KindQuestionsOnly)
		if _, err := svc.CreateQset(ctx, &teacher, qset.NewQset{Name: "Child", ParentID: leaf.ID}); err != qset.ErrInvalidKind {
			t.Errorf("CreateQset() error = %v, want %v", err, qset.ErrInvalidKind)
		}
	})
}

func Test_service_aggregatePropagation(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID)
	bio := createQset(t, svc, &teacher, "Biology", org.ID, qset.KindMixed)
	cells := createQset(t, svc, &teacher, "Cells", bio.ID, qset.KindMixed)
	chem := createQset(t, svc, &teacher, "Chemistry", org.ID, qset.KindMixed)

	q1 := createQuestion(t, svc, &student, cells.ID, "What is a ribosome?")
	createQuestion(t, svc, &student, cells.ID, "What is mitosis?")
	createQuestion(t, svc, &student, bio.ID, "What is a species?")

	// creation propagates up the whole chain
	wantCount(t, svc, cells.ID, 2)
	wantCount(t, svc, bio.ID, 3)
	wantCount(t, svc, org.ID, 3)
	wantCount(t, svc, chem.ID, 0)

	// moving a question adjusts both chains
	if err := svc.MoveQuestion(ctx, &teacher, q1.ID, chem.ID); err != nil {
		t.Fatalf("MoveQuestion(): %v", err)
	}
	wantCount(t, svc, cells.ID, 1)
	wantCount(t, svc, bio.ID, 2)
	wantCount(t, svc, chem.ID, 1)
	wantCount(t, svc, org.ID, 3)

	// moving a subtree carries its count along
	if err := svc.MoveQset(ctx, &teacher, cells.ID, chem.ID); err != nil {
		t.Fatalf("MoveQset(): %v", err)
	}
	wantCount(t, svc, bio.ID, 1)
	wantCount(t, svc, chem.ID, 2)
	wantCount(t, svc, org.ID, 3)

	// deleting a subtree decrements only its ancestors
	if err := svc.DeleteQset(ctx, &teacher, cells.ID); err != nil {
		t.Fatalf("DeleteQset(): %v", err)
	}
	wantCount(t, svc, chem.ID, 1)
	wantCount(t, svc, bio.ID, 1)
	wantCount(t, svc, org.ID, 2)

	// deleting a question decrements the chain
	q3, err := svc.ListChildren(ctx, &teacher, bio.ID, qset.FilterAll)
	if err != nil {
		t.Fatalf("ListChildren(): %v", err)
	}
	if len(q3.Questions) != 1 {
		t.Fatalf("len(Questions) = %d, want 1", len(q3.Questions))
	}
	if err = svc.DeleteQuestion(ctx, &teacher, q3.Questions[0].ID); err != nil {
		t.Fatalf("DeleteQuestion(): %v", err)
	}
	wantCount(t, svc, bio.ID, 0)
	wantCount(t, svc, org.ID, 1)
}

func Test_service_concurrentCreates(t *testing.T) {
	svc := setup(t)

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID)
	left := createQset(t, svc, &teacher, "Left", org.ID, qset.KindMixed)
	right := createQset(t, svc, &teacher, "Right", org.ID, qset.KindMixed)

	const perSide = 20
	errc := make(chan error, 2*perSide)
	var wg sync.WaitGroup
	for _, side := range []qset.Qset{left, right} {
		wg.Add(1)
		go func(qs qset.Qset) {
			defer wg.Done()
			for i := 0; i < perSide; i++ {
				text := fmt.Sprintf("question %d in %s", i, qs.Name)
				if _, err := svc.CreateQuestion(context.Background(), &student, qset.NewQuestion{QsetID: qs.ID, Text: text, AnswerText: "x"}); err != nil {
					errc <- err
				}
			}
		}(side)
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		t.Errorf("CreateQuestion(): %v", err)
	}

	wantCount(t, svc, left.ID, perSide)
	wantCount(t, svc, right.ID, perSide)
	wantCount(t, svc, org.ID, 2*perSide)
}

func Test_service_MoveQset_cycles(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID)
	a := createQset(t, svc, &teacher, "A", org.ID, qset.KindMixed)
	b := createQset(t, svc, &teacher, "B", a.ID, qset.KindMixed)
	c := createQset(t, svc, &teacher, "C", b.ID, qset.KindMixed)

	tests := []struct {
		name    string
		id      string
		target  string
		wantErr error
	}{
		{name: "onto itself", id: a.ID, target: a.ID, wantErr: qset.ErrCycle},
		{name: "onto its child", id: a.ID, target: b.ID, wantErr: qset.ErrCycle},
		{name: "onto a deep descendant", id: a.ID, target: c.ID, wantErr: qset.ErrCycle},
		{name: "sideways is fine", id: c.ID, target: a.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.MoveQset(ctx, &teacher, tt.id, tt.target); errors.Cause(err) != tt.wantErr {
				t.Errorf("MoveQset() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_service_MoveQset_permissions(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID)
	a := createQset(t, svc, &teacher, "A", org.ID, qset.KindMixed)

	t.Run("move to the current parent still requires edit rights", func(t *testing.T) {
		for _, actor := range []*user.User{&student, &outsider, nil} {
			if err := svc.MoveQset(ctx, actor, a.ID, org.ID); errors.Cause(err) != qset.ErrPermission {
				t.Errorf("MoveQset() error = %v, want %v", err, qset.ErrPermission)
			}
		}
	})

	t.Run("authorized move to the current parent is a no-op", func(t *testing.T) {
		if err := svc.MoveQset(ctx, &teacher, a.ID, org.ID); err != nil {
			t.Errorf("MoveQset(): %v", err)
		}
	})
}

func Test_service_propagationFaultRollsBack(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID)
	bio := createQset(t, svc, &teacher, "Biology", org.ID, qset.KindMixed)
	cells := createQset(t, svc, &teacher, "Cells", bio.ID, qset.KindMixed)

	createQuestion(t, svc, &student, cells.ID, "seed")

	// fail when the propagation reaches the organization root
	fault := errors.New("boom")
	inmemdb.PropagationFault = func(qsetID string) error {
		if qsetID == org.ID {
			return fault
		}
		return nil
	}
	defer func() { inmemdb.PropagationFault = nil }()

	if _, err := svc.CreateQuestion(ctx, &student, qset.NewQuestion{QsetID: cells.ID, Text: "doomed", AnswerText: "x"}); errors.Cause(err) != fault {
		t.Fatalf("CreateQuestion() error = %v, want %v", err, fault)
	}

	inmemdb.PropagationFault = nil

	// nothing moved: neither the write nor any partial count survived
	wantCount(t, svc, cells.ID, 1)
	wantCount(t, svc, bio.ID, 1)
	wantCount(t, svc, org.ID, 1)

	children, err := svc.ListChildren(ctx, &teacher, cells.ID, qset.FilterAll)
	if err != nil {
		t.Fatalf("ListChildren(): %v", err)
	}
	if len(children.Questions) != 1 {
		t.Errorf("len(Questions) = %d, want 1", len(children.Questions))
	}
}

func Test_service_topIDConsistencyAfterCrossOrgMove(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	orgA := createQset(t, svc, &admin, "Org A", "", qset.KindMixed)
	orgB := createQset(t, svc, &admin, "Org B", "", qset.KindMixed)
	addMember(t, svc, orgA.ID, teacher.ID, student.ID)
	addMember(t, svc, orgB.ID, teacher.ID)

	bio := createQset(t, svc, &teacher, "Biology", orgA.ID, qset.KindMixed)
	cells := createQset(t, svc, &teacher, "Cells", bio.ID, qset.KindMixed)
	createQuestion(t, svc, &student, cells.ID, "What is a cell?")

	if err := svc.MoveQset(ctx, &teacher, bio.ID, orgB.ID); err != nil {
		t.Fatalf("MoveQset(): %v", err)
	}

	for _, id := range []string{bio.ID, cells.ID} {
		qs, err := svc.GetQset(ctx, &teacher, id)
		if err != nil {
			t.Fatalf("GetQset(%q): %v", id, err)
		}
		if qs.TopID != orgB.ID {
			t.Errorf("TopID of %q = %q, want %q", qs.Name, qs.TopID, orgB.ID)
		}
	}
	wantCount(t, svc, orgA.ID, 0)
	wantCount(t, svc, orgB.ID, 1)
}

func Test_service_permissions(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID)

	private := createQset(t, svc, &teacher, "Private", org.ID, qset.KindMixed)
	authed, err := svc.CreateQset(ctx, &teacher, qset.NewQset{Name: "Authed", ParentID: org.ID, ForAnyAuthenticated: true})
	if err != nil {
		t.Fatalf("CreateQset(): %v", err)
	}
	public, err := svc.CreateQset(ctx, &teacher, qset.NewQset{Name: "Public", ParentID: org.ID, ForUnauthenticated: true})
	if err != nil {
		t.Fatalf("CreateQset(): %v", err)
	}

	tests := []struct {
		name    string
		actor   *user.User
		qsetID  string
		wantErr error
	}{
		{name: "anonymous on public", qsetID: public.ID},
		{name: "anonymous on authed-only", qsetID: authed.ID, wantErr: qset.ErrPermission},
		{name: "anonymous on private", qsetID: private.ID, wantErr: qset.ErrPermission},
		{name: "outsider on authed-only", actor: &outsider, qsetID: authed.ID},
		{name: "outsider on private", actor: &outsider, qsetID: private.ID, wantErr: qset.ErrPermission},
		{name: "member on private", actor: &student, qsetID: private.ID},
		{name: "admin on private", actor: &admin, qsetID: private.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.GetQset(ctx, tt.actor, tt.qsetID); err != tt.wantErr {
				t.Errorf("GetQset() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("outsiders cannot ask questions even on public qsets", func(t *testing.T) {
		if _, err := svc.CreateQuestion(ctx, &outsider, qset.NewQuestion{QsetID: public.ID, Text: "hi?", AnswerText: "x"}); err != qset.ErrPermission {
			t.Errorf("CreateQuestion() error = %v, want %v", err, qset.ErrPermission)
		}
	})

	t.Run("students cannot edit qsets", func(t *testing.T) {
		name := "Renamed"
		if _, err := svc.UpdateQset(ctx, &student, private.ID, qset.UpdateQset{Name: name}); err != qset.ErrPermission {
			t.Errorf("UpdateQset() error = %v, want %v", err, qset.ErrPermission)
		}
	})
}

func Test_service_votes(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID, student2.ID)
	sub := createQset(t, svc, &teacher, "Sub", org.ID, qset.KindMixed)
	q := createQuestion(t, svc, &student, sub.ID, "Why is the sky blue?")

	t.Run("no self votes", func(t *testing.T) {
		if _, err := svc.CastVote(ctx, &student, q.ID, 1); err != qset.ErrOwnQuestionVote {
			t.Errorf("CastVote() error = %v, want %v", err, qset.ErrOwnQuestionVote)
		}
	})

	t.Run("vote value is constrained", func(t *testing.T) {
		_, err := svc.CastVote(ctx, &student2, q.ID, 3)
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("CastVote() error = %v, want a validation error", err)
		}
	})

	t.Run("one vote per member", func(t *testing.T) {
		total, err := svc.CastVote(ctx, &student2, q.ID, 1)
		if err != nil {
			t.Fatalf("CastVote(): %v", err)
		}
		if total != 1 {
			t.Errorf("CastVote() total = %d, want 1", total)
		}
		if _, err = svc.CastVote(ctx, &student2, q.ID, -1); err != qset.ErrAlreadyVoted {
			t.Errorf("CastVote() error = %v, want %v", err, qset.ErrAlreadyVoted)
		}
	})

	t.Run("outsiders cannot vote", func(t *testing.T) {
		if _, err := svc.CastVote(ctx, &outsider, q.ID, 1); err != qset.ErrPermission {
			t.Errorf("CastVote() error = %v, want %v", err, qset.ErrPermission)
		}
	})
}

func Test_service_duplicateQuestions(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID)
	a := createQset(t, svc, &teacher, "A", org.ID, qset.KindMixed)
	b := createQset(t, svc, &teacher, "B", org.ID, qset.KindMixed)

	createQuestion(t, svc, &student, a.ID, "What is entropy?")

	t.Run("same text in the same qset", func(t *testing.T) {
		_, err := svc.CreateQuestion(ctx, &teacher, qset.NewQuestion{QsetID: a.ID, Text: "What is entropy?", AnswerText: "x"})
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("CreateQuestion() error = %v, want a validation error", err)
		}
	})

	t.Run("same text in a sibling qset is fine", func(t *testing.T) {
		createQuestion(t, svc, &student, b.ID, "What is entropy?")
	})
}

func Test_service_Breadcrumbs(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID)
	a := createQset(t, svc, &teacher, "A", org.ID, qset.KindMixed)
	b := createQset(t, svc, &teacher, "B", a.ID, qset.KindMixed)

	crumbs, err := svc.Breadcrumbs(ctx, &teacher, b.ID)
	if err != nil {
		t.Fatalf("Breadcrumbs(): %v", err)
	}
	want := []qset.Crumb{
		{ID: org.ID, Name: "Org", IsOrganization: true},
		{ID: a.ID, Name: "A"},
	}
	if len(crumbs) != len(want) {
		t.Fatalf("len(crumbs) = %d, want %d", len(crumbs), len(want))
	}
	for i := range want {
		if crumbs[i] != want[i] {
			t.Errorf("crumbs[%d] = %+v, want %+v", i, crumbs[i], want[i])
		}
	}
}

func Test_service_ListChildren_authorScrubbing(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID, student2.ID)
	hidden := createQset(t, svc, &teacher, "Hidden Authors", org.ID, qset.KindMixed)

	createQuestion(t, svc, &student, hidden.ID, "Who wrote this?")

	t.Run("authors hidden from other members", func(t *testing.T) {
		children, err := svc.ListChildren(ctx, &student2, hidden.ID, qset.FilterAll)
		if err != nil {
			t.Fatalf("ListChildren(): %v", err)
		}
		if got := children.Questions[0].AuthorID; got != "" {
			t.Errorf("AuthorID = %q, want scrubbed", got)
		}
	})

	t.Run("own author id survives", func(t *testing.T) {
		children, err := svc.ListChildren(ctx, &student, hidden.ID, qset.FilterAll)
		if err != nil {
			t.Fatalf("ListChildren(): %v", err)
		}
		if got := children.Questions[0].AuthorID; got != student.ID {
			t.Errorf("AuthorID = %q, want %q", got, student.ID)
		}
	})

	t.Run("teachers see authors", func(t *testing.T) {
		children, err := svc.ListChildren(ctx, &teacher, hidden.ID, qset.FilterAll)
		if err != nil {
			t.Fatalf("ListChildren(): %v", err)
		}
		if got := children.Questions[0].AuthorID; got != student.ID {
			t.Errorf("AuthorID = %q, want %q", got, student.ID)
		}
	})

	t.Run("mine filter", func(t *testing.T) {
		createQuestion(t, svc, &student2, hidden.ID, "Another one")
		children, err := svc.ListChildren(ctx, &student2, hidden.ID, qset.FilterMine)
		if err != nil {
			t.Fatalf("ListChildren(): %v", err)
		}
		if len(children.Questions) != 1 {
			t.Fatalf("len(Questions) = %d, want 1", len(children.Questions))
		}
		if children.Questions[0].AuthorID != student2.ID {
			t.Errorf("AuthorID = %q, want %q", children.Questions[0].AuthorID, student2.ID)
		}
	})
}

func Test_service_ListChildren_voteOrdering(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID, student2.ID)
	sub := createQset(t, svc, &teacher, "Sub", org.ID, qset.KindMixed)

	createQuestion(t, svc, &student, sub.ID, "What is ATP?")
	dna := createQuestion(t, svc, &student, sub.ID, "What is DNA?")
	rna := createQuestion(t, svc, &student, sub.ID, "What is RNA?")

	// best-rated first, ties by text
	for _, v := range []struct {
		voter      *user.User
		questionID string
	}{
		{&student2, rna.ID},
		{&teacher, rna.ID},
		{&student2, dna.ID},
	} {
		if _, err := svc.CastVote(ctx, v.voter, v.questionID, 1); err != nil {
			t.Fatalf("CastVote(): %v", err)
		}
	}

	children, err := svc.ListChildren(ctx, &teacher, sub.ID, qset.FilterAll)
	if err != nil {
		t.Fatalf("ListChildren(): %v", err)
	}
	want := []string{"What is RNA?", "What is DNA?", "What is ATP?"}
	if len(children.Questions) != len(want) {
		t.Fatalf("len(Questions) = %d, want %d", len(children.Questions), len(want))
	}
	for i, text := range want {
		if children.Questions[i].Text != text {
			t.Errorf("Questions[%d].Text = %q, want %q", i, children.Questions[i].Text, text)
		}
	}
}

func Test_service_UserStats(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	org := createQset(t, svc, &admin, "Org", "", qset.KindMixed)
	addMember(t, svc, org.ID, teacher.ID, student.ID, student2.ID)
	sub := createQset(t, svc, &teacher, "Sub", org.ID, qset.KindMixed)

	q1 := createQuestion(t, svc, &student, sub.ID, "Q1?")
	createQuestion(t, svc, &student, sub.ID, "Q2?")

	if _, err := svc.CastVote(ctx, &student2, q1.ID, 1); err != nil {
		t.Fatalf("CastVote(): %v", err)
	}
	if _, err := svc.CreateAnswer(ctx, &student, qset.NewAnswer{QuestionID: q1.ID, Text: "because", SelfEvaluation: qset.EvaluationCorrect}); err != nil {
		t.Fatalf("CreateAnswer(): %v", err)
	}
	if _, err := svc.CreateAnswer(ctx, &student, qset.NewAnswer{QuestionID: q1.ID, Text: "dunno", SelfEvaluation: qset.EvaluationWrong}); err != nil {
		t.Fatalf("CreateAnswer(): %v", err)
	}

	stats, err := svc.UserStats(ctx, &teacher, org.ID, student.ID)
	if err != nil {
		t.Fatalf("UserStats(): %v", err)
	}
	want := qset.Stats{Questions: 2, Score: 1, CorrectAnswers: 1, IncorrectAnswers: 1}
	if stats != want {
		t.Errorf("UserStats() = %+v, want %+v", stats, want)
	}

	t.Run("outsiders may not peek", func(t *testing.T) {
		if _, err := svc.UserStats(ctx, &outsider, org.ID, student.ID); err != qset.ErrPermission {
			t.Errorf("UserStats() error = %v, want %v", err, qset.ErrPermission)
		}
	})

	t.Run("not an organization", func(t *testing.T) {
		if _, err := svc.UserStats(ctx, &teacher, sub.ID, student.ID); err != qset.ErrNotFound {
			t.Errorf("UserStats() error = %v, want %v", err, qset.ErrNotFound)
		}
	})
}
