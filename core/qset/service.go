package qset

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("qset not found")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrDuplicateName     = errors.New("a qset with this name already exists at this level")
	ErrDuplicateQuestion = errors.New("this question already exists in this qset")
	ErrInvalidKind       = errors.New("this qset does not allow this type of children")
	ErrCycle             = errors.New("a qset cannot be moved under itself or one of its descendants")
	ErrPermission        = errors.New("permission denied")
	ErrAlreadyVoted      = errors.New("already voted for this question")
	ErrOwnQuestionVote   = errors.New("cannot vote for your own question")

	// ErrConsistency reports a questions_count aggregate mismatch detected
	// mid-propagation. It aborts the enclosing transaction; there is no
	// repair routine, so it must never be swallowed.
	ErrConsistency = errors.New("questions count aggregate mismatch")
)

type (
	// QuestionQuery filters a question listing within one Qset.
	QuestionQuery struct {
		QsetID          string
		AuthorID        string // only questions by this author
		ExcludeAuthorID string // only questions by other authors
	}

	// Repository is the storage contract of the qset tree.
	//
	// Mutations that touch the questions_count aggregate of more than one
	// Qset (CreateQuestion, DeleteQuestion, MoveQuestion, MoveQset,
	// DeleteQset, CastVote) are transactional: implementations must apply
	// the triggering write and the whole ancestor-chain propagation
	// computed by ChainDeltas atomically, reading each ancestor's current
	// count under the same transaction with row-level locking (or an
	// equivalent), and roll everything back on any failure.
	Repository interface {
		CreateQset(ctx context.Context, qs Qset, exec ...core.DBExecutor) (Qset, error)
		GetQset(ctx context.Context, id string, exec ...core.DBExecutor) (Qset, error)
		// QueryOrganizations returns root qsets, restricted to the given
		// member when memberID is not empty. Name-ordered.
		QueryOrganizations(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]Qset, error)
		ChildQsets(ctx context.Context, parentID string, exec ...core.DBExecutor) ([]Qset, error)
		// CheckQsetNameUniqueness returns ErrDuplicateName when a sibling
		// under parentID (or another root, for an empty parentID) other
		// than the excluded qsets already bears the name.
		CheckQsetNameUniqueness(ctx context.Context, name, parentID string, excluded []Qset, exec ...core.DBExecutor) error
		UpdateQset(ctx context.Context, qs Qset, exec ...core.DBExecutor) (Qset, error)
		MoveQset(ctx context.Context, id, newParentID string) error
		DeleteQset(ctx context.Context, id string) error
		QuestionsCount(ctx context.Context, qsetID string, exec ...core.DBExecutor) (int, error)

		IsMember(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) (bool, error)
		AddMember(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) error
		RemoveMember(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) error

		CreateQuestion(ctx context.Context, q Question) (Question, error)
		GetQuestion(ctx context.Context, id string, exec ...core.DBExecutor) (Question, error)
		QueryQuestions(ctx context.Context, query QuestionQuery, exec ...core.DBExecutor) ([]Question, error)
		UpdateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		DeleteQuestion(ctx context.Context, id string) error
		MoveQuestion(ctx context.Context, id, newQsetID string) error

		CastVote(ctx context.Context, v Vote) (int, error)
		CreateAnswer(ctx context.Context, a Answer, exec ...core.DBExecutor) (Answer, error)
		UserStats(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) (Stats, error)
	}

	ServiceInterface interface {
		CreateQset(ctx context.Context, actor *user.User, nq NewQset) (Qset, error)
		GetQset(ctx context.Context, actor *user.User, id string) (Qset, error)
		UpdateQset(ctx context.Context, actor *user.User, id string, uq UpdateQset) (Qset, error)
		MoveQset(ctx context.Context, actor *user.User, id, newParentID string) error
		DeleteQset(ctx context.Context, actor *user.User, id string) error
		Organizations(ctx context.Context, actor *user.User) ([]Qset, error)
		ListChildren(ctx context.Context, actor *user.User, qsetID string, filter ChildrenFilter) (Children, error)
		QuestionsCount(ctx context.Context, qsetID string) (int, error)
		Breadcrumbs(ctx context.Context, actor *user.User, qsetID string) ([]Crumb, error)
		AddMember(ctx context.Context, actor *user.User, orgID, userID string) error
		RemoveMember(ctx context.Context, actor *user.User, orgID, userID string) error

		CreateQuestion(ctx context.Context, actor *user.User, nq NewQuestion) (Question, error)
		GetQuestion(ctx context.Context, actor *user.User, id string) (Question, error)
		UpdateQuestion(ctx context.Context, actor *user.User, id string, uq UpdateQuestion) (Question, error)
		DeleteQuestion(ctx context.Context, actor *user.User, id string) error
		MoveQuestion(ctx context.Context, actor *user.User, id, newQsetID string) error

		CastVote(ctx context.Context, actor *user.User, questionID string, value int) (int, error)
		CreateAnswer(ctx context.Context, actor *user.User, na NewAnswer) (Answer, error)
		UserStats(ctx context.Context, actor *user.User, orgID, userID string) (Stats, error)
	}

	service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

// access resolves the actor's membership and evaluates the access rules for qs.
func (svc *service) access(ctx context.Context, actor *user.User, qs Qset) (Access, error) {
	isMember, err := svc.isMember(ctx, actor, qs.TopID)
	if err != nil {
		return Access{}, err
	}
	return EvalQsetAccess(actor, isMember, qs), nil
}

func (svc *service) isMember(ctx context.Context, actor *user.User, orgID string) (bool, error) {
	if actor == nil || actor.IsAdmin() {
		return false, nil
	}
	isMember, err := svc.repo.IsMember(ctx, orgID, actor.ID)
	if err != nil {
		return false, errors.Wrap(err, "checking membership")
	}
	return isMember, nil
}

func (svc *service) checkNameUniqueness(ctx context.Context, name, parentID string, excluded ...Qset) error {
	if err := svc.repo.CheckQsetNameUniqueness(ctx, name, parentID, excluded); err != nil {
		if errors.Cause(err) == ErrDuplicateName {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Qset tree

func (svc *service) CreateQset(ctx context.Context, actor *user.User, nq NewQset) (Qset, error) {
	now := time.Now().UTC()
	qs := Qset{
		Name:                nq.Name,
		Kind:                nq.Kind,
		ForAnyAuthenticated: nq.ForAnyAuthenticated,
		ForUnauthenticated:  nq.ForUnauthenticated,
		ShowAuthors:         nq.ShowAuthors,
		OwnQuestionsOnly:    nq.OwnQuestionsOnly,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if nq.ParentID == "" {
		// organizations are created by admins only
		if actor == nil || !actor.IsAdmin() {
			return Qset{}, ErrPermission
		}
		if err := svc.checkNameUniqueness(ctx, nq.Name, ""); err != nil {
			return Qset{}, err
		}
		return svc.repo.CreateQset(ctx, qs)
	}

	parent, err := svc.repo.GetQset(ctx, nq.ParentID)
	if err != nil {
		return Qset{}, err
	}
	acc, err := svc.access(ctx, actor, parent)
	if err != nil {
		return Qset{}, err
	}
	// teachers may grow an organization's tree even though the root
	// itself is admin-managed
	canCreate := acc.Edit || (acc.View && actor != nil && actor.IsTeacher())
	if !canCreate {
		return Qset{}, ErrPermission
	}
	if !parent.Kind.AllowsSubsets() {
		return Qset{}, ErrInvalidKind
	}
	if err = svc.checkNameUniqueness(ctx, nq.Name, parent.ID); err != nil {
		return Qset{}, err
	}

	qs.ParentID = parent.ID
	qs.TopID = parent.TopID
	return svc.repo.CreateQset(ctx, qs)
}

func (svc *service) GetQset(ctx context.Context, actor *user.User, id string) (Qset, error) {
	qs, err := svc.repo.GetQset(ctx, id)
	if err != nil {
		return Qset{}, err
	}
	acc, err := svc.access(ctx, actor, qs)
	if err != nil {
		return Qset{}, err
	}
	if !acc.View {
		return Qset{}, ErrPermission
	}
	return qs, nil
}

func (svc *service) UpdateQset(ctx context.Context, actor *user.User, id string, uq UpdateQset) (Qset, error) {
	qs, err := svc.repo.GetQset(ctx, id)
	if err != nil {
		return Qset{}, err
	}
	acc, err := svc.access(ctx, actor, qs)
	if err != nil {
		return Qset{}, err
	}
	if !acc.Edit {
		return Qset{}, ErrPermission
	}

	if uq.Name != "" && uq.Name != qs.Name {
		if err = svc.checkNameUniqueness(ctx, uq.Name, qs.ParentID, qs); err != nil {
			return Qset{}, err
		}
		qs.Name = uq.Name
	}
	if uq.ForAnyAuthenticated != nil {
		qs.ForAnyAuthenticated = *uq.ForAnyAuthenticated
	}
	if uq.ForUnauthenticated != nil {
		qs.ForUnauthenticated = *uq.ForUnauthenticated
	}
	if uq.ShowAuthors != nil {
		qs.ShowAuthors = *uq.ShowAuthors
	}
	if uq.OwnQuestionsOnly != nil {
		qs.OwnQuestionsOnly = *uq.OwnQuestionsOnly
	}
	qs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateQset(ctx, qs)
}

func (svc *service) MoveQset(ctx context.Context, actor *user.User, id, newParentID string) error {
	qs, err := svc.repo.GetQset(ctx, id)
	if err != nil {
		return err
	}
	acc, err := svc.access(ctx, actor, qs)
	if err != nil {
		return err
	}
	if !acc.Edit {
		return ErrPermission
	}
	if newParentID == qs.ParentID {
		return nil
	}

	newParent, err := svc.repo.GetQset(ctx, newParentID)
	if err != nil {
		return err
	}
	if !newParent.Kind.AllowsSubsets() {
		return ErrInvalidKind
	}
	// moving across organizations also requires rights on the target tree
	if newParent.TopID != qs.TopID {
		targetAcc, err := svc.access(ctx, actor, newParent)
		if err != nil {
			return err
		}
		if !(targetAcc.Edit || (targetAcc.View && actor != nil && actor.IsTeacher())) {
			return ErrPermission
		}
	}
	if err = svc.checkNameUniqueness(ctx, qs.Name, newParentID); err != nil {
		return err
	}

	// the repository re-checks the ancestry under the transaction; this
	// early check just fails fast
	if newParentID == id {
		return ErrCycle
	}
	return svc.repo.MoveQset(ctx, id, newParentID)
}

func (svc *service) DeleteQset(ctx context.Context, actor *user.User, id string) error {
	qs, err := svc.repo.GetQset(ctx, id)
	if err != nil {
		return err
	}
	acc, err := svc.access(ctx, actor, qs)
	if err != nil {
		return err
	}
	if !acc.Delete {
		return ErrPermission
	}
	return svc.repo.DeleteQset(ctx, id)
}

func (svc *service) Organizations(ctx context.Context, actor *user.User) ([]Qset, error) {
	if actor == nil {
		return nil, nil
	}
	if actor.IsAdmin() {
		return svc.repo.QueryOrganizations(ctx, "")
	}
	return svc.repo.QueryOrganizations(ctx, actor.ID)
}

func (svc *service) ListChildren(ctx context.Context, actor *user.User, qsetID string, filter ChildrenFilter) (Children, error) {
	qs, err := svc.repo.GetQset(ctx, qsetID)
	if err != nil {
		return Children{}, err
	}
	isMember, err := svc.isMember(ctx, actor, qs.TopID)
	if err != nil {
		return Children{}, err
	}
	acc := EvalQsetAccess(actor, isMember, qs)
	if !acc.View {
		return Children{}, ErrPermission
	}

	children := Children{Qset: qs}

	if qs.Kind.AllowsSubsets() {
		if children.Qsets, err = svc.repo.ChildQsets(ctx, qs.ID); err != nil {
			return Children{}, err
		}
	}

	if qs.Kind.AllowsQuestions() {
		privileged := actor != nil && (actor.IsAdmin() || actor.IsTeacher())
		if qs.OwnQuestionsOnly && !privileged {
			filter = FilterMine
		}

		query := QuestionQuery{QsetID: qs.ID}
		switch filter {
		case FilterMine:
			if actor == nil {
				return children, nil
			}
			query.AuthorID = actor.ID
		case FilterOthers:
			if actor != nil {
				query.ExcludeAuthorID = actor.ID
			}
		}
		if children.Questions, err = svc.repo.QueryQuestions(ctx, query); err != nil {
			return Children{}, err
		}
		if !qs.ShowAuthors && !privileged {
			for i := range children.Questions {
				if actor == nil || children.Questions[i].AuthorID != actor.ID {
					children.Questions[i].AuthorID = ""
				}
			}
		}
	}
	return children, nil
}

// QuestionsCount returns the materialized aggregate of a qset; an O(1) read.
func (svc *service) QuestionsCount(ctx context.Context, qsetID string) (int, error) {
	return svc.repo.QuestionsCount(ctx, qsetID)
}

// Breadcrumbs collects the ancestor path of a qset, organization first.
// The walk is iterative over parent ids; tree depth bounds the number of
// round trips.
func (svc *service) Breadcrumbs(ctx context.Context, actor *user.User, qsetID string) ([]Crumb, error) {
	qs, err := svc.GetQset(ctx, actor, qsetID)
	if err != nil {
		return nil, err
	}

	var crumbs []Crumb
	parentID := qs.ParentID
	for parentID != "" {
		parent, err := svc.repo.GetQset(ctx, parentID)
		if err != nil {
			return nil, errors.Wrap(err, "walking ancestors")
		}
		crumbs = append(crumbs, Crumb{ID: parent.ID, Name: parent.Name, IsOrganization: parent.IsOrganization()})
		parentID = parent.ParentID
	}

	// reverse in place: root first
	for i, j := 0, len(crumbs)-1; i < j; i, j = i+1, j-1 {
		crumbs[i], crumbs[j] = crumbs[j], crumbs[i]
	}
	return crumbs, nil
}

func (svc *service) AddMember(ctx context.Context, actor *user.User, orgID, userID string) error {
	return svc.changeMembership(ctx, actor, orgID, userID, svc.repo.AddMember)
}

func (svc *service) RemoveMember(ctx context.Context, actor *user.User, orgID, userID string) error {
	return svc.changeMembership(ctx, actor, orgID, userID, svc.repo.RemoveMember)
}

func (svc *service) changeMembership(
	ctx context.Context,
	actor *user.User,
	orgID, userID string,
	op func(context.Context, string, string, ...core.DBExecutor) error,
) error {
	org, err := svc.repo.GetQset(ctx, orgID)
	if err != nil {
		return err
	}
	if !org.IsOrganization() {
		return ErrNotFound
	}
	isMember, err := svc.isMember(ctx, actor, org.ID)
	if err != nil {
		return err
	}
	isAdmin := actor != nil && actor.IsAdmin()
	if !(isAdmin || (isMember && actor.IsTeacher())) {
		return ErrPermission
	}
	return op(ctx, org.ID, userID)
}

// Questions

func (svc *service) CreateQuestion(ctx context.Context, actor *user.User, nq NewQuestion) (Question, error) {
	if actor == nil {
		return Question{}, ErrPermission
	}
	qs, err := svc.repo.GetQset(ctx, nq.QsetID)
	if err != nil {
		return Question{}, err
	}
	isMember, err := svc.isMember(ctx, actor, qs.TopID)
	if err != nil {
		return Question{}, err
	}
	if !(actor.IsAdmin() || isMember) {
		return Question{}, ErrPermission
	}
	if !qs.Kind.AllowsQuestions() {
		return Question{}, ErrInvalidKind
	}

	now := time.Now().UTC()
	q := Question{
		Text:       nq.Text,
		AnswerText: nq.AnswerText,
		QsetID:     qs.ID,
		AuthorID:   actor.ID,
		BloomsTag:  nq.BloomsTag,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := svc.repo.CreateQuestion(ctx, q)
	if err != nil {
		if errors.Cause(err) == ErrDuplicateQuestion {
			return Question{}, core.NewValidationError(err, core.FieldError{Field: "text", Error: err.Error()})
		}
		return Question{}, err
	}
	return created, nil
}

// getQuestionAccess fetches a question, its qset and the actor's access to it.
func (svc *service) getQuestionAccess(ctx context.Context, actor *user.User, id string) (Question, Qset, Access, error) {
	q, err := svc.repo.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, Qset{}, Access{}, err
	}
	qs, err := svc.repo.GetQset(ctx, q.QsetID)
	if err != nil {
		return Question{}, Qset{}, Access{}, err
	}
	isMember, err := svc.isMember(ctx, actor, qs.TopID)
	if err != nil {
		return Question{}, Qset{}, Access{}, err
	}
	return q, qs, EvalQuestionAccess(actor, isMember, qs, q), nil
}

func (svc *service) GetQuestion(ctx context.Context, actor *user.User, id string) (Question, error) {
	q, qs, acc, err := svc.getQuestionAccess(ctx, actor, id)
	if err != nil {
		return Question{}, err
	}
	if !acc.View {
		return Question{}, ErrPermission
	}
	privileged := actor != nil && (actor.IsAdmin() || actor.IsTeacher())
	if !qs.ShowAuthors && !privileged && (actor == nil || q.AuthorID != actor.ID) {
		q.AuthorID = ""
	}
	return q, nil
}

func (svc *service) UpdateQuestion(ctx context.Context, actor *user.User, id string, uq UpdateQuestion) (Question, error) {
	q, _, acc, err := svc.getQuestionAccess(ctx, actor, id)
	if err != nil {
		return Question{}, err
	}
	if !acc.Edit {
		return Question{}, ErrPermission
	}

	if uq.Text != "" {
		q.Text = uq.Text
	}
	if uq.AnswerText != "" {
		q.AnswerText = uq.AnswerText
	}
	if uq.BloomsTag != nil {
		q.BloomsTag = uq.BloomsTag
	}
	q.UpdatedAt = time.Now().UTC()
	updated, err := svc.repo.UpdateQuestion(ctx, q)
	if err != nil {
		if errors.Cause(err) == ErrDuplicateQuestion {
			return Question{}, core.NewValidationError(err, core.FieldError{Field: "text", Error: err.Error()})
		}
		return Question{}, err
	}
	return updated, nil
}

func (svc *service) DeleteQuestion(ctx context.Context, actor *user.User, id string) error {
	_, _, acc, err := svc.getQuestionAccess(ctx, actor, id)
	if err != nil {
		return err
	}
	if !acc.Delete {
		return ErrPermission
	}
	return svc.repo.DeleteQuestion(ctx, id)
}

func (svc *service) MoveQuestion(ctx context.Context, actor *user.User, id, newQsetID string) error {
	q, _, acc, err := svc.getQuestionAccess(ctx, actor, id)
	if err != nil {
		return err
	}
	if !acc.Edit {
		return ErrPermission
	}
	if newQsetID == q.QsetID {
		return nil
	}

	target, err := svc.repo.GetQset(ctx, newQsetID)
	if err != nil {
		return err
	}
	if !target.Kind.AllowsQuestions() {
		return ErrInvalidKind
	}
	targetAcc, err := svc.access(ctx, actor, target)
	if err != nil {
		return err
	}
	isTargetMember, err := svc.isMember(ctx, actor, target.TopID)
	if err != nil {
		return err
	}
	if !(targetAcc.Edit || isTargetMember || (actor != nil && actor.IsAdmin())) {
		return ErrPermission
	}
	if err = svc.repo.MoveQuestion(ctx, id, newQsetID); err != nil {
		if errors.Cause(err) == ErrDuplicateQuestion {
			return core.NewValidationError(err, core.FieldError{Field: "text", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Votes & Answers

func (svc *service) CastVote(ctx context.Context, actor *user.User, questionID string, value int) (int, error) {
	if actor == nil {
		return 0, ErrPermission
	}
	if value != 1 && value != -1 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "value", Error: voteValueText})
	}
	q, qs, _, err := svc.getQuestionAccess(ctx, actor, questionID)
	if err != nil {
		return 0, err
	}
	if q.AuthorID == actor.ID {
		return 0, ErrOwnQuestionVote
	}
	isMember, err := svc.isMember(ctx, actor, qs.TopID)
	if err != nil {
		return 0, err
	}
	if !(actor.IsAdmin() || isMember) {
		return 0, ErrPermission
	}

	v := Vote{
		Value:      value,
		QuestionID: q.ID,
		VoterID:    actor.ID,
		CreatedAt:  time.Now().UTC(),
	}
	return svc.repo.CastVote(ctx, v)
}

func (svc *service) CreateAnswer(ctx context.Context, actor *user.User, na NewAnswer) (Answer, error) {
	if actor == nil {
		return Answer{}, ErrPermission
	}
	q, _, acc, err := svc.getQuestionAccess(ctx, actor, na.QuestionID)
	if err != nil {
		return Answer{}, err
	}
	if !acc.View {
		return Answer{}, ErrPermission
	}

	a := Answer{
		Text:           na.Text,
		QuestionID:     q.ID,
		AuthorID:       actor.ID,
		SelfEvaluation: na.SelfEvaluation,
		CreatedAt:      time.Now().UTC(),
	}
	return svc.repo.CreateAnswer(ctx, a)
}

// UserStats returns userID's activity within the orgID organization.
// Members may look up each other; admins anyone.
func (svc *service) UserStats(ctx context.Context, actor *user.User, orgID, userID string) (Stats, error) {
	org, err := svc.repo.GetQset(ctx, orgID)
	if err != nil {
		return Stats{}, err
	}
	if !org.IsOrganization() {
		return Stats{}, ErrNotFound
	}
	isMember, err := svc.isMember(ctx, actor, org.ID)
	if err != nil {
		return Stats{}, err
	}
	if !((actor != nil && actor.IsAdmin()) || isMember) {
		return Stats{}, ErrPermission
	}
	return svc.repo.UserStats(ctx, org.ID, userID)
}
