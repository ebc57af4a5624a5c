package qset

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/askuphq/askup/core"
)

// Kind constrains which child types may be created under a Qset.
type Kind int

const (
	KindMixed         Kind = iota // subsets and questions
	KindSubsetsOnly               // default
	KindQuestionsOnly
)

func (k Kind) Valid() bool {
	return k >= KindMixed && k <= KindQuestionsOnly
}

func (k Kind) AllowsSubsets() bool {
	return k != KindQuestionsOnly
}

func (k Kind) AllowsQuestions() bool {
	return k != KindSubsetsOnly
}

func (k Kind) String() string {
	switch k {
	case KindMixed:
		return "mixed"
	case KindSubsetsOnly:
		return "subsets only"
	case KindQuestionsOnly:
		return "questions only"
	}
	return "unknown"
}

// BloomsTag classifies a Question on Bloom's taxonomy.
type BloomsTag int

const (
	BloomsRemember BloomsTag = iota
	BloomsUnderstand
	BloomsApply
	BloomsAnalyze
	BloomsEvaluate
	BloomsCreate
)

// Self-evaluation values for an Answer.
const (
	EvaluationWrong = iota
	EvaluationSortOf
	EvaluationCorrect
)

// Qset is a node of the question-set tree. A Qset without a parent is an
// organization (the root of its tree); it owns the membership list and the
// visibility flags that apply to its whole subtree.
type Qset struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	ParentID string `json:"parent_id,omitempty"` // empty for organizations
	TopID    string `json:"top_id"`              // root ancestor; self for organizations

	// QuestionsCount is the materialized count of all Questions in the
	// subtree rooted at this Qset. It is maintained by delta propagation,
	// never recomputed on read.
	QuestionsCount int `json:"questions_count"`

	ForAnyAuthenticated bool `json:"for_any_authenticated"`
	ForUnauthenticated  bool `json:"for_unauthenticated"`
	ShowAuthors         bool `json:"show_authors"`
	OwnQuestionsOnly    bool `json:"own_questions_only"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (qs Qset) IsOrganization() bool {
	return qs.ParentID == ""
}

type Question struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	AnswerText string     `json:"answer_text"`
	QsetID     string     `json:"qset_id"`
	AuthorID   string     `json:"author_id,omitempty"`
	VoteValue  int        `json:"vote_value"`
	BloomsTag  *BloomsTag `json:"blooms_tag,omitempty"`
	CreatedAt  time.Time  `json:"created_at"` // UTC
	UpdatedAt  time.Time  `json:"updated_at"` // UTC
}

// Answer is a student's self-evaluated answer to a Question.
type Answer struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	QuestionID     string    `json:"question_id"`
	AuthorID       string    `json:"author_id"`
	SelfEvaluation int       `json:"self_evaluation"`
	CreatedAt      time.Time `json:"created_at"` // UTC
}

// Vote is a quality vote on a Question; one per (question, voter).
type Vote struct {
	ID         string    `json:"id"`
	Value      int       `json:"value"` // +1 or -1
	QuestionID string    `json:"question_id"`
	VoterID    string    `json:"voter_id"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

// Crumb is one ancestor entry of a Qset's breadcrumb path, root first.
type Crumb struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	IsOrganization bool   `json:"is_organization"`
}

// Stats aggregates a user's activity within one organization.
type Stats struct {
	Questions        int `json:"questions"`
	Score            int `json:"score"` // sum of vote_value over own questions
	CorrectAnswers   int `json:"correct_answers"`
	IncorrectAnswers int `json:"incorrect_answers"`
}

// ChildrenFilter selects which questions ListChildren returns.
type ChildrenFilter string

const (
	FilterAll    ChildrenFilter = "all"
	FilterMine   ChildrenFilter = "mine"
	FilterOthers ChildrenFilter = "others"
)

func CleanChildrenFilter(s string) ChildrenFilter {
	switch f := ChildrenFilter(core.CleanString(s, true /* lower */)); f {
	case FilterMine, FilterOthers:
		return f
	}
	return FilterAll
}

// Children is the permission-filtered content of a Qset.
type Children struct {
	Qset      Qset       `json:"qset"`
	Qsets     []Qset     `json:"qsets"`
	Questions []Question `json:"questions"`
}

// NewQset contains information needed to create a new Qset.
// An empty ParentID creates an organization.
type NewQset struct {
	Name                string `json:"name" validate:"required,max=255"`
	Kind                Kind   `json:"kind" validate:"qsetkind"`
	ParentID            string `json:"parent_id"`
	ForAnyAuthenticated bool   `json:"for_any_authenticated"`
	ForUnauthenticated  bool   `json:"for_unauthenticated"`
	ShowAuthors         bool   `json:"show_authors"`
	OwnQuestionsOnly    bool   `json:"own_questions_only"`
}

func (nq *NewQset) Validate(validate *validator.Validate) error {
	nq.Name = core.CleanString(nq.Name)
	nq.ParentID = core.CleanString(nq.ParentID)
	return validate.Struct(nq)
}

// UpdateQset defines what may be modified on an existing Qset.
// Re-parenting goes through Service.MoveQset, not here.
type UpdateQset struct {
	Name                string `json:"name" validate:"omitempty,max=255"`
	ForAnyAuthenticated *bool  `json:"for_any_authenticated"`
	ForUnauthenticated  *bool  `json:"for_unauthenticated"`
	ShowAuthors         *bool  `json:"show_authors"`
	OwnQuestionsOnly    *bool  `json:"own_questions_only"`
}

func (uq *UpdateQset) Validate(validate *validator.Validate) error {
	uq.Name = core.CleanString(uq.Name)
	return validate.Struct(uq)
}

// NewQuestion contains information needed to create a new Question.
type NewQuestion struct {
	QsetID     string     `json:"qset_id" validate:"required"`
	Text       string     `json:"text" validate:"required"`
	AnswerText string     `json:"answer_text" validate:"required,max=255"`
	BloomsTag  *BloomsTag `json:"blooms_tag" validate:"omitempty,bloomstag"`
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.QsetID = core.CleanString(nq.QsetID)
	nq.Text = core.CleanString(nq.Text)
	nq.AnswerText = core.CleanString(nq.AnswerText)
	return validate.Struct(nq)
}

// UpdateQuestion defines what may be modified on an existing Question.
type UpdateQuestion struct {
	Text       string     `json:"text" validate:"omitempty"`
	AnswerText string     `json:"answer_text" validate:"omitempty,max=255"`
	BloomsTag  *BloomsTag `json:"blooms_tag" validate:"omitempty,bloomstag"`
}

func (uq *UpdateQuestion) Validate(validate *validator.Validate) error {
	uq.Text = core.CleanString(uq.Text)
	uq.AnswerText = core.CleanString(uq.AnswerText)
	return validate.Struct(uq)
}

// NewAnswer contains information needed to record an Answer.
type NewAnswer struct {
	QuestionID     string `json:"question_id" validate:"required"`
	Text           string `json:"text" validate:"required,max=255"`
	SelfEvaluation int    `json:"self_evaluation" validate:"selfeval"`
}

func (na *NewAnswer) Validate(validate *validator.Validate) error {
	na.QuestionID = core.CleanString(na.QuestionID)
	na.Text = core.CleanString(na.Text)
	return validate.Struct(na)
}
