package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/qset"
)

type qsetRepository struct {
	db *DB
}

var _ qset.Repository = (*qsetRepository)(nil)

func NewQsetRepository(db *DB) *qsetRepository {
	return &qsetRepository{db: db}
}

// applyDeltas walks each delta's ancestor chain adjusting questions_count.
// Callers hold the write lock.
func (repo *qsetRepository) applyDeltas(deltas []qset.ChainDelta) error {
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].StartID < deltas[j].StartID })

	for _, d := range deltas {
		id := d.StartID
		for id != "" {
			qs, ok := repo.db.qsets[id]
			if !ok {
				return qset.ErrNotFound
			}
			if PropagationFault != nil {
				if err := PropagationFault(id); err != nil {
					return err
				}
			}

			count := qs.QuestionsCount + d.Delta
			if count < 0 {
				return qset.ErrConsistency
			}
			qs.QuestionsCount = count
			id = qs.ParentID
		}
	}
	return nil
}

// isDescendant reports whether id is candidate or sits below it. Callers
// hold at least the read lock.
func (repo *qsetRepository) isDescendant(id, candidate string) bool {
	for id != "" {
		if id == candidate {
			return true
		}
		qs, ok := repo.db.qsets[id]
		if !ok {
			return false
		}
		id = qs.ParentID
	}
	return false
}

func (repo *qsetRepository) subtree(rootID string) []string {
	ids := []string{rootID}
	for i := 0; i < len(ids); i++ {
		for _, qs := range repo.db.qsets {
			if qs.ParentID == ids[i] {
				ids = append(ids, qs.ID)
			}
		}
	}
	return ids
}

func (repo *qsetRepository) nameTaken(name, parentID string, exclIDs map[string]bool) bool {
	for _, qs := range repo.db.qsets {
		if qs.Name == name && qs.ParentID == parentID && !exclIDs[qs.ID] {
			return true
		}
	}
	return false
}

// Qset tree

func (repo *qsetRepository) CreateQset(ctx context.Context, qs qset.Qset, exec ...core.DBExecutor) (qset.Qset, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.nameTaken(qs.Name, qs.ParentID, nil) {
		return qset.Qset{}, qset.ErrDuplicateName
	}

	qs.ID = uuid.New().String()
	if qs.ParentID == "" {
		qs.TopID = qs.ID
	}
	repo.db.qsets[qs.ID] = &qs
	return qs, nil
}

func (repo *qsetRepository) GetQset(ctx context.Context, id string, exec ...core.DBExecutor) (qset.Qset, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if qs, ok := repo.db.qsets[id]; ok {
		return *qs, nil
	}
	return qset.Qset{}, qset.ErrNotFound
}

func (repo *qsetRepository) QueryOrganizations(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]qset.Qset, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var orgs []qset.Qset
	for _, qs := range repo.db.qsets {
		if qs.ParentID != "" {
			continue
		}
		if memberID != "" && !repo.db.members[qs.ID][memberID] {
			continue
		}
		orgs = append(orgs, *qs)
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}

func (repo *qsetRepository) ChildQsets(ctx context.Context, parentID string, exec ...core.DBExecutor) ([]qset.Qset, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var children []qset.Qset
	for _, qs := range repo.db.qsets {
		if qs.ParentID == parentID {
			children = append(children, *qs)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

func (repo *qsetRepository) CheckQsetNameUniqueness(ctx context.Context, name, parentID string, excluded []qset.Qset, exec ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	exclIDs := make(map[string]bool, len(excluded))
	for _, qs := range excluded {
		exclIDs[qs.ID] = true
	}
	if repo.nameTaken(name, parentID, exclIDs) {
		return qset.ErrDuplicateName
	}
	return nil
}

func (repo *qsetRepository) UpdateQset(ctx context.Context, qs qset.Qset, exec ...core.DBExecutor) (qset.Qset, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.qsets[qs.ID]
	if !ok {
		return qset.Qset{}, qset.ErrNotFound
	}
	if qs.Name != orig.Name && repo.nameTaken(qs.Name, orig.ParentID, map[string]bool{qs.ID: true}) {
		return qset.Qset{}, qset.ErrDuplicateName
	}

	orig.Name = qs.Name
	orig.ForAnyAuthenticated = qs.ForAnyAuthenticated
	orig.ForUnauthenticated = qs.ForUnauthenticated
	orig.ShowAuthors = qs.ShowAuthors
	orig.OwnQuestionsOnly = qs.OwnQuestionsOnly
	orig.UpdatedAt = qs.UpdatedAt
	return *orig, nil
}

func (repo *qsetRepository) MoveQset(ctx context.Context, id, newParentID string) error {
	return repo.db.inTx(func() error {
		moved, ok := repo.db.qsets[id]
		if !ok {
			return qset.ErrNotFound
		}
		if moved.ParentID == newParentID {
			return nil
		}
		if repo.isDescendant(newParentID, id) {
			return qset.ErrCycle
		}
		newParent, ok := repo.db.qsets[newParentID]
		if !ok {
			return qset.ErrNotFound
		}
		if repo.nameTaken(moved.Name, newParentID, map[string]bool{id: true}) {
			return qset.ErrDuplicateName
		}

		oldParentID := moved.ParentID
		moved.ParentID = newParentID
		if newParent.TopID != moved.TopID {
			for _, subID := range repo.subtree(id) {
				repo.db.qsets[subID].TopID = newParent.TopID
			}
		}
		return repo.applyDeltas(qset.ChainDeltas(oldParentID, newParentID, moved.QuestionsCount))
	})
}

func (repo *qsetRepository) DeleteQset(ctx context.Context, id string) error {
	return repo.db.inTx(func() error {
		qs, ok := repo.db.qsets[id]
		if !ok {
			return qset.ErrNotFound
		}
		parentID, count := qs.ParentID, qs.QuestionsCount

		// cascade
		for _, subID := range repo.subtree(id) {
			for qID, q := range repo.db.questions {
				if q.QsetID != subID {
					continue
				}
				repo.deleteQuestionRows(qID)
			}
			delete(repo.db.members, subID)
			delete(repo.db.qsets, subID)
		}
		return repo.applyDeltas(qset.ChainDeltas(parentID, "", count))
	})
}

func (repo *qsetRepository) deleteQuestionRows(questionID string) {
	for aID, a := range repo.db.answers {
		if a.QuestionID == questionID {
			delete(repo.db.answers, aID)
		}
	}
	for key, v := range repo.db.votes {
		if v.QuestionID == questionID {
			delete(repo.db.votes, key)
		}
	}
	delete(repo.db.questions, questionID)
}

func (repo *qsetRepository) QuestionsCount(ctx context.Context, qsetID string, exec ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	qs, ok := repo.db.qsets[qsetID]
	if !ok {
		return 0, qset.ErrNotFound
	}
	return qs.QuestionsCount, nil
}

// Membership

func (repo *qsetRepository) IsMember(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.members[orgID][userID], nil
}

func (repo *qsetRepository) AddMember(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.db.members[orgID] == nil {
		repo.db.members[orgID] = make(map[string]bool)
	}
	repo.db.members[orgID][userID] = true
	return nil
}

func (repo *qsetRepository) RemoveMember(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.members[orgID], userID)
	return nil
}

// Questions

func (repo *qsetRepository) CreateQuestion(ctx context.Context, q qset.Question) (qset.Question, error) {
	err := repo.db.inTx(func() error {
		for _, other := range repo.db.questions {
			if other.QsetID == q.QsetID && other.Text == q.Text {
				return qset.ErrDuplicateQuestion
			}
		}
		q.ID = uuid.New().String()
		repo.db.questions[q.ID] = &q
		return repo.applyDeltas(qset.ChainDeltas("", q.QsetID, 1))
	})
	if err != nil {
		return qset.Question{}, err
	}
	return q, nil
}

func (repo *qsetRepository) GetQuestion(ctx context.Context, id string, exec ...core.DBExecutor) (qset.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if q, ok := repo.db.questions[id]; ok {
		return *q, nil
	}
	return qset.Question{}, qset.ErrQuestionNotFound
}

func (repo *qsetRepository) QueryQuestions(ctx context.Context, query qset.QuestionQuery, exec ...core.DBExecutor) ([]qset.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var questions []qset.Question
	for _, q := range repo.db.questions {
		if q.QsetID != query.QsetID {
			continue
		}
		if query.AuthorID != "" && q.AuthorID != query.AuthorID {
			continue
		}
		if query.ExcludeAuthorID != "" && q.AuthorID == query.ExcludeAuthorID {
			continue
		}
		questions = append(questions, *q)
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].VoteValue != questions[j].VoteValue {
			return questions[i].VoteValue > questions[j].VoteValue
		}
		return questions[i].Text < questions[j].Text
	})
	return questions, nil
}

func (repo *qsetRepository) UpdateQuestion(ctx context.Context, q qset.Question, exec ...core.DBExecutor) (qset.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.questions[q.ID]
	if !ok {
		return qset.Question{}, qset.ErrQuestionNotFound
	}
	for _, other := range repo.db.questions {
		if other.ID != q.ID && other.QsetID == orig.QsetID && other.Text == q.Text {
			return qset.Question{}, qset.ErrDuplicateQuestion
		}
	}

	orig.Text = q.Text
	orig.AnswerText = q.AnswerText
	orig.BloomsTag = q.BloomsTag
	orig.UpdatedAt = q.UpdatedAt
	return *orig, nil
}

func (repo *qsetRepository) DeleteQuestion(ctx context.Context, id string) error {
	return repo.db.inTx(func() error {
		q, ok := repo.db.questions[id]
		if !ok {
			return qset.ErrQuestionNotFound
		}
		qsetID := q.QsetID
		repo.deleteQuestionRows(id)
		return repo.applyDeltas(qset.ChainDeltas(qsetID, "", 1))
	})
}

func (repo *qsetRepository) MoveQuestion(ctx context.Context, id, newQsetID string) error {
	return repo.db.inTx(func() error {
		q, ok := repo.db.questions[id]
		if !ok {
			return qset.ErrQuestionNotFound
		}
		if q.QsetID == newQsetID {
			return nil
		}
		if _, ok = repo.db.qsets[newQsetID]; !ok {
			return qset.ErrNotFound
		}
		for _, other := range repo.db.questions {
			if other.ID != id && other.QsetID == newQsetID && other.Text == q.Text {
				return qset.ErrDuplicateQuestion
			}
		}

		oldQsetID := q.QsetID
		q.QsetID = newQsetID
		return repo.applyDeltas(qset.ChainDeltas(oldQsetID, newQsetID, 1))
	})
}

// Votes & Answers

func (repo *qsetRepository) CastVote(ctx context.Context, v qset.Vote) (int, error) {
	var total int
	err := repo.db.inTx(func() error {
		q, ok := repo.db.questions[v.QuestionID]
		if !ok {
			return qset.ErrQuestionNotFound
		}
		key := v.QuestionID + "|" + v.VoterID
		if _, ok = repo.db.votes[key]; ok {
			return qset.ErrAlreadyVoted
		}

		v.ID = uuid.New().String()
		repo.db.votes[key] = &v
		q.VoteValue += v.Value
		total = q.VoteValue
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (repo *qsetRepository) CreateAnswer(ctx context.Context, a qset.Answer, exec ...core.DBExecutor) (qset.Answer, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.questions[a.QuestionID]; !ok {
		return qset.Answer{}, qset.ErrQuestionNotFound
	}
	a.ID = uuid.New().String()
	repo.db.answers[a.ID] = &a
	return a, nil
}

func (repo *qsetRepository) UserStats(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) (qset.Stats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	inOrg := func(qsetID string) bool {
		qs, ok := repo.db.qsets[qsetID]
		return ok && qs.TopID == orgID
	}

	var stats qset.Stats
	for _, q := range repo.db.questions {
		if q.AuthorID == userID && inOrg(q.QsetID) {
			stats.Questions++
			stats.Score += q.VoteValue
		}
	}
	for _, a := range repo.db.answers {
		q, ok := repo.db.questions[a.QuestionID]
		if !ok || a.AuthorID != userID || !inOrg(q.QsetID) {
			continue
		}
		switch a.SelfEvaluation {
		case qset.EvaluationCorrect:
			stats.CorrectAnswers++
		case qset.EvaluationWrong:
			stats.IncorrectAnswers++
		}
	}
	return stats, nil
}
