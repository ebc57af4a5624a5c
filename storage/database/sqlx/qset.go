package sqlxrepos

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/qset"
)

type qsetRow struct {
	ID                  string      `db:"id"`
	Name                string      `db:"name"`
	Kind                int         `db:"kind"`
	ParentID            null.String `db:"parent_qset_id"`
	TopID               null.String `db:"top_qset_id"`
	QuestionsCount      int         `db:"questions_count"`
	ForAnyAuthenticated bool        `db:"for_any_authenticated"`
	ForUnauthenticated  bool        `db:"for_unauthenticated"`
	ShowAuthors         bool        `db:"show_authors"`
	OwnQuestionsOnly    bool        `db:"own_questions_only"`
	CreatedAt           time.Time   `db:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at"`
}

func (row qsetRow) qset() qset.Qset {
	return qset.Qset{
		ID:                  row.ID,
		Name:                row.Name,
		Kind:                qset.Kind(row.Kind),
		ParentID:            row.ParentID.String,
		TopID:               row.TopID.String,
		QuestionsCount:      row.QuestionsCount,
		ForAnyAuthenticated: row.ForAnyAuthenticated,
		ForUnauthenticated:  row.ForUnauthenticated,
		ShowAuthors:         row.ShowAuthors,
		OwnQuestionsOnly:    row.OwnQuestionsOnly,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

type questionRow struct {
	ID         string      `db:"id"`
	Text       string      `db:"text"`
	AnswerText string      `db:"answer_text"`
	QsetID     string      `db:"qset_id"`
	AuthorID   null.String `db:"author_id"`
	VoteValue  int         `db:"vote_value"`
	BloomsTag  null.Int16  `db:"blooms_tag"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func (row questionRow) question() qset.Question {
	q := qset.Question{
		ID:         row.ID,
		Text:       row.Text,
		AnswerText: row.AnswerText,
		QsetID:     row.QsetID,
		AuthorID:   row.AuthorID.String,
		VoteValue:  row.VoteValue,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.BloomsTag.Valid {
		tag := qset.BloomsTag(row.BloomsTag.Int16)
		q.BloomsTag = &tag
	}
	return q
}

const selectQset = `
SELECT id, name, kind, parent_qset_id, top_qset_id, questions_count,
       for_any_authenticated, for_unauthenticated, show_authors, own_questions_only,
       created_at, updated_at
FROM qset`

const selectQuestion = `
SELECT id, text, answer_text, qset_id, author_id, vote_value, blooms_tag, created_at, updated_at
FROM question`

type qsetRepository struct {
	db *sqlx.DB
}

var _ qset.Repository = (*qsetRepository)(nil)

func NewQsetRepository(db *sql.DB, conf *core.Config) *qsetRepository {
	return &qsetRepository{db: sqlx.NewDb(db, conf.Database.Engine)}
}

// applyDeltas walks each delta's ancestor chain, locking and adjusting
// questions_count row by row. Chains are visited in id order so two
// concurrent walks cannot lock each other's chain head in opposite order.
func applyDeltas(ctx context.Context, tx *sqlx.Tx, deltas []qset.ChainDelta) error {
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].StartID < deltas[j].StartID })

	for _, d := range deltas {
		id := d.StartID
		for id != "" {
			var row struct {
				QuestionsCount int         `db:"questions_count"`
				ParentID       null.String `db:"parent_qset_id"`
			}
			err := sqlx.GetContext(ctx, tx, &row,
				`SELECT questions_count, parent_qset_id FROM qset WHERE id = $1 FOR UPDATE`, id)
			if err != nil {
				if err == sql.ErrNoRows {
					return qset.ErrNotFound
				}
				return errors.Wrap(err, "locking ancestor")
			}

			count := row.QuestionsCount + d.Delta
			if count < 0 {
				return qset.ErrConsistency
			}
			if _, err = tx.ExecContext(ctx,
				`UPDATE qset SET questions_count = $1 WHERE id = $2`, count, id); err != nil {
				return errors.Wrap(err, "updating ancestor count")
			}
			id = row.ParentID.String
		}
	}
	return nil
}

// inTx runs fn in a transaction, rolling back on error.
func (repo *qsetRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err = fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// Qset tree

func (repo *qsetRepository) CreateQset(ctx context.Context, qs qset.Qset, exec ...core.DBExecutor) (qset.Qset, error) {
	qs.ID = uuid.New().String()
	if qs.ParentID == "" {
		qs.TopID = qs.ID
	}

	_, err := ext(repo.db, exec).ExecContext(ctx, `
INSERT INTO qset (id, name, kind, parent_qset_id, top_qset_id, questions_count,
                  for_any_authenticated, for_unauthenticated, show_authors, own_questions_only,
                  created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $10, $11)`,
		qs.ID, qs.Name, int(qs.Kind),
		null.NewString(qs.ParentID, qs.ParentID != ""), qs.TopID,
		qs.ForAnyAuthenticated, qs.ForUnauthenticated, qs.ShowAuthors, qs.OwnQuestionsOnly,
		qs.CreatedAt, qs.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, "qset_sibling_name_key", "qset_org_name_key") {
			return qset.Qset{}, qset.ErrDuplicateName
		}
		return qset.Qset{}, errors.Wrap(err, "creating qset")
	}
	return qs, nil
}

func (repo *qsetRepository) GetQset(ctx context.Context, id string, exec ...core.DBExecutor) (qset.Qset, error) {
	var row qsetRow
	if err := sqlx.GetContext(ctx, ext(repo.db, exec), &row, selectQset+` WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return qset.Qset{}, qset.ErrNotFound
		}
		return qset.Qset{}, errors.Wrap(err, "getting qset")
	}
	return row.qset(), nil
}

func (repo *qsetRepository) QueryOrganizations(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]qset.Qset, error) {
	query := selectQset + ` WHERE parent_qset_id IS NULL ORDER BY name`
	args := []interface{}(nil)
	if memberID != "" {
		query = selectQset + `
WHERE parent_qset_id IS NULL
  AND id IN (SELECT qset_id FROM qset_member WHERE user_id = $1)
ORDER BY name`
		args = append(args, memberID)
	}

	var rows []qsetRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying organizations")
	}
	return qsetRowsToModels(rows), nil
}

func (repo *qsetRepository) ChildQsets(ctx context.Context, parentID string, exec ...core.DBExecutor) ([]qset.Qset, error) {
	var rows []qsetRow
	err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows,
		selectQset+` WHERE parent_qset_id = $1 ORDER BY name`, parentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying child qsets")
	}
	return qsetRowsToModels(rows), nil
}

func qsetRowsToModels(rows []qsetRow) []qset.Qset {
	qsets := make([]qset.Qset, len(rows))
	for i, row := range rows {
		qsets[i] = row.qset()
	}
	return qsets
}

func (repo *qsetRepository) CheckQsetNameUniqueness(ctx context.Context, name, parentID string, excluded []qset.Qset, exec ...core.DBExecutor) error {
	exclIDs := make([]string, len(excluded))
	for i, qs := range excluded {
		exclIDs[i] = qs.ID
	}

	var exists bool
	err := sqlx.GetContext(ctx, ext(repo.db, exec), &exists, `
SELECT EXISTS(
    SELECT 1 FROM qset
    WHERE name = $1
      AND parent_qset_id IS NOT DISTINCT FROM $2
      AND id <> ALL ($3)
)`,
		name, null.NewString(parentID, parentID != ""), pq.Array(exclIDs))
	if err != nil {
		return errors.Wrap(err, "checking qset name uniqueness")
	}
	if exists {
		return qset.ErrDuplicateName
	}
	return nil
}

func (repo *qsetRepository) UpdateQset(ctx context.Context, qs qset.Qset, exec ...core.DBExecutor) (qset.Qset, error) {
	_, err := ext(repo.db, exec).ExecContext(ctx, `
UPDATE qset
SET name = $1, for_any_authenticated = $2, for_unauthenticated = $3,
    show_authors = $4, own_questions_only = $5, updated_at = $6
WHERE id = $7`,
		qs.Name, qs.ForAnyAuthenticated, qs.ForUnauthenticated,
		qs.ShowAuthors, qs.OwnQuestionsOnly, qs.UpdatedAt, qs.ID,
	)
	if err != nil {
		if uniqueViolation(err, "qset_sibling_name_key", "qset_org_name_key") {
			return qset.Qset{}, qset.ErrDuplicateName
		}
		return qset.Qset{}, errors.Wrap(err, "updating qset")
	}
	return qs, nil
}

func (repo *qsetRepository) MoveQset(ctx context.Context, id, newParentID string) error {
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		var moved qsetRow
		err := sqlx.GetContext(ctx, tx, &moved, selectQset+` WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if err == sql.ErrNoRows {
				return qset.ErrNotFound
			}
			return errors.Wrap(err, "locking qset")
		}
		if moved.ParentID.String == newParentID {
			return nil
		}

		// reject a move under the qset itself or any of its descendants
		var cycle bool
		err = sqlx.GetContext(ctx, tx, &cycle, `
WITH RECURSIVE ancestors AS (
    SELECT id, parent_qset_id FROM qset WHERE id = $1
    UNION ALL
    SELECT q.id, q.parent_qset_id FROM qset q JOIN ancestors a ON q.id = a.parent_qset_id
)
SELECT EXISTS(SELECT 1 FROM ancestors WHERE id = $2)`, newParentID, id)
		if err != nil {
			return errors.Wrap(err, "checking ancestry")
		}
		if cycle {
			return qset.ErrCycle
		}

		var newParent qsetRow
		err = sqlx.GetContext(ctx, tx, &newParent, selectQset+` WHERE id = $1`, newParentID)
		if err != nil {
			if err == sql.ErrNoRows {
				return qset.ErrNotFound
			}
			return errors.Wrap(err, "getting new parent")
		}

		if _, err = tx.ExecContext(ctx,
			`UPDATE qset SET parent_qset_id = $1 WHERE id = $2`, newParentID, id); err != nil {
			if uniqueViolation(err, "qset_sibling_name_key") {
				return qset.ErrDuplicateName
			}
			return errors.Wrap(err, "reparenting qset")
		}

		// a cross-organization move rewrites top_qset_id for the whole subtree
		if newParent.TopID.String != moved.TopID.String {
			_, err = tx.ExecContext(ctx, `
WITH RECURSIVE subtree AS (
    SELECT id FROM qset WHERE id = $1
    UNION ALL
    SELECT q.id FROM qset q JOIN subtree s ON q.parent_qset_id = s.id
)
UPDATE qset SET top_qset_id = $2 WHERE id IN (SELECT id FROM subtree)`,
				id, newParent.TopID.String)
			if err != nil {
				return errors.Wrap(err, "rewriting subtree top")
			}
		}

		return applyDeltas(ctx, tx,
			qset.ChainDeltas(moved.ParentID.String, newParentID, moved.QuestionsCount))
	})
}

func (repo *qsetRepository) DeleteQset(ctx context.Context, id string) error {
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		var row struct {
			QuestionsCount int         `db:"questions_count"`
			ParentID       null.String `db:"parent_qset_id"`
		}
		err := sqlx.GetContext(ctx, tx, &row,
			`SELECT questions_count, parent_qset_id FROM qset WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if err == sql.ErrNoRows {
				return qset.ErrNotFound
			}
			return errors.Wrap(err, "locking qset")
		}

		// the subtree goes with it, so only the ancestors lose the count
		if err = applyDeltas(ctx, tx,
			qset.ChainDeltas(row.ParentID.String, "", row.QuestionsCount)); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM qset WHERE id = $1`, id)
		return errors.Wrap(err, "deleting qset")
	})
}

func (repo *qsetRepository) QuestionsCount(ctx context.Context, qsetID string, exec ...core.DBExecutor) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, ext(repo.db, exec), &count,
		`SELECT questions_count FROM qset WHERE id = $1`, qsetID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, qset.ErrNotFound
		}
		return 0, errors.Wrap(err, "getting questions count")
	}
	return count, nil
}

// Membership

func (repo *qsetRepository) IsMember(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) (bool, error) {
	var isMember bool
	err := sqlx.GetContext(ctx, ext(repo.db, exec), &isMember,
		`SELECT EXISTS(SELECT 1 FROM qset_member WHERE qset_id = $1 AND user_id = $2)`, orgID, userID)
	return isMember, errors.Wrap(err, "checking membership")
}

func (repo *qsetRepository) AddMember(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) error {
	_, err := ext(repo.db, exec).ExecContext(ctx, `
INSERT INTO qset_member (qset_id, user_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`,
		orgID, userID, time.Now().UTC())
	return errors.Wrap(err, "adding member")
}

func (repo *qsetRepository) RemoveMember(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) error {
	_, err := ext(repo.db, exec).ExecContext(ctx,
		`DELETE FROM qset_member WHERE qset_id = $1 AND user_id = $2`, orgID, userID)
	return errors.Wrap(err, "removing member")
}

// Questions

func (repo *qsetRepository) CreateQuestion(ctx context.Context, q qset.Question) (qset.Question, error) {
	q.ID = uuid.New().String()
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO question (id, text, answer_text, qset_id, author_id, vote_value, blooms_tag, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)`,
			q.ID, q.Text, q.AnswerText, q.QsetID,
			null.NewString(q.AuthorID, q.AuthorID != ""), bloomsTagNull(q.BloomsTag),
			q.CreatedAt, q.UpdatedAt,
		)
		if err != nil {
			if uniqueViolation(err, "question_qset_text_key") {
				return qset.ErrDuplicateQuestion
			}
			return errors.Wrap(err, "creating question")
		}
		return applyDeltas(ctx, tx, qset.ChainDeltas("", q.QsetID, 1))
	})
	if err != nil {
		return qset.Question{}, err
	}
	return q, nil
}

func bloomsTagNull(tag *qset.BloomsTag) null.Int16 {
	if tag == nil {
		return null.Int16{}
	}
	return null.Int16From(int16(*tag))
}

func (repo *qsetRepository) GetQuestion(ctx context.Context, id string, exec ...core.DBExecutor) (qset.Question, error) {
	var row questionRow
	if err := sqlx.GetContext(ctx, ext(repo.db, exec), &row, selectQuestion+` WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return qset.Question{}, qset.ErrQuestionNotFound
		}
		return qset.Question{}, errors.Wrap(err, "getting question")
	}
	return row.question(), nil
}

func (repo *qsetRepository) QueryQuestions(ctx context.Context, query qset.QuestionQuery, exec ...core.DBExecutor) ([]qset.Question, error) {
	q := selectQuestion + ` WHERE qset_id = $1`
	args := []interface{}{query.QsetID}
	switch {
	case query.AuthorID != "":
		q += ` AND author_id = $2`
		args = append(args, query.AuthorID)
	case query.ExcludeAuthorID != "":
		q += ` AND (author_id IS NULL OR author_id <> $2)`
		args = append(args, query.ExcludeAuthorID)
	}
	q += ` ORDER BY vote_value DESC, text`

	var rows []questionRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	questions := make([]qset.Question, len(rows))
	for i, row := range rows {
		questions[i] = row.question()
	}
	return questions, nil
}

func (repo *qsetRepository) UpdateQuestion(ctx context.Context, q qset.Question, exec ...core.DBExecutor) (qset.Question, error) {
	_, err := ext(repo.db, exec).ExecContext(ctx, `
UPDATE question
SET text = $1, answer_text = $2, blooms_tag = $3, updated_at = $4
WHERE id = $5`,
		q.Text, q.AnswerText, bloomsTagNull(q.BloomsTag), q.UpdatedAt, q.ID,
	)
	if err != nil {
		if uniqueViolation(err, "question_qset_text_key") {
			return qset.Question{}, qset.ErrDuplicateQuestion
		}
		return qset.Question{}, errors.Wrap(err, "updating question")
	}
	return q, nil
}

func (repo *qsetRepository) DeleteQuestion(ctx context.Context, id string) error {
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		var qsetID string
		err := sqlx.GetContext(ctx, tx, &qsetID,
			`SELECT qset_id FROM question WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if err == sql.ErrNoRows {
				return qset.ErrQuestionNotFound
			}
			return errors.Wrap(err, "locking question")
		}

		if _, err = tx.ExecContext(ctx, `DELETE FROM question WHERE id = $1`, id); err != nil {
			return errors.Wrap(err, "deleting question")
		}
		return applyDeltas(ctx, tx, qset.ChainDeltas(qsetID, "", 1))
	})
}

func (repo *qsetRepository) MoveQuestion(ctx context.Context, id, newQsetID string) error {
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		var qsetID string
		err := sqlx.GetContext(ctx, tx, &qsetID,
			`SELECT qset_id FROM question WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if err == sql.ErrNoRows {
				return qset.ErrQuestionNotFound
			}
			return errors.Wrap(err, "locking question")
		}
		if qsetID == newQsetID {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE question SET qset_id = $1 WHERE id = $2`, newQsetID, id)
		if err != nil {
			if uniqueViolation(err, "question_qset_text_key") {
				return qset.ErrDuplicateQuestion
			}
			return errors.Wrap(err, "moving question")
		}
		return applyDeltas(ctx, tx, qset.ChainDeltas(qsetID, newQsetID, 1))
	})
}

// Votes & Answers

func (repo *qsetRepository) CastVote(ctx context.Context, v qset.Vote) (int, error) {
	var total int
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO vote (id, value, question_id, voter_id, created_at)
VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), v.Value, v.QuestionID, v.VoterID, v.CreatedAt,
		)
		if err != nil {
			if uniqueViolation(err, "vote_question_voter_key") {
				return qset.ErrAlreadyVoted
			}
			return errors.Wrap(err, "casting vote")
		}

		err = sqlx.GetContext(ctx, tx, &total,
			`UPDATE question SET vote_value = vote_value + $1 WHERE id = $2 RETURNING vote_value`,
			v.Value, v.QuestionID)
		return errors.Wrap(err, "updating question score")
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (repo *qsetRepository) CreateAnswer(ctx context.Context, a qset.Answer, exec ...core.DBExecutor) (qset.Answer, error) {
	a.ID = uuid.New().String()
	_, err := ext(repo.db, exec).ExecContext(ctx, `
INSERT INTO answer (id, text, question_id, author_id, self_evaluation, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Text, a.QuestionID, null.NewString(a.AuthorID, a.AuthorID != ""), a.SelfEvaluation, a.CreatedAt,
	)
	if err != nil {
		return qset.Answer{}, errors.Wrap(err, "creating answer")
	}
	return a, nil
}

func (repo *qsetRepository) UserStats(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) (qset.Stats, error) {
	e := ext(repo.db, exec)

	var stats qset.Stats
	err := sqlx.GetContext(ctx, e, &stats, `
SELECT COUNT(*) AS questions, COALESCE(SUM(q.vote_value), 0) AS score
FROM question q
         JOIN qset s ON q.qset_id = s.id
WHERE s.top_qset_id = $1
  AND q.author_id = $2`, orgID, userID)
	if err != nil {
		return qset.Stats{}, errors.Wrap(err, "counting questions")
	}

	var answers struct {
		Correct   int `db:"correct"`
		Incorrect int `db:"incorrect"`
	}
	err = sqlx.GetContext(ctx, e, &answers, `
SELECT COUNT(*) FILTER (WHERE a.self_evaluation = $3) AS correct,
       COUNT(*) FILTER (WHERE a.self_evaluation = $4) AS incorrect
FROM answer a
         JOIN question q ON a.question_id = q.id
         JOIN qset s ON q.qset_id = s.id
WHERE s.top_qset_id = $1
  AND a.author_id = $2`, orgID, userID, qset.EvaluationCorrect, qset.EvaluationWrong)
	if err != nil {
		return qset.Stats{}, errors.Wrap(err, "counting answers")
	}
	stats.CorrectAnswers = answers.Correct
	stats.IncorrectAnswers = answers.Incorrect
	return stats, nil
}
