// Package inmemdb provides map-backed repositories for tests and local
// runs. Mutations that span several rows copy the affected tables first
// and restore them on failure, mirroring the transactional guarantees of
// the SQL repositories.
package inmemdb

import (
	"sync"

	"github.com/askuphq/askup/core/qset"
	"github.com/askuphq/askup/core/user"
)

// PropagationFault, when set, is invoked before each aggregate row update
// with the id of the qset about to change; a non-nil return aborts the
// walk and rolls the whole mutation back. Tests use it to exercise
// atomicity.
// mockable
var PropagationFault func(qsetID string) error

type DB struct {
	mutex sync.RWMutex

	users     map[string]*user.User
	qsets     map[string]*qset.Qset
	members   map[string]map[string]bool // orgID -> userID set
	questions map[string]*qset.Question
	answers   map[string]*qset.Answer
	votes     map[string]*qset.Vote // questionID + "|" + voterID
}

func Open() (*DB, error) {
	db := &DB{
		users:     make(map[string]*user.User),
		qsets:     make(map[string]*qset.Qset),
		members:   make(map[string]map[string]bool),
		questions: make(map[string]*qset.Question),
		answers:   make(map[string]*qset.Answer),
		votes:     make(map[string]*qset.Vote),
	}
	return db, nil
}

type snapshot struct {
	qsets     map[string]*qset.Qset
	members   map[string]map[string]bool
	questions map[string]*qset.Question
	answers   map[string]*qset.Answer
	votes     map[string]*qset.Vote
}

func (db *DB) snapshot() snapshot {
	s := snapshot{
		qsets:     make(map[string]*qset.Qset, len(db.qsets)),
		members:   make(map[string]map[string]bool, len(db.members)),
		questions: make(map[string]*qset.Question, len(db.questions)),
		answers:   make(map[string]*qset.Answer, len(db.answers)),
		votes:     make(map[string]*qset.Vote, len(db.votes)),
	}
	for id, qs := range db.qsets {
		cp := *qs
		s.qsets[id] = &cp
	}
	for orgID, set := range db.members {
		cp := make(map[string]bool, len(set))
		for userID := range set {
			cp[userID] = true
		}
		s.members[orgID] = cp
	}
	for id, q := range db.questions {
		cp := *q
		s.questions[id] = &cp
	}
	for id, a := range db.answers {
		cp := *a
		s.answers[id] = &cp
	}
	for k, v := range db.votes {
		cp := *v
		s.votes[k] = &cp
	}
	return s
}

func (db *DB) restore(s snapshot) {
	db.qsets = s.qsets
	db.members = s.members
	db.questions = s.questions
	db.answers = s.answers
	db.votes = s.votes
}

// inTx runs fn under the write lock; on error every table touched by
// tree mutations is restored to its pre-fn state.
func (db *DB) inTx(fn func() error) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	s := db.snapshot()
	if err := fn(); err != nil {
		db.restore(s)
		return err
	}
	return nil
}
