// Package stub is an in-memory double of the assessment backend, wire
// compatible with the real service. It backs local development and the
// end-to-end tests; nothing in it survives a restart.
package stub

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type user struct {
	ID           int64
	Username     string
	PasswordHash []byte
	IsActive     bool
	IsAdmin      bool
}

type test struct {
	ID              int64
	Title           string
	Description     string
	DurationMinutes int
	IsActive        bool
}

type question struct {
	ID          int64
	TestID      int64
	TaskID      string
	Link        string
	Description string
}

type answer struct {
	QuestionID    int64
	Status        string
	Explanation   string
	CriticalError string
	Grade         string
}

type attempt struct {
	ID          int64
	UserID      int64
	TestID      int64
	Order       []int64 // shuffled question ids
	Index       int
	StartTime   time.Time
	IsCompleted bool
	Answers     []answer
	Score       int
	Evaluated   bool
}

// state holds every record behind one mutex. The stub is a test double, not
// a server under load; contention is irrelevant.
type state struct {
	mu sync.Mutex

	users     map[int64]*user
	tests     map[int64]*test
	questions map[int64]*question
	attempts  map[int64]*attempt

	nextUser     int64
	nextTest     int64
	nextQuestion int64
	nextAttempt  int64

	rng *rand.Rand
}

func newState() *state {
	return &state{
		users:     make(map[int64]*user),
		tests:     make(map[int64]*test),
		questions: make(map[int64]*question),
		attempts:  make(map[int64]*attempt),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// addUser seeds an account. Callers pass the bcrypt cost so the e2e suite can
// run at MinCost.
func (s *state) addUser(username, password string, isAdmin bool, cost int) (*user, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUser++
	u := &user{
		ID:           s.nextUser,
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      isAdmin,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *state) userByName(username string) *user {
	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func (s *state) addTest(title, description string, durationMinutes int) *test {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTest++
	t := &test{
		ID:              s.nextTest,
		Title:           title,
		Description:     description,
		DurationMinutes: durationMinutes,
	}
	s.tests[t.ID] = t
	return t
}

func (s *state) addQuestion(testID int64, taskID, link, description string) *question {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextQuestion++
	q := &question{
		ID:          s.nextQuestion,
		TestID:      testID,
		TaskID:      taskID,
		Link:        link,
		Description: description,
	}
	s.questions[q.ID] = q
	return q
}

// testQuestions returns a test's questions in insertion order. Callers must
// hold s.mu.
func (s *state) testQuestions(testID int64) []*question {
	var out []*question
	for id := s.nextQuestion; id > 0; id-- {
		if q, ok := s.questions[id]; ok && q.TestID == testID {
			out = append(out, q)
		}
	}
	// Walked newest-first above; reverse into insertion order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// findAttempt returns the user's attempt at a test, if one exists. Callers
// must hold s.mu.
func (s *state) findAttempt(testID, userID int64) *attempt {
	for _, a := range s.attempts {
		if a.TestID == testID && a.UserID == userID {
			return a
		}
	}
	return nil
}

// startAttempt creates or resumes the user's attempt. The question order is
// shuffled once at creation and never changes afterwards.
func (s *state) startAttempt(testID, userID int64, now time.Time) (*attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a := s.findAttempt(testID, userID); a != nil {
		return a, true
	}

	qs := s.testQuestions(testID)
	if len(qs) == 0 {
		return nil, false
	}

	order := make([]int64, len(qs))
	for i, q := range qs {
		order[i] = q.ID
	}
	s.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	s.nextAttempt++
	a := &attempt{
		ID:        s.nextAttempt,
		UserID:    userID,
		TestID:    testID,
		Order:     order,
		StartTime: now,
	}
	s.attempts[a.ID] = a
	return a, true
}
