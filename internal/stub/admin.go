package stub

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Admin endpoints. The console talks to these; everything operates on the
// shared in-memory state.

func testJSON(s *state, t *test) gin.H {
	return gin.H{
		"id":               t.ID,
		"title":            t.Title,
		"description":      t.Description,
		"duration_minutes": t.DurationMinutes,
		"question_count":   len(s.testQuestions(t.ID)),
		"is_active":        t.IsActive,
	}
}

// GET /admin/tests
func (s *Server) listTests(c *gin.Context) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	out := []gin.H{}
	for id := int64(1); id <= s.state.nextTest; id++ {
		if t, ok := s.state.tests[id]; ok {
			out = append(out, testJSON(s.state, t))
		}
	}
	c.JSON(http.StatusOK, out)
}

// GET /admin/active-test
func (s *Server) activeTest(c *gin.Context) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	for _, t := range s.state.tests {
		if t.IsActive {
			c.JSON(http.StatusOK, testJSON(s.state, t))
			return
		}
	}
	fail(c, http.StatusNotFound, "Test not found")
}

type createTestRequest struct {
	Title           string `json:"title" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	Description     string `json:"description"`
}

// POST /admin/create-test
func (s *Server) createTest(c *gin.Context) {
	var req createTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := s.validate.Struct(req); fields != nil {
		fail(c, http.StatusBadRequest, "Title is required")
		return
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = defaultDurationMinutes
	}

	t := s.state.addTest(req.Title, req.Description, req.DurationMinutes)

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	c.JSON(http.StatusOK, testJSON(s.state, t))
}

func (s *Server) testByParam(c *gin.Context) *test {
	id, err := strconv.ParseInt(c.Param("test_id"), 10, 64)
	if err != nil {
		fail(c, http.StatusNotFound, "Test not found")
		return nil
	}

	s.state.mu.Lock()
	t := s.state.tests[id]
	s.state.mu.Unlock()
	if t == nil {
		fail(c, http.StatusNotFound, "Test not found")
		return nil
	}
	return t
}

// POST /admin/test/:test_id/activate
// At most one test is active at a time; activating one deactivates the rest.
func (s *Server) activateTest(c *gin.Context) {
	t := s.testByParam(c)
	if t == nil {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for _, other := range s.state.tests {
		other.IsActive = false
	}
	t.IsActive = true
	c.JSON(http.StatusOK, gin.H{"id": t.ID, "is_active": true})
}

// POST /admin/test/:test_id/deactivate
func (s *Server) deactivateTest(c *gin.Context) {
	t := s.testByParam(c)
	if t == nil {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	t.IsActive = false
	c.JSON(http.StatusOK, gin.H{"id": t.ID, "is_active": false})
}

// DELETE /admin/test/:test_id
// Removes the test with its questions and attempts.
func (s *Server) deleteTest(c *gin.Context) {
	t := s.testByParam(c)
	if t == nil {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for id, q := range s.state.questions {
		if q.TestID == t.ID {
			delete(s.state.questions, id)
		}
	}
	for id, a := range s.state.attempts {
		if a.TestID == t.ID {
			delete(s.state.attempts, id)
		}
	}
	delete(s.state.tests, t.ID)
	c.JSON(http.StatusOK, gin.H{"deleted": t.ID})
}

// GET /admin/test/:test_id/questions
func (s *Server) listQuestions(c *gin.Context) {
	t := s.testByParam(c)
	if t == nil {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	out := []gin.H{}
	for _, q := range s.state.testQuestions(t.ID) {
		out = append(out, questionJSON(q))
	}
	c.JSON(http.StatusOK, out)
}

type addQuestionRequest struct {
	TaskID      string `json:"task_id"`
	Link        string `json:"link" validate:"required,url"`
	Description string `json:"description"`
}

// POST /admin/test/:test_id/add-question
func (s *Server) addQuestion(c *gin.Context) {
	t := s.testByParam(c)
	if t == nil {
		return
	}

	var req addQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := s.validate.Struct(req); fields != nil {
		fail(c, http.StatusBadRequest, "A valid link is required")
		return
	}

	q := s.state.addQuestion(t.ID, req.TaskID, req.Link, req.Description)
	c.JSON(http.StatusOK, questionJSON(q))
}

// DELETE /admin/question/:question_id
func (s *Server) deleteQuestion(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("question_id"), 10, 64)
	if err != nil {
		fail(c, http.StatusNotFound, "Question not found")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if _, ok := s.state.questions[id]; !ok {
		fail(c, http.StatusNotFound, "Question not found")
		return
	}
	delete(s.state.questions, id)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// GET /admin/users
func (s *Server) listUsers(c *gin.Context) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	out := []gin.H{}
	for id := int64(1); id <= s.state.nextUser; id++ {
		if u, ok := s.state.users[id]; ok {
			out = append(out, gin.H{
				"id":        u.ID,
				"username":  u.Username,
				"is_active": u.IsActive,
				"is_admin":  u.IsAdmin,
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

// GET /admin/test/:test_id/results
func (s *Server) testResults(c *gin.Context) {
	t := s.testByParam(c)
	if t == nil {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	out := []gin.H{}
	for id := int64(1); id <= s.state.nextAttempt; id++ {
		a, ok := s.state.attempts[id]
		if !ok || a.TestID != t.ID {
			continue
		}
		username := ""
		if u := s.state.users[a.UserID]; u != nil {
			username = u.Username
		}
		out = append(out, gin.H{
			"id":           a.ID,
			"user_id":      a.UserID,
			"username":     username,
			"is_completed": a.IsCompleted,
			"score":        a.Score,
		})
	}
	c.JSON(http.StatusOK, out)
}

// GET /admin/report/:session_id
func (s *Server) sessionReport(c *gin.Context) {
	a := s.attemptByParam(c, "Session not found")
	if a == nil {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	username := ""
	if u := s.state.users[a.UserID]; u != nil {
		username = u.Username
	}

	entries := []gin.H{}
	for _, ans := range a.Answers {
		entry := gin.H{
			"question_id":    ans.QuestionID,
			"status":         ans.Status,
			"explanation":    ans.Explanation,
			"critical_error": ans.CriticalError,
		}
		if q := s.state.questions[ans.QuestionID]; q != nil {
			entry["link"] = q.Link
			if q.TaskID != "" {
				entry["task_id"] = q.TaskID
			}
		}
		if ans.Grade != "" {
			entry["grade"] = ans.Grade
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": a.ID,
		"username":   username,
		"score":      a.Score,
		"entries":    entries,
	})
}

// POST /admin/evaluate/:session_id
// Stands in for the grading pipeline: every self-reported success counts as
// a point. Good enough for exercising the console against the stub.
func (s *Server) evaluate(c *gin.Context) {
	a := s.attemptByParam(c, "Session not found")
	if a == nil {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	score := 0
	for i := range a.Answers {
		if a.Answers[i].Status == "Success" {
			a.Answers[i].Grade = "Accepted"
			score++
		} else {
			a.Answers[i].Grade = "Rejected"
		}
	}
	a.Score = score
	a.Evaluated = true

	c.JSON(http.StatusOK, gin.H{"session_id": a.ID, "score": score})
}
