package stub

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/autonex-ai/autonex-client/internal/validate"
)

// defaultDurationMinutes applies to tests created without an explicit
// duration, matching the real backend's six-hour window.
const defaultDurationMinutes = 360

// Server is the stub backend. All endpoints speak the real service's wire
// format: flat JSON bodies on success and {"detail": "..."} on rejection.
type Server struct {
	state    *state
	secret   []byte
	expiry   time.Duration
	cost     int
	validate *validate.Validator
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a stub Server. secret signs the issued tokens; cost is the
// bcrypt cost for seeded accounts.
func New(secret string, expiry time.Duration, cost int, log zerolog.Logger) *Server {
	return &Server{
		state:    newState(),
		secret:   []byte(secret),
		expiry:   expiry,
		cost:     cost,
		validate: validate.New(),
		log:      log.With().Str("component", "stub").Logger(),
		now:      time.Now,
	}
}

// SeedUser adds an account and returns its id.
func (s *Server) SeedUser(username, password string, isAdmin bool) (int64, error) {
	u, err := s.state.addUser(username, password, isAdmin, s.cost)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// SeedTest adds a test with questions and returns its id. Each link becomes
// one question.
func (s *Server) SeedTest(title string, durationMinutes int, links []string) int64 {
	t := s.state.addTest(title, "", durationMinutes)
	for i, link := range links {
		s.state.addQuestion(t.ID, "", link, "Task "+strconv.Itoa(i+1))
	}
	return t.ID
}

// claims is the token payload issued by the stub.
type claims struct {
	UserID  int64 `json:"user_id"`
	IsAdmin bool  `json:"is_admin"`
	jwt.RegisteredClaims
}

// Engine builds the gin router with all routes registered.
func (s *Server) Engine(mode string) *gin.Engine {
	gin.SetMode(mode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(requestID())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/login", s.login)

	authed := router.Group("/")
	authed.Use(s.requireAuth())
	{
		authed.POST("/start-test/:test_id/:user_id", s.startTest)
		authed.GET("/session/:session_id/info", s.sessionInfo)
		authed.GET("/session/:session_id/question", s.sessionQuestion)
		authed.POST("/session/:session_id/submit", s.sessionSubmit)
	}

	admin := router.Group("/admin")
	admin.Use(s.requireAuth(), s.requireAdmin())
	{
		admin.GET("/tests", s.listTests)
		admin.GET("/active-test", s.activeTest)
		admin.POST("/create-test", s.createTest)
		admin.POST("/test/:test_id/activate", s.activateTest)
		admin.POST("/test/:test_id/deactivate", s.deactivateTest)
		admin.DELETE("/test/:test_id", s.deleteTest)
		admin.GET("/test/:test_id/questions", s.listQuestions)
		admin.POST("/test/:test_id/add-question", s.addQuestion)
		admin.DELETE("/question/:question_id", s.deleteQuestion)
		admin.GET("/users", s.listUsers)
		admin.GET("/test/:test_id/results", s.testResults)
		admin.GET("/report/:session_id", s.sessionReport)
		admin.POST("/evaluate/:session_id", s.evaluate)
	}

	return router
}

// fail sends the backend's flat error body.
func fail(c *gin.Context, statusCode int, detail string) {
	c.JSON(statusCode, gin.H{"detail": detail})
}

// requestID echoes or generates an X-Request-ID header per request.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requireAuth validates the bearer token and stores its claims.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		const prefix = "Bearer "
		header := c.GetHeader("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}

		var cl claims
		token, err := jwt.ParseWithClaims(header[len(prefix):], &cl, func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token"})
			return
		}

		c.Set("claims", &cl)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, ok := c.MustGet("claims").(*claims)
		if !ok || !cl.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Admin access required"})
			return
		}
		c.Next()
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /login
// Token issuance with the backend's exact rejection semantics: unknown user
// is 404, wrong password 401, deactivated account 400.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := s.validate.Struct(req); fields != nil {
		fail(c, http.StatusBadRequest, "Username and password are required")
		return
	}

	s.state.mu.Lock()
	u := s.state.userByName(req.Username)
	s.state.mu.Unlock()

	if u == nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)); err != nil {
		fail(c, http.StatusUnauthorized, "Incorrect password")
		return
	}
	if !u.IsActive {
		fail(c, http.StatusBadRequest, "User is inactive")
		return
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		UserID:  u.ID,
		IsAdmin: u.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to sign token")
		fail(c, http.StatusInternalServerError, "Could not issue token")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": signed,
		"token_type":   "bearer",
		"user_id":      u.ID,
		"username":     u.Username,
		"is_admin":     u.IsAdmin,
	})
}

// POST /start-test/:test_id/:user_id
// Idempotent: a second call returns the existing attempt unchanged.
func (s *Server) startTest(c *gin.Context) {
	testID, err1 := strconv.ParseInt(c.Param("test_id"), 10, 64)
	userID, err2 := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err1 != nil || err2 != nil {
		fail(c, http.StatusBadRequest, "Invalid path parameters")
		return
	}

	s.state.mu.Lock()
	_, testExists := s.state.tests[testID]
	s.state.mu.Unlock()
	if !testExists {
		fail(c, http.StatusNotFound, "Test not found")
		return
	}

	a, ok := s.state.startAttempt(testID, userID, s.now().UTC())
	if !ok {
		fail(c, http.StatusNotFound, "Test has no questions")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"session_id":      a.ID,
		"current_index":   a.Index,
		"total_questions": len(a.Order),
		"is_completed":    a.IsCompleted,
	})
}

// attemptByParam resolves :session_id or replies 404 with the given detail.
func (s *Server) attemptByParam(c *gin.Context, notFoundDetail string) *attempt {
	id, err := strconv.ParseInt(c.Param("session_id"), 10, 64)
	if err != nil {
		fail(c, http.StatusNotFound, notFoundDetail)
		return nil
	}

	s.state.mu.Lock()
	a := s.state.attempts[id]
	s.state.mu.Unlock()
	if a == nil {
		fail(c, http.StatusNotFound, notFoundDetail)
		return nil
	}
	return a
}

// GET /session/:session_id/info
func (s *Server) sessionInfo(c *gin.Context) {
	a := s.attemptByParam(c, "Session not found")
	if a == nil {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	duration := defaultDurationMinutes
	if t := s.state.tests[a.TestID]; t != nil && t.DurationMinutes > 0 {
		duration = t.DurationMinutes
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":       a.ID,
		"start_time":       a.StartTime.Format(time.RFC3339),
		"duration_minutes": duration,
		"is_completed":     a.IsCompleted,
	})
}

// GET /session/:session_id/question
// Completion is reported here the way the real backend does it: a finished
// attempt answers 400, and the transition onto the first index past the end
// answers HTTP 200 with a detail body.
func (s *Server) sessionQuestion(c *gin.Context) {
	a := s.attemptByParam(c, "Session not found")
	if a == nil {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if a.IsCompleted {
		fail(c, http.StatusBadRequest, "Test is already completed")
		return
	}
	if a.Index >= len(a.Order) {
		a.IsCompleted = true
		c.JSON(http.StatusOK, gin.H{"detail": "Test Completed"})
		return
	}

	q := s.state.questions[a.Order[a.Index]]
	if q == nil {
		fail(c, http.StatusNotFound, "Question not found")
		return
	}
	c.JSON(http.StatusOK, questionJSON(q))
}

func questionJSON(q *question) gin.H {
	body := gin.H{
		"id":          q.ID,
		"link":        q.Link,
		"description": q.Description,
	}
	if q.TaskID != "" {
		body["task_id"] = q.TaskID
	}
	return body
}

type submitRequest struct {
	QuestionID    int64  `json:"question_id" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=Success Failure"`
	Explanation   string `json:"explanation" validate:"required"`
	CriticalError string `json:"critical_error"`
}

// POST /session/:session_id/submit
// Accepts the answer only for the question at the current index, then
// advances. The attempt auto-completes when the last answer lands.
func (s *Server) sessionSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := s.validate.Struct(req); fields != nil {
		fail(c, http.StatusBadRequest, "Invalid answer payload")
		return
	}

	a := s.attemptByParam(c, "Invalid session")
	if a == nil {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if a.IsCompleted || a.Index >= len(a.Order) {
		fail(c, http.StatusBadRequest, "Invalid session")
		return
	}
	if req.QuestionID != a.Order[a.Index] {
		fail(c, http.StatusBadRequest, "Sync Error. You are answering the wrong question.")
		return
	}

	a.Answers = append(a.Answers, answer{
		QuestionID:    req.QuestionID,
		Status:        req.Status,
		Explanation:   req.Explanation,
		CriticalError: req.CriticalError,
	})
	a.Index++
	if a.Index >= len(a.Order) {
		a.IsCompleted = true
	}

	c.JSON(http.StatusOK, gin.H{"message": "Answer saved", "next_index": a.Index})
}
