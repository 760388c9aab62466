package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rowanhart/routinely/internal/handler"
	"github.com/rowanhart/routinely/internal/middleware"
	"github.com/rowanhart/routinely/internal/notify"
	"github.com/rowanhart/routinely/internal/push"
	"github.com/rowanhart/routinely/internal/routine"
	"github.com/rowanhart/routinely/internal/store"
	ws "github.com/rowanhart/routinely/internal/websocket"
)

// Config holds the server-level knobs read from the environment by main.
type Config struct {
	Push          push.Config
	StrictMetrics bool
}

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	authH        *handler.AuthHandler
	memberH      *handler.FamilyMemberHandler
	taskH        *handler.TaskHandler
	routineH     *handler.RoutineHandler
	goalH        *handler.GoalHandler
	rewardH      *handler.RewardHandler
	pointsH      *handler.PointsHandler
	pushH        *handler.PushHandler
	pushEnabled  bool
	sessionStore *store.SessionStore
	userStore    *store.UserStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	memberStore := store.NewFamilyMemberStore(db)
	taskStore := store.NewTaskStore(db)
	routineStore := store.NewRoutineStore(db)
	completionStore := store.NewCompletionStore(db)
	pointsStore := store.NewPointsStore(db)
	rewardStore := store.NewRewardStore(db)
	goalStore := store.NewGoalStore(db, completionStore)
	pushStore := store.NewPushStore(db)

	// The push handler also serves the notification log, which exists
	// whether or not web push is configured.
	var pushSvc *push.Service
	if cfg.Push.Enabled() {
		pushSvc = push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey)
	}
	pushH := handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push"))

	notifier := notify.NewService(pushStore, pushSvc, hub, logger.With("component", "notify"))
	engine := routine.NewEngine(completionStore, notifier, cfg.StrictMetrics, logger.With("component", "engine"))

	return &Server{
		db:           db,
		hub:          hub,
		authH:        handler.NewAuthHandler(userStore, sessionStore, logger.With("component", "auth")),
		memberH:      handler.NewFamilyMemberHandler(memberStore, logger.With("component", "family_member")),
		taskH:        handler.NewTaskHandler(taskStore, logger.With("component", "task")),
		routineH:     handler.NewRoutineHandler(routineStore, engine, hub, logger.With("component", "routine")),
		goalH:        handler.NewGoalHandler(goalStore, pointsStore, hub, logger.With("component", "goal")),
		rewardH:      handler.NewRewardHandler(rewardStore, pointsStore, userStore, notifier, hub, logger.With("component", "reward")),
		pointsH:      handler.NewPointsHandler(pointsStore, memberStore, hub, logger.With("component", "points")),
		pushH:        pushH,
		pushEnabled:  cfg.Push.Enabled(),
		sessionStore: sessionStore,
		userStore:    userStore,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)

	// Family members
	mux.HandleFunc("GET /api/family-members", s.memberH.List)
	mux.HandleFunc("POST /api/family-members", s.memberH.Create)
	mux.HandleFunc("PUT /api/family-members/{id}", s.memberH.Update)
	mux.HandleFunc("DELETE /api/family-members/{id}", s.memberH.Delete)
	mux.HandleFunc("PUT /api/family-members/sort", s.memberH.UpdateSortOrder)

	// PIN routes
	mux.HandleFunc("POST /api/family-members/{id}/pin", s.memberH.SetPIN)
	mux.HandleFunc("DELETE /api/family-members/{id}/pin", s.memberH.ClearPIN)
	mux.HandleFunc("POST /api/family-members/{id}/pin/verify", s.memberH.VerifyPIN)

	// Task library
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)

	// Routines
	mux.HandleFunc("GET /api/routines", s.routineH.List)
	mux.HandleFunc("POST /api/routines", s.routineH.Create)
	mux.HandleFunc("GET /api/routines/today", s.routineH.Today)
	mux.HandleFunc("GET /api/routines/{id}", s.routineH.Get)
	mux.HandleFunc("PUT /api/routines/{id}", s.routineH.Update)
	mux.HandleFunc("PUT /api/routines/{id}/tasks", s.routineH.SetTasks)
	mux.HandleFunc("DELETE /api/routines/{id}", s.routineH.Delete)
	mux.HandleFunc("POST /api/routines/{id}/start", s.routineH.Start)
	mux.HandleFunc("POST /api/routines/{id}/tasks/{task_id}/complete", s.routineH.CompleteTask)
	mux.HandleFunc("POST /api/routines/{id}/reset", s.routineH.Reset)
	mux.HandleFunc("POST /api/routines/{id}/complete", s.routineH.Complete)

	// Goals
	mux.HandleFunc("GET /api/goals", s.goalH.List)
	mux.HandleFunc("POST /api/goals", s.goalH.Create)
	mux.HandleFunc("GET /api/goals/{id}/progress", s.goalH.Progress)
	mux.HandleFunc("PUT /api/goals/{id}", s.goalH.Update)
	mux.HandleFunc("DELETE /api/goals/{id}", s.goalH.Delete)
	mux.HandleFunc("POST /api/goals/{id}/increment", s.goalH.Increment)
	mux.HandleFunc("POST /api/goals/{id}/award", s.goalH.Award)

	// Rewards
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.HandleFunc("POST /api/rewards", s.rewardH.Create)
	mux.HandleFunc("PUT /api/rewards/{id}", s.rewardH.Update)
	mux.HandleFunc("DELETE /api/rewards/{id}", s.rewardH.Delete)
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.rewardH.Redeem)
	mux.HandleFunc("GET /api/redemptions", s.rewardH.Redemptions)

	// Points
	mux.HandleFunc("GET /api/family-members/{id}/points", s.pointsH.Balance)
	mux.HandleFunc("GET /api/family-members/{id}/points/history", s.pointsH.History)
	mux.HandleFunc("POST /api/family-members/{id}/points/adjust", s.pointsH.Adjust)
	mux.HandleFunc("GET /api/leaderboard", s.pointsH.Leaderboard)

	// Notification log, written on every settlement and redemption
	mux.HandleFunc("GET /api/notifications", s.pushH.ListNotifications)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.pushH.MarkNotificationRead)

	// Web push, only with VAPID keys configured
	if s.pushEnabled {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}
