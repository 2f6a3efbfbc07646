package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/quizroom/quizroom/internal/api/http"
	"github.com/quizroom/quizroom/internal/attempt"
	"github.com/quizroom/quizroom/internal/audit"
	auth "github.com/quizroom/quizroom/internal/auth/middleware"
	"github.com/quizroom/quizroom/internal/config"
	"github.com/quizroom/quizroom/internal/db"
	"github.com/quizroom/quizroom/internal/quiz"
	"github.com/quizroom/quizroom/internal/ratelimit"
	"github.com/quizroom/quizroom/internal/rbac"
	"github.com/quizroom/quizroom/internal/roster"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	catalog := quiz.NewSQLStore(dbh)
	rosterStore := roster.NewStore(dbh)
	attemptStore := attempt.NewSQLStore(dbh)
	sink := audit.NewSQLSink(dbh)
	svc := attempt.NewService(attemptStore, catalog, rosterStore, sink, nil, nil)

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	attempts := &api.AttemptHandlers{Svc: svc}
	quizzes := &api.QuizHandlers{Catalog: catalog, Roster: rosterStore, Now: time.Now}
	users := &api.RosterHandlers{Store: rosterStore}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Local login (throttled; enabled in offline mode by default)
	if cfg.EnableLocalAuth {
		limiter := ratelimit.New(cfg.LoginRateMax, cfg.LoginRateWindow, nil)
		r.With(limiter.Middleware).Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	}

	// Protected API (JWT → subject/role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Catalog
		pr.With(rbac.Require("quiz:create")).Post("/quizzes", quizzes.Put)
		pr.With(rbac.Require("quiz:view")).Get("/quizzes", quizzes.List)
		pr.With(rbac.Require("quiz:view")).Get("/quizzes/{quizID}", quizzes.Get)
		pr.With(rbac.Require("quiz:view")).Get("/quizzes/{quizID}/questions", quizzes.Questions)
		pr.With(rbac.Require("quiz:delete")).Delete("/quizzes/{quizID}", quizzes.Delete)

		// Student flow
		pr.With(rbac.Require("attempt:create")).Post("/attempts/start", attempts.Start)
		pr.With(rbac.Require("attempt:save")).Post("/attempts/answer", attempts.SubmitAnswer)
		pr.With(rbac.Require("attempt:save")).Post("/attempts/{attemptID}/batch", attempts.SubmitBatch)
		pr.With(rbac.Require("attempt:submit")).Post("/attempts/complete", attempts.Complete)
		pr.With(rbac.Require("attempt:view-own")).Get("/attempts/current", attempts.Current)
		pr.With(rbac.Require("attempt:view-own")).Get("/attempts/my-attempts", attempts.MyAttempts)
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/results/{attemptID}", attempts.Results)
		pr.With(rbac.Require("attempt:save")).Post("/attempts/{attemptID}/events", attempts.RecordEvent)

		// Teacher views
		pr.With(rbac.Require("attempt:view-all")).Get("/attempts/quiz/{quizID}/results", attempts.QuizResults)
		pr.With(rbac.Require("attempt:view-all")).Get("/quizzes/{quizID}/anti-cheating-log", attempts.AntiCheatLog)
		pr.With(rbac.Require("attempt:view-all")).Get("/quizzes/{quizID}/student-statuses", attempts.StudentStatuses)
		pr.With(rbac.Require("attempt:view-all")).Get("/quizzes/{quizID}/student-detail/{studentID}", attempts.StudentDetail)
		pr.With(rbac.Require("attempt:grade")).Post("/attempts/{attemptID}/grade", attempts.Grade)
		pr.With(rbac.Require("attempt:reissue")).Post("/quizzes/{quizID}/reissue", attempts.Reissue)
		pr.With(rbac.Require("quiz:update")).Post("/quizzes/{quizID}/close", attempts.CloseEarly)

		// Roster (teacher/admin)
		pr.With(rbac.Require("users:bulk_upsert")).Post("/users/bulk", users.BulkUpsert)
		pr.With(rbac.Require("users:list")).Get("/users", users.ListUsers)
		pr.With(rbac.Require("groups:manage")).Post("/groups", users.CreateGroup)
		pr.With(rbac.Require("groups:manage")).Post("/groups/{groupID}/members", users.AddMember)
		pr.With(rbac.Require("groups:manage")).Delete("/groups/{groupID}/members/{userID}", users.RemoveMember)
		pr.With(rbac.Require("groups:manage")).Get("/groups/{groupID}/members", users.ListMembers)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
