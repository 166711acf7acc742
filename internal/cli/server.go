package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/config"
	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/infra/memory"
	pgstore "school-quiz-service/internal/infra/postgres"
	rediscatalog "school-quiz-service/internal/infra/redis"
	transport "school-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)

	var loader interface {
		LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	} = memory.NewStaticCatalogLoader(sampleQuizzes())

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		loader = pgstore.NewCatalogLoader(pool)

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		store = pgstore.NewStore(bun.NewDB(sqldb, pgdialect.New()))
	}

	var catalog app.QuizCatalog
	if redisClient != nil {
		catalog = rediscatalog.NewCatalog(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalog(loader, catalogTTL)
	}

	auth := memory.NewStaticAuthenticator(tokenTable(cfg))
	service := app.NewService(store, catalog)
	handler := transport.NewHandler(service, auth)
	watch := transport.NewWatchHandler(service, auth)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws/leaderboard", watch.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz engine on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// tokenTable builds the demo token table. When the config names none, a
// small fixed set matching the sample quizzes keeps the standalone mode
// usable out of the box.
func tokenTable(cfg config.Config) map[string]domain.Identity {
	tokens := make(map[string]domain.Identity, len(cfg.Auth.Tokens))
	for _, entry := range cfg.Auth.Tokens {
		tokens[entry.Token] = domain.Identity{UserID: entry.UserID, Role: domain.Role(entry.Role)}
	}
	if len(tokens) == 0 {
		tokens["teacher-demo"] = domain.Identity{UserID: "teacher-1", Role: domain.RoleTeacher}
		tokens["student-demo"] = domain.Identity{UserID: "student-1", Role: domain.RoleStudent}
	}
	return tokens
}

// sampleQuizzes provides demo catalog content for the storage-free mode;
// the seed subcommand writes the same content into Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:      "quiz-1",
			Title:   "Arithmetic warm-up",
			OwnerID: "teacher-1",
			Questions: []domain.Question{
				{
					ID:      "q1",
					Prompt:  "What is 2 + 2?",
					Options: []string{"3", "4", "5"},
					Answer:  "4",
				},
				{
					ID:      "q2",
					Prompt:  "What is 9 / 3?",
					Options: []string{"3", "6", "9"},
					Answer:  "3",
				},
			},
		},
	}
}
