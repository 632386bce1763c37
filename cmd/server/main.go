// Command server exposes the three Debug Controller operations over HTTP
// (spec §6): POST /api/workflows/{workflow_id}/execute,
// POST /api/executions/{execution_id}/step, and
// POST /api/executions/{execution_id}/cancel. Every route requires a
// bearer JWT; user_id is taken from its "sub" claim.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adworkflow/config"
	"adworkflow/controller"
	"adworkflow/engine"
	"adworkflow/engine/emit"
	"adworkflow/engine/executor"
	"adworkflow/engine/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	s, err := openStore(context.Background(), cfg)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}

	registry := buildRegistry(cfg, s)
	registryMetrics := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registryMetrics)
	emitter := emit.NewLogEmitter(os.Stdout, true)

	c := controller.New(s, registry, emitter, metrics)
	sup := controller.NewSupervisor(c, s, logger)

	srv := &server{controller: c, supervisor: sup, signingKey: []byte(cfg.JWTSigningKey), logger: logger}

	mux := http.NewServeMux()
	mux.Handle("/api/workflows/", srv.auth(http.HandlerFunc(srv.handleExecute)))
	mux.Handle("/api/executions/", srv.auth(http.HandlerFunc(srv.handleExecutionAction)))
	mux.Handle("/metrics", promhttp.HandlerFor(registryMetrics, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", srv.handleHealth)

	logger.Info("listening", "addr", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.RepositoryKind {
	case "sqlite":
		return store.NewSQLiteStore(cfg.RepositoryDSN)
	case "mysql":
		return store.NewMySQLStore(ctx, cfg.RepositoryDSN)
	default:
		return store.NewMemStore(), nil
	}
}

func buildRegistry(cfg config.Config, s store.Store) *engine.Registry {
	reg := engine.NewRegistry()
	reg.Register(engine.TextInput, executor.TextInputExecutor{})
	reg.Register(engine.ImageInput, executor.ImageInputExecutor{})
	reg.Register(engine.SocialMedia, executor.NewSocialMediaExecutor(nil))
	reg.Register(engine.Prompt, executor.PromptExecutor{Enhancer: maybeEnhancer(cfg)})
	reg.Register(engine.ImageModel, executor.NewImageModelExecutor(cfg.OpenAIAPIKey, "", s))
	reg.Register(engine.Output, executor.OutputExecutor{})
	return reg
}

func maybeEnhancer(cfg config.Config) *executor.PromptEnhancer {
	if cfg.AnthropicAPIKey == "" {
		return nil
	}
	return executor.NewPromptEnhancer(cfg.AnthropicAPIKey, "")
}

type server struct {
	controller *controller.Controller
	supervisor *controller.Supervisor
	signingKey []byte
	logger     *slog.Logger
}

type contextKey string

const userIDKey contextKey = "user_id"

// auth validates a bearer JWT and injects its "sub" claim as the request's
// user_id. Every route but /healthz and /metrics passes through this.
func (s *server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.signingKey, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		userID, _ := claims["sub"].(string)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "token missing sub claim")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleExecute implements POST /api/workflows/{workflow_id}/execute.
// It prepares the execution synchronously and hands the actual run off to
// the Supervisor, returning PENDING immediately (spec §6.2).
func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	workflowID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/workflows/"), "/execute")
	if workflowID == "" {
		writeError(w, http.StatusNotFound, "unknown route")
		return
	}
	userID := r.Context().Value(userIDKey).(string)

	prepared, err := s.controller.Prepare(r.Context(), workflowID, userID)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	s.supervisor.Launch(prepared)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"execution_id": prepared.ExecutionID,
		"status":       store.ExecutionPending,
	})
}

// handleExecutionAction implements both step and cancel, routed by suffix.
func (s *server) handleExecutionAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/executions/")
	userID := r.Context().Value(userIDKey).(string)

	var executionID, action string
	switch {
	case strings.HasSuffix(rest, "/step"):
		executionID, action = strings.TrimSuffix(rest, "/step"), "step"
	case strings.HasSuffix(rest, "/cancel"):
		executionID, action = strings.TrimSuffix(rest, "/cancel"), "cancel"
	default:
		writeError(w, http.StatusNotFound, "unknown route")
		return
	}
	if executionID == "" {
		writeError(w, http.StatusNotFound, "unknown route")
		return
	}

	var (
		res controller.StartResult
		err error
	)
	if action == "step" {
		res, err = s.controller.Step(r.Context(), executionID, userID)
	} else {
		res, err = s.controller.Cancel(r.Context(), executionID, userID)
	}
	if err != nil {
		writeControllerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id":    res.ExecutionID,
		"status":          res.Status,
		"current_node_id": nullableString(res.CurrentNodeID),
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// writeControllerError maps controller/store errors to status codes per
// spec §6: not-found/ownership failures and invalid graphs are 404,
// everything else is 500.
func writeControllerError(w http.ResponseWriter, err error) {
	var invalidGraph *engine.InvalidGraphError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalidGraph):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
