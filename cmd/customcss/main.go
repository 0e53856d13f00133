// Command customcss runs the per-domain stylesheet keeper: it drives a
// Chrome instance over the DevTools protocol, re-applies saved rules on
// every navigation, and exposes rule management over HTTP and optionally
// MCP stdio.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/RemmyNine/chrome-customCSS/customcss"
	"github.com/RemmyNine/chrome-customCSS/editor"
	"github.com/RemmyNine/chrome-customCSS/idgen"
	"github.com/RemmyNine/chrome-customCSS/inject"
	"github.com/RemmyNine/chrome-customCSS/kit"
	"github.com/RemmyNine/chrome-customCSS/store"
)

func main() {
	port := env("PORT", "8089")
	configPath := env("CONFIG", "")
	mcpTransport := env("MCP_TRANSPORT", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config: file first, env overrides on top.
	cfg := &customcss.Config{}
	if configPath != "" {
		loaded, err := customcss.LoadConfigFile(configPath)
		if err != nil {
			slog.Error("load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CHROME_URL"); v != "" {
		cfg.Browser.RemoteURL = v
	}
	if os.Getenv("HEADLESS") == "1" {
		cfg.Browser.Headless = true
	}
	if os.Getenv("GROUP_SUBDOMAINS") == "1" {
		cfg.GroupSubdomains = true
	}

	// Optional shared-password auth for the HTTP surface. Hashed once at
	// boot so the comparison path never sees the plaintext again.
	var passwordHash []byte
	if pw := os.Getenv("AUTH_PASSWORD"); pw != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("hash auth password", "error", err)
			os.Exit(1)
		}
		passwordHash = h
	}

	// Service.
	svc, err := customcss.New(cfg, logger)
	if err != nil {
		slog.Error("customcss service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// Optional MCP over stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "customcss",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// Connect the browser and launch the watchers.
	if err := svc.Start(ctx); err != nil {
		slog.Error("start", "error", err)
		os.Exit(1)
	}

	// Router.
	r := chi.NewRouter()
	r.Use(requestID)
	if passwordHash != nil {
		r.Use(requirePassword(passwordHash))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Rules CRUD.
	r.Get("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		rules, err := svc.ListRules(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if rules == nil {
			rules = []*store.Rule{}
		}
		writeJSON(w, 200, rules)
	})

	r.Post("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Domain string `json:"domain"`
			CSS    string `json:"css"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		rule, err := svc.SetRule(r.Context(), req.Domain, req.CSS)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if rule == nil {
			writeJSON(w, 200, map[string]string{"status": "cleared", "domain": req.Domain})
			return
		}
		writeJSON(w, 201, rule)
	})

	r.Get("/api/rules/{domain}", func(w http.ResponseWriter, r *http.Request) {
		rule, err := svc.GetRule(r.Context(), chi.URLParam(r, "domain"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if rule == nil {
			writeJSON(w, 404, map[string]string{"error": "no rule for domain"})
			return
		}
		writeJSON(w, 200, rule)
	})

	r.Delete("/api/rules/{domain}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteRule(r.Context(), chi.URLParam(r, "domain")); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "deleted"})
	})

	// Editor session on the active tab.
	r.Post("/api/session", func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.OpenSession(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 201, sessionView(sess))
	})

	r.Get("/api/session", func(w http.ResponseWriter, r *http.Request) {
		sess := svc.Session()
		if sess == nil {
			writeJSON(w, 404, map[string]string{"error": "no open session"})
			return
		}
		writeJSON(w, 200, sessionView(sess))
	})

	r.Post("/api/session/save", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CSS string `json:"css"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		if err := svc.SaveActive(r.Context(), req.CSS); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, sessionView(svc.Session()))
	})

	r.Post("/api/session/clear", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ClearActive(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, sessionView(svc.Session()))
	})

	r.Delete("/api/session", func(w http.ResponseWriter, _ *http.Request) {
		svc.CloseSession()
		writeJSON(w, 200, map[string]string{"status": "closed"})
	})

	// Preview.
	r.Post("/api/preview", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		tab, err := svc.Preview(r.Context(), req.URL)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 201, tab)
	})

	r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, stats)
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// --- Middleware ---

var newRequestID = idgen.Prefixed("req_", idgen.UUIDv7())

// requestID tags every request with a fresh ID for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newRequestID()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(kit.WithRequestID(r.Context(), id)))
	})
}

// requirePassword gates every route except /health behind a shared password
// sent as "Authorization: Bearer <password>".
func requirePassword(hash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Helpers ---

// sessionView is the wire shape of an editor session.
func sessionView(s *editor.Session) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	v := map[string]any{
		"id":     s.ID,
		"tab":    s.Tab.ID,
		"url":    s.Tab.URL,
		"domain": s.Domain,
		"state":  s.State(),
		"input":  s.Input(),
	}
	if st, ok := s.Status(); ok {
		v["status"] = st
	}
	return v
}

// writeServiceError maps service errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inject.ErrInvalidCSS):
		writeError(w, 400, err)
	case errors.Is(err, editor.ErrInapplicable):
		writeError(w, 409, err)
	case errors.Is(err, customcss.ErrNoSession):
		writeError(w, 409, err)
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, 503, err)
	case errors.Is(err, inject.ErrInjectionFailed):
		writeError(w, 502, err)
	default:
		writeError(w, 500, err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
