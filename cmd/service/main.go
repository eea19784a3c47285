package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/config"
	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/security"
	"powerwatch-backend/internal/source"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	port := getenv("PORT", "8080")
	hoursCfg := config.HoursConfig{
		Days:      []string{"mon", "tue", "wed", "thu", "fri"},
		StartHour: getenvInt("BUSINESS_START_HOUR", 8),
		EndHour:   getenvInt("BUSINESS_END_HOUR", 17),
		Timezone:  getenv("BUSINESS_TIMEZONE", ""),
	}
	hours, err := hoursCfg.Hours()
	if err != nil {
		logger.Error("invalid business hours", slog.String("error", err.Error()))
		os.Exit(1)
	}
	catalog := checks.NewCatalog(checks.Options{Hours: hours, Location: hours.Location})

	var runner *pipeline.Runner
	if endpoint := getenv("TELEMETRY_URL", ""); endpoint != "" {
		src, err := source.New(source.Config{Type: "http", Endpoint: endpoint, TimeoutSeconds: getenvInt("TELEMETRY_TIMEOUT_SECONDS", 5)})
		if err != nil {
			logger.Error("failed to configure telemetry source", slog.String("error", err.Error()))
			os.Exit(1)
		}
		runner = pipeline.NewRunner(source.Bounded{Source: src, Limits: security.DefaultLimits()}, catalog)
	} else {
		logger.Info("no TELEMETRY_URL set; requests must carry rows")
	}

	h := NewHandler(catalog, runner)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/checks", h.HandleChecks)
	mux.HandleFunc("/evaluate", h.HandleEvaluate)
	mux.HandleFunc("/discover", h.HandleDiscover)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr <- server.Shutdown(ctx)
	}()

	logger.Info("evaluate service listening", slog.String("port", port))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := <-shutdownErr; err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
