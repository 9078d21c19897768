package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/capability"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/env"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/orchestrator"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/pipeline"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/streaming"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/transcriber"
	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/wsproto"
)

// tuning holds knobs loaded from sttgw.json. These are values that may
// eventually move to a database; for now a JSON file keeps them out of env
// vars.
type tuning struct {
	TranscribePoolSize int     `json:"transcribe_pool_size"`
	WordTimestamps     bool    `json:"word_timestamps"`
	ExclusiveAccess    bool    `json:"exclusive_access"`
	MaxBufferSeconds   float64 `json:"max_buffer_seconds"`
	SessionTimeoutSec  int     `json:"session_timeout_seconds"`
	RateLimit          int     `json:"rate_limit"`
	RateWindowSec      int     `json:"rate_window_seconds"`
}

func defaultTuning() tuning {
	return tuning{
		TranscribePoolSize: 50,
		WordTimestamps:     true,
		ExclusiveAccess:    false,
		MaxBufferSeconds:   30.0,
		SessionTimeoutSec:  30,
		RateLimit:          10,
		RateWindowSec:      60,
	}
}

func loadTuning(path string) tuning {
	t := defaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Info("no config file, using defaults", "path", path)
		return t
	}
	if err = json.Unmarshal(data, &t); err != nil {
		slog.Warn("bad config file, using defaults", "path", path, "error", err)
		return defaultTuning()
	}
	slog.Info("loaded config", "path", path)
	return t
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	t := loadTuning("sttgw.json")

	port := env.Str("STTGW_PORT", "8000")
	whisperServerURL := env.Str("WHISPER_SERVER_URL", "http://localhost:8080")
	whisperControlURL := env.Str("WHISPER_CONTROL_URL", "")
	authToken := env.Str("STTGW_AUTH_TOKEN", "")
	defaultEngine := env.Str("STTGW_DEFAULT_ENGINE", "whisper-server")
	debugAudio := env.Bool("STT_DEBUG_AUDIO", false)
	denoiseAudio := env.Bool("STT_DENOISE", false)
	serviceBackend := env.Str("STTGW_SERVICE_BACKEND", "http")
	composeFile := env.Str("STTGW_COMPOSE_FILE", "docker-compose.yml")
	composeEnvFile := env.Str("STTGW_COMPOSE_ENV_FILE", ".env")
	composeProject := env.Str("STTGW_COMPOSE_PROJECT", "sttgw")

	// fallbackURL, when set, registers a second backend engine (e.g. a
	// cloud ASR endpoint) under the name "fallback". Sessions use it only when
	// STTGW_DEFAULT_ENGINE names it; there is no automatic failover when the
	// primary is down.
	fallbackURL := env.Str("STTGW_FALLBACK_URL", "")

	svcRegistry := orchestrator.NewRegistry(map[string]orchestrator.ServiceMeta{
		"whisper-server": {
			Category:   "stt",
			HealthURL:  whisperServerURL + "/health",
			ControlURL: whisperControlURL,
		},
	})

	// STTGW_SERVICE_BACKEND selects how the whisper-server sidecar's
	// lifecycle is managed: "http" talks to a lightweight control server
	// (the default, for bare-metal/systemd deployments), "compose" shells
	// out to docker compose for environments that run the backend as a
	// Compose service.
	var svcMgr orchestrator.ServiceManager
	if serviceBackend == "compose" {
		composeMgr := orchestrator.NewComposeManager(composeFile, composeEnvFile, composeProject, svcRegistry)
		composeMgr.PullAll(context.Background())
		svcMgr = composeMgr
	} else {
		svcMgr = orchestrator.NewHTTPControlManager(svcRegistry)
	}

	var gpuSem *semaphore.Weighted
	if t.ExclusiveAccess {
		gpuSem = semaphore.NewWeighted(1)
	}

	transcriberBackends := map[string]capability.Transcriber{
		"whisper-server": transcriber.NewHTTPTranscriber(whisperServerURL, t.TranscribePoolSize, t.WordTimestamps, t.ExclusiveAccess),
	}
	if fallbackURL != "" {
		transcriberBackends["fallback"] = transcriber.NewHTTPTranscriber(fallbackURL, t.TranscribePoolSize, t.WordTimestamps, false)
	}
	transcriberRouter := pipeline.NewRouter(transcriberBackends, defaultEngine)

	newTranscriber := func() capability.Transcriber {
		t, err := transcriberRouter.Route(defaultEngine)
		if err != nil {
			slog.Error("no transcriber backend available", "error", err)
		}
		return t
	}

	streamingCfg := streaming.DefaultConfig()
	streamingCfg.MaxBufferSeconds = t.MaxBufferSeconds
	streamingCfg.SessionTimeout = time.Duration(t.SessionTimeoutSec) * time.Second

	wsCfg := wsproto.ServerConfig{
		NewTranscriber: newTranscriber,
		StreamingCfg:   streamingCfg,
		AuthToken:      authToken,
		RateLimit:      t.RateLimit,
		RateWindow:     time.Duration(t.RateWindowSec) * time.Second,
		GPUSemaphore:   gpuSem,
		DebugAudio:     debugAudio,
		Denoise:        denoiseAudio,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws/stream", wsproto.NewHandler(wsCfg))
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/services", func(w http.ResponseWriter, r *http.Request) {
		statuses, _ := svcMgr.StatusAll(r.Context())
		json.NewEncoder(w).Encode(statuses)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv, svcMgr)

	slog.Info("streaming gateway starting", "addr", addr, "backend", whisperServerURL)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("streaming gateway stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// awaitShutdown blocks until SIGINT/SIGTERM, then gracefully stops the ASR
// backend and the HTTP server.
func awaitShutdown(srv *http.Server, svcMgr orchestrator.ServiceManager) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := svcMgr.Stop(ctx, "whisper-server"); err != nil {
		slog.Warn("stop whisper-server", "error", err)
	}

	srv.Shutdown(ctx)
}
