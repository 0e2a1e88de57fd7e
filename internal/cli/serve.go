package cli

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vitalvas/gatekeeper/adapter/nethttp"
	"github.com/vitalvas/gatekeeper/admission"
	"github.com/vitalvas/gatekeeper/config"
	"github.com/vitalvas/gatekeeper/signature"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo gateway",
		Long: `Run an HTTP server whose /v1 routes are protected by the admission
pipeline. /healthz and /metrics are always open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			if address != "" {
				cfg.Server.Address = address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (default: from config)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := config.Build(cfg, config.BuildOptions{Logger: logger, Registerer: reg})
	if err != nil {
		return err
	}

	handler, err := newHandler(cfg, rt, reg, logger)
	if err != nil {
		return err
	}

	if rt.Limiter != nil {
		go rt.Limiter.Run(ctx)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.WithFields(logrus.Fields{
			"address":  cfg.Server.Address,
			"features": cfg.Features,
		}).Info("gatekeeper listening")

		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// newHandler wires the demo routes. The admission middleware guards the
// /v1 subrouter only.
func newHandler(cfg *config.Config, rt *config.Runtime, gatherer prometheus.Gatherer, logger logrus.FieldLogger) (http.Handler, error) {
	guard, err := nethttp.Middleware(rt.Pipeline, nethttp.Options{
		TrustedProxies: cfg.Server.TrustedProxies,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return nil, err
	}

	root := mux.NewRouter()
	root.Use(nethttp.RequestID(nethttp.RequestIDConfig{}), nethttp.Recovery(logger))

	root.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	root.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := root.PathPrefix("/v1").Subrouter()
	api.Use(guard)

	api.HandleFunc("/whoami", whoami).Methods(http.MethodGet)
	api.HandleFunc("/echo", echoBody).Methods(http.MethodPost, http.MethodPut)

	return root, nil
}

func whoami(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"authenticated": false}

	if claims := admission.ClaimsFromContext(r.Context()); claims != nil {
		resp = map[string]any{
			"authenticated": true,
			"subject":       claims.Subject,
			"token_id":      claims.ID,
			"expires_at":    claims.ExpiresAt.Unix(),
			"claims":        claims.Extra,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func echoBody(w http.ResponseWriter, r *http.Request) {
	digest, err := signature.DigestReader(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"request_id":  nethttp.RequestIDFromContext(r.Context()),
		"body_sha256": hex.EncodeToString(digest),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
