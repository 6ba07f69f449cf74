package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ts3cli/internal/relay"
)

const defaultPort = 9988

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	port := defaultPort
	if raw := os.Getenv("PROXY_PORT"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			log.Error("invalid PROXY_PORT", "value", raw, "error", err)
			os.Exit(1)
		}
		port = v
	}

	secret := os.Getenv("PROXY_SECRET")
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			log.Error("generate secret", "error", err)
			os.Exit(1)
		}
		secret = generated
		log.Info("no PROXY_SECRET set, generated one for this run", "secret", secret)
	}

	srv := relay.NewServer(secret, log)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("relay listening", "port", port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("relay: listen", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("relay: shutting down")

	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("relay: http shutdown", "error", err)
	}
}

func generateSecret() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
