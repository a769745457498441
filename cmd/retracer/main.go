package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/txsociety/tx-retracer/internal/config"
	"github.com/txsociety/tx-retracer/pkg/api"
	"github.com/txsociety/tx-retracer/pkg/blockchain"
	"github.com/txsociety/tx-retracer/pkg/core"
	"github.com/txsociety/tx-retracer/pkg/db"
	"github.com/txsociety/tx-retracer/pkg/emulator"
	"github.com/txsociety/tx-retracer/pkg/notifier"
	"github.com/txsociety/tx-retracer/pkg/replay"
	"github.com/txsociety/tx-retracer/pkg/webhook"
	"github.com/txsociety/tx-retracer/pkg/worker"
	"golang.org/x/crypto/ed25519"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

var Version = "dev"

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))
	slog.Info("running retracer", "version", Version, "log level", cfg.LogLevel.String(), "testnet", cfg.Testnet)

	var signingKey ed25519.PrivateKey
	if len(cfg.Key) > 0 {
		var err error
		signingKey, err = core.GetSigningKey(cfg.Key)
		if err != nil {
			slog.Error("get signing key", "error", err)
			os.Exit(1)
		}
		slog.Info("webhook signing key", "public key", fmt.Sprintf("%x", signingKey.Public()))
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	wg := new(sync.WaitGroup)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	dbClient, err := db.New(ctx, cfg.PostgresURI)
	if err != nil {
		slog.Error("db connection", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	emulatorClient := emulator.New(cfg.RedisAddr, cfg.EmulatorQueue, cfg.EmulatorTimeout)
	defer emulatorClient.Close()
	version, err := emulatorClient.Version(ctx)
	if err != nil {
		slog.Error("emulator connection", "error", err)
		os.Exit(1)
	}
	slog.Info("emulator", "commit", version.CommitHash, "date", version.CommitDate)
	cancel()

	ctx, cancel = context.WithCancel(context.Background())

	var wh *webhook.Client
	if len(cfg.WebhookEndpoint) > 0 {
		wh, err = webhook.NewClient(cfg.WebhookEndpoint, signingKey)
		if err != nil {
			slog.Error("webhook connection", "error", err)
			os.Exit(1)
		}
	}

	bcClient, err := blockchain.New(cfg.LiteServers, cfg.Testnet)
	if err != nil {
		slog.Error("blockchain connection", "error", err)
		os.Exit(1)
	}

	retracer := replay.New(bcClient, emulatorClient, cfg.RequestDelay, cfg.Testnet)
	workerProc := worker.New(retracer, dbClient, worker.Options{
		Workers:    cfg.Workers,
		JobTimeout: cfg.JobTimeout,
		JobTTL:     cfg.JobTTL,
	})
	if err := workerProc.Run(ctx, wg); err != nil {
		slog.Error("worker start", "error", err)
		os.Exit(1)
	}

	// a nil *webhook.Client passed as the sender would be a non-nil interface
	notifierProc := notifier.New(nil, dbClient)
	if wh != nil {
		notifierProc = notifier.New(wh, dbClient)
	}
	notifierProc.Run(ctx, wg)

	mux := http.NewServeMux()
	handler := api.NewHandler(dbClient)
	api.RegisterHandlers(mux, handler, cfg.Token)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%v", cfg.Port),
		Handler: mux,
	}
	go func() {
		slog.Info("running api server", "port", cfg.Port)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen and serve", "error", err)
			os.Exit(1)
		}
	}()

	sig := <-ch
	slog.Info("shut down", "signal", sig.String())
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	slog.Info("api stopped")
	cancel()
	wg.Wait()
}
