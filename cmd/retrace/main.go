package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"github.com/txsociety/tx-retracer/internal/config"
	"github.com/txsociety/tx-retracer/pkg/blockchain"
	"github.com/txsociety/tx-retracer/pkg/core"
	"github.com/txsociety/tx-retracer/pkg/emulator"
	"github.com/txsociety/tx-retracer/pkg/replay"
	"log/slog"
	"os"
	"time"
)

func main() {
	var (
		account = flag.String("account", "", "account address in any form")
		lt      = flag.String("lt", "", "transaction logical time")
		hash    = flag.String("hash", "", "transaction hash in hex or base64")
		timeout = flag.Duration("timeout", 2*time.Minute, "overall timeout")
	)
	flag.Parse()

	cfg := config.LoadReplay()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	location, err := core.ParseTxLocation(*account, *lt, *hash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid transaction: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	bcClient, err := blockchain.New(cfg.LiteServers, cfg.Testnet)
	if err != nil {
		slog.Error("blockchain connection", "error", err)
		os.Exit(1)
	}
	emulatorClient := emulator.New(cfg.RedisAddr, cfg.EmulatorQueue, cfg.EmulatorTimeout)
	defer emulatorClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	report, err := replay.New(bcClient, emulatorClient, cfg.RequestDelay, cfg.Testnet).Retrace(ctx, location)
	if err != nil {
		slog.Error("retrace", "error", err, "transaction", location.String())
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		slog.Error("encode report", "error", err)
		os.Exit(1)
	}
}
