// relayclient connects to a relay as a game server would and prints every
// notification it receives, reconnecting when the relay goes away.
// Usage: go run ./cmd/relayclient --url ws://127.0.0.1:8081/ws --key <server key>
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/rickgao/autowhitelist/internal/connection"
	"github.com/rickgao/autowhitelist/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:8081/ws", "relay WebSocket URL")
	key := flag.String("key", os.Getenv("RELAY_KEY"), "server key (default $RELAY_KEY)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *key == "" {
		logger.Error("no key given; use --key or RELAY_KEY")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *url, *key, logger); err != nil {
		logger.Error("client stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, url, key string, logger *slog.Logger) error {
	ok := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)
	note := color.New(color.FgCyan)

	handle := func(f connection.Frame) {
		switch f.Code {
		case protocol.CodeVerified:
			ok.Printf("connected as %s\n", f.ServerName)
		case protocol.CodeUnknownKey:
			fail.Println("relay rejected the key")
		case protocol.CodeDuplicateKey:
			fail.Println("another connection already uses this key")
		case protocol.CodeNotification:
			note.Printf("%s  whitelist %s\n", f.ReceivedAt.Format(time.TimeOnly), f.Msg)
		}
	}

	cfg := connection.DefaultClientConfig()
	cfg.URL = url
	cfg.Key = key

	return connection.Keep(ctx, cfg, connection.DefaultKeepConfig(), handle, logger)
}
