package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Tyrowin/chathub/internal/auth"
	"github.com/Tyrowin/chathub/internal/models"
	"github.com/Tyrowin/chathub/internal/moderation"
	"github.com/Tyrowin/chathub/internal/router"
	"github.com/Tyrowin/chathub/internal/server"
	"github.com/Tyrowin/chathub/internal/storage"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	registry := storage.NewRegistry(storage.WithMessageHook(storage.MessageHookFunc(func(message models.MessageView) {
		log.Debug("Message stored", "message_id", message.ID, "seq", message.Seq, "private", message.IsPrivate)
	})))

	moderator, err := moderation.NewModerator(cfg.CensoredWords(), cfg.CensorRune(), log)
	if err != nil {
		return fmt.Errorf("building content filter: %w", err)
	}
	opts := []router.Option{router.WithContentFilter(moderator)}
	if cfg.JWTSecret != "" {
		opts = append(opts, router.WithAuthenticator(auth.NewJWTAuthenticator(cfg.JWTSecret)))
		log.Info("Join requires a signed token")
	}

	srv := server.New(cfg, log, registry, opts...)
	srv.StartHub()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				log.Info("Graceful shutdown initiated")
				return srv.Shutdown(ctx)
			},
		},
	)

	select {
	case err := <-errChan:
		return err
	case exitCode := <-wait:
		if exitCode != 0 {
			return fmt.Errorf("shutdown finished with exit code %d", exitCode)
		}
	}
	log.Info("Program stopped cleanly")
	return nil
}
