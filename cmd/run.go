package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"codebeep/bot"
	"codebeep/config"
	"codebeep/logging"
	"codebeep/matrix"
	"codebeep/opencode"
	"codebeep/storage"
	"codebeep/version"

	"golang.org/x/sync/errgroup"
)

// RunCmd starts the bot daemon
type RunCmd struct{}

// Run starts the bot: it connects to the OpenCode server and the Matrix
// homeserver, then drives the sync loop and the event monitor until a
// signal arrives.
func (r *RunCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	logging.Logger.Info("starting codebeep", "version", version.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	control, err := opencode.NewClient(opencode.ClientConfig{
		ServerURL: cfg.OpenCode.ServerURL,
		Logger:    logging.Logger,
	})
	if err != nil {
		return err
	}
	defer control.Close()

	// The bot is useless without its control-plane; refuse to start blind.
	health, err := control.Health(ctx)
	if err != nil {
		return fmt.Errorf("cannot reach OpenCode server at %s: %w", cfg.OpenCode.ServerURL, err)
	}
	logging.Logger.Info("connected to OpenCode server", "version", health["version"])

	store, err := storage.NewStore(cfg.Bot.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open route store: %w", err)
	}
	defer store.Close()

	session, err := connectMatrix(ctx, cfg)
	if err != nil {
		return err
	}
	logging.Logger.Info("connected to matrix", "user_id", session.UserID())

	codebot := bot.New(cfg, session, control, store)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return codebot.MonitorEvents(groupCtx)
	})
	group.Go(func() error {
		return session.SyncLoop(groupCtx, matrix.SyncHandlers{
			OnMessage: func(ctx context.Context, roomID, sender, body string) {
				// One goroutine per message so a slow command never stalls
				// the sync loop.
				go codebot.HandleMessage(ctx, roomID, sender, body)
			},
			OnInvite: codebot.HandleInvite,
		})
	})

	logging.Logger.Info("bot is running, waiting for messages")
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logging.Logger.Info("codebeep stopped")
	return nil
}

// connectMatrix builds an authenticated Matrix session, preferring a stored
// access token over a password login.
func connectMatrix(ctx context.Context, cfg *config.Config) (*matrix.Session, error) {
	client, err := matrix.NewClient(matrix.ClientConfig{
		HomeserverURL: cfg.Matrix.Homeserver,
		Logger:        logging.Logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Matrix.AccessToken != "" {
		session, err := client.SessionFromToken(ctx, cfg.Matrix.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("matrix token login failed: %w", err)
		}
		return session, nil
	}

	session, err := client.Login(ctx, cfg.Matrix.Username, cfg.Matrix.Password, cfg.Matrix.DeviceName)
	if err != nil {
		return nil, fmt.Errorf("matrix login failed: %w", err)
	}
	return session, nil
}
