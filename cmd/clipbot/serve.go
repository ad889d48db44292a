package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"clipbot/internal/channel"
	"clipbot/internal/config"
	"clipbot/internal/dispatch"
	"clipbot/internal/domain"

	"github.com/spf13/cobra"
)

// Telegram allows about 30 messages per second per bot.
const telegramSendsPerMinute = 30 * 60

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (webhook or polling, per BOT_MODE)",
		Long:  "Starts the HTTP server, the dispatch loop and the Telegram transport. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cfg, cfg.Telegram.Mode)
		},
	}
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run the bot with long polling regardless of BOT_MODE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cfg, "polling")
		},
	}
}

func runServe(cfg *config.Config, mode string) error {
	if err := config.ValidateServe(cfg, mode); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	tg, err := channel.NewTelegram(channel.TelegramConfig{
		Token:   cfg.Telegram.Token,
		Limiter: dispatch.NewRateLimiter(30, telegramSendsPerMinute),
		Logger:  logger,
	})
	if err != nil {
		a.close()
		return err
	}

	q, err := a.queue(ctx)
	if err != nil {
		a.close()
		return err
	}

	loop := a.loop(q, a.router(tg))
	go loop.Run(ctx)
	go a.housekeeping(ctx)

	web := channel.NewWebhook(channel.WebhookConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Secret:          cfg.Telegram.WebhookSecret,
		Metrics:         a.metrics.Handler(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- web.Start(ctx, q) }()

	switch mode {
	case "webhook":
		url := strings.TrimRight(cfg.Telegram.WebhookURL, "/") + web.Path()
		if err := tg.RegisterWebhook(url); err != nil {
			stop()
			a.drain(loop, q)
			return err
		}
	default:
		// The HTTP server still serves health and metrics while polling.
		go func() { errCh <- tg.Start(ctx, q) }()
	}

	logger.Info("clipbot started", "mode", mode, "bot", tg.Username(), "workers", a.pool.Size())

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			logger.Error("transport stopped", "err", err)
		}
		stop()
	}

	logger.Info("shutting down...")
	if derr := a.drain(loop, q); derr != nil && err == nil {
		err = derr
	}
	if err == nil {
		logger.Info("shutdown complete")
	}
	return err
}

func chatCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot in the terminal",
		Long:  "Runs the full pipeline with the console as the chat. Sent documents are copied to --out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			console := channel.NewConsole(channel.ConsoleConfig{Logger: logger, OutDir: outDir})
			q, err := a.queue(ctx)
			if err != nil {
				a.close()
				return err
			}
			loop := a.loop(q, a.router(console))
			go loop.Run(ctx)

			err = console.Start(ctx, q)
			if derr := a.drain(loop, q); err == nil {
				err = derr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory for received files")
	return cmd
}

func fetchCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download one link through the pipeline and save the file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			console := channel.NewConsole(channel.ConsoleConfig{Logger: logger, Out: cmd.OutOrStdout(), OutDir: outDir})
			msg := channel.ParseConsoleLine(args[0])
			outcome := a.handler(console).Deliver(ctx, msg)

			a.pool.Close()
			if err := a.pool.Wait(ctx); err != nil {
				return err
			}
			if outcome != domain.OutcomeDelivered {
				return fmt.Errorf("fetch finished with outcome %s", outcome)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory for the downloaded file")
	return cmd
}
