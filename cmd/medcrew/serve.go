package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/medcrew/internal/agent"
	"github.com/rahul/medcrew/internal/gateway"
	"github.com/rahul/medcrew/internal/observability"
	"github.com/rahul/medcrew/internal/store"
	"github.com/spf13/cobra"
)

type ServeCmd struct{}

func NewServeCmd() *ServeCmd {
	return &ServeCmd{}
}

func (c *ServeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the enabled gateways (Telegram, Discord, HTTP) until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			httpAddr, err := cmd.Flags().GetString("http")
			if err != nil {
				return fmt.Errorf("failed to get http flag: %w", err)
			}
			noDashboard, err := cmd.Flags().GetBool("no-dashboard")
			if err != nil {
				return fmt.Errorf("failed to get no-dashboard flag: %w", err)
			}
			dashboard := !noDashboard && observability.IsTerminal()

			var logOut io.Writer = os.Stderr
			if dashboard {
				observability.PrintBanner()
				observability.InitializeTerminal()
				// Log writes share the dashboard's terminal lock.
				logOut = observability.NewTermWriter()
				defer observability.CleanupTerminal()
			}

			a, err := newApp(cmd, logOut)
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := store.NewHistoryStore(a.cfg.Memory.Path)
			if err != nil {
				return err
			}
			defer history.Close()

			brain := agent.NewChatBrain(a.conversation, history, a.policy, a.log)
			if a.cfg.Pipeline.HistoryLimit > 0 {
				brain.HistoryLimit = a.cfg.Pipeline.HistoryLimit
			}
			dispatcher := gateway.NewDispatcher(brain, a.runner, a.documents, a.log)

			var gateways []gateway.Messenger
			if tg, ok := a.cfg.GetGateway("telegram"); ok {
				g, err := gateway.NewTelegramGateway(tg.Token, dispatcher, a.log)
				if err != nil {
					return fmt.Errorf("telegram gateway: %w", err)
				}
				gateways = append(gateways, g)
			}
			if dc, ok := a.cfg.GetGateway("discord"); ok {
				g, err := gateway.NewDiscordGateway(dc.Token, dispatcher, a.log)
				if err != nil {
					return fmt.Errorf("discord gateway: %w", err)
				}
				gateways = append(gateways, g)
			}
			httpCfg, httpEnabled := a.cfg.GetGateway("http")
			if httpAddr != "" {
				httpCfg.Addr, httpEnabled = httpAddr, true
			}
			if httpEnabled {
				gateways = append(gateways, gateway.NewHTTPGateway(gateway.HTTPConfig{
					Addr:           httpCfg.Addr,
					AllowedOrigins: httpCfg.AllowedOrigins,
					Analyzer:       a.runner,
					Conversation:   a.conversation,
					Documents:      a.documents,
					Fetcher:        a.fetcher,
					Transcripts:    history,
					Policy:         a.policy,
					Logger:         a.log,
				}))
			}
			if len(gateways) == 0 {
				return errors.New("no gateway enabled: set TELEGRAM_TOKEN, DISCORD_TOKEN or --http")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if dashboard {
				go every(ctx, time.Second, observability.PrintLiveStatus)
			}
			go every(ctx, 30*time.Second, func() {
				observability.Heartbeat()
				a.events.LogHeartbeat()
			})

			for _, g := range gateways {
				go func(g gateway.Messenger) {
					if err := g.Start(); err != nil {
						a.log.Error("gateway failed", "error", err)
						stop() // stop caller if gateway dies
					}
				}(g)
			}

			<-ctx.Done()
			a.log.Info("shutting down")
			for _, g := range gateways {
				if err := g.Stop(); err != nil {
					a.log.Warn("gateway stop failed", "error", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().String("http", "", "serve the HTTP API on this address (e.g. :8080), even if disabled in config")
	cmd.Flags().Bool("no-dashboard", false, "disable the live terminal dashboard")

	return cmd
}

func every(ctx context.Context, d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
