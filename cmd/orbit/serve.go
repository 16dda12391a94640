package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/orbit/internal/gateway"
	"github.com/rahul/orbit/internal/observability"
)

const shutdownTimeout = 5 * time.Second

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	addr := cfg.Server.Addr()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dash *observability.Dashboard
	var logOut io.Writer = os.Stdout
	if !c.NoDashboard && observability.IsTerminal(os.Stdout) {
		dash = observability.NewDashboard(os.Stdout)
		dash.Start(addr)
		defer dash.Stop()

		log.SetOutput(dash)
		logOut = dash
	}

	a, err := newApp(cfg, logOut)
	if err != nil {
		return err
	}
	defer a.close()

	gin.SetMode(gin.ReleaseMode)
	srv := gateway.NewServer(gateway.ServerOptions{
		Addr:           addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Agent:          a.agent,
		Hub:            a.hub,
		Registry:       a.registry,
		Audit:          a.audit,
		Metrics:        a.metrics,
		Logger:         a.logger,
	})

	group, gctx := errgroup.WithContext(ctx)

	var messengers []gateway.Messenger
	if !c.NoGateways {
		messengers, err = startMessengers(gctx, a)
		if err != nil {
			return err
		}
	}
	for _, m := range messengers {
		group.Go(m.Start)
	}

	group.Go(func() error {
		log.Printf("Listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if dash != nil {
		group.Go(func() error {
			every(gctx, time.Second, dash.Refresh)
			return nil
		})
	}
	group.Go(func() error {
		every(gctx, 30*time.Second, func() {
			observability.Heartbeat()
			a.logger.LogHeartbeat()
		})
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		for _, m := range messengers {
			if err := m.Stop(); err != nil {
				log.Printf("Warning: stopping gateway: %v", err)
			}
		}
		// Runs stop before HTTP drains; a late POST /run gets 503.
		a.exec.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	log.Println("\033[95m[ EXIT ] ORBIT SHUT DOWN.\033[0m")
	return err
}

func startMessengers(ctx context.Context, a *app) ([]gateway.Messenger, error) {
	var out []gateway.Messenger
	if tg, ok := a.cfg.GetTelegramConfig(); ok {
		m, err := gateway.NewTelegramGateway(ctx, tg.Token, a.agent, a.hub, a.registry)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if dc, ok := a.cfg.GetDiscordConfig(); ok {
		m, err := gateway.NewDiscordGateway(ctx, dc.Token, a.agent, a.hub, a.registry)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
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
