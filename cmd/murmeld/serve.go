package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/murmelhq/murmel/internal/config"
	"github.com/murmelhq/murmel/internal/otelutil"
	"github.com/murmelhq/murmel/internal/router"
	"github.com/murmelhq/murmel/internal/server"
	"github.com/murmelhq/murmel/internal/session"
	"github.com/murmelhq/murmel/internal/store"
	"github.com/murmelhq/murmel/internal/udp"
	"github.com/murmelhq/murmel/internal/voice"
	"github.com/murmelhq/murmel/internal/webbridge"
)

const discoveryVersion uint32 = 0x00010204

func serveCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dbPath)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path (in-memory state when empty)")
	return cmd
}

func runServe(dbPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if lvl, lerr := zerolog.ParseLevel(cfg.LogLevel); lerr == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := otelutil.Init(); err != nil {
		log.Debug().Err(err).Msg("tracing disabled")
	}
	defer otelutil.Flush()

	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}

	var (
		users    store.UserStore
		channels []store.ChannelRecord
	)
	if cfg.DatabasePath != "" {
		db, err := store.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		users = db

		rows, err := db.ServerConfig(ctx, cfg.ServerID)
		if err != nil {
			return fmt.Errorf("load server config: %w", err)
		}
		cfg.MergeStoreRows(rows)

		channels, err = db.Channels(ctx, cfg.ServerID)
		if err != nil {
			return fmt.Errorf("load channels: %w", err)
		}
	} else {
		users = store.NewMemory()
	}

	reg := session.NewRegistry(users, cfg.ServerID)
	if err := reg.SetChannels(channels); err != nil {
		return fmt.Errorf("channel tree: %w", err)
	}

	rt := router.New(reg)
	bridge := webbridge.New(reg, rt, cfg)

	voiceEngine := voice.NewEngine(voice.DefaultTick, voice.DefaultMissLimit)
	voiceEngine.OnTalkStart = func(n uint32) { bridge.NotifyTalk(n, true) }
	voiceEngine.OnTalkEnd = func(n uint32) { bridge.NotifyTalk(n, false) }

	tlsCfg, err := server.LoadOrGenerateCert(cfg.Certificate, cfg.Key)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	inner, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		inner.Close()
		return fmt.Errorf("listen udp %s: %w", addr, err)
	}

	srv := server.New(reg, rt, voiceEngine, cfg)
	webSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.WebPort),
		Handler: webbridge.SetupRouter(ctx, cfg, reg, bridge),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(gctx, tls.NewListener(inner, tlsCfg))
	})
	g.Go(func() error {
		responder := udp.NewResponder(pc, reg, discoveryVersion, cfg.MaxUsers, cfg.MaxBandwidth)
		return responder.Run(gctx)
	})
	g.Go(func() error {
		return voiceEngine.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", webSrv.Addr).Msg("web bridge started")
		if err := webSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return webSrv.Shutdown(shutdownCtx)
	})

	log.Info().Str("module", "main").Str("addr", addr).Msg("server started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Str("module", "main").Msg("server exited gracefully")
	return nil
}
