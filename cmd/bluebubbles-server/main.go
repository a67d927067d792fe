package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AKSizov/bluebubbles-server/internal/platform/config"
	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"
	phttp "github.com/AKSizov/bluebubbles-server/internal/platform/net/http"
	"github.com/AKSizov/bluebubbles-server/internal/platform/store"
	"github.com/AKSizov/bluebubbles-server/internal/platform/telemetry"

	"github.com/AKSizov/bluebubbles-server/internal/modkit"
	"github.com/AKSizov/bluebubbles-server/internal/modkit/module"

	"github.com/AKSizov/bluebubbles-server/internal/adapters/chatdb"
	"github.com/AKSizov/bluebubbles-server/internal/adapters/helper"
	"github.com/AKSizov/bluebubbles-server/internal/services/api"
	decodedom "github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
	decodemod "github.com/AKSizov/bluebubbles-server/internal/services/decode/module"
	msgdom "github.com/AKSizov/bluebubbles-server/internal/services/messages/domain"
	messagesmod "github.com/AKSizov/bluebubbles-server/internal/services/messages/module"
)

func main() {
	// module-scoped config lives under BB_* (BB_API_, BB_CHATDB_, ...)
	root := config.New().Prefix("BB_")

	// bring up logging early
	l := logger.Get()

	// legacy message store, read-only; Messages owns the writes
	dbCfg := root.Prefix("CHATDB_")
	st, err := store.Open(
		context.Background(),
		store.Config{
			Path:        dbCfg.MustString("PATH"),
			ReadOnly:    dbCfg.MayBool("READ_ONLY", true),
			BusyTimeout: dbCfg.MayDuration("BUSY_TIMEOUT", 5*time.Second),
			MaxConns:    dbCfg.MayInt("MAX_CONNS", 2),
		},
		store.WithLogger(*logger.Get()),
	)
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	metrics := telemetry.New()

	// the external decoder process
	hCfg := root.Prefix("HELPER_")
	helperClient := helper.New(helper.Config{
		Path:         hCfg.MustString("PATH"),
		Args:         strings.Fields(hCfg.MayString("ARGS", "")),
		RestartDelay: hCfg.MayDuration("RESTART_DELAY", time.Second),
	}, l, metrics)
	if err := helperClient.Start(); err != nil {
		l.Panic().Err(err).Msg("helper start failed")
	}
	defer helperClient.Stop()

	deps := modkit.Deps{
		Log:     *l,
		Cfg:     root,
		Store:   st,
		Metrics: metrics,
	}

	decodeMod := decodemod.New(deps, decodemod.Options{},
		modkit.WithPorts(decodedom.Ports{Helper: helperClient}))
	decodePorts := module.MustPortsOf[decodemod.Ports](decodeMod)

	reader := chatdb.NewReader(st)
	messagesMod := messagesmod.New(deps, messagesmod.Options{},
		modkit.WithPorts(msgdom.Ports{
			Reader:    reader,
			Submitter: decodePorts.Submitter,
		}))
	messagesPorts := module.MustPortsOf[messagesmod.Ports](messagesMod)

	// register port sets for cross-module lookups
	module.Register(decodeMod.Name(), decodeMod.Ports())
	module.Register(messagesMod.Name(), messagesMod.Ports())

	// http server (reads BB_API_ADDR)
	srv := phttp.NewServer(root.Prefix("API_"))
	api.Mount(srv.Router(), api.Options{
		Config:    root,
		Metrics:   metrics,
		Reader:    messagesPorts.Reader,
		Submitter: decodePorts.Submitter,
		Events:    messagesPorts.Events,
		StartedAt: time.Now(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return messagesPorts.Poller.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()

		// fail outstanding decode work before tearing anything down
		decodePorts.Flusher.Flush()

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		l.Panic().Err(err).Msg("server stopped")
	}
	l.Info().Msg("shutdown complete")
}
