package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/airdeck/internal/config"
	"github.com/DoyleJ11/airdeck/internal/engine"
	"github.com/DoyleJ11/airdeck/internal/geom"
	"github.com/DoyleJ11/airdeck/internal/httpapi"
	"github.com/DoyleJ11/airdeck/internal/hub"
	"github.com/DoyleJ11/airdeck/internal/loader"
	"github.com/DoyleJ11/airdeck/internal/logging"
	"github.com/DoyleJ11/airdeck/internal/relay"
	"github.com/DoyleJ11/airdeck/internal/roomstore"
	"github.com/DoyleJ11/airdeck/internal/ws"
)

const (
	fetchTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:          "airdeck",
		Short:        "Shared card table across several screens",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv()
		},
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "info", "debug, info, warn or error")
	pf.Bool("log-development", false, "human readable logs")
	pf.String("store-driver", "sqlite", "where the last room is remembered: sqlite or postgres")
	pf.String("store-path", "airdeck.db", "sqlite database file")
	pf.String("store-dsn", "", "postgres connection string")
	pf.Float64("viewport-width", 1920, "local screen width used for card layout")
	pf.Float64("viewport-height", 1080, "local screen height used for card layout")
	for key, flag := range map[string]string{
		"log.level":       "log-level",
		"log.development": "log-development",
		"store.driver":    "store-driver",
		"store.path":      "store-path",
		"store.dsn":       "store-dsn",
		"viewport.width":  "viewport-width",
		"viewport.height": "viewport-height",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(newHostCmd(v), newJoinCmd(v))
	return root
}

func newHostCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Serve a table; this process is screen 0",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd, map[string]string{"addr": "addr", "table_source": "table", "room": "room"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), v, runHost)
		},
	}
	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.String("table", "", "table definition, URL or file")
	f.String("room", "", "room code, defaults to the last one used")
	return cmd
}

func newJoinCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a hosted table as another screen",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd, map[string]string{"server_url": "server", "room": "room"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSetup(cmd.Context(), v, runJoin)
		},
	}
	f := cmd.Flags()
	f.String("server", "http://localhost:8080", "host server URL")
	f.String("room", "", "room code, defaults to the last one used")
	return cmd
}

// bindFlags ties the command's own flags to viper keys. Subcommands share
// keys such as room, so binding happens only for the command that runs.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

type app struct {
	cfg   config.Config
	log   *zap.Logger
	store roomstore.Store
}

func withSetup(ctx context.Context, v *viper.Viper, run func(context.Context, *app) error) (err error) {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := roomstore.Open(ctx, roomstore.Config{Driver: cfg.Store.Driver, Path: cfg.Store.Path, DSN: cfg.Store.DSN})
	if err != nil {
		log.Error("open room store", zap.Error(err))
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	if err = run(ctx, &app{cfg: cfg, log: log, store: store}); err != nil {
		log.Error("exiting", zap.Error(err))
	}
	return err
}

func (a *app) engineConfig() engine.Config {
	return engine.Config{
		Viewport: geom.Size{Width: a.cfg.Viewport.Width, Height: a.cfg.Viewport.Height},
		Logger:   a.log,
	}
}

// pickRoom prefers the configured room, then the last one used.
func (a *app) pickRoom(ctx context.Context) (string, error) {
	if a.cfg.Room != "" {
		return a.cfg.Room, nil
	}
	return a.store.LastRoom(ctx)
}

func runHost(ctx context.Context, a *app) error {
	if a.cfg.TableSource == "" {
		return errors.New("a table source is required (--table or AIRDECK_TABLE_SOURCE)")
	}
	room, err := a.pickRoom(ctx)
	if err != nil {
		return err
	}
	if room == "" {
		if room, err = httpapi.GenerateCode(); err != nil {
			return err
		}
	}

	fetcher := loader.NewFetcher(loader.NewHTTPClient(a.log, fetchTimeout))
	h := hub.NewHub(ctx, func(ctx context.Context, code, source string) (*relay.Host, error) {
		return relay.NewHost(ctx, relay.HostConfig{
			Room:    code,
			Source:  source,
			Fetcher: fetcher,
			Engine:  a.engineConfig(),
			Logger:  a.log,
		})
	}, a.log)

	reply := make(chan hub.RoomReply, 1)
	h.Inbox() <- hub.EnsureRoom{Code: room, Source: a.cfg.TableSource, Reply: reply}
	if res := <-reply; res.Err != nil {
		return res.Err
	}
	if err := a.store.SaveLastRoom(ctx, room); err != nil {
		a.log.Warn("could not remember room", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, a.cfg.TableSource, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.log.Info("hosting table",
		zap.String("room", room),
		zap.String("addr", a.cfg.Addr),
		zap.String("join", fmt.Sprintf("airdeck join --server http://<this-host>%s --room %s", a.cfg.Addr, room)),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		select {
		case h.Inbox() <- hub.ShutdownHub{}:
		case <-h.Done():
		}
		<-h.Done()
		return err
	})
	return g.Wait()
}

func runJoin(ctx context.Context, a *app) error {
	room, err := a.pickRoom(ctx)
	if err != nil {
		return err
	}
	if room == "" {
		return errors.New("no room given and none remembered (--room)")
	}
	if err := a.store.SaveLastRoom(ctx, room); err != nil {
		a.log.Warn("could not remember room", zap.Error(err))
	}

	p := relay.NewPeer(ctx, relay.PeerConfig{
		Room:   room,
		Dialer: ws.Dialer{BaseURL: a.cfg.ServerURL, Log: a.log},
		Engine: a.engineConfig(),
		Logger: a.log,
	})
	a.log.Info("joining table", zap.String("room", room), zap.String("server", a.cfg.ServerURL))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := p.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		select {
		case p.Inbox() <- relay.Shutdown{}:
		case <-p.Done():
		}
		return nil
	})
	return g.Wait()
}
