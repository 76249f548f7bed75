package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/accesskeys-registry/auth"
	"github.com/ruteri/accesskeys-registry/cmd/flags"
	"github.com/ruteri/accesskeys-registry/common"
	"github.com/ruteri/accesskeys-registry/events"
	"github.com/ruteri/accesskeys-registry/httpserver"
	"github.com/ruteri/accesskeys-registry/interfaces"
	"github.com/ruteri/accesskeys-registry/kvstore"
	"github.com/ruteri/accesskeys-registry/ledger"
	"github.com/ruteri/accesskeys-registry/metrics"
	"github.com/urfave/cli/v2"
)

var flagStore = &cli.StringFlag{
	Name:    "store",
	Value:   "sqlite",
	Usage:   "ledger store: 'sqlite' or 'memory'",
	EnvVars: []string{"ACCESSKEYS_STORE"},
}

var flagDBPath = &cli.StringFlag{
	Name:    "db-path",
	Value:   "accesskeys.db",
	Usage:   "SQLite database file (store=sqlite)",
	EnvVars: []string{"ACCESSKEYS_DB_PATH"},
}

var flagAuth = &cli.StringFlag{
	Name:    "auth",
	Value:   "signature",
	Usage:   "request authorization: 'signature' (secp256k1 request signatures) or 'trusted' (X-Principal header only, development)",
	EnvVars: []string{"ACCESSKEYS_AUTH"},
}

var flagEventSink = &cli.StringSliceFlag{
	Name:    "event-sink",
	Value:   cli.NewStringSlice("log://"),
	Usage:   "event sink URI, repeatable: log://, file:///path/events.jsonl, s3://bucket/prefix?region=.., ipfs://host:port",
	EnvVars: []string{"ACCESSKEYS_EVENT_SINKS"},
}

var flagAdmin = &cli.StringFlag{
	Name:    "admin",
	Usage:   "admin address to initialize the registry with at startup",
	EnvVars: []string{"ACCESSKEYS_ADMIN"},
}

func main() {
	app := &cli.App{
		Name:  "registry-server",
		Usage: "Serve the access-key registry API",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.LogServiceFlagFn(common.PackageName),
			flagStore,
			flagDBPath,
			flagAuth,
			flagEventSink,
			flagAdmin,
		}, flags.CommonFlags...),
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	store, err := openStore(cCtx, logger)
	if err != nil {
		logger.Error("Failed to open store", "err", err)
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close store", "err", err)
		}
	}()

	authorizer, err := newAuthorizer(cCtx.String(flagAuth.Name), logger)
	if err != nil {
		return err
	}

	sink, err := events.NewSinkFactory(logger).CreateMultiSink(cCtx.StringSlice(flagEventSink.Name))
	if err != nil {
		logger.Error("Failed to create event sinks", "err", err)
		return err
	}
	if closer, ok := sink.(io.Closer); ok {
		defer closer.Close()
	}
	logger.Info("Publishing events", "sink", sink.Name())

	engine := ledger.NewEngine(store, authorizer, clock.New(), sink, logger)

	if adminHex := cCtx.String(flagAdmin.Name); adminHex != "" {
		if err := initializeAdmin(cCtx.Context, engine, adminHex, logger); err != nil {
			return err
		}
	}

	recorder := metrics.NewRecorder("accesskeys")
	handler := httpserver.NewHandler(engine, recorder, logger)

	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler, recorder)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server")
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func openStore(cCtx *cli.Context, logger *slog.Logger) (interfaces.KVStore, error) {
	switch kind := cCtx.String(flagStore.Name); kind {
	case "memory":
		logger.Warn("Using in-memory store, state is lost on restart")
		return kvstore.NewMemoryStore(), nil
	case "sqlite":
		path := cCtx.String(flagDBPath.Name)
		logger.Info("Opening SQLite store", "path", path)
		return kvstore.NewSQLiteStore(path, logger)
	default:
		return nil, fmt.Errorf("invalid store: %s", kind)
	}
}

func newAuthorizer(kind string, logger *slog.Logger) (interfaces.Authorizer, error) {
	switch kind {
	case "signature":
		return auth.NewSignatureAuthorizer(), nil
	case "trusted":
		logger.Warn("Request signatures are not verified, do not expose this server")
		return auth.NewTrustedAuthorizer(), nil
	default:
		logger.Error("Invalid auth mode", "auth", kind)
		return nil, fmt.Errorf("invalid auth: %s", kind)
	}
}

// initializeAdmin sets the admin on a fresh ledger and accepts a ledger already
// initialized with the same admin.
func initializeAdmin(ctx context.Context, engine *ledger.Engine, adminHex string, logger *slog.Logger) error {
	admin, err := interfaces.NewAddressFromHex(adminHex)
	if err != nil {
		return fmt.Errorf("invalid admin address: %w", err)
	}

	err = engine.Initialize(ctx, admin)
	if errors.Is(err, interfaces.ErrAlreadyInitialized) {
		current, err := engine.Admin(ctx)
		if err != nil {
			return err
		}
		if current != admin {
			return fmt.Errorf("ledger already initialized with admin %s", current.Hex())
		}
		logger.Info("Registry already initialized", "admin", current.Hex())
		return nil
	}
	return err
}
