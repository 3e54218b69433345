package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive-server/accountlink"
	"github.com/taskhive/taskhive-server/auth"
	"github.com/taskhive/taskhive-server/internal/config"
	"github.com/taskhive/taskhive-server/internal/database"
	"github.com/taskhive/taskhive-server/internal/obs"
	"github.com/taskhive/taskhive-server/providers"
	"github.com/taskhive/taskhive-server/server"
	"github.com/taskhive/taskhive-server/token"
	"github.com/taskhive/taskhive-server/token/apitoken"
	"github.com/taskhive/taskhive-server/token/impersonation"
	"github.com/taskhive/taskhive-server/token/keys"
	"github.com/taskhive/taskhive-server/token/refresh"
)

const appName = "taskhive"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(appName)

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config.Load")
	}
	obs.SetupLogging(cfg.Logging.Level, cfg.Logging.Format)
	obs.InitMetrics()

	// The signing key is a hard startup requirement: without it no access
	// token can be issued or verified.
	privateKeyPEM, err := cfg.ReadPrivateKeyPEM()
	if err != nil {
		return errors.Wrap(err, "read signing key")
	}
	keyPair, err := keys.LoadKeyPairFromPEM(string(privateKeyPEM))
	if err != nil {
		return errors.Wrap(err, "parse signing key")
	}
	codec, err := token.NewCodec(keyPair)
	if err != nil {
		return errors.Wrap(err, "token codec")
	}

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return errors.Wrap(err, "database open")
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		return errors.Wrap(err, "database migrate")
	}

	userRepo := database.NewUserRepo(db)
	linkRepo := database.NewAccountLinkRepo(db)

	linker, err := accountlink.NewLinker(linkRepo, userRepo)
	if err != nil {
		return errors.Wrap(err, "account linker")
	}
	refreshTokens, err := refresh.NewManager(database.NewRefreshTokenRepo(db))
	if err != nil {
		return errors.Wrap(err, "refresh manager")
	}
	apiTokens, err := apitoken.NewManager(database.NewAPITokenRepo(db))
	if err != nil {
		return errors.Wrap(err, "api token manager")
	}
	impersonations, err := impersonation.NewManager(database.NewImpersonationRepo(db))
	if err != nil {
		return errors.Wrap(err, "impersonation manager")
	}

	registry := providers.NewRegistry(
		providerCredentials(cfg, cfg.Providers.Google, "google"),
		providerCredentials(cfg, cfg.Providers.GitHub, "github"),
		providerCredentials(cfg, cfg.Providers.Discord, "discord"),
	)

	authService, err := auth.NewService(
		registry, linker, codec, refreshTokens, apiTokens, impersonations, userRepo,
		auth.WithRefreshCap(cfg.Auth.RefreshCap),
	)
	if err != nil {
		return errors.Wrap(err, "auth service")
	}
	resolver, err := auth.NewResolver(codec, apiTokens, impersonations, userRepo)
	if err != nil {
		return errors.Wrap(err, "auth resolver")
	}

	srv, err := server.New(cfg, authService, resolver, userRepo, linkRepo)
	if err != nil {
		return errors.Wrap(err, "server")
	}

	httpServer := &http.Server{Addr: ":" + cfg.Server.Port, Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer, cfg)
}

func providerCredentials(cfg *config.Config, creds config.ProviderCredentials, name string) providers.Credentials {
	return providers.Credentials{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  cfg.Server.BaseURL + "/callback/" + name,
	}
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("listen failed")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
