package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/avoronel/authd/internal/api"
	"github.com/avoronel/authd/internal/controller"
	"github.com/avoronel/authd/internal/identity"
	"github.com/avoronel/authd/internal/migrations"
	"github.com/avoronel/authd/internal/service"
	"github.com/avoronel/authd/internal/storage/postgres"
	"github.com/avoronel/authd/internal/storage/redis"
	"github.com/avoronel/authd/internal/util"

	_ "github.com/lib/pq"
)

func main() {
	ctx := context.Background()
	logger := util.NewZapLogger()

	db, dbCleanup, err := util.NewDBConnection(logger)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	if err := migrations.RunMigrations(db, logger, "./internal/migrations"); err != nil {
		logger.Fatal(zap.Error(err))
	}

	redisClient, redisCleanup, err := util.NewRedisClient(logger, util.NewRedisConfig())
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	cleanupFuncs := []func(){dbCleanup, redisCleanup}

	store := postgres.NewStorage(db, logger)
	blacklist := redis.NewBlacklist(redisClient)

	tokenService := service.NewTokenService(util.NewTokenConfig(), blacklist)
	verifier := identity.NewHTTPVerifier(util.NewIdentityConfig(), logger)

	storageCfg := util.NewStorageConfig()
	providerCfg := util.NewProviderConfig()
	provider := identity.NewOIDCProvider(providerCfg, logger)
	resolver := service.NewLinkResolver(verifier, store, providerCfg.Name, storageCfg, logger)

	alertService := service.NewAlertService(logger, util.GetAlertWebhookURL())
	sessionService := service.NewSessionService(
		verifier,
		tokenService,
		store,
		resolver,
		alertService,
		storageCfg,
		logger,
	)

	ctrl := controller.NewController(logger, sessionService, provider, providerCfg.FrontendURL)

	apiServer := api.NewAPI(ctrl, tokenService, util.NewServerConfig(), logger, cleanupFuncs)
	apiServer.Run(ctx)
}
