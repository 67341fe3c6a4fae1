package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/graphql"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/memstore"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/infrastructure/neo4jstore"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/services"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/configuration"
	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/pkg/logging"
)

// openStores is swapped out in tests.
var openStores = defaultOpenStores

type runtime struct {
	conf   *configuration.Configuration
	logger *logrus.Logger
	stores domain.StoreRegistry
	close  func()
}

func (r *runtime) log() *logrus.Entry {
	return r.logger.WithField("backend", r.conf.StoreBackend)
}

func (r *runtime) importerOptions() services.ImporterOptions {
	return services.ImporterOptions{
		YieldEvery:       r.conf.Import.YieldEvery,
		YieldPause:       r.conf.Import.YieldPause,
		ProgressEvery:    r.conf.Import.ProgressEvery,
		StoreCallTimeout: r.conf.Import.StoreCallTimeout,
		StrictValidation: r.conf.Import.StrictValidation,
		Logger:           r.log(),
	}
}

// loadConfig reads .env files and the environment. Commands log to stderr so
// stdout carries only their JSON output.
func loadConfig(g *globalOptions, stderr io.Writer) (*configuration.Configuration, *logrus.Logger, error) {
	if _, err := configuration.LoadEnv([]string{".env", ".env.local"}); err != nil {
		return nil, nil, withCode(exitUsage, fmt.Errorf("load env: %w", err))
	}
	conf, err := configuration.Parse()
	if err != nil {
		return nil, nil, withCode(exitUsage, err)
	}
	backend, err := backendOverride(g)
	if err != nil {
		return nil, nil, err
	}
	if backend != "" {
		conf.StoreBackend = backend
	}
	level := conf.LogrusLogLevel()
	if g.verbose {
		level = logrus.DebugLevel
	}
	return conf, logging.ConsoleLogger(level, stderr), nil
}

func openRuntime(ctx context.Context, g *globalOptions) (*runtime, error) {
	conf, logger, err := loadConfig(g, os.Stderr)
	if err != nil {
		return nil, err
	}
	stores, closeFn, err := openStores(ctx, conf, logger.WithField("backend", conf.StoreBackend))
	if err != nil {
		return nil, withCode(exitStore, err)
	}
	return &runtime{conf: conf, logger: logger, stores: stores, close: closeFn}, nil
}

func defaultOpenStores(ctx context.Context, conf *configuration.Configuration, log *logrus.Entry) (domain.StoreRegistry, func(), error) {
	switch conf.StoreBackend {
	case configuration.BackendNeo4j:
		reg, err := neo4jstore.Open(ctx, neo4jstore.Options{
			URI:      conf.Neo4j.URI,
			Username: conf.Neo4j.User,
			Password: conf.Neo4j.Password,
			Database: conf.Neo4j.Database,
			Logger:   log,
		})
		if err != nil {
			return nil, nil, err
		}
		return reg, func() {
			if err := reg.Close(context.Background()); err != nil {
				log.WithError(err).Warn("close neo4j driver")
			}
		}, nil
	case configuration.BackendMemory:
		log.Warn("memory backend, nothing is persisted")
		return memstore.New(), func() {}, nil
	default:
		client, err := graphql.NewClient(graphql.ClientOptions{
			Endpoint:        conf.GraphQL.URL,
			Token:           conf.GraphQL.Token,
			Timeout:         conf.GraphQL.Timeout,
			RequestIDHeader: conf.RequestIDHeader,
			Logger:          log,
		})
		if err != nil {
			return nil, nil, err
		}
		reg, err := graphql.NewRegistry(client)
		if err != nil {
			return nil, nil, err
		}
		return reg, func() {}, nil
	}
}

// backendOverride validates --backend. Empty keeps the configured backend.
func backendOverride(g *globalOptions) (string, error) {
	b := strings.ToLower(strings.TrimSpace(g.backend))
	switch b {
	case "", configuration.BackendGraphQL, configuration.BackendNeo4j, configuration.BackendMemory:
		return b, nil
	}
	return "", withCode(exitUsage, fmt.Errorf("invalid --backend %q", g.backend))
}
