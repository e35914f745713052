package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cfg "github.com/cometbft/cometbft/config"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmtrpc "github.com/cometbft/cometbft/rpc/client/local"
	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/viper"

	"github.com/ribon-matchalatte/backend/app"
	"github.com/ribon-matchalatte/backend/config"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/ledger"
	"github.com/ribon-matchalatte/backend/notify"
	"github.com/ribon-matchalatte/backend/repository"
	"github.com/ribon-matchalatte/backend/repository/kvstore"
	"github.com/ribon-matchalatte/backend/server"
	"github.com/ribon-matchalatte/backend/shop"
	service_registry "github.com/ribon-matchalatte/backend/srvreg"
)

var (
	configPath string
	homeDir    string
	httpPort   string
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the server config file (toml, yaml or json)")
	flag.StringVar(&homeDir, "cmt-home", "", "Path to the CometBFT config directory, overrides ledger.cmt_home")
	flag.StringVar(&httpPort, "http-port", "", "HTTP web server port, overrides http_port")
}

// Store is what both storage backends provide
type Store interface {
	inventory.Store
	shop.Store
	Close() error
}

func main() {
	flag.Parse()

	conf, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	if homeDir != "" {
		conf.Ledger.CometHome = homeDir
	}
	if httpPort != "" {
		conf.HTTPPort = httpPort
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	logger, err = cmtflags.ParseLogLevel(conf.LogLevel, logger, cfg.DefaultLogLevel)
	if err != nil {
		log.Fatalf("failed to parse log level: %v", err)
	}

	store, err := openStore(conf.Store, logger)
	if err != nil {
		log.Fatalf("Opening store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Closing store", "err", err)
		}
	}()

	ctx := context.Background()
	if conf.Store.Seed {
		if err := repository.Seed(ctx, store, logger); err != nil {
			log.Fatalf("Seeding store: %v", err)
		}
	}

	inventoryService := inventory.NewService(store, logger, conf.Inventory.Service())
	inventoryService.SetAlerter(newAlerter(conf.Alerts, logger))
	if _, err := inventoryService.EvaluateAll(ctx); err != nil {
		log.Fatalf("Evaluating product availability: %v", err)
	}
	shopService := shop.NewService(store, inventoryService, logger, conf.Inventory.Shop())

	serviceRegistry := service_registry.NewServiceRegistry(shopService, inventoryService, logger)
	serviceRegistry.RegisterDefaultServices()

	var auditLedger ledger.Ledger = ledger.Nop{}
	if conf.Ledger.Enabled {
		node, ledgerDB, err := startNode(conf.Ledger.CometHome, logger)
		if err != nil {
			log.Fatalf("Starting ledger node: %v", err)
		}
		defer func() {
			node.Stop()
			node.Wait()
			if err := ledgerDB.Close(); err != nil {
				logger.Error("Closing ledger database", "err", err)
			}
		}()
		auditLedger = ledger.NewComet(cmtrpc.New(node), string(node.NodeInfo().ID()), conf.Ledger.Timeout, logger)
	}

	webserver := server.NewWebServer(conf.HTTPPort, serviceRegistry, auditLedger, logger)
	if err := webserver.Start(); err != nil {
		log.Fatalf("Starting HTTP server: %v", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := webserver.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
}

func openStore(conf config.StoreConfig, logger cmtlog.Logger) (Store, error) {
	switch conf.Driver {
	case config.DriverPostgres:
		repo := repository.NewRepository(logger)
		if err := repo.ConnectDB(conf.PostgresDSN, conf.ConnectAttempts); err != nil {
			return nil, err
		}
		if err := repo.Migrate(); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	default:
		logger.Info("Opening badger store", "path", conf.BadgerPath)
		store, err := kvstore.Open(conf.BadgerPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func newAlerter(conf config.AlertsConfig, logger cmtlog.Logger) inventory.Alerter {
	if conf.SendGridAPIKey == "" {
		return notify.NewLogAlerter(logger)
	}
	alerter, err := notify.NewSendGridAlerter(conf.SendGridAPIKey, conf.From, conf.To, logger)
	if err != nil {
		logger.Error("SendGrid alerts disabled, falling back to log alerts", "err", err)
		return notify.NewLogAlerter(logger)
	}
	return alerter
}

// startNode runs an in-process CometBFT node whose application is the audit ledger
func startNode(home string, logger cmtlog.Logger) (*nm.Node, *badger.DB, error) {
	cometConfig := cfg.DefaultConfig()
	cometConfig.SetRoot(home)
	v := viper.New()
	v.SetConfigFile(filepath.Join(home, "config", "config.toml"))
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("reading CometBFT config: %w", err)
	}
	if err := v.Unmarshal(cometConfig); err != nil {
		return nil, nil, fmt.Errorf("decoding CometBFT config: %w", err)
	}
	if err := cometConfig.ValidateBasic(); err != nil {
		return nil, nil, fmt.Errorf("invalid CometBFT configuration data: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(filepath.Join(home, "badger")).WithLogger(nil))
	if err != nil {
		return nil, nil, fmt.Errorf("opening ledger database: %w", err)
	}
	ledgerApp := app.NewABCIApplication(db, logger)

	pv := privval.LoadFilePV(cometConfig.PrivValidatorKeyFile(), cometConfig.PrivValidatorStateFile())
	nodeKey, err := p2p.LoadNodeKey(cometConfig.NodeKeyFile())
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to load node's key: %w", err)
	}

	node, err := nm.NewNode(
		context.Background(),
		cometConfig,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(ledgerApp),
		nm.DefaultGenesisDocProviderFunc(cometConfig),
		cfg.DefaultDBProvider,
		nm.DefaultMetricsProvider(cometConfig.Instrumentation),
		logger,
	)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating node: %w", err)
	}
	ledgerApp.SetNodeID(string(node.NodeInfo().ID()))

	if err := node.Start(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("starting node: %w", err)
	}
	return node, db, nil
}
