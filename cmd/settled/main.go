package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/drivana/settlement/internal/httpapi"
	"github.com/drivana/settlement/internal/oplog"
	"github.com/drivana/settlement/internal/store/gormstore"
	"github.com/drivana/settlement/pkg/ledger"
	"github.com/drivana/settlement/pkg/preauth"
	"github.com/drivana/settlement/pkg/risk"
	"github.com/drivana/settlement/pkg/settlement"
	"github.com/drivana/settlement/pkg/withdrawal"
)

const (
	flagDatabaseURL        = "database-url"
	flagListenAddr         = "listen-addr"
	flagAllowedOrigins     = "allowed-origins"
	flagJWTSigningKey      = "jwt-signing-key"
	flagJWTIssuer          = "jwt-issuer"
	flagGatewayBaseURL     = "gateway-base-url"
	flagGatewayAccessToken = "gateway-access-token"
	flagFundUserID         = "fund-user-id"
	flagWithdrawalFeeBps   = "withdrawal-fee-bps"

	defaultDatabaseURL = "sqlite:///tmp/settlement.db"
	defaultListenAddr  = ":9090"
	defaultFundUserID  = "coverage-fund"
)

type runtimeConfig struct {
	DatabaseURL        string
	ListenAddr         string
	AllowedOrigins     string
	JWTSigningKey      string
	JWTIssuer          string
	GatewayBaseURL     string
	GatewayAccessToken string
	FundUserID         string
	WithdrawalFeeBps   int64
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "settled: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "settled",
		Short:         "Guarantee and withdrawal settlement API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma-delimited CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "HS256 signing key for session tokens")
	cmd.Flags().String(flagJWTIssuer, "", "Expected JWT issuer")
	cmd.Flags().String(flagGatewayBaseURL, "", "Card gateway base URL")
	cmd.Flags().String(flagGatewayAccessToken, "", "Card gateway access token")
	cmd.Flags().String(flagFundUserID, defaultFundUserID, "Ledger user id of the communal coverage fund")
	cmd.Flags().Int64(flagWithdrawalFeeBps, 0, "Withdrawal fee in basis points")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("SETTLED")
	viper.AutomaticEnv()

	flags := []string{
		flagDatabaseURL,
		flagListenAddr,
		flagAllowedOrigins,
		flagJWTSigningKey,
		flagJWTIssuer,
		flagGatewayBaseURL,
		flagGatewayAccessToken,
		flagFundUserID,
		flagWithdrawalFeeBps,
	}
	for _, flag := range flags {
		key := strings.ReplaceAll(flag, "-", "_")
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString("database_url")
	cfg.ListenAddr = viper.GetString("listen_addr")
	cfg.AllowedOrigins = viper.GetString("allowed_origins")
	cfg.JWTSigningKey = viper.GetString("jwt_signing_key")
	cfg.JWTIssuer = viper.GetString("jwt_issuer")
	cfg.GatewayBaseURL = viper.GetString("gateway_base_url")
	cfg.GatewayAccessToken = viper.GetString("gateway_access_token")
	cfg.FundUserID = viper.GetString("fund_user_id")
	cfg.WithdrawalFeeBps = viper.GetInt64("withdrawal_fee_bps")

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if cfg.JWTSigningKey == "" {
		return fmt.Errorf("jwt signing key is required")
	}
	if cfg.GatewayBaseURL == "" {
		return fmt.Errorf("gateway base url is required")
	}
	if cfg.GatewayAccessToken == "" {
		return fmt.Errorf("gateway access token is required")
	}
	if cfg.FundUserID == "" {
		return fmt.Errorf("fund user id is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	store := gormstore.New(gormDB)
	if driver == "sqlite" {
		if err := store.Migrate(); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	unixClock := func() int64 { return time.Now().UTC().Unix() }
	timeClock := func() time.Time { return time.Now().UTC() }

	walletService, err := ledger.NewService(store, unixClock,
		ledger.WithOperationLogger(oplog.NewLedgerLogger(logger)))
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}
	riskService, err := risk.NewService(store, store, timeClock)
	if err != nil {
		return fmt.Errorf("risk service init: %w", err)
	}
	withdrawalService, err := withdrawal.NewService(store, timeClock,
		withdrawal.WithOperationLogger(oplog.NewWithdrawalLogger(logger)),
		withdrawal.WithFeeBasisPoints(cfg.WithdrawalFeeBps))
	if err != nil {
		return fmt.Errorf("withdrawal service init: %w", err)
	}

	gateway, err := preauth.NewGateway(cfg.GatewayBaseURL, cfg.GatewayAccessToken,
		preauth.WithGatewayLogger(logger.Named("gateway")))
	if err != nil {
		return fmt.Errorf("gateway init: %w", err)
	}
	cardService, err := preauth.NewService(gateway, store, timeClock,
		preauth.WithLogger(logger.Named("preauth")))
	if err != nil {
		return fmt.Errorf("card service init: %w", err)
	}

	fundUserID, err := ledger.NewUserID(cfg.FundUserID)
	if err != nil {
		return fmt.Errorf("fund user id: %w", err)
	}
	orchestrator, err := settlement.New(walletService, riskService, cardService, fundUserID, timeClock,
		settlement.WithLogger(logger.Named("settlement")))
	if err != nil {
		return fmt.Errorf("orchestrator init: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		JWTSigningKey:  cfg.JWTSigningKey,
		JWTIssuer:      cfg.JWTIssuer,
	}, httpapi.Dependencies{
		Wallet:      walletService,
		Risk:        riskService,
		Withdrawals: withdrawalService,
		Cards:       cardService,
		Settlement:  orchestrator,
		Metrics:     store,
		Logger:      logger.Named("httpapi"),
	})
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	return server.Run(ctx)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormCfg := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormCfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "settlement.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
