package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	awsclient "github.com/swayfi/dca-engine/internal/client/aws"
	"github.com/swayfi/dca-engine/internal/client/bundler"
	"github.com/swayfi/dca-engine/internal/client/coinmarketcap"
	"github.com/swayfi/dca-engine/internal/client/feargreed"
	"github.com/swayfi/dca-engine/internal/client/quoter"

	"github.com/swayfi/dca-engine/internal/chain"
	"github.com/swayfi/dca-engine/internal/config"
	"github.com/swayfi/dca-engine/internal/constants"
	"github.com/swayfi/dca-engine/internal/delegation"
	"github.com/swayfi/dca-engine/internal/engine"
	"github.com/swayfi/dca-engine/internal/executor"
	"github.com/swayfi/dca-engine/internal/ledger"
	"github.com/swayfi/dca-engine/internal/lock"
	"github.com/swayfi/dca-engine/internal/logger"
	"github.com/swayfi/dca-engine/internal/quote"
	"github.com/swayfi/dca-engine/internal/signal"
	"github.com/swayfi/dca-engine/internal/wallet"
)

// Application holds the wired cycle orchestrator for the Lambda handler.
type Application struct {
	orchestrator *engine.Orchestrator
}

// HandleRequest runs one execution cycle. Invoked by the daily schedule.
func (app *Application) HandleRequest(ctx context.Context) error {
	logger.Info("starting execution cycle")

	result, err := app.orchestrator.Run(ctx)
	if err != nil {
		logger.Error("execution cycle failed", zap.Error(err))
		return fmt.Errorf("HandleRequest: cycle run failed: %w", err)
	}

	logger.Info("execution cycle finished",
		zap.Bool("success", result.Success),
		zap.String("cycle_date", result.CycleDate),
		zap.String("action", result.Action),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return nil
}

func main() {
	// Load .env file for local development
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v. Proceeding with environment variables/secrets.", err)
	}

	stage := os.Getenv("STAGE")
	if stage == "" {
		stage = constants.StageLocal
		log.Printf("Warning: STAGE environment variable not set, defaulting to '%s'", stage)
	}
	if !constants.IsValidStage(stage) {
		log.Fatalf("Invalid STAGE environment variable: '%s'. Must be one of: %s, %s, %s",
			stage, constants.StageProd, constants.StageDev, constants.StageLocal)
	}

	logger.InitLogger(stage)
	logger.Info("cold start: initializing execution engine", zap.String("stage", stage))
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	secretsClient, err := awsclient.NewSecretsManagerClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialize AWS Secrets Manager client", zap.Error(err))
	}

	// --- Database Connection Setup ---
	var dsn string
	if stage == constants.StageProd || stage == constants.StageDev {
		logger.Info("running in deployed stage, fetching DB credentials from Secrets Manager", zap.String("stage", stage))
		dbEndpoint := os.Getenv("DB_HOST")
		dbName := os.Getenv("DB_NAME")
		dbSSLMode := os.Getenv("DB_SSLMODE")
		if dbEndpoint == "" || dbName == "" {
			logger.Fatal("missing required DB environment variables for deployed environment (DB_HOST, DB_NAME)")
		}
		if dbSSLMode == "" {
			dbSSLMode = "require"
		}
		type rdsSecret struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		var secretData rdsSecret
		if err := secretsClient.GetSecretJSON(ctx, "RDS_SECRET_ARN", "", &secretData); err != nil {
			logger.Fatal("failed to retrieve or parse RDS secret", zap.Error(err))
		}
		if secretData.Username == "" || secretData.Password == "" {
			logger.Fatal("username or password not found in RDS secret data")
		}
		dsn = fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
			url.QueryEscape(secretData.Username), url.QueryEscape(secretData.Password),
			dbEndpoint, dbName, dbSSLMode)
	} else {
		dsn, err = secretsClient.GetSecretString(ctx, "DATABASE_URL_ARN", "DATABASE_URL")
		if err != nil {
			logger.Fatal("failed to get DATABASE_URL", zap.Error(err))
		}
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Fatal("unable to parse database DSN", zap.Error(err))
	}
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 15 * time.Minute
	connPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal("unable to create connection pool", zap.Error(err))
	}
	// The pool persists across warm Lambda invocations; do not close it here.

	// --- External Collaborators ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	cycleLock := lock.NewCycleLock(redisClient, 30*time.Minute)

	chainClient, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		logger.Fatal("failed to connect to chain RPC", zap.Error(err))
	}

	cmcAPIKey, err := secretsClient.GetSecretString(ctx, "CMC_API_KEY_ARN", "CMC_API_KEY")
	if err != nil {
		logger.Fatal("failed to get CoinMarketCap API key", zap.Error(err))
	}
	cmcClient := coinmarketcap.NewClient(cmcAPIKey)

	fgClient := feargreed.NewClient(cfg.FearGreedURL)
	signals := signal.NewProvider(fgClient, cmcClient, cfg.ProxySymbol)

	quoterAPIKey, err := secretsClient.GetSecretString(ctx, "QUOTER_API_KEY_ARN", "QUOTER_API_KEY")
	if err != nil {
		logger.Warn("no quoter API key configured", zap.Error(err))
	}
	quoterClient := quoter.NewClient(cfg.QuoterURL, quoterAPIKey, cfg.ChainID)

	// --- Submission Path ---
	var sponsored executor.SponsoredSender
	if cfg.SubmissionMode == constants.SponsoredSubmission {
		bundlerAPIKey, err := secretsClient.GetSecretString(ctx, "BUNDLER_API_KEY_ARN", "BUNDLER_API_KEY")
		if err != nil {
			logger.Warn("no bundler API key configured", zap.Error(err))
		}
		sponsored = bundler.NewClient(cfg.BundlerURL, bundlerAPIKey, cfg.SettleTimeout)
	}

	operatorKey, err := secretsClient.GetSecretString(ctx, "OPERATOR_KEY_ARN", "OPERATOR_PRIVATE_KEY")
	if err != nil {
		logger.Fatal("failed to get operator key", zap.Error(err))
	}
	signer, err := chain.NewPrivateKeySigner(operatorKey)
	if err != nil {
		logger.Fatal("invalid operator key", zap.Error(err))
	}
	sender := chain.NewOperatorSender(chainClient, signer)
	logger.Info("operator sender ready", zap.String("operator", signer.Address().Hex()))

	submitter := executor.NewSubmitter(cfg.SubmissionMode, cfg.DelegationManager, sender, chainClient, sponsored, cfg.SettleTimeout)

	registry := delegation.EnforcerRegistry{
		Timestamp:      cfg.TimestampEnforcer,
		LimitedCalls:   cfg.LimitedCallsEnforcer,
		AllowedTargets: cfg.AllowedTargetsEnforcer,
		AllowedMethods: cfg.AllowedMethodsEnforcer,
	}

	pgLedger := ledger.NewPostgresLedger(connPool)
	fees := executor.NewFeeCollector(submitter, sender, chainClient, pgLedger, registry, cfg.FeeWallet, cfg.RewardPool)

	pipeline := wallet.NewPipeline(chainClient, cmcClient, wallet.Config{
		StableToken: wallet.Token{
			Address:  cfg.StableToken.Address,
			Symbol:   cfg.StableToken.Symbol,
			Decimals: cfg.StableToken.Decimals,
		},
		VolatileToken: wallet.Token{
			Address:  cfg.VolatileToken.Address,
			Symbol:   cfg.VolatileToken.Symbol,
			Decimals: cfg.VolatileToken.Decimals,
		},
		MinWalletValueCents: cfg.MinWalletValueCents,
		MinTradableAmount:   cfg.MinTradableAmount,
		FeeBps:              cfg.FeeBps,
	})

	orchestrator := engine.NewOrchestrator(
		engine.Config{
			MaxWallets:       cfg.MaxWallets,
			InterWalletDelay: cfg.InterWalletDelay,
		},
		cycleLock,
		pgLedger,
		signals,
		pipeline,
		quoterClient,
		quote.NewValidator(cfg.AllowedRouters),
		quote.DefaultSlippageConfig(),
		submitter,
		fees,
		registry,
	)

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	app := &Application{orchestrator: orchestrator}

	if stage == constants.StageProd || stage == constants.StageDev {
		// The daily schedule invokes the Lambda once per cycle.
		lambda.Start(app.HandleRequest)
		return
	}

	// Local: run a single cycle and exit.
	if err := app.HandleRequest(ctx); err != nil {
		logger.Fatal("cycle run failed", zap.Error(err))
	}
}
