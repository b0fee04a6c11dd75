package main

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/layer-3/faucet/adapters/captcha"
	"github.com/layer-3/faucet/adapters/chain"
	"github.com/layer-3/faucet/adapters/events"
	"github.com/layer-3/faucet/adapters/ledger"
	"github.com/layer-3/faucet/adapters/store"
	"github.com/layer-3/faucet/adapters/tokenizer"
	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/internal/config"
	"github.com/layer-3/faucet/internal/logging"
	"github.com/layer-3/faucet/internal/observability"
	"github.com/layer-3/faucet/ports"
	"github.com/layer-3/faucet/service"
	"github.com/layer-3/faucet/transport/command"
	httptransport "github.com/layer-3/faucet/transport/http"
	"github.com/layer-3/faucet/transport/stream"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("faucet stopped with error")
		stop()
		os.Exit(1)
	}
	logger.Info().Msg("faucet stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(shutdownCtx)
	}()

	signer, err := chain.NewKeySigner(cfg.PrivateKey)
	if err != nil {
		return err
	}
	faucetCtx, err := chain.Dial(ctx, cfg.RPCURL, cfg.ContractAddress, signer)
	if err != nil {
		return err
	}
	defer faucetCtx.Close()

	logStartup(ctx, faucetCtx, cfg, logger)

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	var (
		claimLedger ports.Ledger
		challenges  ports.ChallengeStore
		locker      ports.Locker
	)
	switch cfg.LedgerBackend {
	case config.LedgerBackendRedis:
		claimLedger = ledger.NewRedisLedger(redisClient, cfg.ClaimWindow)
		challenges = store.NewRedisStore(redisClient, cfg.ChallengeTTL)
		locker = store.NewRedisLocker(redisClient, cfg.LockTimeout)
	default:
		fileLedger, err := ledger.OpenFile(cfg.LedgerPath, cfg.ClaimWindow)
		if err != nil {
			return err
		}
		logger.Info().Str("path", cfg.LedgerPath).Int("identities", fileLedger.Len()).Msg("ledger loaded")
		claimLedger = fileLedger
		challenges = store.NewMemoryStore(cfg.ChallengeTTL)
		locker = store.NewMemoryLocker()
	}

	wmLogger := logging.NewWatermillLogger(logger)

	var eventPub ports.EventPublisher
	if cfg.EventsEnabled {
		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		eventPub = events.NewWatermillPublisher(publisher)
	}

	disburser := service.NewDisburser(faucetCtx, signer, service.DisburserConfig{
		ChainID:        big.NewInt(cfg.ChainID),
		GasLimit:       cfg.GasLimit,
		GasMinGwei:     decimal.NewFromInt(cfg.GasMinGwei),
		GasMaxGwei:     decimal.NewFromInt(cfg.GasMaxGwei),
		CallTimeout:    cfg.RPCTimeout,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, logger)

	workflow := service.NewClaimWorkflow(
		claimLedger,
		challenges,
		captcha.NewGenerator(),
		disburser,
		locker,
		eventPub,
		service.WorkflowConfig{
			Amount:      core.TokenAmount(cfg.ClaimAmount, cfg.TokenDecimals),
			ClaimWindow: cfg.ClaimWindow,
			LockTimeout: cfg.LockTimeout,
		},
		logger,
	)
	router := command.NewRouter(workflow)

	errCh := make(chan error, 2)

	var streamHandler *stream.Handler
	if cfg.StreamEnabled {
		streamRouter, handler, err := newStreamRouter(redisClient, router, cfg.StreamWorkers, wmLogger, logger)
		if err != nil {
			return err
		}
		defer streamRouter.Close()
		streamHandler = handler
		go func() {
			if err := streamRouter.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httptransport.SetupRouter(router, tokenizer.NewJWTTokenizer(cfg.BotToken), httptransport.RouterConfig{
			ServiceName: cfg.OTEL.ServiceName,
			RateRPS:     cfg.RateRPS,
			RateBurst:   cfg.RateBurst,
		}, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		// In-flight claims may be waiting on a receipt
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ConfirmTimeout+5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if streamHandler != nil {
			return streamHandler.Wait(shutdownCtx)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func newStreamRouter(client *redis.Client, router *command.Router, maxInFlight int, wmLogger watermill.LoggerAdapter, logger zerolog.Logger) (*message.Router, *stream.Handler, error) {
	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: "faucet",
	}, wmLogger)
	if err != nil {
		return nil, nil, err
	}
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
	if err != nil {
		return nil, nil, err
	}
	handler := stream.NewHandler(router, pub, maxInFlight, logger)
	streamRouter, err := stream.NewRouter(handler, sub, wmLogger)
	if err != nil {
		return nil, nil, err
	}
	return streamRouter, handler, nil
}

// logStartup reports the connected network and the faucet account. A chain
// id mismatch is only a warning; every transfer is signed for cfg.ChainID.
func logStartup(ctx context.Context, faucetCtx *chain.FaucetContext, cfg config.Config, logger zerolog.Logger) {
	address := faucetCtx.Signer().Address()
	ev := logger.Info().
		Str("faucet", address.Hex()).
		Str("contract", common.HexToAddress(cfg.ContractAddress).Hex())

	if id, err := faucetCtx.ChainID(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to read chain id")
	} else {
		ev = ev.Str("chain_id", id.String())
		if id.Cmp(big.NewInt(cfg.ChainID)) != 0 {
			logger.Warn().Str("connected", id.String()).Int64("configured", cfg.ChainID).Msg("connected chain id differs from CHAIN_ID")
		}
	}

	if balance, err := faucetCtx.NativeBalance(ctx, address); err != nil {
		logger.Warn().Err(err).Msg("failed to read native balance")
	} else {
		ev = ev.Str("native_balance", decimal.NewFromBigInt(balance, -18).String())
	}

	if balance, err := faucetCtx.TokenBalance(ctx, address); err != nil {
		logger.Warn().Err(err).Msg("failed to read token balance")
	} else {
		ev = ev.Str("token_balance", decimal.NewFromBigInt(balance, -cfg.TokenDecimals).String())
	}

	ev.Msg("connected to chain")
}
