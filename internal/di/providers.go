package di

import (
	"context"
	"fmt"
	"time"

	domainrepo "MacroSim/internal/domain/repository"
	"MacroSim/internal/domain/service"
	"MacroSim/internal/handler/api"
	"MacroSim/internal/handler/ws"
	internalrepo "MacroSim/internal/repository"
	"MacroSim/internal/service/ratelimit"
	"MacroSim/internal/services/agents"
	"MacroSim/internal/services/estimator"
	"MacroSim/internal/usecase"
	"MacroSim/pkg/cache"
	pkgch "MacroSim/pkg/clickhouse"
	"MacroSim/pkg/config"
	pkgkafka "MacroSim/pkg/kafka"
	applogger "MacroSim/pkg/logger"
	"MacroSim/pkg/metrics"
	"MacroSim/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRateLimiter creates the per-client stream rate limiter.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideCache selects the snapshot cache backend: Redis when enabled,
// in-process memory otherwise so restarts in dev still behave sensibly.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Redis.Enabled {
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   "macrosim",
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return c, nil
	}
	return cache.NewMemoryCache(1024, time.Minute), nil
}

// ProvideClickHouseClient creates a ClickHouse client and initializes the
// snapshot and policy rate tables. Returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SchemaStatements); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideSnapshotStore creates the ClickHouse snapshot history store.
func ProvideSnapshotStore(chClient *pkgch.Client, log *applogger.Logger) domainrepo.SnapshotStore {
	if chClient == nil {
		return nil
	}
	s := internalrepo.NewCHSnapshotStore(chClient)
	s.SetLogger(log)
	return s
}

// ProvidePolicyRateStore creates the ClickHouse policy rate store.
func ProvidePolicyRateStore(chClient *pkgch.Client, log *applogger.Logger) domainrepo.PolicyRateStore {
	if chClient == nil {
		return nil
	}
	s := internalrepo.NewCHPolicyRateStore(chClient)
	s.SetLogger(log)
	return s
}

// ProvideEstimator creates the state estimator HTTP client.
func ProvideEstimator(cfg *config.Config) service.StateEstimator {
	return estimator.NewClient(cfg.Estimator.URL, cfg.Estimator.Timeout)
}

// ProvidePredictor creates the RL action predictor client. Returns nil when
// no predictor is configured; the rl agent then degrades to a hold action.
func ProvidePredictor(cfg *config.Config) service.ActionPredictor {
	if cfg.Predictor.URL == "" {
		return nil
	}
	return agents.NewPredictorClient(cfg.Predictor.URL, cfg.Predictor.Timeout)
}

// ProvideSnapshotProvider creates the snapshot provider use case.
func ProvideSnapshotProvider(
	est service.StateEstimator,
	cacheSvc cache.Service,
	history domainrepo.SnapshotStore,
	cfg *config.Config,
	recorder *metrics.Recorder,
	log *applogger.Logger,
) *usecase.SnapshotProvider {
	return usecase.NewSnapshotProvider(est, cacheSvc, cfg.Redis.TTL, history, recorder, log)
}

// ProvideRecommender creates the policy recommender use case.
func ProvideRecommender(cfg *config.Config, recorder *metrics.Recorder, log *applogger.Logger) *usecase.Recommender {
	return usecase.NewRecommender(cfg.Simulation, recorder, log)
}

// ProvideComparator creates the multi-agent comparator use case.
func ProvideComparator(
	provider *usecase.SnapshotProvider,
	recommender *usecase.Recommender,
	predictor service.ActionPredictor,
	history domainrepo.SnapshotStore,
	rates domainrepo.PolicyRateStore,
	cfg *config.Config,
	recorder *metrics.Recorder,
	log *applogger.Logger,
) *usecase.Comparator {
	return usecase.NewComparator(provider, recommender, predictor, history, rates, cfg.Simulation, recorder, log)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
// Returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.RetryMax, cfg.Kafka.BackoffMin, cfg.Kafka.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.MinBytes, cfg.Kafka.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideSnapshotUpdateHandler registers the handler for the snapshot topic.
func ProvideSnapshotUpdateHandler(cfg *config.Config, provider *usecase.SnapshotProvider, log *applogger.Logger) *usecase.SnapshotUpdateHandler {
	return usecase.NewSnapshotUpdateHandler(cfg.Kafka.SnapshotTopic, provider, log)
}

// ProvideAPIHandler creates the REST handler.
func ProvideAPIHandler(
	provider *usecase.SnapshotProvider,
	recommender *usecase.Recommender,
	comparator *usecase.Comparator,
	cfg *config.Config,
	log *applogger.Logger,
) *api.Handler {
	return api.NewHandler(provider, recommender, comparator, cfg.Simulation, log)
}

// ProvideWSHandler creates the streaming WebSocket handler.
func ProvideWSHandler(
	provider *usecase.SnapshotProvider,
	cfg *config.Config,
	limiter *ratelimit.Limiter,
	recorder *metrics.Recorder,
	log *applogger.Logger,
) *ws.Handler {
	return ws.NewHandler(provider, cfg.Simulation, limiter, recorder, log)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	provider *usecase.SnapshotProvider,
	apiHandler *api.Handler,
	wsHandler *ws.Handler,
	consumer *pkgkafka.Consumer,
	kh *usecase.SnapshotUpdateHandler,
	chClient *pkgch.Client,
	cacheSvc cache.Service,
) *server.App {
	return server.New(cfg, log, provider, apiHandler, wsHandler, consumer, kh, chClient, cacheSvc)
}
