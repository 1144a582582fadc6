// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"time"

	"medical-triage/internal/audit"
	appaws "medical-triage/internal/common/aws"
	"medical-triage/internal/common/config"
	"medical-triage/internal/common/database"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/common/observability"
	"medical-triage/internal/lexicon"
	escalateemergency "medical-triage/internal/workers/notification/escalate-emergency"
	assessseverity "medical-triage/internal/workers/triage/assess-severity"
	classifyquery "medical-triage/internal/workers/triage/classify-query"
	normalizequery "medical-triage/internal/workers/triage/normalize-query"
	rankdocuments "medical-triage/internal/workers/triage/rank-documents"
	retrievedocuments "medical-triage/internal/workers/triage/retrieve-documents"
	synthesizeresponse "medical-triage/internal/workers/triage/synthesize-response"
	triagequery "medical-triage/internal/workers/triage/triage-query"
)

// App holds every component of a running triage process. The worker
// manager, the HTTP server and the CLI all build one.
type App struct {
	Config *config.Config
	Store  *lexicon.Store

	Normalizer  *normalizequery.Handler
	Classifier  *classifyquery.Handler
	Assessor    *assessseverity.Handler
	Retriever   *retrievedocuments.Handler
	Ranker      *rankdocuments.Handler
	Synthesizer *synthesizeresponse.Handler
	Escalator   *escalateemergency.Handler
	Triage      *triagequery.Handler
	Service     *triagequery.Service
	Audit       *audit.PostgresRecorder

	Pool          *retrievedocuments.Pool
	Postgres      *database.PostgresClient
	Elasticsearch *database.ElasticsearchClient
	Redis         *database.RedisClient
	Observability *observability.Observability

	logger logger.Logger
}

// Options tune connection behaviour; tests shorten the retry schedule.
type Options struct {
	ConnectRetries int
	RetryDelay     time.Duration
}

func DefaultOptions() Options {
	return Options{ConnectRetries: 10, RetryDelay: 2 * time.Second}
}

// New connects the enabled backends and wires the pipeline. Disabled
// backends fall back to their in-process alternative: the seed corpus for
// search, no cache, no audit and no escalation.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, logger: log}

	store, err := lexicon.Load()
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	a.Store = store
	log.Info("lexicon loaded", map[string]interface{}{
		"diseases":  len(store.DiseaseNames()),
		"surfaces":  store.SurfaceCount(),
		"conflicts": len(store.Conflicts()),
	})

	a.Observability = observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)

	if err := a.connect(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	searcher, err := a.searcher()
	if err != nil {
		a.Close()
		return nil, err
	}

	retrieval := cfg.Retrieval
	a.Pool = retrievedocuments.NewPool(searcher, retrieval.PoolSize, retrieval.QueueSize,
		config.GetDuration(retrieval.Timeout), log)

	a.Normalizer = normalizequery.NewHandler(&normalizequery.Config{
		Timeout:       workerTimeout(cfg, normalizequery.TaskType),
		SlowThreshold: 50 * time.Millisecond,
	}, store, log)
	a.Classifier = classifyquery.NewHandler(&classifyquery.Config{
		Timeout: workerTimeout(cfg, classifyquery.TaskType),
	}, log)
	a.Assessor = assessseverity.NewHandler(&assessseverity.Config{
		Timeout: workerTimeout(cfg, assessseverity.TaskType),
	}, store, log)
	a.Retriever = retrievedocuments.NewHandler(&retrievedocuments.Config{
		TopK:              retrieval.TopK,
		MinScore:          retrieval.MinScore,
		EmergencyMinScore: retrieval.EmergencyMinScore,
		Timeout:           workerTimeout(cfg, retrievedocuments.TaskType),
		PoolSize:          retrieval.PoolSize,
		QueueSize:         retrieval.QueueSize,
	}, a.Pool, log)
	a.Ranker = rankdocuments.NewHandler(&rankdocuments.Config{
		MaxItems:           cfg.Ranking.MaxDocuments,
		MinScore:           cfg.Ranking.MinScore,
		MinContentLength:   cfg.Ranking.MinContentLength,
		DuplicateThreshold: cfg.Ranking.DuplicateThreshold,
		Timeout:            workerTimeout(cfg, rankdocuments.TaskType),
	}, store, log)
	a.Synthesizer = synthesizeresponse.NewHandler(&synthesizeresponse.Config{
		MaxLength:      cfg.Response.MaxLength,
		ValidateSchema: cfg.Response.ValidateSchema,
		Timeout:        workerTimeout(cfg, synthesizeresponse.TaskType),
	}, store, log)

	serviceOpts := []triagequery.Option{triagequery.WithObservability(a.Observability)}
	if a.Postgres != nil && cfg.Audit.Enabled {
		a.Audit = audit.NewPostgresRecorder(a.Postgres.DB, log)
		serviceOpts = append(serviceOpts, triagequery.WithRecorder(a.Audit))
	}
	if err := a.escalator(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.Escalator != nil {
		serviceOpts = append(serviceOpts, triagequery.WithEscalator(a.Escalator))
	}

	triageCfg := triagequery.LoadConfig()
	triageCfg.Timeout = workerTimeout(cfg, triagequery.TaskType)
	triageCfg.EscalationEnabled = a.Escalator != nil

	a.Service = triagequery.NewService(triageCfg, triagequery.Stages{
		Normalizer:  a.Normalizer,
		Classifier:  a.Classifier,
		Assessor:    a.Assessor,
		Retriever:   a.Retriever,
		Ranker:      a.Ranker,
		Synthesizer: a.Synthesizer,
	}, log, serviceOpts...)
	a.Triage = triagequery.NewHandler(triageCfg, a.Service, log)

	log.Info("triage pipeline ready", map[string]interface{}{
		"retrieval":  a.Retriever.Backend(),
		"cache":      a.Redis != nil && cfg.Cache.Enabled,
		"audit":      a.Postgres != nil && cfg.Audit.Enabled,
		"escalation": a.Escalator != nil,
	})
	return a, nil
}

func (a *App) connect(ctx context.Context, opts Options) error {
	cfg := a.Config

	if cfg.Database.Postgres.Enabled || cfg.Audit.Enabled {
		err := RetryWithBackoff(func() error {
			pg, err := database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				pg.Close()
				return err
			}
			a.Postgres = pg
			return nil
		}, opts.ConnectRetries, opts.RetryDelay, a.logger, "PostgreSQL connection")
		if err != nil {
			return err
		}
		if err := a.Postgres.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		a.logger.Info("PostgreSQL connected", nil)
	}

	if cfg.Retrieval.Backend == retrievedocuments.BackendElasticsearch {
		err := RetryWithBackoff(func() error {
			es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			if err := es.Ping(ctx); err != nil {
				return err
			}
			a.Elasticsearch = es
			return nil
		}, opts.ConnectRetries, opts.RetryDelay, a.logger, "Elasticsearch connection")
		if err != nil {
			return err
		}
		a.logger.Info("Elasticsearch connected", map[string]interface{}{"index": a.Elasticsearch.Index})
	}

	if cfg.Database.Redis.Enabled || cfg.Cache.Enabled {
		rc := database.NewRedis(cfg.Database.Redis)
		err := RetryWithBackoff(func() error {
			return rc.Ping(ctx)
		}, opts.ConnectRetries, opts.RetryDelay, a.logger, "Redis connection")
		if err != nil {
			rc.Close()
			return err
		}
		a.Redis = rc
		a.logger.Info("Redis connected", nil)
	}
	return nil
}

func (a *App) searcher() (retrievedocuments.Searcher, error) {
	cfg := a.Config
	var searcher retrievedocuments.Searcher

	if a.Elasticsearch != nil {
		var embedder retrievedocuments.Embedder
		if cfg.Embeddings.Enabled {
			embedder = retrievedocuments.NewOpenAIEmbedder(cfg.Embeddings.APIKey, cfg.Embeddings.BaseURL,
				cfg.Embeddings.Model, config.GetDuration(cfg.Embeddings.Timeout))
		}
		searcher = retrievedocuments.NewElasticsearchSearcher(a.Elasticsearch.Client, a.Elasticsearch.Index,
			cfg.Database.Elasticsearch.VectorField, embedder, a.logger)
	} else {
		seed, err := retrievedocuments.NewSeedSearcher()
		if err != nil {
			return nil, fmt.Errorf("load seed corpus: %w", err)
		}
		searcher = seed
	}

	if a.Redis != nil && cfg.Cache.Enabled {
		searcher = retrievedocuments.NewCachedSearcher(searcher, a.Redis.Client,
			time.Duration(cfg.Cache.TTL)*time.Second, cfg.Cache.KeyPrefix, a.logger)
	}
	return searcher, nil
}

func (a *App) escalator(ctx context.Context) error {
	n := a.Config.Notifications
	if a.Postgres == nil || !(n.Email.Enabled || n.SMS.Enabled) {
		return nil
	}
	clients, err := appaws.NewClients(ctx, n.AWS.Region)
	if err != nil {
		return err
	}

	escCfg := escalateemergency.LoadConfig()
	escCfg.EmailEnabled = n.Email.Enabled
	escCfg.SMSEnabled = n.SMS.Enabled
	escCfg.FromEmail = n.Email.FromEmail
	escCfg.SenderID = n.SMS.SenderID
	escCfg.Timeout = workerTimeout(a.Config, escalateemergency.TaskType)

	a.Escalator = escalateemergency.NewHandler(escCfg, a.Postgres.DB, clients.SES, clients.SNS, a.logger)
	return nil
}

// Ready pings every connected backend.
func (a *App) Ready(ctx context.Context) map[string]error {
	checks := map[string]error{}
	if a.Postgres != nil {
		checks["postgres"] = a.Postgres.Ping(ctx)
	}
	if a.Elasticsearch != nil {
		checks["elasticsearch"] = a.Elasticsearch.Ping(ctx)
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Ping(ctx)
	}
	return checks
}

// Close waits for background escalations and releases every connection.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Wait()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
	a.Observability.Shutdown()
}

func workerTimeout(cfg *config.Config, taskType string) time.Duration {
	return config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
}
