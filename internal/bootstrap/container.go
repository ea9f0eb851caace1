package bootstrap

import (
	"context"
	"log"

	"cluster-intelligence-be/internal/config"
	"cluster-intelligence-be/internal/controller"
	"cluster-intelligence-be/internal/pkg/lock"
	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/internal/repository/memory"
	"cluster-intelligence-be/internal/repository/unitofwork"
	"cluster-intelligence-be/internal/service"
	"cluster-intelligence-be/pkg/clustering"
	"cluster-intelligence-be/pkg/events"
	"cluster-intelligence-be/pkg/llm/factory"
	"cluster-intelligence-be/pkg/vectorstore"

	pktNats "cluster-intelligence-be/pkg/nats"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ClusterController controller.IClusterController

	// Services, exposed for the CLI and main.go
	ClusterService    service.IClusterService
	SuggestionService service.IClusterSuggestionService
	ConsumerService   service.IConsumerService

	Logger logger.ILogger

	closers []func() error
}

// NewContainer wires the engine. db may be nil when the memory store is
// configured.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	c := &Container{Logger: sysLogger}

	var uowFactory unitofwork.RepositoryFactory
	if cfg.Database.Store == "memory" || db == nil {
		log.Printf("[INFO] Using in-memory cluster store")
		uowFactory = memory.NewRepositoryFactory(nil)
	} else {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	}

	// 2. Event bus. Events always reach the in-process bus, so the health
	// consumer keeps working when only the NATS subscriber fails.
	retry := events.DefaultRetryPolicy()
	retry.MaxRetries = cfg.App.EventMaxRetries
	retry.InitialInterval = cfg.App.EventRetryInterval
	bus := events.NewChannelBus(sysLogger, events.WithRetryPolicy(retry))
	c.closers = append(c.closers, bus.Close)

	var publisher events.Publisher = bus
	var subscriber events.Subscriber = bus
	if cfg.App.EventBus == "nats" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			publisher = events.MultiPublisher{bus, natsPub}
			c.closers = append(c.closers, natsPub.Close)
		}
		natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger, pktNats.WithRetryPolicy(retry))
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		} else {
			subscriber = natsSub
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	// 3. Infrastructure
	locker := newLocker(cfg, sysLogger)
	store := newVectorStore(db, cfg, sysLogger)
	if store != nil {
		c.closers = append(c.closers, store.Close)
	}

	llmProvider, err := factory.NewLLMProvider(factory.Config{
		Provider: cfg.Ai.LLMProvider,
		BaseURL:  cfg.Ai.LLMBaseURL,
		Model:    cfg.Ai.LLMModel,
		APIKey:   cfg.Ai.LLMAPIKey,
		Timeout:  cfg.Ai.NamingTimeout,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	var clusterer *clustering.Clusterer
	if store != nil {
		clusterer = clustering.NewClusterer(store, clustering.Config{
			MaxIterations:        cfg.Cluster.MaxIterations,
			ConvergenceThreshold: cfg.Cluster.ConvergenceThreshold,
			Dimension:            cfg.VectorStore.Dimension,
			PageSize:             cfg.VectorStore.PageSize,
			Timeout:              cfg.VectorStore.RequestTimeout,
		}, sysLogger, clustering.WithNamer(clustering.NewNamer(llmProvider, cfg.Ai.NamingTimeout, sysLogger)))
	}

	// 4. Services
	topologyService := service.NewClusterTopologyService(uowFactory, locker, publisher, sysLogger,
		service.TopologyConfig{LockTTL: cfg.Cluster.LockTTL})
	crossClusterService := service.NewCrossClusterService(uowFactory, store, sysLogger, service.CrossClusterConfig{
		Dimension:       cfg.VectorStore.Dimension,
		PageSize:        cfg.VectorStore.PageSize,
		Timeout:         cfg.VectorStore.RequestTimeout,
		BridgeThreshold: cfg.Cluster.BridgeThreshold,
	})
	clusterService := service.NewClusterService(uowFactory, topologyService, crossClusterService, clusterer, sysLogger,
		service.ClusterServiceConfig{
			DefaultMaxClusters:    cfg.Cluster.DefaultMaxClusters,
			DefaultMinClusterSize: cfg.Cluster.DefaultMinClusterSize,
		})
	suggestionService := service.NewClusterSuggestionService(uowFactory, clusterService, topologyService, sysLogger,
		cfg.Cluster.SuggestionTTL)

	c.ClusterService = clusterService
	c.SuggestionService = suggestionService
	c.ConsumerService = service.NewConsumerService(subscriber, clusterService, sysLogger)

	// 5. Controllers
	c.ClusterController = controller.NewClusterController(clusterService, suggestionService)
	return c
}

// Close releases buses and stores in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Printf("[WARN] Failed to close resource: %v", err)
		}
	}
}

func newLocker(cfg *config.Config, sysLogger logger.ILogger) lock.Locker {
	if cfg.App.RedisURL == "" {
		return lock.NewLocalLocker()
	}
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v. Using process-local locks", err)
		_ = rdb.Close()
		return lock.NewLocalLocker()
	}
	return lock.NewRedisLocker(rdb, sysLogger)
}

// newVectorStore returns nil when the store cannot be reached; the services
// then report operations that need vectors as unavailable.
func newVectorStore(db *gorm.DB, cfg *config.Config, sysLogger logger.ILogger) vectorstore.VectorStore {
	switch cfg.VectorStore.Provider {
	case "pgvector":
		if db == nil {
			log.Printf("[WARN] pgvector needs a database connection; vector features disabled")
			return nil
		}
		store, err := vectorstore.NewPgVectorStore(db)
		if err != nil {
			log.Printf("[WARN] Failed to initialize pgvector store: %v", err)
			return nil
		}
		log.Printf("[INFO] Using Vector Store: PGVECTOR")
		return store
	default:
		store, err := vectorstore.NewQdrantStore(&vectorstore.QdrantConfig{
			Host:           cfg.VectorStore.QdrantHost,
			Port:           cfg.VectorStore.QdrantPort,
			UseTLS:         cfg.VectorStore.QdrantUseTLS,
			APIKey:         cfg.VectorStore.QdrantAPIKey,
			RequestTimeout: cfg.VectorStore.RequestTimeout,
		}, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to Qdrant: %v", err)
			return nil
		}
		log.Printf("[INFO] Using Vector Store: QDRANT (%s:%d)", cfg.VectorStore.QdrantHost, cfg.VectorStore.QdrantPort)
		return store
	}
}
