package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"rentguard/internal/booking/catalog"
	bookingmetrics "rentguard/internal/booking/metrics"
	"rentguard/internal/booking/service"
	"rentguard/internal/booking/store"
	"rentguard/internal/ledger"
	"rentguard/internal/platform/config"
	"rentguard/internal/platform/metrics"
	"rentguard/internal/platform/redis"
	"rentguard/internal/proof"
	httptransport "rentguard/internal/transport/http"
	"rentguard/internal/verification/gateway"
	verificationmetrics "rentguard/internal/verification/metrics"
	"rentguard/internal/verification/providers"
	"rentguard/internal/verification/providers/availability"
	"rentguard/internal/verification/providers/escrow"
	"rentguard/internal/verification/providers/identity"
	"rentguard/internal/verification/providers/local"
	"rentguard/internal/verification/providers/node"
	"rentguard/internal/verification/providers/resolution"
	"rentguard/pkg/platform/audit/kafka"
	"rentguard/pkg/platform/audit/publisher"
	auditmemory "rentguard/pkg/platform/audit/store/memory"
	"rentguard/pkg/platform/circuit"
)

const (
	auditTopicPartitions  = 3
	auditTopicReplication = 1
	auditBuffer           = 1024
	nodeAudience          = "rentguard-verification-node"
)

// infra holds the long-lived dependencies the service is built from.
type infra struct {
	store          service.BookingStore
	catalog        catalog.Catalog
	keyring        *proof.Keyring
	ledger         *ledger.Ledger
	gateways       *gateway.Set
	publisher      *publisher.Publisher
	bookingMetrics *bookingmetrics.Metrics
	checks         []httptransport.Check
	closers        []func() error
}

func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		_ = in.closers[i]()
	}
}

func buildInfra(ctx context.Context, cfg config.Config, m *metrics.Metrics, log *slog.Logger) (*infra, error) {
	in := &infra{bookingMetrics: bookingmetrics.New(m.Registry)}
	ok := false
	defer func() {
		if !ok {
			in.Close()
		}
	}()

	if err := in.openStore(ctx, cfg.Store, log); err != nil {
		return nil, err
	}
	if err := in.loadCatalog(cfg.Booking); err != nil {
		return nil, err
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		in.closers = append(in.closers, redisClient.Close)
		in.checks = append(in.checks, httptransport.Check{Name: "redis", Probe: redisClient.Health})
	}
	in.buildLedger(cfg.Ledger, redisClient, log)

	fallback, err := in.buildKeyring(cfg)
	if err != nil {
		return nil, err
	}
	provs, err := in.buildProviders(cfg)
	if err != nil {
		return nil, err
	}
	if err := in.buildGateways(cfg.Providers, provs, fallback, verificationmetrics.New(m.Registry), log); err != nil {
		return nil, err
	}
	if err := in.buildPublisher(ctx, cfg.Kafka, log); err != nil {
		return nil, err
	}
	ok = true
	return in, nil
}

func (in *infra) openStore(ctx context.Context, cfg config.Store, log *slog.Logger) error {
	switch cfg.Driver {
	case "leveldb":
		db, err := store.OpenLevelDB(cfg.Path)
		if err != nil {
			return fmt.Errorf("open leveldb store: %w", err)
		}
		in.store = db
		in.closers = append(in.closers, db.Close)
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		in.closers = append(in.closers, db.Close)
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate booking schema: %w", err)
		}
		in.store = pg
		in.checks = append(in.checks, httptransport.Check{Name: "postgres", Probe: db.PingContext})
	default:
		in.store = store.NewInMemory()
	}
	log.Info("booking store ready", "driver", cfg.Driver)
	return nil
}

func (in *infra) loadCatalog(cfg config.Booking) error {
	if cfg.CatalogFile == "" {
		in.catalog = catalog.NewInMemory()
		return nil
	}
	c, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return err
	}
	in.catalog = c
	return nil
}

func (in *infra) buildLedger(cfg config.Ledger, redisClient *redis.Client, log *slog.Logger) {
	var journal ledger.Journal = ledger.NewMemoryJournal()
	if redisClient != nil {
		journal = ledger.NewRedisJournal(redisClient.Client, cfg.JournalTTL.Duration)
	}

	var backend ledger.Backend
	if cfg.RPCURL != "" {
		var opts []ledger.RPCOption
		if cfg.RPCToken != "" {
			opts = append(opts, ledger.WithRPCAuthToken(cfg.RPCToken))
		}
		rpc := ledger.NewRPCBackend(cfg.RPCURL, cfg.Timeout.Duration, opts...)
		in.checks = append(in.checks, httptransport.Check{Name: "ledger", Probe: rpc.Ping})
		backend = rpc
	} else {
		log.Warn("no ledger rpc configured; deposits move in memory only")
		backend = ledger.NewMemoryBackend()
	}
	in.ledger = ledger.New(backend, journal, ledger.WithLogger(log))
}

// buildKeyring trusts the configured issuers plus the fallback signer and
// returns the fallback signer for degraded proofs.
func (in *infra) buildKeyring(cfg config.Config) (proof.Signer, error) {
	in.keyring = proof.NewKeyring()
	for _, addr := range cfg.Signing.TrustedIssuers {
		if err := in.keyring.TrustAddress(addr); err != nil {
			return nil, fmt.Errorf("trusted issuer %q: %w", addr, err)
		}
	}
	fallback, err := proof.DeriveEd25519Signer([]byte(cfg.Signing.FallbackSeed), "fallback")
	if err != nil {
		return nil, err
	}
	if err := in.keyring.TrustSigner(fallback); err != nil {
		return nil, err
	}
	return fallback, nil
}

func (in *infra) buildProviders(cfg config.Config) ([]providers.Provider, error) {
	if cfg.Providers.Mode == "remote" {
		client, err := node.New(node.Config{
			BaseURL:       cfg.Providers.NodeURL,
			JWTSecret:     cfg.Providers.NodeJWTSecret,
			Audience:      nodeAudience,
			RatePerSecond: cfg.Providers.RateLimit,
			Burst:         cfg.Providers.RateBurst,
		})
		if err != nil {
			return nil, err
		}
		return []providers.Provider{
			identity.New("identity-node", client),
			availability.New("availability-node", client),
			escrow.New("escrow-node", client),
			resolution.New("resolution-node", client),
		}, nil
	}

	var (
		signer *proof.Secp256k1Signer
		err    error
	)
	if cfg.Signing.KeyHex != "" {
		signer, err = proof.Secp256k1SignerFromHex(cfg.Signing.KeyHex)
	} else {
		signer, err = proof.GenerateSecp256k1Signer()
	}
	if err != nil {
		return nil, fmt.Errorf("local kernel signing key: %w", err)
	}
	if err := in.keyring.TrustSigner(signer); err != nil {
		return nil, err
	}
	return []providers.Provider{
		local.NewIdentity("identity-local", signer, nil),
		local.NewAvailability("availability-local", signer, nil),
		local.NewEscrow("escrow-local", signer, 0),
		local.NewResolution("resolution-local", signer, nil),
	}, nil
}

// buildGateways puts one gateway in front of each kind's provider. With
// several providers of a kind, the lowest id wins.
func (in *infra) buildGateways(cfg config.Providers, provs []providers.Provider, fallback proof.Signer, m *verificationmetrics.Metrics, log *slog.Logger) error {
	registry := providers.NewProviderRegistry()
	for _, p := range provs {
		if err := registry.Register(p); err != nil {
			return err
		}
	}

	gws := make([]*gateway.Gateway, 0, len(proof.Kinds))
	for _, kind := range proof.Kinds {
		candidates := registry.ForKind(kind)
		if len(candidates) == 0 {
			return fmt.Errorf("no %s provider configured", kind)
		}
		opts := []gateway.Option{
			gateway.WithTimeout(cfg.Timeout.Duration),
			gateway.WithRetryBackoff(cfg.RetryBackoff.Duration),
			gateway.WithMetrics(m),
			gateway.WithLogger(log),
		}
		if cfg.BreakerFailures > 0 {
			opts = append(opts, gateway.WithBreaker(circuit.New(string(kind),
				circuit.WithFailureThreshold(cfg.BreakerFailures),
				circuit.WithCooldown(cfg.BreakerCooldown.Duration),
			)))
		}
		gws = append(gws, gateway.New(candidates[0], fallback, opts...))
	}
	set, err := gateway.NewSet(gws...)
	if err != nil {
		return err
	}
	in.gateways = set
	return nil
}

func (in *infra) buildPublisher(ctx context.Context, cfg config.Kafka, log *slog.Logger) error {
	opts := []publisher.Option{publisher.WithLogger(log)}
	if len(cfg.Brokers) > 0 {
		client, err := kafka.NewClient(cfg.Brokers, cfg.Topic)
		if err != nil {
			return err
		}
		in.closers = append(in.closers, func() error { client.Close(); return nil })
		if err := kafka.EnsureTopic(ctx, client, cfg.Topic, auditTopicPartitions, auditTopicReplication); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
		sink := kafka.NewSink(client, cfg.Topic)
		in.checks = append(in.checks, httptransport.Check{Name: "kafka", Probe: sink.Ping})
		opts = append(opts, publisher.WithSinks(sink), publisher.WithAsyncBuffer(auditBuffer))
	}
	in.publisher = publisher.NewPublisher(auditmemory.NewInMemoryStore(), opts...)
	in.closers = append(in.closers, func() error { in.publisher.Close(); return nil })
	return nil
}

func bookingPolicy(cfg config.Config, log *slog.Logger) service.Policy {
	policy := service.DefaultPolicy()
	policy.DisputeWindow = cfg.Booking.DisputeWindow.Duration
	policy.PendingTimeout = cfg.Booking.PendingTimeout.Duration
	for _, raw := range cfg.Providers.DegradedAllowed {
		kind, err := proof.ParseKind(raw)
		if err != nil {
			log.Warn("ignoring unknown degraded kind", "kind", raw)
			continue
		}
		policy.Degraded[kind] = true
	}
	return policy
}
