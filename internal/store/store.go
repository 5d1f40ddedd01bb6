package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spms-io/spms/internal/metrics"
	"github.com/spms-io/spms/pkg/model"
)

// Capacity limits of the storage contract. These bound the whole system:
// a Save that would exceed either limit is refused without writing.
const (
	MaxPortfolios = 10
	MaxHoldings   = 50
)

const (
	namesKey  = "portfolio:names"
	keyPrefix = "portfolio:rec:"
)

// Store defines the contract for persisting portfolio records.
// Each record is keyed by portfolio name; absence of a record reads as an
// empty holdings list. Calls are atomic per key only.
type Store interface {
	Load(ctx context.Context, name string) ([]model.Holding, error)
	Save(ctx context.Context, name string, holdings []model.Holding) (bool, error)
	ListNames(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore is a Redis-first store with an optional Postgres mirror.
// Redis holds the authoritative records; when a Postgres pool is
// configured, every record is additionally mirrored into a snapshot table
// for durability. Mirror failures never fail the primary write.
type HybridStore struct {
	redis  *redis.Client
	pg     *pgxpool.Pool
	logger *zap.Logger
}

// PGPoolConfig tunes the optional Postgres mirror pool.
type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first, optionally Postgres-mirrored store.
func NewHybrid(redisAddr string, redisDB int, redisPass, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		DB:       redisDB,
		Password: redisPass,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, pg: pgPool, logger: logger}, nil
}

func recordKey(name string) string {
	return keyPrefix + name
}

// Load returns the holdings persisted under name, or an empty list when no
// record exists.
func (s *HybridStore) Load(ctx context.Context, name string) ([]model.Holding, error) {
	data, err := s.redis.Get(ctx, recordKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []model.Holding{}, nil
	} else if err != nil {
		metrics.IncStoreOp("load", "error")
		return nil, fmt.Errorf("load %q: %w", name, err)
	}

	var holdings []model.Holding
	if err := json.Unmarshal(data, &holdings); err != nil {
		metrics.IncStoreOp("load", "error")
		return nil, fmt.Errorf("decode record %q: %w", name, err)
	}
	metrics.IncStoreOp("load", "ok")
	return holdings, nil
}

// Save writes the holdings under name. It refuses the write (false, nil)
// when name is new and the portfolio limit is already reached, or when the
// holdings list has reached the per-portfolio limit.
func (s *HybridStore) Save(ctx context.Context, name string, holdings []model.Holding) (bool, error) {
	if len(holdings) >= MaxHoldings {
		s.logger.Warn("store.save_rejected",
			zap.String("portfolio", name),
			zap.Int("holdings", len(holdings)),
			zap.String("reason", "holdings_limit"))
		metrics.IncStoreOp("save", "rejected")
		return false, nil
	}

	exists, err := s.redis.SIsMember(ctx, namesKey, name).Result()
	if err != nil {
		metrics.IncStoreOp("save", "error")
		return false, fmt.Errorf("save %q: %w", name, err)
	}
	if !exists {
		count, err := s.redis.SCard(ctx, namesKey).Result()
		if err != nil {
			metrics.IncStoreOp("save", "error")
			return false, fmt.Errorf("save %q: %w", name, err)
		}
		if count >= MaxPortfolios {
			s.logger.Warn("store.save_rejected",
				zap.String("portfolio", name),
				zap.Int64("portfolios", count),
				zap.String("reason", "portfolio_limit"))
			metrics.IncStoreOp("save", "rejected")
			return false, nil
		}
	}

	data, err := json.Marshal(holdings)
	if err != nil {
		metrics.IncStoreOp("save", "error")
		return false, fmt.Errorf("encode record %q: %w", name, err)
	}

	pipe := s.redis.TxPipeline()
	pipe.SAdd(ctx, namesKey, name)
	pipe.Set(ctx, recordKey(name), data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.IncStoreOp("save", "error")
		return false, fmt.Errorf("save %q: %w", name, err)
	}

	s.mirrorSave(ctx, name, data)
	metrics.IncStoreOp("save", "ok")
	return true, nil
}

// ListNames returns all persisted portfolio names, sorted for a stable
// initial load order.
func (s *HybridStore) ListNames(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, namesKey).Result()
	if err != nil {
		metrics.IncStoreOp("list", "error")
		return nil, fmt.Errorf("list names: %w", err)
	}
	sort.Strings(names)
	metrics.IncStoreOp("list", "ok")
	return names, nil
}

// Delete removes the record for name. Deleting an absent record is a no-op.
func (s *HybridStore) Delete(ctx context.Context, name string) error {
	pipe := s.redis.TxPipeline()
	pipe.SRem(ctx, namesKey, name)
	pipe.Del(ctx, recordKey(name))
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.IncStoreOp("delete", "error")
		return fmt.Errorf("delete %q: %w", name, err)
	}

	s.mirrorDelete(ctx, name)
	metrics.IncStoreOp("delete", "ok")
	return nil
}

// mirrorSave upserts the record snapshot into Postgres when configured.
func (s *HybridStore) mirrorSave(ctx context.Context, name string, record []byte) {
	if s.pg == nil {
		return
	}
	_, err := s.pg.Exec(ctx, `
		INSERT INTO spms.portfolio_snapshot (name, holdings, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name)
		DO UPDATE SET
			holdings = EXCLUDED.holdings,
			updated_at = EXCLUDED.updated_at;
	`, name, record)
	if err != nil {
		s.logger.Error("store.pg.mirror_save_failed",
			zap.String("portfolio", name),
			zap.Error(err))
	}
}

func (s *HybridStore) mirrorDelete(ctx context.Context, name string) {
	if s.pg == nil {
		return
	}
	_, err := s.pg.Exec(ctx, `DELETE FROM spms.portfolio_snapshot WHERE name = $1;`, name)
	if err != nil {
		s.logger.Error("store.pg.mirror_delete_failed",
			zap.String("portfolio", name),
			zap.Error(err))
	}
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.pg != nil {
		if err := s.pg.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.pg != nil {
		s.pg.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
