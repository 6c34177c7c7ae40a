package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"audittrail/internal/platform/config"
	redisclient "audittrail/internal/platform/redis"
	httptransport "audittrail/internal/transport/http"
	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/scope"
	"audittrail/pkg/platform/audit/store/file"
	"audittrail/pkg/platform/audit/store/memory"
	"audittrail/pkg/platform/audit/store/multi"
	"audittrail/pkg/platform/audit/store/postgres"
	redisstore "audittrail/pkg/platform/audit/store/redis"
)

// sinks is everything the publisher writes to and the router reads from.
type sinks struct {
	store   audit.Store
	reader  audit.Reader
	outbox  *postgres.Store
	checks  map[string]httptransport.HealthCheck
	closers []func() error
}

func (s *sinks) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// openSinks connects every configured sink, recording each connection as a segment
// of the boot trail. With nothing configured it falls back to an in-memory store.
func openSinks(ctx context.Context, cfg config.Config, log *slog.Logger, boot *scope.Scope) (*sinks, error) {
	s := &sinks{checks: map[string]httptransport.HealthCheck{}}
	var stores []audit.Store

	if cfg.Postgres.DSN != "" {
		err := scope.Segment(boot, "postgres", func(sc *scope.Scope) error {
			db, err := sql.Open("postgres", cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			s.closers = append(s.closers, db.Close)
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("ping postgres: %w", err)
			}
			s.outbox = postgres.New(db)
			if err := s.outbox.EnsureSchema(ctx); err != nil {
				return err
			}
			sc.LogEvent("outbox schema ready")
			s.checks["postgres"] = db.PingContext
			return nil
		})
		if err != nil {
			s.close()
			return nil, err
		}
		stores = append(stores, s.outbox)
		s.reader = s.outbox
	}

	if cfg.Redis.URL != "" {
		err := scope.Segment(boot, "redis", func(sc *scope.Scope) error {
			client, err := redisclient.New(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			s.closers = append(s.closers, client.Close)
			s.checks["redis"] = client.Health
			rs := redisstore.New(client.Client,
				redisstore.WithStream(cfg.Redis.Stream),
				redisstore.WithMaxLen(cfg.Redis.MaxLen),
			)
			stores = append(stores, rs)
			if s.reader == nil {
				s.reader = rs
			}
			sc.Logf("stream %s", cfg.Redis.Stream)
			return nil
		})
		if err != nil {
			s.close()
			return nil, err
		}
	}

	if cfg.File.Path != "" {
		fs := file.OpenFile(cfg.File.Path, file.Rotation{
			MaxSizeMB:  cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAgeDays: cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
		s.closers = append(s.closers, fs.Close)
		stores = append(stores, fs)
		boot.Logf("file sink %s", cfg.File.Path)
	}

	switch len(stores) {
	case 0:
		mem := memory.NewInMemoryStore()
		s.store, s.reader = mem, mem
		log.Warn("no audit sink configured, keeping trails in memory")
		boot.LogEvent("memory sink")
	case 1:
		s.store = stores[0]
	default:
		s.store = multi.New(stores...)
	}
	return s, nil
}
