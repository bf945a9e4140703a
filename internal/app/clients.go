package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/yungbote/tutorgraph-backend/internal/clients/redis"
	graphmirror "github.com/yungbote/tutorgraph-backend/internal/data/graph"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
	"github.com/yungbote/tutorgraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/tutorgraph-backend/internal/realtime/bus"
)

// Clients holds the optional external backends. Without REDIS_ADDR the
// locker is nil and events stay in process; without NEO4J_URI the mirror is
// a no-op.
type Clients struct {
	Redis  *goredis.Client
	Locker redisclient.Locker
	Bus    bus.Bus
	Neo4j  *neo4jdb.Client
	Mirror graphmirror.Mirror
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	rdb, err := redisclient.NewClient(cfg.RedisAddr, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis client: %w", err)
	}
	var locker redisclient.Locker
	var eventBus bus.Bus = bus.NewMemoryBus()
	if rdb != nil {
		locker = redisclient.NewLocker(rdb, cfg.RedisPrefix, log)
		b, err := bus.NewRedisBus(log, rdb, bus.DefaultChannel)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		eventBus = b
	}

	// Neo4j
	n4j, err := neo4jdb.New(neo4jdb.Config{
		URI:      cfg.Neo4j.URI,
		User:     cfg.Neo4j.User,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
		Timeout:  cfg.Neo4j.Timeout,
	}, log)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return Clients{}, fmt.Errorf("init neo4j client: %w", err)
	}

	return Clients{
		Redis:  rdb,
		Locker: locker,
		Bus:    eventBus,
		Neo4j:  n4j,
		Mirror: graphmirror.NewNeo4jMirror(n4j, log),
	}, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
