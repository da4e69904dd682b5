// Package data owns the engine's external connections: the Redis client
// backing the scraper message bus, and the Postgres pool for
// the historical-data store the core never queries directly. Trimmed to
// the two connections this engine actually needs.
package data

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Conn holds the engine's external connections.
type Conn struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

type dbConnResult struct {
	conn *pgxpool.Pool
	err  error
}

type redisConnResult struct {
	client *redis.Client
	err    error
}

// InitConn dials Postgres and Redis with a bounded retry loop, each dial
// run on its own goroutine and joined over a result channel. Postgres is
// optional: it is dialed only when requireDB is true, and otherwise the
// pool is left nil, since the core engine never queries it.
func InitConn(ctx context.Context, inContainer bool, requireDB bool) (*Conn, func(), error) {
	redisHost := getEnv("REDIS_HOST", "cache")
	redisPort := getEnv("REDIS_PORT", "6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")

	var cacheURL string
	if inContainer {
		cacheURL = fmt.Sprintf("%s:%s", redisHost, redisPort)
	} else {
		cacheURL = fmt.Sprintf("localhost:%s", redisPort)
	}

	redisCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	redisResult := make(chan redisConnResult, 1)
	go func() {
		defer close(redisResult)
		var lastErr error
		for {
			select {
			case <-redisCtx.Done():
				redisResult <- redisConnResult{err: lastErr}
				return
			default:
				opts := &redis.Options{
					Addr:            cacheURL,
					PoolSize:        20,
					MinIdleConns:    5,
					PoolTimeout:     30 * time.Second,
					ReadTimeout:     10 * time.Second,
					WriteTimeout:    10 * time.Second,
					MaxRetries:      5,
					MinRetryBackoff: 1 * time.Second,
					MaxRetryBackoff: 10 * time.Second,
					DialTimeout:     5 * time.Second,
				}
				if redisPassword != "" {
					opts.Password = redisPassword
				}
				client := redis.NewClient(opts)
				if err := client.Ping(redisCtx).Err(); err != nil {
					lastErr = err
					_ = client.Close()
					time.Sleep(time.Second)
					continue
				}
				redisResult <- redisConnResult{client: client}
				return
			}
		}
	}()

	redisRes := <-redisResult
	if redisRes.client == nil {
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cacheURL, redisRes.err)
	}

	conn := &Conn{Cache: redisRes.client}

	if requireDB {
		dbConn, err := dialPostgres(ctx, inContainer)
		if err != nil {
			_ = redisRes.client.Close()
			return nil, nil, err
		}
		conn.DB = dbConn
	}

	cleanup := func() {
		if conn.DB != nil {
			conn.DB.Close()
		}
		if conn.Cache != nil {
			_ = conn.Cache.Close()
		}
	}
	return conn, cleanup, nil
}

func dialPostgres(ctx context.Context, inContainer bool) (*pgxpool.Pool, error) {
	dbHost := getEnv("DB_HOST", "db")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "postgres")
	dbPassword := getEnv("DB_PASSWORD", "")
	encodedPassword := url.QueryEscape(dbPassword)

	var dbURL string
	if inContainer {
		dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s", dbUser, encodedPassword, dbHost, dbPort)
	} else {
		dbURL = fmt.Sprintf("postgres://%s:%s@localhost:%s", dbUser, encodedPassword, dbPort)
	}

	dbCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	dbResult := make(chan dbConnResult, 1)
	go func() {
		defer close(dbResult)
		var lastErr error
		for {
			select {
			case <-dbCtx.Done():
				dbResult <- dbConnResult{err: lastErr}
				return
			default:
				poolConfig, parseErr := pgxpool.ParseConfig(dbURL)
				if parseErr != nil {
					lastErr = parseErr
					time.Sleep(time.Second)
					continue
				}
				poolConfig.MaxConns = 10
				poolConfig.MinConns = 2
				poolConfig.MaxConnLifetime = 60 * time.Minute
				poolConfig.MaxConnIdleTime = 5 * time.Minute
				poolConfig.HealthCheckPeriod = 30 * time.Second
				poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

				pool, err := pgxpool.ConnectConfig(dbCtx, poolConfig)
				if err != nil {
					lastErr = err
					time.Sleep(time.Second)
					continue
				}
				dbResult <- dbConnResult{conn: pool}
				return
			}
		}
	}()

	res := <-dbResult
	if res.conn == nil {
		return nil, fmt.Errorf("failed to connect to database at %s: %w", dbURL, res.err)
	}
	return res.conn, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
