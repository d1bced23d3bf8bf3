package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	cache "github.com/mrz1836/go-cache"

	"github.com/mrz1836/tokengov/internal/clock"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

const (
	redisScheme        = "redis://"
	defaultRedisPrefix = "tokengov:checkpoints"

	redisMaxActive   = 16
	redisMaxIdle     = 4
	redisIdleTimeout = 5 * time.Minute
)

// RedisStore keeps checkpoint documents as Redis strings. Each task has a
// sorted set index scored by write time so listing never scans the keyspace.
type RedisStore struct {
	client *cache.Client
	prefix string
	clock  clock.Clock
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix changes the namespace used for document and index keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisClock sets the clock used to score index entries.
func WithRedisClock(c clock.Clock) RedisOption {
	return func(s *RedisStore) {
		s.clock = c
	}
}

// NewRedisClient returns a pooled client for a redis:// URL. Nothing is
// dialed until the first command.
func NewRedisClient(ctx context.Context, rawURL string) (*cache.Client, error) {
	client, err := cache.Connect(ctx, rawURL, redisMaxActive, redisMaxIdle, 0, redisIdleTimeout, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis pool: %w", err)
	}
	return client, nil
}

// NewRedisStore returns a store backed by client. The store owns the client
// and closes it in Close.
func NewRedisStore(client *cache.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultRedisPrefix,
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks that the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := cache.Ping(ctx, s.client); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	s.client.Close()
	return nil
}

// URI implements Store.
func (s *RedisStore) URI(_, name string) string {
	return redisScheme + s.docKey(name)
}

// Write implements Store. The document and its index entry are written in
// one MULTI/EXEC transaction.
func (s *RedisStore) Write(ctx context.Context, uri string, data []byte) (int64, error) {
	key, name, err := s.keyFor(uri)
	if err != nil {
		return 0, err
	}
	taskID, err := taskFromName(name)
	if err != nil {
		return 0, err
	}

	conn, err := s.client.GetConnectionWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer s.client.CloseConnection(conn)

	score := s.clock.Now().UnixNano()
	if err := conn.Send(cache.MultiCommand); err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := cache.SetRaw(conn, key, data); err != nil {
		return 0, fmt.Errorf("failed to queue SET: %w", err)
	}
	if err := cache.SortedSetAddRaw(conn, s.indexKey(taskID), float64(score), name); err != nil {
		return 0, fmt.Errorf("failed to queue ZADD: %w", err)
	}
	if _, err := conn.Do(cache.ExecuteCommand); err != nil {
		return 0, fmt.Errorf("failed to write checkpoint %s: %w", name, err)
	}
	return int64(len(data)), nil
}

// Read implements Store.
func (s *RedisStore) Read(ctx context.Context, uri string) ([]byte, error) {
	key, _, err := s.keyFor(uri)
	if err != nil {
		return nil, err
	}

	data, err := cache.GetBytes(ctx, s.client, key)
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, tgerrors.Wrapf(tgerrors.ErrCheckpointNotFound, "%s", uri)
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return data, nil
}

// List implements Store. Index members whose document has expired or been
// deleted are dropped from the result.
func (s *RedisStore) List(ctx context.Context, taskID string) ([]Entry, error) {
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}

	conn, err := s.client.GetConnectionWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer s.client.CloseConnection(conn)

	names, err := cache.SortedSetRangeRaw(conn, s.indexKey(taskID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		size, err := redis.Int64(conn.Do("STRLEN", s.docKey(name)))
		if err != nil {
			return nil, fmt.Errorf("failed to size checkpoint %s: %w", name, err)
		}
		if size == 0 {
			continue
		}
		entries = append(entries, Entry{URI: s.URI(taskID, name), SizeBytes: size})
	}
	return entries, nil
}

func (s *RedisStore) docKey(name string) string {
	return s.prefix + ":doc:" + name
}

func (s *RedisStore) indexKey(taskID string) string {
	return s.prefix + ":index:" + taskID
}

// keyFor validates uri and returns the document key and name it addresses.
func (s *RedisStore) keyFor(uri string) (key, name string, err error) {
	key, ok := strings.CutPrefix(uri, redisScheme)
	if !ok {
		return "", "", tgerrors.Wrapf(tgerrors.ErrUnsupportedURI, "%q is not a redis:// uri", uri)
	}
	name, ok = strings.CutPrefix(key, s.prefix+":doc:")
	if !ok || name == "" {
		return "", "", tgerrors.Wrapf(tgerrors.ErrUnsupportedURI, "%q is outside %s", uri, s.prefix)
	}
	return key, name, nil
}

// taskFromName recovers the task id from "<task>_<unixnano>_<rand>".
func taskFromName(name string) (string, error) {
	last := strings.LastIndex(name, "_")
	if last <= 0 {
		return "", tgerrors.Wrapf(tgerrors.ErrUnsupportedURI, "malformed checkpoint name %q", name)
	}
	mid := strings.LastIndex(name[:last], "_")
	if mid <= 0 {
		return "", tgerrors.Wrapf(tgerrors.ErrUnsupportedURI, "malformed checkpoint name %q", name)
	}
	taskID := name[:mid]
	if !belongsTo(name, taskID) {
		return "", tgerrors.Wrapf(tgerrors.ErrUnsupportedURI, "malformed checkpoint name %q", name)
	}
	return taskID, nil
}
