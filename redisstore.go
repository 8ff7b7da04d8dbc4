package mq

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig configures a redis-backed Store, for deployments that
// share outgoing QoS 1/2 state across multiple client processes (e.g. an
// active/standby pair taking over the same session).
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces this client's records within a shared Redis
	// instance. Defaults to "mqttc:store:" if empty.
	KeyPrefix string
	Options   *redis.Options
}

// redisStore is a Store backend using a single Redis hash keyed by
// packet id (as a decimal string field), so CreateStream can fetch the
// whole hash in one round trip.
type redisStore struct {
	client *redis.Client
	key    string
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore connects to Redis and returns a Store backed by it.
func NewRedisStore(config RedisStoreConfig) (Store, error) {
	var client *redis.Client
	if config.Options != nil {
		client = redis.NewClient(config.Options)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "mqttc:store:"
	}

	return &redisStore{client: client, key: prefix + "outgoing"}, nil
}

func (r *redisStore) Put(id uint16, rec *storeRecord) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrStoreClosed
	}
	r.mu.RUnlock()

	data, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.HSet(context.Background(), r.key, strconv.Itoa(int(id)), data).Err()
}

func (r *redisStore) Get(id uint16) (*storeRecord, bool, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, false, ErrStoreClosed
	}
	r.mu.RUnlock()

	data, err := r.client.HGet(context.Background(), r.key, strconv.Itoa(int(id))).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}

	var rec storeRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (r *redisStore) Del(id uint16) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrStoreClosed
	}
	r.mu.RUnlock()

	return r.client.HDel(context.Background(), r.key, strconv.Itoa(int(id))).Err()
}

func (r *redisStore) CreateStream() (RestartableStream, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	r.mu.RUnlock()

	fields, err := r.client.HGetAll(context.Background(), r.key).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]uint16, 0, len(fields))
	for field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		ids = append(ids, uint16(n))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return &redisStream{fields: fields, ids: ids}, nil
}

func (r *redisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

type redisStream struct {
	fields map[string]string
	ids    []uint16
	pos    int
}

func (s *redisStream) Next() (uint16, *storeRecord, bool, error) {
	if s.pos >= len(s.ids) {
		return 0, nil, false, nil
	}
	id := s.ids[s.pos]
	s.pos++

	var rec storeRecord
	if err := cbor.Unmarshal([]byte(s.fields[strconv.Itoa(int(id))]), &rec); err != nil {
		return 0, nil, false, err
	}
	return id, &rec, true, nil
}

func (s *redisStream) Close() error { return nil }
