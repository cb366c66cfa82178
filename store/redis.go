package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"pictionary/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	maxTxRetries  = 50
	deletedMarker = "deleted"
)

// writePartialScript writes one field only while the session still exists,
// so a late write can never resurrect a deleted session.
var writePartialScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
local v = redis.call('HINCRBY', KEYS[1], 'version', 1)
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
redis.call('PUBLISH', KEYS[2], tostring(v))
return 1
`)

// RedisStore keeps each session in a Redis hash and fans changes out over pub/sub,
// so any number of server processes can serve the same session.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	hooks  *hookRegistry
	logger *zap.Logger
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, cfg models.RedisConfig, logger *zap.Logger) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "pictionary"
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		ttl:    cfg.KeyTTL.Std(),
		hooks:  newHookRegistry(logger),
		logger: logger,
		now:    time.Now,
	}
}

func (r *RedisStore) sessionKey(id string) string { return r.prefix + ":session:" + id }
func (r *RedisStore) changesKey(id string) string { return r.sessionKey(id) + ":changes" }
func (r *RedisStore) indexKey() string            { return r.prefix + ":sessions" }

func hashValues(fields map[string]string) map[string]interface{} {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return values
}

func (r *RedisStore) CreateSession(ctx context.Context, s *models.Session) (string, error) {
	created, err := cloneSession(s)
	if err != nil {
		return "", err
	}
	created.Version = 1
	fields, err := encodeFields(created)
	if err != nil {
		return "", err
	}

	const attempts = 10
	for i := 0; i < attempts; i++ {
		id := s.ID
		if id == "" {
			if id, err = NewSessionCode(6); err != nil {
				return "", err
			}
		}
		key := r.sessionKey(id)
		taken := false
		err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				taken = true
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, hashValues(fields))
				if r.ttl > 0 {
					pipe.PExpire(ctx, key, r.ttl)
				}
				pipe.SAdd(ctx, r.indexKey(), id)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return "", err
		}
		if taken {
			if s.ID != "" {
				return "", fmt.Errorf("session %s already exists", id)
			}
			continue
		}
		return id, nil
	}
	return "", fmt.Errorf("could not allocate a session code after %d attempts", attempts)
}

func (r *RedisStore) ReadSession(ctx context.Context, id string) (*models.Session, error) {
	return r.read(ctx, r.rdb, id)
}

type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
}

func (r *RedisStore) read(ctx context.Context, c hashGetter, id string) (*models.Session, error) {
	fields, err := c.HGetAll(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeFields(id, fields)
}

func (r *RedisStore) SubscribeSession(ctx context.Context, id string, fn func(Change)) (func(), error) {
	n, err := r.rdb.Exists(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	ps := r.rdb.Subscribe(ctx, r.changesKey(id))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	var once sync.Once
	done := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			if err := ps.Close(); err != nil {
				r.logger.Debug("Closing session subscription", zap.Error(err))
			}
		})
	}

	go func() {
		defer unsubscribe()
		var delivered int64
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload == deletedMarker {
					fn(Change{SessionID: id, Deleted: true})
					return
				}
				if v, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil && v <= delivered {
					continue
				}
				// 通知にはバージョンしか載らないので最新の状態を読み直す
				s, err := r.ReadSession(ctx, id)
				if errors.Is(err, ErrNotFound) {
					fn(Change{SessionID: id, Deleted: true})
					return
				}
				if err != nil {
					r.logger.Error("Failed to read session after change", zap.String("sessionID", id), zap.Error(err))
					continue
				}
				if s.Version <= delivered {
					continue
				}
				delivered = s.Version
				fn(Change{SessionID: id, Session: s})
			}
		}
	}()
	return unsubscribe, nil
}

func (r *RedisStore) WritePartial(ctx context.Context, id string, field string, value interface{}) error {
	if !writableFields[field] {
		return fmt.Errorf("unknown session field %q", field)
	}
	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}
	keys := []string{r.sessionKey(id), r.changesKey(id)}
	res, err := writePartialScript.Run(ctx, r.rdb, keys, field, encoded, r.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) TransactionalUpdate(ctx context.Context, id string, fn UpdateFunc) (*models.Session, error) {
	key := r.sessionKey(id)
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		var result *models.Session
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			prev, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			if len(prev) == 0 {
				return ErrNotFound
			}
			s, err := decodeFields(id, prev)
			if err != nil {
				return err
			}
			version := s.Version

			err = fn(s)
			switch {
			case errors.Is(err, ErrNoChange):
				result, err = decodeFields(id, prev)
				return err
			case errors.Is(err, ErrDeleteSession):
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, r.indexKey(), id)
					pipe.Publish(ctx, r.changesKey(id), deletedMarker)
					return nil
				})
				return err
			case err != nil:
				return err
			}

			s.ID = id
			s.Version = version + 1
			s.UpdatedAt = r.now()
			next, err := encodeFields(s)
			if err != nil {
				return err
			}
			changed := changedFields(prev, next)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, changed)
				if r.ttl > 0 {
					pipe.PExpire(ctx, key, r.ttl)
				}
				pipe.Publish(ctx, r.changesKey(id), strconv.FormatInt(s.Version, 10))
				return nil
			})
			if err != nil {
				return err
			}
			result = s
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("Session transaction lost the race, retrying",
				zap.String("sessionID", id), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrConflict
}

func (r *RedisStore) RegisterDisconnectCleanup(ctx context.Context, id, playerID string, action func(context.Context)) (Registration, error) {
	n, err := r.rdb.Exists(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return r.hooks.register(id, playerID, action), nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.sessionKey(id))
		pipe.SRem(ctx, r.indexKey(), id)
		pipe.Publish(ctx, r.changesKey(id), deletedMarker)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessionIDs also drops index entries whose hash has expired.
func (r *RedisStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	members, err := r.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, id := range members {
		n, err := r.rdb.Exists(ctx, r.sessionKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if err := r.rdb.SRem(ctx, r.indexKey(), id).Err(); err != nil {
				r.logger.Debug("Failed to prune session index", zap.String("sessionID", id), zap.Error(err))
			}
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close runs the pending disconnect cleanups. The client belongs to the caller.
func (r *RedisStore) Close() error {
	r.hooks.closeAll()
	return nil
}
