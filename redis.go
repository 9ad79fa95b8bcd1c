package lockbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TagRedis is the backend family tag of the Redis backend
const TagRedis Tag = "redis"

type (
	// RedisConfig locates the Redis server and key namespace of the
	// journal
	RedisConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}

	// RedisState is the backend-specific handle of the Redis backend,
	// recoverable from a generic Handle via Downcast
	RedisState struct {
		journal *redisJournal
	}

	redisJournal struct {
		client          *redis.Client
		prefix          string
		appendJournal   *redis.Script
		loadJournal     *redis.Script
		writeCheckpoint *redis.Script
	}

	// JournalConflictError indicates another writer advanced the journal
	// behind this handle's back, which means two processes share the same
	// key prefix
	JournalConflictError struct {
		ExpectedSequence int64
		ActualSequence   int64
	}
)

const (
	RedisConnectTimeout = 5 * time.Second

	journalSuffix       = ":journal"
	checkpointValSuffix = ":checkpoint:val"
	checkpointSeqSuffix = ":checkpoint:seq"
)

// ErrUnexpectedLuaResult indicates a malformed reply from a journal script
var ErrUnexpectedLuaResult = errors.New("unexpected result from Lua script")

// DefaultRedisConfig returns a RedisConfig aimed at a local server
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   DefaultRedisEndpoint,
		Prefix: DefaultRedisPrefix,
		DB:     DefaultRedisDB,
	}
}

// OpenRedis creates a Handle whose journal is a Redis list, with checkpoint
// state stored alongside it. Appends and checkpoints run as Lua scripts so
// each is a single atomic round trip
func OpenRedis[S any](
	ctx context.Context, cfg Config, rcfg RedisConfig, model Model[S],
) (*Handle, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     rcfg.Addr,
		Password: rcfg.Password,
		DB:       rcfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, RedisConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	j := &redisJournal{
		client:          client,
		prefix:          rcfg.Prefix,
		appendJournal:   redis.NewScript(luaAppendJournal),
		loadJournal:     redis.NewScript(luaLoadJournal),
		writeCheckpoint: redis.NewScript(luaWriteCheckpoint),
	}

	eng, err := newEngine(ctx, cfg, model, j)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewHandle(TagRedis, eng, &RedisState{journal: j}), nil
}

// Client exposes the underlying Redis client
func (r *RedisState) Client() *redis.Client {
	return r.journal.client
}

// Prefix returns the key namespace the journal lives under
func (r *RedisState) Prefix() string {
	return r.journal.prefix
}

func (e *JournalConflictError) Error() string {
	return fmt.Sprintf(
		"journal conflict: expected sequence %d, but at %d",
		e.ExpectedSequence, e.ActualSequence,
	)
}

func (j *redisJournal) Append(ctx context.Context, evs []*Event) error {
	keys := []string{
		j.key(journalSuffix),
		j.key(checkpointSeqSuffix),
	}
	args := []any{evs[0].Sequence}
	for _, ev := range evs {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		args = append(args, string(data))
	}

	result, err := j.appendJournal.Run(ctx, j.client, keys, args...).Result()
	if err != nil {
		return err
	}

	res, ok := result.([]any)
	if !ok || len(res) < 2 {
		return ErrUnexpectedLuaResult
	}
	if res[0].(int64) == 0 {
		return &JournalConflictError{
			ExpectedSequence: evs[0].Sequence,
			ActualSequence:   res[1].(int64),
		}
	}
	return nil
}

func (j *redisJournal) Load(ctx context.Context) (*JournalState, error) {
	keys := []string{
		j.key(checkpointValSuffix),
		j.key(checkpointSeqSuffix),
		j.key(journalSuffix),
	}

	result, err := j.loadJournal.Run(ctx, j.client, keys).Result()
	if err != nil {
		return nil, err
	}

	res, ok := result.([]any)
	if !ok || len(res) < 2 {
		return nil, ErrUnexpectedLuaResult
	}

	js := &JournalState{
		NextSequence: res[1].(int64),
	}
	if data := res[0].(string); data != "" {
		js.Checkpoint = json.RawMessage(data)
	}

	for _, item := range res[2:] {
		ev := &Event{}
		if err := json.Unmarshal([]byte(item.(string)), ev); err != nil {
			return nil, err
		}
		js.Events = append(js.Events, ev)
	}
	return js, nil
}

func (j *redisJournal) WriteCheckpoint(
	ctx context.Context, data []byte, nextSeq int64,
) error {
	keys := []string{
		j.key(checkpointValSuffix),
		j.key(checkpointSeqSuffix),
		j.key(journalSuffix),
	}
	_, err := j.writeCheckpoint.Run(
		ctx, j.client, keys, string(data), nextSeq,
	).Result()
	return err
}

func (j *redisJournal) Close() error {
	return j.client.Close()
}

func (j *redisJournal) key(suffix string) string {
	return j.prefix + suffix
}
