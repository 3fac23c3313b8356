// Package kv はリモートKVストア（Redis）への薄いファサードを提供する。
//
// すべての操作は (値, error) を返し、panicしない。失敗は model.StoreError として
// 種別（Configuration / Transport / Conflict）付きで返される。
// Redisへの接続は最初の操作時に遅延生成され、Clientの生存期間中キャッシュされる。
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hitoshi/groupdash/internal/metrics"
	"github.com/hitoshi/groupdash/internal/model"
	"github.com/redis/go-redis/v9"
)

// scanBatchSize はSCANの1回あたりのCOUNTヒント。
const scanBatchSize = 100

// Client はRedisをバックエンドとするKVファサード。
// ゼロ値は使用できない。New または NewWithRedis で生成する。
type Client struct {
	url      string
	recorder metrics.Recorder

	mu  sync.Mutex
	rdb *redis.Client
}

// New はClientを生成する。接続はまだ行わない。
// redisURLが空の場合も生成は成功し、最初の操作でConfigurationエラーを返す。
func New(redisURL string, recorder metrics.Recorder) *Client {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Client{url: redisURL, recorder: recorder}
}

// NewWithRedis は既存のRedisクライアントからClientを生成する。
func NewWithRedis(rdb *redis.Client, recorder metrics.Recorder) *Client {
	c := New("", recorder)
	c.rdb = rdb
	return c
}

// conn はRedisクライアントを返す。初回呼び出し時にURLを解析して生成する。
func (c *Client) conn() (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb != nil {
		return c.rdb, nil
	}
	if c.url == "" {
		return nil, model.NewConfigurationError("REDIS_URL", nil)
	}

	opts, err := redis.ParseURL(c.url)
	if err != nil {
		return nil, model.NewConfigurationError("REDIS_URL", err)
	}
	c.rdb = redis.NewClient(opts)
	return c.rdb, nil
}

// observe は操作結果をメトリクスに記録する。
func (c *Client) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = model.KindOf(err).String()
	}
	c.recorder.RecordKVOperation(op, result, time.Since(start))
}

// fail はRedis由来のエラーをTransportエラーに変換してログに残す。
// 既にStoreErrorの場合はそのまま返す。
func (c *Client) fail(op, key string, err error) error {
	var se *model.StoreError
	if errors.As(err, &se) {
		return err
	}
	slog.Error("kv operation failed",
		slog.String("op", op),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
	return model.NewTransportError(op, key, err)
}

// Get はkeyの値をdestにデコードする。
// キーが存在しない場合は found=false, err=nil を返す。
func (c *Client) Get(ctx context.Context, key string, dest any) (found bool, err error) {
	start := time.Now()
	defer func() { c.observe("get", start, err) }()

	rdb, err := c.conn()
	if err != nil {
		return false, err
	}

	data, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, c.fail("get", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, c.fail("get", key, fmt.Errorf("decode value: %w", err))
	}
	return true, nil
}

// Set はkeyにvalueをJSONで書き込む（全体上書き）。
func (c *Client) Set(ctx context.Context, key string, value any) (err error) {
	start := time.Now()
	defer func() { c.observe("set", start, err) }()

	rdb, err := c.conn()
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return c.fail("set", key, fmt.Errorf("encode value: %w", err))
	}
	if err := rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return c.fail("set", key, err)
	}
	return nil
}

// SetNX はkeyが存在しない場合のみvalueを書き込む。書き込んだ場合にtrueを返す。
func (c *Client) SetNX(ctx context.Context, key string, value any) (stored bool, err error) {
	start := time.Now()
	defer func() { c.observe("setnx", start, err) }()

	rdb, err := c.conn()
	if err != nil {
		return false, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return false, c.fail("setnx", key, fmt.Errorf("encode value: %w", err))
	}
	stored, err = rdb.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return false, c.fail("setnx", key, err)
	}
	return stored, nil
}

// Delete は指定キーを削除し、削除された件数を返す。
func (c *Client) Delete(ctx context.Context, keys ...string) (n int64, err error) {
	start := time.Now()
	defer func() { c.observe("del", start, err) }()

	if len(keys) == 0 {
		return 0, nil
	}
	rdb, err := c.conn()
	if err != nil {
		return 0, err
	}

	n, err = rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, c.fail("del", joinKeys(keys), err)
	}
	return n, nil
}

// Exists は指定キーのうち存在する件数を返す。
func (c *Client) Exists(ctx context.Context, keys ...string) (n int64, err error) {
	start := time.Now()
	defer func() { c.observe("exists", start, err) }()

	if len(keys) == 0 {
		return 0, nil
	}
	rdb, err := c.conn()
	if err != nil {
		return 0, err
	}

	n, err = rdb.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, c.fail("exists", joinKeys(keys), err)
	}
	return n, nil
}

// AddToSet はセットにメンバーを追加し、新規に追加された件数を返す。
func (c *Client) AddToSet(ctx context.Context, key string, members ...string) (n int64, err error) {
	start := time.Now()
	defer func() { c.observe("sadd", start, err) }()

	if len(members) == 0 {
		return 0, nil
	}
	rdb, err := c.conn()
	if err != nil {
		return 0, err
	}

	n, err = rdb.SAdd(ctx, key, toArgs(members)...).Result()
	if err != nil {
		return 0, c.fail("sadd", key, err)
	}
	return n, nil
}

// RemoveFromSet はセットからメンバーを削除し、削除された件数を返す。
func (c *Client) RemoveFromSet(ctx context.Context, key string, members ...string) (n int64, err error) {
	start := time.Now()
	defer func() { c.observe("srem", start, err) }()

	if len(members) == 0 {
		return 0, nil
	}
	rdb, err := c.conn()
	if err != nil {
		return 0, err
	}

	n, err = rdb.SRem(ctx, key, toArgs(members)...).Result()
	if err != nil {
		return 0, c.fail("srem", key, err)
	}
	return n, nil
}

// SetMembers はセットの全メンバーを昇順で返す。セットが存在しない場合は空スライス。
func (c *Client) SetMembers(ctx context.Context, key string) (members []string, err error) {
	start := time.Now()
	defer func() { c.observe("smembers", start, err) }()

	rdb, err := c.conn()
	if err != nil {
		return nil, err
	}

	members, err = rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, c.fail("smembers", key, err)
	}
	sort.Strings(members)
	return members, nil
}

// Keys はpatternに一致するキーをSCANで列挙する。
// KEYSコマンドと異なりサーバーをブロックしない。
func (c *Client) Keys(ctx context.Context, pattern string) (keys []string, err error) {
	start := time.Now()
	defer func() { c.observe("scan", start, err) }()

	rdb, err := c.conn()
	if err != nil {
		return nil, err
	}

	iter := rdb.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, c.fail("scan", pattern, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Merge はkeyに格納されたJSONオブジェクトにpartialをディープマージする。
// ネストしたオブジェクトは再帰的にマージし、nullのフィールドは削除する。
// キーが存在しない場合はpartialがそのままドキュメントになる。
func (c *Client) Merge(ctx context.Context, key string, partial any) error {
	patch, err := toObject(partial)
	if err != nil {
		return c.fail("merge", key, fmt.Errorf("encode patch: %w", err))
	}

	return c.Atomic(ctx, key, func(tx *Tx) error {
		var current map[string]any
		found, err := tx.Get(ctx, key, &current)
		if err != nil {
			return err
		}
		if !found || current == nil {
			current = map[string]any{}
		}
		return tx.Commit(ctx, SetOp(key, deepMerge(current, patch)))
	})
}

// Atomic はkeyをWATCHした状態でfnを実行する楽観的トランザクション。
// fnはTx経由で読み取りを行い、Tx.Commitで書き込みをMULTI/EXECにまとめる。
// 読み取りから書き込みまでの間にkeyが変更された場合はConflictエラーを返し、何も書き込まない。
func (c *Client) Atomic(ctx context.Context, key string, fn func(tx *Tx) error) (err error) {
	start := time.Now()
	defer func() { c.observe("atomic", start, err) }()

	rdb, err := c.conn()
	if err != nil {
		return err
	}

	err = rdb.Watch(ctx, func(rtx *redis.Tx) error {
		return fn(&Tx{client: c, rtx: rtx})
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		slog.Warn("kv optimistic transaction aborted",
			slog.String("key", key),
		)
		return model.NewConflictError(key, fmt.Sprintf("Concurrent modification of '%s' detected", key))
	}
	if err != nil {
		return c.fail("atomic", key, err)
	}
	return nil
}

// Exec はopsをWATCHなしのMULTI/EXECでまとめて実行する。
func (c *Client) Exec(ctx context.Context, ops ...Op) (err error) {
	start := time.Now()
	defer func() { c.observe("exec", start, err) }()

	if len(ops) == 0 {
		return nil
	}
	rdb, err := c.conn()
	if err != nil {
		return err
	}

	_, err = rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		return applyOps(ctx, p, ops)
	})
	if err != nil {
		return c.fail("exec", opKeys(ops), err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return c.fail("ping", "", err)
	}
	return nil
}

// Close は接続を閉じる。接続が未生成の場合は何もしない。
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb == nil {
		return nil
	}
	err := c.rdb.Close()
	c.rdb = nil
	return err
}

func toArgs(members []string) []any {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}

func joinKeys(keys []string) string {
	if len(keys) == 1 {
		return keys[0]
	}
	return fmt.Sprintf("%v", keys)
}
