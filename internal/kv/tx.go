package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Tx は Client.Atomic のコールバックに渡されるトランザクションハンドル。
// 読み取りはWATCH下で行われ、Commitでの書き込みはMULTI/EXECで一括適用される。
type Tx struct {
	client *Client
	rtx    *redis.Tx
}

// Get はトランザクション内でkeyの値をdestにデコードする。
func (t *Tx) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := t.rtx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, t.client.fail("get", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, t.client.fail("get", key, fmt.Errorf("decode value: %w", err))
	}
	return true, nil
}

// Exists はトランザクション内でkeyの存在を確認する。
func (t *Tx) Exists(ctx context.Context, key string) (bool, error) {
	n, err := t.rtx.Exists(ctx, key).Result()
	if err != nil {
		return false, t.client.fail("exists", key, err)
	}
	return n > 0, nil
}

// Commit はopsをMULTI/EXECで適用する。
// WATCH中のキーが変更されていた場合は何も適用されず、Atomic がConflictを返す。
func (t *Tx) Commit(ctx context.Context, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}
	_, err := t.rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		return applyOps(ctx, p, ops)
	})
	return err
}

// Op はMULTI/EXECにまとめる1つの書き込みコマンド。
type Op struct {
	name  string
	keys  []string
	apply func(ctx context.Context, p redis.Pipeliner) error
}

// SetOp はkeyにvalueをJSONで書き込むコマンド。
func SetOp(key string, value any) Op {
	return Op{
		name: "set",
		keys: []string{key},
		apply: func(ctx context.Context, p redis.Pipeliner) error {
			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("encode value for %s: %w", key, err)
			}
			p.Set(ctx, key, data, 0)
			return nil
		},
	}
}

// DelOp はkeysを削除するコマンド。
func DelOp(keys ...string) Op {
	return Op{
		name: "del",
		keys: keys,
		apply: func(ctx context.Context, p redis.Pipeliner) error {
			p.Del(ctx, keys...)
			return nil
		},
	}
}

// SAddOp はセットにメンバーを追加するコマンド。
func SAddOp(key string, members ...string) Op {
	return Op{
		name: "sadd",
		keys: []string{key},
		apply: func(ctx context.Context, p redis.Pipeliner) error {
			p.SAdd(ctx, key, toArgs(members)...)
			return nil
		},
	}
}

// SRemOp はセットからメンバーを削除するコマンド。
func SRemOp(key string, members ...string) Op {
	return Op{
		name: "srem",
		keys: []string{key},
		apply: func(ctx context.Context, p redis.Pipeliner) error {
			p.SRem(ctx, key, toArgs(members)...)
			return nil
		},
	}
}

func applyOps(ctx context.Context, p redis.Pipeliner, ops []Op) error {
	for _, op := range ops {
		if err := op.apply(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", op.name, err)
		}
	}
	return nil
}

func opKeys(ops []Op) string {
	var keys []string
	for _, op := range ops {
		keys = append(keys, op.keys...)
	}
	return strings.Join(keys, ",")
}

// toObject は任意の値をJSONオブジェクト（map）に変換する。
func toObject(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}

// deepMerge はpatchをdstに再帰的にマージする。
// patch側の値がnullのフィールドはdstから削除される。
func deepMerge(dst, patch map[string]any) map[string]any {
	for k, v := range patch {
		if v == nil {
			delete(dst, k)
			continue
		}
		if pm, ok := v.(map[string]any); ok {
			dm, ok := dst[k].(map[string]any)
			if !ok {
				dm = map[string]any{}
			}
			dst[k] = deepMerge(dm, pm)
			continue
		}
		dst[k] = v
	}
	return dst
}
