// Package user はアクセス許可リスト（User Directory）を提供する。
//
// ユーザーレコードは user:<小文字メールアドレス> に、一覧用のメンバーシップは
// users:set に保存される。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/groupdash/internal/kv"
	"github.com/hitoshi/groupdash/internal/model"
)

const (
	userKeyPrefix = "user:"
	usersSetKey   = "users:set"
)

// userKey はメールアドレスからストレージキーを組み立てる。
func userKey(email string) string {
	return userKeyPrefix + email
}

// Directory はユーザーレコードの読み書きを行う。
type Directory struct {
	kv *kv.Client
}

// NewDirectory はDirectoryの新しいインスタンスを生成する。
func NewDirectory(client *kv.Client) *Directory {
	return &Directory{kv: client}
}

// ReconcileReport はReconcileで修復した内容を表す。
type ReconcileReport struct {
	// Dangling はレコードが存在しないためusers:setから除去したメール。
	Dangling []string `json:"dangling"`
	// Restored はレコードが存在するのにusers:setに無かったため追加したメール。
	Restored []string `json:"restored"`
}

func normalize(email string) (string, error) {
	e := model.NormalizeEmail(email)
	if e == "" {
		return "", model.NewValidationError("email", "Email is required")
	}
	return e, nil
}

func validateLevel(level model.AccessLevel) error {
	if !level.Valid() {
		return model.NewValidationError("accessLevel",
			fmt.Sprintf("Invalid access level '%s'", level))
	}
	return nil
}

// Get はユーザーレコードを取得する。存在しない場合は nil, nil を返す。
func (d *Directory) Get(ctx context.Context, email string) (*model.User, error) {
	e, err := normalize(email)
	if err != nil {
		return nil, err
	}

	var u model.User
	found, err := d.kv.Get(ctx, userKey(e), &u)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if u.Email == "" {
		u.Email = e
	}
	return &u, nil
}

// Add は新しいユーザーを登録する。既に存在する場合はConflictエラーを返す。
// 存在確認とレコード・メンバーシップの書き込みは1つのトランザクションで行う。
func (d *Directory) Add(ctx context.Context, email string, level model.AccessLevel) error {
	e, err := normalize(email)
	if err != nil {
		return err
	}
	if err := validateLevel(level); err != nil {
		return err
	}

	key := userKey(e)
	err = d.kv.Atomic(ctx, key, func(tx *kv.Tx) error {
		exists, err := tx.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return model.NewConflictError(e, "User already exists")
		}
		return tx.Commit(ctx,
			kv.SetOp(key, model.User{Email: e, AccessLevel: level}),
			kv.SAddOp(usersSetKey, e),
		)
	})
	if err != nil {
		return err
	}

	slog.Info("ユーザーを追加しました",
		slog.String("email", e),
		slog.String("access_level", string(level)),
	)
	return nil
}

// SetAccessLevel はアクセスレベルを上書きする。存在しないユーザーは作成される。
func (d *Directory) SetAccessLevel(ctx context.Context, email string, level model.AccessLevel) error {
	e, err := normalize(email)
	if err != nil {
		return err
	}
	if err := validateLevel(level); err != nil {
		return err
	}

	if err := d.kv.Exec(ctx,
		kv.SetOp(userKey(e), model.User{Email: e, AccessLevel: level}),
		kv.SAddOp(usersSetKey, e),
	); err != nil {
		return err
	}

	slog.Info("アクセスレベルを更新しました",
		slog.String("email", e),
		slog.String("access_level", string(level)),
	)
	return nil
}

// Delete はユーザーレコードとメンバーシップを同一トランザクションで削除する。
// 存在しないユーザーの削除は成功として扱う。
func (d *Directory) Delete(ctx context.Context, email string) error {
	e, err := normalize(email)
	if err != nil {
		return err
	}

	if err := d.kv.Exec(ctx,
		kv.DelOp(userKey(e)),
		kv.SRemOp(usersSetKey, e),
	); err != nil {
		return err
	}

	slog.Info("ユーザーを削除しました", slog.String("email", e))
	return nil
}

// AddToSet はメンバーシップのみを追加する。レコードは作成しない。
func (d *Directory) AddToSet(ctx context.Context, email string) error {
	e, err := normalize(email)
	if err != nil {
		return err
	}
	_, err = d.kv.AddToSet(ctx, usersSetKey, e)
	return err
}

// List はusers:setの全メンバーのレコードをメール昇順で返す。
// レコードが無いメンバーはスキップしてログに残す。
func (d *Directory) List(ctx context.Context) ([]model.User, error) {
	members, err := d.kv.SetMembers(ctx, usersSetKey)
	if err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(members))
	for _, email := range members {
		u, err := d.Get(ctx, email)
		if err != nil {
			return nil, err
		}
		if u == nil {
			slog.Warn("users:setにレコードの無いメンバーがあります",
				slog.String("email", email),
			)
			continue
		}
		users = append(users, *u)
	}
	return users, nil
}

// Reconcile はusers:setとユーザーレコードの対応を修復する。
func (d *Directory) Reconcile(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{Dangling: []string{}, Restored: []string{}}

	members, err := d.kv.SetMembers(ctx, usersSetKey)
	if err != nil {
		return report, err
	}
	keys, err := d.kv.Keys(ctx, userKeyPrefix+"*")
	if err != nil {
		return report, err
	}

	inSet := make(map[string]bool, len(members))
	for _, m := range members {
		inSet[m] = true
	}
	hasRecord := make(map[string]bool, len(keys))
	for _, k := range keys {
		email := strings.TrimPrefix(k, userKeyPrefix)
		hasRecord[email] = true
		if !inSet[email] {
			report.Restored = append(report.Restored, email)
		}
	}
	for _, m := range members {
		if !hasRecord[m] {
			report.Dangling = append(report.Dangling, m)
		}
	}

	if _, err := d.kv.RemoveFromSet(ctx, usersSetKey, report.Dangling...); err != nil {
		return report, err
	}
	if _, err := d.kv.AddToSet(ctx, usersSetKey, report.Restored...); err != nil {
		return report, err
	}

	slog.Info("users:setを修復しました",
		slog.Int("dangling", len(report.Dangling)),
		slog.Int("restored", len(report.Restored)),
	)
	return report, nil
}

// GetAccessLevel はユーザーのアクセスレベルを返す。未登録の場合は空文字。
func (d *Directory) GetAccessLevel(ctx context.Context, email string) (model.AccessLevel, error) {
	u, err := d.Get(ctx, email)
	if err != nil || u == nil {
		return "", err
	}
	return u.AccessLevel, nil
}

// IsAdmin はユーザーが管理者かどうかを返す。
func (d *Directory) IsAdmin(ctx context.Context, email string) (bool, error) {
	level, err := d.GetAccessLevel(ctx, email)
	if err != nil {
		return false, err
	}
	return level == model.AccessLevelAdmin, nil
}

// CheckAccess は一般機能を利用できる（admin または active）かどうかを返す。
func (d *Directory) CheckAccess(ctx context.Context, email string) (bool, error) {
	level, err := d.GetAccessLevel(ctx, email)
	if err != nil {
		return false, err
	}
	return level == model.AccessLevelAdmin || level == model.AccessLevelActive, nil
}
