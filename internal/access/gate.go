// Package access はサインインの可否とエリアごとのアクセス可否を判定する。
//
// Gate自体は状態を持たず、リクエストごとにUser Directoryを1回参照して判定する。
package access

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/groupdash/internal/metrics"
	"github.com/hitoshi/groupdash/internal/model"
)

// ErrForbidden はアクセスレベルが不足している場合に返される。
var ErrForbidden = errors.New("access denied")

// Area は保護対象のエリア。
type Area string

const (
	// AreaGeneral はダッシュボード等の一般機能。admin と active が利用できる。
	AreaGeneral Area = "general"
	// AreaAdmin はユーザー管理・サイドバー編集等の管理機能。admin のみ利用できる。
	AreaAdmin Area = "admin"
)

// areaSignIn はメトリクス用のサインイン判定ラベル。
const areaSignIn = "signin"

// Directory はGateが参照するユーザーディレクトリのインターフェース。
type Directory interface {
	Get(ctx context.Context, email string) (*model.User, error)
	SetAccessLevel(ctx context.Context, email string, level model.AccessLevel) error
}

// Decision はサインイン判定の結果。
type Decision struct {
	Allowed bool
	// User は許可された場合のユーザーレコード。拒否時はnil。
	User *model.User
	// Bootstrapped はブートストラップ管理者のレコードを今回作成した場合にtrue。
	Bootstrapped bool
}

// Gate はアクセス判定を行う。
type Gate struct {
	dir            Directory
	bootstrapEmail string
	recorder       metrics.Recorder
}

// NewGate はGateの新しいインスタンスを生成する。
// bootstrapEmailが空の場合、ブートストラップ管理者は作成されない。
func NewGate(dir Directory, bootstrapEmail string, recorder metrics.Recorder) *Gate {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Gate{
		dir:            dir,
		bootstrapEmail: model.NormalizeEmail(bootstrapEmail),
		recorder:       recorder,
	}
}

// SignIn は検証済みメールアドレスのサインイン可否を判定する。
// レコードがあればアクセスレベルに関わらず許可する。レコードが無い場合、
// ブートストラップ管理者のアドレスであればadminとして登録して許可し、それ以外は拒否する。
func (g *Gate) SignIn(ctx context.Context, email string) (Decision, error) {
	e := model.NormalizeEmail(email)
	if e == "" {
		return Decision{}, model.NewValidationError("email", "Email is required")
	}

	u, err := g.dir.Get(ctx, e)
	if err != nil {
		return Decision{}, err
	}
	if u != nil {
		g.recorder.RecordAccessDecision(areaSignIn, true)
		return Decision{Allowed: true, User: u}, nil
	}

	if g.bootstrapEmail != "" && e == g.bootstrapEmail {
		if err := g.dir.SetAccessLevel(ctx, e, model.AccessLevelAdmin); err != nil {
			return Decision{}, err
		}
		slog.Info("ブートストラップ管理者を登録しました", slog.String("email", e))
		g.recorder.RecordAccessDecision(areaSignIn, true)
		return Decision{
			Allowed:      true,
			User:         &model.User{Email: e, AccessLevel: model.AccessLevelAdmin},
			Bootstrapped: true,
		}, nil
	}

	slog.Warn("未登録のメールアドレスによるサインインを拒否しました", slog.String("email", e))
	g.recorder.RecordAccessDecision(areaSignIn, false)
	return Decision{Allowed: false}, nil
}

// Authorize はエリアへのアクセス可否を判定し、呼び出し元のアクセスレベルを返す。
// 許可されない場合は ErrForbidden を返す。未登録ユーザーのレベルは空文字。
func (g *Gate) Authorize(ctx context.Context, email string, area Area) (model.AccessLevel, error) {
	u, err := g.dir.Get(ctx, email)
	if err != nil {
		return "", err
	}

	var level model.AccessLevel
	if u != nil {
		level = u.AccessLevel
	}

	allowed := Permits(level, area)
	g.recorder.RecordAccessDecision(string(area), allowed)
	if !allowed {
		return level, ErrForbidden
	}
	return level, nil
}

// Permits はアクセスレベルがエリアの利用条件を満たすかを返す。
func Permits(level model.AccessLevel, area Area) bool {
	switch area {
	case AreaGeneral:
		return level == model.AccessLevelAdmin || level == model.AccessLevelActive
	case AreaAdmin:
		return level == model.AccessLevelAdmin
	default:
		return false
	}
}
