package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandInit は既定のサイドバーを投入することを示す。既に存在する場合は何もしない。
	CommandInit Command = "init"
	// CommandReconcile はusers:setとユーザーレコードの対応を修復することを示す。
	CommandReconcile Command = "reconcile"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "init":
		return CommandInit
	case "reconcile":
		return CommandReconcile
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
