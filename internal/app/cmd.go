package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandReport は作業ログを抽出してレポートを出力することを示す。
	CommandReport Command = "report"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandVersion はバージョンを表示することを示す。
	CommandVersion Command = "version"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandReportを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandReport
	}

	switch args[0] {
	case "report":
		return CommandReport
	case "migrate":
		return CommandMigrate
	case "version", "--version", "-v":
		return CommandVersion
	default:
		return CommandReport
	}
}
