package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options はログ出力の設定。
type Options struct {
	// Level は出力する最低レベル（デフォルト: info）。
	Level slog.Level
	// Format は出力形式。"json"（デフォルト）または "text"。
	Format string
}

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。
// 空文字列はinfoとして扱う。
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("未知のログレベルです: %q", s)
	}
}

// Setup は構造化ログ出力のslog.Loggerを生成して返す。
// 既定はJSON形式で、Formatに"text"を指定した場合はコンソール向けのテキスト形式になる。
func Setup(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		Level: opts.Level,
	}
	if strings.EqualFold(opts.Format, "text") {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

// SetupDefault は構造化ログ出力をグローバルロガーとして設定し、そのロガーを返す。
// writerがnilの場合はos.Stderrに出力する。
// 標準出力は実行サマリに使うため、ログは標準エラー出力に分ける。
func SetupDefault(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := Setup(w, opts)
	slog.SetDefault(logger)
	return logger
}
