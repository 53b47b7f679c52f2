package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/batch"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/config"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/database"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/jira"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/logger"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/metrics"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/report"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/repository"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/security"
)

// Version はビルド時に -ldflags "-X ...app.Version=..." で上書きされる。
var Version = "dev"

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。サマリはstdoutに、ログはstderrに出力する。
func Run(stdout, stderr io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// version と migrate はJiraの設定を必要としないため、フル初期化をスキップする
	switch cmd {
	case CommandVersion:
		fmt.Fprintf(stdout, "worklog-reporter %s\n", Version)
		return nil
	case CommandMigrate:
		return runMigrate(stderr, os.Getenv("DATABASE_URL"))
	}

	cfg, err := config.Load()
	if err != nil {
		// 設定が読めない段階でもエラーは構造化ログで残す
		log := logger.SetupDefault(stderr, logger.Options{})
		log.Error("設定の読み込みに失敗しました",
			slog.String("error_code", model.ErrorCode(err)),
			slog.String("error", err.Error()),
		)
		return err
	}

	log := logger.SetupDefault(stderr, logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runReport(ctx, stdout, cfg, log)
}

// runReport は作業ログを抽出し、レポートを出力する。
// 途中で失敗した場合も、それまでの統計をサマリとして出力してからエラーを返す。
func runReport(ctx context.Context, stdout io.Writer, cfg *config.Config, log *slog.Logger) error {
	meta := model.RunMeta{
		RunID:     uuid.NewString(),
		Scope:     cfg.Scope,
		Window:    cfg.Window,
		StartedAt: time.Now(),
	}
	log = log.With(slog.String("run_id", meta.RunID))

	log.Info("作業ログの抽出を開始します",
		slog.String("jira_base_url", cfg.JiraBaseURL),
		slog.String("scope", cfg.Scope.String()),
		slog.String("window", cfg.Window.String()),
		slog.String("timezone", cfg.Location.String()),
	)

	// 1. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. Jiraクライアント
	client, err := jira.NewClient(jira.Options{
		BaseURL:             cfg.JiraBaseURL,
		Credential:          cfg.Credential,
		HTTPClient:          &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:              log,
		Metrics:             collector,
		Sanitizer:           security.NewCommentSanitizer(),
		MaxRetries:          cfg.MaxRetries,
		RetryBaseDelay:      cfg.RetryBaseDelay,
		LowQuotaThreshold:   cfg.LowQuotaThreshold,
		RequestsPerSecond:   cfg.RequestsPerSecond,
		SearchPageSize:      cfg.SearchPageSize,
		WorklogPageSize:     cfg.WorklogPageSize,
		GroupPageSize:       cfg.GroupPageSize,
		MaxIssues:           cfg.MaxIssues,
		MaxWorklogsPerIssue: cfg.MaxWorklogsPerIssue,
	})
	if err != nil {
		return err
	}

	// 3. パイプライン
	orchestrator := batch.NewOrchestrator(batch.Config{
		BatchSize:  cfg.BatchSize,
		BatchDelay: cfg.BatchDelay,
	}, log)
	pipeline := NewPipeline(client, orchestrator, log)

	result, runErr := pipeline.Run(ctx, cfg.Scope, cfg.Window)
	meta.FinishedAt = time.Now()
	if result.Discovery.JQL != "" {
		meta.Strategy = result.Discovery.Strategy.String()
	}

	collector.RecordRun(result.Stats, meta.FinishedAt.Sub(meta.StartedAt), meta.FinishedAt, runErr == nil)
	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile, registry); err != nil {
			log.Warn("メトリクスファイルを書き出せませんでした", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		log.Error("作業ログの抽出に失敗しました",
			slog.String("error_code", model.ErrorCode(runErr)),
			slog.String("error", runErr.Error()),
			slog.Int("api_calls", result.Stats.APICalls),
		)
		report.PrintSummary(stdout, result.Stats, nil)
		return runErr
	}

	// 4. レポート出力
	rep := report.Build(result.Entries, result.Discovery.Issues, result.Stats, meta)
	paths, err := writeArtifacts(cfg, rep)
	if err != nil {
		return err
	}
	for _, p := range paths {
		log.Info("レポートを書き出しました", slog.String("path", p))
	}

	// 5. 実行履歴の保存（任意）
	if cfg.DatabaseURL != "" {
		if err := persistRun(ctx, cfg.DatabaseURL, repository.RunRecord{
			Meta:    meta,
			Stats:   result.Stats,
			Entries: result.Entries,
			Issues:  result.Discovery.Issues,
		}, log); err != nil {
			report.PrintSummary(stdout, result.Stats, rep)
			return err
		}
	}

	report.PrintSummary(stdout, result.Stats, rep)
	for _, p := range paths {
		fmt.Fprintf(stdout, "出力          : %s\n", p)
	}

	log.Info("作業ログの抽出が完了しました",
		slog.Int("worklogs_matched", result.Stats.WorklogsMatched),
		slog.Float64("hours", result.Stats.TotalHours()),
		slog.Bool("partial", result.Stats.Partial()),
		slog.Float64("duration_ms", float64(meta.FinishedAt.Sub(meta.StartedAt).Milliseconds())),
	)
	return nil
}

// writeArtifacts はスプレッドシートと（有効な場合は）JSONを出力ディレクトリに書き出す。
func writeArtifacts(cfg *config.Config, rep *report.Report) ([]string, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリを作成できません: %w", err)
	}

	var paths []string
	xlsxPath := filepath.Join(cfg.OutputDir, report.FileName("worklog", cfg.Scope, cfg.Window, "xlsx"))
	if err := writeFile(xlsxPath, func(w io.Writer) error { return report.WriteXLSX(w, rep) }); err != nil {
		return nil, err
	}
	paths = append(paths, xlsxPath)

	if cfg.OutputJSON {
		jsonPath := filepath.Join(cfg.OutputDir, report.FileName("worklog", cfg.Scope, cfg.Window, "json"))
		if err := writeFile(jsonPath, func(w io.Writer) error { return report.WriteJSON(w, rep) }); err != nil {
			return paths, err
		}
		paths = append(paths, jsonPath)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ファイルを作成できません: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("ファイルを閉じられません: %w", cerr)
		}
	}()
	return write(f)
}

// persistRun は実行履歴をデータベースに保存する。
func persistRun(ctx context.Context, databaseURL string, rec repository.RunRecord, log *slog.Logger) error {
	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("実行履歴を保存できません: %w", err)
	}
	defer db.Close()

	repo := repository.NewPostgresRunRepo(db)
	if err := repo.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("実行履歴を保存できません: %w", err)
	}

	log.Info("実行履歴を保存しました",
		slog.String("database_url", maskDatabaseURL(databaseURL)),
		slog.Int("entries", len(rec.Entries)),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(stderr io.Writer, databaseURL string) error {
	log := logger.SetupDefault(stderr, logger.Options{})

	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		err := model.NewConfigurationError("DATABASE_URL が設定されていません")
		log.Error("マイグレーションを実行できません", slog.String("error", err.Error()))
		return err
	}

	log.Info("データベースマイグレーションを実行します",
		slog.String("database_url", maskDatabaseURL(databaseURL)),
	)

	version, err := database.RunMigrations(databaseURL)
	if err != nil {
		return fmt.Errorf("マイグレーションに失敗しました: %w", err)
	}

	log.Info("データベースマイグレーションが完了しました", slog.Uint64("version", uint64(version)))
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
// スキームとホスト、データベース名のみを残す。解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "***"
	}
	masked := u.Scheme + "://"
	if u.User != nil {
		masked += "***@"
	}
	return masked + u.Host + u.EscapedPath()
}
