// Package batch は課題ごとの処理を逐次実行し、統計を集計する。
package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// Config はバッチ処理の設定パラメータ。
// 環境変数から設定可能。
type Config struct {
	// BatchSize は1チャンクあたりの課題数（デフォルト: 50）。
	BatchSize int
	// BatchDelay はチャンク間の待機時間（デフォルト: 2秒）。
	BatchDelay time.Duration
}

// DefaultConfig はデフォルトのバッチ設定を返す。
func DefaultConfig() Config {
	return Config{
		BatchSize:  50,
		BatchDelay: 2 * time.Second,
	}
}

// ProcessFunc は1課題分の処理。処理で得た統計を返す。
type ProcessFunc func(ctx context.Context, issue model.Issue) (model.RunStatistics, error)

// Orchestrator は課題の一覧を順に処理する。
// 並行処理は行わず、課題は与えられた順に処理される。
type Orchestrator struct {
	config Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(config Config, logger *slog.Logger) *Orchestrator {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	return &Orchestrator{
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run は課題を処理し、統計を集計して返す。
//
// batchedがtrueかつ課題数がBatchSizeを超える場合は連続したチャンクに分割し、
// チャンク間にBatchDelayだけ待機する（最後のチャンクの後は待たない）。
// それ以外は待機なしで逐次処理する。
//
// 1課題の失敗はログに記録してFailedIssuesに数え、次の課題に進む。
// 認証エラー、リトライを使い切ったレート制限、コンテキストのキャンセルは
// 残りの処理を中断し、それまでに集計した統計とともにエラーを返す。
func (o *Orchestrator) Run(ctx context.Context, issues []model.Issue, batched bool, process ProcessFunc) (model.RunStatistics, error) {
	start := time.Now()
	chunks := o.partition(issues, batched)

	o.logger.Info("作業ログの取得を開始します",
		slog.Int("issues", len(issues)),
		slog.Int("chunks", len(chunks)),
		slog.Bool("batched", batched),
	)

	var total model.RunStatistics
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		// チャンク間の待機（初回は待たない）
		if i > 0 && o.config.BatchDelay > 0 {
			o.logger.Info("次のチャンクまで待機します",
				slog.Int("chunk", i+1),
				slog.Duration("batch_delay", o.config.BatchDelay),
			)
			if err := o.sleep(ctx, o.config.BatchDelay); err != nil {
				return total, err
			}
		}

		stats, err := o.runChunk(ctx, chunk, process)
		total.Merge(stats)
		if err != nil {
			return total, err
		}

		if len(chunks) > 1 {
			o.logger.Info("チャンクの処理が完了しました",
				slog.Int("chunk", i+1),
				slog.Int("chunks", len(chunks)),
				slog.Int("issues", len(chunk)),
				slog.Int("worklogs_matched", stats.WorklogsMatched),
			)
		}
	}

	o.logger.Info("作業ログの取得が完了しました",
		slog.Int("issues", len(issues)),
		slog.Int("failed_issues", total.FailedIssues),
		slog.Int("worklogs_matched", total.WorklogsMatched),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return total, nil
}

func (o *Orchestrator) runChunk(ctx context.Context, chunk []model.Issue, process ProcessFunc) (model.RunStatistics, error) {
	var total model.RunStatistics
	for _, issue := range chunk {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		stats, err := process(ctx, issue)
		total.Merge(stats)
		if err == nil {
			continue
		}

		if model.IsFatalForRun(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			o.logger.Error("処理を中断します",
				slog.String("issue_key", issue.Key),
				slog.String("error", err.Error()),
			)
			return total, err
		}

		total.FailedIssues++
		o.logger.Error("課題の作業ログ取得に失敗したためスキップします",
			slog.String("issue_key", issue.Key),
			slog.String("error_code", model.ErrorCode(err)),
			slog.String("error", err.Error()),
		)
	}
	return total, nil
}

// partition は課題の一覧を連続したチャンクに分割する。最後のチャンクは小さくなりうる。
func (o *Orchestrator) partition(issues []model.Issue, batched bool) [][]model.Issue {
	if len(issues) == 0 {
		return nil
	}
	if !batched || len(issues) <= o.config.BatchSize {
		return [][]model.Issue{issues}
	}

	var chunks [][]model.Issue
	for i := 0; i < len(issues); i += o.config.BatchSize {
		end := min(i+o.config.BatchSize, len(issues))
		chunks = append(chunks, issues[i:end])
	}
	return chunks
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
