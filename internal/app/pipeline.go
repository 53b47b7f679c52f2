package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/batch"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/jira"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/reconcile"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/scope"
)

// JiraAPI はパイプラインが使うJira APIのインターフェース。
// *jira.Client が実装する。
type JiraAPI interface {
	scope.Directory
	scope.IssueSearcher
	IssueWorklogs(ctx context.Context, stats *model.RunStatistics, issueKey string) (jira.PageResult[model.WorklogEntry], error)
}

// Result はパイプライン1回分の結果。
type Result struct {
	Resolution scope.Resolution
	Discovery  scope.Discovery
	// Entries は照合フィルタを通過した作業ログ。課題の探索順、課題内は取得順に並ぶ。
	Entries []model.WorklogEntry
	Stats   model.RunStatistics
}

// Pipeline はスコープ解決から照合までの一連の処理を実行する。
type Pipeline struct {
	api          JiraAPI
	resolver     *scope.Resolver
	discoverer   *scope.Discoverer
	orchestrator *batch.Orchestrator
	logger       *slog.Logger
	now          func() time.Time
}

// NewPipeline はPipelineの新しいインスタンスを生成する。
func NewPipeline(api JiraAPI, orchestrator *batch.Orchestrator, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		api:          api,
		resolver:     scope.NewResolver(api, logger),
		discoverer:   scope.NewDiscoverer(api, logger),
		orchestrator: orchestrator,
		logger:       logger,
		now:          time.Now,
	}
}

// Run はスコープと期間に一致する作業ログを取得する。
//
// エラーの場合も、それまでに集計した統計を含むResultを返す（nilにはならない）。
func (p *Pipeline) Run(ctx context.Context, sel model.ScopeSelector, window model.DateWindow) (*Result, error) {
	res := &Result{}

	// 期間とセレクタはネットワークにアクセスする前に検証する
	if err := window.Validate(p.now()); err != nil {
		return res, err
	}
	if err := sel.Validate(); err != nil {
		return res, err
	}

	resolution, err := p.resolver.Resolve(ctx, &res.Stats, sel)
	if err != nil {
		return res, fmt.Errorf("スコープの解決に失敗しました: %w", err)
	}
	res.Resolution = resolution

	discovery, err := p.discoverer.Discover(ctx, &res.Stats, sel, resolution, window)
	if err != nil {
		return res, err
	}
	res.Discovery = discovery

	if len(discovery.Issues) == 0 {
		p.logger.Info("対象の課題がないため作業ログの取得を省略します")
		return res, nil
	}

	stats, err := p.orchestrator.Run(ctx, discovery.Issues, sel.Batched(), func(ctx context.Context, issue model.Issue) (model.RunStatistics, error) {
		return p.processIssue(ctx, issue, resolution, window, res)
	})
	res.Stats.Merge(stats)
	if err != nil {
		return res, err
	}

	p.logger.Info("作業ログの照合が完了しました",
		slog.String("scope", sel.String()),
		slog.String("window", window.String()),
		slog.Int("issues", len(discovery.Issues)),
		slog.Int("worklogs_fetched", res.Stats.WorklogsFetched),
		slog.Int("worklogs_matched", res.Stats.WorklogsMatched),
		slog.Float64("hours", res.Stats.TotalHours()),
	)
	return res, nil
}

// processIssue は1課題の作業ログを取得して照合し、一致したものをresに追加する。
func (p *Pipeline) processIssue(ctx context.Context, issue model.Issue, resolution scope.Resolution, window model.DateWindow, res *Result) (model.RunStatistics, error) {
	var stats model.RunStatistics

	fetched, err := p.api.IssueWorklogs(ctx, &stats, issue.Key)
	if err != nil {
		return stats, fmt.Errorf("課題 %s の作業ログ取得に失敗しました: %w", issue.Key, err)
	}

	matched := reconcile.Filter(fetched.Items, resolution.Identities, window)
	for _, e := range matched {
		stats.TimeSpentSeconds += e.TimeSpentSeconds
	}
	stats.WorklogsMatched += len(matched)
	res.Entries = append(res.Entries, matched...)

	p.logger.Debug("課題の作業ログを照合しました",
		slog.String("issue_key", issue.Key),
		slog.Int("fetched", len(fetched.Items)),
		slog.Int("matched", len(matched)),
		slog.Int("pages", fetched.Pages),
	)
	return stats, nil
}
