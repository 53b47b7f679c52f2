package scope

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/jira"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// IssueSearcher はJQLによる課題検索のインターフェース。
// *jira.Client が実装する。
type IssueSearcher interface {
	SearchIssues(ctx context.Context, stats *model.RunStatistics, jql string) (jira.PageResult[model.Issue], error)
}

// Discovery は課題探索の結果。
type Discovery struct {
	Issues []model.Issue
	// Strategy は結果を採用した検索戦略。
	Strategy Strategy
	// JQL は結果を採用した検索に用いたJQL。作業者を分割した場合は最初の検索のもの。
	JQL string
	// Queries は結果を採用した戦略で実行した検索の回数。
	Queries int
	// Truncated は検索上限で切り詰められたことを示す。
	Truncated bool
}

// DefaultAuthorsPerQuery は1回の検索のworklogAuthor条件に含めるアカウントIDの上限。
// 検索はGETのクエリ文字列で送るため、大きなグループはURL長の上限を超えないよう分割する。
const DefaultAuthorsPerQuery = 50

// Discoverer は作業ログを取得する候補課題を探索する。
type Discoverer struct {
	searcher        IssueSearcher
	logger          *slog.Logger
	authorsPerQuery int
}

// NewDiscoverer はDiscovererの新しいインスタンスを生成する。
func NewDiscoverer(searcher IssueSearcher, logger *slog.Logger) *Discoverer {
	return &Discoverer{searcher: searcher, logger: logger, authorsPerQuery: DefaultAuthorsPerQuery}
}

// Discover はスコープに応じて課題を探索する。
//
// QueryスコープはJQLをそのまま（期間条件を補って）実行する。
// ユーザー・グループスコープは精度の高い戦略から順に試行し、最初に結果が
// 空でなかった戦略の結果を採用する。後続の戦略で結果を補うことはしない。
// 作業者集合が空の場合は作業者条件を含む戦略を飛ばす。
// 作業者条件を含む戦略は、作業者が多い場合に複数の検索に分割して結果を合わせる。
// 候補の精度は照合フィルタで担保するため、ここでは取りこぼしを避けることを優先する。
func (d *Discoverer) Discover(ctx context.Context, stats *model.RunStatistics, sel model.ScopeSelector, res Resolution, window model.DateWindow) (Discovery, error) {
	if sel.Kind == model.ScopeKindQuery {
		found, err := d.run(ctx, stats, StrategyQuery, ComposeQueryJQL(sel.Value, window))
		if err != nil {
			return Discovery{}, err
		}
		stats.IssuesFetched += len(found.Issues)
		return found, nil
	}

	strategies := []Strategy{StrategyWorklogDateAndAuthor, StrategyAuthorOnly, StrategyUpdatedInWindow}
	if res.Identities.Len() == 0 {
		d.logger.Warn("作業者が0人のため作業者条件を含む検索を省略します")
		strategies = []Strategy{StrategyUpdatedInWindow}
	}

	var last Discovery
	for _, s := range strategies {
		found, err := d.runStrategy(ctx, stats, s, res.Identities, window)
		if err != nil {
			return Discovery{}, err
		}
		if len(found.Issues) > 0 {
			stats.IssuesFetched += len(found.Issues)
			return found, nil
		}
		d.logger.Info("検索結果が空のため次の検索戦略を試行します",
			slog.String("strategy", s.String()),
		)
		last = found
	}

	d.logger.Warn("いずれの検索戦略でも課題が見つかりませんでした")
	return last, nil
}

// runStrategy は戦略の検索を実行する。作業者条件を含む戦略では作業者を
// authorsPerQuery人ずつに分けて検索し、課題キーの重複を除いて検索順に連結する。
func (d *Discoverer) runStrategy(ctx context.Context, stats *model.RunStatistics, s Strategy, identities model.IdentitySet, window model.DateWindow) (Discovery, error) {
	if s == StrategyUpdatedInWindow {
		return d.run(ctx, stats, s, BuildStrategyJQL(s, identities, window))
	}

	groups := splitIDs(identities.Sorted(), d.authorsPerQuery)
	if len(groups) > 1 {
		d.logger.Info("作業者が多いため検索を分割します",
			slog.String("strategy", s.String()),
			slog.Int("authors", identities.Len()),
			slog.Int("queries", len(groups)),
		)
	}

	merged := Discovery{Strategy: s}
	seen := make(map[string]struct{})
	for _, ids := range groups {
		found, err := d.run(ctx, stats, s, BuildStrategyJQL(s, model.NewIdentitySet(ids...), window))
		if err != nil {
			return Discovery{}, err
		}
		if merged.JQL == "" {
			merged.JQL = found.JQL
		}
		merged.Queries++
		merged.Truncated = merged.Truncated || found.Truncated
		for _, issue := range found.Issues {
			if _, dup := seen[issue.Key]; dup {
				continue
			}
			seen[issue.Key] = struct{}{}
			merged.Issues = append(merged.Issues, issue)
		}
	}
	return merged, nil
}

// splitIDs はidsをsize件ずつの連続したグループに分割する。
func splitIDs(ids []string, size int) [][]string {
	if size <= 0 || len(ids) <= size {
		return [][]string{ids}
	}
	var groups [][]string
	for i := 0; i < len(ids); i += size {
		groups = append(groups, ids[i:min(i+size, len(ids))])
	}
	return groups
}

func (d *Discoverer) run(ctx context.Context, stats *model.RunStatistics, s Strategy, jql string) (Discovery, error) {
	d.logger.Info("課題を検索します",
		slog.String("strategy", s.String()),
		slog.String("jql", jql),
	)

	res, err := d.searcher.SearchIssues(ctx, stats, jql)
	if err != nil {
		return Discovery{}, fmt.Errorf("課題検索（%s）に失敗しました: %w", s, err)
	}

	if len(res.Items) > 0 {
		d.logger.Info("課題が見つかりました",
			slog.String("strategy", s.String()),
			slog.Int("issues", len(res.Items)),
			slog.Int("pages", res.Pages),
			slog.Bool("truncated", res.Truncated),
		)
	}

	return Discovery{
		Issues:    res.Items,
		Strategy:  s,
		JQL:       jql,
		Queries:   1,
		Truncated: res.Truncated,
	}, nil
}
