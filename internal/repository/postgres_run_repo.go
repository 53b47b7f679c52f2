package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// PostgresRunRepo はPostgreSQLを使用した実行履歴リポジトリ。
type PostgresRunRepo struct {
	db *sql.DB
}

// NewPostgresRunRepo はPostgresRunRepoを生成する。
func NewPostgresRunRepo(db *sql.DB) *PostgresRunRepo {
	return &PostgresRunRepo{db: db}
}

const upsertWorklogSQL = `
INSERT INTO worklog_entries (
    worklog_id, run_id, issue_key, issue_summary, author_account_id,
    author_display_name, author_email, time_spent_seconds, started_at, comment, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
ON CONFLICT (worklog_id) DO UPDATE SET
    run_id              = EXCLUDED.run_id,
    issue_key           = EXCLUDED.issue_key,
    issue_summary       = EXCLUDED.issue_summary,
    author_account_id   = EXCLUDED.author_account_id,
    author_display_name = EXCLUDED.author_display_name,
    author_email        = EXCLUDED.author_email,
    time_spent_seconds  = EXCLUDED.time_spent_seconds,
    started_at          = EXCLUDED.started_at,
    comment             = EXCLUDED.comment,
    updated_at          = now()`

// SaveRun は実行履歴と作業ログを同一トランザクションで保存する。
func (r *PostgresRunRepo) SaveRun(ctx context.Context, rec RunRecord) error {
	runID, err := uuid.Parse(rec.Meta.RunID)
	if err != nil {
		return fmt.Errorf("実行IDが不正です: %q: %w", rec.Meta.RunID, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	meta, stats := rec.Meta, rec.Stats
	_, err = tx.ExecContext(ctx,
		`INSERT INTO report_runs (
		     id, scope_kind, scope_value, start_date, end_date, timezone, strategy,
		     api_calls, issues_fetched, worklogs_fetched, worklogs_matched, time_spent_seconds,
		     retries, truncated_fetches, failed_issues, partial, started_at, finished_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		runID, string(meta.Scope.Kind), meta.Scope.Value, meta.Window.StartDate(), meta.Window.EndDate(),
		timezoneName(meta.Window.Location), meta.Strategy,
		stats.APICalls, stats.IssuesFetched, stats.WorklogsFetched, stats.WorklogsMatched, stats.TimeSpentSeconds,
		stats.Retries, stats.TruncatedFetches, stats.FailedIssues, stats.Partial(),
		meta.StartedAt, meta.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("実行履歴の保存に失敗しました: %w", err)
	}

	if len(rec.Entries) > 0 {
		summaries := make(map[string]string, len(rec.Issues))
		for _, is := range rec.Issues {
			summaries[is.Key] = is.Summary
		}

		stmt, err := tx.PrepareContext(ctx, upsertWorklogSQL)
		if err != nil {
			return fmt.Errorf("作業ログ保存文の準備に失敗しました: %w", err)
		}
		defer stmt.Close()

		for _, e := range rec.Entries {
			_, err := stmt.ExecContext(ctx,
				e.ID, runID, e.IssueKey, summaries[e.IssueKey], e.AuthorAccountID,
				e.AuthorDisplayName, e.AuthorEmail, e.TimeSpentSeconds, e.Started, e.Comment,
			)
			if err != nil {
				return fmt.Errorf("作業ログ %s の保存に失敗しました: %w", e.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return nil
}

// FindRunByID は指定IDの実行履歴を取得する。見つからない場合はnilを返す。
func (r *PostgresRunRepo) FindRunByID(ctx context.Context, id string) (*StoredRun, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}

	run := &StoredRun{}
	var startDate, endDate time.Time
	err = r.db.QueryRowContext(ctx,
		`SELECT r.id, r.scope_kind, r.scope_value, r.start_date, r.end_date, r.timezone, r.strategy,
		        r.api_calls, r.issues_fetched, r.worklogs_fetched, r.worklogs_matched, r.time_spent_seconds,
		        r.retries, r.truncated_fetches, r.failed_issues, r.partial, r.started_at, r.finished_at,
		        (SELECT count(*) FROM worklog_entries w WHERE w.run_id = r.id)
		 FROM report_runs r WHERE r.id = $1`,
		runID,
	).Scan(
		&run.ID, &run.ScopeKind, &run.ScopeValue, &startDate, &endDate, &run.Timezone, &run.Strategy,
		&run.Stats.APICalls, &run.Stats.IssuesFetched, &run.Stats.WorklogsFetched, &run.Stats.WorklogsMatched,
		&run.Stats.TimeSpentSeconds, &run.Stats.Retries, &run.Stats.TruncatedFetches, &run.Stats.FailedIssues,
		&run.Partial, &run.StartedAt, &run.FinishedAt, &run.Entries,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("実行履歴の取得に失敗しました: %w", err)
	}

	run.StartDate = startDate.Format(model.DateLayout)
	run.EndDate = endDate.Format(model.DateLayout)
	return run, nil
}

func timezoneName(loc *time.Location) string {
	if loc == nil {
		return "UTC"
	}
	return loc.String()
}
