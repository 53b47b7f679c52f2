// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// RunRecord は保存する1回の実行の内容。
type RunRecord struct {
	Meta    model.RunMeta
	Stats   model.RunStatistics
	Entries []model.WorklogEntry
	// Issues は作業ログに課題の要約を付けるために使う。
	Issues []model.Issue
}

// StoredRun は保存済みの実行履歴。
type StoredRun struct {
	ID         string
	ScopeKind  string
	ScopeValue string
	StartDate  string
	EndDate    string
	Timezone   string
	Strategy   string
	Stats      model.RunStatistics
	Partial    bool
	StartedAt  time.Time
	FinishedAt time.Time
	// Entries はこの実行で最後に保存された作業ログの件数。
	Entries int
}

// RunRepository は実行履歴の永続化インターフェース。
type RunRepository interface {
	// SaveRun は実行履歴と作業ログを同一トランザクションで保存する。
	// 作業ログは作業ログIDで一意とし、既存の行は今回の内容で更新する。
	SaveRun(ctx context.Context, rec RunRecord) error

	// FindRunByID は指定IDの実行履歴を取得する。見つからない場合はnilを返す。
	FindRunByID(ctx context.Context, id string) (*StoredRun, error)
}
