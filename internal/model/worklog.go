package model

import (
	"encoding/base64"
	"time"
)

// Credential はJira APIの認証情報（メールアドレスとAPIトークン）。
// 実行中は変更しない。
type Credential struct {
	Email    string
	APIToken string
}

// AuthorizationHeader はBasic認証のAuthorizationヘッダー値を返す。
// 呼び出しごとに導出し、キャッシュしない。
func (c Credential) AuthorizationHeader() string {
	raw := c.Email + ":" + c.APIToken
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// Account はJiraのユーザーアカウント。
type Account struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Active       bool   `json:"active"`
}

// Issue は作業ログの取得対象となる課題。
// 検索で1回だけ取得し、以降は変更しない。
type Issue struct {
	Key        string `json:"key"`
	Type       string `json:"type"`
	Summary    string `json:"summary"`
	ProjectKey string `json:"project_key"`
	Status     string `json:"status"`
	// Assignee は担当者の表示名。未割り当ての場合は空。
	Assignee string `json:"assignee,omitempty"`
}

// WorklogEntry は1件の作業ログ。照合フィルタを通過したものがレポートの単位となる。
type WorklogEntry struct {
	ID                string    `json:"id"`
	IssueKey          string    `json:"issue_key"`
	AuthorAccountID   string    `json:"author_account_id"`
	AuthorDisplayName string    `json:"author"`
	AuthorEmail       string    `json:"author_email,omitempty"`
	TimeSpentSeconds  int64     `json:"time_spent_seconds"`
	Started           time.Time `json:"started"`
	Comment           string    `json:"comment,omitempty"`
}

// Hours は作業時間を時間単位で返す。
func (e WorklogEntry) Hours() float64 {
	return float64(e.TimeSpentSeconds) / 3600
}

// Date は作業開始日をlocのタイムゾーンで "YYYY-MM-DD" として返す。
func (e WorklogEntry) Date(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return e.Started.In(loc).Format(DateLayout)
}

// RunMeta は1回の実行のメタデータ。
type RunMeta struct {
	RunID      string
	Scope      ScopeSelector
	Window     DateWindow
	Strategy   string
	StartedAt  time.Time
	FinishedAt time.Time
}
