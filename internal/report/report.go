// Package report は照合済みの作業ログを集計し、スプレッドシートとJSONに出力する。
package report

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// Meta はレポートの実行情報。
type Meta struct {
	RunID      string    `json:"run_id"`
	Scope      string    `json:"scope"`
	ScopeKind  string    `json:"scope_kind"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	Timezone   string    `json:"timezone"`
	Strategy   string    `json:"strategy"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Partial は上限による打ち切りや課題単位の失敗でデータが欠けている可能性を示す。
	Partial bool `json:"partial"`
}

// AuthorHours は作業者ごとの作業時間。
type AuthorHours struct {
	AccountID        string  `json:"account_id"`
	DisplayName      string  `json:"display_name"`
	TimeSpentSeconds int64   `json:"time_spent_seconds"`
	Hours            float64 `json:"hours"`
	Entries          int     `json:"entries"`
}

// IssueSummary は課題ごとの集計。
type IssueSummary struct {
	model.Issue
	TimeSpentSeconds int64         `json:"time_spent_seconds"`
	Hours            float64       `json:"hours"`
	Entries          int           `json:"entries"`
	Authors          []AuthorHours `json:"authors"`
}

// AuthorSummary は作業者ごとの集計。
type AuthorSummary struct {
	AuthorHours
	Issues int `json:"issues"`
}

// Detail は明細の1行。
type Detail struct {
	model.WorklogEntry
	Date         string  `json:"date"`
	Hours        float64 `json:"hours"`
	IssueSummary string  `json:"issue_summary"`
	IssueType    string  `json:"issue_type,omitempty"`
	IssueStatus  string  `json:"issue_status,omitempty"`
}

// Report は1回の実行の集計結果。
type Report struct {
	Meta       Meta                `json:"meta"`
	Statistics model.RunStatistics `json:"statistics"`
	TotalHours float64             `json:"total_hours"`
	ByIssue    []IssueSummary      `json:"by_issue"`
	ByAuthor   []AuthorSummary     `json:"by_author"`
	Entries    []Detail            `json:"entries"`

	loc *time.Location
}

// Build は作業ログを課題別・作業者別に集計する。
// 出力の順序は入力の順序に依存しない。
// 課題は課題キー（プロジェクト、番号の順）、作業者は作業時間の降順、明細は開始日時の順に並ぶ。
func Build(entries []model.WorklogEntry, issues []model.Issue, stats model.RunStatistics, meta model.RunMeta) *Report {
	loc := meta.Window.Location
	if loc == nil {
		loc = time.UTC
	}

	issueByKey := make(map[string]model.Issue, len(issues))
	for _, is := range issues {
		issueByKey[is.Key] = is
	}

	type issueAcc struct {
		summary IssueSummary
		authors map[string]*AuthorHours
	}
	byIssue := make(map[string]*issueAcc)
	byAuthor := make(map[string]*AuthorSummary)
	authorIssues := make(map[string]map[string]struct{})

	var total int64
	details := make([]Detail, 0, len(entries))
	for _, e := range entries {
		is, ok := issueByKey[e.IssueKey]
		if !ok {
			is = model.Issue{Key: e.IssueKey}
		}

		acc, ok := byIssue[e.IssueKey]
		if !ok {
			acc = &issueAcc{summary: IssueSummary{Issue: is}, authors: make(map[string]*AuthorHours)}
			byIssue[e.IssueKey] = acc
		}
		acc.summary.TimeSpentSeconds += e.TimeSpentSeconds
		acc.summary.Entries++

		ah, ok := acc.authors[e.AuthorAccountID]
		if !ok {
			ah = &AuthorHours{AccountID: e.AuthorAccountID, DisplayName: e.AuthorDisplayName}
			acc.authors[e.AuthorAccountID] = ah
		}
		ah.TimeSpentSeconds += e.TimeSpentSeconds
		ah.Entries++

		as, ok := byAuthor[e.AuthorAccountID]
		if !ok {
			as = &AuthorSummary{AuthorHours: AuthorHours{AccountID: e.AuthorAccountID, DisplayName: e.AuthorDisplayName}}
			byAuthor[e.AuthorAccountID] = as
			authorIssues[e.AuthorAccountID] = make(map[string]struct{})
		}
		as.TimeSpentSeconds += e.TimeSpentSeconds
		as.Entries++
		authorIssues[e.AuthorAccountID][e.IssueKey] = struct{}{}

		total += e.TimeSpentSeconds
		details = append(details, Detail{
			WorklogEntry: e,
			Date:         e.Date(loc),
			Hours:        toHours(e.TimeSpentSeconds),
			IssueSummary: is.Summary,
			IssueType:    is.Type,
			IssueStatus:  is.Status,
		})
	}

	r := &Report{
		Meta: Meta{
			RunID:      meta.RunID,
			Scope:      meta.Scope.String(),
			ScopeKind:  string(meta.Scope.Kind),
			StartDate:  meta.Window.StartDate(),
			EndDate:    meta.Window.EndDate(),
			Timezone:   loc.String(),
			Strategy:   meta.Strategy,
			StartedAt:  meta.StartedAt,
			FinishedAt: meta.FinishedAt,
			Partial:    stats.Partial(),
		},
		Statistics: stats,
		TotalHours: toHours(total),
		ByIssue:    make([]IssueSummary, 0, len(byIssue)),
		ByAuthor:   make([]AuthorSummary, 0, len(byAuthor)),
		Entries:    details,
		loc:        loc,
	}

	for _, acc := range byIssue {
		s := acc.summary
		s.Hours = toHours(s.TimeSpentSeconds)
		for _, ah := range acc.authors {
			ah.Hours = toHours(ah.TimeSpentSeconds)
			s.Authors = append(s.Authors, *ah)
		}
		slices.SortFunc(s.Authors, compareAuthorHours)
		r.ByIssue = append(r.ByIssue, s)
	}
	slices.SortFunc(r.ByIssue, func(a, b IssueSummary) int { return CompareIssueKeys(a.Key, b.Key) })

	for id, as := range byAuthor {
		as.Hours = toHours(as.TimeSpentSeconds)
		as.Issues = len(authorIssues[id])
		r.ByAuthor = append(r.ByAuthor, *as)
	}
	slices.SortFunc(r.ByAuthor, func(a, b AuthorSummary) int { return compareAuthorHours(a.AuthorHours, b.AuthorHours) })

	slices.SortFunc(r.Entries, func(a, b Detail) int {
		if c := a.Started.Compare(b.Started); c != 0 {
			return c
		}
		if c := CompareIssueKeys(a.IssueKey, b.IssueKey); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return r
}

// CompareIssueKeys は課題キーをプロジェクトキー、課題番号の順に比較する。
// "ABC-2" は "ABC-10" より前になる。
func CompareIssueKeys(a, b string) int {
	pa, na := splitIssueKey(a)
	pb, nb := splitIssueKey(b)
	if c := cmp.Compare(pa, pb); c != 0 {
		return c
	}
	if c := cmp.Compare(na, nb); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

func splitIssueKey(key string) (string, int) {
	i := strings.LastIndex(key, "-")
	if i < 0 {
		return key, 0
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return key, 0
	}
	return key[:i], n
}

// compareAuthorHours は作業時間の降順、同じ場合は表示名、アカウントIDの順に比較する。
func compareAuthorHours(a, b AuthorHours) int {
	if c := cmp.Compare(b.TimeSpentSeconds, a.TimeSpentSeconds); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DisplayName, b.DisplayName); c != 0 {
		return c
	}
	return cmp.Compare(a.AccountID, b.AccountID)
}

// toHours は秒を時間に変換し、小数第2位に丸める。
func toHours(seconds int64) float64 {
	return math.Round(float64(seconds)/36) / 100
}
