package model

// RunStatistics は実行中に単調増加するカウンタの集合。
// グローバル変数にせず、各処理段に明示的に渡して最後に合算する。
// 1回の実行は単一goroutineで進むため同期は不要。
type RunStatistics struct {
	APICalls         int   `json:"api_calls"`
	IssuesFetched    int   `json:"issues_fetched"`
	WorklogsFetched  int   `json:"worklogs_fetched"`
	WorklogsMatched  int   `json:"worklogs_matched"`
	TimeSpentSeconds int64 `json:"time_spent_seconds"`
	Retries          int   `json:"retries"`
	TruncatedFetches int   `json:"truncated_fetches"`
	FailedIssues     int   `json:"failed_issues"`
}

// Merge はotherのカウンタを加算する。
func (s *RunStatistics) Merge(other RunStatistics) {
	s.APICalls += other.APICalls
	s.IssuesFetched += other.IssuesFetched
	s.WorklogsFetched += other.WorklogsFetched
	s.WorklogsMatched += other.WorklogsMatched
	s.TimeSpentSeconds += other.TimeSpentSeconds
	s.Retries += other.Retries
	s.TruncatedFetches += other.TruncatedFetches
	s.FailedIssues += other.FailedIssues
}

// TotalHours は一致した作業ログの合計時間を時間単位で返す。
func (s RunStatistics) TotalHours() float64 {
	return float64(s.TimeSpentSeconds) / 3600
}

// Partial はデータの一部が欠けている（上限による打ち切りや課題単位の失敗がある）かを返す。
func (s RunStatistics) Partial() bool {
	return s.TruncatedFetches > 0 || s.FailedIssues > 0
}
