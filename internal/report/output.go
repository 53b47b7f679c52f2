package report

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName は出力ファイル名を返す。同じ入力からは常に同じ名前になる。
// 例: worklog_developers_2025-09-01_2025-09-30.xlsx
func FileName(prefix string, sel model.ScopeSelector, window model.DateWindow, ext string) string {
	label := unsafeFileChars.ReplaceAllString(sel.Label(), "_")
	label = strings.Trim(label, "_")
	if label == "" {
		label = string(sel.Kind)
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", prefix, label, window.StartDate(), window.EndDate(), strings.TrimPrefix(ext, "."))
}

// WriteJSON はレポートをJSONで書き出す。
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("レポートのJSON出力に失敗しました: %w", err)
	}
	return nil
}

// PrintSummary はコンソール向けの実行サマリを書き出す。
// rがnilの場合（途中で中断した場合など）は統計のみを書き出す。
func PrintSummary(w io.Writer, stats model.RunStatistics, r *Report) {
	fmt.Fprintln(w, "==== 作業ログ抽出サマリ ====")
	if r != nil {
		fmt.Fprintf(w, "スコープ      : %s\n", r.Meta.Scope)
		fmt.Fprintf(w, "期間          : %s .. %s (%s)\n", r.Meta.StartDate, r.Meta.EndDate, r.Meta.Timezone)
		if r.Meta.Strategy != "" {
			fmt.Fprintf(w, "検索戦略      : %s\n", r.Meta.Strategy)
		}
	}
	fmt.Fprintf(w, "API呼び出し   : %d (リトライ %d)\n", stats.APICalls, stats.Retries)
	fmt.Fprintf(w, "課題          : %d\n", stats.IssuesFetched)
	fmt.Fprintf(w, "作業ログ      : %d 件取得 / %d 件一致\n", stats.WorklogsFetched, stats.WorklogsMatched)
	fmt.Fprintf(w, "合計時間      : %.2f h\n", toHours(stats.TimeSpentSeconds))
	if r != nil && len(r.ByAuthor) > 0 {
		fmt.Fprintln(w, "作業者別:")
		for _, a := range r.ByAuthor {
			fmt.Fprintf(w, "  %-24s %8.2f h (%d 件, %d 課題)\n", displayName(a.AuthorHours), a.Hours, a.Entries, a.Issues)
		}
	}
	if stats.Partial() {
		fmt.Fprintf(w, "警告          : データが不完全な可能性があります（打ち切り %d, 失敗した課題 %d）\n",
			stats.TruncatedFetches, stats.FailedIssues)
	}
}

func displayName(a AuthorHours) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.AccountID
}
