package scope

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// Strategy は課題探索の検索戦略。精度の高い順に試行する。
type Strategy int

const (
	// StrategyQuery は利用者指定のJQLをそのまま使う（Queryスコープ）。
	StrategyQuery Strategy = iota
	// StrategyWorklogDateAndAuthor は作業日と作業者の両方で絞り込む。
	StrategyWorklogDateAndAuthor
	// StrategyAuthorOnly は作業者のみで絞り込む。worklogDate条件は環境によって不正確なため外す。
	StrategyAuthorOnly
	// StrategyUpdatedInWindow は期間内に更新された課題すべてを対象にする。作業者条件なし。
	StrategyUpdatedInWindow
)

func (s Strategy) String() string {
	switch s {
	case StrategyQuery:
		return "query"
	case StrategyWorklogDateAndAuthor:
		return "worklog_date_and_author"
	case StrategyAuthorOnly:
		return "author_only"
	case StrategyUpdatedInWindow:
		return "updated_in_window"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

const orderClause = " ORDER BY updated DESC"

// BuildStrategyJQL は戦略ごとの検索JQLを組み立てる。
// 同じ入力に対して常に同じ文字列を返す。
func BuildStrategyJQL(s Strategy, identities model.IdentitySet, window model.DateWindow) string {
	switch s {
	case StrategyWorklogDateAndAuthor:
		return fmt.Sprintf("worklogDate >= %s AND worklogDate <= %s AND worklogAuthor in (%s)%s",
			quote(window.StartDate()), quote(window.EndDate()), accountList(identities), orderClause)
	case StrategyAuthorOnly:
		return fmt.Sprintf("worklogAuthor in (%s)%s", accountList(identities), orderClause)
	case StrategyUpdatedInWindow:
		return updatedCondition(window) + orderClause
	default:
		return ""
	}
}

var (
	// dateConstraint はworklogDateまたはupdatedを演算子で絞り込む条件に一致する。
	dateConstraint = regexp.MustCompile(`(?i)\b(worklogDate|updatedDate|updated)\s*(>=|<=|!=|>|<|=|\bnot\s+in\b|\bin\b)`)
	orderByClause  = regexp.MustCompile(`(?i)\border\s+by\b`)
)

// ComposeQueryJQL は利用者指定のJQLに期間条件を付け加える。
// JQLがすでにworklogDateまたはupdatedで絞り込んでいる場合はそのまま返す。
// ORDER BY句がある場合は条件をその前に挿入する。
func ComposeQueryJQL(base string, window model.DateWindow) string {
	base = strings.TrimSpace(base)
	if dateConstraint.MatchString(stripStringLiterals(base)) {
		return base
	}

	condition := fmt.Sprintf("worklogDate >= %s AND worklogDate <= %s", quote(window.StartDate()), quote(window.EndDate()))

	filter, order := base, ""
	if loc := orderByClause.FindStringIndex(stripStringLiterals(base)); loc != nil {
		filter = strings.TrimSpace(base[:loc[0]])
		order = " " + strings.TrimSpace(base[loc[0]:])
	}
	if filter == "" {
		return condition + order
	}
	return fmt.Sprintf("(%s) AND (%s)%s", filter, condition, order)
}

// stripStringLiterals は引用符で囲まれた文字列リテラルの中身を空白に置き換える。
// バイト長は変えないため、結果の位置はそのまま元の文字列に使える。
func stripStringLiterals(jql string) string {
	b := []byte(jql)
	var quoteChar byte
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case quoteChar == 0 && (c == '"' || c == '\''):
			quoteChar = c
		case quoteChar != 0 && c == '\\' && i+1 < len(b):
			b[i], b[i+1] = ' ', ' '
			i++
		case quoteChar != 0 && c == quoteChar:
			quoteChar = 0
		case quoteChar != 0:
			b[i] = ' '
		}
	}
	return string(b)
}

// updatedCondition は期間内に更新された課題を表す条件を返す。
// updatedは日時のため、終了日の翌日0時未満で区切る。
func updatedCondition(window model.DateWindow) string {
	next := window.End.AddDate(0, 0, 1).Format(model.DateLayout)
	return fmt.Sprintf("updated >= %s AND updated < %s", quote(window.StartDate()), quote(next))
}

func accountList(identities model.IdentitySet) string {
	ids := identities.Sorted()
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quote(id)
	}
	return strings.Join(quoted, ", ")
}

// quote はJQLの文字列リテラルを返す。
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
