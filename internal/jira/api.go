package jira

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/adf"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

const (
	pathMyself      = "/rest/api/3/myself"
	pathUserSearch  = "/rest/api/3/user/search"
	pathGroupMember = "/rest/api/3/group/member"
	pathSearchJQL   = "/rest/api/3/search/jql"

	// searchFields は課題検索で取得するフィールド。
	searchFields = "summary,issuetype,project,status,assignee"
)

// startedLayouts はworklog.startedとして受け入れる書式。
var startedLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
}

// searchResponse は /rest/api/3/search/jql のレスポンス。
type searchResponse struct {
	Issues        []issueDTO `json:"issues"`
	NextPageToken string     `json:"nextPageToken"`
	IsLast        bool       `json:"isLast"`
}

type issueDTO struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary   string `json:"summary"`
		IssueType *struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Project *struct {
			Key string `json:"key"`
		} `json:"project"`
		Status *struct {
			Name string `json:"name"`
		} `json:"status"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
	} `json:"fields"`
}

// worklogResponse は /rest/api/3/issue/{key}/worklog のレスポンス。
type worklogResponse struct {
	StartAt    int          `json:"startAt"`
	MaxResults int          `json:"maxResults"`
	Total      int          `json:"total"`
	Worklogs   []worklogDTO `json:"worklogs"`
}

type worklogDTO struct {
	ID               string          `json:"id"`
	IssueID          string          `json:"issueId"`
	Author           *model.Account  `json:"author"`
	Started          string          `json:"started"`
	TimeSpentSeconds int64           `json:"timeSpentSeconds"`
	Comment          json.RawMessage `json:"comment"`
}

// groupMemberResponse は /rest/api/3/group/member のレスポンス。
type groupMemberResponse struct {
	StartAt    int             `json:"startAt"`
	MaxResults int             `json:"maxResults"`
	Total      int             `json:"total"`
	IsLast     bool            `json:"isLast"`
	Values     []model.Account `json:"values"`
}

// CurrentUser は認証ユーザーのアカウントを取得する。
func (c *Client) CurrentUser(ctx context.Context, stats *model.RunStatistics) (model.Account, error) {
	var acct model.Account
	if err := c.getJSON(ctx, stats, "myself", pathMyself, nil, &acct); err != nil {
		return model.Account{}, err
	}
	return acct, nil
}

// SearchUsers はクエリ（メールアドレスや名前の一部）に一致するユーザー候補を取得する。
func (c *Client) SearchUsers(ctx context.Context, stats *model.RunStatistics, query string) ([]model.Account, error) {
	q := url.Values{}
	q.Set("query", query)
	var accts []model.Account
	if err := c.getJSON(ctx, stats, "user_search", pathUserSearch, q, &accts); err != nil {
		return nil, err
	}
	return accts, nil
}

// GroupMembers はグループの全メンバーをオフセット方式で取得する。
func (c *Client) GroupMembers(ctx context.Context, stats *model.RunStatistics, group string) (PageResult[model.Account], error) {
	return WalkOffset(ctx, c.groupPageSize, 0, func(ctx context.Context, offset, pageSize int) (OffsetPage[model.Account], error) {
		q := url.Values{}
		q.Set("groupname", group)
		q.Set("startAt", strconv.Itoa(offset))
		q.Set("maxResults", strconv.Itoa(pageSize))

		var resp groupMemberResponse
		if err := c.getJSON(ctx, stats, "group_member", pathGroupMember, q, &resp); err != nil {
			return OffsetPage[model.Account]{}, err
		}
		return OffsetPage[model.Account]{Items: resp.Values, IsLast: resp.IsLast}, nil
	})
}

// SearchIssues はJQLに一致する課題を継続トークン方式で取得する。
// MaxIssuesに達した場合は切り詰め、警告を出してTruncatedFetchesを加算する。
func (c *Client) SearchIssues(ctx context.Context, stats *model.RunStatistics, jql string) (PageResult[model.Issue], error) {
	res, err := WalkCursor(ctx, "search", c.searchPageSize, c.maxIssues, func(ctx context.Context, token string, pageSize int) (CursorPage[model.Issue], error) {
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("fields", searchFields)
		q.Set("maxResults", strconv.Itoa(pageSize))
		if token != "" {
			q.Set("nextPageToken", token)
		}

		var resp searchResponse
		if err := c.getJSON(ctx, stats, "search", pathSearchJQL, q, &resp); err != nil {
			return CursorPage[model.Issue]{}, err
		}
		issues := make([]model.Issue, 0, len(resp.Issues))
		for _, dto := range resp.Issues {
			issues = append(issues, dto.toModel())
		}
		return CursorPage[model.Issue]{Items: issues, NextToken: resp.NextPageToken, IsLast: resp.IsLast}, nil
	})
	if err != nil {
		return res, err
	}

	if res.Truncated {
		stats.TruncatedFetches++
		c.logger.Warn("課題検索が取得上限に達したため結果を切り詰めました",
			slog.String("jql", jql),
			slog.Int("max_issues", c.maxIssues),
		)
	}
	return res, nil
}

// IssueWorklogs は課題の全作業ログをオフセット方式で取得する。
// 取得件数をWorklogsFetchedに加算する。
// MaxWorklogsPerIssueに達した場合は切り詰め、警告を出してTruncatedFetchesを加算する。
func (c *Client) IssueWorklogs(ctx context.Context, stats *model.RunStatistics, issueKey string) (PageResult[model.WorklogEntry], error) {
	path := "/rest/api/3/issue/" + url.PathEscape(issueKey) + "/worklog"

	res, err := WalkOffset(ctx, c.worklogPageSize, c.maxWorklogs, func(ctx context.Context, offset, pageSize int) (OffsetPage[model.WorklogEntry], error) {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(offset))
		q.Set("maxResults", strconv.Itoa(pageSize))

		var resp worklogResponse
		if err := c.getJSON(ctx, stats, "worklog", path, q, &resp); err != nil {
			return OffsetPage[model.WorklogEntry]{}, err
		}
		entries := make([]model.WorklogEntry, 0, len(resp.Worklogs))
		for _, dto := range resp.Worklogs {
			entries = append(entries, c.toEntry(issueKey, dto))
		}
		return OffsetPage[model.WorklogEntry]{Items: entries, Total: resp.Total, HasTotal: true}, nil
	})
	stats.WorklogsFetched += len(res.Items)
	if err != nil {
		return res, err
	}

	if res.Truncated {
		stats.TruncatedFetches++
		c.logger.Warn("作業ログが取得上限に達したため結果を切り詰めました",
			slog.String("issue_key", issueKey),
			slog.Int("max_worklogs_per_issue", c.maxWorklogs),
		)
	}
	return res, nil
}

func (dto issueDTO) toModel() model.Issue {
	issue := model.Issue{
		Key:     dto.Key,
		Summary: dto.Fields.Summary,
	}
	if dto.Fields.IssueType != nil {
		issue.Type = dto.Fields.IssueType.Name
	}
	if dto.Fields.Project != nil {
		issue.ProjectKey = dto.Fields.Project.Key
	}
	if dto.Fields.Status != nil {
		issue.Status = dto.Fields.Status.Name
	}
	if dto.Fields.Assignee != nil {
		issue.Assignee = dto.Fields.Assignee.DisplayName
	}
	return issue
}

func (c *Client) toEntry(issueKey string, dto worklogDTO) model.WorklogEntry {
	entry := model.WorklogEntry{
		ID:               dto.ID,
		IssueKey:         issueKey,
		TimeSpentSeconds: dto.TimeSpentSeconds,
	}
	if entry.TimeSpentSeconds < 0 {
		entry.TimeSpentSeconds = 0
	}
	if dto.Author != nil {
		entry.AuthorAccountID = dto.Author.AccountID
		entry.AuthorDisplayName = dto.Author.DisplayName
		entry.AuthorEmail = dto.Author.EmailAddress
	}

	started, ok := parseStarted(dto.Started)
	if !ok {
		c.logger.Warn("作業ログの開始日時を解釈できません",
			slog.String("issue_key", issueKey),
			slog.String("worklog_id", dto.ID),
			slog.String("started", dto.Started),
		)
	}
	entry.Started = started

	comment, err := adf.FlattenRaw(dto.Comment)
	if err != nil {
		c.logger.Warn("作業ログのコメントを解釈できません",
			slog.String("issue_key", issueKey),
			slog.String("worklog_id", dto.ID),
			slog.String("error", err.Error()),
		)
	}
	if c.sanitizer != nil && adf.IsPlainString(dto.Comment) {
		comment = c.sanitizer.Sanitize(comment)
	}
	entry.Comment = comment

	return entry
}

func parseStarted(s string) (time.Time, bool) {
	for _, layout := range startedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
