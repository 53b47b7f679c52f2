package scope

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/jira"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockDirectory はDirectoryのモック。
type mockDirectory struct {
	currentUserFn  func(ctx context.Context, stats *model.RunStatistics) (model.Account, error)
	searchUsersFn  func(ctx context.Context, stats *model.RunStatistics, query string) ([]model.Account, error)
	groupMembersFn func(ctx context.Context, stats *model.RunStatistics, group string) (jira.PageResult[model.Account], error)
}

func (m *mockDirectory) CurrentUser(ctx context.Context, stats *model.RunStatistics) (model.Account, error) {
	stats.APICalls++
	return m.currentUserFn(ctx, stats)
}

func (m *mockDirectory) SearchUsers(ctx context.Context, stats *model.RunStatistics, query string) ([]model.Account, error) {
	stats.APICalls++
	return m.searchUsersFn(ctx, stats, query)
}

func (m *mockDirectory) GroupMembers(ctx context.Context, stats *model.RunStatistics, group string) (jira.PageResult[model.Account], error) {
	stats.APICalls++
	return m.groupMembersFn(ctx, stats, group)
}

// mockSearcher はIssueSearcherのモック。受け取ったJQLを記録する。
type mockSearcher struct {
	searchFn func(jql string) (jira.PageResult[model.Issue], error)
	jqls     []string
}

func (m *mockSearcher) SearchIssues(ctx context.Context, stats *model.RunStatistics, jql string) (jira.PageResult[model.Issue], error) {
	m.jqls = append(m.jqls, jql)
	stats.APICalls++
	return m.searchFn(jql)
}

func testWindow(t *testing.T) model.DateWindow {
	t.Helper()
	w, err := model.ParseDateWindow("2025-09-01", "2025-09-30", nil)
	if err != nil {
		t.Fatalf("ParseDateWindow error: %v", err)
	}
	return w
}

// --- Resolver ---

func TestResolve_SpecificUser_ExactEmailMatch(t *testing.T) {
	dir := &mockDirectory{
		searchUsersFn: func(ctx context.Context, stats *model.RunStatistics, query string) ([]model.Account, error) {
			return []model.Account{
				{AccountID: "a0", EmailAddress: "alice.smith@example.com"},
				{AccountID: "a1", EmailAddress: "Alice@Example.com"},
			}, nil
		},
	}
	var buf bytes.Buffer
	r := NewResolver(dir, newTestLogger(&buf))

	var stats model.RunStatistics
	res, err := r.Resolve(context.Background(), &stats, model.SpecificUser("alice@example.com"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if res.Identities.Len() != 1 || !res.Identities.Has("a1") {
		t.Errorf("Identities = %v, want {a1}", res.Identities.Sorted())
	}
	if !res.ChecksAuthor() {
		t.Error("ユーザースコープは作業者を検査するべき")
	}
}

func TestResolve_SpecificUser_NoExactMatch(t *testing.T) {
	dir := &mockDirectory{
		searchUsersFn: func(ctx context.Context, stats *model.RunStatistics, query string) ([]model.Account, error) {
			return []model.Account{{AccountID: "a0", EmailAddress: "alice.smith@example.com"}}, nil
		},
	}
	var buf bytes.Buffer
	r := NewResolver(dir, newTestLogger(&buf))

	var stats model.RunStatistics
	_, err := r.Resolve(context.Background(), &stats, model.SpecificUser("alice@example.com"))

	var nfErr *model.NotFoundError
	if !errors.As(err, &nfErr) || nfErr.Kind != "user" {
		t.Fatalf("NotFoundError{user} を返すべき, got %v", err)
	}
}

func TestResolve_CurrentUser_SingleCall(t *testing.T) {
	dir := &mockDirectory{
		currentUserFn: func(ctx context.Context, stats *model.RunStatistics) (model.Account, error) {
			return model.Account{AccountID: "me", DisplayName: "Me"}, nil
		},
	}
	var buf bytes.Buffer
	r := NewResolver(dir, newTestLogger(&buf))

	var stats model.RunStatistics
	res, err := r.Resolve(context.Background(), &stats, model.CurrentUser())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !res.Identities.Has("me") || stats.APICalls != 1 {
		t.Errorf("Identities = %v, APICalls = %d", res.Identities.Sorted(), stats.APICalls)
	}
}

func TestResolve_Group_NotFound(t *testing.T) {
	dir := &mockDirectory{
		groupMembersFn: func(ctx context.Context, stats *model.RunStatistics, group string) (jira.PageResult[model.Account], error) {
			return jira.PageResult[model.Account]{}, &model.NotFoundError{Kind: "endpoint", Key: "/rest/api/3/group/member"}
		},
	}
	var buf bytes.Buffer
	r := NewResolver(dir, newTestLogger(&buf))

	var stats model.RunStatistics
	_, err := r.Resolve(context.Background(), &stats, model.Group("ghosts"))

	var nfErr *model.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("NotFoundError を返すべき, got %v", err)
	}
	if nfErr.Kind != "group" || nfErr.Key != "ghosts" {
		t.Errorf("NotFoundError = %+v, want group/ghosts", nfErr)
	}
}

func TestResolve_Group_EmptyIsNotError(t *testing.T) {
	dir := &mockDirectory{
		groupMembersFn: func(ctx context.Context, stats *model.RunStatistics, group string) (jira.PageResult[model.Account], error) {
			return jira.PageResult[model.Account]{Pages: 1}, nil
		},
	}
	var buf bytes.Buffer
	r := NewResolver(dir, newTestLogger(&buf))

	var stats model.RunStatistics
	res, err := r.Resolve(context.Background(), &stats, model.Group("empty"))
	if err != nil {
		t.Fatalf("空のグループはエラーにならないべき, got %v", err)
	}
	if res.Identities == nil || res.Identities.Len() != 0 {
		t.Errorf("空の集合を返すべき, got %v", res.Identities)
	}
	if !res.ChecksAuthor() {
		t.Error("空のグループでも作業者を検査するべき")
	}
}

func TestResolve_Query_NoIdentities(t *testing.T) {
	var buf bytes.Buffer
	r := NewResolver(&mockDirectory{}, newTestLogger(&buf))

	var stats model.RunStatistics
	res, err := r.Resolve(context.Background(), &stats, model.Query("project = ABC"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if res.Identities != nil || res.ChecksAuthor() {
		t.Error("Queryスコープは作業者集合を解決しないべき")
	}
	if stats.APICalls != 0 {
		t.Errorf("APICalls = %d, want 0", stats.APICalls)
	}
}

func TestResolve_InvalidSelector(t *testing.T) {
	var buf bytes.Buffer
	r := NewResolver(&mockDirectory{}, newTestLogger(&buf))

	var stats model.RunStatistics
	_, err := r.Resolve(context.Background(), &stats, model.SpecificUser("no-at-sign"))
	var cfgErr *model.ConfigurationError
	if !errors.As(err, &cfgErr) || stats.APICalls != 0 {
		t.Fatalf("ネットワーク呼び出し前に ConfigurationError を返すべき, got %v (APICalls=%d)", err, stats.APICalls)
	}
}

// --- Discoverer ---

func issues(keys ...string) jira.PageResult[model.Issue] {
	res := jira.PageResult[model.Issue]{Pages: 1}
	for _, k := range keys {
		res.Items = append(res.Items, model.Issue{Key: k})
	}
	return res
}

func TestDiscover_FallsBackToStrategy2AndNeverCalls3(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.searchFn = func(jql string) (jira.PageResult[model.Issue], error) {
		switch len(searcher.jqls) {
		case 1:
			return issues(), nil
		case 2:
			return issues("ABC-1", "ABC-2", "ABC-3"), nil
		default:
			t.Fatalf("戦略3は呼ばれてはならない: %s", jql)
			return issues(), nil
		}
	}
	var buf bytes.Buffer
	d := NewDiscoverer(searcher, newTestLogger(&buf))

	res := Resolution{Identities: model.NewIdentitySet("a1", "a2")}
	var stats model.RunStatistics
	got, err := d.Discover(context.Background(), &stats, model.Group("X"), res, testWindow(t))
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if got.Strategy != StrategyAuthorOnly {
		t.Errorf("Strategy = %v, want %v", got.Strategy, StrategyAuthorOnly)
	}
	if len(got.Issues) != 3 {
		t.Errorf("件数 = %d, want 3", len(got.Issues))
	}
	if len(searcher.jqls) != 2 {
		t.Errorf("検索回数 = %d, want 2", len(searcher.jqls))
	}
	if stats.IssuesFetched != 3 {
		t.Errorf("IssuesFetched = %d, want 3", stats.IssuesFetched)
	}
	if !strings.Contains(searcher.jqls[0], "worklogDate") || strings.Contains(searcher.jqls[1], "worklogDate") {
		t.Errorf("戦略1は日付条件を含み、戦略2は含まないべき: %v", searcher.jqls)
	}
}

func TestDiscover_FirstNonEmptyWins(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.searchFn = func(jql string) (jira.PageResult[model.Issue], error) {
		return issues("ABC-9"), nil
	}
	var buf bytes.Buffer
	d := NewDiscoverer(searcher, newTestLogger(&buf))

	var stats model.RunStatistics
	got, err := d.Discover(context.Background(), &stats, model.CurrentUser(), Resolution{Identities: model.NewIdentitySet("me")}, testWindow(t))
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if got.Strategy != StrategyWorklogDateAndAuthor || len(searcher.jqls) != 1 {
		t.Errorf("Strategy = %v, 検索回数 = %d", got.Strategy, len(searcher.jqls))
	}
}

func TestDiscover_AllEmpty(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.searchFn = func(jql string) (jira.PageResult[model.Issue], error) {
		return issues(), nil
	}
	var buf bytes.Buffer
	d := NewDiscoverer(searcher, newTestLogger(&buf))

	var stats model.RunStatistics
	got, err := d.Discover(context.Background(), &stats, model.CurrentUser(), Resolution{Identities: model.NewIdentitySet("me")}, testWindow(t))
	if err != nil {
		t.Fatalf("結果なしはエラーにならないべき, got %v", err)
	}
	if len(got.Issues) != 0 || len(searcher.jqls) != 3 {
		t.Errorf("issues = %d, 検索回数 = %d", len(got.Issues), len(searcher.jqls))
	}
}

func TestDiscover_EmptyIdentitiesSkipsAuthorStrategies(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.searchFn = func(jql string) (jira.PageResult[model.Issue], error) {
		return issues("ABC-1"), nil
	}
	var buf bytes.Buffer
	d := NewDiscoverer(searcher, newTestLogger(&buf))

	var stats model.RunStatistics
	got, err := d.Discover(context.Background(), &stats, model.Group("empty"), Resolution{Identities: model.NewIdentitySet()}, testWindow(t))
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	if got.Strategy != StrategyUpdatedInWindow || len(searcher.jqls) != 1 {
		t.Errorf("Strategy = %v, jqls = %v", got.Strategy, searcher.jqls)
	}
	if strings.Contains(searcher.jqls[0], "worklogAuthor") {
		t.Errorf("作業者条件を含んではならない: %s", searcher.jqls[0])
	}
}

func TestDiscover_QueryScopeRunsComposedJQL(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.searchFn = func(jql string) (jira.PageResult[model.Issue], error) {
		return issues(), nil
	}
	var buf bytes.Buffer
	d := NewDiscoverer(searcher, newTestLogger(&buf))

	var stats model.RunStatistics
	got, err := d.Discover(context.Background(), &stats, model.Query("project = ABC ORDER BY key"), Resolution{}, testWindow(t))
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	want := `(project = ABC) AND (worklogDate >= "2025-09-01" AND worklogDate <= "2025-09-30") ORDER BY key`
	if len(searcher.jqls) != 1 || searcher.jqls[0] != want {
		t.Errorf("jqls = %v, want [%s]", searcher.jqls, want)
	}
	if got.Strategy != StrategyQuery {
		t.Errorf("Strategy = %v", got.Strategy)
	}
}

func TestDiscover_SearchErrorIsWrapped(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.searchFn = func(jql string) (jira.PageResult[model.Issue], error) {
		return jira.PageResult[model.Issue]{}, &model.RateLimitError{Endpoint: "/search", Attempts: 4}
	}
	var buf bytes.Buffer
	d := NewDiscoverer(searcher, newTestLogger(&buf))

	var stats model.RunStatistics
	_, err := d.Discover(context.Background(), &stats, model.CurrentUser(), Resolution{Identities: model.NewIdentitySet("me")}, testWindow(t))
	var rateErr *model.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("RateLimitError を返すべき, got %v", err)
	}
}

func TestDiscover_SplitsLargeAuthorSet(t *testing.T) {
	searcher := &mockSearcher{}
	searcher.searchFn = func(jql string) (jira.PageResult[model.Issue], error) {
		// 戦略1は空、戦略2はサブクエリごとに重複を含む結果を返す
		if strings.Contains(jql, "worklogDate") {
			return issues(), nil
		}
		switch {
		case strings.Contains(jql, `"a1"`):
			return issues("ABC-1", "ABC-2"), nil
		case strings.Contains(jql, `"a3"`):
			return issues("ABC-2", "ABC-3"), nil
		default:
			return issues(), nil
		}
	}
	var buf bytes.Buffer
	d := NewDiscoverer(searcher, newTestLogger(&buf))
	d.authorsPerQuery = 2

	res := Resolution{Identities: model.NewIdentitySet("a1", "a2", "a3", "a4", "a5")}
	var stats model.RunStatistics
	got, err := d.Discover(context.Background(), &stats, model.Group("big"), res, testWindow(t))
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}

	// 戦略1と戦略2でそれぞれ3回（2人 + 2人 + 1人）
	if len(searcher.jqls) != 6 {
		t.Fatalf("検索回数 = %d, want 6: %v", len(searcher.jqls), searcher.jqls)
	}
	covered := map[string]int{}
	for _, jql := range searcher.jqls[3:] {
		n := strings.Count(jql, `"a`)
		if n > 2 {
			t.Errorf("1回の検索に含める作業者は2人までであるべき: %s", jql)
		}
		for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
			if strings.Contains(jql, `"`+id+`"`) {
				covered[id]++
			}
		}
	}
	if len(covered) != 5 {
		t.Errorf("すべての作業者がいずれかの検索に含まれるべき: %v", covered)
	}

	if got.Strategy != StrategyAuthorOnly || got.Queries != 3 {
		t.Errorf("Strategy = %v, Queries = %d", got.Strategy, got.Queries)
	}
	var keys []string
	for _, is := range got.Issues {
		keys = append(keys, is.Key)
	}
	if strings.Join(keys, ",") != "ABC-1,ABC-2,ABC-3" {
		t.Errorf("課題 = %v, want 重複を除いた ABC-1,ABC-2,ABC-3", keys)
	}
	if stats.IssuesFetched != 3 {
		t.Errorf("IssuesFetched = %d, want 3", stats.IssuesFetched)
	}
}

func TestSplitIDs(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{5, 2, []int{2, 2, 1}},
		{4, 2, []int{2, 2}},
		{3, 50, []int{3}},
		{3, 0, []int{3}},
	}
	for _, tt := range tests {
		ids := make([]string, tt.n)
		for i := range ids {
			ids[i] = string(rune('a' + i))
		}
		groups := splitIDs(ids, tt.size)
		var got []int
		for _, g := range groups {
			got = append(got, len(g))
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("splitIDs(%d件, %d) = %v, want %v", tt.n, tt.size, got, tt.want)
		}
	}
}
