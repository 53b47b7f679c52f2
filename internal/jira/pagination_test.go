package jira

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// cursorPages はサイズ指定のページ列を返すCursorFetcherを生成する。
// 最後のページのみIsLast=trueとなる。
func cursorPages(t *testing.T, sizes []int, calls *int) CursorFetcher[int] {
	t.Helper()
	return func(ctx context.Context, token string, pageSize int) (CursorPage[int], error) {
		i := *calls
		*calls++
		if i >= len(sizes) {
			t.Fatalf("ページ数 %d を超えてリクエストしてはならない", len(sizes))
		}
		want := ""
		if i > 0 {
			want = fmt.Sprintf("token-%d", i)
		}
		if token != want {
			t.Errorf("token = %q, want %q", token, want)
		}
		items := make([]int, sizes[i])
		for j := range items {
			items[j] = i*1000 + j
		}
		return CursorPage[int]{
			Items:     items,
			NextToken: fmt.Sprintf("token-%d", i+1),
			IsLast:    i == len(sizes)-1,
		}, nil
	}
}

func TestWalkCursor_StopsOnIsLast(t *testing.T) {
	var calls int
	res, err := WalkCursor(context.Background(), "search", 100, 0, cursorPages(t, []int{100, 100, 37}, &calls))
	if err != nil {
		t.Fatalf("WalkCursor error: %v", err)
	}
	if calls != 3 {
		t.Errorf("リクエスト数 = %d, want 3", calls)
	}
	if len(res.Items) != 237 {
		t.Errorf("件数 = %d, want 237", len(res.Items))
	}
	if res.Pages != 3 || res.Truncated {
		t.Errorf("Pages = %d, Truncated = %v", res.Pages, res.Truncated)
	}
}

func TestWalkCursor_StopsOnEmptyPage(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, token string, pageSize int) (CursorPage[int], error) {
		calls++
		if calls == 1 {
			return CursorPage[int]{Items: []int{1, 2}, NextToken: "next"}, nil
		}
		return CursorPage[int]{NextToken: "more"}, nil
	}

	res, err := WalkCursor(context.Background(), "search", 2, 0, fetch)
	if err != nil {
		t.Fatalf("WalkCursor error: %v", err)
	}
	if calls != 2 || len(res.Items) != 2 {
		t.Errorf("calls = %d, items = %d", calls, len(res.Items))
	}
}

func TestWalkCursor_RepeatedTokenIsError(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, token string, pageSize int) (CursorPage[int], error) {
		calls++
		if calls > 5 {
			t.Fatal("同じトークンでループしてはならない")
		}
		return CursorPage[int]{Items: []int{calls}, NextToken: "same"}, nil
	}

	_, err := WalkCursor(context.Background(), "search", 1, 0, fetch)
	var pgErr *model.PaginationError
	if !errors.As(err, &pgErr) {
		t.Fatalf("PaginationError を返すべき, got %v", err)
	}
	if pgErr.Token != "same" {
		t.Errorf("Token = %q", pgErr.Token)
	}
	if calls != 2 {
		t.Errorf("リクエスト数 = %d, want 2", calls)
	}
}

func TestWalkCursor_CeilingTruncates(t *testing.T) {
	var calls int
	res, err := WalkCursor(context.Background(), "search", 100, 150, cursorPages(t, []int{100, 100, 37}, &calls))
	if err != nil {
		t.Fatalf("WalkCursor error: %v", err)
	}
	if calls != 2 {
		t.Errorf("上限到達後はリクエストしないべき: calls = %d", calls)
	}
	if len(res.Items) != 150 || !res.Truncated {
		t.Errorf("items = %d, Truncated = %v; want 150, true", len(res.Items), res.Truncated)
	}
}

func TestWalkCursor_CeilingExactlyAtLastPageIsNotTruncated(t *testing.T) {
	var calls int
	res, err := WalkCursor(context.Background(), "search", 100, 237, cursorPages(t, []int{100, 100, 37}, &calls))
	if err != nil {
		t.Fatalf("WalkCursor error: %v", err)
	}
	if len(res.Items) != 237 || res.Truncated {
		t.Errorf("items = %d, Truncated = %v; want 237, false", len(res.Items), res.Truncated)
	}
}

func TestWalkCursor_PropagatesError(t *testing.T) {
	want := &model.RateLimitError{Endpoint: "/search", Attempts: 4}
	fetch := func(ctx context.Context, token string, pageSize int) (CursorPage[int], error) {
		return CursorPage[int]{}, want
	}

	_, err := WalkCursor(context.Background(), "search", 10, 0, fetch)
	if !errors.Is(err, want) {
		t.Fatalf("エラーをそのまま返すべき, got %v", err)
	}
}

// offsetServer は総件数totalをページ上限serverCapで返すOffsetFetcherを生成する。
func offsetServer(total, serverCap int, calls *int) OffsetFetcher[int] {
	return func(ctx context.Context, offset, pageSize int) (OffsetPage[int], error) {
		*calls++
		n := pageSize
		if serverCap > 0 && n > serverCap {
			n = serverCap
		}
		if offset+n > total {
			n = total - offset
		}
		if n < 0 {
			n = 0
		}
		items := make([]int, n)
		for i := range items {
			items[i] = offset + i
		}
		return OffsetPage[int]{Items: items, Total: total, HasTotal: true}, nil
	}
}

func TestWalkOffset_TotalKnown(t *testing.T) {
	calls := 0
	res, err := WalkOffset(context.Background(), 100, 0, offsetServer(250, 0, &calls))
	if err != nil {
		t.Fatalf("WalkOffset error: %v", err)
	}
	if calls != 3 || len(res.Items) != 250 {
		t.Errorf("calls = %d, items = %d; want 3, 250", calls, len(res.Items))
	}
	for i, v := range res.Items {
		if v != i {
			t.Fatalf("順序が崩れている: items[%d] = %d", i, v)
		}
	}
}

func TestWalkOffset_ExactMultipleDoesNotRequestExtraPage(t *testing.T) {
	calls := 0
	res, err := WalkOffset(context.Background(), 100, 0, offsetServer(200, 0, &calls))
	if err != nil {
		t.Fatalf("WalkOffset error: %v", err)
	}
	if calls != 2 || len(res.Items) != 200 {
		t.Errorf("calls = %d, items = %d; want 2, 200", calls, len(res.Items))
	}
}

func TestWalkOffset_ServerCapsPageSize(t *testing.T) {
	calls := 0
	res, err := WalkOffset(context.Background(), 100, 0, offsetServer(120, 50, &calls))
	if err != nil {
		t.Fatalf("WalkOffset error: %v", err)
	}
	if calls != 3 || len(res.Items) != 120 {
		t.Errorf("calls = %d, items = %d; want 3, 120", calls, len(res.Items))
	}
}

func TestWalkOffset_IsLastOnly(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, offset, pageSize int) (OffsetPage[string], error) {
		calls++
		switch offset {
		case 0:
			return OffsetPage[string]{Items: []string{"a", "b"}}, nil
		case 2:
			return OffsetPage[string]{Items: []string{"c", "d"}}, nil
		case 4:
			return OffsetPage[string]{Items: []string{"e"}, IsLast: true}, nil
		}
		t.Fatalf("想定外のoffset: %d", offset)
		return OffsetPage[string]{}, nil
	}

	res, err := WalkOffset(context.Background(), 2, 0, fetch)
	if err != nil {
		t.Fatalf("WalkOffset error: %v", err)
	}
	if calls != 3 || len(res.Items) != 5 {
		t.Errorf("calls = %d, items = %v", calls, res.Items)
	}
}

func TestWalkOffset_CeilingTruncates(t *testing.T) {
	calls := 0
	res, err := WalkOffset(context.Background(), 100, 150, offsetServer(1000, 0, &calls))
	if err != nil {
		t.Fatalf("WalkOffset error: %v", err)
	}
	if calls != 2 || len(res.Items) != 150 || !res.Truncated {
		t.Errorf("calls = %d, items = %d, Truncated = %v", calls, len(res.Items), res.Truncated)
	}
}

func TestWalkOffset_EmptyFirstPage(t *testing.T) {
	calls := 0
	res, err := WalkOffset(context.Background(), 100, 0, offsetServer(0, 0, &calls))
	if err != nil {
		t.Fatalf("WalkOffset error: %v", err)
	}
	if calls != 1 || len(res.Items) != 0 {
		t.Errorf("calls = %d, items = %d", calls, len(res.Items))
	}
}

func TestWalkOffset_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := WalkOffset(ctx, 100, 0, offsetServer(10, 0, &calls))
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}
