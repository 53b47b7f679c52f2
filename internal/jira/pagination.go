package jira

import (
	"context"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// PageResult はページ走査の結果。
type PageResult[T any] struct {
	Items []T
	// Pages は実際に発行したページ取得の回数。
	Pages int
	// Truncated は上限に達したため、未取得のデータが残っている可能性があることを示す。
	Truncated bool
}

// CursorPage は継続トークン方式の1ページ。
type CursorPage[T any] struct {
	Items     []T
	NextToken string
	IsLast    bool
}

// CursorFetcher はtokenで指定したページを取得する。初回のtokenは空文字。
type CursorFetcher[T any] func(ctx context.Context, token string, pageSize int) (CursorPage[T], error)

// WalkCursor は継続トークン方式のページを順に取得する。
// IsLastがtrue、ページが空、または継続トークンがない場合に終了する。
// maxItemsを超える場合は切り詰めてTruncatedを立てる（0は無制限）。
// 同じ継続トークンが2回返された場合は*model.PaginationErrorを返す。
func WalkCursor[T any](ctx context.Context, resource string, pageSize, maxItems int, fetch CursorFetcher[T]) (PageResult[T], error) {
	var res PageResult[T]
	seen := make(map[string]struct{})
	token := ""

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := fetch(ctx, token, pageSize)
		if err != nil {
			return res, err
		}
		res.Pages++

		if len(page.Items) == 0 {
			return res, nil
		}
		res.Items = append(res.Items, page.Items...)

		last := page.IsLast || page.NextToken == ""
		if maxItems > 0 && len(res.Items) >= maxItems {
			res.Truncated = len(res.Items) > maxItems || !last
			res.Items = res.Items[:maxItems]
			return res, nil
		}
		if last {
			return res, nil
		}

		if _, dup := seen[page.NextToken]; dup || page.NextToken == token {
			return res, &model.PaginationError{Resource: resource, Token: page.NextToken}
		}
		seen[page.NextToken] = struct{}{}
		token = page.NextToken
	}
}

// OffsetPage はオフセット方式の1ページ。
// 総件数を返すAPIはHasTotal=trueとし、IsLastのみを返すAPIはIsLastを設定する。
type OffsetPage[T any] struct {
	Items    []T
	Total    int
	HasTotal bool
	IsLast   bool
}

// OffsetFetcher はoffsetから始まるページを取得する。
type OffsetFetcher[T any] func(ctx context.Context, offset, pageSize int) (OffsetPage[T], error)

// WalkOffset はオフセット方式のページを順に取得する。
// 取得件数だけoffsetを進め、offsetが総件数に達するか、IsLastがtrue、または
// ページが空の場合に終了する。サーバーが1ページの件数を要求より小さく
// 制限した場合でも総件数に達するまで取得を続ける。
// maxItemsを超える場合は切り詰めてTruncatedを立てる（0は無制限）。
func WalkOffset[T any](ctx context.Context, pageSize, maxItems int, fetch OffsetFetcher[T]) (PageResult[T], error) {
	var res PageResult[T]
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := fetch(ctx, offset, pageSize)
		if err != nil {
			return res, err
		}
		res.Pages++

		if len(page.Items) == 0 {
			return res, nil
		}
		res.Items = append(res.Items, page.Items...)
		offset += len(page.Items)

		last := page.IsLast || (page.HasTotal && offset >= page.Total)
		if maxItems > 0 && len(res.Items) >= maxItems {
			res.Truncated = len(res.Items) > maxItems || !last
			res.Items = res.Items[:maxItems]
			return res, nil
		}
		if last {
			return res, nil
		}
	}
}
