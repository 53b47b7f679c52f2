// Package scope はスコープセレクタを作業者のアカウントID集合に解決し、
// 作業ログを取得する候補課題を探索する。
package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/jira"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// Directory はユーザーとグループの参照のインターフェース。
// *jira.Client が実装する。テスト時にモックに差し替え可能。
type Directory interface {
	CurrentUser(ctx context.Context, stats *model.RunStatistics) (model.Account, error)
	SearchUsers(ctx context.Context, stats *model.RunStatistics, query string) ([]model.Account, error)
	GroupMembers(ctx context.Context, stats *model.RunStatistics, group string) (jira.PageResult[model.Account], error)
}

// Resolution はスコープ解決の結果。
type Resolution struct {
	// Identities は作業者として認めるアカウントIDの集合。
	// Queryスコープではnilとなり、作業者の検査を行わない。
	Identities model.IdentitySet
	// Accounts は解決されたアカウント。レポートやログの表示に使う。
	Accounts []model.Account
}

// ChecksAuthor は照合フィルタで作業者を検査するかを返す。
func (r Resolution) ChecksAuthor() bool {
	return r.Identities != nil
}

// Resolver はスコープセレクタを解決する。
type Resolver struct {
	directory Directory
	logger    *slog.Logger
}

// NewResolver はResolverの新しいインスタンスを生成する。
func NewResolver(directory Directory, logger *slog.Logger) *Resolver {
	return &Resolver{directory: directory, logger: logger}
}

// Resolve はセレクタを作業者のアカウントID集合に解決する。
// 対象のユーザーやグループが存在しない場合は*model.NotFoundErrorを返す。
func (r *Resolver) Resolve(ctx context.Context, stats *model.RunStatistics, sel model.ScopeSelector) (Resolution, error) {
	if err := sel.Validate(); err != nil {
		return Resolution{}, err
	}

	if !sel.ChecksAuthor() {
		r.logger.Info("JQLスコープのため作業者の解決を省略します")
		return Resolution{}, nil
	}

	switch sel.Kind {
	case model.ScopeKindSpecificUser:
		return r.resolveUser(ctx, stats, sel.Value)
	case model.ScopeKindCurrentUser:
		return r.resolveCurrentUser(ctx, stats)
	case model.ScopeKindGroup:
		return r.resolveGroup(ctx, stats, sel.Value)
	default:
		return Resolution{}, model.NewConfigurationError(fmt.Sprintf("未知のスコープ種別です: %q", sel.Kind))
	}
}

// resolveUser はメールアドレスに完全一致（大文字小文字は区別しない）するユーザーを探す。
// 検索APIは部分一致の候補を返すため、候補の中から完全一致のみを採用する。
func (r *Resolver) resolveUser(ctx context.Context, stats *model.RunStatistics, email string) (Resolution, error) {
	candidates, err := r.directory.SearchUsers(ctx, stats, email)
	if err != nil {
		return Resolution{}, fmt.Errorf("ユーザー検索に失敗しました: %w", err)
	}

	for _, acct := range candidates {
		if strings.EqualFold(strings.TrimSpace(acct.EmailAddress), strings.TrimSpace(email)) {
			r.logger.Info("対象ユーザーを解決しました",
				slog.String("account_id", acct.AccountID),
				slog.String("display_name", acct.DisplayName),
			)
			return Resolution{
				Identities: model.NewIdentitySet(acct.AccountID),
				Accounts:   []model.Account{acct},
			}, nil
		}
	}

	r.logger.Error("メールアドレスに一致するユーザーが見つかりません",
		slog.String("email", email),
		slog.Int("candidates", len(candidates)),
	)
	return Resolution{}, &model.NotFoundError{Kind: "user", Key: email}
}

func (r *Resolver) resolveCurrentUser(ctx context.Context, stats *model.RunStatistics) (Resolution, error) {
	acct, err := r.directory.CurrentUser(ctx, stats)
	if err != nil {
		return Resolution{}, fmt.Errorf("認証ユーザーの取得に失敗しました: %w", err)
	}
	r.logger.Info("認証ユーザーを解決しました",
		slog.String("account_id", acct.AccountID),
		slog.String("display_name", acct.DisplayName),
	)
	return Resolution{
		Identities: model.NewIdentitySet(acct.AccountID),
		Accounts:   []model.Account{acct},
	}, nil
}

// resolveGroup はグループの全メンバーを解決する。メンバーが0人の場合は空集合を返す。
func (r *Resolver) resolveGroup(ctx context.Context, stats *model.RunStatistics, group string) (Resolution, error) {
	res, err := r.directory.GroupMembers(ctx, stats, group)
	if err != nil {
		var nfErr *model.NotFoundError
		if errors.As(err, &nfErr) {
			return Resolution{}, &model.NotFoundError{Kind: "group", Key: group}
		}
		return Resolution{}, fmt.Errorf("グループメンバーの取得に失敗しました: %w", err)
	}

	ids := model.NewIdentitySet()
	for _, acct := range res.Items {
		ids.Add(acct.AccountID)
	}

	if ids.Len() == 0 {
		r.logger.Warn("グループにメンバーがいません", slog.String("group", group))
	} else {
		r.logger.Info("グループメンバーを解決しました",
			slog.String("group", group),
			slog.Int("members", ids.Len()),
			slog.Int("pages", res.Pages),
		)
	}

	return Resolution{Identities: ids, Accounts: res.Items}, nil
}
