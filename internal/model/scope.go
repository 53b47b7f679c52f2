package model

import (
	"fmt"
	"slices"
	"strings"
)

// ScopeKind はスコープセレクタの種類。
type ScopeKind string

const (
	// ScopeKindSpecificUser はメールアドレスで指定した1ユーザーの作業ログを対象とする。
	ScopeKindSpecificUser ScopeKind = "user"
	// ScopeKindCurrentUser は認証ユーザー自身の作業ログを対象とする。
	ScopeKindCurrentUser ScopeKind = "current_user"
	// ScopeKindGroup はグループメンバー全員の作業ログを対象とする。
	ScopeKindGroup ScopeKind = "group"
	// ScopeKindQuery は任意のJQLで選択した課題の作業ログを対象とする。
	ScopeKindQuery ScopeKind = "query"
)

// ScopeSelector は1回の実行で作業ログを取得する範囲を表す。
// Kindに応じてValueの意味が変わる（メールアドレス、グループ名、JQL）。
// CurrentUserの場合Valueは空。
type ScopeSelector struct {
	Kind  ScopeKind
	Value string
}

// SpecificUser はメールアドレス指定のセレクタを返す。
func SpecificUser(email string) ScopeSelector {
	return ScopeSelector{Kind: ScopeKindSpecificUser, Value: email}
}

// CurrentUser は認証ユーザー自身のセレクタを返す。
func CurrentUser() ScopeSelector {
	return ScopeSelector{Kind: ScopeKindCurrentUser}
}

// Group はグループ指定のセレクタを返す。
func Group(name string) ScopeSelector {
	return ScopeSelector{Kind: ScopeKindGroup, Value: name}
}

// Query はJQL指定のセレクタを返す。
func Query(jql string) ScopeSelector {
	return ScopeSelector{Kind: ScopeKindQuery, Value: jql}
}

// Validate はセレクタの値が種類に対して妥当かを検証する。
func (s ScopeSelector) Validate() error {
	switch s.Kind {
	case ScopeKindCurrentUser:
		return nil
	case ScopeKindSpecificUser:
		if !strings.Contains(s.Value, "@") {
			return NewConfigurationError(fmt.Sprintf("対象ユーザーのメールアドレスが不正です: %q", s.Value))
		}
	case ScopeKindGroup:
		if strings.TrimSpace(s.Value) == "" {
			return NewConfigurationError("グループ名が空です")
		}
	case ScopeKindQuery:
		if strings.TrimSpace(s.Value) == "" {
			return NewConfigurationError("JQLが空です")
		}
	default:
		return NewConfigurationError(fmt.Sprintf("未知のスコープ種別です: %q", s.Kind))
	}
	return nil
}

// ChecksAuthor は照合フィルタで作者の所属を検査するかどうかを返す。
// Queryスコープは作者集合を解決しないため日付のみで絞り込む。
func (s ScopeSelector) ChecksAuthor() bool {
	return s.Kind != ScopeKindQuery
}

// Batched はバッチ分割の対象となるスコープかどうかを返す。
func (s ScopeSelector) Batched() bool {
	return s.Kind == ScopeKindGroup
}

// Label はファイル名やログに使うスコープの短い表記を返す。
func (s ScopeSelector) Label() string {
	switch s.Kind {
	case ScopeKindCurrentUser:
		return "myself"
	case ScopeKindSpecificUser:
		if i := strings.Index(s.Value, "@"); i > 0 {
			return s.Value[:i]
		}
		return s.Value
	case ScopeKindQuery:
		return "query"
	default:
		return s.Value
	}
}

func (s ScopeSelector) String() string {
	if s.Value == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Value)
}

// IdentitySet はアカウントIDの集合。順序は持たない。
type IdentitySet map[string]struct{}

// NewIdentitySet は指定したアカウントIDから集合を生成する。空文字は無視する。
func NewIdentitySet(ids ...string) IdentitySet {
	set := make(IdentitySet, len(ids))
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Add はアカウントIDを追加する。
func (s IdentitySet) Add(id string) {
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

// Has はアカウントIDが含まれるかを返す。
func (s IdentitySet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len は要素数を返す。
func (s IdentitySet) Len() int {
	return len(s)
}

// Sorted は昇順に並べたアカウントIDを返す。JQLを決定的に組み立てるために使う。
func (s IdentitySet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
