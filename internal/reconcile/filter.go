// Package reconcile はAPIから取得した作業ログをスコープと期間で照合する。
//
// 課題検索の条件はあくまで候補の絞り込みであり、課題には対象外の作業者や
// 期間外の作業ログも含まれる。Filterが最終的な採否を決める。
package reconcile

import (
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// Filter は期間内かつ作業者が集合に含まれる作業ログのみを返す。
// identitiesがnilの場合は作業者を検査せず、期間のみで判定する。
// 入力の順序を保ち、入力スライスは変更しない。
func Filter(entries []model.WorklogEntry, identities model.IdentitySet, window model.DateWindow) []model.WorklogEntry {
	kept := make([]model.WorklogEntry, 0, len(entries))
	for _, e := range entries {
		if Matches(e, identities, window) {
			kept = append(kept, e)
		}
	}
	return kept
}

// Matches は1件の作業ログが採用条件を満たすかを返す。
func Matches(e model.WorklogEntry, identities model.IdentitySet, window model.DateWindow) bool {
	if !window.Contains(e.Started) {
		return false
	}
	if identities == nil {
		return true
	}
	return identities.Has(e.AuthorAccountID)
}
