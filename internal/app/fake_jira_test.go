package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// fakeJira はテスト用のJira Cloud APIサーバー。
// グループメンバー、課題検索、作業ログの各エンドポイントを提供する。
type fakeJira struct {
	t *testing.T

	mu sync.Mutex
	// members はグループ名ごとのメンバーのアカウントID。
	members map[string][]string
	// searches は検索リクエストに順に返す課題キー。不足した分は空の結果を返す。
	searches [][]string
	// worklogs は課題キーごとの作業ログ。
	worklogs map[string][]map[string]any
	// worklogStatus は課題キーごとに作業ログ取得で返すエラーステータス。
	worklogStatus map[string]int

	jqls         []string
	worklogCalls []string
}

func newFakeJira(t *testing.T) *fakeJira {
	t.Helper()
	return &fakeJira{
		t:             t,
		members:       map[string][]string{},
		worklogs:      map[string][]map[string]any{},
		worklogStatus: map[string]int{},
	}
}

func (f *fakeJira) start() *httptest.Server {
	r := chi.NewRouter()
	r.Get("/rest/api/3/myself", func(w http.ResponseWriter, req *http.Request) {
		f.writeJSON(w, map[string]any{"accountId": "me", "displayName": "Reporter", "emailAddress": "reporter@example.com"})
	})
	r.Get("/rest/api/3/group/member", func(w http.ResponseWriter, req *http.Request) {
		ids, ok := f.members[req.URL.Query().Get("groupname")]
		if !ok {
			http.Error(w, `{"errorMessages":["group not found"]}`, http.StatusNotFound)
			return
		}
		values := make([]map[string]any, len(ids))
		for i, id := range ids {
			values[i] = map[string]any{"accountId": id, "displayName": strings.ToUpper(id)}
		}
		f.writeJSON(w, map[string]any{"isLast": true, "values": values})
	})
	r.Get("/rest/api/3/search/jql", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		n := len(f.jqls)
		f.jqls = append(f.jqls, req.URL.Query().Get("jql"))
		f.mu.Unlock()

		var keys []string
		if n < len(f.searches) {
			keys = f.searches[n]
		}
		issues := make([]map[string]any, len(keys))
		for i, k := range keys {
			issues[i] = map[string]any{"key": k, "fields": map[string]any{
				"summary":   k + " の作業",
				"issuetype": map[string]any{"name": "Task"},
				"project":   map[string]any{"key": strings.Split(k, "-")[0]},
				"status":    map[string]any{"name": "Done"},
			}}
		}
		f.writeJSON(w, map[string]any{"issues": issues, "isLast": true})
	})
	r.Get("/rest/api/3/issue/{key}/worklog", func(w http.ResponseWriter, req *http.Request) {
		key := chi.URLParam(req, "key")
		f.mu.Lock()
		f.worklogCalls = append(f.worklogCalls, key)
		f.mu.Unlock()

		if status, ok := f.worklogStatus[key]; ok {
			http.Error(w, `{"errorMessages":["failure"]}`, status)
			return
		}
		logs := f.worklogs[key]
		f.writeJSON(w, map[string]any{"startAt": 0, "maxResults": 100, "total": len(logs), "worklogs": logs})
	})
	server := httptest.NewServer(r)
	f.t.Cleanup(server.Close)
	return server
}

func (f *fakeJira) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.t.Errorf("レスポンスのエンコードに失敗: %v", err)
	}
}

func worklog(id, accountID, started string, seconds int) map[string]any {
	return map[string]any{
		"id":               id,
		"author":           map[string]any{"accountId": accountID, "displayName": strings.ToUpper(accountID)},
		"started":          started,
		"timeSpentSeconds": seconds,
		"comment":          "作業 " + id,
	}
}
