package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// 定義済みエラーコード
const (
	ErrCodeConfiguration    = "CONFIGURATION"
	ErrCodeAuthentication   = "AUTHENTICATION"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeTransientNetwork = "TRANSIENT_NETWORK"
	ErrCodeTransport        = "TRANSPORT"
	ErrCodeHTTP             = "HTTP_ERROR"
	ErrCodePagination       = "PAGINATION"
	ErrCodeUnknown          = "UNKNOWN"
)

// CodedError はエラーコードを持つエラーのインターフェース。
// ログ出力と終了コードの決定に使用する。
type CodedError interface {
	error
	Code() string
}

// ConfigurationError は設定不備を表す。ネットワーク呼び出し前に検出され、実行を中断する。
type ConfigurationError struct {
	Problems []string
}

// NewConfigurationError は設定エラーを生成する。
func NewConfigurationError(problems ...string) *ConfigurationError {
	return &ConfigurationError{Problems: problems}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("[%s] 設定が不正です: %s", ErrCodeConfiguration, strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Code() string { return ErrCodeConfiguration }

// AuthenticationError は401応答を表す。リトライしない。
type AuthenticationError struct {
	Endpoint string
	Body     string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("[%s] Jiraの認証に失敗しました: %s", ErrCodeAuthentication, e.Endpoint)
}

func (e *AuthenticationError) Code() string { return ErrCodeAuthentication }

// NotFoundError は対象（エンドポイント、ユーザー、グループ）が存在しないことを表す。
type NotFoundError struct {
	// Kind は対象の種類（endpoint, user, group）。
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("[%s] %sが見つかりません: %s", ErrCodeNotFound, e.Kind, e.Key)
}

func (e *NotFoundError) Code() string { return ErrCodeNotFound }

// RateLimitError は429応答がリトライ上限まで続いたことを表す。
type RateLimitError struct {
	Endpoint string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("[%s] レート制限が解除されませんでした (%d回試行): %s", ErrCodeRateLimited, e.Attempts, e.Endpoint)
}

func (e *RateLimitError) Code() string { return ErrCodeRateLimited }

// TransientNetworkError は一時的なネットワーク障害がリトライ上限まで続いたことを表す。
type TransientNetworkError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("[%s] 一時的なネットワーク障害が続きました (%d回試行): %s: %v", ErrCodeTransientNetwork, e.Attempts, e.Endpoint, e.Err)
}

func (e *TransientNetworkError) Code() string { return ErrCodeTransientNetwork }

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// TransportError はリトライ対象外のネットワーク障害を表す。
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("[%s] リクエストに失敗しました: %s: %v", ErrCodeTransport, e.Endpoint, e.Err)
}

func (e *TransportError) Code() string { return ErrCodeTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError はリトライ対象外の非2xx応答を表す。
type HTTPError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("[%s] Jira APIがステータス %d を返しました: %s: %s", ErrCodeHTTP, e.Status, e.Endpoint, truncate(e.Body, 200))
}

func (e *HTTPError) Code() string { return ErrCodeHTTP }

// PaginationError はページングの継続トークンが繰り返されたなど、ページ走査が進まない状態を表す。
type PaginationError struct {
	Resource string
	Token    string
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("[%s] %s のページトークンが繰り返されました: %q", ErrCodePagination, e.Resource, e.Token)
}

func (e *PaginationError) Code() string { return ErrCodePagination }

// ErrorCode はエラーチェーンからエラーコードを取り出す。該当しない場合はErrCodeUnknownを返す。
func ErrorCode(err error) string {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ErrCodeUnknown
}

// IsFatalForRun は個別課題の処理で発生しても実行全体を中断すべきエラーかどうかを返す。
// 認証エラーとレート制限の枯渇は後続の課題でも同じ結果になるため中断する。
func IsFatalForRun(err error) bool {
	var authErr *AuthenticationError
	var rateErr *RateLimitError
	return errors.As(err, &authErr) || errors.As(err, &rateErr)
}

// ExitCode はエラーに対応するプロセス終了コードを返す。
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch ErrorCode(err) {
	case ErrCodeConfiguration:
		return 2
	case ErrCodeAuthentication:
		return 3
	case ErrCodeNotFound:
		return 4
	case ErrCodeRateLimited:
		return 5
	case ErrCodeTransientNetwork:
		return 6
	default:
		return 1
	}
}

// truncate はsを最大nバイトに切り詰める。マルチバイト文字の途中では切らない。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
