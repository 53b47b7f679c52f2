package jira

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Outcome はHTTPステータスコードに基づく応答の分類。
type Outcome int

const (
	// OutcomeOK は成功（2xx）。
	OutcomeOK Outcome = iota
	// OutcomeUnauthorized は認証失敗（401）。リトライしない。
	OutcomeUnauthorized
	// OutcomeNotFound は対象なし（404）。リトライしない。
	OutcomeNotFound
	// OutcomeRateLimited はレート制限（429）。待機してリトライする。
	OutcomeRateLimited
	// OutcomeFailed はその他の非2xx。リトライしない。
	OutcomeFailed
)

const (
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 5 * time.Minute
	// maxRetryAfter はRetry-Afterヘッダーとして受け入れる最大待機時間。
	maxRetryAfter = 10 * time.Minute
)

// ClassifyHTTPStatus はHTTPステータスコードを応答の分類に変換する。
func ClassifyHTTPStatus(statusCode int) Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeOK
	case statusCode == http.StatusUnauthorized:
		return OutcomeUnauthorized
	case statusCode == http.StatusNotFound:
		return OutcomeNotFound
	case statusCode == http.StatusTooManyRequests:
		return OutcomeRateLimited
	default:
		return OutcomeFailed
	}
}

// CalculateBackoff はリトライ回数に基づいて指数バックオフ遅延を計算する。
// attempt=0でbase、以降2倍ずつ増加し、最大5分。
func CalculateBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ParseRetryAfter はRetry-Afterヘッダーの値（秒数またはHTTP日付）を待機時間に変換する。
// 値がない、または解釈できない場合はfalseを返す。
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return capRetryAfter(time.Duration(secs) * time.Second), true
	}
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return capRetryAfter(d), true
	}
	return 0, false
}

func capRetryAfter(d time.Duration) time.Duration {
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// IsTransient はネットワークエラーが一時的（タイムアウト、接続リセット、応答途中の切断）かを判定する。
// 呼び出し元のキャンセルは一時的とみなさない。
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// sleepContext はdだけ待機する。コンテキストがキャンセルされた場合はその時点でエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
