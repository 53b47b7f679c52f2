// Package jira はJira Cloud REST API v3の読み取り専用クライアントを提供する。
//
// すべてのリクエストは逐次実行され、429応答と一時的なネットワーク障害は
// 指数バックオフでリトライする。API呼び出し数などの統計は呼び出し元が渡す
// model.RunStatisticsに加算する。
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/metrics"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/security"
)

const (
	// maxResponseSize はレスポンスボディの最大読み込みサイズ（20MB）。
	maxResponseSize = 20 << 20
	// quotaHeader はレート制限の残りリクエスト数を示すレスポンスヘッダー。
	quotaHeader = "X-RateLimit-Remaining"
	// userAgent はリクエストに付与するUser-Agent。
	userAgent = "jira-worklog-reporter/1.0"
)

// Options はClientの設定パラメータ。
type Options struct {
	BaseURL    string
	Credential model.Credential

	// HTTPClient がnilの場合は30秒タイムアウトのクライアントを使用する。
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    metrics.Recorder
	// Sanitizer はプレーン文字列のコメント本文に適用する。nilの場合は適用しない。
	Sanitizer security.CommentSanitizer

	// MaxRetries は429または一時障害時のリトライ回数。総試行回数はMaxRetries+1。
	MaxRetries int
	// RetryBaseDelay は指数バックオフの初回遅延。
	RetryBaseDelay time.Duration
	// LowQuotaThreshold はレート制限残数の警告閾値。0の場合は警告しない。
	LowQuotaThreshold int
	// RequestsPerSecond はクライアント側の送信レート上限。0の場合は制限しない。
	RequestsPerSecond float64

	SearchPageSize  int
	WorklogPageSize int
	GroupPageSize   int

	// MaxIssues は課題検索の取得上限。0の場合は無制限。
	MaxIssues int
	// MaxWorklogsPerIssue は1課題あたりの作業ログ取得上限。0の場合は無制限。
	MaxWorklogsPerIssue int
}

// Client はJira APIクライアント。
type Client struct {
	baseURL    string
	credential model.Credential
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.Recorder
	sanitizer  security.CommentSanitizer
	limiter    *rate.Limiter

	maxRetries int
	baseDelay  time.Duration
	lowQuota   int

	searchPageSize  int
	worklogPageSize int
	groupPageSize   int
	maxIssues       int
	maxWorklogs     int

	// sleep はリトライ待機の実装。テスト時に差し替える。
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewClient は新しいClientを生成する。
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, model.NewConfigurationError(fmt.Sprintf("JIRA_BASE_URLが不正です: %q", opts.BaseURL))
	}

	c := &Client{
		baseURL:         strings.TrimRight(u.String(), "/"),
		credential:      opts.Credential,
		httpClient:      opts.HTTPClient,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		sanitizer:       opts.Sanitizer,
		maxRetries:      opts.MaxRetries,
		baseDelay:       opts.RetryBaseDelay,
		lowQuota:        opts.LowQuotaThreshold,
		searchPageSize:  positiveOr(opts.SearchPageSize, 100),
		worklogPageSize: positiveOr(opts.WorklogPageSize, 100),
		groupPageSize:   positiveOr(opts.GroupPageSize, 50),
		maxIssues:       opts.MaxIssues,
		maxWorklogs:     opts.MaxWorklogsPerIssue,
		sleep:           sleepContext,
		now:             time.Now,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = metrics.NopRecorder{}
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// response は1回のラウンドトリップの結果。
type response struct {
	status int
	header http.Header
	body   []byte
}

// getJSON はGETリクエストを実行し、2xx応答のJSONをoutにデコードする。
// 試行ごとにstats.APICallsを加算する（リトライを含む）。
// resourceはログとメトリクスで使う論理名。
func (c *Client) getJSON(ctx context.Context, stats *model.RunStatistics, resource, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		stats.APICalls++
		resp, err := c.roundTrip(ctx, resource, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !IsTransient(err) {
				return &model.TransportError{Endpoint: path, Err: err}
			}
			if attempt >= c.maxRetries {
				return &model.TransientNetworkError{Endpoint: path, Attempts: attempt + 1, Err: err}
			}
			delay := CalculateBackoff(c.baseDelay, attempt)
			c.logger.Warn("一時的なネットワーク障害が発生しました。待機してリトライします",
				slog.String("resource", resource),
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
			if err := c.retryWait(ctx, stats, resource, "transient", delay); err != nil {
				return err
			}
			continue
		}

		c.checkQuota(resp.header, resource)

		switch ClassifyHTTPStatus(resp.status) {
		case OutcomeOK:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(resp.body, out); err != nil {
				return fmt.Errorf("%s の応答のデコードに失敗しました: %w", path, err)
			}
			return nil

		case OutcomeUnauthorized:
			return &model.AuthenticationError{Endpoint: path, Body: string(resp.body)}

		case OutcomeNotFound:
			return &model.NotFoundError{Kind: "endpoint", Key: path}

		case OutcomeRateLimited:
			if attempt >= c.maxRetries {
				c.logger.Error("レート制限のリトライ上限に達しました",
					slog.String("resource", resource),
					slog.String("path", path),
					slog.Int("attempts", attempt+1),
				)
				return &model.RateLimitError{Endpoint: path, Attempts: attempt + 1}
			}
			delay, ok := ParseRetryAfter(resp.header.Get("Retry-After"), c.now())
			if !ok {
				delay = CalculateBackoff(c.baseDelay, attempt)
			}
			c.logger.Warn("Jira APIがレート制限を返しました。待機してリトライします",
				slog.String("resource", resource),
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.Bool("retry_after", ok),
			)
			if err := c.retryWait(ctx, stats, resource, "rate_limited", delay); err != nil {
				return err
			}

		default:
			return &model.HTTPError{Endpoint: path, Status: resp.status, Body: strings.TrimSpace(string(resp.body))}
		}
	}
}

// roundTrip は1回のHTTPリクエストを送信し、ボディを読み切って返す。
// 認証ヘッダーは呼び出しごとに認証情報から導出する。
func (c *Client) roundTrip(ctx context.Context, resource, endpoint string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", c.credential.AuthorizationHeader())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordRequest(resource, 0, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	c.metrics.RecordRequest(resource, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Jira APIリクエストが完了しました",
		slog.String("resource", resource),
		slog.Int("status", resp.StatusCode),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func (c *Client) retryWait(ctx context.Context, stats *model.RunStatistics, resource, reason string, delay time.Duration) error {
	stats.Retries++
	c.metrics.RecordRetry(resource, reason)
	return c.sleep(ctx, delay)
}

// checkQuota はレート制限の残数ヘッダーを確認し、閾値を下回る場合に警告を出す。
// 送信の判断には使わない。
func (c *Client) checkQuota(header http.Header, resource string) {
	v := header.Get(quotaHeader)
	if v == "" {
		return
	}
	remaining, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return
	}
	c.metrics.RecordQuotaRemaining(remaining)
	if c.lowQuota > 0 && remaining < c.lowQuota {
		c.logger.Warn("Jira APIのレート制限残数が少なくなっています",
			slog.String("resource", resource),
			slog.Int("remaining", remaining),
			slog.Int("threshold", c.lowQuota),
		)
	}
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
