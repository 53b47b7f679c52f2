// Package metrics はPrometheusメトリクスの収集とテキストファイル出力を提供する。
// バッチ実行のため、スクレイプではなくnode_exporterのtextfileコレクタ向けに書き出す。
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// Recorder はJira API呼び出しのメトリクス記録のインターフェース。
// Jiraクライアントから利用する。
type Recorder interface {
	RecordRequest(resource string, statusCode int, duration time.Duration)
	RecordRetry(resource string, reason string)
	RecordQuotaRemaining(remaining int)
}

// NopRecorder は何も記録しないRecorder。
type NopRecorder struct{}

func (NopRecorder) RecordRequest(string, int, time.Duration) {}
func (NopRecorder) RecordRetry(string, string)               {}
func (NopRecorder) RecordQuotaRemaining(int)                 {}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	quotaRemaining prometheus.Gauge

	runIssues     prometheus.Gauge
	runWorklogs   *prometheus.GaugeVec
	runHours      prometheus.Gauge
	runAPICalls   prometheus.Gauge
	runTruncated  prometheus.Gauge
	runFailed     prometheus.Gauge
	runDuration   prometheus.Gauge
	runSuccess    prometheus.Gauge
	runLastFinish prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worklog_reporter_jira_requests_total",
			Help: "Jira APIリクエスト数（ステータスコード別）",
		}, []string{"resource", "status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worklog_reporter_jira_request_duration_seconds",
			Help:    "Jira APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worklog_reporter_jira_retries_total",
			Help: "Jira APIリクエストのリトライ数（理由別）",
		}, []string{"resource", "reason"}),
		quotaRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_reporter_jira_quota_remaining",
			Help: "最後に観測したレート制限の残りリクエスト数",
		}),
		runIssues: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_reporter_run_issues",
			Help: "直近の実行で取得した課題数",
		}),
		runWorklogs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worklog_reporter_run_worklogs",
			Help: "直近の実行の作業ログ件数（fetched: 取得, matched: フィルタ通過）",
		}, []string{"stage"}),
		runHours: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_reporter_run_hours",
			Help: "直近の実行で集計した作業時間の合計（時間）",
		}),
		runAPICalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_reporter_run_api_calls",
			Help: "直近の実行で発行したAPI呼び出し数",
		}),
		runTruncated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_reporter_run_truncated_fetches",
			Help: "直近の実行で上限により打ち切った取得の数",
		}),
		runFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_reporter_run_failed_issues",
			Help: "直近の実行で作業ログ取得に失敗した課題数",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_reporter_run_duration_seconds",
			Help: "直近の実行の所要時間（秒）",
		}),
		runSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_reporter_run_success",
			Help: "直近の実行が成功した場合は1、失敗した場合は0",
		}),
		runLastFinish: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_reporter_run_last_finished_timestamp_seconds",
			Help: "直近の実行の終了時刻（UNIX秒）",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestLatency,
		c.retries,
		c.quotaRemaining,
		c.runIssues,
		c.runWorklogs,
		c.runHours,
		c.runAPICalls,
		c.runTruncated,
		c.runFailed,
		c.runDuration,
		c.runSuccess,
		c.runLastFinish,
	)

	return c
}

// RecordRequest はAPIリクエスト1回分のステータスとレイテンシを記録する。
// ネットワークエラーで応答がない場合はstatusCode=0とする。
func (c *Collector) RecordRequest(resource string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(resource, strconv.Itoa(statusCode)).Inc()
	c.requestLatency.WithLabelValues(resource).Observe(duration.Seconds())
}

// RecordRetry はリトライを記録する。
func (c *Collector) RecordRetry(resource string, reason string) {
	c.retries.WithLabelValues(resource, reason).Inc()
}

// RecordQuotaRemaining はレート制限の残数を記録する。
func (c *Collector) RecordQuotaRemaining(remaining int) {
	c.quotaRemaining.Set(float64(remaining))
}

// RecordRun は実行全体の統計を記録する。
func (c *Collector) RecordRun(stats model.RunStatistics, duration time.Duration, finishedAt time.Time, success bool) {
	c.runIssues.Set(float64(stats.IssuesFetched))
	c.runWorklogs.WithLabelValues("fetched").Set(float64(stats.WorklogsFetched))
	c.runWorklogs.WithLabelValues("matched").Set(float64(stats.WorklogsMatched))
	c.runHours.Set(stats.TotalHours())
	c.runAPICalls.Set(float64(stats.APICalls))
	c.runTruncated.Set(float64(stats.TruncatedFetches))
	c.runFailed.Set(float64(stats.FailedIssues))
	c.runDuration.Set(duration.Seconds())
	if success {
		c.runSuccess.Set(1)
	} else {
		c.runSuccess.Set(0)
	}
	c.runLastFinish.Set(float64(finishedAt.Unix()))
}

// WriteTextfile はgathererのメトリクスをテキスト形式でファイルに書き出す。
// 書き込みは一時ファイル経由で行われるため、node_exporterが途中の内容を読むことはない。
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("メトリクスファイルの書き込みに失敗しました: %w", err)
	}
	return nil
}
