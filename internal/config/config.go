package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // REPORT_TIMEZONEをdistrolessイメージでも解決する

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/logger"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Jira
	JiraBaseURL string
	Credential  model.Credential

	// Scope
	Scope    model.ScopeSelector
	Window   model.DateWindow
	Location *time.Location

	// Pagination
	SearchPageSize      int
	WorklogPageSize     int
	GroupPageSize       int
	MaxIssues           int
	MaxWorklogsPerIssue int

	// Transport
	MaxRetries        int
	RetryBaseDelay    time.Duration
	LowQuotaThreshold int
	RequestsPerSecond float64
	HTTPTimeout       time.Duration

	// Batch
	BatchSize  int
	BatchDelay time.Duration

	// Output
	OutputDir  string
	OutputJSON bool

	// Persistence（任意）
	DatabaseURL     string
	MetricsTextfile string

	// Logging
	LogLevel  slog.Level
	LogFormat string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数の未設定や値の不正はまとめて*model.ConfigurationErrorとして返す。
// ネットワークにアクセスする前にすべての検証を終える。
func Load() (*Config, error) {
	return load(time.Now())
}

func load(now time.Time) (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.JiraBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("JIRA_BASE_URL")), "/")
	if cfg.JiraBaseURL == "" {
		missing = append(missing, "JIRA_BASE_URL")
	}

	cfg.Credential.Email = strings.TrimSpace(os.Getenv("JIRA_EMAIL"))
	if cfg.Credential.Email == "" {
		missing = append(missing, "JIRA_EMAIL")
	}

	cfg.Credential.APIToken = strings.TrimSpace(os.Getenv("JIRA_API_TOKEN"))
	if cfg.Credential.APIToken == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}

	if len(missing) > 0 {
		return nil, model.NewConfigurationError(fmt.Sprintf("必須の環境変数が設定されていません: %v", missing))
	}

	var problems []string

	if u, err := url.Parse(cfg.JiraBaseURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("JIRA_BASE_URLが不正です: %q", cfg.JiraBaseURL))
	}
	if isPlaceholder(cfg.Credential.Email) || !strings.Contains(cfg.Credential.Email, "@") {
		problems = append(problems, "JIRA_EMAILに有効なメールアドレスを設定してください")
	}
	if isPlaceholder(cfg.Credential.APIToken) {
		problems = append(problems, "JIRA_API_TOKENがプレースホルダのままです")
	}

	scope, err := loadScope()
	if err != nil {
		problems = append(problems, err.Error())
	} else {
		cfg.Scope = scope
	}

	loc, err := time.LoadLocation(getEnvString("REPORT_TIMEZONE", "UTC"))
	if err != nil {
		problems = append(problems, fmt.Sprintf("REPORT_TIMEZONEが不正です: %v", err))
		loc = time.UTC
	}
	cfg.Location = loc

	window, err := loadWindow(now, loc)
	if err != nil {
		problems = append(problems, err.Error())
	} else {
		cfg.Window = window
	}

	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.LogLevel = level
	cfg.LogFormat = getEnvString("LOG_FORMAT", "json")

	// Optional fields with defaults
	cfg.SearchPageSize = getEnvInt("SEARCH_PAGE_SIZE", 100)
	cfg.WorklogPageSize = getEnvInt("WORKLOG_PAGE_SIZE", 100)
	cfg.GroupPageSize = getEnvInt("GROUP_PAGE_SIZE", 50)
	cfg.MaxIssues = getEnvInt("MAX_ISSUES", 1000)
	cfg.MaxWorklogsPerIssue = getEnvInt("MAX_WORKLOGS_PER_ISSUE", 5000)
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", 3)
	cfg.RetryBaseDelay = getEnvDuration("RETRY_BASE_DELAY", time.Second)
	cfg.LowQuotaThreshold = getEnvInt("LOW_QUOTA_THRESHOLD", 10)
	cfg.RequestsPerSecond = getEnvFloat("JIRA_MAX_REQUESTS_PER_SECOND", 0)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 30*time.Second)
	cfg.BatchSize = getEnvInt("BATCH_SIZE", 50)
	cfg.BatchDelay = getEnvDuration("BATCH_DELAY", 2*time.Second)
	cfg.OutputDir = getEnvString("OUTPUT_DIR", "output")
	cfg.OutputJSON = getEnvBool("OUTPUT_JSON", true)
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MetricsTextfile = strings.TrimSpace(os.Getenv("METRICS_TEXTFILE"))

	for _, p := range []struct {
		name  string
		value int
	}{
		{"SEARCH_PAGE_SIZE", cfg.SearchPageSize},
		{"WORKLOG_PAGE_SIZE", cfg.WorklogPageSize},
		{"GROUP_PAGE_SIZE", cfg.GroupPageSize},
		{"MAX_ISSUES", cfg.MaxIssues},
		{"MAX_WORKLOGS_PER_ISSUE", cfg.MaxWorklogsPerIssue},
		{"BATCH_SIZE", cfg.BatchSize},
	} {
		if p.value < 1 {
			problems = append(problems, fmt.Sprintf("%sは1以上を指定してください: %d", p.name, p.value))
		}
	}
	if cfg.MaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("MAX_RETRIESは0以上を指定してください: %d", cfg.MaxRetries))
	}

	if len(problems) > 0 {
		return nil, model.NewConfigurationError(problems...)
	}

	return cfg, nil
}

// loadScope はスコープセレクタの環境変数を読み込む。
// TARGET_USER_EMAIL、TARGET_CURRENT_USER、TARGET_GROUP、TARGET_JQLのうち
// ちょうど1つが指定されている必要がある。
func loadScope() (model.ScopeSelector, error) {
	var selected []model.ScopeSelector
	var names []string

	if v := strings.TrimSpace(os.Getenv("TARGET_USER_EMAIL")); v != "" {
		selected = append(selected, model.SpecificUser(v))
		names = append(names, "TARGET_USER_EMAIL")
	}
	if getEnvBool("TARGET_CURRENT_USER", false) {
		selected = append(selected, model.CurrentUser())
		names = append(names, "TARGET_CURRENT_USER")
	}
	if v := strings.TrimSpace(os.Getenv("TARGET_GROUP")); v != "" {
		selected = append(selected, model.Group(v))
		names = append(names, "TARGET_GROUP")
	}
	if v := strings.TrimSpace(os.Getenv("TARGET_JQL")); v != "" {
		selected = append(selected, model.Query(v))
		names = append(names, "TARGET_JQL")
	}

	switch len(selected) {
	case 0:
		return model.ScopeSelector{}, errors.New("対象スコープを1つ指定してください（TARGET_USER_EMAIL, TARGET_CURRENT_USER, TARGET_GROUP, TARGET_JQL）")
	case 1:
		if err := selected[0].Validate(); err != nil {
			return model.ScopeSelector{}, fmt.Errorf("%s: %v", names[0], problemsOf(err))
		}
		return selected[0], nil
	default:
		return model.ScopeSelector{}, fmt.Errorf("対象スコープは1つだけ指定してください: %v", names)
	}
}

// loadWindow は対象期間を読み込む。START_DATEとEND_DATEの組、またはDAYS_BACKのどちらか一方を受け付ける。
func loadWindow(now time.Time, loc *time.Location) (model.DateWindow, error) {
	start := strings.TrimSpace(os.Getenv("START_DATE"))
	end := strings.TrimSpace(os.Getenv("END_DATE"))
	daysBack := strings.TrimSpace(os.Getenv("DAYS_BACK"))

	var window model.DateWindow
	switch {
	case daysBack != "" && (start != "" || end != ""):
		return model.DateWindow{}, errors.New("DAYS_BACKとSTART_DATE/END_DATEは同時に指定できません")
	case daysBack != "":
		days, err := strconv.Atoi(daysBack)
		if err != nil {
			return model.DateWindow{}, fmt.Errorf("DAYS_BACKが数値ではありません: %q", daysBack)
		}
		window, err = model.RelativeWindow(days, now, loc)
		if err != nil {
			return model.DateWindow{}, errors.New(problemsOf(err))
		}
	case start != "" && end != "":
		var err error
		window, err = model.ParseDateWindow(start, end, loc)
		if err != nil {
			return model.DateWindow{}, errors.New(problemsOf(err))
		}
	case start != "" || end != "":
		return model.DateWindow{}, errors.New("START_DATEとEND_DATEは両方指定してください")
	default:
		return model.DateWindow{}, errors.New("対象期間を指定してください（START_DATEとEND_DATE、またはDAYS_BACK）")
	}

	if err := window.Validate(now); err != nil {
		return model.DateWindow{}, errors.New(problemsOf(err))
	}
	return window, nil
}

// problemsOf はConfigurationErrorの場合に問題の一覧だけを取り出す。
func problemsOf(err error) string {
	var cfgErr *model.ConfigurationError
	if errors.As(err, &cfgErr) {
		return strings.Join(cfgErr.Problems, "; ")
	}
	return err.Error()
}

// isPlaceholder はサンプル設定のまま置き換えられていない値かどうかを判定する。
func isPlaceholder(v string) bool {
	lower := strings.ToLower(v)
	switch lower {
	case "changeme", "change-me", "placeholder", "token", "xxx", "api-token", "your-api-token":
		return true
	}
	if strings.HasPrefix(lower, "<") && strings.HasSuffix(lower, ">") {
		return true
	}
	if strings.HasPrefix(lower, "your") && strings.HasSuffix(lower, "@example.com") {
		return true
	}
	return strings.HasPrefix(lower, "your-") || strings.HasPrefix(lower, "your_")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
