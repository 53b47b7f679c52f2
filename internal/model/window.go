package model

import (
	"fmt"
	"math"
	"time"
)

// DateLayout は設定やJQLで使う日付の書式。
const DateLayout = "2006-01-02"

// DateWindow は作業ログの対象期間（両端を含む暦日）を表す。
// StartとEndは設定したタイムゾーンでの0時を指す。
type DateWindow struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// ParseDateWindow は "YYYY-MM-DD" 形式の開始日と終了日から期間を生成する。
// locがnilの場合はUTCとして扱う。
func ParseDateWindow(start, end string, loc *time.Location) (DateWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := time.ParseInLocation(DateLayout, start, loc)
	if err != nil {
		return DateWindow{}, NewConfigurationError(fmt.Sprintf("開始日の書式が不正です: %q", start))
	}
	e, err := time.ParseInLocation(DateLayout, end, loc)
	if err != nil {
		return DateWindow{}, NewConfigurationError(fmt.Sprintf("終了日の書式が不正です: %q", end))
	}
	return DateWindow{Start: s, End: e, Location: loc}, nil
}

// RelativeWindow は今日を終了日としてdays日分の期間を生成する。
// days=1の場合は今日1日のみとなる。
func RelativeWindow(days int, now time.Time, loc *time.Location) (DateWindow, error) {
	if days < 1 {
		return DateWindow{}, NewConfigurationError(fmt.Sprintf("DAYS_BACKは1以上を指定してください: %d", days))
	}
	if loc == nil {
		loc = time.UTC
	}
	today := startOfDay(now.In(loc))
	return DateWindow{
		Start:    today.AddDate(0, 0, -(days - 1)),
		End:      today,
		Location: loc,
	}, nil
}

// Validate は開始日が終了日以前であり、終了日が今日以前であることを検証する。
func (w DateWindow) Validate(now time.Time) error {
	if w.Start.IsZero() || w.End.IsZero() {
		return NewConfigurationError("対象期間が設定されていません")
	}
	var problems []string
	if w.Start.After(w.End) {
		problems = append(problems, fmt.Sprintf("開始日 %s が終了日 %s より後です", w.StartDate(), w.EndDate()))
	}
	today := startOfDay(now.In(w.location()))
	if w.End.After(today) {
		problems = append(problems, fmt.Sprintf("終了日 %s が今日 %s より後です", w.EndDate(), today.Format(DateLayout)))
	}
	if len(problems) > 0 {
		return NewConfigurationError(problems...)
	}
	return nil
}

// Bounds は期間の開始時刻（開始日の0時）と終了時刻（終了日の23:59:59.999999999）を返す。
func (w DateWindow) Bounds() (from, until time.Time) {
	return w.Start, w.End.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Contains はtが期間内に含まれるかを返す。tのタイムゾーンは任意。
func (w DateWindow) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	from, until := w.Bounds()
	return !t.Before(from) && !t.After(until)
}

// Days は期間の日数を返す。
func (w DateWindow) Days() int {
	return int(math.Round(w.End.Sub(w.Start).Hours()/24)) + 1
}

// StartDate は開始日を "YYYY-MM-DD" で返す。
func (w DateWindow) StartDate() string {
	return w.Start.Format(DateLayout)
}

// EndDate は終了日を "YYYY-MM-DD" で返す。
func (w DateWindow) EndDate() string {
	return w.End.Format(DateLayout)
}

func (w DateWindow) String() string {
	return w.StartDate() + ".." + w.EndDate()
}

func (w DateWindow) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
