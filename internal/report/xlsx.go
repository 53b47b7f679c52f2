package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// シート名
const (
	SheetSummary = "Summary"
	SheetDetails = "Details"
	SheetAuthors = "Authors"
)

const timeLayout = "2006-01-02 15:04"

var (
	summaryHeader = []any{"Issue Key", "Summary", "Type", "Status", "Assignee", "Author", "Hours", "Entries"}
	detailsHeader = []any{"Date", "Started", "Issue Key", "Summary", "Author", "Email", "Hours", "Comment", "Worklog ID"}
	authorsHeader = []any{"Author", "Account ID", "Hours", "Entries", "Issues"}
)

// WriteXLSX はレポートをxlsx形式で書き出す。
// Summaryシートは課題×作業者の作業時間、Detailsシートは作業ログ1件を1行とする明細、
// Authorsシートは作業者ごとの合計を持つ。
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	x := &xlsxWriter{f: f, report: r}
	if err := x.init(); err != nil {
		return err
	}
	if err := x.writeSummary(); err != nil {
		return fmt.Errorf("Summaryシートの出力に失敗しました: %w", err)
	}
	if err := x.writeDetails(); err != nil {
		return fmt.Errorf("Detailsシートの出力に失敗しました: %w", err)
	}
	if err := x.writeAuthors(); err != nil {
		return fmt.Errorf("Authorsシートの出力に失敗しました: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsxの書き込みに失敗しました: %w", err)
	}
	return nil
}

type xlsxWriter struct {
	f      *excelize.File
	report *Report

	headerStyle int
	hoursStyle  int
	totalStyle  int
}

func (x *xlsxWriter) init() error {
	if err := x.f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("シート名の設定に失敗しました: %w", err)
	}
	for _, name := range []string{SheetDetails, SheetAuthors} {
		if _, err := x.f.NewSheet(name); err != nil {
			return fmt.Errorf("シート %s の作成に失敗しました: %w", name, err)
		}
	}

	var err error
	x.headerStyle, err = x.f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("スタイルの作成に失敗しました: %w", err)
	}
	// 組み込み書式 2 = "0.00"
	x.hoursStyle, err = x.f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("スタイルの作成に失敗しました: %w", err)
	}
	x.totalStyle, err = x.f.NewStyle(&excelize.Style{NumFmt: 2, Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("スタイルの作成に失敗しました: %w", err)
	}
	return nil
}

func (x *xlsxWriter) writeSummary() error {
	if err := x.writeHeader(SheetSummary, summaryHeader); err != nil {
		return err
	}

	row := 2
	for _, is := range x.report.ByIssue {
		for _, a := range is.Authors {
			values := []any{is.Key, is.Summary, is.Type, is.Status, is.Assignee, displayName(a), a.Hours, a.Entries}
			if err := x.setRow(SheetSummary, row, values); err != nil {
				return err
			}
			row++
		}
	}
	if err := x.styleColumn(SheetSummary, "G", 2, row); err != nil {
		return err
	}

	total := []any{"Total", "", "", "", "", "", x.report.TotalHours, x.report.Statistics.WorklogsMatched}
	if err := x.setRow(SheetSummary, row, total); err != nil {
		return err
	}
	if err := x.f.SetCellStyle(SheetSummary, cell("A", row), cell("H", row), x.totalStyle); err != nil {
		return err
	}

	return x.setWidths(SheetSummary, map[string]float64{"A": 14, "B": 48, "C": 12, "D": 14, "E": 20, "F": 24, "G": 10, "H": 10})
}

func (x *xlsxWriter) writeDetails() error {
	if err := x.writeHeader(SheetDetails, detailsHeader); err != nil {
		return err
	}

	loc := x.location()
	row := 2
	for _, d := range x.report.Entries {
		values := []any{
			d.Date,
			d.Started.In(loc).Format(timeLayout),
			d.IssueKey,
			d.IssueSummary,
			d.AuthorDisplayName,
			d.AuthorEmail,
			d.Hours,
			d.Comment,
			d.ID,
		}
		if err := x.setRow(SheetDetails, row, values); err != nil {
			return err
		}
		row++
	}
	if err := x.styleColumn(SheetDetails, "G", 2, row); err != nil {
		return err
	}

	return x.setWidths(SheetDetails, map[string]float64{"A": 12, "B": 17, "C": 14, "D": 40, "E": 24, "F": 28, "G": 8, "H": 60, "I": 12})
}

func (x *xlsxWriter) writeAuthors() error {
	if err := x.writeHeader(SheetAuthors, authorsHeader); err != nil {
		return err
	}

	row := 2
	for _, a := range x.report.ByAuthor {
		values := []any{displayName(a.AuthorHours), a.AccountID, a.Hours, a.Entries, a.Issues}
		if err := x.setRow(SheetAuthors, row, values); err != nil {
			return err
		}
		row++
	}
	if err := x.styleColumn(SheetAuthors, "C", 2, row); err != nil {
		return err
	}

	return x.setWidths(SheetAuthors, map[string]float64{"A": 24, "B": 30, "C": 10, "D": 10, "E": 10})
}

func (x *xlsxWriter) writeHeader(sheet string, header []any) error {
	if err := x.setRow(sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := x.f.SetCellStyle(sheet, "A1", cell(last, 1), x.headerStyle); err != nil {
		return err
	}
	return x.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (x *xlsxWriter) setRow(sheet string, row int, values []any) error {
	return x.f.SetSheetRow(sheet, cell("A", row), &values)
}

// styleColumn は列colの[from, to)行に時間の数値書式を設定する。
func (x *xlsxWriter) styleColumn(sheet, col string, from, to int) error {
	if to <= from {
		return nil
	}
	return x.f.SetCellStyle(sheet, cell(col, from), cell(col, to-1), x.hoursStyle)
}

func (x *xlsxWriter) setWidths(sheet string, widths map[string]float64) error {
	for col, width := range widths {
		if err := x.f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	return nil
}

func (x *xlsxWriter) location() *time.Location {
	if x.report.loc != nil {
		return x.report.loc
	}
	return time.UTC
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
