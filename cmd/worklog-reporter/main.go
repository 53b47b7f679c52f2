// Command worklog-reporter はJira Cloudから作業ログを抽出し、期間・スコープ単位のレポートを出力する。
package main

import (
	"os"

	"github.com/adarshIdexcel/jira-worklog-reporter/internal/app"
	"github.com/adarshIdexcel/jira-worklog-reporter/internal/model"
)

func main() {
	if err := app.Run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		os.Exit(model.ExitCode(err))
	}
}
