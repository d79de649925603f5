// main - entry-point to billable commands through cobra
// individual commands are outlined in ./cmd/
package main

import (
	"github.com/billable/billable/cmd"
	"github.com/billable/billable/logging"

	// pull in serve command. setup code is in init
	_ "github.com/billable/billable/cmd/serve"
)

var (
	// variables will be overwritten at build time
	version   string
	commit    string
	buildTime string
)

func main() {
	defer func() {
		if logging.Writer != nil {
			_ = logging.Writer.Close()
		}
	}()
	cmd.Execute(version, commit, buildTime)
}
