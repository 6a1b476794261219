package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"

	"github.com/whisper/modbot/internal/moderation"
	"github.com/whisper/modbot/internal/rules"
)

var rulesFlag = &cli.StringFlag{
	Name:    "rules",
	Usage:   "path to a YAML rules file (built-in rules when unset)",
	EnvVars: []string{"RULES_FILE"},
}

func main() {
	app := newApp()
	app.RunAndExitOnError()
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "modcheck",
		Usage: "check text against the moderation rules offline",
	}
	app.Commands = []*cli.Command{
		{
			Name:      "check",
			Usage:     "screen each argument, or each line of stdin, and exit 1 if any is blocked",
			ArgsUsage: "[TEXT...]",
			Flags:     []cli.Flag{rulesFlag},
			Action:    runCheck,
		},
		{
			Name:   "pattern",
			Usage:  "print the compiled matcher expression",
			Flags:  []cli.Flag{rulesFlag},
			Action: runPattern,
		},
	}
	return app
}

func loadRules(cctx *cli.Context) (*rules.Rules, error) {
	if path := cctx.String("rules"); path != "" {
		return rules.Load(path)
	}
	return rules.Default(), nil
}

func runCheck(cctx *cli.Context) error {
	r, err := loadRules(cctx)
	if err != nil {
		return err
	}
	filter, err := r.Filter()
	if err != nil {
		return err
	}

	var blocked bool
	if cctx.NArg() > 0 {
		blocked = checkAll(cctx.App.Writer, filter, cctx.Args().Slice())
	} else {
		blocked, err = checkLines(cctx.App.Writer, filter, cctx.App.Reader)
		if err != nil {
			return err
		}
	}
	if blocked {
		return cli.Exit("", 1)
	}
	return nil
}

func runPattern(cctx *cli.Context) error {
	r, err := loadRules(cctx)
	if err != nil {
		return err
	}
	m, err := r.Matcher()
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, m.String())
	return nil
}

func checkAll(w io.Writer, filter *moderation.Filter, texts []string) bool {
	var blocked bool
	for _, text := range texts {
		if report(w, filter.Check(text)) {
			blocked = true
		}
	}
	return blocked
}

func checkLines(w io.Writer, filter *moderation.Filter, r io.Reader) (bool, error) {
	if r == nil {
		r = os.Stdin
	}
	var blocked bool
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if report(w, filter.Check(sc.Text())) {
			blocked = true
		}
	}
	if err := sc.Err(); err != nil {
		return blocked, fmt.Errorf("read stdin: %w", err)
	}
	return blocked, nil
}

func report(w io.Writer, v moderation.Verdict) bool {
	if v.Blocked {
		fmt.Fprintf(w, "BLOCKED %s %s\n", v.Reason, v.Term)
		return true
	}
	fmt.Fprintln(w, "CLEAN")
	return false
}
