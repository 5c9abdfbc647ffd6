package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/midbel/xsltc/cmd/cli"
	"github.com/midbel/xsltc/xslt"
)

var checkCmd = cli.Command{
	Name:    "check",
	Summary: "validate one or more XSLT stylesheets without printing a summary",
	Handler: &CheckCmd{},
}

type CheckCmd struct {
	FailFast bool
}

// Run compiles each argument in turn, reporting only pass/fail per
// file, grounded on cmd/angle/check.go's CheckCmd (its relax-schema
// counterpart): a thin loop over input files with a -fail-fast switch,
// generalized from "validate a document against a schema" to "compile
// a stylesheet and see whether it's free of static errors".
func (c *CheckCmd) Run(args []string) error {
	set := flag.NewFlagSet("check", flag.ContinueOnError)
	set.BoolVar(&c.FailFast, "fail-fast", false, "stop checking files as soon as the first error is encountered")
	if err := set.Parse(args); err != nil {
		return err
	}
	files := set.Args()
	if len(files) == 0 {
		return fmt.Errorf("check: no stylesheet given")
	}

	var failed bool
	for _, file := range files {
		linker := xslt.NewFileLinker(xslt.NoopDiagnostics())
		if _, err := compileFile(file, linker); err != nil {
			failed = true
			err = fmt.Errorf("%s: %w", file, err)
			if c.FailFast {
				return err
			}
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s: ok\n", file)
	}
	if failed {
		return errFail
	}
	return nil
}
