// Command xsltc compiles XSLT 3.0 stylesheets into a linked,
// statically-validated stylesheet representation. It does not execute
// stylesheets — there is no transform subcommand, by design (spec.md
// §1 Non-goals).
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/midbel/xsltc/cmd/cli"
)

var errFail = errors.New("fail")

var (
	summary = "xsltc compiles XSLT 3.0 stylesheets"
	help    = "xsltc builds a compiled, import/include-linked stylesheet representation from one or more XSLT 3.0 modules and reports static errors against the XTSE/XPST error taxonomy."
)

func main() {
	var (
		set  = cli.NewFlagSet("xsltc")
		root = prepare()
	)
	root.SetSummary(summary)
	root.SetHelp(help)
	if err := set.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			root.Help()
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := root.Execute(set.Args()); err != nil {
		if s, ok := err.(cli.SuggestionError); ok && len(s.Others) > 0 {
			fmt.Fprintln(os.Stderr, "similar command(s)")
			for _, n := range s.Others {
				fmt.Fprintln(os.Stderr, "-", n)
			}
		}
		if !errors.Is(err, errFail) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func prepare() *cli.CommandTrie {
	root := cli.New()
	root.Register([]string{"compile"}, &compileCmd)
	root.Register([]string{"check"}, &checkCmd)
	return root
}
