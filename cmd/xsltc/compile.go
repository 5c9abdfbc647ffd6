package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/midbel/xsltc/cmd/cli"
	"github.com/midbel/xsltc/xml"
	"github.com/midbel/xsltc/xslt"
)

var compileCmd = cli.Command{
	Name:    "compile",
	Summary: "compile an XSLT stylesheet and report its linked structure",
	Handler: &CompileCmd{},
}

type CompileCmd struct {
	Quiet bool
	Rules bool
}

// Run compiles the stylesheet named by the first argument, following
// every xsl:include/xsl:import it reaches through xslt.FileLinker, and
// prints a summary of the resulting xslt.CompiledStylesheet. There is
// no output document: this is a compiler, not a transform engine
// (spec.md §1 Non-goals).
func (c *CompileCmd) Run(args []string) error {
	set := flag.NewFlagSet("compile", flag.ContinueOnError)
	set.BoolVar(&c.Quiet, "quiet", false, "suppress the linking progress display")
	set.BoolVar(&c.Rules, "rules", false, "list every compiled template rule by mode")
	if err := set.Parse(args); err != nil {
		return err
	}
	file := set.Arg(0)
	if file == "" {
		return fmt.Errorf("compile: no stylesheet given")
	}

	linker := xslt.NewFileLinker(xslt.StderrDiagnostics())
	events := make(chan string, 8)
	linker.Progress = func(resolved string) {
		events <- resolved
	}

	type result struct {
		sheet *xslt.CompiledStylesheet
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer close(events)
		sheet, err := compileFile(file, linker)
		done <- result{sheet, err}
	}()

	if c.Quiet {
		for range events {
		}
	} else {
		runProgress(events)
	}
	res := <-done
	if res.err != nil {
		return res.err
	}
	printSummary(os.Stdout, res.sheet)
	if c.Rules {
		printRules(os.Stdout, res.sheet)
	}
	return nil
}

func compileFile(file string, linker *xslt.FileLinker) (*xslt.CompiledStylesheet, error) {
	doc, err := xml.ParseFile(file)
	if err != nil {
		return nil, err
	}
	builder := xslt.NewEventDrivenBuilder(file, xslt.StderrDiagnostics(), linker)
	if err := xml.Emit(builder, doc); err != nil {
		return nil, err
	}
	return builder.Seal()
}

// printRules lists every compiled template rule under its mode,
// identified by name where xsl:template gave one and by its
// synthesized Label otherwise (TemplateRule.DisplayName).
func printRules(w io.Writer, sheet *xslt.CompiledStylesheet) {
	for name, mode := range sheet.Modes {
		label := name
		if label == "" {
			label = "#default"
		}
		fmt.Fprintf(w, "mode %s:\n", label)
		for _, rule := range mode.Rules {
			fmt.Fprintf(w, "  %-12s match=%q priority=%v\n", rule.DisplayName(), rule.MatchSrc, rule.EffectivePriority())
		}
	}
}

func printSummary(w io.Writer, sheet *xslt.CompiledStylesheet) {
	var ruleCount int
	for _, mode := range sheet.Modes {
		ruleCount += len(mode.Rules)
	}
	fmt.Fprintf(w, "version:          %.1f\n", sheet.Version)
	fmt.Fprintf(w, "base uri:         %s\n", sheet.BaseURI)
	fmt.Fprintf(w, "modes:            %d\n", len(sheet.Modes))
	fmt.Fprintf(w, "template rules:   %d\n", ruleCount)
	fmt.Fprintf(w, "named templates:  %d\n", len(sheet.NamedTemplates))
	fmt.Fprintf(w, "global variables: %d\n", len(sheet.GlobalVariables))
	fmt.Fprintf(w, "functions:        %d\n", len(sheet.Functions))
	fmt.Fprintf(w, "keys:             %d\n", len(sheet.Keys))
	fmt.Fprintf(w, "attribute sets:   %d\n", len(sheet.AttributeSets))
	fmt.Fprintf(w, "character maps:   %d\n", len(sheet.CharacterMaps))
	fmt.Fprintf(w, "accumulators:     %d\n", len(sheet.Accumulators))
	fmt.Fprintf(w, "decimal formats:  %d\n", len(sheet.DecimalFormats))
	fmt.Fprintf(w, "schema imports:   %d\n", len(sheet.SchemaImports))
}
