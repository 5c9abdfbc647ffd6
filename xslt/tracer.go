package xslt

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// Diagnostics is the compiler's optional observability hook (spec.md
// §7 "warnings ... are passed to the host's error listener"). Grounded
// on the teacher's `Tracer` interface (xslt/tracer.go), which reports
// execution steps to an attachable listener with a no-op default; this
// generalizes it from "entering/leaving an executed instruction" to
// "entering/leaving a compiled element" and adds Warning for the
// forward-compatible-mode and similar non-fatal notices spec.md names,
// since there is no execution step here to report on.
type Diagnostics interface {
	Start()
	Done()
	Enter(loc Location, qname string)
	Leave(loc Location, qname string)
	Warning(loc Location, code, message string)
	Error(loc Location, err error)
}

// NoopDiagnostics returns a listener that discards every call, the
// default when a host attaches nothing (zero overhead, matching the
// teacher's NoopTracer).
func NoopDiagnostics() Diagnostics {
	return discardDiagnostics{}
}

type discardDiagnostics struct{}

func (discardDiagnostics) Start()                          {}
func (discardDiagnostics) Done()                            {}
func (discardDiagnostics) Enter(Location, string)           {}
func (discardDiagnostics) Leave(Location, string)           {}
func (discardDiagnostics) Warning(Location, string, string) {}
func (discardDiagnostics) Error(Location, error)            {}

// stdioDiagnostics logs to an slog.Logger, the same structured-logging
// choice the teacher's stdioTracer makes (log/slog over a third-party
// logging library — there is none anywhere in the retrieved pack). One
// instance is shared across a whole compilation session, including
// every module xslt/linker.go's FileLinker resolves — and, since
// declarations.go's flushPendingImports resolves sibling xsl:import
// hrefs concurrently, its own methods may run on several goroutines at
// once. slog's built-in handlers already serialize their writes
// internally, but the plain counters below do not, so they are
// atomic.Int64 rather than int.
type stdioDiagnostics struct {
	logger    *slog.Logger
	when      time.Time
	errCount  atomic.Int64
	warnCount atomic.Int64
	elemCount atomic.Int64
}

// StdoutDiagnostics and StderrDiagnostics mirror the teacher's
// Stdout()/Stderr() constructors.
func StdoutDiagnostics() Diagnostics {
	return &stdioDiagnostics{logger: diagnosticsLogger(os.Stdout), when: time.Now()}
}

func StderrDiagnostics() Diagnostics {
	return &stdioDiagnostics{logger: diagnosticsLogger(os.Stderr), when: time.Now()}
}

func diagnosticsLogger(w io.Writer) *slog.Logger {
	opts := slog.HandlerOptions{Level: slog.LevelDebug}
	return slog.New(slog.NewTextHandler(w, &opts))
}

func (d *stdioDiagnostics) Start() {
	d.logger.Info("compile start")
}

func (d *stdioDiagnostics) Done() {
	d.logger.Info("compile done",
		"elapsed", time.Since(d.when),
		"elements", d.elemCount.Load(),
		"warnings", d.warnCount.Load(),
		"errors", d.errCount.Load(),
	)
}

func (d *stdioDiagnostics) Enter(loc Location, qname string) {
	d.elemCount.Add(1)
	d.logger.Debug("enter element", "at", loc.String(), "name", qname)
}

func (d *stdioDiagnostics) Leave(loc Location, qname string) {
	d.logger.Debug("leave element", "at", loc.String(), "name", qname)
}

func (d *stdioDiagnostics) Warning(loc Location, code, message string) {
	d.warnCount.Add(1)
	d.logger.Warn(message, "at", loc.String(), "code", code)
}

func (d *stdioDiagnostics) Error(loc Location, err error) {
	d.errCount.Add(1)
	d.logger.Error(err.Error(), "at", loc.String())
}
