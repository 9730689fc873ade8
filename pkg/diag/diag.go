// Package diag accumulates the errors and warnings of a run so that a single
// invocation reports every problem it can find instead of stopping at the first.
package diag

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Severity of a finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one recorded problem
type Finding struct {
	Severity Severity
	Source   string
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Source, f.Message)
}

// Diagnostics collects findings from every stage of a run
type Diagnostics struct {
	errors   []Finding
	warnings []Finding
	logger   zerolog.Logger
	observer func(Severity)
}

// New creates an empty collector that also logs each finding
func New(logger zerolog.Logger) *Diagnostics {
	return &Diagnostics{logger: logger}
}

// OnRecord registers a callback invoked for every finding
func (d *Diagnostics) OnRecord(fn func(Severity)) {
	d.observer = fn
}

// Errorf records an error
func (d *Diagnostics) Errorf(source, format string, args ...interface{}) {
	f := Finding{Severity: SeverityError, Source: source, Message: fmt.Sprintf(format, args...)}
	d.errors = append(d.errors, f)
	d.logger.Error().Str("source", source).Msg(f.Message)
	if d.observer != nil {
		d.observer(SeverityError)
	}
}

// Warnf records a warning
func (d *Diagnostics) Warnf(source, format string, args ...interface{}) {
	f := Finding{Severity: SeverityWarning, Source: source, Message: fmt.Sprintf(format, args...)}
	d.warnings = append(d.warnings, f)
	d.logger.Warn().Str("source", source).Msg(f.Message)
	if d.observer != nil {
		d.observer(SeverityWarning)
	}
}

// Errors returns the recorded errors in order
func (d *Diagnostics) Errors() []Finding {
	return d.errors
}

// Warnings returns the recorded warnings in order
func (d *Diagnostics) Warnings() []Finding {
	return d.warnings
}

// HasErrors reports whether any error was recorded
func (d *Diagnostics) HasErrors() bool {
	return len(d.errors) > 0
}

// ErrorsFrom returns the errors recorded by one source
func (d *Diagnostics) ErrorsFrom(source string) []Finding {
	return filter(d.errors, source)
}

// WarningsFrom returns the warnings recorded by one source
func (d *Diagnostics) WarningsFrom(source string) []Finding {
	return filter(d.warnings, source)
}

func filter(findings []Finding, source string) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Source == source {
			out = append(out, f)
		}
	}
	return out
}

// Report renders both lists the way the CLI prints them
func (d *Diagnostics) Report() string {
	var b strings.Builder
	if len(d.warnings) > 0 {
		fmt.Fprintf(&b, "##### WARNINGS (%d) #####\n", len(d.warnings))
		for _, w := range d.warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}
	if len(d.errors) > 0 {
		fmt.Fprintf(&b, "##### ERRORS (%d) #####\n", len(d.errors))
		for _, e := range d.errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	return b.String()
}
