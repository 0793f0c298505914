package app

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/okian/lcarun/internal/domain/extract"
)

// Report headings and messages written to the user.
const (
	resultsHeading  = "=== Impact assessment results ==="
	fallbackHeading = "No climate change impact category found, showing impact results:"
	emptyNotice     = "No impact categories or technical flows found"
	finishedNotice  = "Calculation complete."
	amountPlaces    = 3
)

// FailureHints lists what to check after a workflow error.
func FailureHints(port int) []string {
	return []string{
		"the LCA application is running",
		fmt.Sprintf("its IPC server is started (port %d)", port),
		"the database contains the process and the impact assessment method",
	}
}

// FormatAmount renders an amount with three decimals, rounding half away
// from zero.
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', amountPlaces, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(amountPlaces)
}

// RenderReport writes the extracted indicator lines. extractErr, when set,
// is the error that stopped the extraction; the lines gathered before it
// are still written.
func RenderReport(w io.Writer, r extract.Report, extractErr error) error {
	ew := &errWriter{w: w}

	ew.println()
	ew.println(resultsHeading)

	switch {
	case r.Empty:
		ew.println(emptyNotice)
	default:
		if !r.Climate && len(r.Lines) > 0 {
			ew.println(fallbackHeading)
		}
		for _, line := range r.Lines {
			if line.Err != nil {
				ew.printf("Cannot get impact value of %s: %v\n", line.Label, line.Err)
				continue
			}
			ew.printf("%s: %s %s\n", line.Label, FormatAmount(line.Amount), line.Unit)
		}
	}

	if extractErr != nil {
		ew.printf("Error: %v\n", extractErr)
	}
	ew.println()
	ew.println(finishedNotice)
	return ew.err
}

// RenderFailure writes a workflow error followed by the troubleshooting hints.
func RenderFailure(w io.Writer, err error, port int) error {
	ew := &errWriter{w: w}
	ew.printf("Error: %v\n", err)
	ew.println("Please make sure that:")
	for i, hint := range FailureHints(port) {
		ew.printf("%d. %s\n", i+1, hint)
	}
	return ew.err
}

// Render writes the result of Run: the report when extraction was reached,
// otherwise the failure with hints.
func Render(w io.Writer, out Outcome, runErr error, port int) error {
	if runErr == nil || errors.Is(runErr, ErrExtraction) {
		return RenderReport(w, out.Report, runErr)
	}
	return RenderFailure(w, runErr, port)
}

// errWriter keeps the first write error so rendering can ignore it until
// the end.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *errWriter) println(args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintln(e.w, args...)
}
