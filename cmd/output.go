// File: cmd/output.go
package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/funnel-recon/internal/contract"
	"github.com/xkilldash9x/funnel-recon/internal/producer"
	"github.com/xkilldash9x/funnel-recon/internal/recon"
)

var (
	good  = color.New(color.FgGreen, color.Bold).SprintFunc()
	bad   = color.New(color.FgRed).SprintFunc()
	warn  = color.New(color.FgYellow).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
)

func okMark() string   { return good("✔") }
func failMark() string { return color.New(color.FgRed, color.Bold).Sprint("✘") }

func statusColor(s contract.Status) string {
	switch s {
	case contract.StatusSuccess:
		return color.GreenString(string(s))
	case contract.StatusPartial:
		return color.YellowString(string(s))
	default:
		return color.RedString(string(s))
	}
}

// printOutcome writes the summary of a successful run.
func printOutcome(w io.Writer, out *recon.Outcome) {
	fmt.Fprintf(w, "%s %s %s\n", okMark(), out.URL, faint(fmt.Sprintf("(run %s, %s)", out.RunID, out.Duration.Round(time.Millisecond))))
	fmt.Fprintf(w, "  status:    %s\n", statusColor(out.Report.Status))
	fmt.Fprintf(w, "  producer:  %s\n", out.Producer)
	if out.Degraded {
		fmt.Fprintf(w, "  stability: %s\n", warn(fmt.Sprintf("did not settle (%d samples), report marked low confidence", out.Stability.SamplesTaken)))
	} else {
		fmt.Fprintf(w, "  stability: settled after %d samples\n", out.Stability.SamplesTaken)
	}
	if n := len(out.Report.Errors); n > 0 {
		fmt.Fprintf(w, "  errors:    %s\n", warn(fmt.Sprintf("%d element(s) not found", n)))
	}
	fmt.Fprintf(w, "  saved:     %s\n", out.Location)
}

// printFailure writes why a run failed. A malformed producer response is
// echoed verbatim so it can be inspected.
func printFailure(w io.Writer, target string, err error) {
	fmt.Fprintf(w, "%s %s %s\n", failMark(), target, bad(rejectionSummary(err)))

	var verr *contract.ValidationError
	var merr *producer.MalformedOutputError
	switch {
	case errors.As(err, &verr):
		printViolations(w, verr)
	case errors.As(err, &merr):
		fmt.Fprintln(w, faint("  --- raw producer response ---"))
		fmt.Fprintln(w, merr.Raw)
		fmt.Fprintln(w, faint("  --- end of response ---"))
	default:
		fmt.Fprintf(w, "  %v\n", err)
	}
}

func rejectionSummary(err error) string {
	switch {
	case errors.Is(err, contract.ErrEmptySelectorObject):
		return "report rejected: a selector object has no primary selector"
	case errors.Is(err, contract.ErrSchemaViolation):
		return "report rejected: selector contract violated"
	case errors.Is(err, producer.ErrMalformedOutput):
		return "report rejected: producer output is not JSON"
	default:
		return "analysis failed"
	}
}

func printViolations(w io.Writer, verr *contract.ValidationError) {
	for _, v := range verr.Violations {
		fmt.Fprintf(w, "  - %s %s\n", v.String(), faint("["+string(v.Kind)+"]"))
	}
}

// toYAML re-renders a JSON document as block-style YAML, keeping key order.
func toYAML(doc []byte) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	blockStyle(&root)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// blockStyle clears the flow and quoting styles a JSON source leaves on
// every node. The encoder still quotes strings that would otherwise read
// as another type.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
