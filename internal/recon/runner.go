// Package recon runs one reconnaissance pass over a storefront URL: open the
// page, wait for the DOM to settle, sanitize, produce a selector report,
// validate it and persist it.
package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/api/schemas"
	"github.com/xkilldash9x/funnel-recon/internal/contract"
	"github.com/xkilldash9x/funnel-recon/internal/producer"
	"github.com/xkilldash9x/funnel-recon/internal/sanitize"
	"github.com/xkilldash9x/funnel-recon/internal/stability"
	"github.com/xkilldash9x/funnel-recon/internal/store"
)

// Dependencies are the collaborators a Runner drives.
type Dependencies struct {
	Browser    schemas.BrowserManager
	Detector   *stability.Detector
	Sanitizer  *sanitize.Sanitizer
	Producer   producer.Producer
	Repository store.Repository
}

// Outcome describes one Analyze call. Fields are filled as far as the run
// progressed, so a failed run still reports its id and stability result.
type Outcome struct {
	RunID     string
	URL       string
	Stability stability.Result
	// Degraded is set when the page never settled.
	Degraded   bool
	Producer   string
	CleanBytes int
	Report     *contract.AnalysisReport
	Location   string
	Duration   time.Duration
}

// Runner executes analyses. It holds no per-run state and may be shared by
// concurrent callers.
type Runner struct {
	deps     Dependencies
	logger   *zap.Logger
	newRunID func() string
}

// NewRunner checks that every collaborator is present.
func NewRunner(deps Dependencies, logger *zap.Logger) (*Runner, error) {
	switch {
	case deps.Browser == nil:
		return nil, fmt.Errorf("browser manager is required")
	case deps.Detector == nil:
		return nil, fmt.Errorf("stability detector is required")
	case deps.Sanitizer == nil:
		return nil, fmt.Errorf("sanitizer is required")
	case deps.Producer == nil:
		return nil, fmt.Errorf("producer is required")
	case deps.Repository == nil:
		return nil, fmt.Errorf("repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		deps:     deps,
		logger:   logger.Named("recon"),
		newRunID: uuid.NewString,
	}, nil
}

// Analyze runs the full pipeline for url. A page that does not settle is not
// an error: the run continues on the best-effort markup and the persisted
// report carries a note saying so. Malformed producer output and contract
// violations are returned and nothing is persisted.
func (r *Runner) Analyze(ctx context.Context, url string) (out *Outcome, err error) {
	start := time.Now()
	out = &Outcome{RunID: r.newRunID(), URL: url}
	logger := r.logger.With(zap.String("run_id", out.RunID), zap.String("url", url))
	defer func() { out.Duration = time.Since(start) }()

	logger.Info("Starting analysis.")
	page, err := r.deps.Browser.Open(ctx, url)
	if err != nil {
		return out, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("Failed to close page.", zap.Error(cerr))
		}
	}()

	res, err := r.deps.Detector.Detect(ctx, page.ContentLength)
	out.Stability = res
	if err != nil {
		return out, fmt.Errorf("stability detection failed: %w", err)
	}
	if errors.Is(res.Err(), stability.ErrStabilityTimeout) {
		out.Degraded = true
		logger.Warn("DOM did not stabilize before the timeout; continuing with best-effort HTML.",
			zap.Int("samples_taken", res.SamplesTaken),
			zap.Duration("elapsed", res.Elapsed),
		)
	} else {
		logger.Info("DOM stabilized.", zap.Int("samples_taken", res.SamplesTaken), zap.Duration("elapsed", res.Elapsed))
	}

	rawHTML, err := page.HTML(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to read page HTML: %w", err)
	}
	clean := r.deps.Sanitizer.Clean(rawHTML)
	out.CleanBytes = clean.CleanBytes

	out.Producer = r.deps.Producer.Name()
	produced, err := r.deps.Producer.Produce(ctx, producer.Request{URL: url, RawHTML: rawHTML, CleanHTML: clean.HTML})
	if err != nil {
		return out, fmt.Errorf("%s producer failed: %w", out.Producer, err)
	}

	report, err := producer.Decode(produced)
	if err != nil {
		r.logRejection(logger, err)
		return out, err
	}

	if out.Degraded {
		report = report.WithNotes(degradedNote(r.deps.Detector.Options(), res))
	}
	if report.URL != url {
		logger.Warn("Report URL differs from the analyzed URL; storing under the analyzed URL.", zap.String("report_url", report.URL))
		cp := *report
		cp.URL = url
		report = &cp
	}
	out.Report = report

	location, err := r.deps.Repository.Save(ctx, report)
	if err != nil {
		return out, fmt.Errorf("failed to persist report: %w", err)
	}
	out.Location = location

	logger.Info("Analysis complete.",
		zap.String("status", string(report.Status)),
		zap.Int("errors", len(report.Errors)),
		zap.String("location", location),
	)
	return out, nil
}

func (r *Runner) logRejection(logger *zap.Logger, err error) {
	var verr *contract.ValidationError
	var merr *producer.MalformedOutputError
	switch {
	case errors.As(err, &verr):
		logger.Error("Producer output violates the selector contract.",
			zap.Int("violations", len(verr.Violations)),
			zap.Strings("paths", verr.Paths()),
			zap.Bool("empty_selector_object", errors.Is(err, contract.ErrEmptySelectorObject)),
		)
	case errors.As(err, &merr):
		logger.Error("Producer output is not a JSON document.", zap.Error(merr.Err), zap.Int("raw_bytes", len(merr.Raw)))
	default:
		logger.Error("Producer output rejected.", zap.Error(err))
	}
}

func degradedNote(opts stability.Options, res stability.Result) string {
	return fmt.Sprintf("DOM did not stabilize within %s (%d samples taken); selectors were extracted from a page that may still have been changing",
		opts.Timeout, res.SamplesTaken)
}
