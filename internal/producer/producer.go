// Package producer turns a settled page into a candidate selector report.
// Producers only emit candidates; the contract validator decides whether a
// candidate becomes a report.
package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/funnel-recon/internal/contract"
	"github.com/xkilldash9x/funnel-recon/internal/llmutil"
)

// ErrMalformedOutput is returned when a producer's output holds no decodable
// JSON document.
var ErrMalformedOutput = errors.New("producer output is not a JSON document")

// MalformedOutputError carries the raw producer output for the operator.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	msg := "malformed producer output"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

func (e *MalformedOutputError) Is(target error) bool { return target == ErrMalformedOutput }

// Request is the input to one producer run.
type Request struct {
	URL string
	// RawHTML is the unsanitized markup of the settled page.
	RawHTML string
	// CleanHTML is the sanitized markup.
	CleanHTML string
}

// Output is a candidate report document and the producer output it came from.
type Output struct {
	Document []byte
	Raw      string
	Producer string
}

// Producer emits a candidate report for a page.
type Producer interface {
	Name() string
	Produce(ctx context.Context, req Request) (*Output, error)
}

// Decode validates the candidate document. Bytes that are not JSON at all are
// reported as a MalformedOutputError; contract violations are returned as-is.
func Decode(out *Output) (*contract.AnalysisReport, error) {
	report, err := contract.ValidateJSON(out.Document)
	if err == nil {
		return report, nil
	}
	var decodeErr *contract.DecodeError
	if errors.As(err, &decodeErr) {
		return nil, &MalformedOutputError{Raw: llmutil.Truncate(out.Raw, maxRawBytes), Err: err}
	}
	return nil, fmt.Errorf("%s producer: %w", out.Producer, err)
}

// maxRawBytes bounds the raw output kept on errors.
const maxRawBytes = 64 << 10
