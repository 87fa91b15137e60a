// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/internal/config"
	"github.com/xkilldash9x/funnel-recon/internal/contract"
	"github.com/xkilldash9x/funnel-recon/internal/mocks"
	"github.com/xkilldash9x/funnel-recon/internal/observability"
	"github.com/xkilldash9x/funnel-recon/internal/producer"
	"github.com/xkilldash9x/funnel-recon/internal/recon"
	"github.com/xkilldash9x/funnel-recon/internal/sanitize"
	"github.com/xkilldash9x/funnel-recon/internal/service"
	"github.com/xkilldash9x/funnel-recon/internal/stability"
	"github.com/xkilldash9x/funnel-recon/internal/store"
)

const fixturePath = "../internal/contract/testdata/grass_direct.json"

func init() {
	color.NoColor = true
}

// resetForTest gives each command run a fresh global logger.
func resetForTest(t *testing.T) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
}

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(fixturePath)
	require.NoError(t, err)
	return data
}

// stubProducer returns the same document, or raw text, for every page.
type stubProducer struct {
	doc []byte
	raw string
}

func (p *stubProducer) Name() string { return "stub" }

func (p *stubProducer) Produce(context.Context, producer.Request) (*producer.Output, error) {
	return &producer.Output{Document: p.doc, Raw: p.raw, Producer: p.Name()}, nil
}

// fakeFactory builds real runners around a mock browser. URLs containing
// "broken" fail to open.
type fakeFactory struct {
	producer producer.Producer
	err      error

	mu     sync.Mutex
	calls  int
	cfg    config.Interface
	opened []string
}

func (f *fakeFactory) Create(_ context.Context, cfg config.Interface, logger *zap.Logger) (*service.Components, error) {
	f.mu.Lock()
	f.calls++
	f.cfg = cfg
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	browser := new(mocks.MockBrowserManager)
	browser.On("Open", mock.Anything, mock.MatchedBy(func(url string) bool {
		return strings.Contains(url, "broken")
	})).Return(nil, errBrowser)
	browser.On("Open", mock.Anything, mock.Anything).Return(newStaticPage(), nil).Run(func(args mock.Arguments) {
		f.mu.Lock()
		f.opened = append(f.opened, args.String(1))
		f.mu.Unlock()
	})
	browser.On("Shutdown", mock.Anything).Return(nil)

	detector, err := stability.NewDetector(stability.Options{
		Interval:              time.Millisecond,
		RequiredStableSamples: 2,
		Timeout:               time.Second,
	}, logger)
	if err != nil {
		return nil, err
	}
	repo, err := store.Open(context.Background(), cfg.Store(), logger)
	if err != nil {
		return nil, err
	}
	runner, err := recon.NewRunner(recon.Dependencies{
		Browser:    browser,
		Detector:   detector,
		Sanitizer:  sanitize.New(cfg.Sanitizer(), logger),
		Producer:   f.producer,
		Repository: repo,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &service.Components{Runner: runner, BrowserManager: browser, Repository: repo}, nil
}

func (f *fakeFactory) openedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

var errBrowser = errors.New("net::ERR_NAME_NOT_RESOLVED")

// newStaticPage returns a page whose document never changes size.
func newStaticPage() *mocks.MockPage {
	page := new(mocks.MockPage)
	page.On("ContentLength", mock.Anything).Return(2048, nil)
	page.On("HTML", mock.Anything).Return(`<html><body><button id="add-to-cart">Add to basket</button></body></html>`, nil)
	page.On("Close").Return(nil)
	return page
}

// executeCommand runs a fresh command tree and returns stdout and stderr.
// Every run gets its own store directory and a quiet logger unless the
// caller overrides them.
func executeCommand(t *testing.T, factory service.ComponentFactory, args ...string) (string, string, *app, error) {
	t.Helper()
	resetForTest(t)

	root, a := newRootCmd(factory)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))

	base := []string{
		"--log-level", "error",
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
	}
	root.SetArgs(append(base, args...))

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), a, err
}

// executeWithInput is executeCommand with stdin.
func executeWithInput(t *testing.T, factory service.ComponentFactory, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetForTest(t)

	root, _ := newRootCmd(factory)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--log-level", "error", "--env-file", ""}, args...))

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func saveFixture(t *testing.T, dir string) *contract.AnalysisReport {
	t.Helper()
	report, err := contract.ValidateJSON(readFixture(t))
	require.NoError(t, err)
	fs, err := store.NewFileStore(dir, "", zap.NewNop())
	require.NoError(t, err)
	_, err = fs.Save(context.Background(), report)
	require.NoError(t, err)
	return report
}
