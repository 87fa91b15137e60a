// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/api/schemas"
	"github.com/xkilldash9x/funnel-recon/internal/browser/stealth"
	"github.com/xkilldash9x/funnel-recon/internal/config"
)

const (
	launchTimeout          = 30 * time.Second
	defaultNavigationLimit = 60 * time.Second
	cleanupTimeout         = 5 * time.Second
)

// Manager handles the lifecycle of the Chrome process. Each Open call gets
// its own browser context so storefront cookies never leak between runs.
type Manager struct {
	logger  *zap.Logger
	cfg     config.BrowserConfig
	persona schemas.Persona

	// allocatorCtx owns the browser process; browserCtx is the first tab
	// chromedp creates and is used to issue browser-level commands.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// wg tracks open pages for a graceful shutdown.
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

var _ schemas.BrowserManager = (*Manager)(nil)

// NewManager launches the browser and verifies it responds.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		cfg:     cfg,
		persona: PersonaFromConfig(cfg.Persona),
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

// PersonaFromConfig overlays configured fingerprint fields on the default
// persona.
func PersonaFromConfig(pc config.PersonaConfig) schemas.Persona {
	p := schemas.DefaultPersona
	p.Languages = append([]string(nil), schemas.DefaultPersona.Languages...)
	if pc.UserAgent != "" {
		p.UserAgent = pc.UserAgent
	}
	if pc.Platform != "" {
		p.Platform = pc.Platform
	}
	if pc.Locale != "" {
		p.Locale = pc.Locale
		p.Languages = schemas.LanguagesFor(pc.Locale)
	}
	if pc.Timezone != "" {
		p.Timezone = pc.Timezone
	}
	if pc.Width > 0 && pc.Height > 0 {
		p.Width = pc.Width
		p.Height = pc.Height
	}
	return p
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...")

	// The allocator must outlive the launch context; Shutdown cancels it.
	allocCtx, cancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), buildAllocatorOptions(m.cfg, m.persona)...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel
	m.browserCtx, m.browserCancel = chromedp.NewContext(allocCtx)

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(m.browserCtx, chromedp.Navigate("about:blank")) }()

	timer := time.NewTimer(launchTimeout)
	defer timer.Stop()
	var err error
	select {
	case err = <-done:
	case <-timer.C:
		err = fmt.Errorf("browser did not respond within %s", launchTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// allocatorFlags returns the command line flags for the browser process,
// keyed by flag name.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"enable-automation":         false,
		"headless":                  cfg.Headless,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
		"disable-blink-features":    "AutomationControlled",
		"disable-extensions":        true,
		"disable-gpu":               cfg.Headless,
	}
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(arg, "=")
		name = strings.TrimPrefix(name, "--")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

func buildAllocatorOptions(cfg config.BrowserConfig, persona schemas.Persona) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)

	// Flags are applied after the defaults, so a false value here removes
	// a default switch such as enable-automation.
	flags := allocatorFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	opts = append(opts,
		chromedp.UserAgent(persona.UserAgent),
		chromedp.WindowSize(int(persona.Width), int(persona.Height)),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// browserExecutor targets browser-level CDP domains rather than the first tab.
func (m *Manager) browserExecutor() (context.Context, error) {
	c := chromedp.FromContext(m.browserCtx)
	if c == nil || c.Browser == nil {
		return nil, fmt.Errorf("browser is not running")
	}
	return cdp.WithExecutor(m.browserCtx, c.Browser), nil
}

// Open creates an isolated tab, applies the persona and navigates to url.
func (m *Manager) Open(ctx context.Context, url string) (schemas.PageHandle, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	p, err := m.open(ctx, url)
	if err != nil {
		m.wg.Done()
		return nil, err
	}
	return p, nil
}

func (m *Manager) open(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	execCtx, err := m.browserExecutor()
	if err != nil {
		return nil, err
	}

	browserContextID, err := target.CreateBrowserContext().WithDisposeOnDetach(true).Do(execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	targetID, err := target.CreateTarget("about:blank").WithBrowserContextID(browserContextID).Do(execCtx)
	if err != nil {
		m.disposeBrowserContext(browserContextID)
		return nil, fmt.Errorf("failed to create target: %w", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(targetID))
	p := &Page{
		url:              url,
		ctx:              tabCtx,
		cancel:           cancelTab,
		browserContextID: browserContextID,
		manager:          m,
	}

	var tasks chromedp.Tasks
	if m.cfg.Stealth {
		tasks = append(tasks, stealth.Apply(m.persona, m.logger))
	}
	if err := chromedp.Run(tabCtx, tasks...); err != nil {
		p.release()
		return nil, fmt.Errorf("failed to prepare tab: %w", err)
	}

	if err := p.navigate(ctx, m.navigationTimeout()); err != nil {
		p.release()
		return nil, err
	}
	m.logger.Debug("Page opened.", zap.String("url", url), zap.String("target_id", string(targetID)))
	return p, nil
}

func (m *Manager) navigationTimeout() time.Duration {
	if m.cfg.NavigationTimeout > 0 {
		return m.cfg.NavigationTimeout
	}
	return defaultNavigationLimit
}

func (m *Manager) disposeBrowserContext(id cdp.BrowserContextID) {
	if m.browserCtx.Err() != nil {
		return
	}
	execCtx, err := m.browserExecutor()
	if err != nil {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(execCtx, cleanupTimeout)
	defer cancel()
	if err := target.DisposeBrowserContext(id).Do(cleanupCtx); err != nil {
		m.logger.Debug("Failed best-effort cleanup of browser context.", zap.String("browserContextID", string(id)), zap.Error(err))
	}
}

// Shutdown waits for open pages to close, bounded by ctx, then terminates the
// browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages to close...")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	m.browserCancel()
	m.allocatorCancel()
	<-m.allocatorCtx.Done()
	m.logger.Info("Browser process terminated.")
	return nil
}
