// internal/browser/manager_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/funnel-recon/api/schemas"
	"github.com/xkilldash9x/funnel-recon/internal/config"
)

func TestPersonaFromConfig(t *testing.T) {
	t.Run("empty config keeps the default persona", func(t *testing.T) {
		assert.Equal(t, schemas.DefaultPersona, PersonaFromConfig(config.PersonaConfig{}))
	})

	t.Run("overrides", func(t *testing.T) {
		p := PersonaFromConfig(config.PersonaConfig{
			UserAgent: "UA/1.0",
			Platform:  "Win32",
			Locale:    "de-DE",
			Timezone:  "Europe/Berlin",
			Width:     1920,
			Height:    1080,
		})
		assert.Equal(t, "UA/1.0", p.UserAgent)
		assert.Equal(t, "Win32", p.Platform)
		assert.Equal(t, "de-DE", p.Locale)
		assert.Equal(t, []string{"de-DE", "de"}, p.Languages)
		assert.Equal(t, "Europe/Berlin", p.Timezone)
		assert.Equal(t, int64(1920), p.Width)
		assert.Equal(t, int64(1080), p.Height)
	})

	t.Run("partial viewport is ignored", func(t *testing.T) {
		p := PersonaFromConfig(config.PersonaConfig{Width: 800})
		assert.Equal(t, schemas.DefaultPersona.Width, p.Width)
		assert.Equal(t, schemas.DefaultPersona.Height, p.Height)
	})

	t.Run("does not alias the default languages", func(t *testing.T) {
		p := PersonaFromConfig(config.PersonaConfig{})
		p.Languages[0] = "fr-FR"
		assert.Equal(t, "en-GB", schemas.DefaultPersona.Languages[0])
	})
}

func TestAllocatorFlags(t *testing.T) {
	flags := allocatorFlags(config.BrowserConfig{
		Headless:        true,
		IgnoreTLSErrors: true,
		Args:            []string{"--lang=en-GB", "--mute-audio", "--", "proxy-server=http://127.0.0.1:8080"},
	})

	assert.Equal(t, true, flags["headless"])
	assert.Equal(t, true, flags["ignore-certificate-errors"])
	assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
	assert.Equal(t, true, flags["disable-gpu"])
	assert.Equal(t, "en-GB", flags["lang"])
	assert.Equal(t, true, flags["mute-audio"])
	assert.Equal(t, "http://127.0.0.1:8080", flags["proxy-server"])
	assert.NotContains(t, flags, "")
	assert.Equal(t, false, flags["enable-automation"], "the default automation switch must be turned off")

	if runtime.GOOS == "linux" {
		assert.Equal(t, true, flags["no-sandbox"])
	}

	headful := allocatorFlags(config.BrowserConfig{})
	assert.Equal(t, false, headful["headless"])
	assert.Equal(t, false, headful["disable-gpu"])
}

func TestBuildAllocatorOptions(t *testing.T) {
	cfg := config.BrowserConfig{Headless: true}
	base := buildAllocatorOptions(cfg, schemas.DefaultPersona)

	// Defaults first, then every flag, then user agent and window size.
	want := len(chromedp.DefaultExecAllocatorOptions) + len(allocatorFlags(cfg)) + 2
	assert.Len(t, base, want)

	cfg.ExecPath = "/opt/chrome"
	withPath := buildAllocatorOptions(cfg, schemas.DefaultPersona)
	assert.Len(t, withPath, want+1)
}

// findChrome locates a local browser binary for the integration tests.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome or Chromium binary found on PATH")
	return ""
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.BrowserConfig{
		Headless:          true,
		IgnoreTLSErrors:   true,
		ExecPath:          findChrome(t),
		NavigationTimeout: 20 * time.Second,
		Stealth:           true,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	m, err := NewManager(ctx, cfg, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = m.Shutdown(shutdownCtx)
	})
	return m
}

func TestManager_OpenReadsPage(t *testing.T) {
	m := newTestManager(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Shop</title></head><body>
<div id="cart"></div>
<script>
  navigator.webdriver === true || document.getElementById("cart").setAttribute("data-stealth", "ok");
  document.getElementById("cart").setAttribute("data-ua", navigator.userAgent.indexOf("HeadlessChrome") === -1 ? "clean" : "headless");
</script>
</body></html>`)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	page, err := m.Open(ctx, server.URL)
	require.NoError(t, err)
	defer page.Close()

	assert.Equal(t, server.URL, page.URL())

	html, err := page.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, `id="cart"`)
	assert.Contains(t, html, `data-stealth="ok"`)
	assert.Contains(t, html, `data-ua="clean"`)

	length, err := page.ContentLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(html), length)

	require.NoError(t, page.Close())
	require.NoError(t, page.Close())
	_, err = page.HTML(ctx)
	assert.ErrorIs(t, err, ErrPageClosed)
}

func TestManager_PagesAreIsolated(t *testing.T) {
	m := newTestManager(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("consent"); err == nil {
			fmt.Fprintf(w, `<html><body><p id="seen">%s</p></body></html>`, c.Value)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "consent", Value: "given", Path: "/"})
		fmt.Fprint(w, `<html><body><p id="fresh">banner</p></body></html>`)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		page, err := m.Open(ctx, server.URL)
		require.NoError(t, err)
		html, err := page.HTML(ctx)
		require.NoError(t, err)
		assert.Contains(t, html, `id="fresh"`, "page %d saw another page's cookies", i)
		require.NoError(t, page.Close())
	}
}

func TestManager_OpenAfterShutdown(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.Open(context.Background(), "about:blank")
	assert.Error(t, err)
	assert.NoError(t, m.Shutdown(context.Background()))
}
