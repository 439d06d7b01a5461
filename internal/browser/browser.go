package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser wraps a single Chromium instance used to capture product pages
// server-side when the extension sends a URL instead of raw HTML.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--window-size=1920,1080",
			"--user-agent=" + opts.UserAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	}

	browserCtx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: browserCtx,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// FetchProductPage navigates to a product URL and returns the rendered HTML.
// Navigation retries a few times before giving up; the caller hands the HTML
// to the listing parser.
func (b *Browser) FetchProductPage(ctx context.Context, url string) (string, error) {
	page, err := b.NewPage()
	if err != nil {
		return "", err
	}
	defer page.Close()

	if err := b.navigateWithRetry(ctx, page, url, 3); err != nil {
		return "", err
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}

	return content, nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(DefaultOptions().Timeout.Milliseconds()))

	return page, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

func (b *Browser) navigateWithRetry(ctx context.Context, page playwright.Page, url string, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			time.Sleep(time.Duration(i+1) * time.Second)
		}

		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(30000),
		})

		if err == nil {
			bypassed, err := b.checkAndBypassBotProtection(page)
			if err != nil {
				b.logger.Error("failed to check bot protection", "error", err)
				lastErr = err
				continue
			}
			if bypassed {
				b.logger.Info("bot protection bypassed")
			}
			return nil
		}

		lastErr = err
		b.logger.Error("navigation failed", "error", err, "attempt", i+1)
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// checkAndBypassBotProtection detects the interstitial bot check page and
// clicks through it when a continue button is present.
func (b *Browser) checkAndBypassBotProtection(page playwright.Page) (bool, error) {
	time.Sleep(2 * time.Second)

	title, err := page.Title()
	if err != nil {
		return false, fmt.Errorf("failed to get page title: %w", err)
	}

	b.logger.Debug("checking page", "title", title)

	content, err := page.Content()
	if err != nil {
		return false, fmt.Errorf("failed to get page content: %w", err)
	}

	if strings.Contains(content, "Click the button below to continue shopping") ||
		strings.Contains(content, "Continue shopping") {
		b.logger.Info("bot protection detected, attempting bypass")

		buttonSelectors := []string{
			`button:has-text("Continue shopping")`,
			`input[type="submit"][value*="Continue"]`,
			`.a-button-primary`,
			`button.a-button-text`,
		}

		for _, selector := range buttonSelectors {
			button := page.Locator(selector).First()

			count, err := button.Count()
			if err != nil || count == 0 {
				continue
			}

			b.logger.Info("found bot check button", "selector", selector)

			if err := button.Click(); err != nil {
				b.logger.Error("failed to click button", "error", err)
				continue
			}

			time.Sleep(3 * time.Second)

			newContent, _ := page.Content()

			if !strings.Contains(newContent, "Click the button below to continue shopping") {
				b.logger.Info("successfully bypassed bot protection")
				return true, nil
			}
		}

		return false, fmt.Errorf("could not find button to bypass bot protection")
	}

	if strings.Contains(title, "Sorry! Something went wrong") ||
		strings.Contains(content, "Sorry! Something went wrong") {
		return false, fmt.Errorf("marketplace error page detected")
	}

	return false, nil
}
