package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

const (
	DefaultStepTimeout = 30 * time.Second
	urlPollInterval    = 500 * time.Millisecond
)

const storageScript = `(() => {
	const out = {};
	for (const s of [window.sessionStorage, window.localStorage]) {
		for (let i = 0; i < s.length; i++) {
			const k = s.key(i);
			out[k] = s.getItem(k);
		}
	}
	return out;
})()`

var _ Browser = (*ChromeBrowser)(nil)

// ChromeBrowser starts a local Chrome through chromedp.
type ChromeBrowser struct {
	Headless    bool
	ExecPath    string
	StepTimeout time.Duration
}

func (b *ChromeBrowser) Open(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if b.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.ExecPath))
	}

	// the allocator derives from ctx, so cancelling the caller tears Chrome down
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	stepTimeout := b.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &chromeSession{
		tab:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		stepTimeout: stepTimeout,
	}, nil
}

type chromeSession struct {
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	stepTimeout time.Duration
	closeOnce   sync.Once
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = s.stepTimeout
	}
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, 0, chromedp.Navigate(url))
}

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx, 0,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.Clear(selector, chromedp.BySearch),
		chromedp.SendKeys(selector, value, chromedp.BySearch),
	)
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, 0,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.Click(selector, chromedp.BySearch),
	)
}

func (s *chromeSession) TryClick(ctx context.Context, selector string, timeout time.Duration) bool {
	err := s.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.Click(selector, chromedp.BySearch),
	)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("selector", selector).Msg("optional element not clicked")
		return false
	}
	return true
}

func (s *chromeSession) WaitURLContains(ctx context.Context, fragment string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		current, err := s.URL(ctx)
		if err == nil && strings.Contains(current, fragment) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("url did not reach '%s' within %s (at '%s')", fragment, timeout, current)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(urlPollInterval):
		}
	}
}

func (s *chromeSession) URL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, 0, chromedp.Location(&url))
	return url, err
}

func (s *chromeSession) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
	}
	return cookies, nil
}

func (s *chromeSession) Storage(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	if err := s.Eval(ctx, storageScript, &out); err != nil {
		return nil, fmt.Errorf("reading web storage: %w", err)
	}
	return out, nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page: %w", err)
	}
	return html, nil
}

func (s *chromeSession) Eval(ctx context.Context, script string, out any) error {
	return s.run(ctx, 0, chromedp.Evaluate(script, out))
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		// graceful close first, then make sure the process is gone
		if err := chromedp.Cancel(s.tab); err != nil {
			log.Debug().Err(err).Msg("graceful browser shutdown failed")
		}
		s.tabCancel()
		s.allocCancel()
	})
	return nil
}
