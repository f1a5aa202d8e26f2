// Package browsertest provides a scripted in-memory browser for driver tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/browser"
)

var _ browser.Browser = (*Browser)(nil)

// Browser hands out sessions built by NewSession and counts open sessions.
type Browser struct {
	NewSession func() *Session
	OpenErr    error

	opened atomic.Int32
	closed atomic.Int32
	active atomic.Int32
	peak   atomic.Int32

	mu       sync.Mutex
	sessions []*Session
}

func (b *Browser) Open(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	s := &Session{}
	if b.NewSession != nil {
		s = b.NewSession()
	}
	s.owner = b

	b.opened.Add(1)
	n := b.active.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}

	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return s, nil
}

// Opened returns how many sessions were started.
func (b *Browser) Opened() int { return int(b.opened.Load()) }

// Closed returns how many sessions were released.
func (b *Browser) Closed() int { return int(b.closed.Load()) }

// Peak returns the highest number of concurrently open sessions.
func (b *Browser) Peak() int { return int(b.peak.Load()) }

func (b *Browser) Sessions() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Session(nil), b.sessions...)
}

// Session records every action and answers from its fields. Hooks can mutate
// the session to simulate page transitions.
type Session struct {
	mu sync.Mutex

	CurrentURL string
	CookieJar  []browser.Cookie
	Items      map[string]string
	Page       string

	// Fail makes an action fail. Keys are "navigate:<url>", "fill:<selector>", "click:<selector>",
	// and "cookies", "storage", "html" for the reads.
	Fail map[string]error

	// Present lists selectors TryClick can find.
	Present map[string]bool

	OnNavigate func(s *Session, url string)
	OnClick    func(s *Session, selector string)
	OnEval     func(s *Session, script string) (any, error)

	Delay time.Duration

	Actions []string
	closed  bool
	owner   *Browser
}

func (s *Session) record(action string) error {
	s.Actions = append(s.Actions, action)
	if err, ok := s.Fail[action]; ok {
		return err
	}
	return nil
}

func (s *Session) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.Delay):
		return nil
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("navigate:" + url); err != nil {
		return err
	}
	s.CurrentURL = url
	if s.OnNavigate != nil {
		s.OnNavigate(s, url)
	}
	return nil
}

func (s *Session) Fill(ctx context.Context, selector, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("fill:" + selector)
}

func (s *Session) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("click:" + selector); err != nil {
		return err
	}
	if s.OnClick != nil {
		s.OnClick(s, selector)
	}
	return nil
}

func (s *Session) TryClick(_ context.Context, selector string, _ time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Actions = append(s.Actions, "tryclick:"+selector)
	return s.Present[selector]
}

func (s *Session) WaitURLContains(ctx context.Context, fragment string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Actions = append(s.Actions, "waiturl:"+fragment)
	if !strings.Contains(s.CurrentURL, fragment) {
		return fmt.Errorf("url '%s' does not contain '%s'", s.CurrentURL, fragment)
	}
	return nil
}

func (s *Session) URL(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CurrentURL, nil
}

func (s *Session) Cookies(_ context.Context) ([]browser.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Fail["cookies"]; err != nil {
		return nil, err
	}
	return append([]browser.Cookie(nil), s.CookieJar...), nil
}

func (s *Session) Storage(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Fail["storage"]; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(s.Items))
	for k, v := range s.Items {
		out[k] = v
	}
	return out, nil
}

func (s *Session) HTML(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Fail["html"]; err != nil {
		return "", err
	}
	return s.Page, nil
}

func (s *Session) Eval(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Actions = append(s.Actions, "eval")
	if s.OnEval == nil {
		return fmt.Errorf("no eval handler")
	}
	res, err := s.OnEval(s, script)
	if err != nil {
		return err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.owner != nil {
		s.owner.closed.Add(1)
		s.owner.active.Add(-1)
	}
	return nil
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
