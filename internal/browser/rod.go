// Package browser implements the scenario session contract on a headless
// Chromium driven through go-rod.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/example/padel-scheduler/internal/scenario"
)

// Factory launches one browser per session. Sessions are never shared; the
// scheduler guarantees only one is open at a time.
type Factory struct {
	Headless bool
	Timeout  time.Duration
	Logger   zerolog.Logger
}

var _ scenario.SessionFactory = (*Factory)(nil)

// NewSession starts a fresh Chromium, opens a blank page and, when a prior
// state blob is supplied, restores its cookies and local storage.
func (f *Factory) NewSession(ctx context.Context, opts scenario.SessionOptions) (scenario.Session, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	l := launcher.New().Headless(f.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	br := rod.New().ControlURL(controlURL).Context(ctx)
	if err := br.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := br.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = br.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}

	s := &session{
		launcher: l,
		browser:  br,
		page:     page,
		timeout:  timeout,
		logger:   f.Logger,
		popups:   make(chan string, 4),
	}
	if len(opts.State) > 0 {
		if err := s.importState(opts.State); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("import session state: %w", err)
		}
	}
	s.watch()
	return s, nil
}

type session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	responses []string
	pending   []originState

	popups chan string
}

var _ scenario.Session = (*session)(nil)

// storageState mirrors the shape exported by ExportState; it round-trips
// through importState without loss.
type storageState struct {
	Cookies []*proto.NetworkCookieParam `json:"cookies"`
	Origins []originState               `json:"origins"`
}

type originState struct {
	Origin       string            `json:"origin"`
	LocalStorage map[string]string `json:"localStorage"`
}

// watch records network response URLs and secondary page URLs for the
// payment-link extraction strategies.
func (s *session) watch() {
	go s.page.EachEvent(func(ev *proto.NetworkResponseReceived) {
		s.mu.Lock()
		s.responses = append(s.responses, ev.Response.URL)
		s.mu.Unlock()
	})()

	go s.browser.EachEvent(
		func(ev *proto.TargetTargetCreated) {
			s.recordPopup(ev.TargetInfo)
		},
		func(ev *proto.TargetTargetInfoChanged) {
			s.recordPopup(ev.TargetInfo)
		},
	)()
}

func (s *session) recordPopup(info *proto.TargetTargetInfo) {
	if info == nil || info.TargetID == s.page.TargetID {
		return
	}
	if info.Type != "page" || !strings.HasPrefix(info.URL, "http") {
		return
	}
	select {
	case s.popups <- info.URL:
	default:
	}
}

func (s *session) Navigate(ctx context.Context, target string) (string, error) {
	page := s.page.Context(ctx).Timeout(s.timeout)
	if err := page.Navigate(target); err != nil {
		return "", fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", target, err)
	}
	s.applyPendingStorage()
	return s.CurrentURL(), nil
}

func (s *session) WaitFor(selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.timeout
	}
	_, err := s.page.Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (s *session) Count(selector string) (int, error) {
	els, err := s.page.Elements(selector)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

func (s *session) Text(selector string, index int) (string, error) {
	el, err := s.element(selector, index)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (s *session) Click(selector string, index int) error {
	el, err := s.element(selector, index)
	if err != nil {
		return err
	}
	_ = el.ScrollIntoView()
	return el.Timeout(s.timeout).Click(proto.InputMouseButtonLeft, 1)
}

func (s *session) Fill(selector string, index int, value string) error {
	el, err := s.element(selector, index)
	if err != nil {
		return err
	}
	_ = el.ScrollIntoView()
	// replace any existing content
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	return el.Timeout(s.timeout).Input(value)
}

func (s *session) Checked(selector string, index int) (bool, error) {
	el, err := s.element(selector, index)
	if err != nil {
		return false, err
	}
	v, err := el.Property("checked")
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func (s *session) Attr(selector string, index int, name string) (string, error) {
	el, err := s.element(selector, index)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (s *session) CurrentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *session) ObservedResponse(substr string) (string, bool) {
	needle := strings.ToLower(substr)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.responses {
		if strings.Contains(strings.ToLower(u), needle) {
			return u, true
		}
	}
	return "", false
}

func (s *session) WaitPopup(timeout time.Duration) (string, error) {
	select {
	case u := <-s.popups:
		return u, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("no secondary page appeared within %s", timeout)
	}
}

// ExportState captures cookies and the current origin's local storage as an
// opaque JSON blob.
func (s *session) ExportState() ([]byte, error) {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("export cookies: %w", err)
	}
	st := storageState{Cookies: make([]*proto.NetworkCookieParam, 0, len(cookies))}
	for _, c := range cookies {
		st.Cookies = append(st.Cookies, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
			Expires:  c.Expires,
		})
	}

	if origin := originOf(s.CurrentURL()); origin != "" {
		obj, err := s.page.Eval(`() => JSON.stringify(Object.assign({}, window.localStorage))`)
		if err == nil {
			var kv map[string]string
			if jsonErr := json.Unmarshal([]byte(obj.Value.Str()), &kv); jsonErr == nil && len(kv) > 0 {
				st.Origins = append(st.Origins, originState{Origin: origin, LocalStorage: kv})
			}
		}
	}

	return json.Marshal(st)
}

// importState restores cookies immediately; local storage is replayed after
// the first navigation to a matching origin.
func (s *session) importState(blob []byte) error {
	var st storageState
	if err := json.Unmarshal(blob, &st); err != nil {
		return err
	}
	if len(st.Cookies) > 0 {
		if err := s.browser.SetCookies(st.Cookies); err != nil {
			return fmt.Errorf("restore cookies: %w", err)
		}
	}
	s.mu.Lock()
	s.pending = st.Origins
	s.mu.Unlock()
	return nil
}

func (s *session) applyPendingStorage() {
	origin := originOf(s.CurrentURL())
	if origin == "" {
		return
	}
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	for _, o := range pending {
		if o.Origin != origin || len(o.LocalStorage) == 0 {
			continue
		}
		_, err := s.page.Eval(`(items) => {
			for (const [key, value] of Object.entries(items)) {
				window.localStorage.setItem(key, value)
			}
		}`, o.LocalStorage)
		if err != nil {
			s.logger.Debug().Err(err).Str("origin", origin).Msg("local storage restore failed")
		}
	}
}

func (s *session) element(selector string, index int) (*rod.Element, error) {
	els, err := s.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(els) {
		return nil, fmt.Errorf("selector %q has no match at index %d", selector, index)
	}
	return els[index], nil
}

func (s *session) Close() error {
	_ = s.page.Close()
	err := s.browser.Close()
	s.launcher.Cleanup()
	return err
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
