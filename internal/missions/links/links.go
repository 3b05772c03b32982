package links

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"toolbox/internal/dispatch"
)

const defaultSelector = "a[href]"

// Task fetches the page named by each mission and counts the distinct links
// it contains.
type Task struct {
	Client   *http.Client
	Selector string
	// OnPage, when set, receives the absolute links found on each page.
	OnPage func(page string, links []string)
}

func New(timeout time.Duration) *Task {
	return &Task{
		Client:   &http.Client{Timeout: timeout},
		Selector: defaultSelector,
	}
}

func (t *Task) Do(ctx context.Context, page string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return 0, fmt.Errorf("build request for %s: %w", page, err)
	}
	resp, err := t.client().Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, fmt.Errorf("fetch %s: unexpected status %s", page, resp.Status)
	}

	found, err := Extract(resp.Body, page, t.selector())
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", page, err)
	}
	if t.OnPage != nil {
		t.OnPage(page, found)
	}
	return len(found), nil
}

func (t *Task) NewOne() dispatch.Task[string] {
	c := *t
	return &c
}

func (t *Task) client() *http.Client {
	if t.Client == nil {
		return http.DefaultClient
	}
	return t.Client
}

func (t *Task) selector() string {
	if strings.TrimSpace(t.Selector) == "" {
		return defaultSelector
	}
	return t.Selector
}

// Extract returns the distinct absolute hrefs matched by selector, in
// document order.
func Extract(r io.Reader, base, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		abs := Absolute(base, href)
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out, nil
}

func Absolute(base, href string) string {
	u, err := url.Parse(href)
	if err != nil || href == "" {
		return href
	}
	if u.IsAbs() {
		return u.String()
	}
	if base == "" {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	return bu.ResolveReference(u).String()
}
