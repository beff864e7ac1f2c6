package vivacrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

var (
	widgetScriptRe = regexp.MustCompile(`(?i)storage/v1/object/public/widgets/[a-f0-9\-]+\.js`)
	masterIDRe     = regexp.MustCompile(`"masterServiceId"\s*:\s*"([^"]+)"`)
	tenantKeyRe    = regexp.MustCompile(`"tenantKey"\s*:\s*"([^"]+)"`)
	inlineInitRe   = regexp.MustCompile(`(?s)_smBookingWidget\('init'\s*,\s*(\{.*?\})\);`)
)

// masterServices returns the discovered (tenant, master service) pairs,
// crawling at most once per process. Concurrent first callers share one
// crawl via singleflight.
func (c *Client) masterServices(ctx context.Context) ([]tenantService, error) {
	c.mu.Lock()
	if c.services != nil {
		cached := c.services
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("master-services", func() (any, error) {
		services, err := c.discover(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.services = services
		c.mu.Unlock()
		return services, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]tenantService), nil
}

// discover crawls the locations index for widget pages, then scrapes each
// page's widget bootstrap (external supabase script or inline init call)
// for its tenant key and master service id.
func (c *Client) discover(ctx context.Context) ([]tenantService, error) {
	indexHTML, err := c.getText(ctx, c.locations)
	if err != nil {
		return nil, fmt.Errorf("%w: Не удалось определить список локаций padlhub.ru: %v", ErrDiscovery, err)
	}

	links := locationLinks(indexHTML, c.locations)
	links = append(links, c.extraPages...)
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: Не удалось определить список локаций padlhub.ru", ErrDiscovery)
	}
	sort.Strings(links)

	seen := make(map[tenantService]struct{})
	var services []tenantService
	add := func(svc tenantService) {
		if _, ok := seen[svc]; ok {
			return
		}
		seen[svc] = struct{}{}
		services = append(services, svc)
	}

	for _, link := range links {
		pageText, err := c.getText(ctx, link)
		if err != nil {
			c.logger.Debug().Str("url", link).Err(err).Msg("location page fetch failed")
			continue
		}

		if m := widgetScriptRe.FindString(pageText); m != "" {
			scriptURL := joinURL(c.supabase, m)
			scriptText, err := c.getText(ctx, scriptURL)
			if err != nil {
				c.logger.Debug().Str("url", scriptURL).Err(err).Msg("widget script fetch failed")
				continue
			}
			if master := masterIDRe.FindStringSubmatch(scriptText); master != nil {
				tenant := defaultTenant
				if t := tenantKeyRe.FindStringSubmatch(scriptText); t != nil {
					tenant = t[1]
				}
				add(tenantService{TenantKey: tenant, MasterServiceID: master[1]})
			}
			continue
		}

		if m := inlineInitRe.FindStringSubmatch(pageText); m != nil {
			var cfg struct {
				MasterServiceID string `json:"masterServiceId"`
				TenantKey       string `json:"tenantKey"`
			}
			if err := json.Unmarshal([]byte(m[1]), &cfg); err != nil || cfg.MasterServiceID == "" {
				continue
			}
			tenant := cfg.TenantKey
			if tenant == "" {
				tenant = defaultTenant
			}
			add(tenantService{TenantKey: tenant, MasterServiceID: cfg.MasterServiceID})
		}
	}

	if len(services) == 0 {
		return nil, fmt.Errorf("%w: Не найдены masterServiceId для площадок", ErrDiscovery)
	}
	return services, nil
}

// locationLinks extracts the padel location pages referenced by the index.
func locationLinks(indexHTML, base string) []string {
	node, err := html.Parse(strings.NewReader(indexHTML))
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := attr.Val
				switch {
				case strings.HasPrefix(href, "/padel_") || strings.HasPrefix(href, "/padl_"):
					seen[joinURL(base, href)] = struct{}{}
				case strings.HasPrefix(href, "https://padlhub.ru/padel_") ||
					strings.HasPrefix(href, "https://padlhub.ru/padl_"):
					seen[href] = struct{}{}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(node)

	links := make([]string, 0, len(seen))
	for link := range seen {
		links = append(links, link)
	}
	return links
}

func joinURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
