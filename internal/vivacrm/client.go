// Package vivacrm talks to the public VivaCRM end-user API behind the
// padlhub booking widgets: catalog discovery (which tenants and master
// services exist) and per-room availability queries.
package vivacrm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	defaultAPIBaseURL   = "https://api.vivacrm.ru/end-user/api/v1"
	defaultLocationsURL = "https://padlhub.ru/locations"
	defaultSupabaseURL  = "https://supadb.vivacrm.ru/"

	// tenant whose catalog also carries the ultra-panoramic courts
	firstPadelTenant = "4yMzOR"
	defaultTenant    = "iSkq6G"
)

var defaultExtraWidgetPages = []string{"https://firstpadel.ru/"}

var (
	// ErrDiscovery marks an unobtainable catalog or room list.
	ErrDiscovery = errors.New("catalog discovery failed")
	// ErrSlotQuery marks a failed per-room availability query.
	ErrSlotQuery = errors.New("slot query failed")
)

// RoomDescriptor identifies one bookable court together with everything
// needed to query its availability.
type RoomDescriptor struct {
	TenantKey       string
	MasterServiceID string
	StudioID        string
	StudioName      string
	RoomID          string
	RoomName        string
	SubserviceID    string
	SubserviceName  string
}

// Options overrides the production endpoints, mainly for tests.
type Options struct {
	APIBaseURL       string
	LocationsURL     string
	SupabaseBaseURL  string
	ExtraWidgetPages []string
	HTTPTimeout      time.Duration
}

// Client queries the padlhub pages and the VivaCRM API. Catalog discovery is
// expensive (it crawls every location page), so its result is cached for the
// process lifetime behind a single-flight guard.
type Client struct {
	hc         *http.Client
	apiBase    string
	locations  string
	supabase   string
	extraPages []string
	logger     zerolog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	services []tenantService
}

type tenantService struct {
	TenantKey       string
	MasterServiceID string
}

// New builds a client with production defaults for any zero Option field.
func New(opts Options, logger zerolog.Logger) *Client {
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = defaultAPIBaseURL
	}
	if opts.LocationsURL == "" {
		opts.LocationsURL = defaultLocationsURL
	}
	if opts.SupabaseBaseURL == "" {
		opts.SupabaseBaseURL = defaultSupabaseURL
	}
	if opts.ExtraWidgetPages == nil {
		opts.ExtraWidgetPages = defaultExtraWidgetPages
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	return &Client{
		hc:         &http.Client{Timeout: opts.HTTPTimeout},
		apiBase:    strings.TrimRight(opts.APIBaseURL, "/"),
		locations:  opts.LocationsURL,
		supabase:   opts.SupabaseBaseURL,
		extraPages: opts.ExtraWidgetPages,
		logger:     logger,
	}
}

// --- catalog ---

type subServiceGroup struct {
	SubServices []subService `json:"subServices"`
}

type subService struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	AvailableStudioRooms []studioRoom `json:"availableStudioRooms"`
}

type studioRoom struct {
	Studio struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"studio"`
	Rooms []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"rooms"`
}

// Rooms returns every panoramic court across all discovered tenants.
func (c *Client) Rooms(ctx context.Context) ([]RoomDescriptor, error) {
	services, err := c.masterServices(ctx)
	if err != nil {
		return nil, err
	}

	var descriptors []RoomDescriptor
	for _, svc := range services {
		requestURL := fmt.Sprintf("%s/%s/products/master-services/%s/subServices",
			c.apiBase, svc.TenantKey, svc.MasterServiceID)
		body, err := c.getJSON(ctx, requestURL)
		if err != nil {
			return nil, fmt.Errorf("%w: Не удалось загрузить список услуг: %v", ErrDiscovery, err)
		}
		var groups []subServiceGroup
		if err := json.Unmarshal(body, &groups); err != nil {
			continue
		}
		for _, group := range groups {
			for _, sub := range group.SubServices {
				if sub.ID == "" || !isPanoramic(sub.Name, svc.TenantKey) {
					continue
				}
				for _, entry := range sub.AvailableStudioRooms {
					if entry.Studio.ID == "" || entry.Studio.Name == "" {
						continue
					}
					for _, room := range entry.Rooms {
						if room.ID == "" || room.Name == "" {
							continue
						}
						descriptors = append(descriptors, RoomDescriptor{
							TenantKey:       svc.TenantKey,
							MasterServiceID: svc.MasterServiceID,
							StudioID:        entry.Studio.ID,
							StudioName:      entry.Studio.Name,
							RoomID:          room.ID,
							RoomName:        room.Name,
							SubserviceID:    sub.ID,
							SubserviceName:  sub.Name,
						})
					}
				}
			}
		}
	}

	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: Не найдены площадки «Панорамик 2x2»", ErrDiscovery)
	}
	return descriptors, nil
}

// isPanoramic filters subservices to the panoramic 2x2 offerings. The ultra
// variant is counted only for the First Padel tenant; elsewhere it is a
// pricing duplicate.
func isPanoramic(name, tenantKey string) bool {
	normalized := strings.ReplaceAll(strings.ToLower(name), "х", "x") // cyrillic х
	isUltra := strings.Contains(normalized, "ультрапанорамик 2x2")
	if isUltra && tenantKey != firstPadelTenant {
		return false
	}
	return strings.Contains(normalized, "панорамик 2x2")
}

// --- availability ---

type timeslotRequest struct {
	StudioID      string   `json:"studioId"`
	RoomID        string   `json:"roomId"`
	Date          string   `json:"date"`
	SubServiceIDs []string `json:"subServiceIds"`
	Trainers      struct {
		Type string `json:"type"`
	} `json:"trainers"`
}

type timeslotResponse struct {
	ByTrainer map[string]trainerBlock `json:"byTrainer"`
}

type trainerBlock struct {
	Slots [][]slotEntry `json:"slots"`
}

type slotEntry struct {
	TimeFrom string `json:"timeFrom"`
}

// Slots returns the sorted available start times for one room on a date.
// A 404 means the room simply has no availability and is not an error.
func (c *Client) Slots(ctx context.Context, room RoomDescriptor, date string) ([]time.Time, error) {
	requestURL := fmt.Sprintf("%s/%s/products/master-services/%s/timeslots",
		c.apiBase, room.TenantKey, room.MasterServiceID)

	payload := timeslotRequest{
		StudioID:      room.StudioID,
		RoomID:        room.RoomID,
		Date:          date,
		SubServiceIDs: []string{room.SubserviceID},
	}
	payload.Trainers.Type = "NO_TRAINER"

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: Не удалось получить список слотов площадки: %v", ErrSlotQuery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: Ошибка при запросе слотов площадки (status=%d)", ErrSlotQuery, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: Не удалось получить список слотов площадки: %v", ErrSlotQuery, err)
	}
	var decoded timeslotResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: Ошибка при запросе слотов площадки: %v", ErrSlotQuery, err)
	}

	times := make([]time.Time, 0, 16)
	for _, stamp := range extractTimes(decoded) {
		t, err := parseSlotTime(stamp)
		if err != nil {
			return nil, fmt.Errorf("%w: Получено некорректное время слота: %q", ErrSlotQuery, stamp)
		}
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times, nil
}

// extractTimes pulls the start stamps out of the nested byTrainer payload,
// preferring the NO_TRAINER block.
func extractTimes(decoded timeslotResponse) []string {
	if len(decoded.ByTrainer) == 0 {
		return nil
	}
	block, ok := decoded.ByTrainer["NO_TRAINER"]
	if !ok {
		// deterministic pick when the key is absent
		keys := make([]string, 0, len(decoded.ByTrainer))
		for k := range decoded.ByTrainer {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		block = decoded.ByTrainer[keys[0]]
	}
	var out []string
	for _, segment := range block.Slots {
		for _, slot := range segment {
			if slot.TimeFrom != "" {
				out = append(out, slot.TimeFrom)
			}
		}
	}
	return out
}

func parseSlotTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", value)
}

// --- shared HTTP helpers ---

func (c *Client) getJSON(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: status=%d", requestURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) getText(ctx context.Context, requestURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("GET %s: status=%d", requestURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
