// Package geo resolves a best-effort location string for sync snapshots.
// Nothing depends on its output being present or correct; every failure is
// logged and swallowed.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"moneyhistory/internal/shared/config"
)

const userAgent = "moneyhistory-agent/1.0"

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Resolver walks a cascade: reverse-geocoded coordinates if a caller
// supplied any, otherwise public IP plus IP-based geolocation, otherwise
// just "IP: <addr>". Each HTTP call is bounded by the configured timeout.
type Resolver struct {
	cfg    config.GeoConfig
	client *http.Client

	mu     sync.Mutex
	coords *Coordinates
}

func NewResolver(cfg config.GeoConfig) *Resolver {
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// SetCoordinates supplies a device position, typically from the control
// API. Subsequent resolves prefer reverse geocoding over IP lookup.
func (r *Resolver) SetCoordinates(lat, lon float64) {
	r.mu.Lock()
	r.coords = &Coordinates{Lat: lat, Lon: lon}
	r.mu.Unlock()
}

func (r *Resolver) coordinates() *Coordinates {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coords
}

// Resolve never fails; at worst both return values are empty.
func (r *Resolver) Resolve(ctx context.Context) (location, ip string) {
	ip = r.lookupIP(ctx)

	if c := r.coordinates(); c != nil {
		if place := r.reverseGeocode(ctx, c); place != "" {
			return place, ip
		}
		// Keep the raw coordinates rather than dropping to IP accuracy.
		return fmt.Sprintf("%.4f, %.4f", c.Lat, c.Lon), ip
	}

	if ip != "" {
		if place := r.locateIP(ctx, ip); place != "" {
			return place, ip
		}
		return "IP: " + ip, ip
	}
	return "", ""
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

func (r *Resolver) reverseGeocode(ctx context.Context, c *Coordinates) string {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", fmt.Sprintf("%f", c.Lat))
	q.Set("lon", fmt.Sprintf("%f", c.Lon))

	var resp nominatimResponse
	if err := r.getJSON(ctx, r.cfg.ReverseGeocodeURL+"?"+q.Encode(), &resp); err != nil {
		log.Printf("Reverse geocode failed: %v", err)
		return ""
	}

	city := resp.Address.City
	if city == "" {
		city = resp.Address.Town
	}
	if city == "" {
		city = resp.Address.Village
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{city, resp.Address.State, resp.Address.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return resp.DisplayName
	}
	return strings.Join(parts, ", ")
}

type ipifyResponse struct {
	IP string `json:"ip"`
}

func (r *Resolver) lookupIP(ctx context.Context) string {
	var resp ipifyResponse
	if err := r.getJSON(ctx, r.cfg.IPLookupURL, &resp); err != nil {
		log.Printf("IP lookup failed: %v", err)
		return ""
	}
	return resp.IP
}

type ipwhoResponse struct {
	Success    bool    `json:"success"`
	City       string  `json:"city"`
	Region     string  `json:"region"`
	Country    string  `json:"country"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Connection struct {
		ISP string `json:"isp"`
	} `json:"connection"`
}

func (r *Resolver) locateIP(ctx context.Context, ip string) string {
	var resp ipwhoResponse
	if err := r.getJSON(ctx, strings.TrimSuffix(r.cfg.IPGeoURL, "/")+"/"+ip, &resp); err != nil {
		log.Printf("IP geolocation failed: %v", err)
		return ""
	}
	if !resp.Success || resp.City == "" {
		return ""
	}

	place := resp.City
	if resp.Region != "" {
		place += ", " + resp.Region
	}
	if resp.Country != "" {
		place += ", " + resp.Country
	}
	place += fmt.Sprintf(" (%.4f, %.4f)", resp.Latitude, resp.Longitude)
	if resp.Connection.ISP != "" {
		place += " - ISP: " + resp.Connection.ISP
	}
	return place
}

func (r *Resolver) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
