// Package tunnel persists remote-support tunnel URLs between CLI
// invocations. A tunnel is an outbound relay exposing a charger's local
// HTTP port at a public HTTPS URL; keeping the URL on disk lets support
// sessions span several commands. The cache is explicit state with an
// expiry and a liveness check, never trusted blindly.
package tunnel

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// Entry is one cached tunnel URL, keyed by the device's LAN IP
type Entry struct {
	DeviceIP  string    `json:"deviceIp"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// Cache is an on-disk map of device IP to tunnel URL
type Cache struct {
	path    string
	ttl     time.Duration
	entries map[string]Entry
}

// Open loads the cache file, tolerating a missing one.
func Open(path string, ttl time.Duration) (*Cache, error) {
	c := &Cache{
		path:    path,
		ttl:     ttl,
		entries: make(map[string]Entry),
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup returns the cached URL for a device IP if it has not expired.
// The caller still owns the liveness check: a returned URL must verify
// as a charger before being used, expiry only bounds how long we keep
// trying.
func (c *Cache) Lookup(deviceIP string, now time.Time) (string, bool) {
	entry, ok := c.entries[deviceIP]
	if !ok {
		return "", false
	}
	if now.Sub(entry.CreatedAt) > c.ttl {
		delete(c.entries, deviceIP)
		return "", false
	}
	return entry.URL, true
}

// Store records a tunnel URL for a device IP.
func (c *Cache) Store(deviceIP, url string, now time.Time) {
	c.entries[deviceIP] = Entry{
		DeviceIP:  deviceIP,
		URL:       url,
		CreatedAt: now,
	}
}

// Evict drops a dead tunnel so a failed liveness probe is not retried
// on the next invocation.
func (c *Cache) Evict(deviceIP string) {
	delete(c.entries, deviceIP)
}

// Save writes the cache back to disk.
func (c *Cache) Save() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}
