package controller

import (
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// FirmwareSettings holds the firmware configuration of the current
// connection, keyed as the firmware prints them (e.g. "$110").
//
// The settings are not authoritative until the first successful read;
// IsLoaded reports when that happened. They are cleared on every new
// connection.
type FirmwareSettings struct {
	values *xsync.MapOf[string, string]
	loaded atomic.Bool
}

func newFirmwareSettings() *FirmwareSettings {
	return &FirmwareSettings{values: xsync.NewMapOf[string, string]()}
}

// Get returns the value of key.
func (fs *FirmwareSettings) Get(key string) (string, bool) {
	return fs.values.Load(key)
}

// Len returns the number of known settings.
func (fs *FirmwareSettings) Len() int {
	return fs.values.Size()
}

// Keys returns the known setting keys in sorted order.
func (fs *FirmwareSettings) Keys() []string {
	keys := make([]string, 0, fs.values.Size())
	fs.values.Range(func(key string, _ string) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)

	return keys
}

// Snapshot returns a copy of all settings.
func (fs *FirmwareSettings) Snapshot() map[string]string {
	out := make(map[string]string, fs.values.Size())
	fs.values.Range(func(key string, value string) bool {
		out[key] = value
		return true
	})

	return out
}

// IsLoaded reports whether a full settings read completed.
func (fs *FirmwareSettings) IsLoaded() bool {
	return fs.loaded.Load()
}

func (fs *FirmwareSettings) set(key, value string) {
	fs.values.Store(key, value)
}

func (fs *FirmwareSettings) markLoaded(loaded bool) {
	fs.loaded.Store(loaded)
}

func (fs *FirmwareSettings) clear() {
	fs.values.Clear()
	fs.loaded.Store(false)
}
