package transport

import (
	"net"
	"sort"
	"strings"
	"sync"
)

// Blacklist is a concurrent set of endpoints refused at accept time. An
// entry is either a bare host, which blocks every port, or host:port.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]struct{}
}

func NewBlacklist(entries ...string) *Blacklist {
	b := &Blacklist{entries: make(map[string]struct{})}
	for _, e := range entries {
		b.Add(e)
	}
	return b
}

func normalizeEntry(entry string) string {
	entry = strings.TrimSpace(entry)
	if host, port, err := net.SplitHostPort(entry); err == nil {
		return net.JoinHostPort(normalizeHost(host), port)
	}
	return normalizeHost(strings.Trim(entry, "[]"))
}

func normalizeHost(host string) string {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return strings.ToLower(host)
}

func (b *Blacklist) Add(entry string) {
	e := normalizeEntry(entry)
	if e == "" {
		return
	}
	b.mu.Lock()
	b.entries[e] = struct{}{}
	b.mu.Unlock()
}

func (b *Blacklist) Remove(entry string) {
	b.mu.Lock()
	delete(b.entries, normalizeEntry(entry))
	b.mu.Unlock()
}

// Contains matches addr against both its host and its host:port form.
func (b *Blacklist) Contains(addr net.Addr) bool {
	if b == nil || addr == nil {
		return false
	}
	full := normalizeEntry(addr.String())
	host := full
	if h, _, err := net.SplitHostPort(full); err == nil {
		host = normalizeHost(h)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.entries[full]; ok {
		return true
	}
	_, ok := b.entries[host]
	return ok
}

func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Entries returns the normalized entries in sorted order.
func (b *Blacklist) Entries() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.entries))
	for e := range b.entries {
		out = append(out, e)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Replace swaps the whole set in one step, for configuration reloads.
func (b *Blacklist) Replace(entries ...string) {
	next := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if e := normalizeEntry(entry); e != "" {
			next[e] = struct{}{}
		}
	}
	b.mu.Lock()
	b.entries = next
	b.mu.Unlock()
}
