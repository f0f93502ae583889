package upstream

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type cookieEntry struct {
	value     string
	expiresAt time.Time // zero means session cookie, kept until restart
}

// Jar is a minimal single-host cookie store mutated only by observing
// Set-Cookie response headers. Unlike net/http/cookiejar it exposes the
// serialized Cookie header directly, which the request executor overlays
// onto its header fingerprint. Nothing is persisted across restarts; a
// fresh warm-up is cheap and replaying stolen cookies is undesirable.
type Jar struct {
	mu      sync.Mutex
	entries map[string]cookieEntry
	now     func() time.Time
}

// NewJar creates an empty cookie jar.
func NewJar() *Jar {
	return &Jar{
		entries: make(map[string]cookieEntry),
		now:     time.Now,
	}
}

// Apply parses every Set-Cookie header in h and updates the jar. An empty
// value, Max-Age=0 or an expiry at or before now deletes the entry; the
// newest Set-Cookie for a name always overwrites the previous one.
func (j *Jar) Apply(h http.Header) {
	cookies := (&http.Response{Header: h}).Cookies()
	if len(cookies) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		// net/http reports an explicit Max-Age=0 as MaxAge == -1.
		if c.Value == "" || c.MaxAge < 0 {
			delete(j.entries, c.Name)
			continue
		}

		var expiresAt time.Time
		switch {
		case c.MaxAge > 0:
			expiresAt = now.Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			expiresAt = c.Expires
		}
		if !expiresAt.IsZero() && !expiresAt.After(now) {
			delete(j.entries, c.Name)
			continue
		}

		j.entries[c.Name] = cookieEntry{value: c.Value, expiresAt: expiresAt}
	}
}

// Header returns the serialized Cookie request header for all live
// entries, lazily evicting expired ones. Names are sorted so the header
// is deterministic.
func (j *Jar) Header() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	names := make([]string, 0, len(j.entries))
	for name, e := range j.entries {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			delete(j.entries, name)
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(j.entries[name].value)
	}
	return b.String()
}

// Get returns the live value of a single cookie.
func (j *Jar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[name]
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(j.now()) {
		delete(j.entries, name)
		return "", false
	}
	return e.value, true
}

// Len returns the number of live entries.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	n := 0
	for name, e := range j.entries {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			delete(j.entries, name)
			continue
		}
		n++
	}
	return n
}

// Clear removes all entries.
func (j *Jar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = make(map[string]cookieEntry)
}
