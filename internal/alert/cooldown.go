package alert

import "time"

// DefaultCooldown is how long an alert stays suppressed after it was sent.
const DefaultCooldown = 24 * time.Hour

// Record maps an alert key to the epoch-millisecond time it was last sent.
// Entries are only ever superseded, never removed.
type Record map[string]int64

// Clone returns a copy of r that is safe to mutate.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// LastSent returns when key was last sent, or false if it never was.
func (r Record) LastSent(key string) (time.Time, bool) {
	ms, ok := r[key]
	if !ok || ms == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// MarkSent stores now as the last-sent time of key.
func (r Record) MarkSent(key string, now time.Time) {
	r[key] = now.UnixMilli()
}

// ShouldNotify reports whether key may be notified at now. It is true when the
// key has never been sent or the last send is at least cooldown ago.
func ShouldNotify(rec Record, key string, now time.Time, cooldown time.Duration) bool {
	last, ok := rec.LastSent(key)
	if !ok {
		return true
	}
	return now.Sub(last) >= cooldown
}
