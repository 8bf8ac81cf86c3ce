package domain

import "time"

// MaxUserAgentLen bounds AccessLogEntry.UserAgent.
const MaxUserAgentLen = 500

// AccessLogEntry is one append-only audit row (access_log table in the
// tenant schema). UserID and ResourceID are nullable so entries survive
// deletion of the user or resource.
type AccessLogEntry struct {
	ID         string    `db:"id" json:"id"`
	TenantSlug string    `db:"-" json:"tenant"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	ResourceID *int64    `db:"resource_id" json:"resource_id,omitempty"`
	RouteID    string    `db:"route_id" json:"route_id"`
	Action     Action    `db:"action" json:"action"`
	Decision   string    `db:"decision" json:"decision"`
	IP         string    `db:"ip" json:"ip"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	Detail     string    `db:"detail" json:"detail,omitempty"`
	At         time.Time `db:"at" json:"at"`
}

// TruncateUserAgent clips ua to MaxUserAgentLen bytes on a rune boundary.
func TruncateUserAgent(ua string) string {
	if len(ua) <= MaxUserAgentLen {
		return ua
	}
	cut := MaxUserAgentLen
	for cut > 0 && !runeStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}

func runeStart(b byte) bool { return b&0xC0 != 0x80 }
