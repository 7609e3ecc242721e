package entities

// Tenant is the person on the lease who texts us.
type Tenant struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Unit is the rented property unit.
type Unit struct {
	ID            int    `json:"id"`
	StreetAddress string `json:"street_address"`
	UnitNumber    string `json:"unit_number"`
}

// ChannelPreference is one entry of a landlord's per-channel opt-in/opt-out map.
// Absence of an explicit opt-out counts as opt-in.
type ChannelPreference struct {
	Channel string `json:"channel"` // "sms", "telegram"
	OptOut  bool   `json:"opt_out,omitempty"`
	Target  string `json:"target,omitempty"` // phone or chat ID override
}

// NotificationPreferences is the structured preference list stored per landlord.
type NotificationPreferences struct {
	Channels []ChannelPreference `json:"channels"`
}

// Allows reports whether the landlord accepts alerts on the given channel.
func (p NotificationPreferences) Allows(channel string) bool {
	for _, c := range p.Channels {
		if c.Channel == channel {
			return !c.OptOut
		}
	}
	return true
}

// Target returns the configured delivery target for a channel, if any.
func (p NotificationPreferences) TargetFor(channel string) string {
	for _, c := range p.Channels {
		if c.Channel == channel {
			return c.Target
		}
	}
	return ""
}

// Landlord owns the unit and receives maintenance approvals/escalations.
type Landlord struct {
	ID             int                     `json:"id"`
	Name           string                  `json:"name"`
	Phone          string                  `json:"phone"`
	TelegramChatID string                  `json:"telegram_chat_id,omitempty"`
	Preferences    NotificationPreferences `json:"notification_prefs"`
}

// LeaseContext is the per-request snapshot resolved from an inbound sender.
// It is loaded fresh for every message and discarded afterwards; nothing in
// the pipeline caches it across requests.
type LeaseContext struct {
	LeaseID          int      `json:"lease_id"`
	MonthlyRentCents int64    `json:"monthly_rent_cents"`
	StartDate        string   `json:"start_date"`
	EndDate          string   `json:"end_date"`
	Tenant           Tenant   `json:"tenant"`
	Unit             Unit     `json:"unit"`
	Landlord         Landlord `json:"landlord"`
}
