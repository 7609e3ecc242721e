package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
)

const sendTimeout = 10 * time.Second

// unknownSenderReply is the single informational message an unrecognized
// number receives; nothing else happens for that message.
const unknownSenderReply = "Hi! This number handles maintenance and lease questions for registered tenants. " +
	"We couldn't match your number to an active lease — please contact your property manager to get set up."

// Notifier wraps the outbound channels. Tenant and vendor messages go out
// over the primary messaging channel; landlord escalations fan out across
// the channels the landlord's preferences allow.
type Notifier struct {
	messenger interfaces.Messenger
	telegram  interfaces.AlertMessenger
}

func NewNotifier(messenger interfaces.Messenger, telegram interfaces.AlertMessenger) *Notifier {
	return &Notifier{messenger: messenger, telegram: telegram}
}

func (n *Notifier) NotifyTenant(ctx context.Context, lease entities.LeaseContext, body string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return n.messenger.SendMessage(ctx, lease.Tenant.Phone, body)
}

// Reply answers on the channel the message arrived from: to keeps whatever
// prefix the provider attached (e.g. "whatsapp:") so routing is preserved.
func (n *Notifier) Reply(ctx context.Context, to, body string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return n.messenger.SendMessage(ctx, to, body)
}

func (n *Notifier) NotifyVendor(ctx context.Context, phone, body string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return n.messenger.SendMessage(ctx, phone, body)
}

func (n *Notifier) NotifyUnknownSender(ctx context.Context, to string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return n.messenger.SendMessage(ctx, to, unknownSenderReply)
}

// Escalate alerts the landlord about one high-severity action on every
// channel their preferences allow. Absence of an explicit opt-out is opt-in.
// Per-channel failures are logged; the last one is returned so callers can
// count delivery problems without treating them as fatal.
func (n *Notifier) Escalate(ctx context.Context, lease entities.LeaseContext, action interfaces.HighSeverityAction) error {
	prefs := lease.Landlord.Preferences
	body := fmt.Sprintf("⚠️ %s\nProperty: %s %s\nTenant: %s\n%s",
		action.Reason, lease.Unit.StreetAddress, lease.Unit.UnitNumber,
		lease.Tenant.Name, action.Summary)
	if action.Urgency != "" {
		body += "\nUrgency: " + action.Urgency
	}

	var lastErr error

	if prefs.Allows("sms") {
		target := prefs.TargetFor("sms")
		if target == "" {
			target = lease.Landlord.Phone
		}
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		if err := n.messenger.SendMessage(sctx, target, body); err != nil {
			slog.Error("landlord sms escalation failed", "landlord", lease.Landlord.ID, "error", err)
			lastErr = err
		}
		cancel()
	}

	if n.telegram != nil && prefs.Allows("telegram") {
		target := prefs.TargetFor("telegram")
		if target == "" {
			target = lease.Landlord.TelegramChatID
		}
		if target != "" {
			tctx, cancel := context.WithTimeout(ctx, sendTimeout)
			if err := n.telegram.SendAlert(tctx, target, body); err != nil {
				slog.Error("landlord telegram escalation failed", "landlord", lease.Landlord.ID, "error", err)
				lastErr = err
			}
			cancel()
		}
	}

	return lastErr
}
