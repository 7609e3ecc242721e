package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
)

func TestEscalateFansOutToAllowedChannels(t *testing.T) {
	messenger := &fakeMessenger{}
	alerter := &fakeAlerter{}
	n := NewNotifier(messenger, alerter)

	lease := testLease()
	err := n.Escalate(context.Background(), lease, interfaces.HighSeverityAction{
		Reason:  "New maintenance request",
		Urgency: "emergency",
		Summary: "water heater leaking",
	})
	require.NoError(t, err)

	sms := messenger.all()
	require.Len(t, sms, 1)
	require.Equal(t, lease.Landlord.Phone, sms[0].To)
	require.Contains(t, sms[0].Body, "water heater leaking")
	require.Contains(t, sms[0].Body, "12 Elm St")
	require.Contains(t, sms[0].Body, "Urgency: emergency")

	tg := alerter.all()
	require.Len(t, tg, 1)
	require.Equal(t, lease.Landlord.TelegramChatID, tg[0].To)
}

func TestEscalateHonorsOptOut(t *testing.T) {
	messenger := &fakeMessenger{}
	alerter := &fakeAlerter{}
	n := NewNotifier(messenger, alerter)

	lease := testLease()
	lease.Landlord.Preferences = entities.NotificationPreferences{Channels: []entities.ChannelPreference{
		{Channel: "sms", OptOut: true},
	}}

	err := n.Escalate(context.Background(), lease, interfaces.HighSeverityAction{Reason: "noise complaint"})
	require.NoError(t, err)
	require.Empty(t, messenger.all())
	require.Len(t, alerter.all(), 1)
}

func TestEscalateUsesChannelTargetOverride(t *testing.T) {
	messenger := &fakeMessenger{}
	n := NewNotifier(messenger, nil)

	lease := testLease()
	lease.Landlord.Preferences = entities.NotificationPreferences{Channels: []entities.ChannelPreference{
		{Channel: "sms", Target: "+15557770000"},
	}}

	err := n.Escalate(context.Background(), lease, interfaces.HighSeverityAction{Reason: "r"})
	require.NoError(t, err)

	sms := messenger.all()
	require.Len(t, sms, 1)
	require.Equal(t, "+15557770000", sms[0].To)
}

func TestEscalateSkipsTelegramWithoutChatID(t *testing.T) {
	messenger := &fakeMessenger{}
	alerter := &fakeAlerter{}
	n := NewNotifier(messenger, alerter)

	lease := testLease()
	lease.Landlord.TelegramChatID = ""

	err := n.Escalate(context.Background(), lease, interfaces.HighSeverityAction{Reason: "r"})
	require.NoError(t, err)
	require.Empty(t, alerter.all())
	require.Len(t, messenger.all(), 1)
}

func TestEscalateReturnsDeliveryError(t *testing.T) {
	messenger := &fakeMessenger{err: errors.New("carrier down")}
	n := NewNotifier(messenger, nil)

	err := n.Escalate(context.Background(), testLease(), interfaces.HighSeverityAction{Reason: "r"})
	require.Error(t, err)
}

func TestReplyPreservesChannelPrefix(t *testing.T) {
	messenger := &fakeMessenger{}
	n := NewNotifier(messenger, nil)

	err := n.Reply(context.Background(), "whatsapp:+15550001111", "hi there")
	require.NoError(t, err)

	sent := messenger.all()
	require.Len(t, sent, 1)
	require.Equal(t, "whatsapp:+15550001111", sent[0].To)
}

func TestNotifyUnknownSender(t *testing.T) {
	messenger := &fakeMessenger{}
	n := NewNotifier(messenger, nil)

	err := n.NotifyUnknownSender(context.Background(), "+15559998888")
	require.NoError(t, err)

	sent := messenger.all()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].Body, "active lease")
}
