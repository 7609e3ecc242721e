package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
)

func newWorkflowFixture() (*WorkflowService, *fakeWorkflowStore, *fakeMessenger) {
	store := newFakeWorkflowStore()
	messenger := &fakeMessenger{}
	leases := &fakeLeases{lease: testLease()}
	notifier := NewNotifier(messenger, nil)
	return NewWorkflowService(store, leases, notifier), store, messenger
}

func TestCreateRequestAdvancesToOwnerNotified(t *testing.T) {
	svc, store, _ := newWorkflowFixture()

	wf, err := svc.CreateRequest(context.Background(), testLease(), "kitchen sink leaking", "normal")
	require.NoError(t, err)
	require.Equal(t, entities.StateOwnerNotified, wf.CurrentState)

	stored, err := store.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	require.Equal(t, entities.StateOwnerNotified, stored.CurrentState)

	req, err := store.GetRequest(context.Background(), wf.MaintenanceRequestID)
	require.NoError(t, err)
	require.Equal(t, "open", req.Status)
	require.Equal(t, "kitchen sink leaking", req.Description)

	comms, err := store.Communications(context.Background(), wf.ID)
	require.NoError(t, err)
	require.Len(t, comms, 2)
	require.Equal(t, entities.SenderTenant, comms[0].SenderType)
	require.Equal(t, entities.SenderSystem, comms[1].SenderType)
	require.NotNil(t, comms[1].Metadata.StateChange)
	require.Equal(t, entities.StateOwnerNotified, comms[1].Metadata.StateChange.To)
}

func TestCreateRequestDefaultsUrgency(t *testing.T) {
	svc, store, _ := newWorkflowFixture()

	wf, err := svc.CreateRequest(context.Background(), testLease(), "door lock broken", "")
	require.NoError(t, err)

	req, err := store.GetRequest(context.Background(), wf.MaintenanceRequestID)
	require.NoError(t, err)
	require.Equal(t, "normal", req.Urgency)
}

func TestRecordOwnerDecision(t *testing.T) {
	tests := []struct {
		decision string
		want     entities.WorkflowState
	}{
		{"approved", entities.StateApproved},
		{"denied", entities.StateDenied},
		{"question", entities.StateQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.decision, func(t *testing.T) {
			svc, _, _ := newWorkflowFixture()
			wf, err := svc.CreateRequest(context.Background(), testLease(), "heater out", "normal")
			require.NoError(t, err)

			updated, err := svc.RecordOwnerDecision(context.Background(), wf.ID, tt.decision, "")
			require.NoError(t, err)
			require.Equal(t, tt.want, updated.CurrentState)
		})
	}
}

func TestRecordOwnerDecisionAfterQuestion(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	wf, err := svc.CreateRequest(context.Background(), testLease(), "heater out", "normal")
	require.NoError(t, err)

	_, err = svc.RecordOwnerDecision(context.Background(), wf.ID, "question", "how old is the unit?")
	require.NoError(t, err)

	updated, err := svc.RecordOwnerDecision(context.Background(), wf.ID, "approved", "go ahead")
	require.NoError(t, err)
	require.Equal(t, entities.StateApproved, updated.CurrentState)
}

func TestRecordOwnerDecisionRejectsUnknownDecision(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	_, err := svc.RecordOwnerDecision(context.Background(), "whatever", "maybe", "")
	require.Error(t, err)
}

func TestRecordOwnerDecisionOnTerminalWorkflow(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	wf, err := svc.CreateRequest(context.Background(), testLease(), "heater out", "normal")
	require.NoError(t, err)

	_, err = svc.RecordOwnerDecision(context.Background(), wf.ID, "denied", "not covered")
	require.NoError(t, err)

	_, err = svc.RecordOwnerDecision(context.Background(), wf.ID, "approved", "")
	require.ErrorIs(t, err, interfaces.ErrStateConflict)
}

func TestSubmitVendorResponseRunsFullChain(t *testing.T) {
	svc, store, messenger := newWorkflowFixture()
	wf, err := svc.CreateRequest(context.Background(), testLease(), "broken window", "normal")
	require.NoError(t, err)

	eta := time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC)
	updated, err := svc.SubmitVendorResponse(context.Background(), wf.ID, eta, "bringing replacement glass")
	require.NoError(t, err)
	require.Equal(t, entities.StateInProgress, updated.CurrentState)
	require.NotNil(t, updated.VendorETA)
	require.True(t, updated.VendorETA.Equal(eta))

	// The chain passes through every intermediate state in order.
	require.Equal(t, []entities.WorkflowState{
		entities.StateOwnerNotified,
		entities.StateTenantNotified,
		entities.StateInProgress,
	}, store.states(wf.ID))

	req, err := store.GetRequest(context.Background(), wf.MaintenanceRequestID)
	require.NoError(t, err)
	require.Equal(t, "scheduled", req.Status)

	// Tenant got exactly one scheduled-visit text.
	sent := messenger.all()
	require.Len(t, sent, 1)
	require.Equal(t, testLease().Tenant.Phone, sent[0].To)
	require.Contains(t, sent[0].Body, eta.Format(ETADisplayFormat))
	require.Contains(t, sent[0].Body, "bringing replacement glass")
}

func TestSubmitVendorResponseFromApproved(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	wf, err := svc.CreateRequest(context.Background(), testLease(), "broken window", "normal")
	require.NoError(t, err)
	_, err = svc.RecordOwnerDecision(context.Background(), wf.ID, "approved", "")
	require.NoError(t, err)

	updated, err := svc.SubmitVendorResponse(context.Background(), wf.ID, time.Now().Add(24*time.Hour), "")
	require.NoError(t, err)
	require.Equal(t, entities.StateInProgress, updated.CurrentState)
}

func TestSubmitVendorResponseUnknownWorkflow(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	_, err := svc.SubmitVendorResponse(context.Background(), "nope", time.Now(), "")
	require.ErrorIs(t, err, interfaces.ErrWorkflowNotFound)
}

func TestSubmitVendorResponseWrongState(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	wf, err := svc.CreateRequest(context.Background(), testLease(), "broken window", "normal")
	require.NoError(t, err)
	_, err = svc.RecordOwnerDecision(context.Background(), wf.ID, "denied", "")
	require.NoError(t, err)

	_, err = svc.SubmitVendorResponse(context.Background(), wf.ID, time.Now(), "")
	require.ErrorIs(t, err, interfaces.ErrStateConflict)
}

func TestSubmitVendorResponseIsNotRepeatable(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	wf, err := svc.CreateRequest(context.Background(), testLease(), "broken window", "normal")
	require.NoError(t, err)

	_, err = svc.SubmitVendorResponse(context.Background(), wf.ID, time.Now().Add(time.Hour), "")
	require.NoError(t, err)

	// Workflow is IN_PROGRESS now; a second vendor response must conflict.
	_, err = svc.SubmitVendorResponse(context.Background(), wf.ID, time.Now().Add(2*time.Hour), "")
	require.ErrorIs(t, err, interfaces.ErrStateConflict)
}

func TestMarkCompletedClosesRequest(t *testing.T) {
	svc, store, _ := newWorkflowFixture()
	wf, err := svc.CreateRequest(context.Background(), testLease(), "broken window", "normal")
	require.NoError(t, err)
	_, err = svc.SubmitVendorResponse(context.Background(), wf.ID, time.Now().Add(time.Hour), "")
	require.NoError(t, err)

	done, err := svc.MarkCompleted(context.Background(), wf.ID)
	require.NoError(t, err)
	require.Equal(t, entities.StateCompleted, done.CurrentState)

	req, err := store.GetRequest(context.Background(), wf.MaintenanceRequestID)
	require.NoError(t, err)
	require.Equal(t, "closed", req.Status)

	// Completed workflows no longer show up as active.
	_, err = svc.ActiveForLease(context.Background(), testLease().LeaseID)
	require.ErrorIs(t, err, interfaces.ErrWorkflowNotFound)
}

func TestMarkCompletedBeforeWorkStarts(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	wf, err := svc.CreateRequest(context.Background(), testLease(), "broken window", "normal")
	require.NoError(t, err)

	_, err = svc.MarkCompleted(context.Background(), wf.ID)
	require.ErrorIs(t, err, interfaces.ErrStateConflict)
}

func TestActiveForLeaseFindsOpenWorkflow(t *testing.T) {
	svc, _, _ := newWorkflowFixture()
	wf, err := svc.CreateRequest(context.Background(), testLease(), "broken window", "normal")
	require.NoError(t, err)

	active, err := svc.ActiveForLease(context.Background(), testLease().LeaseID)
	require.NoError(t, err)
	require.Equal(t, wf.ID, active.ID)
}

func TestCommunicationFailureDoesNotBlockTransition(t *testing.T) {
	store := newFakeWorkflowStore()
	store.commErr = context.DeadlineExceeded
	leases := &fakeLeases{lease: testLease()}
	svc := NewWorkflowService(store, leases, NewNotifier(&fakeMessenger{}, nil))

	wf, err := svc.CreateRequest(context.Background(), testLease(), "fridge dead", "emergency")
	require.NoError(t, err)
	require.Equal(t, entities.StateOwnerNotified, wf.CurrentState)
}
