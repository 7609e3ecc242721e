package usecases

import (
	"context"
	"sync"
	"time"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
)

// fakeWorkflowStore is an in-memory WorkflowStore that honors the same
// state-guard semantics as the SQL implementation.
type fakeWorkflowStore struct {
	mu        sync.Mutex
	requests  map[string]entities.MaintenanceRequest
	workflows map[string]entities.MaintenanceWorkflow
	comms     []entities.WorkflowCommunication

	transitionErr error
	commErr       error
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{
		requests:  make(map[string]entities.MaintenanceRequest),
		workflows: make(map[string]entities.MaintenanceWorkflow),
	}
}

func (f *fakeWorkflowStore) CreateRequest(_ context.Context, req entities.MaintenanceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req.CreatedAt = time.Now()
	f.requests[req.ID] = req
	return nil
}

func (f *fakeWorkflowStore) CreateWorkflow(_ context.Context, wf entities.MaintenanceWorkflow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf.CreatedAt = time.Now()
	f.workflows[wf.ID] = wf
	return nil
}

func (f *fakeWorkflowStore) GetWorkflow(_ context.Context, id string) (entities.MaintenanceWorkflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.workflows[id]
	if !ok {
		return entities.MaintenanceWorkflow{}, interfaces.ErrWorkflowNotFound
	}
	return wf, nil
}

func (f *fakeWorkflowStore) GetRequest(_ context.Context, id string) (entities.MaintenanceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return entities.MaintenanceRequest{}, interfaces.ErrWorkflowNotFound
	}
	return req, nil
}

func (f *fakeWorkflowStore) ActiveWorkflowForLease(_ context.Context, leaseID int) (entities.MaintenanceWorkflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest entities.MaintenanceWorkflow
	found := false
	for _, wf := range f.workflows {
		if wf.CurrentState.IsTerminal() {
			continue
		}
		req, ok := f.requests[wf.MaintenanceRequestID]
		if !ok || req.LeaseID != leaseID {
			continue
		}
		if !found || wf.CreatedAt.After(latest.CreatedAt) {
			latest = wf
			found = true
		}
	}
	if !found {
		return entities.MaintenanceWorkflow{}, interfaces.ErrWorkflowNotFound
	}
	return latest, nil
}

func (f *fakeWorkflowStore) Transition(_ context.Context, id string, from, to entities.WorkflowState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitionErr != nil {
		return f.transitionErr
	}
	wf, ok := f.workflows[id]
	if !ok || wf.CurrentState != from {
		return interfaces.ErrStateConflict
	}
	wf.CurrentState = to
	wf.UpdatedAt = time.Now()
	f.workflows[id] = wf
	return nil
}

func (f *fakeWorkflowStore) ConfirmETA(_ context.Context, id string, from entities.WorkflowState, eta time.Time, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.workflows[id]
	if !ok || wf.CurrentState != from {
		return interfaces.ErrStateConflict
	}
	wf.CurrentState = entities.StateETAConfirmed
	wf.VendorETA = &eta
	wf.VendorNotes = notes
	f.workflows[id] = wf
	return nil
}

func (f *fakeWorkflowStore) MarkRequestScheduled(_ context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[requestID]
	req.Status = "scheduled"
	f.requests[requestID] = req
	return nil
}

func (f *fakeWorkflowStore) CloseRequest(_ context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[requestID]
	req.Status = "closed"
	f.requests[requestID] = req
	return nil
}

func (f *fakeWorkflowStore) AppendCommunication(_ context.Context, comm entities.WorkflowCommunication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commErr != nil {
		return f.commErr
	}
	comm.ID = len(f.comms) + 1
	comm.CreatedAt = time.Now()
	f.comms = append(f.comms, comm)
	return nil
}

func (f *fakeWorkflowStore) Communications(_ context.Context, workflowID string) ([]entities.WorkflowCommunication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.WorkflowCommunication
	for _, c := range f.comms {
		if c.WorkflowID == workflowID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeWorkflowStore) states(workflowID string) []entities.WorkflowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.WorkflowState
	for _, c := range f.comms {
		if c.WorkflowID == workflowID && c.Metadata.StateChange != nil {
			out = append(out, c.Metadata.StateChange.To)
		}
	}
	return out
}

// fakeLeases resolves every phone/ID to the one configured lease.
type fakeLeases struct {
	lease entities.LeaseContext
	err   error
}

func (f *fakeLeases) Resolve(_ context.Context, _ string) (entities.LeaseContext, error) {
	if f.err != nil {
		return entities.LeaseContext{}, f.err
	}
	return f.lease, nil
}

func (f *fakeLeases) ByLeaseID(_ context.Context, _ int) (entities.LeaseContext, error) {
	if f.err != nil {
		return entities.LeaseContext{}, f.err
	}
	return f.lease, nil
}

type sentMessage struct {
	To   string
	Body string
}

// fakeMessenger records outbound sends.
type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeMessenger) SendMessage(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	return nil
}

func (f *fakeMessenger) all() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// fakeAlerter records telegram alerts.
type fakeAlerter struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeAlerter) SendAlert(_ context.Context, chatID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{To: chatID, Body: body})
	return nil
}

func (f *fakeAlerter) all() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// fakeContextStore holds one context row per lease.
type fakeContextStore struct {
	mu       sync.Mutex
	contexts map[int]entities.ConversationContext
	getErr   error
}

func newFakeContextStore() *fakeContextStore {
	return &fakeContextStore{contexts: make(map[int]entities.ConversationContext)}
}

func (f *fakeContextStore) Get(_ context.Context, leaseID int) (entities.ConversationContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return entities.ConversationContext{}, f.getErr
	}
	cc, ok := f.contexts[leaseID]
	if !ok {
		return entities.ConversationContext{LeaseID: leaseID, OpenThreads: map[string]entities.ThreadState{}}, nil
	}
	return cc, nil
}

func (f *fakeContextStore) Save(_ context.Context, cc entities.ConversationContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts[cc.LeaseID] = cc
	return nil
}

// fakeActionLog records agent actions.
type fakeActionLog struct {
	mu      sync.Mutex
	actions []entities.AgentAction
}

func (f *fakeActionLog) Record(_ context.Context, action entities.AgentAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeActionLog) all() []entities.AgentAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.AgentAction(nil), f.actions...)
}

// scriptedLLM returns its responses in order; extra calls get the last one.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []interfaces.ChatResponse
	errs      []error
	calls     [][]interfaces.ChatMessage
}

func (f *scriptedLLM) Chat(_ context.Context, messages []interfaces.ChatMessage, _ []interfaces.ToolDefinition) (interfaces.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	idx := len(f.calls) - 1
	if idx < len(f.errs) && f.errs[idx] != nil {
		return interfaces.ChatResponse{}, f.errs[idx]
	}
	if len(f.responses) == 0 {
		return interfaces.ChatResponse{}, nil
	}
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func testLease() entities.LeaseContext {
	return entities.LeaseContext{
		LeaseID:          42,
		MonthlyRentCents: 185000,
		StartDate:        "2026-01-01",
		EndDate:          "2026-12-31",
		Tenant:           entities.Tenant{ID: 7, Name: "Dana Reyes", Phone: "+15550001111"},
		Unit:             entities.Unit{ID: 3, StreetAddress: "12 Elm St", UnitNumber: "2B"},
		Landlord: entities.Landlord{
			ID:             5,
			Name:           "Morgan Hale",
			Phone:          "+15550002222",
			TelegramChatID: "987654",
		},
	}
}
