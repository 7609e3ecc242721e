package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
)

// maxToolIterations bounds the backend's tool-call rounds per message.
// Hitting the cap forces the fallback reply and a zero-confidence action.
const maxToolIterations = 8

// fallbackReply is what tenants see when the backend or a tool blows up;
// they always get exactly one reply either way.
const fallbackReply = "Sorry — I'm having trouble processing that right now. " +
	"Your message has been recorded and we'll follow up shortly. " +
	"If this is an emergency, call your property manager directly."

// AgentService runs the bounded tool-calling loop for one inbound message:
// build the turn, let the backend pick tools, execute them against the
// workflow store and notifier, feed results back, and stop on a final reply
// or the iteration cap. Errors never escape: every invocation yields a reply
// and exactly one AgentAction row, confidence 0 on failure.
type AgentService struct {
	llm       interfaces.ReasoningClient
	workflows *WorkflowService
	notifier  interfaces.NotificationSender
	contexts  interfaces.ContextStore
	actions   interfaces.ActionLog
}

func NewAgentService(llm interfaces.ReasoningClient, workflows *WorkflowService, notifier interfaces.NotificationSender, contexts interfaces.ContextStore, actions interfaces.ActionLog) *AgentService {
	return &AgentService{
		llm:       llm,
		workflows: workflows,
		notifier:  notifier,
		contexts:  contexts,
		actions:   actions,
	}
}

func (s *AgentService) Run(ctx context.Context, lease entities.LeaseContext, body string) interfaces.AgentResult {
	messages := s.buildTurn(ctx, lease, body)

	var (
		toolsUsed    []string
		highSeverity []interfaces.HighSeverityAction
	)

	for iteration := 0; iteration < maxToolIterations; iteration++ {
		resp, err := s.llm.Chat(ctx, messages, toolCatalog)
		if err != nil {
			return s.fail(ctx, lease, toolsUsed, highSeverity,
				fmt.Sprintf("reasoning backend failed: %v", err))
		}

		if len(resp.ToolCalls) == 0 {
			return s.finish(ctx, lease, body, resp.Content, toolsUsed, highSeverity)
		}

		messages = append(messages, interfaces.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := s.executeTool(ctx, lease, call, &toolsUsed, &highSeverity)
			messages = append(messages, interfaces.ChatMessage{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return s.fail(ctx, lease, toolsUsed, highSeverity,
		fmt.Sprintf("tool iteration cap (%d) exceeded", maxToolIterations))
}

func (s *AgentService) buildTurn(ctx context.Context, lease entities.LeaseContext, body string) []interfaces.ChatMessage {
	messages := []interfaces.ChatMessage{{
		Role:    "system",
		Content: systemPrompt(lease),
	}}

	cc, err := s.contexts.Get(ctx, lease.LeaseID)
	if err != nil {
		slog.Warn("conversation context unavailable", "lease", lease.LeaseID, "error", err)
	} else if cc.Summary != "" {
		messages = append(messages, interfaces.ChatMessage{
			Role:    "system",
			Content: "Conversation so far:\n" + cc.Summary,
		})
	}

	messages = append(messages, interfaces.ChatMessage{Role: "user", Content: body})
	return messages
}

func systemPrompt(lease entities.LeaseContext) string {
	return fmt.Sprintf(`You are the property management assistant for %s %s.
You are texting with %s, the tenant on an active lease (monthly rent $%.2f, lease %s to %s).
The property owner is %s.

Handle maintenance reports, lease questions, and payment questions.
When the tenant reports a new problem with the unit, create a maintenance request.
Use the tools to read or change workflow state; never invent workflow facts.
Escalate to the owner for emergencies, safety issues, or anything needing owner approval.
Keep replies short and friendly — this is a text message conversation.
Today is %s.`,
		lease.Unit.StreetAddress, lease.Unit.UnitNumber,
		lease.Tenant.Name, float64(lease.MonthlyRentCents)/100,
		lease.StartDate, lease.EndDate,
		lease.Landlord.Name,
		time.Now().Format("Monday, January 2, 2006"))
}

// finish records the successful action and assembles the result.
func (s *AgentService) finish(ctx context.Context, lease entities.LeaseContext, body, reply string, toolsUsed []string, highSeverity []interfaces.HighSeverityAction) interfaces.AgentResult {
	if reply == "" {
		reply = fallbackReply
	}
	intent := classifyIntent(body, toolsUsed)
	confidence := 0.6
	if len(toolsUsed) > 0 {
		confidence = 0.9
	}

	action := entities.AgentAction{
		LeaseID:     lease.LeaseID,
		Category:    intent,
		Description: truncate(reply, 200),
		ToolsCalled: toolsUsed,
		Confidence:  confidence,
	}
	if err := s.actions.Record(ctx, action); err != nil {
		slog.Error("agent action write failed", "lease", lease.LeaseID, "error", err)
	}

	return interfaces.AgentResult{
		FinalMessage: reply,
		ToolsUsed:    toolsUsed,
		Intent:       intent,
		Confidence:   confidence,
		HighSeverity: highSeverity,
	}
}

// fail is the single degraded path: log, write the zero-confidence action,
// and hand back the generic apology. Escalations from tools that already
// committed still ride along, so the landlord fan-out happens even when a
// later turn broke the loop.
func (s *AgentService) fail(ctx context.Context, lease entities.LeaseContext, toolsUsed []string, highSeverity []interfaces.HighSeverityAction, reason string) interfaces.AgentResult {
	slog.Error("agent loop degraded", "lease", lease.LeaseID, "reason", reason)

	action := entities.AgentAction{
		LeaseID:     lease.LeaseID,
		Category:    "error",
		Description: truncate(reason, 500),
		ToolsCalled: toolsUsed,
		Confidence:  0,
	}
	if err := s.actions.Record(ctx, action); err != nil {
		slog.Error("agent action write failed", "lease", lease.LeaseID, "error", err)
	}

	return interfaces.AgentResult{
		FinalMessage: fallbackReply,
		Intent:       entities.IntentGeneral,
		Confidence:   0,
		HighSeverity: highSeverity,
	}
}

func classifyIntent(body string, toolsUsed []string) string {
	for _, tool := range toolsUsed {
		switch tool {
		case "create_maintenance_request", "get_workflow_status", "record_owner_decision",
			"schedule_vendor", "mark_work_completed", "log_workflow_note", "escalate_to_landlord":
			return entities.IntentMaintenance
		case "get_lease_facts":
			return entities.IntentLease
		}
	}
	lower := strings.ToLower(body)
	if strings.Contains(lower, "rent") || strings.Contains(lower, "pay") {
		return entities.IntentPayment
	}
	return entities.IntentGeneral
}

// ---- tool catalog and execution ----

var toolCatalog = []interfaces.ToolDefinition{
	{
		Name:        "create_maintenance_request",
		Description: "Open a maintenance request for a problem the tenant reported. Notifies the property owner.",
		Parameters: objectSchema(map[string]any{
			"description": map[string]any{"type": "string", "description": "What is broken, in the tenant's words"},
			"urgency":     map[string]any{"type": "string", "enum": []string{"low", "normal", "emergency"}},
		}, "description"),
	},
	{
		Name:        "get_workflow_status",
		Description: "Look up the tenant's current in-flight maintenance workflow.",
		Parameters:  objectSchema(map[string]any{}),
	},
	{
		Name:        "record_owner_decision",
		Description: "Record the owner's answer on a pending request: approved, denied, or question.",
		Parameters: objectSchema(map[string]any{
			"workflow_id": map[string]any{"type": "string"},
			"decision":    map[string]any{"type": "string", "enum": []string{"approved", "denied", "question"}},
			"note":        map[string]any{"type": "string"},
		}, "workflow_id", "decision"),
	},
	{
		Name:        "schedule_vendor",
		Description: "Text a service vendor asking them to take the job and reply with an ETA.",
		Parameters: objectSchema(map[string]any{
			"workflow_id":  map[string]any{"type": "string"},
			"vendor_name":  map[string]any{"type": "string"},
			"vendor_phone": map[string]any{"type": "string"},
		}, "workflow_id", "vendor_name", "vendor_phone"),
	},
	{
		Name:        "mark_work_completed",
		Description: "Mark an in-progress workflow's work as finished.",
		Parameters: objectSchema(map[string]any{
			"workflow_id": map[string]any{"type": "string"},
		}, "workflow_id"),
	},
	{
		Name:        "get_lease_facts",
		Description: "Fetch the tenant's lease facts: rent, address, lease dates, owner name.",
		Parameters:  objectSchema(map[string]any{}),
	},
	{
		Name:        "escalate_to_landlord",
		Description: "Alert the property owner immediately about something urgent or needing their attention.",
		Parameters: objectSchema(map[string]any{
			"reason":  map[string]any{"type": "string"},
			"urgency": map[string]any{"type": "string", "enum": []string{"normal", "high", "emergency"}},
		}, "reason"),
	},
	{
		Name:        "log_workflow_note",
		Description: "Attach a note from the tenant to an existing workflow's communication log.",
		Parameters: objectSchema(map[string]any{
			"workflow_id": map[string]any{"type": "string"},
			"note":        map[string]any{"type": "string"},
		}, "workflow_id", "note"),
	},
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// executeTool runs one requested tool. A malformed or failing call never
// aborts the exchange: the error text goes back to the backend as the tool
// result and the loop continues.
func (s *AgentService) executeTool(ctx context.Context, lease entities.LeaseContext, call interfaces.ToolCall, toolsUsed *[]string, highSeverity *[]interfaces.HighSeverityAction) string {
	result, err := s.dispatchTool(ctx, lease, call, highSeverity)
	if err != nil {
		slog.Warn("tool execution failed", "tool", call.Name, "lease", lease.LeaseID, "error", err)
		return toolError(err)
	}
	*toolsUsed = append(*toolsUsed, call.Name)
	return result
}

func (s *AgentService) dispatchTool(ctx context.Context, lease entities.LeaseContext, call interfaces.ToolCall, highSeverity *[]interfaces.HighSeverityAction) (string, error) {
	switch call.Name {
	case "create_maintenance_request":
		var args struct {
			Description string `json:"description"`
			Urgency     string `json:"urgency"`
		}
		if err := parseArgs(call.Arguments, &args); err != nil {
			return "", err
		}
		if args.Description == "" {
			return "", fmt.Errorf("description is required")
		}
		wf, err := s.workflows.CreateRequest(ctx, lease, args.Description, args.Urgency)
		if err != nil {
			return "", err
		}
		*highSeverity = append(*highSeverity, interfaces.HighSeverityAction{
			Reason:  "New maintenance request",
			Urgency: args.Urgency,
			Summary: args.Description,
		})
		return toolResult(map[string]any{
			"workflow_id": wf.ID,
			"state":       wf.CurrentState,
		}), nil

	case "get_workflow_status":
		wf, err := s.workflows.ActiveForLease(ctx, lease.LeaseID)
		if err != nil {
			if err == interfaces.ErrWorkflowNotFound {
				return toolResult(map[string]any{"active_workflow": false}), nil
			}
			return "", err
		}
		status := map[string]any{
			"active_workflow": true,
			"workflow_id":     wf.ID,
			"state":           wf.CurrentState,
		}
		if wf.VendorETA != nil {
			status["vendor_eta"] = wf.VendorETA.Format(ETADisplayFormat)
		}
		if wf.VendorNotes != "" {
			status["vendor_notes"] = wf.VendorNotes
		}
		return toolResult(status), nil

	case "record_owner_decision":
		var args struct {
			WorkflowID string `json:"workflow_id"`
			Decision   string `json:"decision"`
			Note       string `json:"note"`
		}
		if err := parseArgs(call.Arguments, &args); err != nil {
			return "", err
		}
		wf, err := s.workflows.RecordOwnerDecision(ctx, args.WorkflowID, args.Decision, args.Note)
		if err != nil {
			return "", err
		}
		return toolResult(map[string]any{"workflow_id": wf.ID, "state": wf.CurrentState}), nil

	case "schedule_vendor":
		var args struct {
			WorkflowID  string `json:"workflow_id"`
			VendorName  string `json:"vendor_name"`
			VendorPhone string `json:"vendor_phone"`
		}
		if err := parseArgs(call.Arguments, &args); err != nil {
			return "", err
		}
		req, err := s.workflows.RequestForWorkflow(ctx, args.WorkflowID)
		if err != nil {
			return "", err
		}
		text := fmt.Sprintf("Job request from %s property management:\n%s at %s %s.\nReply with your ETA to accept.",
			lease.Landlord.Name, req.Description, lease.Unit.StreetAddress, lease.Unit.UnitNumber)
		if err := s.notifier.NotifyVendor(ctx, args.VendorPhone, text); err != nil {
			return "", err
		}
		if err := s.workflows.AppendNote(ctx, args.WorkflowID, entities.SenderSystem, "system",
			fmt.Sprintf("Vendor %s contacted at %s.", args.VendorName, args.VendorPhone)); err != nil {
			return "", err
		}
		return toolResult(map[string]any{"vendor_contacted": args.VendorName}), nil

	case "mark_work_completed":
		var args struct {
			WorkflowID string `json:"workflow_id"`
		}
		if err := parseArgs(call.Arguments, &args); err != nil {
			return "", err
		}
		wf, err := s.workflows.MarkCompleted(ctx, args.WorkflowID)
		if err != nil {
			return "", err
		}
		return toolResult(map[string]any{"workflow_id": wf.ID, "state": wf.CurrentState}), nil

	case "get_lease_facts":
		return toolResult(map[string]any{
			"monthly_rent": fmt.Sprintf("$%.2f", float64(lease.MonthlyRentCents)/100),
			"address":      strings.TrimSpace(lease.Unit.StreetAddress + " " + lease.Unit.UnitNumber),
			"lease_start":  lease.StartDate,
			"lease_end":    lease.EndDate,
			"owner":        lease.Landlord.Name,
			"tenant":       lease.Tenant.Name,
		}), nil

	case "escalate_to_landlord":
		var args struct {
			Reason  string `json:"reason"`
			Urgency string `json:"urgency"`
		}
		if err := parseArgs(call.Arguments, &args); err != nil {
			return "", err
		}
		if args.Reason == "" {
			return "", fmt.Errorf("reason is required")
		}
		*highSeverity = append(*highSeverity, interfaces.HighSeverityAction{
			Reason:  args.Reason,
			Urgency: args.Urgency,
			Summary: "Escalated from tenant conversation",
		})
		return toolResult(map[string]any{"escalated": true}), nil

	case "log_workflow_note":
		var args struct {
			WorkflowID string `json:"workflow_id"`
			Note       string `json:"note"`
		}
		if err := parseArgs(call.Arguments, &args); err != nil {
			return "", err
		}
		if err := s.workflows.AppendNote(ctx, args.WorkflowID, entities.SenderTenant, lease.Tenant.Name, args.Note); err != nil {
			return "", err
		}
		return toolResult(map[string]any{"logged": true}), nil

	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}

func parseArgs(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("malformed tool arguments: %w", err)
	}
	return nil
}

func toolResult(payload map[string]any) string {
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func toolError(err error) string {
	encoded, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(encoded)
}
