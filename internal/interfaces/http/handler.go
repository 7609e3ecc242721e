package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
	"leaseline/internal/usecases"
)

// emptyTwiML tells the messaging provider "received, no synchronous reply";
// every reply goes out through the REST API after the agent has run.
const emptyTwiML = "<Response></Response>"

// SignatureValidator checks the provider's webhook signature. A nil
// validator disables the check for local development; an installed validator
// without a public base URL rejects every delivery, since the signed payload
// cannot be reconstructed.
type SignatureValidator interface {
	Validate(fullURL string, params url.Values, signature string) bool
}

type Handler struct {
	agent      interfaces.AgentRunner
	workflows  *usecases.WorkflowService
	leases     interfaces.LeaseResolver
	ledger     interfaces.Ledger
	notifier   interfaces.NotificationSender
	summarizer interfaces.SummaryUpdater
	dedup      interfaces.DedupCache
	dispatcher interfaces.TaskDispatcher
	validator  SignatureValidator
	baseURL    string
	limiter    *SenderRateLimiter
	health     func(c *gin.Context) error
}

func NewHandler(
	agent interfaces.AgentRunner,
	workflows *usecases.WorkflowService,
	leases interfaces.LeaseResolver,
	ledger interfaces.Ledger,
	notifier interfaces.NotificationSender,
	summarizer interfaces.SummaryUpdater,
	dedup interfaces.DedupCache,
	dispatcher interfaces.TaskDispatcher,
	validator SignatureValidator,
	baseURL string,
) *Handler {
	return &Handler{
		agent:      agent,
		workflows:  workflows,
		leases:     leases,
		ledger:     ledger,
		notifier:   notifier,
		summarizer: summarizer,
		dedup:      dedup,
		dispatcher: dispatcher,
		validator:  validator,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		limiter:    NewSenderRateLimiter(1, 5),
	}
}

// SetHealthCheck installs an extra liveness probe (e.g. a database ping)
// behind /healthz.
func (h *Handler) SetHealthCheck(fn func(c *gin.Context) error) {
	h.health = fn
}

func SetupRoutes(r *gin.Engine, h *Handler) {
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20)) // 1MB max request size

	r.POST("/webhook/message", h.HandleInboundMessage)

	api := r.Group("/api")
	{
		api.POST("/vendor/response", h.HandleVendorResponse)
		api.GET("/workflows/:id", h.GetWorkflowDetail)
		api.GET("/leases/:id/conversation", h.GetConversation)
	}

	r.GET("/healthz", h.Healthz)
}

// normalizeSender strips the channel prefix ("whatsapp:+1555..." → "+1555...")
// so lookups hit the canonical phone stored on the tenant.
func normalizeSender(from string) string {
	return strings.TrimPrefix(from, "whatsapp:")
}

// HandleInboundMessage receives the provider's form-encoded webhook. It does
// the cheap synchronous work (validate, resolve, record) and hands the agent
// run to the dispatcher so the provider gets its 200 within its timeout.
func (h *Handler) HandleInboundMessage(c *gin.Context) {
	from := c.PostForm("From")
	body := c.PostForm("Body")
	externalID := c.PostForm("MessageSid")
	numMedia, _ := strconv.Atoi(c.PostForm("NumMedia"))

	if from == "" || body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "From and Body are required"})
		return
	}

	if h.validator != nil {
		if h.baseURL == "" {
			// No public base URL means no way to rebuild the signed payload.
			// Fail closed rather than admit unauthenticated webhooks.
			slog.Error("signature validation misconfigured, public base url unset")
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		signature := c.GetHeader("X-Twilio-Signature")
		fullURL := h.baseURL + c.Request.URL.RequestURI()
		if !h.validator.Validate(fullURL, c.Request.PostForm, signature) {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
	}

	if !h.limiter.Allow(from) {
		// Acknowledge and drop; the provider must not retry a flood.
		slog.Warn("rate limit exceeded, dropping message", "from", from)
		h.twiml(c)
		return
	}

	phone := normalizeSender(from)
	lease, err := h.leases.Resolve(c.Request.Context(), phone)
	if err != nil {
		if errors.Is(err, interfaces.ErrLeaseNotFound) {
			slog.Info("message from unknown sender", "from", from)
			// Detached: the request context dies when the handler returns.
			go func() {
				if err := h.notifier.NotifyUnknownSender(context.Background(), from); err != nil {
					slog.Error("unknown sender reply failed", "from", from, "error", err)
				}
			}()
			h.twiml(c)
			return
		}
		slog.Error("lease resolution failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if h.dedup != nil && externalID != "" {
		first, err := h.dedup.FirstSeen(c.Request.Context(), externalID)
		if err != nil {
			// Cache down is not fatal; the ledger's unique index still holds.
			slog.Warn("dedup cache unavailable", "error", err)
		} else if !first {
			slog.Info("duplicate delivery dropped", "external_id", externalID)
			h.twiml(c)
			return
		}
	}

	err = h.ledger.Append(c.Request.Context(), lease.LeaseID, entities.DirectionInbound, body, externalID, "")
	if err != nil {
		if errors.Is(err, interfaces.ErrDuplicateMessage) {
			slog.Info("duplicate delivery dropped", "external_id", externalID)
			h.twiml(c)
			return
		}
		slog.Error("failed to record inbound message", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// The ledger keeps the body as delivered; the agent additionally hears
	// about attachments it cannot fetch over this channel.
	agentBody := body
	if numMedia > 0 {
		slog.Info("inbound message carries media", "lease_id", lease.LeaseID, "num_media", numMedia)
		agentBody = fmt.Sprintf("%s\n[tenant attached %d media file(s), not viewable here]", body, numMedia)
	}

	if err := h.dispatcher.Submit(lease.LeaseID, func(ctx context.Context) {
		h.processMessage(ctx, lease, from, agentBody)
	}); err != nil {
		// Message is durable in the ledger; an ops alarm beats a retry storm.
		slog.Error("dispatcher saturated, message recorded but not processed",
			"lease_id", lease.LeaseID, "external_id", externalID, "error", err)
	}

	h.twiml(c)
}

func (h *Handler) twiml(c *gin.Context) {
	c.Data(http.StatusOK, "text/xml", []byte(emptyTwiML))
}

// processMessage is the detached half of the webhook: run the agent, record
// and send the reply, escalate anything severe, fold the exchange into the
// rolling summary. Every failure past the agent run is logged and absorbed.
func (h *Handler) processMessage(ctx context.Context, lease entities.LeaseContext, replyTo, body string) {
	result := h.agent.Run(ctx, lease, body)

	if err := h.ledger.Append(ctx, lease.LeaseID, entities.DirectionOutbound, result.FinalMessage, "", result.Intent); err != nil {
		slog.Error("failed to record outbound message", "lease_id", lease.LeaseID, "error", err)
	}

	if err := h.notifier.Reply(ctx, replyTo, result.FinalMessage); err != nil {
		slog.Error("failed to send reply", "lease_id", lease.LeaseID, "error", err)
	}

	for _, action := range result.HighSeverity {
		if err := h.notifier.Escalate(ctx, lease, action); err != nil {
			slog.Error("landlord escalation failed", "lease_id", lease.LeaseID, "reason", action.Reason, "error", err)
		}
	}

	if err := h.summarizer.Update(ctx, lease.LeaseID, body, result.FinalMessage, result.ToolsUsed); err != nil {
		slog.Error("failed to update conversation summary", "lease_id", lease.LeaseID, "error", err)
	}
}

// HandleVendorResponse lets the vendor portal confirm an arrival window for a
// workflow awaiting scheduling. The workflow is named in the body so a
// response missing it is a plain 400, not a routing miss.
func (h *Handler) HandleVendorResponse(c *gin.Context) {
	var payload struct {
		WorkflowID string `json:"workflow_id"`
		ETA        string `json:"eta"`
		Notes      string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if payload.WorkflowID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workflow_id is required"})
		return
	}
	eta, err := time.Parse(time.RFC3339, payload.ETA)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "eta must be RFC 3339"})
		return
	}

	wf, err := h.workflows.SubmitVendorResponse(c.Request.Context(), payload.WorkflowID, eta, payload.Notes)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrWorkflowNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		case errors.Is(err, interfaces.ErrStateConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "workflow is not awaiting a vendor response"})
		default:
			slog.Error("vendor response failed", "workflow_id", payload.WorkflowID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	resp := gin.H{
		"success":       true,
		"current_state": wf.CurrentState,
	}
	if wf.VendorETA != nil {
		resp["eta"] = wf.VendorETA.Format(usecases.ETADisplayFormat)
	}
	c.JSON(http.StatusOK, resp)
}

// GetWorkflowDetail returns a workflow with its communication log.
func (h *Handler) GetWorkflowDetail(c *gin.Context) {
	workflowID := c.Param("id")

	wf, comms, err := h.workflows.Detail(c.Request.Context(), workflowID)
	if err != nil {
		if errors.Is(err, interfaces.ErrWorkflowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
			return
		}
		slog.Error("workflow lookup failed", "workflow_id", workflowID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow":       wf,
		"communications": comms,
	})
}

// GetConversation returns the most recent ledger entries for a lease,
// newest first. ?limit= caps the page (default 50).
func (h *Handler) GetConversation(c *gin.Context) {
	leaseID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lease id must be an integer"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
	}

	messages, err := h.ledger.Recent(c.Request.Context(), leaseID, limit)
	if err != nil {
		slog.Error("conversation lookup failed", "lease_id", leaseID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
