package usecases

import (
	"context"
	"fmt"
	"strings"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
)

// digestSideLimit caps each side of an exchange inside its digest line.
const digestSideLimit = 110

// Summarizer folds every exchange into the lease's rolling summary. The
// combined text never exceeds entities.MaxSummaryLength: the newest digest
// always survives, the oldest lines are discarded first. Open threads pass
// through untouched.
type Summarizer struct {
	store interfaces.ContextStore
}

func NewSummarizer(store interfaces.ContextStore) *Summarizer {
	return &Summarizer{store: store}
}

func (s *Summarizer) Update(ctx context.Context, leaseID int, userMessage, agentReply string, toolsUsed []string) error {
	cc, err := s.store.Get(ctx, leaseID)
	if err != nil {
		return err
	}

	digest := digestLine(userMessage, agentReply, toolsUsed)
	if cc.Summary == "" {
		cc.Summary = digest
	} else {
		cc.Summary = cc.Summary + "\n" + digest
	}
	cc.Summary = trimOldest(cc.Summary, entities.MaxSummaryLength)
	cc.LeaseID = leaseID

	return s.store.Save(ctx, cc)
}

func digestLine(userMessage, agentReply string, toolsUsed []string) string {
	line := fmt.Sprintf("tenant: %s | agent: %s",
		truncate(userMessage, digestSideLimit), truncate(agentReply, digestSideLimit))
	if len(toolsUsed) > 0 {
		line += " | tools: " + strings.Join(toolsUsed, ",")
	}
	return line
}

// trimOldest drops whole lines from the front until the text fits, keeping
// the newest content. A single oversize line keeps only its tail.
func trimOldest(text string, max int) string {
	for len(text) > max {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			runes := []rune(text)
			for len(string(runes)) > max {
				runes = runes[1:]
			}
			return string(runes)
		}
		text = text[idx+1:]
	}
	return text
}

func truncate(text string, max int) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-1]) + "…"
}
