package search

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"wavault/internal/store"
)

const snippetLimit = 500

// formatResult turns a fused candidate into a client-facing result record.
// Contact resolution failures degrade into a result without contact
// enrichment; they never fail the sibling results.
func (e *Engine) formatResult(ctx context.Context, c *candidate) Result {
	hit := c.hit

	var contact *store.ContactRef
	if jid := senderJID(hit); jid != "" {
		ref, err := e.store.ResolveContact(ctx, jid)
		if err != nil {
			slog.Debug("contact lookup failed", "jid", jid, "error", err)
		} else {
			contact = ref
		}
	}

	isGroup := strings.HasSuffix(hit.RemoteJID, store.GroupSuffix)
	pushName := ""
	if contact != nil && contact.PushName != nil {
		pushName = strings.TrimSpace(*contact.PushName)
	}

	sender := "You"
	if !hit.FromMe {
		switch {
		case pushName != "":
			sender = pushName
		case isGroup && hit.Participant != nil:
			sender = localPart(*hit.Participant)
		case !isGroup && hit.RemoteJID != "":
			sender = localPart(hit.RemoteJID)
		default:
			sender = "Unknown"
		}
	}

	chatLabel := ""
	hasChatName := hit.ChatName != nil && *hit.ChatName != ""
	switch {
	case hasChatName:
		chatLabel = *hit.ChatName
	case !isGroup && pushName != "":
		chatLabel = pushName
	case hit.RemoteJID != "":
		chatLabel = hit.RemoteJID
	default:
		chatLabel = "Chat"
	}

	title := sender + " (" + chatLabel + ")"
	if hasChatName {
		title = sender + " in " + chatLabel
	}

	snippet := ""
	if hit.BodyText != nil {
		snippet = truncateRunes(*hit.BodyText, snippetLimit)
	}

	var tsISO *string
	tsDisplay := "?"
	if hit.Timestamp != nil {
		iso := hit.Timestamp.Format(time.RFC3339)
		tsISO = &iso
		tsDisplay = hit.Timestamp.Format("2006-01-02 15:04")
	}

	metadata := map[string]any{
		"chat_id":      hit.ChatID,
		"remote_jid":   hit.RemoteJID,
		"from_me":      hit.FromMe,
		"message_type": hit.MessageType,
	}
	if pushName != "" {
		metadata["contact_push_name"] = pushName
	}
	if contact != nil && contact.WAID != "" {
		metadata["contact_wa_id"] = contact.WAID
	}

	return Result{
		ID:            strconv.FormatInt(hit.ID, 10),
		Source:        SourceName,
		SourceClass:   SourceClass,
		Title:         title,
		Snippet:       snippet,
		Timestamp:     tsISO,
		Scores:        c.scores,
		CombinedScore: c.combinedScore(),
		MethodsUsed:   c.methods,
		Metadata:      metadata,
		Provenance:    "WhatsApp message in " + chatLabel + " at " + tsDisplay,
	}
}

// senderJID picks the JID whose contact names the result. Own messages are
// attributed to the conversation itself (no identity in groups); incoming
// group messages are attributed to the participant when recorded.
func senderJID(hit store.MessageHit) string {
	isGroup := strings.HasSuffix(hit.RemoteJID, store.GroupSuffix)
	if hit.FromMe {
		if isGroup {
			return ""
		}
		return hit.RemoteJID
	}
	if isGroup && hit.Participant != nil && *hit.Participant != "" {
		return *hit.Participant
	}
	return hit.RemoteJID
}

func localPart(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
