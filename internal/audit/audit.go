// Package audit runs read-only consistency checks over the archive.
//
// Four checks: every message's chat carries the same JID as the message,
// DM messages and DM chats each have a matching contact row, and no two
// chats point at the same logical peer. The last one passes with warnings
// since duplicate chats are a known artifact of the LID rollout, not
// corruption.
package audit

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"wavault/internal/store"
)

// misalignedCap bounds the first check's scan; beyond it the archive is
// broken enough that an exact count adds nothing.
const misalignedCap = 500

// CheckResult is the outcome of one consistency check.
type CheckResult struct {
	Name         string   `json:"name"`
	Passed       bool     `json:"passed"`
	ErrorCount   int      `json:"error_count"`
	WarningCount int      `json:"warning_count"`
	Details      []string `json:"details,omitempty"`
}

// Store is the subset of archive queries the checks need.
type Store interface {
	MisalignedMessages(ctx context.Context, limit int) ([]store.MisalignedMessage, error)
	DistinctDMJIDs(ctx context.Context) ([]string, error)
	ContactExists(ctx context.Context, jid string) (bool, error)
	DMChats(ctx context.Context) ([]store.Chat, error)
}

// Run executes all checks in order. It stops at the first query error;
// a failing check is a result, not an error.
func Run(ctx context.Context, st Store) ([]CheckResult, error) {
	checks := []func(context.Context, Store) (CheckResult, error){
		checkMessageChatAlignment,
		checkDMMessagesHaveContact,
		checkDMChatsHaveContact,
		checkDuplicateChats,
	}

	var results []CheckResult
	for _, check := range checks {
		r, err := check(ctx, st)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// checkMessageChatAlignment verifies m.remote_jid matches the owning
// chat's jid for every message.
func checkMessageChatAlignment(ctx context.Context, st Store) (CheckResult, error) {
	name := "Message-chat JID alignment"

	rows, err := st.MisalignedMessages(ctx, misalignedCap)
	if err != nil {
		return CheckResult{}, errors.Wrap(err, "alignment check")
	}
	if len(rows) == 0 {
		return CheckResult{Name: name, Passed: true}, nil
	}

	details := make([]string, 0, len(rows)+1)
	for _, m := range rows {
		details = append(details, fmt.Sprintf(
			"  message_id=%d chat_id=%d message.remote_jid=%q chat.jid=%q",
			m.MessageID, m.ChatID, m.RemoteJID, m.ChatJID))
	}
	if len(rows) >= misalignedCap {
		details = append(details, "  ... and possibly more (capped at 500)")
	}
	return CheckResult{Name: name, ErrorCount: len(rows), Details: details}, nil
}

// checkDMMessagesHaveContact verifies every DM remote JID seen in messages
// resolves to at least one contact row.
func checkDMMessagesHaveContact(ctx context.Context, st Store) (CheckResult, error) {
	name := "DM messages have matching contact"

	jids, err := st.DistinctDMJIDs(ctx)
	if err != nil {
		return CheckResult{}, errors.Wrap(err, "DM message contact check")
	}

	var missing []string
	for _, jid := range jids {
		ok, err := st.ContactExists(ctx, jid)
		if err != nil {
			return CheckResult{}, errors.Wrap(err, "DM message contact check")
		}
		if !ok {
			missing = append(missing, jid)
		}
	}
	if len(missing) == 0 {
		return CheckResult{Name: name, Passed: true}, nil
	}

	sort.Strings(missing)
	details := make([]string, 0, 101)
	for i, jid := range missing {
		if i >= 100 {
			details = append(details, fmt.Sprintf("  ... and %d more", len(missing)-100))
			break
		}
		details = append(details, "  "+jid)
	}
	return CheckResult{Name: name, ErrorCount: len(missing), Details: details}, nil
}

// checkDMChatsHaveContact verifies every DM chat's jid, or its jid_pn
// fallback, resolves to a contact row.
func checkDMChatsHaveContact(ctx context.Context, st Store) (CheckResult, error) {
	name := "DM chats have matching contact"

	chats, err := st.DMChats(ctx)
	if err != nil {
		return CheckResult{}, errors.Wrap(err, "DM chat contact check")
	}

	var missing []store.Chat
	for _, c := range chats {
		ok, err := st.ContactExists(ctx, c.JID)
		if err != nil {
			return CheckResult{}, errors.Wrap(err, "DM chat contact check")
		}
		if !ok && c.JIDPN != nil {
			ok, err = st.ContactExists(ctx, *c.JIDPN)
			if err != nil {
				return CheckResult{}, errors.Wrap(err, "DM chat contact check")
			}
		}
		if !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return CheckResult{Name: name, Passed: true}, nil
	}

	details := make([]string, 0, 51)
	for i, c := range missing {
		if i >= 50 {
			details = append(details, fmt.Sprintf("  ... and %d more", len(missing)-50))
			break
		}
		jidPN := "<nil>"
		if c.JIDPN != nil {
			jidPN = *c.JIDPN
		}
		details = append(details, fmt.Sprintf("  chat_id=%d jid=%q jid_pn=%q", c.ID, c.JID, jidPN))
	}
	return CheckResult{Name: name, ErrorCount: len(missing), Details: details}, nil
}

// checkDuplicateChats flags multiple chats for the same logical peer.
// LID-scheme chats normalize to their phone-number JID when known, so a
// LID chat and a PN chat for one person group together.
func checkDuplicateChats(ctx context.Context, st Store) (CheckResult, error) {
	name := "No duplicate chats for same peer"

	chats, err := st.DMChats(ctx)
	if err != nil {
		return CheckResult{}, errors.Wrap(err, "duplicate chat check")
	}

	byPeer := map[string][]store.Chat{}
	var peers []string
	for _, c := range chats {
		peer := normalizePeer(c.JID, c.JIDPN)
		if peer == "" {
			continue
		}
		if _, seen := byPeer[peer]; !seen {
			peers = append(peers, peer)
		}
		byPeer[peer] = append(byPeer[peer], c)
	}

	var details []string
	warnings := 0
	dupGroups := 0
	for _, peer := range peers {
		group := byPeer[peer]
		if len(group) < 2 {
			continue
		}
		dupGroups++
		warnings += len(group)
		if dupGroups <= 20 {
			ids := make([]string, len(group))
			jids := make([]string, len(group))
			for i, c := range group {
				ids[i] = fmt.Sprintf("%d", c.ID)
				jids[i] = c.JID
			}
			details = append(details, fmt.Sprintf("  peer %q: chat_ids=[%s] jids=[%s]",
				peer, strings.Join(ids, " "), strings.Join(jids, " ")))
		}
	}
	if dupGroups > 20 {
		details = append(details, fmt.Sprintf("  ... and %d more duplicate groups", dupGroups-20))
	}

	// Duplicates are expected after the LID migration; warn, don't fail.
	return CheckResult{Name: name, Passed: true, WarningCount: warnings, Details: details}, nil
}

// normalizePeer maps a DM chat to one canonical key per person: the
// phone-number JID when available, else the chat's own JID.
func normalizePeer(jid string, jidPN *string) string {
	if jid == "" {
		return ""
	}
	if strings.HasSuffix(jid, store.PhoneSuffix) {
		return jid
	}
	if strings.HasSuffix(jid, store.LIDSuffix) && jidPN != nil && *jidPN != "" {
		return *jidPN
	}
	return jid
}

// WriteReport prints the check results in a stable plain-text form and
// returns false when any check found errors.
func WriteReport(w io.Writer, results []CheckResult) bool {
	errorTotal := 0
	warningTotal := 0
	for _, r := range results {
		status := "PASS"
		if !r.Passed || r.ErrorCount > 0 {
			status = "FAIL"
		}
		suffix := ""
		if r.WarningCount > 0 {
			suffix = fmt.Sprintf(" (%d warnings)", r.WarningCount)
		}
		fmt.Fprintf(w, "[%s] %s%s\n", status, r.Name, suffix)
		for _, line := range r.Details {
			fmt.Fprintln(w, line)
		}
		if len(r.Details) > 0 {
			fmt.Fprintln(w)
		}
		errorTotal += r.ErrorCount
		warningTotal += r.WarningCount
	}

	switch {
	case errorTotal > 0:
		fmt.Fprintf(w, "Total: %d error(s), %d warning(s), data is inconsistent.\n", errorTotal, warningTotal)
		return false
	case warningTotal > 0:
		fmt.Fprintf(w, "Total: 0 errors, %d warning(s), data is consistent but has duplicate chats for same peers.\n", warningTotal)
		return true
	default:
		fmt.Fprintln(w, "Total: 0 errors, 0 warnings, data is consistent.")
		return true
	}
}
