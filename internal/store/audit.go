package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// MisalignedMessage is a message whose remote_jid disagrees with its chat's
// jid, meaning the row was attached to the wrong conversation.
type MisalignedMessage struct {
	MessageID int64
	ChatID    int64
	RemoteJID string
	ChatJID   string
}

// MisalignedMessages returns up to limit messages whose remote_jid differs
// from the owning chat's jid.
func (s *Store) MisalignedMessages(ctx context.Context, limit int) ([]MisalignedMessage, error) {
	query := `
		SELECT m.id, m.chat_id, m.remote_jid, c.jid
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE m.remote_jid IS DISTINCT FROM c.jid
		ORDER BY m.id
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list misaligned messages")
	}
	defer rows.Close()

	var list []MisalignedMessage
	for rows.Next() {
		var m MisalignedMessage
		if err := rows.Scan(&m.MessageID, &m.ChatID, &m.RemoteJID, &m.ChatJID); err != nil {
			return nil, errors.Wrap(err, "failed to scan misaligned message")
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// DistinctDMJIDs returns the distinct non-group remote JIDs seen in messages.
func (s *Store) DistinctDMJIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT m.remote_jid
		FROM messages m
		WHERE m.remote_jid IS NOT NULL
			AND m.remote_jid NOT LIKE '%` + GroupSuffix + `'
		ORDER BY m.remote_jid`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list DM remote JIDs")
	}
	defer rows.Close()

	var jids []string
	for rows.Next() {
		var jid string
		if err := rows.Scan(&jid); err != nil {
			return nil, errors.Wrap(err, "failed to scan DM remote JID")
		}
		jids = append(jids, jid)
	}
	return jids, rows.Err()
}

// ContactExists reports whether at least one contact row matches the JID
// under the same disjunctive rule ResolveContact uses. Blank and group JIDs
// vacuously match.
func (s *Store) ContactExists(ctx context.Context, jid string) (bool, error) {
	jid = strings.TrimSpace(jid)
	if jid == "" || strings.HasSuffix(jid, GroupSuffix) {
		return true, nil
	}

	conds, args := contactMatchConditions(jid)
	query := `SELECT 1 FROM contacts WHERE ` + strings.Join(conds, " OR ") + ` LIMIT 1`

	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to check contact for %s", jid)
	}
	return true, nil
}

// DMChats returns all non-group chats with their primary and alternate JIDs.
func (s *Store) DMChats(ctx context.Context) ([]Chat, error) {
	query := `
		SELECT id, jid, jid_pn
		FROM chats
		WHERE jid NOT LIKE '%` + GroupSuffix + `'
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list DM chats")
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		var jidPN sql.NullString
		if err := rows.Scan(&c.ID, &c.JID, &jidPN); err != nil {
			return nil, errors.Wrap(err, "failed to scan DM chat")
		}
		if jidPN.Valid {
			c.JIDPN = &jidPN.String
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}
