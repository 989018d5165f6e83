package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// ResolveContact finds the contact row for a message or chat JID. The
// protocol refers to one person by either a phone-number JID or a LID
// depending on client version and message direction, so the match is
// disjunctive: wa_id always, plus phone_number for phone-scheme JIDs and
// lid for LID-scheme JIDs. The first matching row wins; duplicate rows for
// one person are a known data-quality issue that the audit flags but this
// lookup does not try to arbitrate.
//
// A blank JID returns (nil, nil) without touching the database. No match
// also returns (nil, nil).
func (s *Store) ResolveContact(ctx context.Context, jid string) (*ContactRef, error) {
	jid = strings.TrimSpace(jid)
	if jid == "" {
		return nil, nil
	}

	conds, args := contactMatchConditions(jid)
	query := `
		SELECT push_name, wa_id
		FROM contacts
		WHERE ` + strings.Join(conds, " OR ") + `
		LIMIT 1`

	var pushName sql.NullString
	var ref ContactRef
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&pushName, &ref.WAID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve contact for %s", jid)
	}
	if pushName.Valid && strings.TrimSpace(pushName.String) != "" {
		name := pushName.String
		ref.PushName = &name
	}
	return &ref, nil
}

// contactMatchConditions builds the disjunctive match for one JID.
func contactMatchConditions(jid string) ([]string, []any) {
	conds := []string{"wa_id = " + placeholder(1)}
	args := []any{jid}

	switch {
	case strings.HasSuffix(jid, PhoneSuffix):
		number := strings.TrimSuffix(jid, PhoneSuffix)
		conds = append(conds,
			"phone_number = "+placeholder(2),
			"phone_number = "+placeholder(3))
		args = append(args, number, jid)
	case strings.HasSuffix(jid, LIDSuffix):
		conds = append(conds, "lid = "+placeholder(2))
		args = append(args, jid)
	}
	return conds, args
}
