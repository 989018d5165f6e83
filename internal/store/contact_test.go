package store

import (
	"context"
	"reflect"
	"testing"
)

func TestResolveContactBlankInput(t *testing.T) {
	// A nil pool would panic on any query, so passing proves the
	// short-circuit never touches the database.
	s := NewWithDB(nil)
	for _, jid := range []string{"", "   "} {
		ref, err := s.ResolveContact(context.Background(), jid)
		if err != nil {
			t.Fatalf("ResolveContact(%q): %v", jid, err)
		}
		if ref != nil {
			t.Fatalf("ResolveContact(%q) = %+v, want nil", jid, ref)
		}
	}
}

func TestContactMatchConditions(t *testing.T) {
	tests := []struct {
		name      string
		jid       string
		wantConds []string
		wantArgs  []any
	}{
		{
			name: "phone scheme matches wa_id and both phone forms",
			jid:  "60173135062@s.whatsapp.net",
			wantConds: []string{
				"wa_id = $1",
				"phone_number = $2",
				"phone_number = $3",
			},
			wantArgs: []any{
				"60173135062@s.whatsapp.net",
				"60173135062",
				"60173135062@s.whatsapp.net",
			},
		},
		{
			name: "lid scheme matches wa_id and lid",
			jid:  "214215855980743@lid",
			wantConds: []string{
				"wa_id = $1",
				"lid = $2",
			},
			wantArgs: []any{"214215855980743@lid", "214215855980743@lid"},
		},
		{
			name:      "other schemes match wa_id only",
			jid:       "something@g.us",
			wantConds: []string{"wa_id = $1"},
			wantArgs:  []any{"something@g.us"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds, args := contactMatchConditions(tt.jid)
			if !reflect.DeepEqual(conds, tt.wantConds) {
				t.Fatalf("conds = %v, want %v", conds, tt.wantConds)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}
