package proto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr error
	}{
		{name: "blank", input: "   \n", want: Command{Kind: CommandNone}},
		{name: "chat", input: "  hello there ", want: Command{Kind: CommandChat, Content: "hello there"}},
		{name: "set username", input: "/user alice", want: Command{Kind: CommandSetUsername, Username: "alice"}},
		{name: "set username padded", input: "/user    bob  ", want: Command{Kind: CommandSetUsername, Username: "bob"}},
		{name: "set username missing", input: "/user", want: Command{Kind: CommandSetUsername}},
		{name: "user prefix is chat", input: "/username", want: Command{Kind: CommandChat, Content: "/username"}},
		{name: "history default", input: "/history", want: Command{Kind: CommandHistory}},
		{name: "history count", input: "/history 200", want: Command{Kind: CommandHistory, Limit: 200}},
		{name: "history bad count", input: "/history lots", wantErr: ErrHistoryCount},
		{name: "history zero", input: "/history 0", wantErr: ErrHistoryCount},
		{name: "json username", input: `{"type":"SetUsername","username":" carol "}`, want: Command{Kind: CommandSetUsername, Username: "carol"}},
		{name: "json message", input: `{"type":"Message","content":"hi"}`, want: Command{Kind: CommandChat, Content: "hi"}},
		{name: "json empty message", input: `{"type":"Message","content":"  "}`, want: Command{Kind: CommandNone}},
		{name: "json history", input: `{"type":"History","limit":75}`, want: Command{Kind: CommandHistory, Limit: 75}},
		{name: "json unknown", input: `{"type":"Dance"}`, wantErr: ErrUnknownType},
		{name: "json malformed", input: `{"type":`, wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInbound([]byte(tt.input))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewMessageWireShape(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	data, err := json.Marshal(NewMessage{Type: TypeNewMessage, Username: "alice", Content: "hello", Timestamp: ts, Seq: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"NewMessage","username":"alice","content":"hello","timestamp":"2024-05-01T10:00:00Z","seq":1}`, string(data))

	data, err = json.Marshal(History{Type: TypeHistory, Messages: []NewMessage{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"History","messages":[]}`, string(data))
}
