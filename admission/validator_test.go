package admission

import (
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"voicehub/domain"
	"voicehub/moderation"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := moderation.NewModerator([]string{"badger"}, '*')
	require.NoError(t, err)
	return NewValidator(log, mod)
}

func decode(t *testing.T, payload string) (*domain.Envelope, []byte) {
	t.Helper()
	env, err := domain.DecodeEnvelope([]byte(payload))
	require.NoError(t, err)
	return env, []byte(payload)
}

func TestValidator_ChatMessage(t *testing.T) {
	v := newValidator(t)

	t.Run("valid text admitted", func(t *testing.T) {
		env, raw := decode(t, `{"type":"chat_message","session_id":"s1","content":"hello"}`)
		require.True(t, v.Validate(raw, env, "u1"))
		require.Equal(t, "hello", env.Content)
	})

	t.Run("empty after trim rejected", func(t *testing.T) {
		env, raw := decode(t, `{"type":"chat_message","session_id":"s1","content":"   "}`)
		require.False(t, v.Validate(raw, env, "u1"))
	})

	t.Run("over 2000 characters rejected", func(t *testing.T) {
		env := &domain.Envelope{
			Type:      "chat_message",
			SessionID: "s1",
			Content:   strings.Repeat("a", MaxTextLen+1),
		}
		raw, err := json.Marshal(env)
		require.NoError(t, err)
		require.False(t, v.Validate(raw, env, "u1"))
	})

	// Disallowed HTML is admitted but rewritten to the sanitized form
	// before any handler can see it.
	t.Run("html stripped to allow list", func(t *testing.T) {
		env, raw := decode(t, `{"type":"chat_message","session_id":"s1","content":"<script>x()</script><b>hi</b>"}`)
		require.True(t, v.Validate(raw, env, "u1"))
		require.Equal(t, "x()<b>hi</b>", env.Content)
	})

	t.Run("profanity censored in place", func(t *testing.T) {
		env, raw := decode(t, `{"type":"chat_message","session_id":"s1","content":"you badger!"}`)
		require.True(t, v.Validate(raw, env, "u1"))
		require.Equal(t, "you ******!", env.Content)
	})
}

func TestValidator_SizeAndSchema(t *testing.T) {
	v := newValidator(t)

	t.Run("oversized payload rejected", func(t *testing.T) {
		env := &domain.Envelope{Type: "chat_message", SessionID: "s1", Content: "x"}
		raw := make([]byte, MaxRawSize+1)
		require.False(t, v.Validate(raw, env, "u1"))
	})

	t.Run("missing type rejected", func(t *testing.T) {
		env, raw := decode(t, `{"session_id":"s1","content":"x"}`)
		require.False(t, v.Validate(raw, env, "u1"))
	})

	t.Run("missing session rejected", func(t *testing.T) {
		env, raw := decode(t, `{"type":"chat_message","content":"x"}`)
		require.False(t, v.Validate(raw, env, "u1"))
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		env, raw := decode(t, `{"type":"warp_drive","session_id":"s1"}`)
		require.False(t, v.Validate(raw, env, "u1"))
	})
}

func TestValidator_FileShare(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"allowed image", `{"type":"file_share","session_id":"s1","filename":"pic.PNG","file_size":1024}`, true},
		{"allowed document", `{"type":"file_share","session_id":"s1","filename":"notes.pdf","file_size":2048}`, true},
		{"forbidden extension", `{"type":"file_share","session_id":"s1","filename":"tool.exe","file_size":10}`, false},
		{"zero size", `{"type":"file_share","session_id":"s1","filename":"pic.png","file_size":0}`, false},
		{"oversized", `{"type":"file_share","session_id":"s1","filename":"movie.mp4","file_size":104857601}`, false},
		{"missing filename", `{"type":"file_share","session_id":"s1","file_size":10}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, raw := decode(t, tt.payload)
			require.Equal(t, tt.want, v.Validate(raw, env, "u1"))
		})
	}
}

func TestValidator_Poll(t *testing.T) {
	v := newValidator(t)

	t.Run("valid poll", func(t *testing.T) {
		env, raw := decode(t, `{"type":"poll_create","session_id":"s1","question":"lunch?","options":[" pizza ","sushi"]}`)
		require.True(t, v.Validate(raw, env, "u1"))
		require.Equal(t, []string{"pizza", "sushi"}, env.Options)
	})

	t.Run("single option rejected", func(t *testing.T) {
		env, raw := decode(t, `{"type":"poll_create","session_id":"s1","question":"q","options":["only"]}`)
		require.False(t, v.Validate(raw, env, "u1"))
	})

	t.Run("blank option rejected", func(t *testing.T) {
		env, raw := decode(t, `{"type":"poll_create","session_id":"s1","question":"q","options":["a","  "]}`)
		require.False(t, v.Validate(raw, env, "u1"))
	})
}

func TestValidator_References(t *testing.T) {
	v := newValidator(t)

	t.Run("reaction without reference rejected", func(t *testing.T) {
		env, raw := decode(t, `{"type":"reaction","session_id":"s1","emoji":"+1"}`)
		require.False(t, v.Validate(raw, env, "u1"))
	})

	t.Run("reaction without emoji rejected", func(t *testing.T) {
		env, raw := decode(t, `{"type":"reaction","session_id":"s1","target_message_id":"m1"}`)
		require.False(t, v.Validate(raw, env, "u1"))
	})

	t.Run("delete with message_id admitted", func(t *testing.T) {
		env, raw := decode(t, `{"type":"delete_message","session_id":"s1","message_id":"m1"}`)
		require.True(t, v.Validate(raw, env, "u1"))
	})
}
