// ABOUTME: Tests for the built-in tools against a real in-memory store,
// ABOUTME: an httptest weather backend, and the arithmetic evaluator.

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/loom/internal/gateway"
	"github.com/2389/loom/internal/kb"
	"github.com/2389/loom/internal/store"
)

type builtinFixture struct {
	store *store.SQLiteStore
	disp  *Dispatcher
}

func newBuiltinFixture(t *testing.T, weatherURL string) *builtinFixture {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	deps := Deps{
		Store:   s,
		Gateway: gateway.NewClient(time.Second),
		KB:      kb.Default(),
		Weather: WeatherConfig{
			Endpoint:  weatherURL,
			Latitude:  40,
			Longitude: -74,
		},
		Now: func() time.Time { return fixed },
	}

	d, err := NewDispatcher(Builtins(deps), 0)
	require.NoError(t, err)

	return &builtinFixture{store: s, disp: d}
}

func (f *builtinFixture) seedConversation(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.CreateUser(ctx, "u-1", "Harper", "harper@example.com")
	require.NoError(t, err)
	conv, err := f.store.CreateConversation(ctx, "u-1")
	require.NoError(t, err)
	return conv.ID
}

func decodePayload(t *testing.T, res Result) map[string]any {
	t.Helper()
	require.True(t, res.OK(), "expected success, got %v", res.Failure)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(res.Payload, &payload))
	return payload
}

func TestBuiltinsRegistrationOrder(t *testing.T) {
	f := newBuiltinFixture(t, "http://unused.invalid")

	want := []string{
		"get_user_profile",
		"save_conversation",
		"get_conversation_history",
		"get_weather",
		"search_knowledge_base",
		"calculate",
		"get_current_time",
		"store_preference",
	}
	infos := f.disp.List()
	require.Len(t, infos, len(want))
	for i, name := range want {
		assert.Equal(t, name, infos[i].Name)
		assert.NotEmpty(t, infos[i].Description)
	}
}

func TestGetUserProfile(t *testing.T) {
	f := newBuiltinFixture(t, "http://unused.invalid")
	f.seedConversation(t)
	ctx := context.Background()

	payload := decodePayload(t, f.disp.Invoke(ctx, "get_user_profile", "u-1"))
	assert.Equal(t, "u-1", payload["id"])
	assert.Equal(t, "Harper", payload["name"])
	assert.Equal(t, "harper@example.com", payload["email"])

	// JSON-quoted argument works too
	payload = decodePayload(t, f.disp.Invoke(ctx, "get_user_profile", `"u-1"`))
	assert.Equal(t, "u-1", payload["id"])

	res := f.disp.Invoke(ctx, "get_user_profile", "ghost")
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailNotFound, res.Failure.Kind)

	res = f.disp.Invoke(ctx, "get_user_profile", "")
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailInvalidInput, res.Failure.Kind)
}

func TestSaveConversationAndHistory(t *testing.T) {
	f := newBuiltinFixture(t, "http://unused.invalid")
	convID := f.seedConversation(t)
	ctx := context.Background()

	for _, m := range []saveConversationInput{
		{ConversationID: convID, Role: store.RoleUser, Content: "what's the weather?"},
		{ConversationID: convID, Role: store.RoleAssistant, Content: "let me check"},
	} {
		raw, err := json.Marshal(m)
		require.NoError(t, err)
		payload := decodePayload(t, f.disp.Invoke(ctx, "save_conversation", string(raw)))
		assert.Equal(t, true, payload["success"])
		assert.NotEmpty(t, payload["message_id"])
	}

	payload := decodePayload(t, f.disp.Invoke(ctx, "get_conversation_history", convID))
	assert.Equal(t, float64(2), payload["count"])
	messages := payload["messages"].([]any)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "what's the weather?", first["content"])
}

func TestSaveConversationFailures(t *testing.T) {
	f := newBuiltinFixture(t, "http://unused.invalid")
	convID := f.seedConversation(t)
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
		kind FailureKind
	}{
		{"malformed json", `not json at all`, FailInvalidInput},
		{"missing conversation_id", `{"role":"user","content":"hi"}`, FailInvalidInput},
		{"unknown conversation", `{"conversation_id":"ghost","role":"user","content":"hi"}`, FailNotFound},
		{"bad role", `{"conversation_id":"` + convID + `","role":"system","content":"hi"}`, FailValidation},
		{"empty content", `{"conversation_id":"` + convID + `","role":"user","content":""}`, FailValidation},
	}

	for _, tt := range tests {
		res := f.disp.Invoke(ctx, "save_conversation", tt.raw)
		require.NotNil(t, res.Failure, tt.name)
		assert.Equal(t, tt.kind, res.Failure.Kind, tt.name)
	}

	// None of the rejected writes may have landed
	history, err := f.store.GetHistory(ctx, convID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetHistoryUnknownConversationIsEmpty(t *testing.T) {
	f := newBuiltinFixture(t, "http://unused.invalid")

	payload := decodePayload(t, f.disp.Invoke(context.Background(), "get_conversation_history", "ghost"))
	assert.Equal(t, float64(0), payload["count"])
}

func TestGetWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "40", r.URL.Query().Get("latitude"))
		assert.Equal(t, "-74", r.URL.Query().Get("longitude"))
		w.Write([]byte(`{"current":{"temperature_2m":21.5,"weather_code":3},"elevation":10}`))
	}))
	defer srv.Close()

	f := newBuiltinFixture(t, srv.URL)
	payload := decodePayload(t, f.disp.Invoke(context.Background(), "get_weather", "New York"))

	assert.Equal(t, "New York", payload["location"])
	weather := payload["weather"].(map[string]any)
	assert.Equal(t, 21.5, weather["temperature_2m"])
}

func TestGetWeatherRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newBuiltinFixture(t, srv.URL)
	res := f.disp.Invoke(context.Background(), "get_weather", "New York")
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailRemote, res.Failure.Kind)
}

func TestSearchKnowledgeBase(t *testing.T) {
	f := newBuiltinFixture(t, "http://unused.invalid")

	payload := decodePayload(t, f.disp.Invoke(context.Background(), "search_knowledge_base", "calculate"))
	assert.Equal(t, "calculate", payload["query"])
	assert.Greater(t, payload["count"], float64(0))
}

func TestCalculate(t *testing.T) {
	f := newBuiltinFixture(t, "http://unused.invalid")
	ctx := context.Background()

	payload := decodePayload(t, f.disp.Invoke(ctx, "calculate", "2+2"))
	assert.Equal(t, float64(4), payload["result"])

	payload = decodePayload(t, f.disp.Invoke(ctx, "calculate", "10*5"))
	assert.Equal(t, float64(50), payload["result"])

	res := f.disp.Invoke(ctx, "calculate", "1/0")
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailDivisionByZero, res.Failure.Kind)

	res = f.disp.Invoke(ctx, "calculate", "2+")
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailParse, res.Failure.Kind)

	// The regression test against dynamic code evaluation
	res = f.disp.Invoke(ctx, "calculate", "rm -rf /")
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailParse, res.Failure.Kind)
}

func TestGetCurrentTime(t *testing.T) {
	f := newBuiltinFixture(t, "http://unused.invalid")

	payload := decodePayload(t, f.disp.Invoke(context.Background(), "get_current_time", ""))
	assert.Equal(t, "2026-03-14T09:26:53Z", payload["timestamp"])
	assert.Equal(t, float64(1773480413), payload["unix"])
	assert.NotEmpty(t, payload["readable"])
}

func TestStorePreferencePersists(t *testing.T) {
	f := newBuiltinFixture(t, "http://unused.invalid")
	f.seedConversation(t)
	ctx := context.Background()

	payload := decodePayload(t, f.disp.Invoke(ctx, "store_preference",
		`{"user_id":"u-1","key":"units","value":"metric"}`))
	assert.Equal(t, true, payload["success"])

	// The preference must be durable and visible through the profile tool
	payload = decodePayload(t, f.disp.Invoke(ctx, "get_user_profile", "u-1"))
	prefs := payload["preferences"].(map[string]any)
	assert.Equal(t, "metric", prefs["units"])
}

func TestStorePreferenceFailures(t *testing.T) {
	f := newBuiltinFixture(t, "http://unused.invalid")
	ctx := context.Background()

	res := f.disp.Invoke(ctx, "store_preference", `{"user_id":"ghost","key":"k","value":"v"}`)
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailNotFound, res.Failure.Kind)

	res = f.disp.Invoke(ctx, "store_preference", `{"key":"k"}`)
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailInvalidInput, res.Failure.Kind)
}
