// ABOUTME: The built-in tool set: profile, conversation, weather, kb, calc, time, prefs
// ABOUTME: Handlers parse their own input shape and delegate to store/gateway/evaluator

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/loom/internal/evaluator"
	"github.com/2389/loom/internal/gateway"
	"github.com/2389/loom/internal/kb"
	"github.com/2389/loom/internal/store"
)

// WeatherConfig points the weather tool at a forecast service. The
// original assistant always queried fixed coordinates; they live in
// config now instead of the tool body.
type WeatherConfig struct {
	Endpoint  string
	Latitude  float64
	Longitude float64
}

// Deps carries the components the built-in tools execute against.
type Deps struct {
	Store   store.Store
	Gateway *gateway.Client
	KB      *kb.Library
	Weather WeatherConfig

	// Now is swappable for tests; nil means time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Builtins returns the built-in tool definitions in registration order.
func Builtins(d Deps) []*Definition {
	b := &builtinHandlers{deps: d}
	return []*Definition{
		{
			Name:        "get_user_profile",
			Description: "Fetch user profile information from database by user ID. Use this to get user preferences, email, and other details.",
			Handler:     b.GetUserProfile,
		},
		{
			Name:        "save_conversation",
			Description: "Save a message to the conversation history. Pass a JSON object with conversation_id, role, and content.",
			Handler:     b.SaveConversation,
		},
		{
			Name:        "get_conversation_history",
			Description: "Retrieve entire conversation history from database by conversation ID.",
			Handler:     b.GetConversationHistory,
		},
		{
			Name:        "get_weather",
			Description: "Get current weather information for a specific location. Pass location name as parameter.",
			Handler:     b.GetWeather,
		},
		{
			Name:        "search_knowledge_base",
			Description: "Search the knowledge base for information about specific topics.",
			Handler:     b.SearchKnowledgeBase,
		},
		{
			Name:        "calculate",
			Description: "Perform mathematical calculations. Pass a simple math expression like \"2+2\" or \"10*5\".",
			Handler:     b.Calculate,
		},
		{
			Name:        "get_current_time",
			Description: "Get current date and time in ISO format. Useful for scheduling or timestamp-related queries.",
			Handler:     b.GetCurrentTime,
		},
		{
			Name:        "store_preference",
			Description: "Store a user preference for future interactions. Pass a JSON object with user_id, key, and value.",
			Handler:     b.StorePreference,
		},
	}
}

type builtinHandlers struct {
	deps Deps
}

// stringArg extracts a single-value tool argument. Planners send these
// either as a bare string or as a JSON-encoded string; accept both.
func stringArg(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(raw)
}

// decodeInput parses a JSON-object argument into v, tagging any parse
// fault as invalid input.
func decodeInput(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: expected a JSON object: %v", ErrInvalidInput, err)
	}
	return nil
}

func (b *builtinHandlers) GetUserProfile(ctx context.Context, raw string) (json.RawMessage, error) {
	userID := stringArg(raw)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	user, err := b.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"id":          user.ID,
		"name":        user.Name,
		"email":       user.Email,
		"preferences": user.Preferences,
	})
}

type saveConversationInput struct {
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

func (b *builtinHandlers) SaveConversation(ctx context.Context, raw string) (json.RawMessage, error) {
	var in saveConversationInput
	if err := decodeInput(raw, &in); err != nil {
		return nil, err
	}
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidInput)
	}

	msg, err := b.deps.Store.AppendMessage(ctx, in.ConversationID, in.Role, in.Content)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"success":    true,
		"message_id": msg.ID,
	})
}

type historyMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (b *builtinHandlers) GetConversationHistory(ctx context.Context, raw string) (json.RawMessage, error) {
	conversationID := stringArg(raw)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	}

	history, err := b.deps.Store.GetHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	messages := make([]historyMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, historyMessage{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}

	return json.Marshal(map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

func (b *builtinHandlers) GetWeather(ctx context.Context, raw string) (json.RawMessage, error) {
	location := stringArg(raw)
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", ErrInvalidInput)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(b.deps.Weather.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(b.deps.Weather.Longitude, 'f', -1, 64))
	params.Set("current", "temperature_2m,weather_code")

	body, err := b.deps.Gateway.Call(ctx, b.deps.Weather.Endpoint, params)
	if err != nil {
		return nil, err
	}

	// Surface just the current-conditions block when the provider nests it
	weather := body
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err == nil {
		if current, ok := envelope["current"]; ok {
			weather = current
		}
	}

	return json.Marshal(map[string]any{
		"location": location,
		"weather":  weather,
		"source":   b.deps.Weather.Endpoint,
	})
}

func (b *builtinHandlers) SearchKnowledgeBase(ctx context.Context, raw string) (json.RawMessage, error) {
	query := stringArg(raw)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}

	results := b.deps.KB.Search(query)
	return json.Marshal(map[string]any{
		"query":   query,
		"results": results,
		"count":   len(results),
	})
}

func (b *builtinHandlers) Calculate(ctx context.Context, raw string) (json.RawMessage, error) {
	expression := stringArg(raw)
	if expression == "" {
		return nil, fmt.Errorf("%w: expression is required", ErrInvalidInput)
	}

	result, err := evaluator.Evaluate(expression)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"expression": expression,
		"result":     result,
	})
}

func (b *builtinHandlers) GetCurrentTime(ctx context.Context, raw string) (json.RawMessage, error) {
	now := b.deps.now().UTC()
	return json.Marshal(map[string]any{
		"timestamp": now.Format(time.RFC3339),
		"readable":  now.Format(time.RFC1123),
		"unix":      now.Unix(),
	})
}

type storePreferenceInput struct {
	UserID string `json:"user_id"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

func (b *builtinHandlers) StorePreference(ctx context.Context, raw string) (json.RawMessage, error) {
	var in storePreferenceInput
	if err := decodeInput(raw, &in); err != nil {
		return nil, err
	}
	if in.UserID == "" || in.Key == "" {
		return nil, fmt.Errorf("%w: user_id and key are required", ErrInvalidInput)
	}

	if err := b.deps.Store.SetPreference(ctx, in.UserID, in.Key, in.Value); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"success": true,
		"message": "preference stored",
	})
}
