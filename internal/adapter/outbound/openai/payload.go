package openai

// Helpers for reading and rewriting chat completion payloads without a
// fixed schema. Payloads arrive as generic JSON so unknown fields pass
// through to the upstream untouched.

// ExtractUserPrompt returns the content of the most recent user message,
// or "" when none exists.
func ExtractUserPrompt(payload map[string]any) string {
	messages, ok := payload["messages"].([]any)
	if !ok {
		return ""
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok || msg["role"] != "user" {
			continue
		}
		if content, ok := msg["content"].(string); ok {
			return content
		}
	}
	return ""
}

// ReplaceUserPrompt rewrites the content of the most recent user message.
// No-op when the payload has no user message.
func ReplaceUserPrompt(payload map[string]any, value string) {
	messages, ok := payload["messages"].([]any)
	if !ok {
		return
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok || msg["role"] != "user" {
			continue
		}
		if _, ok := msg["content"].(string); ok {
			msg["content"] = value
			return
		}
	}
}

// ExtractAssistantText returns the first choice's message content, or ""
// when the response carries none.
func ExtractAssistantText(response map[string]any) string {
	msg := firstChoiceMessage(response)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return content
}

// ReplaceAssistantText rewrites the first choice's message content.
// No-op when the response carries none.
func ReplaceAssistantText(response map[string]any, value string) {
	if msg := firstChoiceMessage(response); msg != nil {
		msg["content"] = value
	}
}

// ExtractTotalTokens returns usage.total_tokens, or 0 when absent.
func ExtractTotalTokens(response map[string]any) int64 {
	usage, ok := response["usage"].(map[string]any)
	if !ok {
		return 0
	}
	// JSON numbers decode as float64.
	if total, ok := usage["total_tokens"].(float64); ok {
		return int64(total)
	}
	return 0
}

func firstChoiceMessage(response map[string]any) map[string]any {
	choices, ok := response["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return nil
	}
	msg, ok := first["message"].(map[string]any)
	if !ok {
		return nil
	}
	return msg
}
