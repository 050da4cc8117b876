package llm

import "context"

type Context struct {
	Messages []map[string]any
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
}

type LLMAdapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Name() string
}

// SystemMessage builds a chat message with the system role.
func SystemMessage(content string) map[string]any {
	return map[string]any{"role": "system", "content": content}
}

// UserMessage builds a chat message with the user role.
func UserMessage(content string) map[string]any {
	return map[string]any{"role": "user", "content": content}
}

// Prompt wraps a single user prompt, optionally preceded by a system prompt.
func Prompt(system, user string) Context {
	var msgs []map[string]any
	if system != "" {
		msgs = append(msgs, SystemMessage(system))
	}
	msgs = append(msgs, UserMessage(user))
	return Context{Messages: msgs}
}

// LastUserText returns the content of the last user message.
func (c Context) LastUserText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if role, _ := c.Messages[i]["role"].(string); role == "user" {
			s, _ := c.Messages[i]["content"].(string)
			return s
		}
	}
	return ""
}
