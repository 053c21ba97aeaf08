package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/evalflow/llm/tokenizer"
)

// FirstChoice 安全地取出第一个 choice
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, &Error{Code: ErrEmptyResponse, Message: "nil ChatResponse"}
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, &Error{Code: ErrEmptyResponse, Message: "model returned no choices", Provider: resp.Provider}
	}
	return resp.Choices[0], nil
}

// Completion 单次补全的文本与用量
type Completion struct {
	Text    string
	Usage   ChatUsage
	Model   string
	Latency time.Duration
}

// Complete 发起请求并返回第一个 choice 的文本。
// Provider 未报告用量时，按模型的 tokenizer 估算 prompt/completion token 数。
func Complete(ctx context.Context, p Provider, req *ChatRequest) (*Completion, error) {
	if p == nil {
		return nil, &Error{Code: ErrInvalidRequest, Message: "no provider configured"}
	}
	start := time.Now()
	resp, err := p.Completion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", p.Name(), err)
	}
	choice, err := FirstChoice(resp)
	if err != nil {
		return nil, err
	}

	out := &Completion{Text: choice.Message.Content, Usage: resp.Usage, Model: resp.Model, Latency: time.Since(start)}
	if out.Usage.TotalTokens == 0 {
		out.Usage = estimateUsage(req, choice.Message.Content)
	}
	return out, nil
}

func estimateUsage(req *ChatRequest, completion string) ChatUsage {
	tok := tokenizer.ForModel(req.Model)

	msgs := make([]tokenizer.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, tokenizer.Message{Role: string(m.Role), Content: m.Content})
	}
	prompt, err := tok.CountMessages(msgs)
	if err != nil {
		prompt = 0
	}
	comp, err := tok.CountTokens(completion)
	if err != nil {
		comp = 0
	}
	return ChatUsage{PromptTokens: prompt, CompletionTokens: comp, TotalTokens: prompt + comp}
}
