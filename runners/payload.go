package runners

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

// 执行模式
const (
	ModeRules    = "rules"
	ModeTemplate = "template"
	ModeLLM      = "llm"
)

type validator interface {
	Validate() error
}

// decodePayload 通过 JSON 往返把 map 解码为载荷并校验
func decodePayload(raw map[string]any, dst validator, what string) error {
	if err := types.DecodeInto(raw, dst); err != nil {
		return types.Errorf(types.ErrInvalidInput, "decode %s", what).WithCause(err)
	}
	return dst.Validate()
}

// decodeConfig 解码配置；未知键（例如场景中的 runner_id）忽略
func decodeConfig(raw map[string]any, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := types.DecodeInto(raw, dst); err != nil {
		return types.NewError(types.ErrInvalidInput, "decode runner config").WithCause(err)
	}
	return nil
}

// encodeOutput 把输出结构转为 JSON 形态的 map
func encodeOutput(v any) (map[string]any, error) {
	out, err := types.ToMap(v)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "encode output").WithCause(err)
	}
	return out, nil
}

// failRun 以失败状态结束运行记录
func failRun(rec *types.RunRecord, tracer *types.Tracer, err error) *types.RunRecord {
	tracer.Error("run_failed", map[string]any{
		"code":  string(types.GetErrorCode(err)),
		"error": err.Error(),
	})
	rec.Trace = tracer.Events()
	rec.Fail(err.Error(), "", "")
	return rec
}

// addUsage 把一次补全的用量计入运行指标
func addUsage(rec *types.RunRecord, c *llm.Completion) {
	rec.Metrics.TokensUsed += c.Usage.TotalTokens
	rec.Metrics.Cost += c.Usage.Cost
}

// extractJSON 去掉代码围栏并截取第一个 '{' 到最后一个 '}'
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}

// parseJSONReply 解析 LLM 返回的 JSON 对象
func parseJSONReply(text string, dst any) error {
	raw := extractJSON(text)
	if raw == "" {
		return fmt.Errorf("response contains no JSON object")
	}
	return json.Unmarshal([]byte(raw), dst)
}

// words 小写并按非字母数字切分
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '_' || r == '\'' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 0x7f
}
