package tokenizer

import (
	"strings"
	"unicode"
)

// Estimator 按字符估算 token 数，CJK 约 1.5 字符/token，其余约 4 字符/token。
// 不需要下载编码数据，适合作为默认回退。
type Estimator struct{}

// NewEstimator 创建估算器
func NewEstimator() *Estimator { return &Estimator{} }

func (Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	n := int(float64(cjk)/1.5 + float64(other)/4.0)
	if n == 0 {
		n = 1
	}
	return n, nil
}

func (e Estimator) CountMessages(messages []Message) (int, error) {
	total := 3
	for _, m := range messages {
		n, _ := e.CountTokens(m.Content)
		total += n + 4
	}
	return total, nil
}

// Split 以空白切词，CJK 字符各自成片
func (Estimator) Split(text string) ([]string, error) {
	var pieces []string
	for _, field := range strings.FieldsFunc(text, unicode.IsSpace) {
		var buf strings.Builder
		for _, r := range field {
			if isCJK(r) {
				if buf.Len() > 0 {
					pieces = append(pieces, buf.String())
					buf.Reset()
				}
				pieces = append(pieces, string(r))
				continue
			}
			buf.WriteRune(r)
		}
		if buf.Len() > 0 {
			pieces = append(pieces, buf.String())
		}
	}
	return pieces, nil
}

func (Estimator) Name() string { return "estimator" }

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
