// Package provenance 提供确定性的配置规范化与指纹计算，
// 用于保证相同的逻辑输入（无论 map 键顺序如何）得到相同的哈希。
package provenance

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize 将任意值渲染为规范字符串：
// 对象键按字节序排序，数组保持原顺序，数值使用最短表示，nil 渲染为 null。
func Canonicalize(v any) (string, error) {
	normalized, err := normalize(v)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := render(&sb, normalized); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// normalize 通过 JSON 往返把结构体、指针、类型化 map 统一为 JSON 形态
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canonicalize: decode: %w", err)
	}
	return out, nil
}

func render(sb *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case json.Number:
		sb.WriteString(canonicalNumber(val))
	case string:
		quoted, err := json.Marshal(val)
		if err != nil {
			return err
		}
		sb.Write(quoted)
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := render(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			quoted, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(quoted)
			sb.WriteByte(':')
			if err := render(sb, val[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	default:
		return fmt.Errorf("canonicalize: unsupported value type %T", v)
	}
	return nil
}

// canonicalNumber 整数保持整数形式，其余按 float64 最短表示
func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil {
		if f >= -1<<53 && f <= 1<<53 && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return n.String()
}

// Hash 返回规范字符串的 SHA-256 十六进制摘要
func Hash(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
