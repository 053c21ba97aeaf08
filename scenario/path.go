package scenario

import (
	"strconv"
	"strings"

	"github.com/BaSui01/evalflow/types"
)

// SourceKind 绑定来源类型
type SourceKind string

const (
	// SourceStep 读取之前某个步骤的输出
	SourceStep SourceKind = "step"
	// SourceInput 读取场景的初始输入
	SourceInput SourceKind = "input"
)

// Source 解析后的绑定来源
type Source struct {
	Kind SourceKind
	Step string
	Path string
}

// ParseSource 解析 "step:<id>:<path>" 或 "input:<field>"。
// step 形式的 path 可以为空，表示整个步骤输出。
func ParseSource(from string) (Source, error) {
	kind, rest, ok := strings.Cut(from, ":")
	if !ok {
		return Source{}, types.Errorf(types.ErrInvalidInput, "binding source %q has no kind prefix", from)
	}

	switch SourceKind(kind) {
	case SourceStep:
		stepID, path, _ := strings.Cut(rest, ":")
		if stepID == "" {
			return Source{}, types.Errorf(types.ErrInvalidInput, "binding source %q has no step id", from)
		}
		return Source{Kind: SourceStep, Step: stepID, Path: path}, nil
	case SourceInput:
		if rest == "" {
			return Source{}, types.Errorf(types.ErrInvalidInput, "binding source %q has no field", from)
		}
		return Source{Kind: SourceInput, Path: rest}, nil
	default:
		return Source{}, types.Errorf(types.ErrInvalidInput, "binding source %q has unknown kind %q", from, kind)
	}
}

// Arena 场景执行期间的命名值集合：初始输入 + 已完成步骤的输出
type Arena struct {
	input   map[string]any
	outputs map[string]map[string]any
}

// NewArena 创建 Arena
func NewArena(input map[string]any) *Arena {
	return &Arena{
		input:   input,
		outputs: make(map[string]map[string]any),
	}
}

// Record 记录步骤输出
func (a *Arena) Record(stepID string, output map[string]any) {
	a.outputs[stepID] = output
}

// Has 步骤输出是否已记录
func (a *Arena) Has(stepID string) bool {
	_, ok := a.outputs[stepID]
	return ok
}

// Resolve 读取来源对应的值。未记录的步骤（前向或自引用）返回 (nil, false)。
func (a *Arena) Resolve(src Source) (any, bool) {
	switch src.Kind {
	case SourceInput:
		return GetPath(a.input, src.Path)
	case SourceStep:
		out, ok := a.outputs[src.Step]
		if !ok {
			return nil, false
		}
		return GetPath(out, src.Path)
	}
	return nil, false
}

// GetPath 按点分路径读取嵌套值，数字段可索引切片。空路径返回 value 本身。
func GetPath(value any, path string) (any, bool) {
	if path == "" {
		return value, true
	}
	current := value
	for _, seg := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		case []string:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// SetPath 按点分路径写入值，缺失或非 map 的中间节点会被替换为新 map。
func SetPath(target map[string]any, path string, value any) error {
	if target == nil {
		return types.NewError(types.ErrInvalidInput, "set path on nil map")
	}
	if path == "" {
		return types.NewError(types.ErrInvalidInput, "empty destination path")
	}
	segs := strings.Split(path, ".")
	current := target
	for _, seg := range segs[:len(segs)-1] {
		if seg == "" {
			return types.Errorf(types.ErrInvalidInput, "destination path %q has an empty segment", path)
		}
		next, ok := current[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[seg] = next
		}
		current = next
	}
	last := segs[len(segs)-1]
	if last == "" {
		return types.Errorf(types.ErrInvalidInput, "destination path %q has an empty segment", path)
	}
	current[last] = value
	return nil
}
