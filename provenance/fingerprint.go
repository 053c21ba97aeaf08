package provenance

import (
	"encoding/json"

	"github.com/BaSui01/evalflow/types"
)

// Stamp 一次运行的溯源戳
type Stamp struct {
	ConfigHash     string         `json:"config_hash"`
	RunFingerprint string         `json:"run_fingerprint"`
	Snapshot       map[string]any `json:"snapshot"`
}

// Snapshot 构造 {task, runner_id, config} 快照
func Snapshot(task any, runnerID string, config map[string]any) map[string]any {
	return map[string]any{
		"task":      task,
		"runner_id": runnerID,
		"config":    config,
	}
}

type stampOptions struct {
	runtimeFacts map[string]any
}

// Option 配置 Stamp 计算
type Option func(*stampOptions)

// WithRuntimeFacts 将仅在运行时可知的事实并入运行指纹，不影响配置哈希。
func WithRuntimeFacts(facts map[string]any) Option {
	return func(o *stampOptions) {
		o.runtimeFacts = facts
	}
}

// ComputeStamp 计算快照的配置哈希与运行指纹。
// 未提供运行时事实时，运行指纹与配置哈希相同。
func ComputeStamp(snapshot map[string]any, opts ...Option) (Stamp, error) {
	var o stampOptions
	for _, opt := range opts {
		opt(&o)
	}

	configHash, err := Hash(snapshot)
	if err != nil {
		return Stamp{}, err
	}

	fingerprint := configHash
	if len(o.runtimeFacts) > 0 {
		fingerprint, err = Hash(map[string]any{
			"config_hash": configHash,
			"runtime":     o.runtimeFacts,
		})
		if err != nil {
			return Stamp{}, err
		}
	}

	normalized, err := normalize(snapshot)
	if err != nil {
		return Stamp{}, err
	}
	snap, _ := denumber(normalized).(map[string]any)

	return Stamp{ConfigHash: configHash, RunFingerprint: fingerprint, Snapshot: snap}, nil
}

// Apply 把溯源戳写入运行记录
func (s Stamp) Apply(run *types.RunRecord, overrides map[string]any) {
	if run == nil {
		return
	}
	run.Provenance.ConfigHash = s.ConfigHash
	run.Provenance.RunFingerprint = s.RunFingerprint
	run.Provenance.Snapshot = s.Snapshot
	if len(overrides) > 0 {
		run.Provenance.Overrides = types.CloneMap(overrides)
	}
}

// denumber 把 json.Number 还原为 int64 / float64，快照里不出现 json.Number
func denumber(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case []any:
		for i := range val {
			val[i] = denumber(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = denumber(val[k])
		}
		return val
	default:
		return v
	}
}
