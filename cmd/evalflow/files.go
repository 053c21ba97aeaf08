package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/evalflow/engine"
	"github.com/BaSui01/evalflow/rag"
	"github.com/BaSui01/evalflow/rag/loader"
	"github.com/BaSui01/evalflow/types"
)

// =============================================================================
// 📄 输入文件
// =============================================================================

// batchFile 批量评测文件
//
//	runner: intent_classifier
//	config: {intents: {greeting: [hi, hello]}}
//	scorers: [exact_match]
//	tasks:
//	  - id: t1
//	    type: intent
//	    input: {text: hello}
type batchFile struct {
	Runner  string             `yaml:"runner" json:"runner"`
	Config  map[string]any     `yaml:"config" json:"config"`
	Scorers []string           `yaml:"scorers" json:"scorers"`
	Tasks   []types.AtomicTask `yaml:"tasks" json:"tasks"`
}

// scenarioFile 场景评测文件；step_configs 以步骤 ID 为键，每项必须包含 runner_id
type scenarioFile struct {
	Scenario    types.Scenario            `yaml:"scenario" json:"scenario"`
	StepConfigs map[string]map[string]any `yaml:"step_configs" json:"step_configs"`
	Scorers     []string                  `yaml:"scorers" json:"scorers"`
}

// decodeFile 按扩展名解码 YAML 或 JSON 文件
func decodeFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, dst)
	default:
		err = yaml.Unmarshal(data, dst)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func loadTask(path string) (*types.AtomicTask, error) {
	var task types.AtomicTask
	if err := decodeFile(path, &task); err != nil {
		return nil, err
	}
	if task.ID == "" {
		return nil, fmt.Errorf("task in %s has no id", path)
	}
	if task.Type == "" {
		return nil, fmt.Errorf("task %q has no type", task.ID)
	}
	return &task, nil
}

func loadBatch(path string) (*batchFile, error) {
	var batch batchFile
	if err := decodeFile(path, &batch); err != nil {
		return nil, err
	}
	if batch.Runner == "" {
		return nil, fmt.Errorf("batch file %s has no runner", path)
	}
	return &batch, nil
}

func loadScenario(path string) (*scenarioFile, error) {
	var sc scenarioFile
	if err := decodeFile(path, &sc); err != nil {
		return nil, err
	}
	if sc.Scenario.ID == "" {
		return nil, fmt.Errorf("scenario in %s has no id", path)
	}
	return &sc, nil
}

// parseSets 解析 --set key=value，value 按 YAML 标量解析（数字、布尔、字符串）
func parseSets(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", s)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

// attachDocuments 把目录中的文档写入 RAG 任务的 documents 输入，已有文档保留在前
func attachDocuments(ctx context.Context, task *types.AtomicTask, dir string) error {
	docs, err := loader.NewRegistry().LoadDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("load documents from %s: %w", dir, err)
	}

	var existing []rag.Document
	if raw, ok := task.Input["documents"]; ok {
		if err := types.DecodeInto(raw, &existing); err != nil {
			return fmt.Errorf("decode existing documents: %w", err)
		}
	}
	all := append(existing, docs...)

	encoded := make([]any, 0, len(all))
	for _, d := range all {
		m, err := types.ToMap(d)
		if err != nil {
			return err
		}
		encoded = append(encoded, m)
	}
	if task.Input == nil {
		task.Input = make(map[string]any)
	}
	task.Input["documents"] = encoded
	return nil
}

// writeJSON 以缩进 JSON 输出结果
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// summary 命令输出中的单条运行摘要
type summary struct {
	RunID       string              `json:"run_id"`
	TaskID      string              `json:"task_id"`
	Status      types.RunStatus     `json:"status"`
	Error       string              `json:"error,omitempty"`
	ConfigHash  string              `json:"config_hash"`
	Fingerprint string              `json:"run_fingerprint"`
	Scores      []types.ScoreRecord `json:"scores"`
}

func summarize(res *engine.Result) summary {
	s := summary{
		RunID:       res.Run.ID,
		TaskID:      res.Run.TaskID,
		Status:      res.Run.Status,
		ConfigHash:  res.Run.Provenance.ConfigHash,
		Fingerprint: res.Run.Provenance.RunFingerprint,
		Scores:      res.Scores,
	}
	if res.Run.Error != nil {
		s.Error = res.Run.Error.Message
	}
	return s
}
