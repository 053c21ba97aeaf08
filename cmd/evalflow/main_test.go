package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCmd 在全新命令树上执行参数，返回 stdout
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

type scoreOut struct {
	Metric   string `json:"metric"`
	Value    any    `json:"value"`
	ScorerID string `json:"scorer_id"`
}

type summaryOut struct {
	RunID       string     `json:"run_id"`
	TaskID      string     `json:"task_id"`
	Status      string     `json:"status"`
	Error       string     `json:"error"`
	ConfigHash  string     `json:"config_hash"`
	Fingerprint string     `json:"run_fingerprint"`
	Scores      []scoreOut `json:"scores"`
}

func findScore(scores []scoreOut, metric string) (scoreOut, bool) {
	for _, s := range scores {
		if s.Metric == metric {
			return s, true
		}
	}
	return scoreOut{}, false
}

const intentConfig = `
intents:
  greeting: [hello, hi]
  farewell: [bye, goodbye]
`

func TestRootCmd_Subcommands(t *testing.T) {
	root := buildRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "batch", "scenario", "compare", "list", "migrate", "version"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestVersionCmd(t *testing.T) {
	out, err := executeCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "EvalFlow "+Version)
	assert.Contains(t, out, "Git Commit:")
}

func TestRunCmd_RequiresFlags(t *testing.T) {
	_, err := executeCmd(t, "run", "--task", "task.yaml")
	assert.ErrorContains(t, err, "runner")
}

func TestRunCmd_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	promPath := filepath.Join(dir, "evalflow.prom")
	cfgPath := writeFile(t, dir, "config.yaml", `
log:
  level: error
engine:
  scorers: [exact_match]
metrics:
  enabled: true
  namespace: evalflow
  textfile_path: `+promPath+`
`)
	taskPath := writeFile(t, dir, "task.yaml", `
id: greet-1
type: intent
input:
  text: Hello there
expected:
  intent: greeting
`)
	runnerCfg := writeFile(t, dir, "intents.yaml", intentConfig)

	out, err := executeCmd(t, "run",
		"--config", cfgPath,
		"--task", taskPath,
		"--runner", "intent_classifier",
		"--runner-config", runnerCfg,
		"--set", "default_intent=other")
	require.NoError(t, err)

	var s summaryOut
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "greet-1", s.TaskID)
	assert.Equal(t, "completed", s.Status)
	assert.Empty(t, s.Error)
	assert.NotEmpty(t, s.ConfigHash)
	assert.NotEmpty(t, s.Fingerprint)

	exact, ok := findScore(s.Scores, "exact_match")
	require.True(t, ok)
	assert.Equal(t, true, exact.Value)
	assert.Equal(t, "exact_match", exact.ScorerID)

	prom, err := os.ReadFile(promPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "evalflow_runs_total")
}

func TestRunCmd_UnknownRunner(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "log:\n  level: error\n")
	taskPath := writeFile(t, dir, "task.yaml", "id: t1\ntype: intent\ninput: {text: hi}\n")

	_, err := executeCmd(t, "run", "--config", cfgPath, "--task", taskPath, "--runner", "nope")
	assert.ErrorContains(t, err, "RUNNER_NOT_FOUND")
}

func TestBatchCmd_SkipsFailingTasks(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "log:\n  level: error\n")
	batchPath := writeFile(t, dir, "batch.yaml", `
runner: intent_classifier
config:
  intents:
    greeting: [hello]
scorers: [exact_match]
tasks:
  - id: ok
    type: intent
    input: {text: hello}
    expected: {intent: greeting}
  - id: wrong-type
    type: dialogue
    input: {messages: []}
`)

	out, err := executeCmd(t, "batch", "--config", cfgPath, "--file", batchPath)
	require.NoError(t, err)

	var results []summaryOut
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].TaskID)
}

func TestScenarioCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "log:\n  level: error\n")
	scPath := writeFile(t, dir, "scenario.yaml", `
scenario:
  id: greet-flow
  input:
    text: hi there
  steps:
    - id: classify
      type: intent
      input: {}
  input_map:
    classify:
      - from: "input:text"
        to: text
step_configs:
  classify:
    runner_id: intent_classifier
    intents:
      greeting: [hi]
scorers: [step_completed]
`)

	out, err := executeCmd(t, "scenario", "--config", cfgPath, "--file", scPath)
	require.NoError(t, err)

	var s summaryOut
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "greet-flow", s.TaskID)
	assert.Equal(t, "completed", s.Status)
	assert.NotEmpty(t, s.Scores)
}

func TestListCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "log:\n  level: error\n")

	out, err := executeCmd(t, "list", "runners", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "intent_classifier")
	assert.Contains(t, out, "rag_pipeline")

	out, err = executeCmd(t, "list", "scorers", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "exact_match")

	out, err = executeCmd(t, "list", "definitions", "--config", cfgPath)
	require.NoError(t, err)
	var defs map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	assert.Contains(t, defs, "tasks")
}

func TestStoreCommands_RequirePersistence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "log:\n  level: error\nengine:\n  persist: false\n")

	_, err := executeCmd(t, "compare", "run_a", "run_b", "--config", cfgPath)
	assert.ErrorContains(t, err, "no store configured")

	_, err = executeCmd(t, "list", "runs", "--config", cfgPath)
	assert.ErrorContains(t, err, "no store configured")
}

func TestCompareCmd_MissingRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "log:\n  level: error\n")

	_, err := executeCmd(t, "compare", "run_a", "run_b", "--config", cfgPath)
	assert.ErrorContains(t, err, "RUN_NOT_FOUND")
}

func TestMigrateCmd_FlagValidation(t *testing.T) {
	_, err := executeCmd(t, "migrate", "up", "--db-type", "sqlite")
	assert.ErrorContains(t, err, "must be given together")

	_, err = executeCmd(t, "migrate", "up", "--db-type", "oracle", "--db-url", "x")
	assert.ErrorContains(t, err, "unsupported database type")
}
