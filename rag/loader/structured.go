package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/evalflow/rag"
)

// CSVConfig CSV 加载配置
type CSVConfig struct {
	Delimiter rune   // 默认 ','
	IDColumn  string // 用作文档 ID 的列；为空时使用 "<文件名>.<行号>"
	// TextColumns 拼接为文本的列（大小写不敏感）；为空时使用除 ID 列外的全部列
	TextColumns []string
}

// CSVLoader 每个数据行一个文档，首行为表头
type CSVLoader struct {
	config CSVConfig
}

// NewCSVLoader 创建 CSV 加载器
func NewCSVLoader(config CSVConfig) *CSVLoader {
	if config.Delimiter == 0 {
		config.Delimiter = ','
	}
	return &CSVLoader{config: config}
}

func (l *CSVLoader) Extensions() []string { return []string{".csv"} }

func (l *CSVLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv loader: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = l.config.Delimiter
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv loader: parse %s: %w", path, err)
	}
	if len(rows) < 2 {
		return []rag.Document{}, nil
	}

	header := rows[0]
	idCol := -1
	for i, h := range header {
		if l.config.IDColumn != "" && strings.EqualFold(h, l.config.IDColumn) {
			idCol = i
		}
	}
	textCols := l.textColumns(header, idCol)

	base := stem(path)
	docs := make([]rag.Document, 0, len(rows)-1)
	for n, row := range rows[1:] {
		var parts []string
		for _, c := range textCols {
			if c < len(row) && strings.TrimSpace(row[c]) != "" {
				parts = append(parts, strings.TrimSpace(row[c]))
			}
		}
		id := fmt.Sprintf("%s.%d", base, n+1)
		if idCol >= 0 && idCol < len(row) && row[idCol] != "" {
			id = row[idCol]
		}
		meta := sourceMetadata(path, "csv", "text/csv")
		meta["row"] = n + 1
		docs = append(docs, rag.Document{ID: id, Text: strings.Join(parts, " "), Metadata: meta})
	}
	return docs, nil
}

func (l *CSVLoader) textColumns(header []string, idCol int) []int {
	wanted := make(map[string]bool, len(l.config.TextColumns))
	for _, c := range l.config.TextColumns {
		wanted[strings.ToLower(c)] = true
	}
	var cols []int
	for i, h := range header {
		if i == idCol {
			continue
		}
		if len(wanted) == 0 || wanted[strings.ToLower(h)] {
			cols = append(cols, i)
		}
	}
	return cols
}

// RecordConfig JSON / JSONL / YAML 记录字段映射
type RecordConfig struct {
	IDField   string // 默认 "id"
	TextField string // 默认 "text"
}

// RecordLoader 加载对象列表（或单个对象）形式的语料，
// 其余字段进入 Metadata。
type RecordLoader struct {
	config RecordConfig
}

// NewRecordLoader 创建记录加载器
func NewRecordLoader(config RecordConfig) *RecordLoader {
	if config.IDField == "" {
		config.IDField = "id"
	}
	if config.TextField == "" {
		config.TextField = "text"
	}
	return &RecordLoader{config: config}
}

func (l *RecordLoader) Extensions() []string {
	return []string{".json", ".jsonl", ".yaml", ".yml"}
}

func (l *RecordLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("record loader: %w", err)
	}

	var items []map[string]any
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jsonl":
		items, err = decodeJSONL(data)
	case ".yaml", ".yml":
		items, err = decodeRecords(data, yaml.Unmarshal)
	default:
		items, err = decodeRecords(data, json.Unmarshal)
	}
	if err != nil {
		return nil, fmt.Errorf("record loader: parse %s: %w", path, err)
	}

	base := stem(path)
	contentType := "application/json"
	if ext == ".yaml" || ext == ".yml" {
		contentType = "application/yaml"
	}
	docs := make([]rag.Document, 0, len(items))
	for i, obj := range items {
		text, _ := obj[l.config.TextField].(string)
		id := fmt.Sprintf("%s.%d", base, i+1)
		if v, ok := obj[l.config.IDField]; ok && v != nil {
			id = fmt.Sprint(v)
		}
		meta := sourceMetadata(path, "record", contentType)
		for k, v := range obj {
			if k != l.config.IDField && k != l.config.TextField {
				meta[k] = v
			}
		}
		docs = append(docs, rag.Document{ID: id, Text: text, Metadata: meta})
	}
	return docs, nil
}

// decodeRecords 接受对象数组或单个对象
func decodeRecords(data []byte, unmarshal func([]byte, any) error) ([]map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var items []map[string]any
	if err := unmarshal(data, &items); err == nil {
		return items, nil
	}
	var obj map[string]any
	if err := unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return []map[string]any{obj}, nil
}

func decodeJSONL(data []byte) ([]map[string]any, error) {
	var items []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, obj)
	}
	return items, scanner.Err()
}
