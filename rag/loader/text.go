package loader

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/evalflow/rag"
)

// TextLoader 整个文本文件作为一个文档，ID 为文件名
type TextLoader struct{}

// NewTextLoader 创建文本加载器
func NewTextLoader() *TextLoader { return &TextLoader{} }

func (l *TextLoader) Extensions() []string { return []string{".txt"} }

func (l *TextLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("text loader: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return []rag.Document{}, nil
	}
	return []rag.Document{{
		ID:       stem(path),
		Text:     text,
		Metadata: sourceMetadata(path, "text", "text/plain"),
	}}, nil
}

// MarkdownLoader 按 ATX 标题切分，每段一个文档；没有标题时整文件一个文档
type MarkdownLoader struct{}

// NewMarkdownLoader 创建 Markdown 加载器
func NewMarkdownLoader() *MarkdownLoader { return &MarkdownLoader{} }

func (l *MarkdownLoader) Extensions() []string { return []string{".md", ".markdown"} }

type mdSection struct {
	heading string
	level   int
	lines   []string
}

func (l *MarkdownLoader) Load(ctx context.Context, path string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("markdown loader: %w", err)
	}
	defer f.Close()

	var sections []mdSection
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if heading, level := parseHeading(line); heading != "" {
			sections = append(sections, mdSection{heading: heading, level: level})
			continue
		}
		if len(sections) == 0 {
			sections = append(sections, mdSection{})
		}
		last := &sections[len(sections)-1]
		last.lines = append(last.lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("markdown loader: read %s: %w", path, err)
	}

	base := stem(path)
	docs := []rag.Document{}
	for _, sec := range sections {
		body := strings.TrimSpace(strings.Join(sec.lines, "\n"))
		if body == "" {
			continue
		}
		meta := sourceMetadata(path, "markdown", "text/markdown")
		if sec.heading != "" {
			meta["heading"] = sec.heading
			meta["heading_level"] = sec.level
			body = sec.heading + "\n" + body
		}
		docs = append(docs, rag.Document{Text: body, Metadata: meta})
	}

	if len(docs) == 1 {
		docs[0].ID = base
		return docs, nil
	}
	for i := range docs {
		docs[i].ID = fmt.Sprintf("%s.%d", base, i+1)
		docs[i].Metadata["section"] = i + 1
	}
	return docs, nil
}

// parseHeading 识别 "# Heading"，返回标题文本与级别（1-6）
func parseHeading(line string) (string, int) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level < 1 || level > 6 {
		return "", 0
	}
	rest := trimmed[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", 0
	}
	heading := strings.TrimSpace(rest)
	if heading == "" {
		return "", 0
	}
	return heading, level
}
