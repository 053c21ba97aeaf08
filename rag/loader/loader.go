package loader

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/evalflow/rag"
)

// Loader 单一格式的文档加载器
type Loader interface {
	Load(ctx context.Context, path string) ([]rag.Document, error)
	// Extensions 返回处理的扩展名（小写，带点）
	Extensions() []string
}

// Registry 按扩展名路由到具体 Loader
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewRegistry 创建并注册内置加载器
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	for _, l := range []Loader{
		NewTextLoader(),
		NewMarkdownLoader(),
		NewCSVLoader(CSVConfig{}),
		NewRecordLoader(RecordConfig{}),
	} {
		for _, ext := range l.Extensions() {
			r.loaders[ext] = l
		}
	}
	return r
}

// Register 为扩展名注册（或替换）加载器
func (r *Registry) Register(ext string, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[normalizeExt(ext)] = l
}

// Extensions 返回所有已注册扩展名（排序）
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load 按扩展名加载单个文件
func (r *Registry) Load(ctx context.Context, path string) ([]rag.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, fmt.Errorf("loader: %q has no extension", path)
	}
	r.mu.RLock()
	l, ok := r.loaders[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("loader: no loader registered for %q", ext)
	}
	return l.Load(ctx, path)
}

// LoadDir 递归加载目录下所有可识别的文件（按路径排序），未知扩展名跳过。
// 文档 ID 重复时报错。
func (r *Registry) LoadDir(ctx context.Context, dir string) ([]rag.Document, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		r.mu.RLock()
		_, ok := r.loaders[strings.ToLower(filepath.Ext(path))]
		r.mu.RUnlock()
		if ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loader: walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	var docs []rag.Document
	seen := make(map[string]string)
	for _, p := range paths {
		loaded, err := r.Load(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, d := range loaded {
			if prev, dup := seen[d.ID]; dup {
				return nil, fmt.Errorf("loader: document id %q from %s already loaded from %s", d.ID, p, prev)
			}
			seen[d.ID] = p
		}
		docs = append(docs, loaded...)
	}
	return docs, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// stem 文件名去掉扩展名，作为文档 ID 的基础
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func sourceMetadata(path, loader, contentType string) map[string]any {
	return map[string]any{
		"source_file":  filepath.Base(path),
		"source_path":  path,
		"content_type": contentType,
		"loader":       loader,
	}
}
