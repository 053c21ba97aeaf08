package rag

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evalflow/types"
)

func TestChunker_DocumentIsDefault(t *testing.T) {
	c := NewChunker(ChunkingConfig{}, nil, nil)
	chunks := c.Chunk(Document{ID: "d1", Text: "Alpha only document"})
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{ID: "d1", DocID: "d1", Text: "Alpha only document"}, chunks[0])
}

func TestChunker_Strategies(t *testing.T) {
	doc := Document{ID: "d", Text: "a b c d e"}
	tests := []struct {
		name   string
		config ChunkingConfig
		want   []string
	}{
		{"fixed", ChunkingConfig{Strategy: ChunkingFixed, ChunkSize: 2}, []string{"a b", "c d", "e"}},
		{"fixed exact", ChunkingConfig{Strategy: ChunkingFixed, ChunkSize: 5}, []string{"a b c d e"}},
		{"sliding", ChunkingConfig{Strategy: ChunkingSliding, ChunkSize: 3, ChunkOverlap: 1}, []string{"a b c", "c d e"}},
		{"sliding step one", ChunkingConfig{Strategy: ChunkingSliding, ChunkSize: 2, ChunkOverlap: 1}, []string{"a b", "b c", "c d", "d e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := NewChunker(tt.config, SimpleTokenizer{}, nil).Chunk(doc)
			require.Len(t, chunks, len(tt.want))
			for i, c := range chunks {
				assert.Equal(t, tt.want[i], c.Text)
				assert.Equal(t, "d#"+string(rune('0'+i)), c.ID)
				assert.Equal(t, "d", c.DocID)
				assert.Equal(t, i, c.Index)
			}
		})
	}
}

func TestChunker_Sentence(t *testing.T) {
	chunks := NewChunker(ChunkingConfig{Strategy: ChunkingSentence}, nil, nil).
		Chunk(Document{ID: "d1", Text: "Version 1.2 is out. It is fast! 你好。再见"})
	require.Len(t, chunks, 4)
	assert.Equal(t, "Version 1.2 is out.", chunks[0].Text)
	assert.Equal(t, "It is fast!", chunks[1].Text)
	assert.Equal(t, "你好。", chunks[2].Text)
	assert.Equal(t, "再见", chunks[3].Text)
	assert.Equal(t, "d1#3", chunks[3].ID)
}

func TestChunker_EmptyDocumentWindow(t *testing.T) {
	chunks := NewChunker(ChunkingConfig{Strategy: ChunkingFixed, ChunkSize: 4}, nil, nil).
		Chunk(Document{ID: "d1", Text: "   "})
	assert.Empty(t, chunks)
}

func TestChunker_ChunkAllKeepsDocumentOrder(t *testing.T) {
	chunks := NewChunker(ChunkingConfig{}, nil, nil).ChunkAll([]Document{
		{ID: "d2", Text: "b"}, {ID: "d1", Text: "a"},
	})
	assert.Equal(t, []string{"d2", "d1"}, []string{chunks[0].ID, chunks[1].ID})
}

func TestChunkingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ChunkingConfig
		wantErr bool
	}{
		{"document", ChunkingConfig{Strategy: ChunkingDocument}, false},
		{"sentence", ChunkingConfig{Strategy: ChunkingSentence}, false},
		{"fixed ok", ChunkingConfig{Strategy: ChunkingFixed, ChunkSize: 10}, false},
		{"fixed zero size", ChunkingConfig{Strategy: ChunkingFixed}, true},
		{"sliding overlap too big", ChunkingConfig{Strategy: ChunkingSliding, ChunkSize: 4, ChunkOverlap: 4}, true},
		{"sliding negative overlap", ChunkingConfig{Strategy: ChunkingSliding, ChunkSize: 4, ChunkOverlap: -1}, true},
		{"unknown", ChunkingConfig{Strategy: "paragraph"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsCode(err, types.ErrInvalidInput))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewTokenizer(t *testing.T) {
	assert.IsType(t, SimpleTokenizer{}, NewTokenizer("", nil))
	assert.IsType(t, SimpleTokenizer{}, NewTokenizer("simple", nil))
	assert.IsType(t, &LLMTokenizerAdapter{}, NewTokenizer("estimator", nil))
	assert.IsType(t, &LLMTokenizerAdapter{}, NewTokenizer("tiktoken:gpt-4o", nil))
}

func TestEstimatorAdapter_Chunking(t *testing.T) {
	tok := NewEstimatorAdapter(nil)
	chunks := NewChunker(ChunkingConfig{Strategy: ChunkingFixed, ChunkSize: 2}, tok, nil).
		Chunk(Document{ID: "d", Text: "alpha beta gamma"})
	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha beta", chunks[0].Text)
	assert.Equal(t, "gamma", chunks[1].Text)
}

func TestProperty_FixedChunksCoverAllTokens(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("fixed windows concatenate back to the document", prop.ForAll(
		func(words []string, size int) bool {
			text := strings.Join(words, " ")
			chunks := NewChunker(ChunkingConfig{Strategy: ChunkingFixed, ChunkSize: size}, nil, nil).
				Chunk(Document{ID: "d", Text: text})
			parts := make([]string, len(chunks))
			for i, c := range chunks {
				if len(strings.Fields(c.Text)) > size {
					return false
				}
				parts[i] = c.Text
			}
			return strings.Join(parts, " ") == text
		},
		gen.SliceOf(gen.Identifier()),
		gen.IntRange(1, 6),
	))

	properties.Property("sliding windows start every size-overlap tokens", prop.ForAll(
		func(words []string, size int) bool {
			overlap := size / 2
			chunks := NewChunker(ChunkingConfig{Strategy: ChunkingSliding, ChunkSize: size, ChunkOverlap: overlap}, nil, nil).
				Chunk(Document{ID: "d", Text: strings.Join(words, " ")})
			step := size - overlap
			for i, c := range chunks {
				first := strings.Fields(c.Text)[0]
				if first != words[i*step] {
					return false
				}
			}
			last := strings.Fields(chunks[len(chunks)-1].Text)
			return last[len(last)-1] == words[len(words)-1]
		},
		gen.SliceOfN(12, gen.Identifier()),
		gen.IntRange(2, 6),
	))

	properties.TestingRun(t)
}
