package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/testutil/mocks"
	"github.com/BaSui01/evalflow/types"
)

const validGeneration = `{"answer":"Alpha only document","sentences":[{"sentenceId":"s1","text":"Alpha only document","citations":[{"chunkId":"d1"}]}]}`

func alphaRequest() GenerateRequest {
	return GenerateRequest{
		Query:  "Alpha",
		Chunks: []RetrievedChunk{{ChunkID: "d1", DocID: "d1", Text: "Alpha only document", Score: 1, Rank: 1}},
	}
}

func TestTemplateGenerator(t *testing.T) {
	res, err := NewTemplateGenerator().Generate(context.Background(), GenerateRequest{
		Query: "q",
		Chunks: []RetrievedChunk{
			{ChunkID: "c1", Text: "First."},
			{ChunkID: "c2", Text: "Second."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "First. Second.", res.Generation.Answer)
	assert.Equal(t, []Sentence{
		{SentenceID: "s1", Text: "First.", Citations: []Citation{{ChunkID: "c1"}}},
		{SentenceID: "s2", Text: "Second.", Citations: []Citation{{ChunkID: "c2"}}},
	}, res.Generation.Sentences)
	assert.Equal(t, 1, res.Attempts)
	assert.Zero(t, res.TokensUsed)
}

func TestTemplateGenerator_NoChunks(t *testing.T) {
	res, err := NewTemplateGenerator().Generate(context.Background(), GenerateRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "", res.Generation.Answer)
	assert.Empty(t, res.Generation.Sentences)
}

func TestLLMGenerator_ValidFirstAttempt(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse(validGeneration)
	g := NewLLMGenerator(provider, LLMGeneratorConfig{Model: "gpt-4o-mini", Temperature: 0.1, MaxTokens: 256}, nil)

	res, err := g.Generate(context.Background(), alphaRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.CallCount())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 30, res.TokensUsed)
	assert.Equal(t, "Alpha only document", res.Generation.Answer)
	require.Len(t, res.Generation.Sentences, 1)
	assert.Equal(t, "d1", res.Generation.Sentences[0].Citations[0].ChunkID)

	req := provider.LastRequest()
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 256, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "[d1] Alpha only document")
	assert.Contains(t, req.Messages[1].Content, "Question: Alpha")
}

func TestLLMGenerator_FencedJSON(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("```json\n" + validGeneration + "\n```")
	res, err := NewLLMGenerator(provider, LLMGeneratorConfig{}, nil).Generate(context.Background(), alphaRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
}

func TestLLMGenerator_RepairOnce(t *testing.T) {
	tests := []struct {
		name  string
		first string
		cause string
	}{
		{"not json", "Sure! Alpha is the answer.", "no JSON object"},
		{"broken json", `{"answer": "x", "sentences": [}`, "invalid JSON"},
		{"schema violation", `{"answer": "x"}`, "schema violation"},
		{"bad sentence id", `{"answer":"x","sentences":[{"sentenceId":"s2","text":"x","citations":[]}]}`, `want "s1"`},
		{"unknown citation", `{"answer":"x","sentences":[{"sentenceId":"s1","text":"x","citations":[{"chunkId":"d9"}]}]}`, `unknown chunk "d9"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := mocks.NewMockProvider().WithResponses(tt.first, validGeneration)
			res, err := NewLLMGenerator(provider, LLMGeneratorConfig{}, nil).Generate(context.Background(), alphaRequest())
			require.NoError(t, err)
			assert.Equal(t, 2, provider.CallCount())
			assert.Equal(t, 2, res.Attempts)
			assert.Equal(t, 60, res.TokensUsed)

			repair := provider.LastRequest()
			require.Len(t, repair.Messages, 4)
			assert.Equal(t, llm.RoleAssistant, repair.Messages[2].Role)
			assert.Equal(t, tt.first, repair.Messages[2].Content)
			assert.Contains(t, repair.Messages[3].Content, tt.cause)
			assert.Contains(t, repair.Messages[3].Content, `"sentenceId"`)
		})
	}
}

func TestLLMGenerator_SecondFailureIsParseFailure(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponses("nope", "still nope", validGeneration)
	res, err := NewLLMGenerator(provider, LLMGeneratorConfig{}, nil).Generate(context.Background(), alphaRequest())

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrParseFailure))
	assert.Equal(t, 2, provider.CallCount(), "exactly one repair attempt")
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 60, res.TokensUsed)
}

func TestLLMGenerator_UpstreamErrorSkipsRepair(t *testing.T) {
	provider := mocks.NewMockProvider().WithError(errors.New("connection reset"))
	_, err := NewLLMGenerator(provider, LLMGeneratorConfig{}, nil).Generate(context.Background(), alphaRequest())

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, provider.CallCount())
}

func TestLLMGenerator_RepairUpstreamErrorKeepsUsage(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponses("not json").WithFailAfter(1)
	res, err := NewLLMGenerator(provider, LLMGeneratorConfig{}, nil).Generate(context.Background(), alphaRequest())

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
	assert.Equal(t, 2, provider.CallCount())
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 30, res.TokensUsed)
}

func TestLLMGenerator_NilProvider(t *testing.T) {
	_, err := NewLLMGenerator(nil, LLMGeneratorConfig{}, nil).Generate(context.Background(), alphaRequest())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSONObject("prefix {\"a\":1} suffix"))
	assert.Equal(t, `{"a":1}`, extractJSONObject("```\n{\"a\":1}\n```"))
	assert.Equal(t, "", extractJSONObject("no braces"))
	assert.Equal(t, "", extractJSONObject("} {"))
}

func TestGenerationState_String(t *testing.T) {
	assert.Equal(t, "initial", attemptInitial.String())
	assert.Equal(t, "repair", attemptRepair.String())
	assert.Equal(t, "done", generationDone.String())
	assert.Equal(t, "failed", generationFailed.String())
}
