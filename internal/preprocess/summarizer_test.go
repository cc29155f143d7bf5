package preprocess

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raphaelgruber/perfsight/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeChunk(t *testing.T) {
	fake := llm.NewFake(llm.FakeRule{Match: "Chunk 2 of 5", Response: "  p95 latency spikes  \n"})
	s := NewSummarizer(fake, SummarizerOptions{Model: "summary-model"})

	got, err := s.SummarizeChunk(context.Background(), "app.log", FileTypeLog, "GC pause 900ms", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, "p95 latency spikes", got)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "summary-model", calls[0].Model)
	assert.Equal(t, SummaryTemperature, calls[0].Temperature)
	assert.Contains(t, calls[0].Prompt, "File: app.log")
	assert.Contains(t, calls[0].Prompt, "GC pause 900ms")
}

func TestSummarizeChunk_TruncatesToMaxChars(t *testing.T) {
	fake := llm.NewFake()
	s := NewSummarizer(fake, SummarizerOptions{Chunk: ChunkConfig{MaxLines: 10, MaxChars: 5}})

	_, err := s.SummarizeChunk(context.Background(), "a.txt", FileTypeText, "abcdefghij", 0, 1)
	require.NoError(t, err)

	prompt := fake.Calls()[0].Prompt
	assert.Contains(t, prompt, "abcde\n")
	assert.NotContains(t, prompt, "abcdef")
}

func TestSummarizeChunk_UpstreamError(t *testing.T) {
	fake := llm.NewFake(llm.FakeRule{Err: llm.ErrUpstream})
	s := NewSummarizer(fake, SummarizerOptions{})

	_, err := s.SummarizeChunk(context.Background(), "a.log", FileTypeLog, "x", 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrUpstream)
}

func TestSummarizeFile_FailedChunkBecomesPlaceholder(t *testing.T) {
	fake := llm.NewFake(
		llm.FakeRule{Match: "Partial Summaries", Response: "META"},
		llm.FakeRule{Match: "Chunk 1 of 3", Response: "first"},
		llm.FakeRule{Match: "Chunk 2 of 3", Err: errors.New("connection reset")},
		llm.FakeRule{Match: "Chunk 3 of 3", Response: "third"},
	)
	s := NewSummarizer(fake, SummarizerOptions{ChunkWorkers: 3})

	meta, summaries, err := s.SummarizeFile(context.Background(), "app.log", FileTypeLog, []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	assert.Equal(t, "META", meta)

	require.Len(t, summaries, 3)
	assert.Equal(t, "first", summaries[0])
	assert.True(t, strings.HasPrefix(summaries[1], "[Chunk 2 summary failed:"), summaries[1])
	assert.Contains(t, summaries[1], "connection reset")
	assert.Equal(t, "third", summaries[2])

	var metaPromptText string
	for _, c := range fake.Calls() {
		if strings.Contains(c.Prompt, "Partial Summaries") {
			metaPromptText = c.Prompt
		}
	}
	require.NotEmpty(t, metaPromptText)
	assert.Contains(t, metaPromptText, "first\n\n"+summaries[1]+"\n\nthird")
}

func TestSummarizeFile_MetaFailureFailsFile(t *testing.T) {
	fake := llm.NewFake(llm.FakeRule{Match: "Partial Summaries", Err: llm.ErrUpstream})
	s := NewSummarizer(fake, SummarizerOptions{})

	_, summaries, err := s.SummarizeFile(context.Background(), "app.log", FileTypeLog, []string{"a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrUpstream)
	assert.Len(t, summaries, 2)
}

func TestSummarizeFile_SequentialFallback(t *testing.T) {
	fake := llm.NewFake()
	s := NewSummarizer(fake, SummarizerOptions{
		PoolFactory: func(int) (Pool, error) { return nil, errors.New("no threads") },
	})

	_, summaries, err := s.SummarizeFile(context.Background(), "a.log", FileTypeLog, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, summaries, 3)
	assert.Equal(t, 4, len(fake.Calls()))
}
