package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/perfsight/internal/config"
	"github.com/raphaelgruber/perfsight/internal/llm"
	"github.com/raphaelgruber/perfsight/internal/preprocess"
	"github.com/raphaelgruber/perfsight/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		MaxLinesPerChunk: 2,
		MaxCharsPerChunk: 1000,
		MaxFileWorkers:   2,
		MaxChunkWorkers:  2,
		LLMProvider:      config.ProviderOpenAI,
		AnalysisModel:    "analysis-model",
		SummaryModel:     "summary-model",
	}
}

func TestNew_UsesConfiguredModelsAndLimits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd\ne"), 0o644))

	fake := llm.NewFake(llm.FakeRule{Match: "senior performance engineer", Response: "# Executive Summary\nok"})
	tracker := progress.NewTracker(nil)
	jobID := tracker.CreateJob([]progress.FileSpec{{Name: "app.log"}})

	analyzer, err := New(context.Background(), testConfig(), Deps{Reporter: tracker, Caller: fake})
	require.NoError(t, err)

	res, err := analyzer.Analyze(context.Background(), []preprocess.FileInput{{Name: "app.log", Path: path}}, nil, jobID)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Summary)
	assert.Equal(t, "analysis-model", res.ModelUsed)
	assert.Equal(t, 3, res.Preprocessing.Files[0].Chunks, "five lines at two per chunk")

	models := map[string]int{}
	for _, c := range fake.Calls() {
		models[c.Model]++
	}
	assert.Equal(t, 4, models["summary-model"], "three chunks plus one meta-summary")
	assert.Equal(t, 1, models["analysis-model"])

	job, _ := tracker.Get(jobID)
	assert.Equal(t, progress.FileStatusDone, job.Files[0].Status)
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := testConfig()
	cfg.OpenAIKeyFile = filepath.Join(t.TempDir(), "missing.txt")

	_, err := New(context.Background(), cfg, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestNew_FakeProvider(t *testing.T) {
	cfg := testConfig()
	cfg.LLMProvider = config.ProviderFake

	analyzer, err := New(context.Background(), cfg, Deps{})
	require.NoError(t, err)

	res, err := analyzer.Analyze(context.Background(), nil, nil, "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Response)
	assert.Empty(t, res.Preprocessing.Files)
}
