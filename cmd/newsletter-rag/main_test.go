package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/huzzy12/Andrew-Wilkinson-AI/services"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/retrieval"
)

type mockPipeline struct {
	mock.Mock
}

func (m *mockPipeline) Answer(ctx context.Context, query string) (*retrieval.Answer, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retrieval.Answer), args.Error(1)
}

func (m *mockPipeline) EnsureIndex(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockPipeline) Reindex(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockPipeline) Stats() retrieval.Stats {
	return m.Called().Get(0).(retrieval.Stats)
}

// run executes the root command against p and returns its output. closed
// reports whether the pipeline was released.
func run(t *testing.T, p pipeline, args ...string) (string, bool, error) {
	t.Helper()
	closed := false
	open := func(context.Context) (pipeline, func(context.Context) error, error) {
		return p, func(context.Context) error { closed = true; return nil }, nil
	}

	buf := new(bytes.Buffer)
	root := newRootCmd(open)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return buf.String(), closed, err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd(nil)

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "ask", "index"}, names)
}

func TestAskCmd_PrintsAnswerAndSources(t *testing.T) {
	p := new(mockPipeline)
	p.On("Answer", mock.Anything, "how do I hire").Return(&retrieval.Answer{
		Answer:  "Hire slowly.",
		Sources: []string{"On Hiring"},
	}, nil)

	out, closed, err := run(t, p, "ask", "how", "do", "I", "hire")

	require.NoError(t, err)
	assert.True(t, closed)
	assert.Contains(t, out, "Hire slowly.")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "  - On Hiring")
	p.AssertExpectations(t)
}

func TestAskCmd_JSON(t *testing.T) {
	p := new(mockPipeline)
	p.On("Answer", mock.Anything, "question").Return(&retrieval.Answer{
		Answer:   "Sorry, the answer service is unavailable right now. Please try again later.",
		Sources:  []string{},
		Degraded: true,
	}, nil)

	out, _, err := run(t, p, "ask", "--json", "question")
	require.NoError(t, err)

	var got retrieval.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Degraded)
	assert.Empty(t, got.Sources)
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	_, _, err := run(t, new(mockPipeline), "ask")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestAskCmd_ServiceError(t *testing.T) {
	p := new(mockPipeline)
	p.On("Answer", mock.Anything, "question").Return(nil, services.ErrEmbeddingUnconfigured)

	_, closed, err := run(t, p, "ask", "question")

	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrEmbeddingUnconfigured))
	assert.True(t, closed)
}

func TestIndexCmd(t *testing.T) {
	stats := retrieval.Stats{Ready: true, Chunks: 42, Dimensions: 768, Source: "corpus", CachePath: "data/embeddings_cache.json"}

	t.Run("loads or builds the index", func(t *testing.T) {
		p := new(mockPipeline)
		p.On("EnsureIndex", mock.Anything).Return(nil)
		p.On("Stats").Return(stats)

		out, _, err := run(t, p, "index")

		require.NoError(t, err)
		assert.Contains(t, out, "Indexed 42 chunks (768 dimensions) from corpus")
		p.AssertNotCalled(t, "Reindex", mock.Anything)
	})

	t.Run("force rebuilds", func(t *testing.T) {
		p := new(mockPipeline)
		p.On("Reindex", mock.Anything).Return(nil)
		p.On("Stats").Return(stats)

		_, _, err := run(t, p, "index", "--force")

		require.NoError(t, err)
		p.AssertNotCalled(t, "EnsureIndex", mock.Anything)
		p.AssertExpectations(t)
	})

	t.Run("warns about a partial index", func(t *testing.T) {
		partial := stats
		partial.Partial = true
		p := new(mockPipeline)
		p.On("EnsureIndex", mock.Anything).Return(nil)
		p.On("Stats").Return(partial)

		out, _, err := run(t, p, "index")

		require.NoError(t, err)
		assert.Contains(t, out, "INDEX_TIMEOUT")
	})

	t.Run("reports failure", func(t *testing.T) {
		p := new(mockPipeline)
		p.On("EnsureIndex", mock.Anything).Return(services.ErrEmptyIndex)

		_, _, err := run(t, p, "index")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "index failed")
	})
}

func TestServeCmd_Flags(t *testing.T) {
	cmd := newServeCmd(nil)

	flag := cmd.Flags().Lookup("warm")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
