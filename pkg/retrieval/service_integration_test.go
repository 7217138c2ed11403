package retrieval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslabs/nexusmem/pkg/retrieval"
	"github.com/nexuslabs/nexusmem/pkg/storage"
	"github.com/nexuslabs/nexusmem/test/testutil"
)

// fakeEncoder returns an embedding derived from the content's length so
// different inputs produce distinguishable vectors without depending on a
// real embedding model.
type fakeEncoder struct{}

func (fakeEncoder) Encode(_ context.Context, content string) ([]float32, string, error) {
	vec := make([]float32, 384)
	seed := float32(len(content)%10) / 10
	for i := range vec {
		vec[i] = seed
	}
	return vec, "fake-v1", nil
}

// mustCreate writes an episode directly through storage, running the same
// fact-extraction pass ingest.Service runs at ingestion time, and pre-populating
// the embedding (normally written later, asynchronously, by the worker pool)
// so Search-path tests can exercise FindSimilar without a real queue.
func mustCreate(t *testing.T, pool *storage.Pool, content string, tags []string) storage.Episode {
	t.Helper()
	ep := &storage.Episode{Content: content, ImportanceScore: 0.5, Tags: tags}
	if facts, ok := retrieval.ExtractFacts(content); ok {
		ep.Metadata.Facts = facts
	}
	vec, version, err := (fakeEncoder{}).Encode(t.Context(), content)
	require.NoError(t, err)
	ep.Embedding = vec
	ep.EmbeddingVersion = version
	require.NoError(t, pool.Episodes.Create(t.Context(), ep))
	return *ep
}

func TestService_Recent_ReturnsNewestFirst(t *testing.T) {
	pool := testutil.NewTestPool(t)
	svc := retrieval.NewService(pool, fakeEncoder{}, nil)

	mustCreate(t, pool, "first episode", nil)
	time.Sleep(10 * time.Millisecond)
	mustCreate(t, pool, "second episode", nil)

	episodes, err := svc.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.Equal(t, "second episode", episodes[0].Content)
}

func TestService_Related_UnknownRelationshipErrors(t *testing.T) {
	pool := testutil.NewTestPool(t)
	svc := retrieval.NewService(pool, fakeEncoder{}, nil)

	ep := mustCreate(t, pool, "an episode", nil)
	_, err := svc.Related(t.Context(), ep.ID, "nonsense")
	assert.ErrorIs(t, err, retrieval.ErrUnknownRelationship)
}

func TestService_LinkThenRelated_RoundTrips(t *testing.T) {
	pool := testutil.NewTestPool(t)
	svc := retrieval.NewService(pool, fakeEncoder{}, nil)

	a := mustCreate(t, pool, "episode a", nil)
	b := mustCreate(t, pool, "episode b", nil)
	c := mustCreate(t, pool, "episode c", nil)

	require.NoError(t, svc.Link(t.Context(), a.ID, b.ID, "before"))
	require.NoError(t, svc.Link(t.Context(), b.ID, c.ID, "causes"))

	all, err := svc.Related(t.Context(), b.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	causal, err := svc.Related(t.Context(), b.ID, "causes")
	require.NoError(t, err)
	require.Len(t, causal, 1)
	assert.Equal(t, c.ID, causal[0].ID)
}

func TestService_Facts_NoMatchReturnsErrFactNotFound(t *testing.T) {
	pool := testutil.NewTestPool(t)
	svc := retrieval.NewService(pool, fakeEncoder{}, nil)

	mustCreate(t, pool, "nothing structured here", nil)

	_, err := svc.Facts(t.Context(), "nexus_version", nil, nil, nil, 10, "desc")
	assert.ErrorIs(t, err, retrieval.ErrFactNotFound)
}

func TestService_Facts_FindsExtractedField(t *testing.T) {
	pool := testutil.NewTestPool(t)
	svc := retrieval.NewService(pool, fakeEncoder{}, nil)

	mustCreate(t, pool, "nexus version: v3.1.0 deployed to staging", nil)

	fact, err := svc.Facts(t.Context(), "nexus_version", nil, nil, nil, 10, "desc")
	require.NoError(t, err)
	assert.Equal(t, "3.1.0", fact.Value)
}

func TestService_Hybrid_FallsBackToNarrativeWithoutLeaking404(t *testing.T) {
	pool := testutil.NewTestPool(t)
	svc := retrieval.NewService(pool, fakeEncoder{}, nil)

	mustCreate(t, pool, "a conversation about deployment plans", nil)

	result, err := svc.Hybrid(t.Context(), "what is the status of the deployment plans", "", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, "narrative", result.Source)
}
