package signature

import "testing"

func TestHashEmbedDeterministic(t *testing.T) {
	a := HashEmbed("explain step by step how this works")
	b := HashEmbed("explain step by step how this works")
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at index %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHashEmbedDiffersOnContent(t *testing.T) {
	a := HashEmbed("write a poem about the ocean")
	b := HashEmbed("compute the derivative of x squared")
	if CosineSimilarity(a, a) < 0.999 {
		t.Fatalf("self-similarity should be ~1, got %f", CosineSimilarity(a, a))
	}
	if CosineSimilarity(a, b) > 0.9 {
		t.Fatalf("unrelated prompts should not be near-identical: %f", CosineSimilarity(a, b))
	}
}

func TestNearestCentroidDeterministic(t *testing.T) {
	centroids := defaultTopicCentroids()
	if len(centroids) != 12 {
		t.Fatalf("expected 12 topic centroids, got %d", len(centroids))
	}
	v := HashEmbed("some prompt")
	idx1, sim1 := NearestCentroid(v, centroids)
	idx2, sim2 := NearestCentroid(v, centroids)
	if idx1 != idx2 || sim1 != sim2 {
		t.Fatalf("nearest centroid lookup not stable across calls")
	}
}

func TestStructuralHashIgnoresContent(t *testing.T) {
	a := StructuralHash("Hello, world! How are you?")
	b := StructuralHash("Goodbye, nature! Who are we?")
	if a != b {
		t.Fatalf("same-shape prompts should hash identically: %s vs %s", a, b)
	}
	c := StructuralHash("12345")
	if a == c {
		t.Fatalf("different-shape prompts should hash differently")
	}
}

func TestAhoCorasickCountsAllPatterns(t *testing.T) {
	m := NewMatcher([]string{"think step by step", "show your work"})
	text := "Please think step by step and show your work clearly."
	counts := m.CountMatches(text)
	if counts[0] != 1 || counts[1] != 1 {
		t.Fatalf("expected 1 match each, got %v", counts)
	}
}

func TestBuiltinDataFileCarriesVersion(t *testing.T) {
	df := Builtin()
	if df.Version == "" {
		t.Fatal("builtin data file must carry a version")
	}
}
