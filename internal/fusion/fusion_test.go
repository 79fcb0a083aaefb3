package fusion

import "testing"

func TestRRFFavorsPointsRankedWellAcrossStreams(t *testing.T) {
	streams := []Stream{
		{Name: "vector", Results: []StreamResult{{ID: 1, Score: 0.9}, {ID: 2, Score: 0.5}}},
		{Name: "text", Results: []StreamResult{{ID: 2, Score: 10}, {ID: 1, Score: 1}}},
	}
	out := Fuse(streams, RRF, WeightedParams{}, 60)
	if len(out) != 2 {
		t.Fatalf("expected 2 fused results, got %v", out)
	}
	// point 1 is rank 0 in vector and rank 1 in text; point 2 is rank 1 and
	// rank 0 — symmetric, so RRF scores should tie and PointId ascending
	// breaks it in favor of id 1.
	if out[0].ID != 1 {
		t.Errorf("expected id 1 first on tie-break, got %v", out)
	}
}

func TestWeightedUsesDefaults(t *testing.T) {
	streams := []Stream{
		{Name: "vector", Results: []StreamResult{{ID: 1, Score: 1.0}, {ID: 2, Score: 0.0}}},
	}
	out := Fuse(streams, Weighted, DefaultWeightedParams(), 0)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %v", out)
	}
	if out[0].ID != 1 {
		t.Errorf("expected higher-scored point first, got %v", out)
	}
}

func TestMaximumStrategy(t *testing.T) {
	streams := []Stream{
		{Name: "a", Results: []StreamResult{{ID: 1, Score: 0.2}}},
		{Name: "b", Results: []StreamResult{{ID: 1, Score: 0.9}}},
	}
	out := Fuse(streams, Maximum, WeightedParams{}, 0)
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %v", out)
	}
	if out[0].Score < 0.99 {
		t.Errorf("expected max-normalized score near 1.0, got %v", out[0].Score)
	}
}

func TestFuseTieBreaksByPointIDAscending(t *testing.T) {
	streams := []Stream{
		{Name: "a", Results: []StreamResult{{ID: 5, Score: 1}, {ID: 3, Score: 1}}},
	}
	out := Fuse(streams, Average, WeightedParams{}, 0)
	if len(out) != 2 || out[0].ID != 3 {
		t.Errorf("expected id 3 before id 5 on exact tie, got %v", out)
	}
}
