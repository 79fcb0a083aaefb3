package textindex

import "testing"

func TestTokenizeLowercasesAndDropsStopwords(t *testing.T) {
	toks := Tokenize("The Quick Brown Fox, and the Lazy Dog!")
	want := []string{"quick", "brown", "fox", "lazy", "dog"}
	if len(toks) != len(want) {
		t.Fatalf("got %v want %v", toks, want)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Errorf("token %d: got %q want %q", i, toks[i], want[i])
		}
	}
}

func TestSearchRanksMoreRelevantDocHigher(t *testing.T) {
	idx := New()
	idx.Upsert(1, "the graph database stores vectors and edges")
	idx.Upsert(2, "vectors vectors vectors everywhere in this vector database")
	idx.Upsert(3, "completely unrelated text about cooking")

	results := idx.Search("vectors", 10)
	if len(results) < 2 {
		t.Fatalf("expected at least 2 matches, got %d", len(results))
	}
	if results[0].ID != 2 {
		t.Errorf("expected doc 2 (heavy term repetition) to rank first, got %d", results[0].ID)
	}
	for _, r := range results {
		if r.ID == 3 {
			t.Errorf("doc 3 has no matching term and should not appear: %v", results)
		}
	}
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	idx := New()
	idx.Upsert(1, "hello world")
	idx.Delete(1)
	results := idx.Search("hello", 10)
	if len(results) != 0 {
		t.Errorf("expected no results after delete, got %v", results)
	}
}

func TestUpsertReplacesPriorPostings(t *testing.T) {
	idx := New()
	idx.Upsert(1, "apples and oranges")
	idx.Upsert(1, "bananas only")
	if r := idx.Search("apples", 10); len(r) != 0 {
		t.Errorf("expected re-upsert to drop old terms, got %v", r)
	}
	if r := idx.Search("bananas", 10); len(r) != 1 {
		t.Errorf("expected new terms to be searchable, got %v", r)
	}
}

func TestEmptyQueryReturnsNoResults(t *testing.T) {
	idx := New()
	idx.Upsert(1, "some text")
	if r := idx.Search("", 10); r != nil {
		t.Errorf("expected nil results for empty query, got %v", r)
	}
}
