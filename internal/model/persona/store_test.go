package persona

import "testing"

func TestFindByIDDefaultsToButler(t *testing.T) {
	store := NewMemoryStore(Seed())

	p, ok := store.FindByID("")
	if !ok {
		t.Fatal("expected default persona")
	}
	if p.ID != DefaultID {
		t.Fatalf("expected %s, got %s", DefaultID, p.ID)
	}
	if p.SystemPrompt == "" || p.OpeningLine == "" {
		t.Fatal("default persona must carry a system prompt and a greeting")
	}
}

func TestFindByIDMissing(t *testing.T) {
	store := NewMemoryStore(Seed())
	if _, ok := store.FindByID("nobody"); ok {
		t.Fatal("expected lookup to fail")
	}
}

func TestListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	list := store.List()
	list[0].Name = "changed"

	if store.List()[0].Name == "changed" {
		t.Fatal("List must not expose internal slice")
	}
}
