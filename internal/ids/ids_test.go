package ids

import "testing"

func TestHashDeterministic(t *testing.T) {
	a := Unidad("BOE-A-2015-10566", "ARTICULO", "Art. 12", "2020-01-01", "", "texthash1")
	b := Unidad("BOE-A-2015-10566", "ARTICULO", "Art. 12", "2020-01-01", "", "texthash1")
	if a != b {
		t.Fatalf("expected deterministic id, got %s != %s", a, b)
	}
}

func TestHashChangesWithInput(t *testing.T) {
	base := Unidad("BOE-A-2015-10566", "ARTICULO", "Art. 12", "2020-01-01", "", "texthash1")
	variants := []string{
		Unidad("BOE-A-2015-99999", "ARTICULO", "Art. 12", "2020-01-01", "", "texthash1"),
		Unidad("BOE-A-2015-10566", "ANEXO", "Art. 12", "2020-01-01", "", "texthash1"),
		Unidad("BOE-A-2015-10566", "ARTICULO", "Art. 13", "2020-01-01", "", "texthash1"),
		Unidad("BOE-A-2015-10566", "ARTICULO", "Art. 12", "2021-01-01", "", "texthash1"),
		Unidad("BOE-A-2015-10566", "ARTICULO", "Art. 12", "2020-01-01", "BOE-A-2021-1", "texthash1"),
		Unidad("BOE-A-2015-10566", "ARTICULO", "Art. 12", "2020-01-01", "", "texthash2"),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d unexpectedly equal to base", i)
		}
	}
}

func TestSeparatorAvoidsAmbiguity(t *testing.T) {
	// ("ab", "c") must differ from ("a", "bc") despite naive concatenation colliding.
	a := Hash("ab", "c")
	b := Hash("a", "bc")
	if a == b {
		t.Fatalf("expected distinct hashes for differently-split inputs")
	}
}

func TestChunkingHashCaseInsensitiveMethod(t *testing.T) {
	a := ChunkingHash("recursive", 800, 80)
	b := ChunkingHash("RECURSIVE", 800, 80)
	if a != b {
		t.Fatalf("expected method normalization to fold case")
	}
}
