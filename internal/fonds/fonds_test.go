package fonds

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseIsCaseInsensitive(t *testing.T) {
	for _, input := range []string{"jade", "JADE", " Jade "} {
		f, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q): %v", input, err)
		}
		if f != JADE {
			t.Errorf("Parse(%q) = %s, want JADE", input, f)
		}
	}
}

func TestParseRejectsUnknownFond(t *testing.T) {
	if _, err := Parse("BOFIP"); err == nil {
		t.Error("expected an error for an unknown fond")
	}
}

func TestAllIsStable(t *testing.T) {
	want := []Fond{CAPP, CASS, CNIL, INCA, JADE, JORF, LEGI}
	if diff := cmp.Diff(want, All()); diff != "" {
		t.Errorf("All() order (-want +got):\n%s", diff)
	}
}

func TestSchemaMapping(t *testing.T) {
	cases := map[Fond]Schema{
		JADE: SchemaJuri,
		CASS: SchemaJuri,
		INCA: SchemaJuri,
		CAPP: SchemaJuri,
		CNIL: SchemaCnil,
		JORF: SchemaLegiJorf,
		LEGI: SchemaLegiJorf,
	}
	for f, want := range cases {
		if got := f.Schema(); got != want {
			t.Errorf("%s schema = %v, want %v", f, got, want)
		}
	}
}
