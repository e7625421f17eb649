// Package fonds enumerates the DILA open-data collections the pipeline
// understands and maps each one to its archive listing and XML schema
// variant.
package fonds

import (
	"fmt"
	"sort"
	"strings"
)

// Fond identifies one DILA collection.
type Fond string

const (
	JORF Fond = "JORF" // Journal officiel de la République française
	CNIL Fond = "CNIL" // Délibérations de la CNIL
	JADE Fond = "JADE" // Jurisprudence administrative (Conseil d'État, CAA)
	LEGI Fond = "LEGI" // Codes, lois et règlements consolidés
	INCA Fond = "INCA" // Cour de cassation, arrêts inédits
	CASS Fond = "CASS" // Cour de cassation, arrêts publiés
	CAPP Fond = "CAPP" // Cours d'appel
)

// Schema names the XML layout shared by one or more fonds.
type Schema int

const (
	// SchemaJuri covers the jurisprudence fonds (JADE, INCA, CASS, CAPP).
	SchemaJuri Schema = iota
	// SchemaCnil covers CNIL deliberations.
	SchemaCnil
	// SchemaLegiJorf covers legislative texts (JORF, LEGI).
	SchemaLegiJorf
)

var all = map[Fond]Schema{
	JORF: SchemaLegiJorf,
	CNIL: SchemaCnil,
	JADE: SchemaJuri,
	LEGI: SchemaLegiJorf,
	INCA: SchemaJuri,
	CASS: SchemaJuri,
	CAPP: SchemaJuri,
}

// Parse returns the Fond for a user-supplied name, case-insensitively.
func Parse(s string) (Fond, error) {
	f := Fond(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := all[f]; !ok {
		return "", fmt.Errorf("unknown fond %q (known: %s)", s, strings.Join(Names(), ", "))
	}
	return f, nil
}

// Schema returns the XML schema variant for f.
func (f Fond) Schema() Schema {
	return all[f]
}

// String returns the canonical upper-case name.
func (f Fond) String() string {
	return string(f)
}

// All returns every known fond in stable (alphabetical) order.
func All() []Fond {
	out := make([]Fond, 0, len(all))
	for f := range all {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Names returns the canonical names of all fonds in stable order.
func Names() []string {
	fs := All()
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}
