package parse

import (
	"github.com/dilarxiv/dilarxiv/internal/fonds"
)

// newJuriParser handles the jurisprudence layout (JADE, INCA, CASS, CAPP):
// metadata under META_JURI / META_JURI_ADMIN, body under BLOC_TEXTUEL.
func newJuriParser(f fonds.Fond) *schemaParser {
	return &schemaParser{
		fond: f,
		core: map[string]coreField{
			"ID":       fieldUID,
			"TITRE":    fieldTitle,
			"DATE_DEC": fieldDate,
			"CONTENU":  fieldContent,
		},
		extra: map[string]string{
			"ANCIEN_ID":       "ancien_id",
			"ORIGINE":         "origine",
			"URL":             "url",
			"NATURE":          "nature",
			"JURIDICTION":     "juridiction",
			"NUMERO":          "numero",
			"DEMANDEUR":       "demandeur",
			"PRESIDENT":       "president",
			"AVOCATS":         "avocats",
			"RAPPORTEUR":      "rapporteur",
			"COMMISSAIRE_GVT": "commissaire_gvt",
			"ECLI":            "ecli",
			"FORMATION":       "formation",
			"SOLUTION":        "solution",
		},
	}
}

// newCnilParser handles CNIL deliberations: dated by DATE_TEXTE, titled by
// TITREFULL when present.
func newCnilParser(f fonds.Fond) *schemaParser {
	return &schemaParser{
		fond: f,
		core: map[string]coreField{
			"ID":         fieldUID,
			"TITREFULL":  fieldTitle,
			"DATE_TEXTE": fieldDate,
			"CONTENU":    fieldContent,
		},
		extra: map[string]string{
			"ANCIEN_ID":      "ancien_id",
			"ORIGINE":        "origine",
			"URL":            "url",
			"NATURE":         "nature",
			"NATURE_DELIB":   "nature_delib",
			"NUMERO":         "numero",
			"ETAT_JURIDIQUE": "etat_juridique",
		},
	}
}

// newLegiJorfParser handles legislative texts (JORF, LEGI): dated by the
// publication date, body split across many CONTENU blocks.
func newLegiJorfParser(f fonds.Fond) *schemaParser {
	return &schemaParser{
		fond: f,
		core: map[string]coreField{
			"ID":         fieldUID,
			"TITREFULL":  fieldTitle,
			"DATE_TEXTE": fieldDate,
			"CONTENU":    fieldContent,
		},
		extra: map[string]string{
			"ANCIEN_ID":      "ancien_id",
			"ORIGINE":        "origine",
			"URL":            "url",
			"NATURE":         "nature",
			"NUM":            "numero",
			"DATE_PUBLI":     "date_publi",
			"ETAT_JURIDIQUE": "etat_juridique",
			"MINISTERE":      "ministere",
		},
	}
}
