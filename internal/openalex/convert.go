package openalex

import (
	"sort"
	"strings"

	"github.com/scholarsite/scholarsite/internal/model"
)

// CategoryOther is the fallback for unmapped work types.
const CategoryOther = "other"

var workCategories = map[string]string{
	"article":             "journal",
	"review":              "journal",
	"letter":              "journal",
	"editorial":           "journal",
	"book":                "book",
	"book-chapter":        "book",
	"monograph":           "book",
	"reference-entry":     "book",
	"proceedings":         "conference",
	"proceedings-article": "conference",
	"preprint":            "preprint",
	"posted-content":      "preprint",
	"dissertation":        "thesis",
	"dataset":             "dataset",
}

// CategoryFor maps a work type to a site category. Unknown types map to
// CategoryOther.
func CategoryFor(workType string) string {
	if c, ok := workCategories[strings.ToLower(workType)]; ok {
		return c
	}
	return CategoryOther
}

// ReconstructAbstract rebuilds plain text from an inverted index of
// word → positions.
func ReconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}

	type placed struct {
		pos  int
		word string
	}
	var words []placed
	for word, positions := range index {
		for _, p := range positions {
			if p >= 0 {
				words = append(words, placed{pos: p, word: word})
			}
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].pos != words[j].pos {
			return words[i].pos < words[j].pos
		}
		return words[i].word < words[j].word
	})

	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.word
	}
	return strings.Join(out, " ")
}

// NormalizeDOI strips resolver prefixes.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:"} {
		if len(doi) >= len(prefix) && strings.EqualFold(doi[:len(prefix)], prefix) {
			return doi[len(prefix):]
		}
	}
	return doi
}

// NormalizeORCID returns the bare 0000-0000-0000-000X form.
func NormalizeORCID(orcid string) (string, error) {
	orcid = strings.TrimSpace(orcid)
	orcid = strings.TrimPrefix(orcid, "https://orcid.org/")
	orcid = strings.TrimPrefix(orcid, "http://orcid.org/")
	orcid = strings.ToUpper(orcid)

	if len(orcid) != 19 {
		return "", ErrInvalidORCID
	}
	for i, c := range orcid {
		switch {
		case i == 4 || i == 9 || i == 14:
			if c != '-' {
				return "", ErrInvalidORCID
			}
		case i == 18 && c == 'X':
		case c < '0' || c > '9':
			return "", ErrInvalidORCID
		}
	}
	return orcid, nil
}

// shortID turns "https://openalex.org/W123" into "W123".
func shortID(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}

func (w work) toPublication() model.Publication {
	title := w.Title
	if title == "" {
		title = w.DisplayName
	}

	authors := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			authors = append(authors, a.Author.DisplayName)
		}
	}

	var venue string
	if w.PrimaryLocation != nil && w.PrimaryLocation.Source != nil {
		venue = w.PrimaryLocation.Source.DisplayName
	}

	return model.Publication{
		ID:            shortID(w.ID),
		Title:         title,
		Venue:         venue,
		Year:          w.PublicationYear,
		Authors:       authors,
		CitationCount: w.CitedByCount,
		OpenAccess:    w.OpenAccess.IsOA,
		DOI:           NormalizeDOI(w.DOI),
		Category:      CategoryFor(w.Type),
		Abstract:      ReconstructAbstract(w.AbstractInvertedIndex),
	}
}

func (a author) toModel() model.Author {
	var institutions []string
	for _, inst := range a.LastKnownInstitutions {
		if inst.DisplayName != "" {
			institutions = append(institutions, inst.DisplayName)
		}
	}
	orcid, _ := NormalizeORCID(a.ORCID)
	return model.Author{
		ID:            shortID(a.ID),
		DisplayName:   a.DisplayName,
		ORCID:         orcid,
		Institutions:  institutions,
		WorksCount:    a.WorksCount,
		CitationCount: a.CitedByCount,
	}
}
