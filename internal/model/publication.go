package model

// Publication is one bibliographic work rendered on a tenant's site.
type Publication struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Venue         string   `json:"venue,omitempty"`
	Year          int      `json:"year,omitempty"`
	Authors       []string `json:"authors"`
	CitationCount int      `json:"citation_count"`
	OpenAccess    bool     `json:"open_access"`
	DOI           string   `json:"doi,omitempty"`
	Category      string   `json:"category"`
	Abstract      string   `json:"abstract,omitempty"`
}

// Author is a bibliographic author record used when linking a profile to its source.
type Author struct {
	ID            string   `json:"id"`
	DisplayName   string   `json:"display_name"`
	ORCID         string   `json:"orcid,omitempty"`
	Institutions  []string `json:"institutions,omitempty"`
	WorksCount    int      `json:"works_count"`
	CitationCount int      `json:"citation_count"`
}
