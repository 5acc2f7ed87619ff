package model

// RawRecord is the input contract from the harvest collaborators: one
// already-parsed candidate record with provenance. Only Title and SourceAPI
// are required; everything else degrades gracefully downstream.
type RawRecord struct {
	Title       string   `json:"title" csv:"title"`
	DOI         string   `json:"doi,omitempty" csv:"doi"`
	URL         string   `json:"url,omitempty" csv:"url"`
	Authors     []string `json:"authors,omitempty" csv:"-"`
	AuthorsRaw  string   `json:"-" csv:"authors"` // semicolon-separated in CSV dumps
	Year        int      `json:"year,omitempty" csv:"year"`
	Venue       string   `json:"venue,omitempty" csv:"venue"`
	Abstract    string   `json:"abstract,omitempty" csv:"abstract"`
	Keywords    []string `json:"keywords,omitempty" csv:"-"`
	KeywordsRaw string   `json:"-" csv:"keywords"`
	OpenAccess  bool     `json:"open_access,omitempty" csv:"open_access"`
	SourceAPI   string   `json:"source_api" csv:"source_api"`
}
