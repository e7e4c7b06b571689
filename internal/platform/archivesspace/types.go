package archivesspace

import "github.com/hudmol/yale-as-post-mig-acc-fix/internal/accession"

// AccessionPage matches GET {repo}/accessions?page=n.
type AccessionPage struct {
	FirstPage int                    `json:"first_page"`
	LastPage  int                    `json:"last_page"`
	ThisPage  int                    `json:"this_page"`
	Total     int                    `json:"total"`
	Results   []*accession.Accession `json:"results"`
}

type Event struct {
	URI       string `json:"uri"`
	EventType string `json:"event_type"`
}

type Subject struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// SubjectPage matches GET /subjects?page=n.
type SubjectPage struct {
	FirstPage int       `json:"first_page"`
	LastPage  int       `json:"last_page"`
	ThisPage  int       `json:"this_page"`
	Total     int       `json:"total"`
	Results   []Subject `json:"results"`
}

type Enumeration struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}
