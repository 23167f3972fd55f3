package scrape

import (
	"fmt"

	"lienharvest/pkg/core"
)

// Columns maps summary table columns to their cell index.
type Columns struct {
	UCCType    int
	FileNumber int
	Status     int
	FilingDate int
	LapseDate  int
}

// Labels holds the on-page field labels the detail extractor looks up.
type Labels struct {
	DebtorName          string
	DebtorAddress       string
	SecuredPartyName    string
	SecuredPartyAddress string
	DocumentType        string
}

// Site describes one filing source: entry URLs, search filters, and the
// locators the session drives. Adding a source means adding a descriptor
// here; the session machine itself is source-agnostic.
type Site struct {
	Key   string
	State string

	SearchURL       string
	DetailSearchURL string

	SearchTerm         string
	DocumentTypeFilter string

	// Defaults applied on the worker's detail path, where the listing
	// columns are not available.
	DefaultUCCType      string
	DefaultDocumentType string
	DefaultStatus       string
	DefaultLapseDate    string

	SearchInput     string
	AdvancedButton  string
	FileTypeSelect  string
	DateStartInput  string
	DateEndInput    string
	SearchButton    string
	FileNumberInput string

	ResultCount    string
	RowLocator     string
	NextPageButton string

	HistoryButton string
	HistoryDialog string
	DownloadLink  string
	CloseControl  string

	Columns Columns
	Labels  Labels
}

// Row returns the locator for the i-th result row.
func (s *Site) Row(i int) string {
	return fmt.Sprintf("%s >> nth=%d", s.RowLocator, i)
}

// RowCell returns the locator for one summary cell.
func (s *Site) RowCell(i, col int) string {
	return fmt.Sprintf("%s >> td >> nth=%d", s.Row(i), col)
}

// RowToggle returns the control that expands the row's detail panel.
func (s *Site) RowToggle(i int) string {
	return fmt.Sprintf("%s >> button >> nth=0", s.Row(i))
}

// DetailPanel returns the locator for the opened detail panel of a filing.
func (s *Site) DetailPanel(fileNumber string) string {
	return fmt.Sprintf(`[class*="detail"]:has-text(%q)`, fileNumber)
}

// PageButton returns the pagination control for page n.
func (s *Site) PageButton(n int) string {
	return fmt.Sprintf(`button:has-text("%d")`, n)
}

// FieldValue returns the defined-term locator for a labeled value
// (dt/dd relation).
func (s *Site) FieldValue(label string) string {
	return fmt.Sprintf(`dt:has-text(%q) + dd`, label)
}

// FieldGroup returns the container holding a label and its siblings.
func (s *Site) FieldGroup(label string) string {
	return fmt.Sprintf(`*:has-text(%q) >> parent`, label)
}

// FieldSibling returns the i-th child of a label's container.
func (s *Site) FieldSibling(label string, i int) string {
	return fmt.Sprintf("%s >> child >> nth=%d", s.FieldGroup(label), i)
}

// caSOS is the California Secretary of State UCC search.
func caSOS() *Site {
	return &Site{
		Key:   "ca_sos",
		State: "CA",

		SearchURL:       "https://bizfileonline.sos.ca.gov/search/ucc",
		DetailSearchURL: "https://bizfileonline.sos.ca.gov/search/business",

		SearchTerm:         "Internal Revenue Service",
		DocumentTypeFilter: "Federal Tax Lien",

		DefaultUCCType:      "Federal Tax Lien",
		DefaultDocumentType: "Notice of Federal Tax Lien",
		DefaultStatus:       "Active",
		DefaultLapseDate:    "12/31/9999",

		SearchInput:     `input[aria-label="Search by name or file number"]`,
		AdvancedButton:  `button:has-text("Advanced")`,
		FileTypeSelect:  `select[aria-label="File Type"]`,
		DateStartInput:  `input[aria-label="File Date: Start"]`,
		DateEndInput:    `input[aria-label="File Date: End"]`,
		SearchButton:    `button:has-text("Search")`,
		FileNumberInput: `input[aria-label="File number"]`,

		ResultCount:    `text=/Results:\s*\d+/`,
		RowLocator:     "table tbody tr",
		NextPageButton: `button:has-text("Next Page")`,

		HistoryButton: `button:has-text("View History")`,
		HistoryDialog: `[role="dialog"][aria-label="History"]`,
		DownloadLink:  `[role="dialog"] a:has-text("Download")`,
		CloseControl:  `[aria-label="Close"]`,

		Columns: Columns{UCCType: 0, FileNumber: 2, Status: 4, FilingDate: 5, LapseDate: 6},
		Labels: Labels{
			DebtorName:          "Debtor Name",
			DebtorAddress:       "Debtor Address",
			SecuredPartyName:    "Secured Party Name",
			SecuredPartyAddress: "Secured Party Address",
			DocumentType:        "Document Type",
		},
	}
}

// registry maps site keys to their descriptors.
var registry = map[string]*Site{
	"ca_sos": caSOS(),
}

// Lookup returns the descriptor for a site key.
func Lookup(key string) (*Site, error) {
	site, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownSite, key)
	}
	return site, nil
}

// Sites lists the registered site keys.
func Sites() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	return keys
}
