package core

// Error tags attached to partial records. A record carrying one of these is a
// best-effort result, not a hard failure; it still flows to the sink with
// whatever fields were obtainable.
const (
	TagPanelFailed         = "panel_failed"
	TagHistoryFailed       = "history_failed"
	TagNoDownloadAvailable = "no_download_available"
)

// DiscoveredFiling is the identity triple reported by a discovery scan.
// FilingDate uses the source's MM/DD/YYYY formatting.
type DiscoveredFiling struct {
	Source     string `json:"source"`
	FileNumber string `json:"file_number"`
	FilingDate string `json:"filing_date"`
}

// LienRecord is one fully extracted filing.
type LienRecord struct {
	State               string `json:"state"`
	Source              string `json:"source"`
	County              string `json:"county,omitempty"`
	UCCType             string `json:"ucc_type"`
	DocumentType        string `json:"document_type"`
	DebtorName          string `json:"debtor_name"`
	DebtorAddress       string `json:"debtor_address"`
	FileNumber          string `json:"file_number"`
	SecuredPartyName    string `json:"secured_party_name"`
	SecuredPartyAddress string `json:"secured_party_address"`
	Status              string `json:"status"`
	FilingDate          string `json:"filing_date"` // MM/DD/YYYY
	LapseDate           string `json:"lapse_date"`  // MM/DD/YYYY or 12/31/9999
	PDFFilename         string `json:"pdf_filename"`
	Processed           bool   `json:"processed"`
	Error               string `json:"error,omitempty"`
}

// Identity returns the filing's discovery identity.
func (r LienRecord) Identity() DiscoveredFiling {
	return DiscoveredFiling{
		Source:     r.Source,
		FileNumber: r.FileNumber,
		FilingDate: r.FilingDate,
	}
}

// Cursor is the resumption point inside a paginated listing: the page being
// walked and the next row index on it. The zero value means "start over".
type Cursor struct {
	Page int `json:"page"`
	Row  int `json:"row_index"`
}

// IsZero reports whether the cursor points at the start of the listing.
func (c Cursor) IsZero() bool {
	return c.Page <= 1 && c.Row == 0
}
