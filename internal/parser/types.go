package parser

// ParsedPage is one page of text extracted by the parse service. Tables and
// figures are kept as opaque records, the pipeline never inspects them.
type ParsedPage struct {
	PageNumber int                      `json:"page_number"`
	Content    string                   `json:"content"`
	Tables     []map[string]interface{} `json:"tables,omitempty"`
	Figures    []map[string]interface{} `json:"figures,omitempty"`
}

// ParsedDocument is the page-structured result of one parse job. Pages are
// sorted ascending by page number. Immutable once built.
type ParsedDocument struct {
	Pages      []ParsedPage           `json:"pages"`
	TotalPages int                    `json:"total_pages"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Result couples the mapped document with the raw provider response. The raw
// bytes are preserved as the side record so a failed pipeline never has to
// re-pay for parsing.
type Result struct {
	Document ParsedDocument
	Raw      []byte
}
