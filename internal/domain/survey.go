package domain

// SequenceLink is a remote compressed sequence file discovered on an index page.
type SequenceLink struct {
	URL  string
	Name string
}

// SequenceFile is a downloaded and decompressed sequence file.
type SequenceFile struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Profile is a downloaded and decompressed HMM profile for one accession.
type Profile struct {
	Accession string `json:"accession"`
	Path      string `json:"path"`
}

// SearchPair is one (profile, sequence file) invocation of the search tool.
type SearchPair struct {
	Accession    string `json:"accession"`
	ProfilePath  string `json:"profilePath"`
	SequencePath string `json:"sequencePath"`
	OutputPath   string `json:"outputPath"`
	Done         bool   `json:"done"`
}

// TableHit is one row of a search tool's tabular output.
type TableHit struct {
	TargetName      string
	TargetAccession string
	EValue          float64
	Score           float64
	Bias            float64
	DomainEValue    float64
	DomainScore     float64
	DomainBias      float64
	Description     string
}

// QueryResult groups the hits reported for one query.
type QueryResult struct {
	ID        string
	Accession string
	Hits      []TableHit
}

// Hit is one flattened (accession, query, target) match.
type Hit struct {
	Accession  string
	QueryName  string
	TargetName string
	EValue     float64
	Score      float64
}

// SummaryRow is a hit plus its derived grouping key.
type SummaryRow struct {
	Hit
	GroupKey string
}
