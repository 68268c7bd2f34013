package verify

// Status is the verdict of one verification.
type Status string

const (
	// StatusValid means a registry record matched above the threshold.
	StatusValid Status = "valid"
	// StatusFake means an identifier was found but nothing in the registry matched.
	StatusFake Status = "fake"
	// StatusNotDetected means no identifier could be derived.
	StatusNotDetected Status = "not_detected"
)

// Source tells where the candidate identifier came from.
type Source string

const (
	SourceOCR    Source = "ocr"
	SourceManual Source = "manual"
)

// Record is a read-only snapshot of one trusted registry entry.
type Record struct {
	Identifier      string  `json:"cert_id"`
	StudentName     string  `json:"student_name,omitempty"`
	RollNumber      string  `json:"roll_number,omitempty"`
	Course          string  `json:"course,omitempty"`
	Institution     string  `json:"institution,omitempty"`
	YearOfPassing   int     `json:"year_of_passing,omitempty"`
	MarksPercentage float64 `json:"marks_percentage,omitempty"`
}

// Result is the outcome of a verification. CandidateID and NormalizedID are
// empty when nothing was detected; Record and Similarity are only set for
// StatusValid.
type Result struct {
	CandidateID  string  `json:"candidate_id,omitempty"`
	NormalizedID string  `json:"normalized_id,omitempty"`
	Status       Status  `json:"status"`
	Record       *Record `json:"matched_record,omitempty"`
	Similarity   float64 `json:"similarity,omitempty"`

	Source   Source `json:"source"`
	Pass     string `json:"ocr_pass,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Text     string `json:"extracted_text,omitempty"`
}
