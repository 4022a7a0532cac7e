package deid

// DefaultRules returns the PHI rules applied to clinical notes. Clinical
// dates other than birth dates are kept because answers depend on them.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "patient-name",
			Description: "Labelled patient name",
			Pattern:     `(?m)^(?:Patient|Patient Name|Name):[ \t]*([^\n]+)`,
		},
		{
			ID:          "birth-date",
			Description: "Labelled date of birth",
			Pattern:     `(?i)\b(?:Birth Date|DOB|Date of Birth):[ \t]*([0-9][0-9/\-.]+[0-9])`,
		},
		{
			ID:          "mrn",
			Description: "Medical record number",
			Pattern:     `(?i)\b(?:MRN|Medical Record (?:Number|No\.?))[:#]?[ \t]*([A-Z0-9\-]{4,})`,
		},
		{
			ID:          "ssn",
			Description: "US Social Security number",
			Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		},
		{
			ID:          "phone",
			Description: "Phone number",
			Pattern:     `(?:\+1[ .\-]?)?\(?\b\d{3}\)?[ .\-]\d{3}[ .\-]\d{4}\b`,
		},
		{
			ID:          "email",
			Description: "Email address",
			Pattern:     `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
		},
		{
			ID:          "street-address",
			Description: "Street address",
			Pattern:     `\b\d{1,5}\s+(?:[A-Z][a-z]+\s){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr)\b\.?`,
		},
	}
}
