package submission

// Method names the delivery path that accepted a lead.
type Method string

const (
	MethodNone     Method = ""
	MethodPrimary  Method = "primary"
	MethodFallback Method = "fallback"
)

// Category is the user-facing class of a failed submission.
type Category string

const (
	CategoryNone        Category = ""
	CategoryValidation  Category = "validation"
	CategoryRateLimited Category = "rate_limited"
	CategoryConnection  Category = "connection"
	CategoryDuplicate   Category = "duplicate"
	CategoryConfig      Category = "config"
	CategoryGeneric     Category = "generic"
)

// Result is what the caller shows the visitor. Message is always safe to
// display; RawError carries the technical detail for logs only.
type Result struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	Method      Method            `json:"method,omitempty"`
	Note        string            `json:"note,omitempty"`
	Category    Category          `json:"category,omitempty"`
	RawError    string            `json:"-"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
	LeadID      string            `json:"lead_id,omitempty"`
}

// Receipt is a delivery path's acknowledgement.
type Receipt struct {
	// ID is the identifier assigned by the destination, when it has one.
	ID string
}
