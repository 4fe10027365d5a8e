package leads

import (
	"strconv"
	"strings"
)

// DefaultMessage replaces an empty message on the submitted lead.
const DefaultMessage = "Gostaria de receber uma cotação."

// DefaultPriority is the medium priority every new lead starts with.
const DefaultPriority = 3

// Status is the lifecycle stage of a lead. This service only ever writes
// StatusNew; the other stages are set by the brokerage's admin tooling.
type Status string

const (
	StatusNew          Status = "new"
	StatusContacted    Status = "contacted"
	StatusInterested   Status = "interested"
	StatusProposalSent Status = "proposal_sent"
	StatusNegotiation  Status = "negotiation"
	StatusClosed       Status = "closed"
	StatusLost         Status = "lost"
	StatusRescheduled  Status = "rescheduled"
)

// Valid reports whether s is a known lifecycle stage.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusInterested, StatusProposalSent,
		StatusNegotiation, StatusClosed, StatusLost, StatusRescheduled:
		return true
	}
	return false
}

// RawFormInput is what a landing page posts. Every field the pages may send
// is declared here; unknown keys are dropped by the decoder.
type RawFormInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Operator   string `json:"operator"`
	Subject    string `json:"subject"`
	Message    string `json:"message"`
	SourcePage string `json:"source_page"`
	UserAgent  string `json:"-"`
	// ClientIP is filled by the HTTP layer when the caller's address is known.
	ClientIP string `json:"-"`
}

// Metadata carries attribution and client context for a lead.
type Metadata struct {
	SourcePage  string `json:"source_page,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	ClientIP    string `json:"client_ip,omitempty"`
}

// Empty reports whether no metadata field is set.
func (m *Metadata) Empty() bool {
	return m == nil || *m == Metadata{}
}

// LeadRecord is the normalized lead handed to the delivery adapters.
type LeadRecord struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Phone    string    `json:"phone"`
	Message  string    `json:"message,omitempty"`
	Operator string    `json:"operator"`
	Subject  string    `json:"subject,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Status   Status    `json:"status"`
	Priority int       `json:"priority"`
}

// Check enforces the record invariants before transmission.
func (r LeadRecord) Check() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Email) == "" || r.Email != NormalizeEmail(r.Email) {
		return ErrInvalidEmail
	}
	if strings.TrimSpace(r.Phone) == "" {
		return ErrInvalidPhone
	}
	if strings.TrimSpace(r.Operator) == "" {
		return ErrMissingOperator
	}
	if r.Priority < 1 || r.Priority > 5 {
		return ErrInvalidPriority
	}
	return nil
}

// Fields flattens the record into ordered key/value pairs, omitting empty
// values. Used by the form relay and email fallbacks.
func (r LeadRecord) Fields() [][2]string {
	fields := [][2]string{
		{"name", r.Name},
		{"email", r.Email},
		{"phone", r.Phone},
		{"operator", r.Operator},
		{"subject", r.Subject},
		{"message", r.Message},
		{"status", string(r.Status)},
		{"priority", itoa(r.Priority)},
	}
	if m := r.Metadata; !m.Empty() {
		fields = append(fields,
			[2]string{"source_page", m.SourcePage},
			[2]string{"user_agent", m.UserAgent},
			[2]string{"utm_source", m.UTMSource},
			[2]string{"utm_medium", m.UTMMedium},
			[2]string{"utm_campaign", m.UTMCampaign},
			[2]string{"client_ip", m.ClientIP},
		)
	}
	out := fields[:0]
	for _, f := range fields {
		if strings.TrimSpace(f[1]) != "" {
			out = append(out, f)
		}
	}
	return out
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaskEmail hides most of the local part for logging.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
