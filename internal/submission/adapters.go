package submission

import (
	"context"

	"github.com/wolfman30/insurance-leads-platform/internal/datastore"
	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/internal/notify"
	"github.com/wolfman30/insurance-leads-platform/internal/relay"
)

// Deliverer is one delivery path.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, record leads.LeadRecord) (Receipt, error)
}

// Prober is implemented by deliverers that support a read-only reachability check.
type Prober interface {
	Probe(ctx context.Context) error
}

// DatastoreDeliverer is the primary path: a row insert into the lead store.
type DatastoreDeliverer struct {
	Client *datastore.Client
}

func (d DatastoreDeliverer) Name() string { return "datastore" }

func (d DatastoreDeliverer) Deliver(ctx context.Context, record leads.LeadRecord) (Receipt, error) {
	row, err := d.Client.Insert(ctx, record)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{ID: row.ID}, nil
}

func (d DatastoreDeliverer) Probe(ctx context.Context) error {
	return d.Client.Probe(ctx)
}

// RelayDeliverer posts the lead to the form-to-email relay.
type RelayDeliverer struct {
	Client *relay.Client
}

func (d RelayDeliverer) Name() string { return "relay" }

func (d RelayDeliverer) Deliver(ctx context.Context, record leads.LeadRecord) (Receipt, error) {
	if _, err := d.Client.Send(ctx, record); err != nil {
		return Receipt{}, err
	}
	return Receipt{}, nil
}

// MailDeliverer emails the lead through a configured provider.
type MailDeliverer struct {
	Mailer   *notify.LeadMailer
	Provider string
}

func (d MailDeliverer) Name() string {
	if d.Provider == "" {
		return "email"
	}
	return d.Provider
}

func (d MailDeliverer) Deliver(ctx context.Context, record leads.LeadRecord) (Receipt, error) {
	if err := d.Mailer.Deliver(ctx, record); err != nil {
		return Receipt{}, err
	}
	return Receipt{}, nil
}

var (
	_ Deliverer = DatastoreDeliverer{}
	_ Prober    = DatastoreDeliverer{}
	_ Deliverer = RelayDeliverer{}
	_ Deliverer = MailDeliverer{}
)
