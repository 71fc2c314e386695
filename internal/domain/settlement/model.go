// Package settlement runs the daily archive-and-reset of the accounting cycle.
package settlement

import (
	"time"

	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/payment"
)

// Archive is the immutable record of one settled cycle.
// A date settled more than once gets one archive per run, numbered by Sequence.
type Archive struct {
	ID         id.ID     `json:"id"`
	Date       time.Time `json:"date"`
	Sequence   int       `json:"sequence"`
	ArchivedAt time.Time `json:"archivedAt"`

	Deliveries []*delivery.Delivery    `json:"deliveries"`
	Payments   []*payment.Payment      `json:"payments"`
	Pending    []*payment.PendingEntry `json:"pending"`
	Closings   []Closing               `json:"closings"`
	Summary    Summary                 `json:"summary"`
}

// Closing is the balance of one shop at settlement, carried into the next cycle.
type Closing struct {
	ShopID     id.ID       `json:"shopId"`
	ShopName   string      `json:"shopName"`
	Route      string      `json:"route"`
	Opening    types.Money `json:"opening"`
	Deliveries types.Money `json:"deliveries"`
	Pending    types.Money `json:"pending"`
	Payments   types.Money `json:"payments"`
	Closing    types.Money `json:"closing"`
}

// Summary totals an archive.
type Summary struct {
	Deliveries    int         `json:"deliveries"`
	DeliveryTotal types.Money `json:"deliveryTotal"`
	Payments      int         `json:"payments"`
	PaymentTotal  types.Money `json:"paymentTotal"`
	PendingTotal  types.Money `json:"pendingTotal"`
	Outstanding   types.Money `json:"outstanding"`
	Shops         int         `json:"shops"`
}

func (s Summary) add(o Summary) Summary {
	return Summary{
		Deliveries:    s.Deliveries + o.Deliveries,
		DeliveryTotal: s.DeliveryTotal.Add(o.DeliveryTotal),
		Payments:      s.Payments + o.Payments,
		PaymentTotal:  s.PaymentTotal.Add(o.PaymentTotal),
		PendingTotal:  s.PendingTotal.Add(o.PendingTotal),
		// outstanding is a closing position, the latest run wins
		Outstanding: o.Outstanding,
		Shops:       max(s.Shops, o.Shops),
	}
}

func zeroSummary() Summary {
	return Summary{
		DeliveryTotal: types.Zero(),
		PaymentTotal:  types.Zero(),
		PendingTotal:  types.Zero(),
		Outstanding:   types.Zero(),
	}
}

// IntentStatus tracks a settlement through its write-ahead record.
type IntentStatus string

const (
	IntentStaged  IntentStatus = "staged"
	IntentApplied IntentStatus = "applied"
	IntentAborted IntentStatus = "aborted"
)

// Intent is written before a settlement commits and resolved after it.
// A staged intent found at startup marks a run interrupted by a crash.
type Intent struct {
	ID         id.ID        `db:"id" json:"id"`
	Date       time.Time    `db:"business_date" json:"date"`
	ArchiveID  id.ID        `db:"archive_id" json:"archiveId"`
	Status     IntentStatus `db:"status" json:"status"`
	Error      string       `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
	ResolvedAt *time.Time   `db:"resolved_at" json:"resolvedAt,omitempty"`
}

func (i *Intent) resolve(status IntentStatus, cause error, now time.Time) {
	i.Status = status
	i.ResolvedAt = &now
	if cause != nil {
		i.Error = cause.Error()
	}
}

// Clone returns a copy.
func (i *Intent) Clone() *Intent {
	c := *i
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// State is the engine state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
)

// Status is a snapshot of the engine. A failed run leaves the engine Idle
// with LastError set.
type Status struct {
	State     State      `json:"state"`
	LastDate  *time.Time `json:"lastDate,omitempty"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

// Result is the outcome of Run.
type Result struct {
	Archive *Archive `json:"archive"`

	// AlreadySettled is set when the date was settled and nothing happened since;
	// Archive is then the existing archive and nothing was written.
	AlreadySettled bool `json:"alreadySettled"`
}

// Preview shows what the next settlement would archive.
type Preview struct {
	Date           time.Time `json:"date"`
	AlreadySettled bool      `json:"alreadySettled"`
	NextSequence   int       `json:"nextSequence"`

	ActiveDeliveries  int `json:"activeDeliveries"`
	DeletedDeliveries int `json:"deletedDeliveries"`
	Payments          int `json:"payments"`
	PendingEntries    int `json:"pendingEntries"`

	DeliveryTotal types.Money `json:"deliveryTotal"`
	PaymentTotal  types.Money `json:"paymentTotal"`
	PendingTotal  types.Money `json:"pendingTotal"`
	Outstanding   types.Money `json:"outstanding"`

	PaidShops        int `json:"paidShops"`
	PartialShops     int `json:"partialShops"`
	PendingShops     int `json:"pendingShops"`
	PayTomorrowShops int `json:"payTomorrowShops"`
}

// DailySummary aggregates the archives of one date.
type DailySummary struct {
	Date     time.Time `json:"date"`
	Archives int       `json:"archives"`
	Summary  Summary   `json:"summary"`
}
