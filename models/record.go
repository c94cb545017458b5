package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

type RecordKind string

const (
	RecordKindOrder    RecordKind = "order"
	RecordKindCustomer RecordKind = "customer"
	RecordKindInvoice  RecordKind = "invoice"
)

// Collection names used by the local store and by the remote tables.
const (
	CollectionOrders    = "orders"
	CollectionCustomers = "customers"
	CollectionInvoices  = "invoices"
	CollectionSyncQueue = "sync_queue"
)

var RecordKinds = []RecordKind{RecordKindOrder, RecordKindCustomer, RecordKindInvoice}

func (k RecordKind) Collection() string {
	switch k {
	case RecordKindOrder:
		return CollectionOrders
	case RecordKindCustomer:
		return CollectionCustomers
	case RecordKindInvoice:
		return CollectionInvoices
	}
	return ""
}

func KindForCollection(collection string) (RecordKind, bool) {
	switch collection {
	case CollectionOrders:
		return RecordKindOrder, true
	case CollectionCustomers:
		return RecordKindCustomer, true
	case CollectionInvoices:
		return RecordKindInvoice, true
	}
	return "", false
}

// RecordEnvelope carries the sync bookkeeping shared by every record kind.
// The ID is generated locally (uuid) and never changes; the document number
// is assigned exactly once by the central store.
type RecordEnvelope struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id" validate:"required"`
	ShopId         string     `gorm:"index;size:64;not null" json:"shop_id" validate:"required"`
	SyncStatus     SyncStatus `gorm:"index;size:10" json:"sync_status"`
	IsOffline      bool       `json:"is_offline"`
	SyncedAt       *time.Time `json:"synced_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastModifiedAt time.Time  `gorm:"index" json:"last_modified_at"`
}

func newEnvelope(shopId string) RecordEnvelope {
	now := time.Now()
	return RecordEnvelope{
		ID:             uuid.NewString(),
		ShopId:         shopId,
		SyncStatus:     SyncStatusPending,
		IsOffline:      true,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
}

type Order struct {
	RecordEnvelope
	OrderNumber    *int64          `json:"order_number"`
	CustomerName   string          `gorm:"size:255" json:"customer_name" validate:"required"`
	CustomerId     string          `gorm:"size:36" json:"customer_id"`
	JobDescription string          `gorm:"type:text" json:"job_description"`
	Quantity       int             `json:"quantity" validate:"gte=0"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,6)" json:"unit_price"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,6)" json:"total_amount"`
	DueDate        *time.Time      `json:"due_date"`
	Status         string          `gorm:"size:30" json:"status" validate:"omitempty,oneof=draft in_production ready delivered cancelled"`
}

type Customer struct {
	RecordEnvelope
	CustomerNumber *int64 `json:"customer_number"`
	Name           string `gorm:"size:255" json:"name" validate:"required"`
	Company        string `gorm:"size:255" json:"company"`
	Email          string `gorm:"size:255" json:"email" validate:"omitempty,email"`
	Phone          string `gorm:"size:50" json:"phone"`
	Notes          string `gorm:"type:text" json:"notes"`
}

type Invoice struct {
	RecordEnvelope
	InvoiceNumber *int64          `json:"invoice_number"`
	OrderId       string          `gorm:"index;size:36" json:"order_id"`
	CustomerName  string          `gorm:"size:255" json:"customer_name"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,6)" json:"subtotal"`
	VatAmount     decimal.Decimal `gorm:"type:decimal(20,6)" json:"vat_amount"`
	TotalWithVat  decimal.Decimal `gorm:"type:decimal(20,6)" json:"total_with_vat"`
	IssuedAt      *time.Time      `json:"issued_at"`
	IsPaid        bool            `json:"is_paid"`
}

// Record is the tagged union handed around by the sync layer: exactly one
// of the payload pointers is set, matching Kind.
type Record struct {
	Kind     RecordKind
	Order    *Order
	Customer *Customer
	Invoice  *Invoice
}

func NewOrderRecord(shopId string, order Order) Record {
	order.RecordEnvelope = newEnvelope(shopId)
	return Record{Kind: RecordKindOrder, Order: &order}
}

func NewCustomerRecord(shopId string, customer Customer) Record {
	customer.RecordEnvelope = newEnvelope(shopId)
	return Record{Kind: RecordKindCustomer, Customer: &customer}
}

func NewInvoiceRecord(shopId string, invoice Invoice) Record {
	invoice.RecordEnvelope = newEnvelope(shopId)
	return Record{Kind: RecordKindInvoice, Invoice: &invoice}
}

func (r Record) Envelope() *RecordEnvelope {
	switch r.Kind {
	case RecordKindOrder:
		if r.Order != nil {
			return &r.Order.RecordEnvelope
		}
	case RecordKindCustomer:
		if r.Customer != nil {
			return &r.Customer.RecordEnvelope
		}
	case RecordKindInvoice:
		if r.Invoice != nil {
			return &r.Invoice.RecordEnvelope
		}
	}
	return nil
}

// DocumentNumber returns the authoritative human-facing number, nil until
// the central store has assigned one.
func (r Record) DocumentNumber() *int64 {
	switch r.Kind {
	case RecordKindOrder:
		if r.Order != nil {
			return r.Order.OrderNumber
		}
	case RecordKindCustomer:
		if r.Customer != nil {
			return r.Customer.CustomerNumber
		}
	case RecordKindInvoice:
		if r.Invoice != nil {
			return r.Invoice.InvoiceNumber
		}
	}
	return nil
}

func (r Record) SetDocumentNumber(n int64) {
	switch r.Kind {
	case RecordKindOrder:
		if r.Order != nil {
			r.Order.OrderNumber = &n
		}
	case RecordKindCustomer:
		if r.Customer != nil {
			r.Customer.CustomerNumber = &n
		}
	case RecordKindInvoice:
		if r.Invoice != nil {
			r.Invoice.InvoiceNumber = &n
		}
	}
}

// MarkSynced flips the envelope to the post-upload state. IsOffline is
// cleared permanently on first successful sync.
func (r Record) MarkSynced(at time.Time) {
	env := r.Envelope()
	if env == nil {
		return
	}
	env.SyncStatus = SyncStatusSynced
	env.IsOffline = false
	env.SyncedAt = &at
}

func (r Record) MarkFailed() {
	env := r.Envelope()
	if env == nil {
		return
	}
	env.SyncStatus = SyncStatusFailed
}

// Touch records a local mutation: the record becomes dirty again and is
// picked up by the next reconciliation pass.
func (r Record) Touch(at time.Time) {
	env := r.Envelope()
	if env == nil {
		return
	}
	env.SyncStatus = SyncStatusPending
	env.LastModifiedAt = at
}

var validate = validator.New()

// Validate checks the union is well-formed and the payload passes the
// boundary schema. Remote rows are validated once here, not re-checked at
// every read site.
func (r Record) Validate() error {
	var payload any
	switch r.Kind {
	case RecordKindOrder:
		payload = r.Order
	case RecordKindCustomer:
		payload = r.Customer
	case RecordKindInvoice:
		payload = r.Invoice
	default:
		return fmt.Errorf("unknown record kind %q", r.Kind)
	}
	if payload == nil || r.Envelope() == nil {
		return fmt.Errorf("record kind %q has no payload", r.Kind)
	}
	return validate.Struct(payload)
}

func (r Record) MarshalPayload() ([]byte, error) {
	switch r.Kind {
	case RecordKindOrder:
		return json.Marshal(r.Order)
	case RecordKindCustomer:
		return json.Marshal(r.Customer)
	case RecordKindInvoice:
		return json.Marshal(r.Invoice)
	}
	return nil, fmt.Errorf("unknown record kind %q", r.Kind)
}

// DecodeRecord rebuilds the union from a JSON payload of the given kind.
func DecodeRecord(kind RecordKind, payload []byte) (Record, error) {
	switch kind {
	case RecordKindOrder:
		var order Order
		if err := json.Unmarshal(payload, &order); err != nil {
			return Record{}, err
		}
		return Record{Kind: kind, Order: &order}, nil
	case RecordKindCustomer:
		var customer Customer
		if err := json.Unmarshal(payload, &customer); err != nil {
			return Record{}, err
		}
		return Record{Kind: kind, Customer: &customer}, nil
	case RecordKindInvoice:
		var invoice Invoice
		if err := json.Unmarshal(payload, &invoice); err != nil {
			return Record{}, err
		}
		return Record{Kind: kind, Invoice: &invoice}, nil
	}
	return Record{}, fmt.Errorf("unknown record kind %q", kind)
}
