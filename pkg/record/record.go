package record

import (
	"strconv"
	"strings"
)

// Collection names as stored by the backend.
const (
	CollectionOrders        = "successOrders"
	CollectionFailedOrders  = "failedOrders"
	CollectionQueries       = "contactFormQueries"
	CollectionMobileQueries = "mobileAppContactFormQueries"
	CollectionProducts      = "products"
	CollectionUsers         = "users"
	CollectionDiscountCodes = "discountCodes"
	CollectionCredentials   = "credentials"
)

// Record is the part of a typed document the view pipeline and the
// mutation gateway reason about. Everything else is opaque payload.
type Record interface {
	RecordID() string
	RecordStatus() Status
	Created() Timestamp
	IsDeleted() bool
	// SearchFields lists the values matched by free-text search.
	SearchFields() []string
}

// Customer is the contact block attached to an order.
type Customer struct {
	Name  string `mapstructure:"name" json:"name,omitempty"`
	Email string `mapstructure:"email" json:"email,omitempty"`
	Phone string `mapstructure:"phone" json:"phone,omitempty"`
}

// Payment carries the payment sub-status of an order.
type Payment struct {
	Status string `mapstructure:"status" json:"status,omitempty"`
}

// Order is a document of the successOrders collection.
type Order struct {
	ID          string    `mapstructure:"-" json:"id"`
	OrderNumber string    `mapstructure:"orderNumber" json:"orderNumber,omitempty"`
	Customer    Customer  `mapstructure:"customerInfo" json:"customerInfo"`
	Total       float64   `mapstructure:"total" json:"total"`
	Payment     Payment   `mapstructure:"payment" json:"payment"`
	Status      Status    `mapstructure:"status" json:"status"`
	InvoicePath string    `mapstructure:"invoiceUrl" json:"invoiceUrl,omitempty"`
	CreatedAt   Timestamp `mapstructure:"createdAt" json:"createdAt"`
	UpdatedAt   Timestamp `mapstructure:"updatedAt" json:"updatedAt"`
	Deleted     int       `mapstructure:"deleted" json:"deleted"`
}

func (o Order) RecordID() string     { return o.ID }
func (o Order) RecordStatus() Status { return o.Status }
func (o Order) Created() Timestamp   { return o.CreatedAt }
func (o Order) IsDeleted() bool      { return o.Deleted != 0 }

func (o Order) SearchFields() []string {
	return []string{
		o.Number(),
		o.Customer.Name,
		o.Customer.Email,
		o.Customer.Phone,
		formatNumber(o.Total),
	}
}

// Number is the human order number, falling back to the document id.
func (o Order) Number() string {
	if o.OrderNumber != "" {
		return o.OrderNumber
	}
	return o.ID
}

// PaymentStatus defaults to pending when the payment block is empty.
func (o Order) PaymentStatus() string {
	if o.Payment.Status == "" {
		return "pending"
	}
	return o.Payment.Status
}

// Query is a customer contact form submission.
type Query struct {
	ID           string    `mapstructure:"-" json:"id"`
	Name         string    `mapstructure:"name" json:"name"`
	Email        string    `mapstructure:"email" json:"email"`
	Phone        string    `mapstructure:"phone" json:"phone"`
	Message      string    `mapstructure:"message" json:"message"`
	UserID       string    `mapstructure:"userId" json:"userId"`
	Status       Status    `mapstructure:"status" json:"status"`
	AdminReply   string    `mapstructure:"adminReply" json:"adminReply,omitempty"`
	AdminReplyAt Timestamp `mapstructure:"adminReplyAt" json:"adminReplyAt"`
	CreatedAt    Timestamp `mapstructure:"createdAt" json:"createdAt"`
	Deleted      int       `mapstructure:"deleted" json:"deleted"`
}

func (q Query) RecordID() string     { return q.ID }
func (q Query) RecordStatus() Status { return q.Status }
func (q Query) Created() Timestamp   { return q.CreatedAt }
func (q Query) IsDeleted() bool      { return q.Deleted != 0 }

func (q Query) SearchFields() []string {
	return []string{q.Name, q.Email, q.Phone}
}

// withDefaults fills the placeholders the console shows for blank fields.
func (q Query) withDefaults() Query {
	if q.Name == "" {
		q.Name = "Unknown"
	}
	if q.Email == "" {
		q.Email = "N/A"
	}
	if q.Phone == "" {
		q.Phone = "-"
	}
	if q.Message == "" {
		q.Message = "No message provided"
	}
	if q.UserID == "" {
		q.UserID = "-"
	}
	if q.Status == "" {
		q.Status = StatusPending
	}
	return q
}

// Product is a catalog item.
type Product struct {
	ID          string    `mapstructure:"-" json:"id"`
	Title       string    `mapstructure:"title" json:"title"`
	Subtitle    string    `mapstructure:"subtitle" json:"subtitle,omitempty"`
	Category    string    `mapstructure:"category" json:"category,omitempty"`
	Status      Status    `mapstructure:"status" json:"status"`
	Price       float64   `mapstructure:"price" json:"price"`
	SKU         string    `mapstructure:"sku" json:"sku,omitempty"`
	Stock       int       `mapstructure:"stock" json:"stock"`
	Ribbon      string    `mapstructure:"ribbon" json:"ribbon,omitempty"`
	Description string    `mapstructure:"description" json:"description,omitempty"`
	Images      []string  `mapstructure:"images" json:"images,omitempty"`
	CreatedAt   Timestamp `mapstructure:"createdAt" json:"createdAt"`
	UpdatedAt   Timestamp `mapstructure:"updatedAt" json:"updatedAt"`
	Deleted     int       `mapstructure:"deleted" json:"deleted"`
}

func (p Product) RecordID() string     { return p.ID }
func (p Product) RecordStatus() Status { return p.Status }
func (p Product) Created() Timestamp   { return p.CreatedAt }
func (p Product) IsDeleted() bool      { return p.Deleted != 0 }

func (p Product) SearchFields() []string {
	return []string{p.Title, p.Category, p.SKU, formatNumber(p.Price)}
}

// Profile is the users document keyed by the identity user id.
type Profile struct {
	UID      string    `mapstructure:"-" json:"uid"`
	Email    string    `mapstructure:"email" json:"email"`
	Name     string    `mapstructure:"name" json:"name,omitempty"`
	PhotoURL string    `mapstructure:"photoURL" json:"photoURL,omitempty"`
	Admin    int       `mapstructure:"admin" json:"admin"`
	Created  Timestamp `mapstructure:"createdAt" json:"createdAt"`
}

// IsAdmin reports the backend supplied admin flag.
func (p Profile) IsAdmin() bool {
	return p.Admin == 1
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Contains reports whether any search field contains term, ignoring case.
// term must already be lower-cased and trimmed.
func Contains(r Record, term string) bool {
	for _, field := range r.SearchFields() {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
