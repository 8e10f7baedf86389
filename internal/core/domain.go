package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the textual form of a deal date in forms, search and exports.
const DateLayout = "2006-01-02"

// MinDateYear is the earliest year a deal or report date may carry. The zero
// time.Time means "unset", so year 1 must never parse as a real date.
const MinDateYear = 1900

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

const (
	ProductVSC     Product = "vsc"
	ProductGAP     Product = "gap"
	ProductTW      Product = "tw"
	ProductTricare Product = "tricare"
	ProductKey     Product = "key"
)

// Products lists the add-on products tracked on every deal, in report order.
var Products = []Product{ProductVSC, ProductGAP, ProductTW, ProductTricare, ProductKey}

type (
	// Product is one of the add-on financial products sold with a car.
	Product string

	// SyncStatus tracks whether a deal has been mirrored to the spreadsheet.
	SyncStatus string

	Date struct {
		time.Time
	}

	Manager struct {
		ID   int64
		Name string
	}

	// Deal is a single vehicle sale with its profit line items.
	// Fields tagged with `field` make up the exported attribute list, in order.
	Deal struct {
		ID          int64           `field:"id"`
		StockNumber string          `field:"stock_number"`
		DealDate    Date            `field:"deal_date"`
		LastName    string          `field:"last_name"`
		Manager     Manager         `field:"manager"`
		Reserve     decimal.Decimal `field:"reserve"`
		VSC         decimal.Decimal `field:"vsc"`
		GAP         decimal.Decimal `field:"gap"`
		TW          decimal.Decimal `field:"tw"`
		Tricare     decimal.Decimal `field:"tricare"`
		Key         decimal.Decimal `field:"key"`

		Version    int64
		UpdatedBy  string
		SyncStatus SyncStatus
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	User struct {
		ID           int64
		Username     string
		PasswordHash string
	}
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string no earlier than MinDateYear.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil || t.Year() < MinDateYear {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// IsEmpty reports whether the date was left unset.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (m Manager) String() string {
	return m.Name
}

// Amount returns the deal's value for product p.
func (d Deal) Amount(p Product) decimal.Decimal {
	switch p {
	case ProductVSC:
		return d.VSC
	case ProductGAP:
		return d.GAP
	case ProductTW:
		return d.TW
	case ProductTricare:
		return d.Tricare
	case ProductKey:
		return d.Key
	}
	return decimal.Zero
}

// Profit is the reserve plus every product amount.
func (d Deal) Profit() decimal.Decimal {
	total := d.Reserve
	for _, p := range Products {
		total = total.Add(d.Amount(p))
	}
	return total
}

// Sold reports whether product p counts as sold on this deal.
// Zero and negative amounts (refunds) are not sold.
func (d Deal) Sold(p Product) bool {
	return d.Amount(p).IsPositive()
}

// SoldKey is the name used for a product's sold count in reports.
func (p Product) SoldKey() string {
	return string(p) + "_sold"
}

// Label is the display name of the product.
func (p Product) Label() string {
	switch p {
	case ProductVSC, ProductGAP, ProductTW:
		return strings.ToUpper(string(p))
	case ProductTricare:
		return "Tricare"
	case ProductKey:
		return "Key"
	}
	return string(p)
}
