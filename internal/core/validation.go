package core

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	maxAmountDecimals = 2
	maxAmountDigits   = 10
)

var (
	validate = newValidator()

	maxAmount = decimal.New(1, maxAmountDigits-maxAmountDecimals)

	dateMessage = fmt.Sprintf("Enter a valid date (YYYY-MM-DD) from %d onwards.", MinDateYear)
)

// ValidationError carries field-level messages keyed by form field name.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	ve := &ValidationError{Fields: map[string]string{}}
	ve.Add(field, message)
	return ve
}

// Add records a message for field, keeping the first one.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		if s == "" {
			return true
		}
		_, err := ParseAmount(s)
		return err == nil
	}); err != nil {
		panic(fmt.Sprintf("register amount validation: %v", err))
	}
	if err := v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(fmt.Sprintf("register date validation: %v", err))
	}
	return v
}

// ParseAmount parses a signed monetary amount with at most two decimals.
// An empty string is zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Exponent() < -maxAmountDecimals {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func checkStruct(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate form: %w", err)
	}
	ve := &ValidationError{Fields: map[string]string{}}
	for _, fe := range verrs {
		field := fe.Field()
		// dive errors are reported as name[i]; group them under the field
		if i := strings.IndexByte(field, '['); i > 0 {
			field = field[:i]
		}
		ve.Add(field, fieldMessage(fe))
	}
	return ve
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "date":
		return dateMessage
	case "amount":
		return fmt.Sprintf("Enter a number with at most %d digits and %d decimal places.", maxAmountDigits, maxAmountDecimals)
	case "number":
		return "Select a valid choice."
	default:
		return "Enter a valid value."
	}
}

// DealForm is the raw create/update input for a deal.
type DealForm struct {
	StockNumber string `form:"stock_number" validate:"required,max=50"`
	DealDate    string `form:"deal_date" validate:"required,date"`
	LastName    string `form:"last_name" validate:"required,max=100"`
	ManagerID   string `form:"manager" validate:"required,number"`
	Reserve     string `form:"reserve" validate:"omitempty,amount"`
	VSC         string `form:"vsc" validate:"omitempty,amount"`
	GAP         string `form:"gap" validate:"omitempty,amount"`
	TW          string `form:"tw" validate:"omitempty,amount"`
	Tricare     string `form:"tricare" validate:"omitempty,amount"`
	Key         string `form:"key" validate:"omitempty,amount"`
}

// NewDealForm fills a form from an existing deal.
func NewDealForm(d Deal) DealForm {
	return DealForm{
		StockNumber: d.StockNumber,
		DealDate:    d.DealDate.String(),
		LastName:    d.LastName,
		ManagerID:   strconv.FormatInt(d.Manager.ID, 10),
		Reserve:     d.Reserve.StringFixed(2),
		VSC:         d.VSC.StringFixed(2),
		GAP:         d.GAP.StringFixed(2),
		TW:          d.TW.StringFixed(2),
		Tricare:     d.Tricare.StringFixed(2),
		Key:         d.Key.StringFixed(2),
	}
}

// Deal validates the form and binds it into a Deal.
// The manager is referenced by id only; existence is checked by the caller.
func (f DealForm) Deal() (Deal, error) {
	f.StockNumber = strings.TrimSpace(f.StockNumber)
	f.LastName = strings.TrimSpace(f.LastName)
	if err := checkStruct(f); err != nil {
		return Deal{}, err
	}

	date, err := ParseDate(f.DealDate)
	if err != nil {
		return Deal{}, NewValidationError("deal_date", dateMessage)
	}
	managerID, err := strconv.ParseInt(f.ManagerID, 10, 64)
	if err != nil {
		return Deal{}, NewValidationError("manager", "Select a valid choice.")
	}

	d := Deal{
		StockNumber: f.StockNumber,
		DealDate:    date,
		LastName:    f.LastName,
		Manager:     Manager{ID: managerID},
	}
	// amounts were checked by the amount validation above
	d.Reserve, _ = ParseAmount(f.Reserve)
	d.VSC, _ = ParseAmount(f.VSC)
	d.GAP, _ = ParseAmount(f.GAP)
	d.TW, _ = ParseAmount(f.TW)
	d.Tricare, _ = ParseAmount(f.Tricare)
	d.Key, _ = ParseAmount(f.Key)
	return d, nil
}

// ReportForm is the raw report filter input.
type ReportForm struct {
	StartDate string   `form:"start_date" validate:"omitempty,date"`
	EndDate   string   `form:"end_date" validate:"omitempty,date"`
	Managers  []string `form:"managers" validate:"dive,number"`
}

// Filter validates the form and binds it into a ReportFilter.
func (f ReportForm) Filter() (ReportFilter, error) {
	if err := checkStruct(f); err != nil {
		return ReportFilter{}, err
	}
	var filter ReportFilter
	var err error
	if strings.TrimSpace(f.StartDate) != "" {
		if filter.Start, err = ParseDate(f.StartDate); err != nil {
			return ReportFilter{}, NewValidationError("start_date", dateMessage)
		}
	}
	if strings.TrimSpace(f.EndDate) != "" {
		if filter.End, err = ParseDate(f.EndDate); err != nil {
			return ReportFilter{}, NewValidationError("end_date", dateMessage)
		}
	}
	for _, m := range f.Managers {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return ReportFilter{}, NewValidationError("managers", "Select a valid choice.")
		}
		filter.Managers = append(filter.Managers, id)
	}
	return filter, nil
}

// Selected reports whether manager id is part of the submitted selection.
func (f ReportForm) Selected(id int64) bool {
	s := strconv.FormatInt(id, 10)
	for _, m := range f.Managers {
		if m == s {
			return true
		}
	}
	return false
}

type ManagerForm struct {
	Name string `form:"name" validate:"required,max=100"`
}

// Manager validates the form and binds it into a Manager.
func (f ManagerForm) Manager() (Manager, error) {
	f.Name = strings.TrimSpace(f.Name)
	if err := checkStruct(f); err != nil {
		return Manager{}, err
	}
	return Manager{Name: f.Name}, nil
}

type LoginForm struct {
	Username string `form:"username" validate:"required,max=150"`
	Password string `form:"password" validate:"required"`
	Next     string `form:"next"`
}

// Validate checks the login form fields.
func (f LoginForm) Validate() error {
	return checkStruct(f)
}
