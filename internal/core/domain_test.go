package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDealProfit(t *testing.T) {
	d := Deal{
		Reserve: dec("500"),
		VSC:     dec("300"),
		GAP:     dec("-25.50"),
		TW:      dec("0"),
		Tricare: dec("10.25"),
		Key:     dec("1"),
	}
	assert.True(t, d.Profit().Equal(dec("785.75")), "got %s", d.Profit())
}

func TestDealSold(t *testing.T) {
	d := Deal{VSC: dec("0.01"), GAP: dec("0"), TW: dec("-100"), Tricare: dec("5"), Key: decimal.Zero}

	assert.True(t, d.Sold(ProductVSC))
	assert.False(t, d.Sold(ProductGAP), "zero is not sold")
	assert.False(t, d.Sold(ProductTW), "negative is not sold")
	assert.True(t, d.Sold(ProductTricare))
	assert.False(t, d.Sold(ProductKey))
}

func TestProductKeys(t *testing.T) {
	keys := make([]string, len(Products))
	for i, p := range Products {
		keys[i] = p.SoldKey()
	}
	assert.Equal(t, []string{"vsc_sold", "gap_sold", "tw_sold", "tricare_sold", "key_sold"}, keys)
	assert.Equal(t, "VSC", ProductVSC.Label())
	assert.Equal(t, "Tricare", ProductTricare.Label())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-10")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, 1, 10), d)
	assert.Equal(t, "2024-01-10", d.String())

	_, err = ParseDate("10/01/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)

	// year 1 is the zero time, which reads as "unset"
	for _, s := range []string{"0001-01-01", "1899-12-31"} {
		_, err = ParseDate(s)
		assert.ErrorIs(t, err, ErrInvalidDate, s)
	}
	d, err = ParseDate("1900-01-01")
	require.NoError(t, err)
	assert.False(t, d.IsEmpty())

	assert.Equal(t, "", Date{}.String())
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "0"},
		{in: "500", want: "500"},
		{in: " 12.50 ", want: "12.5"},
		{in: "-75.25", want: "-75.25"},
		{in: "12.345", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "100000000", wantErr: true},
		{in: "99999999.99", want: "99999999.99"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
		})
	}
}

func TestDealFormDeal(t *testing.T) {
	form := DealForm{
		StockNumber: " A100 ",
		DealDate:    "2024-01-10",
		LastName:    "Smith",
		ManagerID:   "3",
		Reserve:     "500",
		VSC:         "300.00",
	}

	d, err := form.Deal()
	require.NoError(t, err)
	assert.Equal(t, "A100", d.StockNumber)
	assert.Equal(t, NewDate(2024, 1, 10), d.DealDate)
	assert.Equal(t, int64(3), d.Manager.ID)
	assert.True(t, d.Profit().Equal(dec("800")))
	assert.True(t, d.Key.IsZero())
}

func TestDealFormValidation(t *testing.T) {
	form := DealForm{
		DealDate:  "2024-13-01",
		LastName:  "Smith",
		ManagerID: "x",
		Reserve:   "12.345",
	}

	_, err := form.Deal()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
	assert.Equal(t, "This field is required.", ve.Fields["stock_number"])
	assert.Contains(t, ve.Fields, "deal_date")
	assert.Contains(t, ve.Fields, "manager")
	assert.Contains(t, ve.Fields, "reserve")
	assert.NotContains(t, ve.Fields, "last_name")
}

func TestDealFormRejectsZeroDate(t *testing.T) {
	form := DealForm{StockNumber: "A1", DealDate: "0001-01-01", LastName: "Smith", ManagerID: "1"}

	_, err := form.Deal()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
	assert.Equal(t, dateMessage, ve.Fields["deal_date"])
	assert.Len(t, ve.Fields, 1)
}

func TestNewDealFormRoundTrip(t *testing.T) {
	d := Deal{
		StockNumber: "B200",
		DealDate:    NewDate(2024, 2, 15),
		LastName:    "Jones",
		Manager:     Manager{ID: 2, Name: "M2"},
		Reserve:     dec("200"),
	}
	back, err := NewDealForm(d).Deal()
	require.NoError(t, err)
	assert.Equal(t, d.StockNumber, back.StockNumber)
	assert.Equal(t, d.DealDate, back.DealDate)
	assert.Equal(t, int64(2), back.Manager.ID)
	assert.True(t, back.Reserve.Equal(d.Reserve))
}

func TestReportFormFilter(t *testing.T) {
	f, err := ReportForm{StartDate: "2024-01-01", EndDate: "2024-01-31", Managers: []string{"1", "4"}}.Filter()
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, 1, 1), f.Start)
	assert.Equal(t, NewDate(2024, 1, 31), f.End)
	assert.Equal(t, []int64{1, 4}, f.Managers)

	empty, err := ReportForm{}.Filter()
	require.NoError(t, err)
	assert.True(t, empty.Start.IsEmpty())
	assert.True(t, empty.End.IsEmpty())
	assert.Empty(t, empty.Managers)

	_, err = ReportForm{StartDate: "yesterday", Managers: []string{"one"}}.Filter()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "start_date")
	assert.Contains(t, ve.Fields, "managers")
}

func TestReportFormFilterRejectsZeroDate(t *testing.T) {
	for _, form := range []ReportForm{
		{EndDate: "0001-01-01"},
		{StartDate: "0001-01-01", EndDate: "2024-01-31"},
	} {
		_, err := form.Filter()
		var ve *ValidationError
		require.True(t, errors.As(err, &ve), "form %+v: want ValidationError, got %v", form, err)
		if form.StartDate != "" {
			assert.Equal(t, dateMessage, ve.Fields["start_date"])
		} else {
			assert.Equal(t, dateMessage, ve.Fields["end_date"])
		}
	}
}

func TestManagerForm(t *testing.T) {
	m, err := ManagerForm{Name: "  Dana  "}.Manager()
	require.NoError(t, err)
	assert.Equal(t, "Dana", m.Name)

	_, err = ManagerForm{Name: "   "}.Manager()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "This field is required.", ve.Fields["name"])
}
