package dataset

import (
	"context"
	"slices"

	"github.com/liamcoop/cellrules/rules"
	"github.com/liamcoop/cellrules/table"
)

// PaymentStatus is the processing state of a payment
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusSuccess    PaymentStatus = "success"
	StatusFailed     PaymentStatus = "failed"
)

// Payment is one row of the payments dataset
type Payment struct {
	ID     string        `json:"id"`
	Amount float64       `json:"amount"`
	Status PaymentStatus `json:"status"`
	Email  string        `json:"email"`
}

// PaymentSchema is the column layout of the payments dataset
var PaymentSchema = Schema{
	{Name: "id", Title: "ID", Type: TypeString},
	{Name: "status", Title: "Status", Type: TypeString},
	{Name: "email", Title: "Email", Type: TypeString},
	{Name: "amount", Title: "Amount", Type: TypeNumber},
}

// Row converts p to a table row keyed by PaymentSchema names
func (p Payment) Row() table.Row {
	return table.Row{
		"id":     rules.StringValue(p.ID),
		"status": rules.StringValue(string(p.Status)),
		"email":  rules.StringValue(p.Email),
		"amount": rules.NumberValue(p.Amount),
	}
}

// SamplePayments is the built-in dataset used when no database is configured
var SamplePayments = []Payment{
	{ID: "m5gr84i9", Amount: 316, Status: StatusSuccess, Email: "ken99@example.com"},
	{ID: "3u1reuv4", Amount: 242, Status: StatusSuccess, Email: "Abe45@example.com"},
	{ID: "derv1ws0", Amount: 837, Status: StatusProcessing, Email: "Monserrat44@example.com"},
	{ID: "5kma53ae", Amount: 874, Status: StatusSuccess, Email: "Silas22@example.com"},
	{ID: "bhqecj4p", Amount: 721, Status: StatusFailed, Email: "carmella@example.com"},
	{ID: "x9pl2kq7", Amount: 450, Status: StatusSuccess, Email: "johndoe@example.com"},
	{ID: "w3n8zv6y", Amount: 123, Status: StatusFailed, Email: "janedoe@example.com"},
	{ID: "t7q4m1x9", Amount: 678, Status: StatusProcessing, Email: "alice@example.com"},
	{ID: "v5r2k8m3", Amount: 910, Status: StatusSuccess, Email: "bob@example.com"},
	{ID: "y2n6x4q8", Amount: 345, Status: StatusFailed, Email: "charlie@example.com"},
	{ID: "z8m3k5r2", Amount: 789, Status: StatusProcessing, Email: "dave@example.com"},
	{ID: "p4q7x9m1", Amount: 234, Status: StatusSuccess, Email: "eve@example.com"},
	{ID: "k9m2r5x8", Amount: 567, Status: StatusFailed, Email: "frank@example.com"},
	{ID: "q8x4m7r2", Amount: 890, Status: StatusProcessing, Email: "grace@example.com"},
	{ID: "m1r5k9x2", Amount: 432, Status: StatusSuccess, Email: "hank@example.com"},
}

// PaymentsSource serves a fixed list of payments
type PaymentsSource struct {
	payments []Payment
}

// NewPaymentsSource creates a source over payments; nil means SamplePayments
func NewPaymentsSource(payments []Payment) *PaymentsSource {
	if payments == nil {
		payments = SamplePayments
	}
	return &PaymentsSource{payments: payments}
}

func (s *PaymentsSource) Schema() Schema {
	return slices.Clone(PaymentSchema)
}

func (s *PaymentsSource) Rows(ctx context.Context) ([]table.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := make([]table.Row, len(s.payments))
	for i, p := range s.payments {
		rows[i] = p.Row()
	}
	return rows, nil
}
