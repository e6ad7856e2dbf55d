// Package fees reconciles fee structures against payment records.
package fees

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"campusportal/internal/model"
)

type Status string

const (
	StatusPaid    Status = "paid"
	StatusPartial Status = "partial"
	StatusUnpaid  Status = "unpaid"
)

type Reconciled struct {
	Component     model.FeeComponent `json:"component"`
	Category      string             `json:"category"`
	TotalPaid     decimal.Decimal    `json:"total_paid"`
	PendingAmount decimal.Decimal    `json:"pending_amount"`
	// Overpaid is the paid amount beyond the component total. TotalPaid is
	// capped so TotalPaid + PendingAmount always equals the total.
	Overpaid decimal.Decimal `json:"overpaid"`
	Status   Status          `json:"status"`
	// CategoryMismatch is set when an explicit category disagrees with the
	// category the component name suggests.
	CategoryMismatch bool `json:"category_mismatch,omitempty"`
}

type CategoryTotal struct {
	Category      string          `json:"category"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
}

type Summary struct {
	Fees              []Reconciled    `json:"fees"`
	Categories        []CategoryTotal `json:"categories"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	TotalPaid         decimal.Decimal `json:"total_paid"`
	PendingAmount     decimal.Decimal `json:"pending_amount"`
	SkippedComponents int             `json:"skipped_components"`
	SkippedPayments   int             `json:"skipped_payments"`
}

var validate = validator.New()

func Reconcile(components []model.FeeComponent, payments []model.Payment) Summary {
	return DefaultClassifier().Reconcile(components, payments)
}

// Reconcile sums paid payments per component. Components without an ID or
// name or with a negative total are skipped, as are payments with a negative
// amount, an unknown status, or a component that is not in the list.
func (c *Classifier) Reconcile(components []model.FeeComponent, payments []model.Payment) Summary {
	summary := Summary{
		Fees:       []Reconciled{},
		Categories: []CategoryTotal{},
	}

	index := make(map[string]int, len(components))
	var valid []model.FeeComponent
	for _, comp := range components {
		if validate.Struct(comp) != nil || comp.TotalAmount.IsNegative() {
			summary.SkippedComponents++
			continue
		}
		if _, dup := index[comp.ID]; dup {
			summary.SkippedComponents++
			continue
		}
		index[comp.ID] = len(valid)
		valid = append(valid, comp)
	}

	paid := make([]decimal.Decimal, len(valid))
	for _, p := range payments {
		i, known := index[p.FeeComponentID]
		if !known || !p.Status.Valid() || p.Amount.IsNegative() {
			summary.SkippedPayments++
			continue
		}
		if p.Status == model.PaymentPaid {
			paid[i] = paid[i].Add(p.Amount)
		}
	}

	categories := make(map[string]int)
	for i, comp := range valid {
		fee := c.reconcileOne(comp, paid[i])
		summary.Fees = append(summary.Fees, fee)

		j, ok := categories[fee.Category]
		if !ok {
			j = len(summary.Categories)
			categories[fee.Category] = j
			summary.Categories = append(summary.Categories, CategoryTotal{Category: fee.Category})
		}
		ct := &summary.Categories[j]
		ct.TotalAmount = ct.TotalAmount.Add(comp.TotalAmount)
		ct.TotalPaid = ct.TotalPaid.Add(fee.TotalPaid)
		ct.PendingAmount = ct.PendingAmount.Add(fee.PendingAmount)

		summary.TotalAmount = summary.TotalAmount.Add(comp.TotalAmount)
		summary.TotalPaid = summary.TotalPaid.Add(fee.TotalPaid)
		summary.PendingAmount = summary.PendingAmount.Add(fee.PendingAmount)
	}
	return summary
}

func (c *Classifier) reconcileOne(comp model.FeeComponent, paid decimal.Decimal) Reconciled {
	fee := Reconciled{Component: comp, TotalPaid: paid}

	inferred := c.Infer(comp.Name)
	if explicit := normalizeCategory(comp.Category); explicit != "" {
		fee.Category = explicit
		fee.CategoryMismatch = inferred != CategoryOther && inferred != explicit
	} else {
		fee.Category = inferred
	}

	if paid.GreaterThan(comp.TotalAmount) {
		fee.Overpaid = paid.Sub(comp.TotalAmount)
		fee.TotalPaid = comp.TotalAmount
	}
	fee.PendingAmount = comp.TotalAmount.Sub(fee.TotalPaid)

	switch {
	case !fee.PendingAmount.IsPositive():
		fee.Status = StatusPaid
	case fee.TotalPaid.IsPositive():
		fee.Status = StatusPartial
	default:
		fee.Status = StatusUnpaid
	}
	return fee
}
