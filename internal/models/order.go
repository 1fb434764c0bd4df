package models

// Order is the gateway's view of a payment intent. It is fetched from the
// payment provider and never persisted locally.
type Order struct {
	ID         string            `json:"id"`
	Entity     string            `json:"entity"`
	Amount     int64             `json:"amount"` // minor currency units (paise)
	AmountPaid int64             `json:"amount_paid"`
	AmountDue  int64             `json:"amount_due"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	Notes      map[string]string `json:"notes,omitempty"`
	CreatedAt  int64             `json:"created_at"`
}

// MajorAmount converts the order amount from minor units to major units.
func (o *Order) MajorAmount() float64 {
	return float64(o.Amount) / 100
}
