package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// InvoiceRecord is the structured content of one medical-imaging invoice.
// Field names on the wire follow the keys the extraction prompt asks for.
type InvoiceRecord struct {
	OrderNumber string        `json:"orden_servicio"` // Business key used for deduplication
	Date        string        `json:"fecha"`          // As printed on the invoice
	Hospital    string        `json:"hospital"`
	PatientName string        `json:"patient_name"`
	PatientID   string        `json:"patient_id"` // Digits only after normalization, at most 10
	Age         string        `json:"age"`
	Sex         string        `json:"sex"`
	Entity      string        `json:"eps"`  // EPS / insurer name
	Plan        string        `json:"plan"` // Used when the EPS is missing
	Services    []ServiceLine `json:"services"`
}

// ServiceLine is one billed study.
type ServiceLine struct {
	Code        string       `json:"code"`
	Description string       `json:"description"`
	Value       ServiceValue `json:"value"`
}

// ServiceValue holds a monetary amount as the model produced it (string or number)
// and, once normalized, as whole pesos.
type ServiceValue struct {
	Raw        string
	Pesos      int64
	Normalized bool
}

// RawValue builds an unnormalized value from model output text.
func RawValue(raw string) ServiceValue {
	return ServiceValue{Raw: raw}
}

// PesosValue builds an already normalized value.
func PesosValue(pesos int64) ServiceValue {
	return ServiceValue{Raw: strconv.FormatInt(pesos, 10), Pesos: pesos, Normalized: true}
}

func (v *ServiceValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ServiceValue{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("service value: %w", err)
		}
		*v = ServiceValue{Raw: s}
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("service value must be a string or number: %w", err)
	}
	*v = ServiceValue{Raw: strconv.FormatFloat(f, 'f', -1, 64)}
	return nil
}

func (v ServiceValue) MarshalJSON() ([]byte, error) {
	if v.Normalized {
		return []byte(strconv.FormatInt(v.Pesos, 10)), nil
	}
	return json.Marshal(v.Raw)
}

func (v ServiceValue) String() string {
	if v.Normalized {
		return strconv.FormatInt(v.Pesos, 10)
	}
	return v.Raw
}

// LedgerRow is one materialized spreadsheet row, derived from a surviving service line.
type LedgerRow struct {
	Date      string
	Name      string
	ID        string
	Entity    string
	Study     string
	Cost      int64
	FinalCost float64 // Cost after the fixed discount
	Notes     string
}

// Cells returns the row values in ledger column order.
func (r LedgerRow) Cells() []interface{} {
	return []interface{}{r.Date, r.Name, r.ID, r.Entity, r.Study, r.Cost, r.FinalCost, r.Notes}
}

// DedupRecord is the persisted proof that an order number was processed.
type DedupRecord struct {
	ID             int64     `json:"id"`
	OrderNumber    string    `json:"orden_servicio"`
	PatientName    string    `json:"patient_name"`
	PatientID      string    `json:"patient_id"`
	ProcessedAt    time.Time `json:"processed_date"`
	LedgerRowCount int       `json:"excel_row_count"`
	ImagePath      string    `json:"image_path,omitempty"`
	Services       []string  `json:"services"` // "code: description" summaries
}
