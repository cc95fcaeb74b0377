package normalize_test

import (
	"fmt"

	"facturas/internal/normalize"
	"facturas/pkg/models"
)

// Example shows a raw extraction turned into a ledger-ready record.
func Example() {
	raw := &models.InvoiceRecord{
		OrderNumber: "OS-1001",
		PatientName: "MARIA PEREZ",
		PatientID:   "C.C. 1.036.789.123-4",
		Plan:        "SANITAS EVENTO",
		Services: []models.ServiceLine{
			{Code: "881234", Description: "ECOGRAFIA DOPPLER RENAL", Value: models.RawValue("$ 1.836.000,00")},
			{Code: "871121", Description: "RX TORAX", Value: models.RawValue("45.000")},
		},
	}

	rec := normalize.New(nil).Normalize(raw)

	fmt.Println(rec.PatientID)
	fmt.Println(rec.Entity)
	for _, s := range rec.Services {
		fmt.Printf("%s %s %d\n", s.Code, s.Description, s.Value.Pesos)
	}
	// Output:
	// 1036789123
	// SANITAS
	// 881234 DOPPLER RENAL 1836000
}

// ExampleDenoiseValue shows the centavos rule, including its misfire on round amounts.
func ExampleDenoiseValue() {
	for _, raw := range []string{"1836000000", "183.600", "100", "25"} {
		pesos, stripped := normalize.DenoiseValue(raw)
		fmt.Println(raw, pesos, stripped)
	}
	// Output:
	// 1836000000 18360000 true
	// 183.600 1836 true
	// 100 1 true
	// 25 25 false
}
