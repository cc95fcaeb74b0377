package extract

import (
	"fmt"
	"strings"
)

const extractionRules = `EXTRACTION RULES:
1. PATIENT DATA: the patient row reads "Paciente: [ID NUMBER] [PATIENT FULL NAME] Edad: [AGE]".
   - The ID is the number immediately after "Paciente:".
   - The patient ID contains only digits, 6 to 10 of them.
2. DATE: from the top right corner, formatted DD/MM/YYYY.
3. EPS: from the "Entidad" or "Plan" field, return the exact name when the text contains:
   - "NUEVA EPS" -> "Nueva EPS"
   - "ALIANZA" -> "Alianza"
   - "MUTUAL" -> "MUTUAL SER"
   - "SANITAS" -> "SANITAS"
   - "DISPENSARIO" -> "Dispensario Medico/Medellín"
   - "SALUD TOTAL" -> "Salud Total"
   Search the whole document for these keywords if the Entidad field has none.
4. SERVICES: from the "NOMBRE" column extract ALL services (DOPPLER, HOLTER, ECOCARDIOGRAMA, ...).
   Remove the word "ECOGRAFIA" from descriptions. Filtering happens later.
5. VALUES: from the last column take only the number BEFORE the comma (Colombian pesos),
   complete as printed (e.g. 18360000). Do not remove zeros.
6. Do not apply any discount.

Return only this JSON object:
{
  "orden_servicio": "service order number from ORDEN DE SERVICIO",
  "fecha": "DD/MM/YYYY",
  "hospital": "hospital name from the header",
  "patient_name": "full patient name",
  "patient_id": "patient cedula, digits only, max 10",
  "age": "age with Años, Meses or Días",
  "sex": "Masculino or Femenino",
  "eps": "matched EPS name",
  "plan": "plan name as printed",
  "services": [
    {"code": "service code such as 882222", "description": "description without ECOGRAFIA", "value": "original number, e.g. 18360000"}
  ]
}`

func textPrompt(text, hint string) string {
	var b strings.Builder
	b.WriteString("Extract information from this Colombian medical invoice OCR text following these exact rules.\n\n")
	b.WriteString(extractionRules)
	if hint != "" {
		fmt.Fprintf(&b, "\n\nOCR pre-extracted cedula: %s (use it if it matches the patient row).", hint)
	}
	b.WriteString("\n\nOCR TEXT TO PROCESS:\n")
	b.WriteString(text)
	return b.String()
}

func visionPrompt() string {
	return "Analyze this Colombian medical invoice image and extract the information following these exact rules.\n\n" + extractionRules
}
