package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"facturas/pkg/models"
)

const recordSchema = `{
  "type": "object",
  "required": ["orden_servicio"],
  "properties": {
    "orden_servicio": {"type": ["string", "number"], "minLength": 1},
    "patient_id": {"type": ["string", "number", "null"]},
    "services": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "code": {"type": ["string", "number", "null"]},
          "description": {"type": ["string", "null"]},
          "value": {"type": ["string", "number", "null"]}
        }
      }
    }
  }
}`

var schema = compileSchema()

func compileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("invoice.json", strings.NewReader(recordSchema)); err != nil {
		panic(fmt.Sprintf("extract: add schema: %v", err))
	}
	return compiler.MustCompile("invoice.json")
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}

type wireService struct {
	Code        flexString          `json:"code"`
	Description flexString          `json:"description"`
	Value       models.ServiceValue `json:"value"`
}

type wireRecord struct {
	OrderNumber flexString    `json:"orden_servicio"`
	Date        flexString    `json:"fecha"`
	Hospital    flexString    `json:"hospital"`
	PatientName flexString    `json:"patient_name"`
	PatientID   flexString    `json:"patient_id"`
	Age         flexString    `json:"age"`
	Sex         flexString    `json:"sex"`
	Entity      flexString    `json:"eps"`
	Plan        flexString    `json:"plan"`
	Services    []wireService `json:"services"`
}

// ParseResponse extracts, validates and decodes the invoice carried by a model answer.
func ParseResponse(content string) (*models.InvoiceRecord, error) {
	region, ok := FirstJSONRegion(content)
	if !ok {
		return nil, ErrNoJSONRegion
	}
	return DecodeRecord([]byte(region))
}

// DecodeRecord validates a JSON object against the invoice schema and decodes it.
func DecodeRecord(data []byte) (*models.InvoiceRecord, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var wire wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	rec := &models.InvoiceRecord{
		OrderNumber: strings.TrimSpace(string(wire.OrderNumber)),
		Date:        strings.TrimSpace(string(wire.Date)),
		Hospital:    strings.TrimSpace(string(wire.Hospital)),
		PatientName: strings.TrimSpace(string(wire.PatientName)),
		PatientID:   strings.TrimSpace(string(wire.PatientID)),
		Age:         strings.TrimSpace(string(wire.Age)),
		Sex:         strings.TrimSpace(string(wire.Sex)),
		Entity:      strings.TrimSpace(string(wire.Entity)),
		Plan:        strings.TrimSpace(string(wire.Plan)),
		Services:    make([]models.ServiceLine, 0, len(wire.Services)),
	}
	if rec.OrderNumber == "" {
		return nil, fmt.Errorf("%w: empty orden_servicio", ErrInvalidRecord)
	}

	for _, s := range wire.Services {
		rec.Services = append(rec.Services, models.ServiceLine{
			Code:        strings.TrimSpace(string(s.Code)),
			Description: strings.TrimSpace(string(s.Description)),
			Value:       s.Value,
		})
	}

	return rec, nil
}
