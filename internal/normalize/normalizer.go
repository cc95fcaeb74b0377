// Package normalize applies the business rules that turn an extracted invoice into
// a ledger-ready record: entity resolution, ID sanitization, service filtering and
// amount de-noising. Nothing here returns an error; anomalies are only logged.
package normalize

import (
	"github.com/rs/zerolog"

	"facturas/internal/logger"
	"facturas/pkg/models"
)

type Normalizer struct {
	aliases []EntityAlias
	log     zerolog.Logger
}

// New returns a Normalizer using aliases, or DefaultEntityAliases when aliases is empty.
func New(aliases []EntityAlias) *Normalizer {
	if len(aliases) == 0 {
		aliases = DefaultEntityAliases
	}
	return &Normalizer{
		aliases: aliases,
		log:     logger.WithComponent("normalize"),
	}
}

// WithLogger replaces the component logger, typically with a run-scoped one.
func (n *Normalizer) WithLogger(log zerolog.Logger) *Normalizer {
	clone := *n
	clone.log = log
	return &clone
}

// Normalize returns a normalized copy of rec. The input is left untouched and
// normalizing an already normalized record changes nothing.
func (n *Normalizer) Normalize(rec *models.InvoiceRecord) *models.InvoiceRecord {
	if rec == nil {
		return nil
	}

	out := *rec
	out.Entity = Canonicalize(ResolveEntity(rec.Entity, rec.Plan), n.aliases)
	out.PatientID = SanitizeID(rec.PatientID)

	kept := FilterServices(rec.Services)
	out.Services = make([]models.ServiceLine, 0, len(kept))
	for _, s := range kept {
		if !s.Value.Normalized {
			pesos, stripped := DenoiseValue(s.Value.Raw)
			if stripped {
				n.log.Debug().
					Str("code", s.Code).
					Str("raw_value", s.Value.Raw).
					Int64("pesos", pesos).
					Msg("Removed trailing centavos from service value")
			}
			s.Value = models.PesosValue(pesos)
		}
		s.Description = CleanDescription(s.Description)
		out.Services = append(out.Services, s)
	}

	if dropped := len(rec.Services) - len(out.Services); dropped > 0 {
		n.log.Debug().
			Str("orden_servicio", rec.OrderNumber).
			Int("dropped", dropped).
			Int("kept", len(out.Services)).
			Msg("Filtered services without the eligibility keyword")
	}

	return &out
}
