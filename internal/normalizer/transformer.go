package normalizer

import (
	"regexp"
	"strings"

	"tier0/internal/models"
	"tier0/pkg/utils"
)

// CountryGB is the country of every register address.
const CountryGB = "GB"

// Settings is the part of the configuration the normalizer reads.
type Settings struct {
	// HeadOfficeCode is compared verbatim against the raw OfficeType.
	HeadOfficeCode string
}

// Record is one normalized firm with its offices.
type Record struct {
	Firm    models.Firm
	Offices []models.Office
	// ExtraHeadOffices counts offices that matched the head office code
	// after the first one and were therefore not flagged.
	ExtraHeadOffices int
}

// Transformer maps raw register rows onto normalized entities. It never
// fails: unusable values become nil and identifier problems are recorded
// on the entity for the validator.
type Transformer struct {
	settings  Settings
	text      *utils.StringHelper
	idPattern *regexp.Regexp
}

// NewTransformer creates a new transformer instance.
func NewTransformer(settings Settings) *Transformer {
	return &Transformer{
		settings:  settings,
		text:      utils.NewStringHelper(),
		idPattern: regexp.MustCompile(`^[A-Za-z0-9]+$`),
	}
}

// NormalizeRecord normalizes a firm and its offices. At most one office is
// flagged head office: the first whose type matches.
func (t *Transformer) NormalizeRecord(index int, raw models.RawFirm) Record {
	firm := t.NormalizeFirm(index, raw)
	rec := Record{Firm: firm}

	headSeen := false

	for i, rawOffice := range raw.Offices {
		office := t.NormalizeOffice(index, i, rawOffice, firm.SraID)

		if office.HeadOffice {
			if headSeen {
				office.HeadOffice = false
				rec.ExtraHeadOffices++
			}

			headSeen = true
		}

		rec.Offices = append(rec.Offices, office)
	}

	return rec
}

// NormalizeFirm normalizes the organisation fields of raw. OfficeKeys lists
// the keys of raw's offices in source order.
func (t *Transformer) NormalizeFirm(index int, raw models.RawFirm) models.Firm {
	sraID, cond := t.identifier(raw.Fields.Get(models.FieldID))

	firm := models.Firm{
		SraID:             sraID,
		RawID:             strings.TrimSpace(raw.Fields.Get(models.FieldID)),
		IDCondition:       cond,
		Name:              t.display(raw.Fields.Get(models.FieldPracticeName)),
		Status:            t.status(raw.Fields.Get(models.FieldAuthorisationStatus)),
		SraNumber:         models.Ptr(t.text.NormalizeWhitespace(raw.Fields.Get(models.FieldSraNumber))),
		AuthorisationType: t.display(raw.Fields.Get(models.FieldAuthorisationType)),
		OrganisationType:  t.display(raw.Fields.Get(models.FieldOrganisationType)),
		CompanyRegNo:      models.Ptr(t.text.NormalizeWhitespace(raw.Fields.Get(models.FieldCompanyRegNo))),
		Constitution:      t.display(raw.Fields.Get(models.FieldConstitution)),
		Index:             index,
		OfficeKeys:        []string{},
	}

	for i, o := range raw.Offices {
		officeID, _ := t.identifier(o.Fields.Get(models.FieldOfficeID))

		stub := models.Office{OfficeID: officeID, FirmIndex: index, Index: i}
		firm.OfficeKeys = append(firm.OfficeKeys, stub.Key())
	}

	return firm
}

// NormalizeOffice normalizes one office row. firmSraID is the owning firm's
// normalized identifier.
func (t *Transformer) NormalizeOffice(firmIndex, index int, raw models.RawOffice, firmSraID *string) models.Office {
	officeID, cond := t.identifier(raw.Fields.Get(models.FieldOfficeID))

	office := models.Office{
		OfficeID:    officeID,
		RawID:       strings.TrimSpace(raw.Fields.Get(models.FieldOfficeID)),
		IDCondition: cond,
		FirmSraID:   firmSraID,
		Address:     t.address(raw.Fields),
		Contact: models.Contact{
			Phone:   models.Ptr(t.text.NormalizeWhitespace(raw.Fields.Get(models.FieldPhoneNumber))),
			Email:   models.Ptr(raw.Fields.Get(models.FieldEmail)),
			Website: models.Ptr(raw.Fields.Get(models.FieldWebsite)),
		},
		HeadOffice: t.IsHeadOffice(raw),
		FirmIndex:  firmIndex,
		Index:      index,
	}

	return office
}

// IsHeadOffice reports whether the raw office type equals the configured
// code exactly. No trimming or case folding is applied.
func (t *Transformer) IsHeadOffice(raw models.RawOffice) bool {
	officeType, ok := raw.Fields[models.FieldOfficeType]

	return ok && officeType == t.settings.HeadOfficeCode
}

func (t *Transformer) identifier(raw string) (*string, models.IDCondition) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, models.IDMissing
	}

	if !t.idPattern.MatchString(v) {
		return nil, models.IDMalformed
	}

	return &v, models.IDPresent
}

func (t *Transformer) display(raw string) *string {
	return models.Ptr(t.text.CleanDisplay(raw))
}

func (t *Transformer) address(fields models.Fields) models.Address {
	var lines []string

	for _, name := range models.AddressFields {
		if line := t.text.CleanDisplay(fields.Get(name)); line != "" {
			lines = append(lines, line)
		}
	}

	addr := models.Address{
		Town:     t.display(fields.Get(models.FieldTown)),
		Postcode: models.Ptr(strings.ToUpper(t.text.NormalizeWhitespace(fields.Get(models.FieldPostcode)))),
		Country:  CountryGB,
	}

	if len(lines) > 0 {
		addr.Line1 = &lines[0]
	}

	if len(lines) > 1 {
		addr.Line2 = models.Ptr(strings.Join(lines[1:], ", "))
	}

	return addr
}

func (t *Transformer) status(raw string) *models.Status {
	v := strings.ToLower(t.text.NormalizeWhitespace(raw))
	if v == "" {
		return nil
	}

	var s models.Status

	switch v {
	case "authorised", "authorized", "active":
		s = models.StatusAuthorised
	case "suspended":
		s = models.StatusSuspended
	case "revoked":
		s = models.StatusRevoked
	case "closed", "ceased":
		s = models.StatusClosed
	case "intervened":
		s = models.StatusIntervened
	default:
		s = models.StatusUnknown
	}

	return &s
}
