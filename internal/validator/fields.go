package validator

import "tier0/internal/models"

// Identifier field names. Identifier conditions are reported against them.
const (
	FieldSraID     = "sraId"
	FieldOfficeID  = "officeId"
	FieldFirmSraID = "firmSraId"
)

// absent marks a field with no value.
type absent struct{}

func knownField(kind models.EntityKind, name string) bool {
	switch kind {
	case models.KindFirm:
		_, ok := firmField(&models.Firm{}, name)
		return ok
	case models.KindOffice:
		_, ok := officeField(&models.Office{}, name)
		return ok
	default:
		return false
	}
}

func optional(p *string) any {
	if p == nil {
		return absent{}
	}

	return *p
}

// firmField returns the value of the named firm field. The second result is
// false when the field name is unknown.
func firmField(f *models.Firm, name string) (any, bool) {
	switch name {
	case FieldSraID:
		return optional(f.SraID), true
	case "name":
		return optional(f.Name), true
	case "status", "regulatoryStatus":
		if f.Status == nil {
			return absent{}, true
		}

		return string(*f.Status), true
	case "sraNumber":
		return optional(f.SraNumber), true
	case "authorisationType":
		return optional(f.AuthorisationType), true
	case "organisationType":
		return optional(f.OrganisationType), true
	case "companyRegNo":
		return optional(f.CompanyRegNo), true
	case "constitution":
		return optional(f.Constitution), true
	default:
		return nil, false
	}
}

// officeField returns the value of the named office field. Address and
// contact fields are addressed by their leaf name.
func officeField(o *models.Office, name string) (any, bool) {
	switch name {
	case FieldOfficeID:
		return optional(o.OfficeID), true
	case FieldFirmSraID:
		return optional(o.FirmSraID), true
	case "line1":
		return optional(o.Address.Line1), true
	case "line2":
		return optional(o.Address.Line2), true
	case "town":
		return optional(o.Address.Town), true
	case "postcode":
		return optional(o.Address.Postcode), true
	case "country":
		if o.Address.Country == "" {
			return absent{}, true
		}

		return o.Address.Country, true
	case "phone":
		return optional(o.Contact.Phone), true
	case "email":
		return optional(o.Contact.Email), true
	case "website":
		return optional(o.Contact.Website), true
	case "isHeadOffice":
		return o.HeadOffice, true
	default:
		return nil, false
	}
}
