package report

import (
	"fmt"

	"tier0/internal/models"
	"tier0/pkg/canonical"
)

// Snapshot file names in the normalized output directory.
const (
	FirmsSnapshot   = "firms.json"
	OfficesSnapshot = "offices.json"
)

// FirmValue is the snapshot form of a normalized firm. Absent values are
// omitted.
func FirmValue(f *models.Firm) canonical.Value {
	obj := canonical.NewObject().
		SetOptional("sraId", f.SraID).
		SetOptional("name", f.Name).
		SetOptional("sraNumber", f.SraNumber).
		SetOptional("authorisationType", f.AuthorisationType).
		SetOptional("organisationType", f.OrganisationType).
		SetOptional("companyRegNo", f.CompanyRegNo).
		SetOptional("constitution", f.Constitution).
		Set("offices", canonical.Strings(f.OfficeKeys))

	if f.Status != nil {
		obj.SetString("regulatoryStatus", string(*f.Status))
	}

	return obj.Value()
}

// OfficeValue is the snapshot form of a normalized office.
func OfficeValue(o *models.Office) canonical.Value {
	addr := canonical.NewObject().
		SetOptional("line1", o.Address.Line1).
		SetOptional("line2", o.Address.Line2).
		SetOptional("town", o.Address.Town).
		SetOptional("postcode", o.Address.Postcode).
		SetString("country", o.Address.Country).
		Value()

	contact := canonical.NewObject().
		SetOptional("phone", o.Contact.Phone).
		SetOptional("email", o.Contact.Email).
		SetOptional("website", o.Contact.Website).
		Value()

	return canonical.NewObject().
		SetOptional("officeId", o.OfficeID).
		SetOptional("firmSraId", o.FirmSraID).
		Set("isHeadOffice", canonical.Bool(o.HeadOffice)).
		Set("address", addr).
		Set("contact", contact).
		Value()
}

// Snapshot returns the canonical bytes of the normalized firms and offices.
func Snapshot(batch models.Batch) (firms, offices []byte, err error) {
	firmValues := make([]canonical.Value, 0, len(batch.Firms))
	for i := range batch.Firms {
		firmValues = append(firmValues, FirmValue(&batch.Firms[i]))
	}

	officeValues := make([]canonical.Value, 0, len(batch.Offices))
	for i := range batch.Offices {
		officeValues = append(officeValues, OfficeValue(&batch.Offices[i]))
	}

	firms, err = canonical.Marshal(canonical.Array(firmValues...))
	if err != nil {
		return nil, nil, fmt.Errorf("encoding firm snapshot: %w", err)
	}

	offices, err = canonical.Marshal(canonical.Array(officeValues...))
	if err != nil {
		return nil, nil, fmt.Errorf("encoding office snapshot: %w", err)
	}

	return firms, offices, nil
}
