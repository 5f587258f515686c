package models

import "strings"

// Register extract field names, as published by the SRA organisation search.
const (
	FieldID                  = "Id"
	FieldPracticeName        = "PracticeName"
	FieldAuthorisationStatus = "AuthorisationStatus"
	FieldSraNumber           = "SraNumber"
	FieldAuthorisationType   = "AuthorisationType"
	FieldOrganisationType    = "OrganisationType"
	FieldCompanyRegNo        = "CompanyRegNo"
	FieldConstitution        = "Constitution"

	FieldOfficeID    = "OfficeId"
	FieldOfficeType  = "OfficeType"
	FieldAddress1    = "Address1"
	FieldAddress2    = "Address2"
	FieldAddress3    = "Address3"
	FieldAddress4    = "Address4"
	FieldTown        = "Town"
	FieldPostcode    = "Postcode"
	FieldCountry     = "Country"
	FieldPhoneNumber = "PhoneNumber"
	FieldEmail       = "Email"
	FieldWebsite     = "Website"

	// FieldFirmID is the office-to-firm foreign key used by tabular extracts.
	FieldFirmID = "FirmId"
)

// AddressFields lists the raw address lines in assembly order.
var AddressFields = []string{FieldAddress1, FieldAddress2, FieldAddress3, FieldAddress4}

// Fields is one flat source row. A missing key means the value was absent.
type Fields map[string]string

// Get returns the value for name, or "" when absent.
func (f Fields) Get(name string) string {
	return f[name]
}

// Has reports whether name carries a non-blank value.
func (f Fields) Has(name string) bool {
	return strings.TrimSpace(f[name]) != ""
}

// RawOffice is one office row as read from the extract.
type RawOffice struct {
	Fields Fields `json:"fields"`
	// FirmID is the raw identifier of the owning firm.
	FirmID string `json:"firmId"`
}

// RawFirm is one organisation row with its nested office rows.
type RawFirm struct {
	Fields  Fields      `json:"fields"`
	Offices []RawOffice `json:"offices"`
}

// OfficeCount sums the offices of all firms.
func OfficeCount(firms []RawFirm) int {
	n := 0
	for _, f := range firms {
		n += len(f.Offices)
	}

	return n
}
