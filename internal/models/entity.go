// Package models defines the register records as they move through the pipeline.
package models

import (
	"fmt"
	"strings"
)

// IDCondition records why an entity has no usable identifier.
type IDCondition uint8

// Identifier conditions.
const (
	IDPresent IDCondition = iota
	IDMissing
	IDMalformed
)

func (c IDCondition) String() string {
	switch c {
	case IDPresent:
		return "present"
	case IDMissing:
		return "missing"
	case IDMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("IDCondition(%d)", uint8(c))
	}
}

// Status is the normalized regulatory status of a firm.
type Status string

// Closed set of statuses.
const (
	StatusAuthorised Status = "Authorised"
	StatusSuspended  Status = "Suspended"
	StatusRevoked    Status = "Revoked"
	StatusClosed     Status = "Closed"
	StatusIntervened Status = "Intervened"
	StatusUnknown    Status = "Unknown"
)

// Statuses lists every status value in a stable order.
var Statuses = []Status{
	StatusAuthorised, StatusSuspended, StatusRevoked, StatusClosed, StatusIntervened, StatusUnknown,
}

// Firm is a normalized organisation. Optional values are nil, never "".
type Firm struct {
	SraID             *string     `json:"sraId,omitempty"`
	Name              *string     `json:"name,omitempty"`
	Status            *Status     `json:"regulatoryStatus,omitempty"`
	SraNumber         *string     `json:"sraNumber,omitempty"`
	AuthorisationType *string     `json:"authorisationType,omitempty"`
	OrganisationType  *string     `json:"organisationType,omitempty"`
	CompanyRegNo      *string     `json:"companyRegNo,omitempty"`
	Constitution      *string     `json:"constitution,omitempty"`
	OfficeKeys        []string    `json:"offices"`
	RawID             string      `json:"-"`
	IDCondition       IDCondition `json:"-"`
	// Index is the position of the source row.
	Index int `json:"-"`
}

// Key identifies the firm in reports: its sraId, or its source position.
func (f *Firm) Key() string {
	if f.SraID != nil {
		return *f.SraID
	}

	return fmt.Sprintf("#%d", f.Index+1)
}

// Address is a structured UK postal address.
type Address struct {
	Line1    *string `json:"line1,omitempty"`
	Line2    *string `json:"line2,omitempty"`
	Town     *string `json:"town,omitempty"`
	Postcode *string `json:"postcode,omitempty"`
	Country  string  `json:"country"`
}

// IsEmpty reports whether no street-level field is set.
func (a Address) IsEmpty() bool {
	return a.Line1 == nil && a.Line2 == nil && a.Town == nil && a.Postcode == nil
}

// Contact holds the office contact channels.
type Contact struct {
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Website *string `json:"website,omitempty"`
}

// IsEmpty reports whether the office published no contact channel.
func (c Contact) IsEmpty() bool {
	return c.Phone == nil && c.Email == nil && c.Website == nil
}

// Office is a normalized office of a firm.
type Office struct {
	OfficeID    *string     `json:"officeId,omitempty"`
	FirmSraID   *string     `json:"firmSraId,omitempty"`
	Address     Address     `json:"address"`
	Contact     Contact     `json:"contact"`
	HeadOffice  bool        `json:"isHeadOffice"`
	RawID       string      `json:"-"`
	IDCondition IDCondition `json:"-"`
	FirmIndex   int         `json:"-"`
	Index       int         `json:"-"`
}

// Key identifies the office in reports: its officeId, or its position.
func (o *Office) Key() string {
	if o.OfficeID != nil {
		return *o.OfficeID
	}

	return fmt.Sprintf("#%d/%d", o.FirmIndex+1, o.Index+1)
}

// Batch is the normalized form of one extract. Offices appear grouped by
// firm, in firm order, each group in source order.
type Batch struct {
	Firms   []Firm   `json:"firms"`
	Offices []Office `json:"offices"`
}

// OfficesOf returns the offices of the firm at firmIndex, in source order.
func (b *Batch) OfficesOf(firmIndex int) []Office {
	var out []Office

	for _, o := range b.Offices {
		if o.FirmIndex == firmIndex {
			out = append(out, o)
		}
	}

	return out
}

// Ptr returns a pointer to a trimmed copy of s, or nil when s is blank.
func Ptr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	return &s
}

// Deref returns *p, or "" for nil.
func Deref[T ~string](p *T) string {
	if p == nil {
		return ""
	}

	return string(*p)
}
