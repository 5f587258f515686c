package graph

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"tier0/internal/models"
	"tier0/pkg/canonical"
)

// Builder errors.
var (
	ErrIdentifierCollision = errors.New("identifier collision")
	ErrMissingIdentifier   = errors.New("accepted entity has no identifier")
)

// Builder maps accepted entities onto graph nodes.
type Builder struct {
	settings Settings
}

// NewBuilder creates a builder over settings.
func NewBuilder(settings Settings) *Builder {
	return &Builder{settings: settings.withDefaults()}
}

// FirmID is the public identifier of a firm.
func (b *Builder) FirmID(sraID string) string {
	return b.settings.PublicIDBase + "firm/" + url.PathEscape(sraID)
}

// OfficeID is the public identifier of an office.
func (b *Builder) OfficeID(officeID string) string {
	return b.settings.PublicIDBase + "office/" + url.PathEscape(officeID)
}

// idIndex records which source entity claimed each identifier.
type idIndex map[string]string

func (ix idIndex) claim(id, source string) error {
	if prev, ok := ix[id]; ok {
		return fmt.Errorf("%w: %s is produced by both %s and %s", ErrIdentifierCollision, id, prev, source)
	}

	ix[id] = source

	return nil
}

// Build emits, per accepted firm in order, its Organization and LegalService
// nodes followed by each office's PostalAddress and ContactPoint nodes. Any
// identifier produced twice aborts the build.
func (b *Builder) Build(accepted models.Batch) (*Graph, error) {
	byFirm := make(map[int][]models.Office, len(accepted.Firms))
	for _, o := range accepted.Offices {
		byFirm[o.FirmIndex] = append(byFirm[o.FirmIndex], o)
	}

	ids := idIndex{b.settings.DatasetID: "dataset descriptor"}
	g := &Graph{settings: b.settings}

	for i := range accepted.Firms {
		firm := &accepted.Firms[i]

		nodes, err := b.firmNodes(firm, byFirm[firm.Index], ids)
		if err != nil {
			return nil, err
		}

		g.nodes = append(g.nodes, nodes...)
	}

	return g, nil
}

func (b *Builder) firmNodes(firm *models.Firm, offices []models.Office, ids idIndex) ([]Node, error) {
	if firm.SraID == nil {
		return nil, fmt.Errorf("%w: firm %s", ErrMissingIdentifier, firm.Key())
	}

	firmSource := fmt.Sprintf("firm %s (row %d)", *firm.SraID, firm.Index+1)
	firmID := b.FirmID(*firm.SraID)
	serviceID := firmID + "/service"

	if err := ids.claim(firmID, firmSource); err != nil {
		return nil, err
	}

	if err := ids.claim(serviceID, firmSource); err != nil {
		return nil, err
	}

	var (
		officeNodes []Node
		officeRefs  []canonical.Value
		contactRefs []canonical.Value
		headAddress string
	)

	for i := range offices {
		office := &offices[i]
		if office.OfficeID == nil {
			return nil, fmt.Errorf("%w: office %s", ErrMissingIdentifier, office.Key())
		}

		source := fmt.Sprintf("office %s of %s", *office.OfficeID, firmSource)
		officeID := b.OfficeID(*office.OfficeID)

		// The office owns its id whether or not an address node is emitted.
		if err := ids.claim(officeID, source); err != nil {
			return nil, err
		}

		if !office.Address.IsEmpty() {
			officeNodes = append(officeNodes, Node{
				ID:     officeID,
				Type:   TypePostalAddress,
				Source: source,
				Value:  addressNode(officeID, firmID, office),
			})
			officeRefs = append(officeRefs, canonical.Ref(officeID))

			if office.HeadOffice && headAddress == "" {
				headAddress = officeID
			}
		}

		if !office.Contact.IsEmpty() {
			contactID := officeID + "/contact"
			if err := ids.claim(contactID, source); err != nil {
				return nil, err
			}

			officeNodes = append(officeNodes, Node{
				ID:     contactID,
				Type:   TypeContactPoint,
				Source: source,
				Value:  contactNode(contactID, firmID, office),
			})
			contactRefs = append(contactRefs, canonical.Ref(contactID))
		}
	}

	org := canonical.NewObject().
		SetString("@id", firmID).
		Set("@type", canonical.Strings([]string{string(TypeOrganization), "RegulatedFirm"})).
		SetString("sraId", *firm.SraID).
		SetOptional("name", firm.Name).
		SetOptional("sraNumber", firm.SraNumber).
		SetOptional("authorisationType", firm.AuthorisationType).
		SetOptional("organisationType", firm.OrganisationType).
		SetOptional("companyRegNo", firm.CompanyRegNo).
		SetOptional("constitution", firm.Constitution).
		SetRef("offersService", serviceID).
		SetString("sameAs", sraFirmPage+url.QueryEscape(*firm.SraID))

	if firm.Status != nil {
		org.SetString("regulatoryStatus", string(*firm.Status))
	}

	if headAddress != "" {
		org.SetRef("address", headAddress)
	}

	if len(officeRefs) > 0 {
		org.Set("hasOffice", canonical.Array(officeRefs...))
	}

	if len(contactRefs) > 0 {
		org.Set("contactPoint", canonical.Array(contactRefs...))
	}

	service := canonical.NewObject().
		SetString("@id", serviceID).
		SetString("@type", string(TypeLegalService)).
		SetOptional("name", firm.Name).
		SetRef("provider", firmID)

	nodes := []Node{
		{ID: firmID, Type: TypeOrganization, Source: firmSource, Value: org.Value()},
		{ID: serviceID, Type: TypeLegalService, Source: firmSource, Value: service.Value()},
	}

	return append(nodes, officeNodes...), nil
}

func addressNode(id, firmID string, office *models.Office) canonical.Value {
	addr := office.Address

	var street []string
	for _, line := range []*string{addr.Line1, addr.Line2} {
		if line != nil {
			street = append(street, *line)
		}
	}

	node := canonical.NewObject().
		SetString("@id", id).
		Set("@type", canonical.Strings([]string{string(TypePostalAddress), "RegulatedOffice"})).
		SetString("officeId", *office.OfficeID).
		SetRef("firm", firmID).
		Set("isHeadOffice", canonical.Bool(office.HeadOffice)).
		SetOptional("addressLocality", addr.Town).
		SetOptional("postalCode", addr.Postcode).
		SetString("addressCountry", addr.Country).
		SetString("sameAs", sraOfficePage+url.QueryEscape(*office.OfficeID))

	if len(street) > 0 {
		node.SetString("streetAddress", strings.Join(street, ", "))
	}

	return node.Value()
}

func contactNode(id, firmID string, office *models.Office) canonical.Value {
	return canonical.NewObject().
		SetString("@id", id).
		SetString("@type", string(TypeContactPoint)).
		SetString("officeId", *office.OfficeID).
		SetRef("firm", firmID).
		SetOptional("telephone", office.Contact.Phone).
		SetOptional("email", office.Contact.Email).
		SetOptional("url", office.Contact.Website).
		Value()
}
