package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tier0/internal/models"
	"tier0/pkg/canonical"
)

var testSettings = Settings{
	PublicIDBase:    "https://api.example.org/id/",
	PublicFilesBase: "https://api.example.org/files/",
}

func str(s string) *string { return &s }

func testBatch() models.Batch {
	status := models.StatusAuthorised

	return models.Batch{
		Firms: []models.Firm{
			{SraID: str("SRA123"), Name: str("Smith & Jones LLP"), Status: &status, Index: 0},
			{SraID: str("SRA456"), Name: str("Quay Law"), Index: 1},
		},
		Offices: []models.Office{
			{
				OfficeID: str("O1"), FirmSraID: str("SRA123"), HeadOffice: true, FirmIndex: 0,
				Address: models.Address{Line1: str("1 High Street"), Line2: str("Floor 2"), Town: str("London"), Postcode: str("EC1A 1BB"), Country: "GB"},
				Contact: models.Contact{Phone: str("020 7946 0000")},
			},
			{
				OfficeID: str("O2"), FirmSraID: str("SRA123"), FirmIndex: 0, Index: 1,
				Address: models.Address{Town: str("Leeds"), Country: "GB"},
			},
			{
				OfficeID: str("O3"), FirmSraID: str("SRA456"), FirmIndex: 1,
				Address: models.Address{Country: "GB"},
				Contact: models.Contact{Email: str("info@quay.example")},
			},
		},
	}
}

func nodeIDs(g *Graph) []string {
	var ids []string
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}

	return ids
}

func TestBuild_Order(t *testing.T) {
	g, err := NewBuilder(testSettings).Build(testBatch())
	require.NoError(t, err)

	base := testSettings.PublicIDBase
	assert.Equal(t, []string{
		base + "firm/SRA123",
		base + "firm/SRA123/service",
		base + "office/O1",
		base + "office/O1/contact",
		base + "office/O2",
		base + "firm/SRA456",
		base + "firm/SRA456/service",
		base + "office/O3/contact",
	}, nodeIDs(g))

	counts := g.CountByType()
	assert.Equal(t, 2, counts[TypeOrganization])
	assert.Equal(t, 2, counts[TypeLegalService])
	assert.Equal(t, 2, counts[TypePostalAddress])
	assert.Equal(t, 2, counts[TypeContactPoint])
}

func TestBuild_OrganizationEdges(t *testing.T) {
	g, err := NewBuilder(testSettings).Build(testBatch())
	require.NoError(t, err)

	org := g.Nodes()[0].Value

	addr, ok := org.Get("address")
	require.True(t, ok, "head office address missing")

	id, _ := addr.Get("@id")
	got, _ := id.AsString()
	assert.Equal(t, testSettings.PublicIDBase+"office/O1", got)

	offices, ok := org.Get("hasOffice")
	require.True(t, ok)
	assert.Equal(t, 2, offices.Len())

	status, _ := org.Get("regulatoryStatus")
	s, _ := status.AsString()
	assert.Equal(t, "Authorised", s)

	street, _ := g.Nodes()[2].Value.Get("streetAddress")
	s, _ = street.AsString()
	assert.Equal(t, "1 High Street, Floor 2", s)

	second := g.Nodes()[5].Value
	_, hasStatus := second.Get("regulatoryStatus")
	assert.False(t, hasStatus, "absent status must not be emitted")
}

func TestBuild_CollisionAborts(t *testing.T) {
	batch := models.Batch{
		Firms: []models.Firm{
			{SraID: str("SRA 1"), RawID: "SRA 1", Index: 0},
			{SraID: str("SRA 1"), RawID: "SRA 1", Index: 1},
		},
	}

	g, err := NewBuilder(testSettings).Build(batch)
	require.ErrorIs(t, err, ErrIdentifierCollision)
	assert.Nil(t, g)
	assert.Contains(t, err.Error(), "row 1")
	assert.Contains(t, err.Error(), "row 2")
}

func TestBuild_OfficeCollisionAborts(t *testing.T) {
	batch := testBatch()
	batch.Offices[1].OfficeID = str("O1")

	_, err := NewBuilder(testSettings).Build(batch)
	require.ErrorIs(t, err, ErrIdentifierCollision)
}

func TestBuild_OfficeCollisionWithoutAddress(t *testing.T) {
	batch := testBatch()
	// O2 has only an address, the reused id on SRA456 has only a contact.
	batch.Offices[2].OfficeID = str("O2")

	g, err := NewBuilder(testSettings).Build(batch)
	require.ErrorIs(t, err, ErrIdentifierCollision)
	assert.Nil(t, g)
	assert.Contains(t, err.Error(), "firm SRA123")
	assert.Contains(t, err.Error(), "firm SRA456")
}

func TestBuild_MissingIdentifier(t *testing.T) {
	_, err := NewBuilder(testSettings).Build(models.Batch{Firms: []models.Firm{{Index: 0}}})
	require.ErrorIs(t, err, ErrMissingIdentifier)
}

func TestBuild_EscapesIdentifiers(t *testing.T) {
	b := NewBuilder(testSettings)

	assert.Equal(t, testSettings.PublicIDBase+"firm/a%2Fb", b.FirmID("a/b"))
	assert.Equal(t, testSettings.PublicIDBase+"office/x%20y", b.OfficeID("x y"))
}

func TestBuild_ZeroOffices(t *testing.T) {
	batch := models.Batch{Firms: []models.Firm{{SraID: str("SRA9"), Index: 0}}}

	g, err := NewBuilder(testSettings).Build(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())

	_, ok := g.Nodes()[0].Value.Get("hasOffice")
	assert.False(t, ok)
}

func TestDocuments(t *testing.T) {
	g, err := NewBuilder(testSettings).Build(testBatch())
	require.NoError(t, err)

	firms := g.FirmsDocument()
	graphNodes, ok := firms.Get("@graph")
	require.True(t, ok)
	assert.Equal(t, g.Len(), graphNodes.Len())

	at := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	dataset := g.DatasetDocument(at)

	datasetNodes, _ := dataset.Get("@graph")
	require.Equal(t, g.Len()+1, datasetNodes.Len())

	descriptor := datasetNodes.Items()[0]
	modified, _ := descriptor.Get("dateModified")
	s, _ := modified.AsString()
	assert.Equal(t, "2026-03-01T02:00:00Z", s)

	dist, _ := descriptor.Get("distribution")
	url, _ := dist.Items()[0].Get("contentUrl")
	s, _ = url.AsString()
	assert.Equal(t, "https://api.example.org/files/firms.jsonld", s)

	a, err := canonical.Marshal(firms)
	require.NoError(t, err)

	again, err := NewBuilder(testSettings).Build(testBatch())
	require.NoError(t, err)

	b, err := canonical.Marshal(again.FirmsDocument())
	require.NoError(t, err)
	assert.Equal(t, a, b, "rebuilding unchanged input must give identical bytes")
}
