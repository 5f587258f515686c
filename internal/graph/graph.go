// Package graph maps accepted register entities onto a JSON-LD node graph.
package graph

import (
	"time"

	"tier0/pkg/canonical"
)

// Vocabulary and link targets.
const (
	SchemaVocab = "https://schema.org/"
	Tier0Vocab  = "https://veritrustgroup.org/def/tier0/"

	sraFirmPage   = "https://www.sra.org.uk/consumers/register/organisation/?id="
	sraOfficePage = "https://www.sra.org.uk/consumers/register/office/?id="

	// LinkedDataMediaType is the encoding format of every published graph.
	LinkedDataMediaType = "application/ld+json"
)

// Dataset descriptor defaults.
const (
	DefaultDatasetID   = "https://api.veritrustgroup.org/dataset/tier0-sra"
	DefaultFirmsFile   = "firms.jsonld"
	datasetName        = "VeriTrust Tier-0 SRA Canonical Dataset"
	datasetDescription = "Nightly canonical transformation of SRA public organisation data into AI-ready JSON-LD."
	datasetCreator     = "VeriTrust Group Limited"
)

// NodeType is the primary schema.org type of a node.
type NodeType string

// Node types emitted by the builder.
const (
	TypeOrganization  NodeType = "Organization"
	TypeLegalService  NodeType = "LegalService"
	TypePostalAddress NodeType = "PostalAddress"
	TypeContactPoint  NodeType = "ContactPoint"
)

// Settings are the public base URLs node identifiers and download links are
// built from. Both must end in "/".
type Settings struct {
	PublicIDBase    string
	PublicFilesBase string
	// DatasetID identifies the dataset descriptor node.
	DatasetID string
	// FirmsFile is the published name of the firms document.
	FirmsFile string
}

func (s Settings) withDefaults() Settings {
	if s.DatasetID == "" {
		s.DatasetID = DefaultDatasetID
	}

	if s.FirmsFile == "" {
		s.FirmsFile = DefaultFirmsFile
	}

	return s
}

// Node is one graph node with the source entity it was built from.
type Node struct {
	ID     string
	Type   NodeType
	Source string
	Value  canonical.Value
}

// Graph is the ordered node list built from one accepted batch.
type Graph struct {
	settings Settings
	nodes    []Node
}

// Nodes returns the nodes in emission order.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// CountByType tallies nodes per type.
func (g *Graph) CountByType() map[NodeType]int {
	out := make(map[NodeType]int, 4)
	for _, n := range g.nodes {
		out[n.Type]++
	}

	return out
}

func (g *Graph) values() []canonical.Value {
	out := make([]canonical.Value, 0, len(g.nodes)+1)
	for _, n := range g.nodes {
		out = append(out, n.Value)
	}

	return out
}

// Context is the JSON-LD context shared by every published document.
func Context() canonical.Value {
	term := func(name string) canonical.Member {
		return canonical.Field(name, canonical.String("vt:"+name))
	}

	return canonical.Object(
		canonical.Field("@vocab", canonical.String(SchemaVocab)),
		canonical.Field("vt", canonical.String(Tier0Vocab)),
		term("RegulatedFirm"),
		term("RegulatedOffice"),
		term("sraId"),
		term("officeId"),
		term("regulatoryStatus"),
		term("isHeadOffice"),
		term("hasOffice"),
		term("firm"),
		term("offersService"),
		term("sraNumber"),
		term("authorisationType"),
		term("organisationType"),
		term("companyRegNo"),
		term("constitution"),
	)
}

// FirmsDocument is the firms document: the context and every node.
func (g *Graph) FirmsDocument() canonical.Value {
	return canonical.Object(
		canonical.Field("@context", Context()),
		canonical.Field("@graph", canonical.Array(g.values()...)),
	)
}

// DatasetDocument is the complete dataset document: a Dataset descriptor
// pointing at the firms document, followed by the same nodes.
func (g *Graph) DatasetDocument(generatedAt time.Time) canonical.Value {
	distribution := canonical.NewObject().
		SetString("@type", "DataDownload").
		SetString("contentUrl", g.settings.PublicFilesBase+g.settings.FirmsFile).
		SetString("encodingFormat", LinkedDataMediaType).
		Value()

	descriptor := canonical.NewObject().
		SetString("@id", g.settings.DatasetID).
		SetString("@type", "Dataset").
		SetString("name", datasetName).
		SetString("description", datasetDescription).
		Set("creator", canonical.Object(
			canonical.Field("@type", canonical.String(string(TypeOrganization))),
			canonical.Field("name", canonical.String(datasetCreator)),
		)).
		SetString("dateModified", generatedAt.UTC().Format(time.RFC3339)).
		Set("distribution", canonical.Array(distribution)).
		Value()

	nodes := append([]canonical.Value{descriptor}, g.values()...)

	return canonical.Object(
		canonical.Field("@context", Context()),
		canonical.Field("@graph", canonical.Array(nodes...)),
	)
}
