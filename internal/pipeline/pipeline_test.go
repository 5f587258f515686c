package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tier0/internal/config"
	"tier0/internal/ledger"
	"tier0/internal/manifest"
	"tier0/internal/metrics"
	"tier0/internal/signer"
)

const registerJSON = `{"Count":3,"Organisations":[
 {"Id":"SRA1","PracticeName":"Alpha Law LLP","AuthorisationStatus":"Authorised","Offices":[
  {"OfficeId":"A1","OfficeType":"HEAD OFFICE","Address1":"1 High Street","Town":"London","Postcode":"EC1A 1BB","PhoneNumber":"020 7946 0000"},
  {"OfficeId":"A2","OfficeType":"BRANCH","Address1":"2 Market Square","Town":"Leeds"}]},
 {"Id":"SRA2","PracticeName":"Beta Solicitors","AuthorisationStatus":"Authorised","Offices":[
  {"OfficeId":"B1","OfficeType":"HEAD OFFICE","Address1":"3 Quay Street","Town":"Bristol","Postcode":"BS1 4DJ"}]},
 {"Id":"","PracticeName":"Nameless","Offices":[
  {"OfficeId":"C1","Address1":"4 Deansgate","Postcode":"M1 1AA"}]}
]}`

const rulesYAML = `rules:
  firm:
    - field: sraId
      required: true
    - field: name
      required: true
  office:
    - field: officeId
      required: true
    - field: postcode
      required: true
      check: pattern
      pattern: '^[A-Z0-9 ]+$'
`

// 2026-01-01T00:00:00Z
const fixedEpoch = "1767225600"

// newTestConfig lays out an input extract, a rule set and output paths
// under a temp directory.
func newTestConfig(t *testing.T, input, rules string) (*config.Config, string) {
	t.Helper()

	dir := t.TempDir()
	out := filepath.Join(dir, "output")

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}

		return path
	}

	cfg := config.Default()
	cfg.InputFile = write("response.json", input)
	cfg.RulesFile = write("rules.yaml", rules)
	cfg.RawOutputDir = filepath.Join(out, "raw")
	cfg.NormalizedOutputDir = filepath.Join(out, "normalized")
	cfg.JSONLDFirms = filepath.Join(out, "firms.jsonld")
	cfg.JSONLDDataset = filepath.Join(out, "dataset.jsonld")
	cfg.JSONLDManifest = filepath.Join(out, "manifest.jsonld")
	cfg.PublicIDBase = "https://id.example.org/"
	cfg.PublicFilesBase = "https://files.example.org/tier0/"

	return cfg, out
}

func envOf(vars map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func fixedEnv() config.LookupFunc {
	return envOf(map[string]string{"SOURCE_DATE_EPOCH": fixedEpoch})
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}

	return data
}

// assertNoOutput fails when anything was written under out.
func assertNoOutput(t *testing.T, out string) {
	t.Helper()

	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		entries, _ := os.ReadDir(out)
		t.Errorf("expected no output, found %d entries in %s", len(entries), out)
	}
}

func TestRun_Unsigned(t *testing.T) {
	cfg, out := newTestConfig(t, registerJSON, rulesYAML)

	res, err := Run(context.Background(), cfg, Options{Lookup: fixedEnv(), RunID: "run-1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Counts.FirmsAccepted != 2 || res.Counts.FirmsRejected != 1 {
		t.Errorf("firm counts = %+v", res.Counts)
	}

	if res.Counts.OfficesAccepted != 2 || res.Counts.OfficesRejected != 2 {
		t.Errorf("office counts = %+v", res.Counts)
	}

	if res.Manifest == nil || res.Manifest.Signed() {
		t.Fatalf("expected an unsigned manifest, got %+v", res.Manifest)
	}

	data := readFile(t, cfg.JSONLDManifest)
	if !strings.Contains(string(data), `"signature":null`) {
		t.Errorf("manifest should carry a null signature: %s", data)
	}

	if !strings.Contains(string(data), `"generatedAt":"2026-01-01T00:00:00Z"`) {
		t.Errorf("manifest generatedAt not taken from SOURCE_DATE_EPOCH: %s", data)
	}

	raw := readFile(t, filepath.Join(cfg.RawOutputDir, "sra-20260101.json"))
	if string(raw) != registerJSON {
		t.Error("raw audit copy differs from the input extract")
	}

	m, err := manifest.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	files := map[string][]byte{
		"firms.jsonld":   readFile(t, cfg.JSONLDFirms),
		"dataset.jsonld": readFile(t, cfg.JSONLDDataset),
	}

	if err := manifest.Verify(m, files, nil); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	firms := string(files["firms.jsonld"])
	for _, want := range []string{`"@id":"https://id.example.org/firm/SRA1"`, `"@id":"https://id.example.org/office/B1"`} {
		if !strings.Contains(firms, want) {
			t.Errorf("firms document missing %s", want)
		}
	}

	if strings.Contains(firms, "office/A2") || strings.Contains(firms, "office/C1") {
		t.Error("rejected offices must not reach the graph")
	}

	for _, p := range res.Written {
		if _, err := os.Stat(p + ".tmp"); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("temporary file left behind for %s", p)
		}
	}

	if last := res.Written[len(res.Written)-1]; last != filepath.Clean(cfg.JSONLDManifest) {
		t.Errorf("manifest should be published last, got %s", last)
	}

	if _, err := os.Stat(out); err != nil {
		t.Errorf("output directory missing: %v", err)
	}
}

func TestRun_Signed(t *testing.T) {
	cfg, _ := newTestConfig(t, registerJSON, rulesYAML)

	key, err := signer.Generate(signer.Ed25519)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	pemBytes, err := signer.MarshalPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPrivateKey failed: %v", err)
	}

	env := envOf(map[string]string{
		"SOURCE_DATE_EPOCH":  fixedEpoch,
		"VT_PRIVATE_KEY_PEM": string(pemBytes),
	})

	res, err := Run(context.Background(), cfg, Options{Lookup: env})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.Manifest.Signed() || res.Manifest.Signature.Algorithm != string(signer.Ed25519) {
		t.Fatalf("expected an Ed25519 signature, got %+v", res.Manifest.Signature)
	}

	m, err := manifest.Parse(readFile(t, cfg.JSONLDManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	files := map[string][]byte{
		"firms.jsonld":   readFile(t, cfg.JSONLDFirms),
		"dataset.jsonld": readFile(t, cfg.JSONLDDataset),
	}

	if err := manifest.Verify(m, files, key.Public()); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestRun_Deterministic(t *testing.T) {
	cfgA, _ := newTestConfig(t, registerJSON, rulesYAML)
	cfgB, _ := newTestConfig(t, registerJSON, rulesYAML)

	a, err := Run(context.Background(), cfgA, Options{Lookup: fixedEnv()})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	b, err := Run(context.Background(), cfgB, Options{Lookup: fixedEnv()})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if a.Manifest.OverallDigest != b.Manifest.OverallDigest {
		t.Errorf("overall digest differs: %s vs %s", a.Manifest.OverallDigest, b.Manifest.OverallDigest)
	}

	if string(readFile(t, cfgA.JSONLDDataset)) != string(readFile(t, cfgB.JSONLDDataset)) {
		t.Error("dataset documents differ between identical runs")
	}
}

func TestRun_UnknownCheckKind(t *testing.T) {
	rules := `rules:
  firm:
    - field: sraId
      check: luhn
`
	cfg, out := newTestConfig(t, registerJSON, rules)

	_, err := Run(context.Background(), cfg, Options{Lookup: fixedEnv()})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}

	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageRules {
		t.Errorf("expected a %s stage error, got %v", StageRules, err)
	}

	assertNoOutput(t, out)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg, out := newTestConfig(t, registerJSON, rulesYAML)
	cfg.PublicIDBase = "id.example.org"

	_, err := Run(context.Background(), cfg, Options{Lookup: fixedEnv()})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}

	assertNoOutput(t, out)
}

func TestRun_IdentifierCollision(t *testing.T) {
	input := `{"Organisations":[
 {"Id":"SRA9","PracticeName":"First"},
 {"Id":"SRA9","PracticeName":"Second"}
]}`
	cfg, out := newTestConfig(t, input, rulesYAML)

	_, err := Run(context.Background(), cfg, Options{Lookup: fixedEnv()})
	if !errors.Is(err, ErrIdentifierCollision) {
		t.Fatalf("expected ErrIdentifierCollision, got %v", err)
	}

	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageGraph {
		t.Errorf("expected a %s stage error, got %v", StageGraph, err)
	}

	assertNoOutput(t, out)
}

func TestRun_SharedOfficeIDAcrossFirms(t *testing.T) {
	input := `{"Organisations":[
 {"Id":"SRA1","PracticeName":"First","Offices":[{"OfficeId":"X","PhoneNumber":"020 7946 0000"}]},
 {"Id":"SRA2","PracticeName":"Second","Offices":[{"OfficeId":"X","Address1":"1 Quay Street"}]}
]}`
	rules := `rules:
  office:
    - field: officeId
      required: true
`
	cfg, out := newTestConfig(t, input, rules)

	_, err := Run(context.Background(), cfg, Options{Lookup: fixedEnv()})
	if !errors.Is(err, ErrIdentifierCollision) {
		t.Fatalf("expected ErrIdentifierCollision, got %v", err)
	}

	assertNoOutput(t, out)
}

func TestRun_UnusableKey(t *testing.T) {
	cfg, out := newTestConfig(t, registerJSON, rulesYAML)

	env := envOf(map[string]string{"VT_PRIVATE_KEY_PEM": "not a key"})

	_, err := Run(context.Background(), cfg, Options{Lookup: env})
	if !errors.Is(err, ErrSigningKey) {
		t.Fatalf("expected ErrSigningKey, got %v", err)
	}

	if !errors.Is(err, signer.ErrKeyUnusable) {
		t.Errorf("expected the signer cause to be kept, got %v", err)
	}

	assertNoOutput(t, out)
}

func TestRun_NormalizeOnly(t *testing.T) {
	cfg, _ := newTestConfig(t, registerJSON, rulesYAML)
	cfg.Report.Markdown = filepath.Join(filepath.Dir(cfg.NormalizedOutputDir), "report.md")

	res, err := Run(context.Background(), cfg, Options{Lookup: fixedEnv(), NormalizeOnly: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Manifest != nil {
		t.Error("normalize-only run should not build a manifest")
	}

	if _, err := os.Stat(cfg.JSONLDFirms); !errors.Is(err, os.ErrNotExist) {
		t.Error("normalize-only run should not publish linked data")
	}

	firms := readFile(t, filepath.Join(cfg.NormalizedOutputDir, "firms.json"))
	if !strings.Contains(string(firms), `"sraId":"SRA2"`) {
		t.Errorf("snapshot missing accepted firm: %s", firms)
	}

	md := readFile(t, cfg.Report.Markdown)
	if !strings.Contains(string(md), "## Rejected entities (3)") {
		t.Errorf("unexpected report:\n%s", md)
	}
}

func TestRun_ReportsDroppedRows(t *testing.T) {
	input := strings.Replace(registerJSON, `"Postcode":"BS1 4DJ"}]}`, `"Postcode":"BS1 4DJ"},"B2"]}`, 1)
	cfg, _ := newTestConfig(t, input, rulesYAML)
	cfg.Report.Markdown = filepath.Join(filepath.Dir(cfg.NormalizedOutputDir), "report.md")

	res, err := Run(context.Background(), cfg, Options{Lookup: fixedEnv(), NormalizeOnly: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Dropped) != 1 || res.Dropped[0].Location != "Organisations[1].Offices[1]" {
		t.Fatalf("Dropped = %+v, want the string office entry of SRA2", res.Dropped)
	}

	if res.Counts.OfficesAccepted != 2 || res.Counts.OfficesRejected != 2 {
		t.Errorf("office counts = %+v", res.Counts)
	}

	md := string(readFile(t, cfg.Report.Markdown))
	for _, want := range []string{"## Dropped source rows (1)", "office entry is a string, not an object"} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
}

func TestRun_LedgerAndMetrics(t *testing.T) {
	cfg, out := newTestConfig(t, registerJSON, rulesYAML)
	cfg.Ledger.Path = filepath.Join(out, "..", "state", "ledger.db")
	cfg.Metrics.Textfile = filepath.Join(out, "..", "metrics", "tier0.prom")

	res, err := Run(context.Background(), cfg, Options{Lookup: fixedEnv(), Metrics: metrics.New()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		t.Fatalf("Open ledger failed: %v", err)
	}
	defer l.Close()

	runs, err := l.Runs(context.Background(), 0)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}

	if len(runs) != 1 || runs[0].RunID != res.RunID || runs[0].Rejected != 3 {
		t.Errorf("unexpected ledger rows: %+v", runs)
	}

	prom := readFile(t, cfg.Metrics.Textfile)
	if !strings.Contains(string(prom), `tier0_entities_total{kind="office",outcome="rejected"} 2`) {
		t.Errorf("metrics textfile missing office rejections:\n%s", prom)
	}
}
