package validator

import (
	"context"
	"reflect"
	"testing"

	"tier0/internal/models"
)

func str(s string) *string { return &s }

func newTestValidator(t *testing.T) *Validator {
	t.Helper()

	rs, err := ParseYAML([]byte(testRulesYAML))
	if err != nil {
		t.Fatalf("ParseYAML failed: %v", err)
	}

	return New(rs, 4, nil)
}

func firm(index int, id string) models.Firm {
	f := models.Firm{Index: index, Name: str("Firm " + id)}
	if id != "" {
		f.SraID = str(id)
		f.RawID = id
	} else {
		f.IDCondition = models.IDMissing
	}

	return f
}

func office(firmIndex, index int, id, postcode string, owner *string) models.Office {
	o := models.Office{
		OfficeID:  str(id),
		RawID:     id,
		FirmSraID: owner,
		FirmIndex: firmIndex,
		Index:     index,
		Address:   models.Address{Country: "GB"},
	}

	if postcode != "" {
		o.Address.Postcode = str(postcode)
	}

	return o
}

func TestValidateFirm_Reasons(t *testing.T) {
	v := newTestValidator(t)

	status := models.StatusUnknown
	f := models.Firm{Status: &status, IDCondition: models.IDMalformed, RawID: "SRA 1"}

	got := v.ValidateFirm(&f)

	want := []string{
		`sraId: malformed identifier "SRA 1"`,
		"name: required field missing",
		`status: value "Unknown" not in [Authorised Suspended Revoked Closed Intervened]`,
	}

	if got.Accepted {
		t.Error("firm accepted, want rejected")
	}

	if !reflect.DeepEqual(got.Reasons, want) {
		t.Errorf("Reasons = %q, want %q", got.Reasons, want)
	}

	if got.Key != "#1" {
		t.Errorf("Key = %q, want #1", got.Key)
	}
}

func TestValidateOffice_MissingPostcode(t *testing.T) {
	v := newTestValidator(t)

	o := office(0, 0, "O1", "", str("SRA123"))
	got := v.ValidateOffice(&o)

	if got.Accepted {
		t.Fatal("office accepted, want rejected")
	}

	want := []string{"postcode: required field missing"}
	if !reflect.DeepEqual(got.Reasons, want) {
		t.Errorf("Reasons = %q, want %q", got.Reasons, want)
	}
}

func TestValidateOffice_PatternMismatch(t *testing.T) {
	v := newTestValidator(t)

	o := office(0, 0, "O1", "ec1a 1bb", str("SRA123"))
	got := v.ValidateOffice(&o)

	want := []string{`postcode: value "ec1a 1bb" does not match ^[A-Z0-9 ]+$`}
	if !reflect.DeepEqual(got.Reasons, want) {
		t.Errorf("Reasons = %q, want %q", got.Reasons, want)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		rule   Rule
		value  any
		want   string
		wantOK bool
	}{
		{"presence ok", Rule{Field: "f", Check: CheckPresence}, "x", "", true},
		{"presence missing", Rule{Field: "f", Check: CheckPresence}, absent{}, "f: required field missing", false},
		{"non_empty skips absent", Rule{Field: "f", Check: CheckNonEmpty}, absent{}, "", true},
		{"non_empty blank", Rule{Field: "f", Check: CheckNonEmpty}, "  ", "f: must not be empty", false},
		{"type_string bool", Rule{Field: "isHeadOffice", Check: CheckTypeString}, true, "isHeadOffice: must be a string", false},
		{"enum ok", Rule{Field: "f", Check: CheckTypeEnum, Values: []string{"a", "b"}}, "b", "", true},
		{"enum miss", Rule{Field: "f", Check: CheckTypeEnum, Values: []string{"a", "b"}}, "c", `f: value "c" not in [a b]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := check(tt.rule, tt.value)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("check() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPartition_Totality(t *testing.T) {
	v := newTestValidator(t)

	batch := models.Batch{
		Firms: []models.Firm{firm(0, "SRA123"), firm(1, ""), firm(2, "SRA789")},
		Offices: []models.Office{
			office(0, 0, "O1", "EC1A 1BB", str("SRA123")),
			office(0, 1, "O2", "", str("SRA123")),
			office(1, 0, "O3", "LS1 4AP", nil),
			office(2, 0, "O4", "M1 1AE", str("SRA789")),
		},
	}

	part, err := v.Partition(context.Background(), batch)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	if got := len(part.Verdicts); got != len(batch.Firms)+len(batch.Offices) {
		t.Fatalf("got %d verdicts, want %d", got, len(batch.Firms)+len(batch.Offices))
	}

	if part.Counts.Total() != len(part.Verdicts) {
		t.Errorf("counts total %d != verdicts %d", part.Counts.Total(), len(part.Verdicts))
	}

	want := models.Counts{FirmsAccepted: 2, FirmsRejected: 1, OfficesAccepted: 2, OfficesRejected: 2}
	if part.Counts != want {
		t.Errorf("Counts = %+v, want %+v", part.Counts, want)
	}

	var acceptedFirms []string
	for _, f := range part.Accepted.Firms {
		acceptedFirms = append(acceptedFirms, f.Key())
	}

	if !reflect.DeepEqual(acceptedFirms, []string{"SRA123", "SRA789"}) {
		t.Errorf("accepted firms = %v", acceptedFirms)
	}

	var acceptedOffices []string
	for _, o := range part.Accepted.Offices {
		acceptedOffices = append(acceptedOffices, o.Key())
	}

	if !reflect.DeepEqual(acceptedOffices, []string{"O1", "O4"}) {
		t.Errorf("accepted offices = %v", acceptedOffices)
	}

	cascaded := part.Verdicts[len(batch.Firms)+2]
	if cascaded.Key != "O3" || cascaded.Accepted {
		t.Fatalf("verdict = %+v, want rejected O3", cascaded)
	}

	if last := cascaded.Reasons[len(cascaded.Reasons)-1]; last != ReasonOwnerRejected {
		t.Errorf("last reason = %q, want %q", last, ReasonOwnerRejected)
	}

	if got := len(part.Rejected()); got != 3 {
		t.Errorf("Rejected() = %d, want 3", got)
	}
}

func TestPartition_Cancelled(t *testing.T) {
	v := newTestValidator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := v.Partition(ctx, models.Batch{Firms: []models.Firm{firm(0, "A1")}}); err == nil {
		t.Error("expected cancellation error")
	}
}
