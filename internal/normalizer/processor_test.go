package normalizer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tier0/internal/logger"
	"tier0/internal/models"
)

func TestNewProcessor(t *testing.T) {
	p := NewProcessor(Settings{HeadOfficeCode: headOfficeCode}, 0, nil)
	if p == nil {
		t.Fatal("NewProcessor returned nil")
	}

	if p.workers != 1 {
		t.Errorf("workers = %d, want 1", p.workers)
	}
}

func TestProcessor_Process_KeepsOrder(t *testing.T) {
	p := NewProcessor(Settings{HeadOfficeCode: headOfficeCode}, 8, logger.Discard())

	var raws []models.RawFirm
	for i := range 50 {
		raws = append(raws, models.RawFirm{
			Fields: models.Fields{models.FieldID: fmt.Sprintf("F%03d", i)},
			Offices: []models.RawOffice{
				{Fields: models.Fields{models.FieldOfficeID: fmt.Sprintf("O%03da", i)}},
				{Fields: models.Fields{models.FieldOfficeID: fmt.Sprintf("O%03db", i)}},
			},
		})
	}

	batch, err := p.Process(context.Background(), raws)
	if err != nil {
		t.Fatalf("Process returned unexpected error: %v", err)
	}

	if len(batch.Firms) != 50 || len(batch.Offices) != 100 {
		t.Fatalf("got %d firms and %d offices, want 50 and 100", len(batch.Firms), len(batch.Offices))
	}

	for i, f := range batch.Firms {
		if want := fmt.Sprintf("F%03d", i); f.Key() != want {
			t.Fatalf("firm %d = %s, want %s", i, f.Key(), want)
		}
	}

	for i, o := range batch.Offices {
		suffix := "a"
		if i%2 == 1 {
			suffix = "b"
		}

		if want := fmt.Sprintf("O%03d%s", i/2, suffix); o.Key() != want {
			t.Fatalf("office %d = %s, want %s", i, o.Key(), want)
		}

		assertStr(t, "FirmSraID", o.FirmSraID, fmt.Sprintf("F%03d", i/2))
	}
}

func TestProcessor_Process_HeadOfficeScenario(t *testing.T) {
	p := NewProcessor(Settings{HeadOfficeCode: headOfficeCode}, 2, nil)

	batch, err := p.Process(context.Background(), []models.RawFirm{sampleFirm()})
	if err != nil {
		t.Fatalf("Process returned unexpected error: %v", err)
	}

	if !batch.Offices[0].HeadOffice || batch.Offices[1].HeadOffice {
		t.Errorf("head office flags = %v/%v, want true/false", batch.Offices[0].HeadOffice, batch.Offices[1].HeadOffice)
	}

	if got := batch.OfficesOf(0); len(got) != 2 {
		t.Errorf("OfficesOf(0) returned %d offices, want 2", len(got))
	}
}

func TestProcessor_Process_Cancelled(t *testing.T) {
	p := NewProcessor(Settings{HeadOfficeCode: headOfficeCode}, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, []models.RawFirm{sampleFirm()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Process error = %v, want context.Canceled", err)
	}
}

func TestProcessor_Process_Empty(t *testing.T) {
	p := NewProcessor(Settings{HeadOfficeCode: headOfficeCode}, 4, nil)

	batch, err := p.Process(context.Background(), nil)
	if err != nil {
		t.Fatalf("Process returned unexpected error: %v", err)
	}

	if len(batch.Firms) != 0 || len(batch.Offices) != 0 {
		t.Errorf("expected empty batch, got %+v", batch)
	}
}
