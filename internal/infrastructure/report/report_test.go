package report

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"PfamSurvey/internal/domain"
)

func row(accession, target, group string, evalue float64) domain.SummaryRow {
	return domain.SummaryRow{
		Hit:      domain.Hit{Accession: accession, QueryName: "q", TargetName: target, EValue: evalue, Score: 10},
		GroupKey: group,
	}
}

func sampleRows() []domain.SummaryRow {
	return []domain.SummaryRow{
		row("PF00002", "ACA_1", "ACA", 1e-20),
		row("PF00001", "ACA_2", "ACA", 1e-10),
		row("PF00001", "ACA_3", "ACA", 1e-5),
		row("PF00001", "Bm_1", "Bm_", 0.01),
		row("PF00002", "Bm_2", "Bm_", 0),
	}
}

func TestCountByGroup(t *testing.T) {
	t.Parallel()

	gc := CountByGroup(sampleRows())

	if len(gc.Accessions) != 2 || gc.Accessions[0] != "PF00001" || gc.Accessions[1] != "PF00002" {
		t.Fatalf("unexpected accessions %v", gc.Accessions)
	}
	if len(gc.Groups) != 2 || gc.Groups[0] != "ACA" || gc.Groups[1] != "Bm_" {
		t.Fatalf("unexpected groups %v", gc.Groups)
	}

	want := [][]int{{2, 1}, {1, 1}}
	for g := range want {
		for a := range want[g] {
			if gc.Counts[g][a] != want[g][a] {
				t.Fatalf("count[%s][%s]: want %d, got %d", gc.Groups[g], gc.Accessions[a], want[g][a], gc.Counts[g][a])
			}
		}
	}

	total := 0
	for _, byAcc := range gc.Counts {
		for _, n := range byAcc {
			total += n
		}
	}
	if total != len(sampleRows()) {
		t.Fatalf("counts should cover every row, got %d", total)
	}
}

func TestEValuesByGroup(t *testing.T) {
	t.Parallel()

	got := EValuesByGroup(sampleRows())
	if len(got["PF00001"]["ACA"]) != 2 {
		t.Fatalf("expected 2 values, got %v", got["PF00001"]["ACA"])
	}
	if len(got["PF00002"]["Bm_"]) != 1 {
		t.Fatalf("expected 1 value, got %v", got["PF00002"]["Bm_"])
	}
}

func TestRendererWritesCharts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files, err := NewRenderer("png", nil).Render(sampleRows(), dir)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 charts, got %d", len(files))
	}
	for _, f := range files {
		if filepath.Dir(f) != dir {
			t.Fatalf("chart written outside dir: %s", f)
		}
		info, err := os.Stat(f)
		if err != nil {
			t.Fatalf("chart missing: %v", err)
		}
		if info.Size() == 0 {
			t.Fatalf("chart %s is empty", f)
		}
	}
}

func TestRendererSingleValue(t *testing.T) {
	t.Parallel()

	rows := []domain.SummaryRow{row("PF00001", "ACA_1", "ACA", 1e-5)}
	if _, err := NewRenderer("svg", nil).Render(rows, t.TempDir()); err != nil {
		t.Fatalf("Render error: %v", err)
	}
}

func TestRendererNoRows(t *testing.T) {
	t.Parallel()

	if _, err := NewRenderer("", nil).Render(nil, t.TempDir()); err == nil {
		t.Fatalf("expected error for empty table")
	}
}

func TestSwatchThumbnailFillsCell(t *testing.T) {
	t.Parallel()

	img := vgimg.New(vg.Points(10), vg.Points(10))
	dc := draw.New(img)
	swatch{color: color.RGBA{R: 255, A: 255}}.Thumbnail(&dc)

	bounds := img.Image().Bounds()
	r, g, b, a := img.Image().At(bounds.Dx()/2, bounds.Dy()/2).RGBA()
	if r != 0xffff || g != 0 || b != 0 || a != 0xffff {
		t.Fatalf("expected a red cell, got %d %d %d %d", r, g, b, a)
	}
}

func TestEValuesLegendPerGroup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "evalues.svg")
	if err := NewRenderer("svg", nil).EValues(sampleRows(), path); err != nil {
		t.Fatalf("EValues error: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("chart missing: %v", err)
	}
	for _, group := range []string{"ACA", "Bm_"} {
		if !strings.Contains(string(raw), group) {
			t.Fatalf("legend has no entry for %s", group)
		}
	}
}
