package annotations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const lunaCSV = `seriesuid,coordX,coordY,coordZ,diameter_mm
1.3.6.1.4.1.14519.5.2.1.6279.6001.100225287222365663678666836860,-128.6994211,-175.3192718,-298.3875064,5.651470635
1.3.6.1.4.1.14519.5.2.1.6279.6001.100225287222365663678666836860,103.7836509,-211.9251487,-227.12125,4.224708481
1.3.6.1.4.1.14519.5.2.1.6279.6001.100398138793540579077826395208,69.63901724,-140.9445859,876.3744957,5.786347814
`

func TestParseLUNA(t *testing.T) {
	table, err := Parse(strings.NewReader(lunaCSV))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(table.Rows))
	}

	first := table.Rows[0]
	if first.Point.X != -128.6994211 || first.Point.Y != -175.3192718 || first.Point.Z != -298.3875064 {
		t.Errorf("Unexpected point %+v", first.Point)
	}

	rows := table.ForSeries("1.3.6.1.4.1.14519.5.2.1.6279.6001.100225287222365663678666836860")
	if len(rows) != 2 {
		t.Errorf("Expected 2 rows for first series, got %d", len(rows))
	}
	if rows[1].Point.X != 103.7836509 {
		t.Errorf("Expected rows in file order")
	}

	if series := table.Series(); len(series) != 2 {
		t.Errorf("Expected 2 distinct series, got %v", series)
	}
}

func TestParseReorderedHeader(t *testing.T) {
	table, err := Parse(strings.NewReader("coordZ, coordY, coordX, seriesuid\n3, 2, 1, scan\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(table.Rows))
	}
	r := table.Rows[0]
	if r.Series != "scan" || r.Point.X != 1 || r.Point.Y != 2 || r.Point.Z != 3 {
		t.Errorf("Unexpected row %+v", r)
	}
}

func TestParseHeaderless(t *testing.T) {
	table, err := Parse(strings.NewReader("scan,10,10,10\nscan,0,0,0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 2 || table.Rows[0].Point.X != 10 {
		t.Errorf("Unexpected rows %+v", table.Rows)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(strings.NewReader("seriesuid,coordX,coordY,coordZ\nscan,1,abc,3\n")); err == nil {
		t.Error("Expected error for non-numeric coordinate")
	}
	if _, err := Parse(strings.NewReader("scan,1,2\n")); err == nil {
		t.Error("Expected error for short row")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.csv")
	if err := os.WriteFile(path, []byte(lunaCSV), 0644); err != nil {
		t.Fatal(err)
	}
	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(table.Rows) != 3 {
		t.Errorf("Expected 3 rows, got %d", len(table.Rows))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv")); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}
