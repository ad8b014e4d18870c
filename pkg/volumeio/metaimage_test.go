package volumeio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ctpatch/internal/models"
)

// createTestVolume builds a small volume with a distinct value per voxel
func createTestVolume(elem models.ElementType) *models.Volume {
	geom := models.Geometry{
		Origin:    [3]float64{-195.30000305175781, -210.8, -331.25},
		Spacing:   [3]float64{0.68359375, 0.68359375, 2.5},
		Direction: [9]float64{1, 0, 0, 0, 0, -1, 0, 1, 0},
	}
	vol := models.NewVolume(7, 5, 3, geom, elem)
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				vol.Set(x, y, z, float64(x+10*y+100*z)-150)
			}
		}
	}
	return vol
}

func assertSameVolume(t *testing.T, want, got *models.Volume) {
	t.Helper()
	if got.Size() != want.Size() {
		t.Fatalf("Expected size %v, got %v", want.Size(), got.Size())
	}
	if got.Geometry != want.Geometry {
		t.Errorf("Geometry did not round-trip:\nwant %+v\ngot  %+v", want.Geometry, got.Geometry)
	}
	if got.ElementType != want.ElementType {
		t.Errorf("Expected element type %s, got %s", want.ElementType, got.ElementType)
	}
	for i := range want.Data {
		if got.Data[i] != want.Data[i] {
			t.Fatalf("Voxel %d: expected %f, got %f", i, want.Data[i], got.Data[i])
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, elem := range []models.ElementType{models.ElementShort, models.ElementInt, models.ElementFloat, models.ElementDouble} {
		vol := createTestVolume(elem)
		path := filepath.Join(dir, strings.ToLower(string(elem))+".mhd")

		if err := Write(path, vol, WriteOptions{}); err != nil {
			t.Fatalf("Write %s failed: %v", elem, err)
		}
		got, err := Read(path)
		if err != nil {
			t.Fatalf("Read %s failed: %v", elem, err)
		}
		assertSameVolume(t, vol, got)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	vol := createTestVolume(models.ElementShort)
	path := filepath.Join(dir, "scan.mhd")

	if err := Write(path, vol, WriteOptions{Compress: true}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "scan.zraw")); err != nil {
		t.Fatalf("Expected scan.zraw next to header: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if !h.Compressed || h.CompressedSize <= 0 {
		t.Errorf("Expected compressed header, got %+v", h)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	assertSameVolume(t, vol, got)
}

func TestLocalDataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.mha")
	vol := createTestVolume(models.ElementFloat)

	if err := Write(path, vol, WriteOptions{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	assertSameVolume(t, vol, got)
}

func TestUCharClampsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mask.mhd")
	vol := models.NewVolume(3, 1, 1, models.NewGeometry([3]float64{}, [3]float64{1, 1, 1}), models.ElementUChar)
	vol.Data = []float64{-3, 0.6, 400}

	if err := Write(path, vol, WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 1, 255}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Errorf("Voxel %d: expected %f, got %f", i, want[i], got.Data[i])
		}
	}
}

func TestReadBigEndianHeader(t *testing.T) {
	dir := t.TempDir()
	header := "ObjectType = Image\nNDims = 3\nBinaryData = True\nBinaryDataByteOrderMSB = True\n" +
		"CompressedData = False\nOffset = 1 2 3\nElementSpacing = 0.5 0.5 2\nDimSize = 2 1 1\n" +
		"ElementType = MET_SHORT\nElementDataFile = be.raw\n"
	if err := os.WriteFile(filepath.Join(dir, "be.mhd"), []byte(header), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "be.raw"), []byte{0xFF, 0x38, 0x00, 0x64}, 0644); err != nil {
		t.Fatal(err)
	}

	vol, err := Read(filepath.Join(dir, "be.mhd"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if vol.Data[0] != -200 || vol.Data[1] != 100 {
		t.Errorf("Expected [-200 100], got %v", vol.Data)
	}
	if vol.Geometry.Origin != [3]float64{1, 2, 3} {
		t.Errorf("Expected origin (1,2,3), got %v", vol.Geometry.Origin)
	}
	if vol.Geometry.Direction != models.IdentityDirection {
		t.Errorf("Expected identity direction by default, got %v", vol.Geometry.Direction)
	}
}

func TestReadCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.mhd")
	if err := os.WriteFile(garbage, []byte("this is not a header\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(garbage); err == nil {
		t.Error("Expected error for garbage header")
	}

	truncated := filepath.Join(dir, "short.mhd")
	header := "NDims = 3\nDimSize = 4 4 4\nElementType = MET_SHORT\nElementDataFile = short.raw\n"
	if err := os.WriteFile(truncated, []byte(header), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "short.raw"), make([]byte, 10), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(truncated); err == nil {
		t.Error("Expected error for truncated voxel data")
	}
}
