// Package volumeio loads and saves volumes in the MetaImage format:
// a text header (.mhd) paired with a raw voxel file (.raw, or .zraw when
// zlib-compressed), or a single .mha file with the voxels appended after
// the header. Geometry round-trips exactly between Read and Write.
package volumeio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zlib"

	"ctpatch/internal/models"
)

// WriteOptions control how Write encodes the voxel payload.
type WriteOptions struct {
	// Compress stores the payload zlib-compressed
	Compress bool
}

// Read loads a volume and its geometry from a .mhd or .mha file.
func Read(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	h, err := parseHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header %s: %w", path, err)
	}

	var payload io.Reader
	if h.ElementDataFile == localDataFile {
		if _, err := f.Seek(h.dataOffset, io.SeekStart); err != nil {
			return nil, err
		}
		payload = bufio.NewReader(f)
	} else {
		dataPath := h.ElementDataFile
		if !filepath.IsAbs(dataPath) {
			dataPath = filepath.Join(filepath.Dir(path), dataPath)
		}
		df, err := os.Open(dataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open voxel data: %w", err)
		}
		defer df.Close()
		payload = bufio.NewReader(df)
	}

	if h.Compressed {
		zr, err := zlib.NewReader(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed voxel data: %w", err)
		}
		defer zr.Close()
		payload = zr
	}

	vol := models.NewVolume(h.DimSize[0], h.DimSize[1], h.DimSize[2], h.Geometry(), h.ElementType)

	if err := decodeVoxels(payload, h, vol.Data); err != nil {
		return nil, fmt.Errorf("failed to read voxel data of %s: %w", path, err)
	}
	return vol, nil
}

// Write saves vol next to path. A .mha path gets the voxels inline;
// any other path gets a sibling .raw/.zraw data file.
func Write(path string, vol *models.Volume, opts WriteOptions) error {
	if len(vol.Data) != vol.Width*vol.Height*vol.Depth {
		return fmt.Errorf("volume data length %d does not match %dx%dx%d",
			len(vol.Data), vol.Width, vol.Height, vol.Depth)
	}
	elem := vol.ElementType
	if elem == "" {
		elem = models.ElementFloat
	}

	var raw bytes.Buffer
	if err := encodeVoxels(&raw, elem, vol.Data); err != nil {
		return err
	}

	payload := raw.Bytes()
	if opts.Compress {
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		if _, err := zw.Write(payload); err != nil {
			return fmt.Errorf("failed to compress voxel data: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to compress voxel data: %w", err)
		}
		payload = z.Bytes()
	}

	h := &Header{
		NDims:           3,
		DimSize:         vol.Size(),
		ElementType:     elem,
		ElementSpacing:  vol.Geometry.Spacing,
		Offset:          vol.Geometry.Origin,
		TransformMatrix: direction(vol.Geometry.Direction),
		Compressed:      opts.Compress,
		CompressedSize:  int64(len(payload)),
	}

	if strings.EqualFold(filepath.Ext(path), ".mha") {
		h.ElementDataFile = localDataFile
		var buf bytes.Buffer
		if err := writeHeader(&buf, h); err != nil {
			return err
		}
		buf.Write(payload)
		return writeAtomic(path, buf.Bytes())
	}

	ext := ".raw"
	if opts.Compress {
		ext = ".zraw"
	}
	dataName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ext
	h.ElementDataFile = dataName

	if err := writeAtomic(filepath.Join(filepath.Dir(path), dataName), payload); err != nil {
		return err
	}
	var hdr bytes.Buffer
	if err := writeHeader(&hdr, h); err != nil {
		return err
	}
	return writeAtomic(path, hdr.Bytes())
}

// ReadHeader parses only the header of a volume file.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseHeader(bufio.NewReader(f))
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func elementSize(t models.ElementType) (int, error) {
	switch t {
	case models.ElementUChar, models.ElementChar:
		return 1, nil
	case models.ElementUShort, models.ElementShort:
		return 2, nil
	case models.ElementUInt, models.ElementInt, models.ElementFloat:
		return 4, nil
	case models.ElementDouble:
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported ElementType %q", t)
	}
}

func decodeVoxels(r io.Reader, h *Header, dst []float64) error {
	size, err := elementSize(h.ElementType)
	if err != nil {
		return err
	}
	var order binary.ByteOrder = binary.LittleEndian
	if h.ByteOrderMSB {
		order = binary.BigEndian
	}

	buf := make([]byte, len(dst)*size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}

	for i := range dst {
		b := buf[i*size : (i+1)*size]
		switch h.ElementType {
		case models.ElementUChar:
			dst[i] = float64(b[0])
		case models.ElementChar:
			dst[i] = float64(int8(b[0]))
		case models.ElementUShort:
			dst[i] = float64(order.Uint16(b))
		case models.ElementShort:
			dst[i] = float64(int16(order.Uint16(b)))
		case models.ElementUInt:
			dst[i] = float64(order.Uint32(b))
		case models.ElementInt:
			dst[i] = float64(int32(order.Uint32(b)))
		case models.ElementFloat:
			dst[i] = float64(math.Float32frombits(order.Uint32(b)))
		case models.ElementDouble:
			dst[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return nil
}

func encodeVoxels(w *bytes.Buffer, t models.ElementType, src []float64) error {
	size, err := elementSize(t)
	if err != nil {
		return err
	}
	order := binary.LittleEndian
	w.Grow(len(src) * size)
	b := make([]byte, size)

	for _, v := range src {
		switch t {
		case models.ElementUChar:
			b[0] = uint8(clampRound(v, 0, math.MaxUint8))
		case models.ElementChar:
			b[0] = uint8(int8(clampRound(v, math.MinInt8, math.MaxInt8)))
		case models.ElementUShort:
			order.PutUint16(b, uint16(clampRound(v, 0, math.MaxUint16)))
		case models.ElementShort:
			order.PutUint16(b, uint16(int16(clampRound(v, math.MinInt16, math.MaxInt16))))
		case models.ElementUInt:
			order.PutUint32(b, uint32(clampRound(v, 0, math.MaxUint32)))
		case models.ElementInt:
			order.PutUint32(b, uint32(int32(clampRound(v, math.MinInt32, math.MaxInt32))))
		case models.ElementFloat:
			order.PutUint32(b, math.Float32bits(float32(v)))
		case models.ElementDouble:
			order.PutUint64(b, math.Float64bits(v))
		}
		w.Write(b)
	}
	return nil
}

func clampRound(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
