package volumeio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ctpatch/internal/models"
)

// Header is the parsed MetaImage text header.
type Header struct {
	NDims           int
	DimSize         [3]int
	ElementType     models.ElementType
	ElementSpacing  [3]float64
	Offset          [3]float64
	TransformMatrix [9]float64
	ByteOrderMSB    bool
	Compressed      bool
	CompressedSize  int64
	ElementDataFile string
	Channels        int

	// dataOffset is the byte position right after the header; only
	// meaningful for LOCAL data.
	dataOffset int64
}

const localDataFile = "LOCAL"

// Geometry returns the physical placement described by the header.
func (h *Header) Geometry() models.Geometry {
	return models.Geometry{
		Origin:    h.Offset,
		Spacing:   h.ElementSpacing,
		Direction: direction(h.TransformMatrix),
	}
}

func parseHeader(r *bufio.Reader) (*Header, error) {
	h := &Header{
		NDims:           3,
		DimSize:         [3]int{1, 1, 1},
		ElementSpacing:  [3]float64{1, 1, 1},
		TransformMatrix: models.IdentityDirection,
		Channels:        1,
	}

	var consumed int64
	seen := map[string]bool{}
	for {
		line, err := r.ReadString('\n')
		consumed += int64(len(line))
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, fmt.Errorf("header ended before ElementDataFile")
			}
			return nil, err
		}

		key, value, ok := strings.Cut(strings.TrimRight(line, "\r\n"), "=")
		if !ok {
			if strings.TrimSpace(line) == "" {
				continue
			}
			return nil, fmt.Errorf("malformed header line %q", strings.TrimSpace(line))
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		seen[key] = true

		switch key {
		case "NDims":
			n, err := strconv.Atoi(value)
			if err != nil || n < 2 || n > 3 {
				return nil, fmt.Errorf("unsupported NDims %q", value)
			}
			h.NDims = n
		case "DimSize":
			if err := parseInts(value, h.NDims, h.DimSize[:]); err != nil {
				return nil, fmt.Errorf("DimSize: %w", err)
			}
		case "ElementType":
			h.ElementType = models.ElementType(value)
			if _, err := elementSize(h.ElementType); err != nil {
				return nil, err
			}
		case "ElementSpacing", "ElementSize":
			if key == "ElementSize" && seen["ElementSpacing"] {
				continue
			}
			if err := parseFloats(value, h.NDims, h.ElementSpacing[:]); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		case "Offset", "Position", "Origin":
			if err := parseFloats(value, h.NDims, h.Offset[:]); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
		case "TransformMatrix", "Rotation", "Orientation":
			var tm [9]float64
			if h.NDims == 3 {
				if err := parseFloats(value, 9, tm[:]); err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
			} else {
				var tm2 [4]float64
				if err := parseFloats(value, 4, tm2[:]); err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				tm = [9]float64{tm2[0], tm2[1], 0, tm2[2], tm2[3], 0, 0, 0, 1}
			}
			h.TransformMatrix = tm
		case "BinaryDataByteOrderMSB", "ElementByteOrderMSB":
			h.ByteOrderMSB = parseBool(value)
		case "CompressedData":
			h.Compressed = parseBool(value)
		case "CompressedDataSize":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("CompressedDataSize: %w", err)
			}
			h.CompressedSize = n
		case "ElementNumberOfChannels":
			n, err := strconv.Atoi(value)
			if err != nil || n != 1 {
				return nil, fmt.Errorf("only single-channel volumes are supported, got %q", value)
			}
		case "BinaryData":
			if !parseBool(value) {
				return nil, fmt.Errorf("ASCII voxel data is not supported")
			}
		case "ElementDataFile":
			h.ElementDataFile = value
			h.dataOffset = consumed
		}

		if key == "ElementDataFile" {
			break
		}
	}

	if h.ElementType == "" {
		return nil, fmt.Errorf("header has no ElementType")
	}
	for i, d := range h.DimSize {
		if d < 1 {
			return nil, fmt.Errorf("DimSize[%d] = %d", i, d)
		}
	}
	return h, nil
}

func writeHeader(w io.Writer, h *Header) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ObjectType = Image\n")
	fmt.Fprintf(bw, "NDims = 3\n")
	fmt.Fprintf(bw, "BinaryData = True\n")
	fmt.Fprintf(bw, "BinaryDataByteOrderMSB = %s\n", formatBool(h.ByteOrderMSB))
	fmt.Fprintf(bw, "CompressedData = %s\n", formatBool(h.Compressed))
	if h.Compressed {
		fmt.Fprintf(bw, "CompressedDataSize = %d\n", h.CompressedSize)
	}
	fmt.Fprintf(bw, "TransformMatrix = %s\n", formatFloats(h.TransformMatrix[:]))
	fmt.Fprintf(bw, "Offset = %s\n", formatFloats(h.Offset[:]))
	fmt.Fprintf(bw, "CenterOfRotation = 0 0 0\n")
	fmt.Fprintf(bw, "ElementSpacing = %s\n", formatFloats(h.ElementSpacing[:]))
	fmt.Fprintf(bw, "DimSize = %d %d %d\n", h.DimSize[0], h.DimSize[1], h.DimSize[2])
	fmt.Fprintf(bw, "ElementType = %s\n", h.ElementType)
	fmt.Fprintf(bw, "ElementDataFile = %s\n", h.ElementDataFile)
	return bw.Flush()
}

// direction converts a MetaImage TransformMatrix, whose rows are the
// axis direction vectors, into a row-major direction whose columns are.
func direction(tm [9]float64) [9]float64 {
	var d [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			d[r*3+c] = tm[c*3+r]
		}
	}
	return d
}

func parseInts(s string, n int, dst []int) error {
	fields := strings.Fields(s)
	if len(fields) < n {
		return fmt.Errorf("want %d values, got %q", n, s)
	}
	for i := 0; i < n; i++ {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func parseFloats(s string, n int, dst []float64) error {
	fields := strings.Fields(s)
	if len(fields) < n {
		return fmt.Errorf("want %d values, got %q", n, s)
	}
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func parseBool(s string) bool {
	return strings.EqualFold(s, "true") || s == "1"
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
