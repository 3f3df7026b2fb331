// Package telemetry decodes GPS samples from the KLV metadata stream that
// action cameras embed in their video containers.
//
// Every item is an 8-byte header (fourCC, type, element size, big-endian
// repeat count) followed by size*repeat payload bytes padded to a multiple of
// four. Type 0 marks a nested container whose children follow immediately.
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const headerSize = 8

var errShortPayload = errors.New("payload shorter than declared")

// Item is one KLV entry. Payload is nil for nested containers and may be
// shorter than declared when the stream is truncated.
type Item struct {
	FourCC  string
	Type    byte
	Size    uint8
	Repeat  uint16
	Payload []byte
}

// IsContainer reports whether the item nests further items.
func (it Item) IsContainer() bool { return it.Type == 0 }

// walk visits every item in data in stream order. When visit rejects an item
// the walk resumes at the next 8-byte header boundary instead of skipping the
// declared payload, so a single corrupt item never aborts the stream.
func walk(data []byte, visit func(Item) error) (visited, malformed int) {
	offset := 0
	for offset+headerSize <= len(data) {
		header := data[offset : offset+headerSize]
		item := Item{
			FourCC: string(header[0:4]),
			Type:   header[4],
			Size:   header[5],
			Repeat: binary.BigEndian.Uint16(header[6:8]),
		}
		padded := pad4(int(item.Size) * int(item.Repeat))

		start := offset + headerSize
		if !item.IsContainer() {
			end := min(start+padded, len(data))
			item.Payload = data[start:end]
		}

		visited++
		if err := visit(item); err != nil {
			malformed++
			offset += headerSize
			continue
		}

		offset += headerSize
		if !item.IsContainer() {
			offset += padded
		}
	}
	return visited, malformed
}

func pad4(n int) int {
	return (n + 3) &^ 3
}

// typeWidth returns the byte width of one scalar of the given type code.
func typeWidth(typ byte) (int, error) {
	switch typ {
	case 'b', 'B', 'c', 'U':
		return 1, nil
	case 's', 'S':
		return 2, nil
	case 'l', 'L', 'f', 'q':
		return 4, nil
	case 'd', 'j', 'J', 'Q':
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported type code %q", typ)
	}
}

// readNumber decodes one big-endian scalar at the start of buf.
func readNumber(typ byte, buf []byte) (float64, error) {
	width, err := typeWidth(typ)
	if err != nil {
		return 0, err
	}
	if len(buf) < width {
		return 0, errShortPayload
	}
	switch typ {
	case 'b':
		return float64(int8(buf[0])), nil
	case 'B', 'c', 'U':
		return float64(buf[0]), nil
	case 's':
		return float64(int16(binary.BigEndian.Uint16(buf))), nil
	case 'S':
		return float64(binary.BigEndian.Uint16(buf)), nil
	case 'l':
		return float64(int32(binary.BigEndian.Uint32(buf))), nil
	case 'L':
		return float64(binary.BigEndian.Uint32(buf)), nil
	case 'f':
		return float64(math.Float32frombits(binary.BigEndian.Uint32(buf))), nil
	case 'q':
		// Q15.16 fixed point
		return float64(int32(binary.BigEndian.Uint32(buf))) / 65536.0, nil
	case 'd':
		return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
	case 'j':
		return float64(int64(binary.BigEndian.Uint64(buf))), nil
	case 'J':
		return float64(binary.BigEndian.Uint64(buf)), nil
	case 'Q':
		// Q31.32 fixed point
		return float64(int64(binary.BigEndian.Uint64(buf))) / 4294967296.0, nil
	}
	return 0, fmt.Errorf("unsupported type code %q", typ)
}

// readNumbers decodes n consecutive scalars of one type.
func readNumbers(typ byte, buf []byte, n int) ([]float64, error) {
	width, err := typeWidth(typ)
	if err != nil {
		return nil, err
	}
	if len(buf) < width*n {
		return nil, errShortPayload
	}
	values := make([]float64, n)
	for i := range values {
		if values[i], err = readNumber(typ, buf[i*width:]); err != nil {
			return nil, err
		}
	}
	return values, nil
}
