package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WAVHeaderSize is the size of the header EncodeWAV writes.
const WAVHeaderSize = 44

const (
	wavPCMFormat = 1
	maxFmtChunk  = 1024
)

var (
	// ErrNotWAV is returned when input is not a well-formed RIFF/WAVE stream.
	ErrNotWAV = errors.New("not a valid WAV file")
	// ErrUnsupportedWAV is returned for WAV audio other than 16-bit PCM.
	ErrUnsupportedWAV = errors.New("unsupported WAV audio")
)

// EncodeWAV wraps raw PCM in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, f Format) []byte {
	var buf bytes.Buffer
	buf.Grow(WAVHeaderSize + len(pcm))

	blockAlign := f.FrameSize()
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRateHz))
	binary.Write(&buf, binary.LittleEndian, uint32(f.BytesPerSecond()))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(f.BitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAVHeader walks the RIFF chunks of a PCM WAV stream up to the data
// chunk, leaving r positioned at the first sample. Chunks other than fmt and
// data are skipped. Only 16-bit PCM is accepted.
func DecodeWAVHeader(r io.Reader) (Format, error) {
	riff := make([]byte, 12)
	if _, err := io.ReadFull(r, riff); err != nil {
		return Format{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, ErrNotWAV
	}

	var (
		f       Format
		haveFmt bool
		chunk   = make([]byte, 8)
	)
	for {
		if _, err := io.ReadFull(r, chunk); err != nil {
			return Format{}, fmt.Errorf("read WAV chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		padded := size + size&1

		switch id {
		case "fmt ":
			if size < 16 || size > maxFmtChunk {
				return Format{}, fmt.Errorf("%w: fmt chunk of %d bytes", ErrNotWAV, size)
			}
			body := make([]byte, padded)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, fmt.Errorf("read WAV fmt chunk: %w", err)
			}
			if audioFormat := binary.LittleEndian.Uint16(body[0:2]); audioFormat != wavPCMFormat {
				return Format{}, fmt.Errorf("%w: format %d, only PCM is supported", ErrUnsupportedWAV, audioFormat)
			}
			f = Format{
				Channels:      int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRateHz:  int(binary.LittleEndian.Uint32(body[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Format{}, fmt.Errorf("%w: data chunk before fmt", ErrNotWAV)
			}
			if f.BitsPerSample != 16 {
				return Format{}, fmt.Errorf("%w: %d-bit samples, only 16-bit is supported", ErrUnsupportedWAV, f.BitsPerSample)
			}
			if f.Channels <= 0 || f.SampleRateHz <= 0 {
				return Format{}, fmt.Errorf("%w: %d channels at %dHz", ErrNotWAV, f.Channels, f.SampleRateHz)
			}
			return f, nil
		default:
			if _, err := io.CopyN(io.Discard, r, padded); err != nil {
				return Format{}, fmt.Errorf("skip WAV %q chunk: %w", id, err)
			}
		}
	}
}
