package recorder

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	wavHeaderSize = 44

	wavFormatPCM      = 0x0001
	wavFormatIMAADPCM = 0x0011

	captureSampleRate = 8000 // raw capture, PCM16 mono
	archiveSampleRate = 4000 // after 2:1 decimation
)

// writeCaptureHeader writes a 44-byte WAV header for 16-bit linear PCM,
// 8kHz mono. dataSize is the size of the sample data in bytes.
func writeCaptureHeader(w io.Writer, dataSize uint32) error {
	var hdr [wavHeaderSize]byte

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], wavHeaderSize-8+dataSize)
	copy(hdr[8:12], "WAVE")

	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], 1)                     // mono
	binary.LittleEndian.PutUint32(hdr[24:28], captureSampleRate)     // sample rate
	binary.LittleEndian.PutUint32(hdr[28:32], captureSampleRate*2)   // byte rate
	binary.LittleEndian.PutUint16(hdr[32:34], 2)                     // block align
	binary.LittleEndian.PutUint16(hdr[34:36], 16)                    // bits per sample

	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)

	_, err := w.Write(hdr[:])
	return err
}

// readCaptureSamples parses a PCM16 capture WAV produced by the
// Capture writer and returns its samples.
func readCaptureSamples(r io.Reader) ([]int16, error) {
	var hdr [wavHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("reading wav header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a wav file")
	}
	if format := binary.LittleEndian.Uint16(hdr[20:22]); format != wavFormatPCM {
		return nil, fmt.Errorf("unexpected wav format tag 0x%04x", format)
	}

	dataSize := binary.LittleEndian.Uint32(hdr[40:44])
	raw := make([]byte, dataSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading wav data: %w", err)
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples, nil
}

// decimate2 halves the sample rate by averaging adjacent sample pairs.
// The averaging doubles as a crude low-pass filter, which is adequate
// for narrowband speech.
func decimate2(in []int16) []int16 {
	out := make([]int16, len(in)/2)
	for i := range out {
		out[i] = int16((int32(in[2*i]) + int32(in[2*i+1])) / 2)
	}
	return out
}

// IMA ADPCM step and index tables (IMA Digital Audio Pack, 1992)
var imaStepTable = [89]int32{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17,
	19, 21, 23, 25, 28, 31, 34, 37, 41, 45,
	50, 55, 60, 66, 73, 80, 88, 97, 107, 118,
	130, 143, 157, 173, 190, 209, 230, 253, 279, 307,
	337, 371, 408, 449, 494, 544, 598, 658, 724, 796,
	876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066,
	2272, 2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358,
	5894, 6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899,
	15289, 16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

var imaIndexTable = [8]int{-1, -1, -1, -1, 2, 4, 6, 8}

const (
	adpcmBlockAlign      = 256                          // bytes per block, mono
	adpcmSamplesPerBlock = (adpcmBlockAlign-4)*2 + 1    // 505
)

type imaState struct {
	predictor int32
	index     int
}

// encodeSample quantizes one PCM sample to a 4-bit IMA code and
// advances the predictor state.
func (s *imaState) encodeSample(sample int16) byte {
	delta := int32(sample) - s.predictor
	var code byte
	if delta < 0 {
		code = 8
		delta = -delta
	}

	step := imaStepTable[s.index]
	diffq := step >> 3
	if delta >= step {
		code |= 4
		delta -= step
		diffq += step
	}
	step >>= 1
	if delta >= step {
		code |= 2
		delta -= step
		diffq += step
	}
	step >>= 1
	if delta >= step {
		code |= 1
		diffq += step
	}

	if code&8 != 0 {
		s.predictor -= diffq
	} else {
		s.predictor += diffq
	}
	if s.predictor > 32767 {
		s.predictor = 32767
	} else if s.predictor < -32768 {
		s.predictor = -32768
	}

	s.index += imaIndexTable[code&7]
	if s.index < 0 {
		s.index = 0
	} else if s.index > 88 {
		s.index = 88
	}

	return code
}

// encodeIMABlocks packs samples into standard IMA ADPCM blocks. Each
// block carries its own predictor seed and step index, so blocks stay
// independently decodable. The tail block is padded with the last
// sample.
func encodeIMABlocks(samples []int16) []byte {
	if len(samples) == 0 {
		return nil
	}

	numBlocks := (len(samples) + adpcmSamplesPerBlock - 1) / adpcmSamplesPerBlock
	out := make([]byte, 0, numBlocks*adpcmBlockAlign)
	state := imaState{}

	for b := 0; b < numBlocks; b++ {
		start := b * adpcmSamplesPerBlock
		end := start + adpcmSamplesPerBlock
		if end > len(samples) {
			end = len(samples)
		}
		block := samples[start:end]

		// Block header: seed sample, step index, reserved byte.
		state.predictor = int32(block[0])
		var hdr [4]byte
		binary.LittleEndian.PutUint16(hdr[0:2], uint16(block[0]))
		hdr[2] = byte(state.index)
		out = append(out, hdr[:]...)

		// The seed sample is stored verbatim; codes start at the
		// second sample. Nibbles pack low-first, two per byte.
		var packed byte
		nibbles := 0
		for i := 1; i < adpcmSamplesPerBlock; i++ {
			sample := block[len(block)-1]
			if i < len(block) {
				sample = block[i]
			}
			code := state.encodeSample(sample)
			if nibbles%2 == 0 {
				packed = code
			} else {
				packed |= code << 4
				out = append(out, packed)
			}
			nibbles++
		}
	}

	return out
}

// writeArchiveWAV writes a complete IMA ADPCM WAV file: fmt chunk with
// the samples-per-block extension, a fact chunk with the total sample
// count, and the encoded block data.
func writeArchiveWAV(w io.Writer, data []byte, sampleCount uint32) error {
	// fmt(20) + fact(4) chunks plus standard RIFF framing.
	riffSize := 4 + (8 + 20) + (8 + 4) + (8 + len(data))

	var hdr [60]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(riffSize))
	copy(hdr[8:12], "WAVE")

	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 20)
	binary.LittleEndian.PutUint16(hdr[20:22], wavFormatIMAADPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], 1)                 // mono
	binary.LittleEndian.PutUint32(hdr[24:28], archiveSampleRate) // sample rate
	byteRate := uint32(archiveSampleRate) * adpcmBlockAlign / adpcmSamplesPerBlock
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], adpcmBlockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], 4) // bits per sample
	binary.LittleEndian.PutUint16(hdr[36:38], 2) // cbSize
	binary.LittleEndian.PutUint16(hdr[38:40], adpcmSamplesPerBlock)

	copy(hdr[40:44], "fact")
	binary.LittleEndian.PutUint32(hdr[44:48], 4)
	binary.LittleEndian.PutUint32(hdr[48:52], sampleCount)

	copy(hdr[52:56], "data")
	binary.LittleEndian.PutUint32(hdr[56:60], uint32(len(data)))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
