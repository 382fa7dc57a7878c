package audio

import (
	"encoding/binary"
	"math"
)

// Output samples are always signed 16-bit mono.
const maxS16 = math.MaxInt16

type integerSample interface {
	~uint8 | ~int16 | ~uint16 | ~int32
}

// f32ToS16 clamps to [-1, 1], scales by 32767 and truncates toward zero.
func f32ToS16(v float32) int {
	if v != v {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(int16(v * maxS16))
}

func s16FromS16(v int64) int { return int(v) }

func s16FromS24(v int64) int { return int(v >> 8) }

func s16FromS32(v int64) int { return int(v >> 16) }

// Unsigned formats are re-centred on the midpoint bias first.
func s16FromU8(v int64) int { return int((v - 128) << 8) }

func s16FromU16(v int64) int { return int(v - 32768) }

func intConverter(f SampleFormat) func(int64) int {
	switch f {
	case FormatU8:
		return s16FromU8
	case FormatS16:
		return s16FromS16
	case FormatU16:
		return s16FromU16
	case FormatS24:
		return s16FromS24
	case FormatS32:
		return s16FromS32
	default:
		return nil
	}
}

// mixF32 appends one output sample per frame of in to dst. Frames with
// more than one channel are reduced to their arithmetic mean before
// conversion. A trailing partial frame is ignored.
func mixF32(dst []int, in []float32, channels int) []int {
	if channels <= 1 {
		for _, v := range in {
			dst = append(dst, f32ToS16(v))
		}
		return dst
	}
	frames := len(in) / channels
	for f := 0; f < frames; f++ {
		var sum float32
		for _, v := range in[f*channels : (f+1)*channels] {
			sum += v
		}
		dst = append(dst, f32ToS16(sum/float32(channels)))
	}
	return dst
}

func mixInt[T integerSample](dst []int, in []T, channels int, conv func(int64) int) []int {
	if channels <= 1 {
		for _, v := range in {
			dst = append(dst, conv(int64(v)))
		}
		return dst
	}
	frames := len(in) / channels
	for f := 0; f < frames; f++ {
		var sum int64
		for _, v := range in[f*channels : (f+1)*channels] {
			sum += int64(v)
		}
		dst = append(dst, conv(sum/int64(channels)))
	}
	return dst
}

// mixRaw decodes little-endian interleaved bytes in format and mixes them
// the same way as mixF32/mixInt.
func mixRaw(dst []int, raw []byte, format SampleFormat, channels int) []int {
	size := format.BytesPerSample()
	if size == 0 {
		return dst
	}
	if channels < 1 {
		channels = 1
	}
	frameSize := size * channels
	frames := len(raw) / frameSize

	if format == FormatF32 {
		for f := 0; f < frames; f++ {
			frame := raw[f*frameSize : (f+1)*frameSize]
			var sum float32
			for c := 0; c < channels; c++ {
				sum += math.Float32frombits(binary.LittleEndian.Uint32(frame[c*4:]))
			}
			if channels == 1 {
				dst = append(dst, f32ToS16(sum))
			} else {
				dst = append(dst, f32ToS16(sum/float32(channels)))
			}
		}
		return dst
	}

	conv := intConverter(format)
	for f := 0; f < frames; f++ {
		frame := raw[f*frameSize : (f+1)*frameSize]
		var sum int64
		for c := 0; c < channels; c++ {
			sum += decodeInt(frame[c*size:], format)
		}
		dst = append(dst, conv(sum/int64(channels)))
	}
	return dst
}

func decodeInt(b []byte, format SampleFormat) int64 {
	switch format {
	case FormatU8:
		return int64(b[0])
	case FormatS16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case FormatU16:
		return int64(binary.LittleEndian.Uint16(b))
	case FormatS24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= -0x1000000
		}
		return int64(v)
	case FormatS32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	default:
		return 0
	}
}
