package vdif

import "fmt"

// Optimal 2-bit quantization levels (offset-binary codes 0..3).
var levels2bit = [4]float64{-3.3359, -1.0, 1.0, 3.3359}

// decodeComponents expands the payload of a frame into float components, one
// per sample per channel (two per channel when complex), in payload order.
func decodeComponents(payload []byte, h *Header) ([]float64, error) {
	perSample := h.NChan
	if h.Complex {
		perSample *= 2
	}
	count := h.SamplesPerFrame() * perSample

	out := make([]float64, count)
	switch h.Bits {
	case 2:
		if len(payload)*4 < count {
			return nil, fmt.Errorf("%w: %d payload bytes", ErrShortFrame, len(payload))
		}
		for i := 0; i < count; i++ {
			code := payload[i/4] >> (uint(i%4) * 2) & 0x3
			out[i] = levels2bit[code]
		}

	case 4:
		if len(payload)*2 < count {
			return nil, fmt.Errorf("%w: %d payload bytes", ErrShortFrame, len(payload))
		}
		for i := 0; i < count; i++ {
			code := payload[i/2] >> (uint(i%2) * 4) & 0xf
			out[i] = float64(int(code) - 8)
		}

	case 8:
		if len(payload) < count {
			return nil, fmt.Errorf("%w: %d payload bytes", ErrShortFrame, len(payload))
		}
		for i := 0; i < count; i++ {
			out[i] = float64(int(payload[i]) - 128)
		}

	default:
		return nil, fmt.Errorf("%w: unsupported bits per sample %d", ErrInvalidHeader, h.Bits)
	}
	return out, nil
}

// encodeComponents quantizes float components into a frame payload.
func encodeComponents(components []float64, h *Header) ([]byte, error) {
	payload := make([]byte, h.PayloadSize())

	switch h.Bits {
	case 2:
		if len(components) > len(payload)*4 {
			return nil, fmt.Errorf("too many components for payload: %d", len(components))
		}
		for i, v := range components {
			var code byte
			switch {
			case v < -2:
				code = 0
			case v < 0:
				code = 1
			case v < 2:
				code = 2
			default:
				code = 3
			}
			payload[i/4] |= code << (uint(i%4) * 2)
		}

	case 4:
		if len(components) > len(payload)*2 {
			return nil, fmt.Errorf("too many components for payload: %d", len(components))
		}
		for i, v := range components {
			code := clampInt(int(v)+8, 0, 15)
			payload[i/2] |= byte(code) << (uint(i%2) * 4)
		}

	case 8:
		if len(components) > len(payload) {
			return nil, fmt.Errorf("too many components for payload: %d", len(components))
		}
		for i, v := range components {
			payload[i] = byte(clampInt(int(v)+128, 0, 255))
		}

	default:
		return nil, fmt.Errorf("%w: unsupported bits per sample %d", ErrInvalidHeader, h.Bits)
	}
	return payload, nil
}

// samplesToComponents flattens complex samples into payload component order.
func samplesToComponents(samples []complex128, h *Header) []float64 {
	n := len(samples)
	if h.Complex {
		n *= 2
	}
	out := make([]float64, 0, n)
	for _, v := range samples {
		if h.Complex {
			out = append(out, real(v), imag(v))
		} else {
			out = append(out, real(v))
		}
	}
	return out
}

// componentsToSamples assembles decoded components into complex samples.
func componentsToSamples(components []float64, h *Header) []complex128 {
	if !h.Complex {
		out := make([]complex128, len(components))
		for i, v := range components {
			out[i] = complex(v, 0)
		}
		return out
	}
	out := make([]complex128, len(components)/2)
	for i := range out {
		out[i] = complex(components[2*i], components[2*i+1])
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
