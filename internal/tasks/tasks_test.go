package tasks

import (
	"io"
	"math"
	"math/cmplx"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Luke-Pratley/scintillometry/internal/stream"
)

var testStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// complexTone builds a single-channel complex stream carrying a pure
// exponential at the given baseband frequency.
func complexTone(t *testing.T, rate float64, length int64, tone float64, freq []float64, sb []int8) *stream.Generator {
	t.Helper()
	info, err := stream.NewInfo(rate, testStart, length, stream.SampleShape{NChan: 1, NPol: 1}, true, freq, sb)
	require.NoError(t, err)
	gen, err := stream.NewGenerator(func(offset int64, out []complex128) error {
		for i := range out {
			ph := 2 * math.Pi * tone * float64(offset+int64(i)) / rate
			out[i] = cmplx.Exp(complex(0, ph))
		}
		return nil
	}, info)
	require.NoError(t, err)
	return gen
}

func realCosine(t *testing.T, rate float64, length int64, tone float64) *stream.Generator {
	t.Helper()
	info, err := stream.NewInfo(rate, testStart, length, stream.SampleShape{NChan: 1, NPol: 1}, false, nil, nil)
	require.NoError(t, err)
	gen, err := stream.NewGenerator(func(offset int64, out []complex128) error {
		for i := range out {
			ph := 2 * math.Pi * tone * float64(offset+int64(i)) / rate
			out[i] = complex(math.Cos(ph), 0)
		}
		return nil
	}, info)
	require.NoError(t, err)
	return gen
}

func TestChannelizeTone(t *testing.T) {
	const rate = 800.0
	ih := complexTone(t, rate, 64, 3*rate/8, nil, nil) // lands in bin 3 of 8

	ch, err := Channelize(ih, 8, 4)
	require.NoError(t, err)
	defer ch.Close()

	require.Equal(t, rate/8, ch.SampleRate())
	require.Equal(t, stream.SampleShape{NChan: 8, NPol: 1}, ch.Shape())
	require.True(t, ch.Complex())
	require.True(t, ch.StartTime().Equal(testStart))
	require.Equal(t, int64(8), ch.Length())

	data, err := stream.ReadAll(ch)
	require.NoError(t, err)
	for s := 0; s < 8; s++ {
		for c := 0; c < 8; c++ {
			mag := cmplx.Abs(data[s*8+c])
			if c == 3 {
				require.InDelta(t, 8.0, mag, 1e-9, "sample %d channel %d", s, c)
			} else {
				require.InDelta(t, 0.0, mag, 1e-9, "sample %d channel %d", s, c)
			}
		}
	}
}

func TestChannelizeFrequencies(t *testing.T) {
	const rate = 800.0
	ih := complexTone(t, rate, 64, 100, []float64{400e6}, []int8{1})

	ch, err := Channelize(ih, 8, 1)
	require.NoError(t, err)
	defer ch.Close()

	freq := ch.Frequency()
	require.Len(t, freq, 8)
	require.InDelta(t, 400e6, freq[0], 1e-6)
	require.InDelta(t, 400e6+100, freq[1], 1e-6)
	require.InDelta(t, 400e6-300, freq[5], 1e-6)
	for _, s := range ch.Sideband() {
		require.Equal(t, int8(1), s)
	}
}

func TestChannelizeRealInput(t *testing.T) {
	const rate = 800.0
	ih := realCosine(t, rate, 64, 2*rate/8) // lands in bin 2 of 8

	ch, err := Channelize(ih, 8, 2)
	require.NoError(t, err)
	defer ch.Close()

	require.Equal(t, stream.SampleShape{NChan: 5, NPol: 1}, ch.Shape())
	require.True(t, ch.Complex())

	data, err := stream.ReadAll(ch)
	require.NoError(t, err)
	for s := 0; s < int(ch.Length()); s++ {
		for c := 0; c < 5; c++ {
			mag := cmplx.Abs(data[s*5+c])
			if c == 2 {
				require.InDelta(t, 4.0, mag, 1e-9)
			} else {
				require.InDelta(t, 0.0, mag, 1e-9)
			}
		}
	}
}

func TestChannelizeTooShort(t *testing.T) {
	ih := complexTone(t, 800, 16, 100, nil, nil)
	_, err := Channelize(ih, 8, 4)
	require.Error(t, err)
}

func TestDechannelizeRoundTrip(t *testing.T) {
	const rate = 800.0
	ih := complexTone(t, rate, 64, 3*rate/8, []float64{400e6}, []int8{1})
	want, err := stream.ReadAll(ih)
	require.NoError(t, err)
	_, err = ih.Seek(0, io.SeekStart)
	require.NoError(t, err)

	ch, err := Channelize(ih, 8, 4)
	require.NoError(t, err)
	back, err := Dechannelize(ch, 0, 4)
	require.NoError(t, err)
	defer back.Close()

	require.Equal(t, rate, back.SampleRate())
	require.Equal(t, int64(64), back.Length())
	require.Equal(t, []float64{400e6}, back.Frequency())

	got, err := stream.ReadAll(back)
	require.NoError(t, err)
	for i := range want {
		require.InDelta(t, real(want[i]), real(got[i]), 1e-9, "sample %d", i)
		require.InDelta(t, imag(want[i]), imag(got[i]), 1e-9, "sample %d", i)
	}
}

func TestDechannelizeRealRoundTrip(t *testing.T) {
	const rate = 800.0
	ih := realCosine(t, rate, 64, 2*rate/8)
	want, err := stream.ReadAll(ih)
	require.NoError(t, err)
	_, err = ih.Seek(0, io.SeekStart)
	require.NoError(t, err)

	ch, err := Channelize(ih, 8, 2)
	require.NoError(t, err)
	back, err := Dechannelize(ch, 8, 2)
	require.NoError(t, err)
	defer back.Close()

	require.False(t, back.Complex())

	got, err := stream.ReadAll(back)
	require.NoError(t, err)
	for i := range want {
		require.InDelta(t, real(want[i]), real(got[i]), 1e-9, "sample %d", i)
		require.InDelta(t, 0.0, imag(got[i]), 1e-12, "sample %d", i)
	}
}

func TestTimeShiftWholeSamples(t *testing.T) {
	const rate = 800.0
	tone := rate / 8
	ih := complexTone(t, rate, 64, tone, nil, nil)

	dt := 5 / rate
	sh, err := TimeShift(ih, dt, 16)
	require.NoError(t, err)
	defer sh.Close()

	require.Equal(t, int64(45), sh.Length()) // one sample lost per frame
	wantStart := testStart.Add(time.Duration(dt * float64(time.Second)))
	require.WithinDuration(t, wantStart, sh.StartTime(), 10*time.Nanosecond)

	data, err := stream.ReadAll(sh)
	require.NoError(t, err)
	for k := range data {
		want := cmplx.Exp(complex(0, 2*math.Pi*tone*float64(k+5)/rate))
		require.InDelta(t, real(want), real(data[k]), 1e-9, "sample %d", k)
		require.InDelta(t, imag(want), imag(data[k]), 1e-9, "sample %d", k)
	}
}

func TestTimeShiftFractional(t *testing.T) {
	const rate = 800.0
	tone := rate / 8
	ih := complexTone(t, rate, 64, tone, nil, nil)

	sh, err := TimeShift(ih, 0.5/rate, 16)
	require.NoError(t, err)
	defer sh.Close()

	data, err := stream.ReadAll(sh)
	require.NoError(t, err)
	for k := range data {
		want := cmplx.Exp(complex(0, 2*math.Pi*tone*(float64(k)+0.5)/rate))
		require.InDelta(t, real(want), real(data[k]), 1e-8, "sample %d", k)
		require.InDelta(t, imag(want), imag(data[k]), 1e-8, "sample %d", k)
	}
}

func TestTimeShiftNegative(t *testing.T) {
	const rate = 800.0
	tone := rate / 8
	ih := complexTone(t, rate, 64, tone, nil, nil)

	// Shifting back 5 samples trims a whole frame off the front so reads
	// never go before the first sample.
	sh, err := TimeShift(ih, -5/rate, 16)
	require.NoError(t, err)
	defer sh.Close()

	wantStart := testStart.Add(time.Duration(10 / rate * float64(time.Second)))
	require.WithinDuration(t, wantStart, sh.StartTime(), 10*time.Nanosecond)

	data, err := stream.ReadAll(sh)
	require.NoError(t, err)
	for k := range data {
		want := cmplx.Exp(complex(0, 2*math.Pi*tone*float64(k+10)/rate))
		require.InDelta(t, real(want), real(data[k]), 1e-9, "sample %d", k)
		require.InDelta(t, imag(want), imag(data[k]), 1e-9, "sample %d", k)
	}
}

func TestResample(t *testing.T) {
	const rate = 800.0
	tone := rate / 8
	ih := complexTone(t, rate, 32, tone, nil, nil)

	at := testStart.Add(time.Duration(2.25 / rate * float64(time.Second)))
	rs, err := Resample(ih, at, 32)
	require.NoError(t, err)
	defer rs.Close()

	require.Equal(t, ih.Length()-1, rs.Length()) // always lose one sample per frame
	require.Equal(t, int64(2), rs.Offset())
	require.WithinDuration(t, at, stream.TimeAt(rs, 2), 10*time.Nanosecond)

	_, err = rs.Seek(0, io.SeekStart)
	require.NoError(t, err)
	data, err := stream.ReadAll(rs)
	require.NoError(t, err)
	for k := range data {
		want := cmplx.Exp(complex(0, 2*math.Pi*tone*(float64(k)+0.25)/rate))
		require.InDelta(t, real(want), real(data[k]), 1e-8, "sample %d", k)
		require.InDelta(t, imag(want), imag(data[k]), 1e-8, "sample %d", k)
	}
}

func TestResampleOutsideStream(t *testing.T) {
	ih := complexTone(t, 800, 32, 100, nil, nil)
	_, err := Resample(ih, testStart.Add(-time.Second), 32)
	require.Error(t, err)
}

func TestDispersionMeasureDelay(t *testing.T) {
	dm := DispersionMeasure(1)
	// 100 MHz lags 200 MHz by K * (1/100^2 - 1/200^2) seconds.
	require.InDelta(t, 0.3111606, dm.TimeDelay(100e6, 200e6), 1e-6)
	require.Less(t, dm.TimeDelay(200e6, 100e6), 0.0)
	require.Zero(t, dm.PhaseDelay(150e6, 150e6))
}

func TestDedisperseRemovesDispersion(t *testing.T) {
	const (
		rate = 100.0
		spf  = 64
	)
	dm := DispersionMeasure(1)
	freq := []float64{400e6, 800e6}
	sb := []int8{1, 1}
	ref := 800e6

	// Per-channel tones on exact spectral bins, rotated by the dispersive
	// phase at their absolute frequencies.
	tones := []float64{rate * 4 / spf, -rate * 4 / spf}
	rot := make([]complex128, 2)
	for c := range rot {
		rot[c] = cmplx.Exp(complex(0, -2*math.Pi*dm.PhaseDelay(freq[c]+tones[c], ref)))
	}

	info, err := stream.NewInfo(rate, testStart, 256, stream.SampleShape{NChan: 2, NPol: 1}, true, freq, sb)
	require.NoError(t, err)
	ih, err := stream.NewGenerator(func(offset int64, out []complex128) error {
		for i := 0; i < len(out)/2; i++ {
			k := float64(offset + int64(i))
			for c := 0; c < 2; c++ {
				out[2*i+c] = cmplx.Exp(complex(0, 2*math.Pi*tones[c]*k/rate)) * rot[c]
			}
		}
		return nil
	}, info)
	require.NoError(t, err)

	dd, err := Dedisperse(ih, dm, ref, spf)
	require.NoError(t, err)
	defer dd.Close()

	// The output grid starts a few samples in, past the trimmed frame edge.
	pad := int64(math.Round(dd.StartTime().Sub(testStart).Seconds() * rate))
	require.GreaterOrEqual(t, pad, int64(1))

	data, err := stream.ReadAll(dd)
	require.NoError(t, err)
	for k := 0; k < int(dd.Length()); k++ {
		for c := 0; c < 2; c++ {
			want := cmplx.Exp(complex(0, 2*math.Pi*tones[c]*float64(int64(k)+pad)/rate))
			got := data[k*2+c]
			require.InDelta(t, real(want), real(got), 1e-6, "sample %d channel %d", k, c)
			require.InDelta(t, imag(want), imag(got), 1e-6, "sample %d channel %d", k, c)
		}
	}
}

func TestDedisperseNeedsMetadata(t *testing.T) {
	ih := complexTone(t, 800, 64, 100, nil, nil)
	_, err := Dedisperse(ih, 10, 0, 16)
	require.Error(t, err)
}

func TestDetect(t *testing.T) {
	info, err := stream.NewInfo(800, testStart, 16, stream.SampleShape{NChan: 1, NPol: 1}, true, nil, nil)
	require.NoError(t, err)
	ih, err := stream.NewGenerator(func(offset int64, out []complex128) error {
		for i := range out {
			out[i] = complex(3, 4)
		}
		return nil
	}, info)
	require.NoError(t, err)

	det, err := Detect(ih, 4)
	require.NoError(t, err)
	defer det.Close()

	require.False(t, det.Complex())
	require.Equal(t, ih.SampleRate(), det.SampleRate())

	data, err := stream.ReadAll(det)
	require.NoError(t, err)
	for i, v := range data {
		require.InDelta(t, 25.0, real(v), 1e-12, "sample %d", i)
		require.Zero(t, imag(v), "sample %d", i)
	}
}

func TestIntegrate(t *testing.T) {
	info, err := stream.NewInfo(800, testStart, 17, stream.SampleShape{NChan: 1, NPol: 1}, false, nil, nil)
	require.NoError(t, err)
	ih, err := stream.NewGenerator(func(offset int64, out []complex128) error {
		for i := range out {
			out[i] = complex(float64(offset+int64(i)), 0)
		}
		return nil
	}, info)
	require.NoError(t, err)

	in, err := Integrate(ih, 4, 1)
	require.NoError(t, err)
	defer in.Close()

	require.Equal(t, 200.0, in.SampleRate())
	require.Equal(t, int64(4), in.Length()) // trailing sample dropped

	data, err := stream.ReadAll(in)
	require.NoError(t, err)
	for j, v := range data {
		require.InDelta(t, float64(4*j)+1.5, real(v), 1e-12, "sample %d", j)
	}
}

func TestFoldPulse(t *testing.T) {
	const rate = 800.0
	info, err := stream.NewInfo(rate, testStart, 800, stream.SampleShape{NChan: 1, NPol: 1}, false, nil, nil)
	require.NoError(t, err)
	// One unit pulse every 8 samples, in step with a 100 Hz spin.
	ih, err := stream.NewGenerator(func(offset int64, out []complex128) error {
		for i := range out {
			if (offset+int64(i))%8 == 0 {
				out[i] = 1
			} else {
				out[i] = 0
			}
		}
		return nil
	}, info)
	require.NoError(t, err)

	prof, err := Fold(ih, SpinPhase(testStart, 100, 0), 8)
	require.NoError(t, err)

	mean := prof.Mean()
	require.InDelta(t, 1.0, mean[0], 1e-12)
	for b := 1; b < 8; b++ {
		require.InDelta(t, 0.0, mean[b], 1e-12, "bin %d", b)
		require.Equal(t, int64(100), prof.Count[b], "bin %d", b)
	}
	require.Equal(t, int64(100), prof.Count[0])
}

func TestFoldSegments(t *testing.T) {
	const rate = 800.0
	info, err := stream.NewInfo(rate, testStart, 800, stream.SampleShape{NChan: 1, NPol: 1}, false, nil, nil)
	require.NoError(t, err)
	ih, err := stream.NewGenerator(func(offset int64, out []complex128) error {
		for i := range out {
			out[i] = 1
		}
		return nil
	}, info)
	require.NoError(t, err)

	profiles, err := FoldSegments(ih, SpinPhase(testStart, 100, 0), 4, 250*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, profiles, 4)

	for i, p := range profiles {
		var n int64
		for _, c := range p.Count {
			n += c
		}
		require.Equal(t, int64(200), n, "segment %d", i)
		wantStart := testStart.Add(time.Duration(i) * 250 * time.Millisecond)
		require.True(t, p.StartTime.Equal(wantStart), "segment %d", i)
		require.Equal(t, 250*time.Millisecond, p.Duration, "segment %d", i)
	}
}
