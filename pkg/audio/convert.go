// Package audio defines the frame and speaker types flowing through the
// Tallyvox pipeline and the PCM format conversions between the voice
// transport's capture format and the recognizer's input format.
package audio

// Downmixer converts interleaved stereo 16-bit PCM at SourceRate into mono
// 16-bit PCM at TargetRate, the format required by the recognizer.
//
// The conversion is stateless per call: no filter state is carried between
// Process invocations, so smearing at buffer boundaries is bounded to the
// buffer edges. This is a fixed contract for the lifetime of the instance,
// not a runtime switch. Create one per speaker worker; a Downmixer is a
// value type and safe to copy.
type Downmixer struct {
	SourceRate int
	TargetRate int
}

// stereoFrameBytes is the size of one interleaved stereo PCM frame:
// 2 channels × 2 bytes per 16-bit sample.
const stereoFrameBytes = 4

// Process downmixes and resamples one buffer. A trailing partial stereo
// frame (odd byte count or a lone half-frame) is dropped. Empty input
// returns nil without error.
func (d Downmixer) Process(pcm []byte) []byte {
	pcm = pcm[:len(pcm)-len(pcm)%stereoFrameBytes]
	if len(pcm) == 0 {
		return nil
	}
	mono := StereoToMono(pcm)
	return ResampleMono16(mono, d.SourceRate, d.TargetRate)
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / stereoFrameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples.
// If srcRate == dstRate, the input is returned unchanged. Linear
// interpolation preserves enough fidelity for speech keyword recognition
// while staying deterministic and allocation-bounded.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
