package analyzer

// Levels describes the loudness of one analysis window. All values are
// linear amplitudes in [0, 1].
type Levels struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

// Gate applies a noise floor so weak signals read as silence.
func Gate(l Levels, floor float64) Levels {
	if floor <= 0 {
		return l
	}
	gate := func(v float64) float64 {
		if v <= floor {
			return 0
		}
		return clamp((v-floor)/(1.0-floor), 0, 1)
	}
	l.Low = gate(l.Low)
	l.Mid = gate(l.Mid)
	l.High = gate(l.High)
	l.RMS = gate(l.RMS)
	l.Peak = gate(l.Peak)
	return l
}

// Hold returns next with each value falling from prev by at most the
// release factor, the usual ballistics of a level meter.
func Hold(prev, next Levels, release float64) Levels {
	return Levels{
		Low:  envelope(prev.Low, next.Low, release),
		Mid:  envelope(prev.Mid, next.Mid, release),
		High: envelope(prev.High, next.High, release),
		RMS:  envelope(prev.RMS, next.RMS, release),
		Peak: envelope(prev.Peak, next.Peak, release),
	}
}
