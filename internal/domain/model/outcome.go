package model

import "time"

// Point is a pixel coordinate in the source frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox locates a face in the source frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is what a descriptor extractor returns for a single face.
type Detection struct {
	Box        BoundingBox `json:"box"`
	Score      float64     `json:"score"`
	Landmarks  []Point     `json:"landmarks,omitempty"`
	Descriptor Descriptor  `json:"-"`
}

// OutcomeKind discriminates recognition outcomes.
type OutcomeKind int

const (
	OutcomeNoFace OutcomeKind = iota
	OutcomeNoMatch
	OutcomeMatch
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeMatch:
		return "match"
	default:
		return "no_face"
	}
}

// Outcome is the result of one recognition attempt. Only a match carries an
// identity; use the constructors to keep that true.
type Outcome struct {
	Kind       OutcomeKind
	Identity   *Identity
	Confidence float64
	Detection  *Detection
}

// NoFace is the outcome when no face was found.
func NoFace() Outcome {
	return Outcome{Kind: OutcomeNoFace}
}

// NoMatch is the outcome when a face was found but nothing matched.
func NoMatch(confidence float64) Outcome {
	return Outcome{Kind: OutcomeNoMatch, Confidence: confidence}
}

// Match is the outcome for a recognized identity.
func Match(identity *Identity, confidence float64) Outcome {
	return Outcome{Kind: OutcomeMatch, Identity: identity, Confidence: confidence}
}

// WithDetection attaches the detection used to produce the outcome.
func (o Outcome) WithDetection(d *Detection) Outcome {
	o.Detection = d
	return o
}

// IsMatch reports whether the outcome recognized someone.
func (o Outcome) IsMatch() bool {
	return o.Kind == OutcomeMatch && o.Identity != nil
}

// RecognitionResult is the flat view of an outcome.
type RecognitionResult struct {
	Identity   *Profile `json:"identity"`
	Confidence float64  `json:"confidence"`
	IsMatch    bool     `json:"isMatch"`
}

// Result projects the outcome onto the flat result shape.
func (o Outcome) Result() RecognitionResult {
	r := RecognitionResult{Confidence: o.Confidence}
	if o.IsMatch() {
		p := o.Identity.Profile()
		r.Identity = &p
		r.IsMatch = true
	}
	return r
}

// Overlay is the draw instruction published alongside an outcome.
type Overlay struct {
	Box       BoundingBox `json:"box"`
	Landmarks []Point     `json:"landmarks,omitempty"`
	Label     string      `json:"label"`
	Matched   bool        `json:"matched"`
}

// Overlay returns the draw instruction for the outcome, or nil when there is
// nothing to draw.
func (o Outcome) Overlay() *Overlay {
	if o.Detection == nil {
		return nil
	}
	label := "Unknown"
	if o.IsMatch() {
		label = o.Identity.DisplayName
	}
	return &Overlay{
		Box:       o.Detection.Box,
		Landmarks: o.Detection.Landmarks,
		Label:     label,
		Matched:   o.IsMatch(),
	}
}

// Frame is a single still image from a camera.
type Frame struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}
