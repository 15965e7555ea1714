package types

import "errors"

// ErrNoImage is returned when an operation needs a loaded image and there is none.
var ErrNoImage = errors.New("no image loaded")

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Mode is the editor view currently shown to the user.
type Mode string

const (
	ModeEmpty  Mode = "empty"
	ModeCrop   Mode = "crop"
	ModeCutout Mode = "cutout"
)

// Shape is the outline of an exported icon.
type Shape string

const (
	ShapeSquare Shape = "square"
	ShapeCircle Shape = "circle"
)

// ParseShape accepts "square" or "circle"; anything else is an error.
func ParseShape(s string) (Shape, error) {
	switch Shape(s) {
	case ShapeSquare, ShapeCircle:
		return Shape(s), nil
	}
	return "", errors.New("unknown shape: " + s)
}

// Size is a width/height pair in pixels, used for the measured editor container.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Point is a position on the cutout canvas in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one completed freehand gesture of the eraser brush.
type Stroke struct {
	Points []Point `json:"points"`
}
