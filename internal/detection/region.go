package detection

import (
	"context"
	"fmt"
	"image"

	rimaging "github.com/ironsheep/receipt-extractor/internal/imaging"
)

// DefaultConfidence is the minimum detection score that is kept.
const DefaultConfidence = 0.25

// Class is the semantic label of a detected region.
type Class int

// Region classes in model id order.
const (
	ClassItemList Class = iota
	ClassMerchantName
	ClassAddress
	ClassDate
	ClassInvoice
	ClassPaymentInfo
	ClassPrice
	ClassSum
	ClassTaxInfo
)

var classNames = [...]string{
	ClassItemList:     "item-list",
	ClassMerchantName: "merchant-name",
	ClassAddress:      "address",
	ClassDate:         "date",
	ClassInvoice:      "invoice",
	ClassPaymentInfo:  "payment-info",
	ClassPrice:        "price",
	ClassSum:          "sum",
	ClassTaxInfo:      "tax-info",
}

// ClassFromID maps a model class id to a Class.
func ClassFromID(id int) (Class, bool) {
	if id < 0 || id >= len(classNames) {
		return 0, false
	}
	return Class(id), true
}

// ParseClass maps a class name such as "sum" to a Class.
func ParseClass(name string) (Class, bool) {
	for i, n := range classNames {
		if n == name {
			return Class(i), true
		}
	}
	return 0, false
}

func (c Class) String() string {
	if id, ok := ClassFromID(int(c)); ok {
		return classNames[id]
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// MarshalText encodes the class by name.
func (c Class) MarshalText() ([]byte, error) {
	if _, ok := ClassFromID(int(c)); !ok {
		return nil, fmt.Errorf("unknown class id %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a class name.
func (c *Class) UnmarshalText(text []byte) error {
	v, ok := ParseClass(string(text))
	if !ok {
		return fmt.Errorf("unknown class %q", string(text))
	}
	*c = v
	return nil
}

// Box is an axis-aligned pixel rectangle.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Rect converts b to an image.Rectangle without canonicalizing it.
func (b Box) Rect() image.Rectangle {
	return image.Rectangle{Min: image.Pt(b.X1, b.Y1), Max: image.Pt(b.X2, b.Y2)}
}

// BoxFromRect converts r to a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Empty reports whether b encloses no pixels.
func (b Box) Empty() bool {
	return b.X1 >= b.X2 || b.Y1 >= b.Y2
}

// Region is one detection.
type Region struct {
	Class      Class   `json:"class"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Detector finds receipt regions in an image. Results have no particular
// order. An error means detection as a whole failed.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Region, error)
}

// FilterConfidence keeps regions scoring at least min.
func FilterConfidence(regions []Region, min float64) []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		if r.Confidence >= min {
			out = append(out, r)
		}
	}
	return out
}

// clampBox restricts b to bounds. A box outside bounds becomes empty.
func clampBox(b Box, bounds image.Rectangle) Box {
	return BoxFromRect(rimaging.Clamp(b.Rect(), bounds))
}
