package document

// PaperSize is a named page format
type PaperSize string

const (
	PaperSizeA4            PaperSize = "A4"             // 210mm x 297mm
	PaperSizeA5            PaperSize = "A5"             // 148mm x 210mm
	PaperSizeLetter        PaperSize = "LETTER"         // 216mm x 279mm
	PaperSizeShippingLabel PaperSize = "SHIPPING_LABEL" // 102mm x 150mm (4x6in)
	PaperSizeAddressLabel  PaperSize = "ADDRESS_LABEL"  // 89mm x 36mm
	PaperSizeCustom        PaperSize = "CUSTOM"         // explicit width/height
)

// IsValid checks if the PaperSize is a valid value
func (p PaperSize) IsValid() bool {
	switch p {
	case PaperSizeA4, PaperSizeA5, PaperSizeLetter, PaperSizeShippingLabel, PaperSizeAddressLabel, PaperSizeCustom:
		return true
	}
	return false
}

// Dimensions returns the paper dimensions in millimeters (width, height).
// CUSTOM has no intrinsic dimensions.
func (p PaperSize) Dimensions() (width, height float64) {
	switch p {
	case PaperSizeA4:
		return 210, 297
	case PaperSizeA5:
		return 148, 210
	case PaperSizeLetter:
		return 215.9, 279.4
	case PaperSizeShippingLabel:
		return 101.6, 152.4
	case PaperSizeAddressLabel:
		return 89, 36
	case PaperSizeCustom:
		return 0, 0
	default:
		return 210, 297
	}
}

// DefaultPaperSize picks the page format used for a document kind
func DefaultPaperSize(kind Kind) PaperSize {
	switch kind {
	case KindShippingLabel:
		return PaperSizeShippingLabel
	case KindAddressLabel:
		return PaperSizeAddressLabel
	default:
		return PaperSizeA4
	}
}

// Margins represents the page margins in millimeters
type Margins struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// NewMargins creates a new Margins value object
func NewMargins(top, right, bottom, left float64) (Margins, error) {
	if top < 0 || right < 0 || bottom < 0 || left < 0 {
		return Margins{}, NewError(ErrKindInvalidInput, "margins", "margins cannot be negative", nil)
	}
	if top > 100 || right > 100 || bottom > 100 || left > 100 {
		return Margins{}, NewError(ErrKindInvalidInput, "margins", "margins cannot exceed 100mm", nil)
	}
	return Margins{Top: top, Right: right, Bottom: bottom, Left: left}, nil
}

// DefaultMargins returns 1cm on every side
func DefaultMargins() Margins {
	return Margins{Top: 10, Right: 10, Bottom: 10, Left: 10}
}

// LabelMargins returns minimal margins for sticker stock
func LabelMargins() Margins {
	return Margins{Top: 2, Right: 2, Bottom: 2, Left: 2}
}

// PageOptions controls how HTML is laid out on paper
type PageOptions struct {
	PaperSize PaperSize
	// WidthMM and HeightMM are used when PaperSize is CUSTOM
	WidthMM    float64
	HeightMM   float64
	Margins    Margins
	Landscape  bool
	HeaderHTML string
	FooterHTML string
}

// DefaultPageOptions returns page options for a document kind
func DefaultPageOptions(kind Kind) PageOptions {
	opts := PageOptions{
		PaperSize: DefaultPaperSize(kind),
		Margins:   DefaultMargins(),
	}
	if kind.IsLabel() {
		opts.Margins = LabelMargins()
	}
	return opts
}

// Size returns the effective page size in millimeters
func (o PageOptions) Size() (width, height float64) {
	if o.PaperSize == PaperSizeCustom {
		return o.WidthMM, o.HeightMM
	}
	return o.PaperSize.Dimensions()
}

// Validate checks paper size and margins
func (o PageOptions) Validate() error {
	if !o.PaperSize.IsValid() {
		return NewError(ErrKindInvalidInput, "page options", "invalid paper size: "+string(o.PaperSize), nil)
	}
	w, h := o.Size()
	if w <= 0 || h <= 0 {
		return NewError(ErrKindInvalidInput, "page options", "page width and height must be positive", nil)
	}
	if _, err := NewMargins(o.Margins.Top, o.Margins.Right, o.Margins.Bottom, o.Margins.Left); err != nil {
		return err
	}
	if o.Margins.Left+o.Margins.Right >= w || o.Margins.Top+o.Margins.Bottom >= h {
		return NewError(ErrKindInvalidInput, "page options", "margins leave no printable area", nil)
	}
	return nil
}
