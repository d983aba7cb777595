package document

import (
	"github.com/erp/docservice/internal/application/storage"
	"github.com/erp/docservice/internal/domain/document"
)

// MarginsDTO represents page margins in millimeters
type MarginsDTO struct {
	Top    float64 `json:"top" binding:"min=0,max=100"`
	Right  float64 `json:"right" binding:"min=0,max=100"`
	Bottom float64 `json:"bottom" binding:"min=0,max=100"`
	Left   float64 `json:"left" binding:"min=0,max=100"`
}

// PageDTO overrides the page layout derived from the document kind
type PageDTO struct {
	PaperSize  string      `json:"paper_size" binding:"omitempty,oneof=A4 A5 LETTER SHIPPING_LABEL ADDRESS_LABEL CUSTOM"`
	WidthMM    float64     `json:"width_mm" binding:"omitempty,gt=0"`
	HeightMM   float64     `json:"height_mm" binding:"omitempty,gt=0"`
	Margins    *MarginsDTO `json:"margins"`
	Landscape  bool        `json:"landscape"`
	HeaderHTML string      `json:"header_html"`
	FooterHTML string      `json:"footer_html"`
}

// Target names where a generated document is filed. Either Path or all of
// Scope, Year and Filename are set; Path wins when both are present.
type Target struct {
	Path     string `json:"path"`
	Scope    string `json:"scope"`
	Year     int    `json:"year"`
	Filename string `json:"filename"`
}

// GenerateRequest renders HTML to PDF and stores it
type GenerateRequest struct {
	Kind string `json:"kind" binding:"required"`
	HTML string `json:"html" binding:"required"`
	Target
	Page        *PageDTO `json:"page"`
	Print       bool     `json:"print"`
	PrinterName string   `json:"printer"`
}

// StickerRequest renders an address label and a shipping label for one
// shipment. Both are filed under the same scope, year and filename.
type StickerRequest struct {
	Scope        string `json:"scope" binding:"required"`
	Year         int    `json:"year" binding:"required,min=1970,max=9999"`
	Filename     string `json:"filename" binding:"required"`
	AddressHTML  string `json:"address_html" binding:"required"`
	ShippingHTML string `json:"shipping_html" binding:"required"`
	Print        bool   `json:"print"`
	PrinterName  string `json:"printer"`
}

// MoveFolderRequest names the source and target folder. Either side may be a
// relative path or any accepted locator form.
type MoveFolderRequest struct {
	OldURL string `json:"old_url" binding:"required"`
	NewURL string `json:"new_url" binding:"required"`
}

// SendEmailRequest sends a message with an optional stored attachment
type SendEmailRequest struct {
	To       string `json:"email" binding:"required,email"`
	From     string `json:"from_email" binding:"omitempty,email"`
	FromName string `json:"from_name"`
	Subject  string `json:"subject" binding:"required"`
	Message  string `json:"message" binding:"required"`
	// Attachment is a locator string of a stored document
	Attachment string `json:"attachment"`
}

// PrintOutcome reports the print handoff next to a stored document
type PrintOutcome struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DocumentResponse describes one stored document
type DocumentResponse struct {
	Locator      string               `json:"locator"`
	Backend      document.BackendKind `json:"backend"`
	RelativePath string               `json:"relative_path"`
	Size         int64                `json:"size"`
	Fallback     bool                 `json:"fallback"`
	// Print is nil when printing was not requested
	Print *PrintOutcome `json:"print,omitempty"`
}

// StickerResponse holds both stored labels
type StickerResponse struct {
	AddressLabel  DocumentResponse `json:"address_label"`
	ShippingLabel DocumentResponse `json:"shipping_label"`
}

// EmailResponse confirms a sent message
type EmailResponse struct {
	To         string `json:"email"`
	Attachment string `json:"attachment,omitempty"`
}

// ListFilesResponse is a directory listing
type ListFilesResponse struct {
	Path    string               `json:"path"`
	Entries []document.FileEntry `json:"entries"`
}

func toDocumentResponse(result *storage.StoreResult, printRequested bool) DocumentResponse {
	resp := DocumentResponse{
		Locator:      result.Locator.String(),
		Backend:      result.Locator.Backend,
		RelativePath: result.Locator.RelativePath,
		Size:         result.Locator.SizeHint,
		Fallback:     result.Fallback,
	}
	if printRequested {
		resp.Print = &PrintOutcome{OK: result.Printed}
		if result.PrintErr != nil {
			resp.Print.Error = result.PrintErr.Error()
		}
	}
	return resp
}

func (p *PageDTO) apply(opts document.PageOptions) document.PageOptions {
	if p == nil {
		return opts
	}
	if p.PaperSize != "" {
		opts.PaperSize = document.PaperSize(p.PaperSize)
	}
	opts.WidthMM = p.WidthMM
	opts.HeightMM = p.HeightMM
	if p.Margins != nil {
		opts.Margins = document.Margins{
			Top:    p.Margins.Top,
			Right:  p.Margins.Right,
			Bottom: p.Margins.Bottom,
			Left:   p.Margins.Left,
		}
	}
	opts.Landscape = p.Landscape
	opts.HeaderHTML = p.HeaderHTML
	opts.FooterHTML = p.FooterHTML
	return opts
}
