package document

import "strings"

// BackendKind identifies which storage system holds an artifact
type BackendKind string

const (
	BackendObjectStore BackendKind = "OBJECT_STORE"
	BackendRemoteFile  BackendKind = "REMOTE_FILE"
)

// IsValid returns true if the backend kind is known
func (b BackendKind) IsValid() bool {
	switch b {
	case BackendObjectStore, BackendRemoteFile:
		return true
	}
	return false
}

// String returns the string representation
func (b BackendKind) String() string {
	return string(b)
}

// Kind is the type of business document being stored
type Kind string

const (
	KindInvoice       Kind = "INVOICE"
	KindPackingSlip   Kind = "PACKING_SLIP"
	KindQuote         Kind = "QUOTE"
	KindShippingLabel Kind = "SHIPPING_LABEL"
	KindAddressLabel  Kind = "ADDRESS_LABEL"
)

// AllKinds returns all supported document kinds
func AllKinds() []Kind {
	return []Kind{
		KindInvoice,
		KindPackingSlip,
		KindQuote,
		KindShippingLabel,
		KindAddressLabel,
	}
}

// IsValid returns true if the document kind is supported
func (k Kind) IsValid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// IsLabel returns true for sticker-sized documents
func (k Kind) IsLabel() bool {
	return k == KindShippingLabel || k == KindAddressLabel
}

// Folder returns the directory segment the document kind is filed under
func (k Kind) Folder() string {
	switch k {
	case KindInvoice:
		return "facturen"
	case KindPackingSlip:
		return "pakbonnen"
	case KindQuote:
		return "offertes"
	case KindShippingLabel:
		return "verzendlabels"
	case KindAddressLabel:
		return "adreslabels"
	}
	return strings.ToLower(string(k))
}

// String returns the string representation
func (k Kind) String() string {
	return string(k)
}

// ParseKind converts a case-insensitive name into a Kind
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))))
	return k, k.IsValid()
}
