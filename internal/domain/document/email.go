package document

import (
	"net/mail"
	"strings"
)

// Attachment is a file sent along with an email
type Attachment struct {
	Filename string
	Content  []byte
}

// Email is an outbound transactional message
type Email struct {
	To       string
	From     string
	FromName string
	Subject  string
	Text     string
	// Attachment is optional
	Attachment *Attachment
}

// Validate checks addresses and required fields
func (e Email) Validate() error {
	if _, err := mail.ParseAddress(e.To); err != nil {
		return NewError(ErrKindInvalidInput, "email", "invalid recipient address: "+e.To, nil)
	}
	if _, err := mail.ParseAddress(e.From); err != nil {
		return NewError(ErrKindInvalidInput, "email", "invalid sender address: "+e.From, nil)
	}
	if strings.TrimSpace(e.Subject) == "" {
		return NewError(ErrKindInvalidInput, "email", "subject is required", nil)
	}
	if e.Attachment != nil {
		if strings.TrimSpace(e.Attachment.Filename) == "" {
			return NewError(ErrKindInvalidInput, "email", "attachment filename is required", nil)
		}
		if len(e.Attachment.Content) == 0 {
			return NewError(ErrKindInvalidInput, "email", "attachment is empty", nil)
		}
	}
	return nil
}

// HTMLBody renders the text body as HTML with line breaks preserved
func (e Email) HTMLBody() string {
	body := strings.ReplaceAll(e.Text, "\r\n", "\n")
	return strings.ReplaceAll(body, "\n", "<br>")
}
