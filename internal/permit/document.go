// internal/permit/document.go
package permit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultExpiryWarningWindow is how close to expiry a freshly verified
// document must be to raise DocumentExpiringSoon.
const DefaultExpiryWarningWindow = 30 * 24 * time.Hour

type Document struct {
	ID              uuid.UUID      `json:"id"`
	Type            DocumentType   `json:"type"`
	FileName        string         `json:"file_name"`
	Locator         string         `json:"locator"`
	MimeType        string         `json:"mime_type"`
	Size            int64          `json:"size"`
	Status          DocumentStatus `json:"status"`
	ExpiryDate      *time.Time     `json:"expiry_date,omitempty"`
	UploadedBy      string         `json:"uploaded_by"`
	UploadedAt      time.Time      `json:"uploaded_at"`
	VerifiedBy      string         `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time     `json:"verified_at,omitempty"`
	RejectedBy      string         `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time     `json:"rejected_at,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`

	// ExpiryWarnedAt is set once DocumentExpiringSoon has been raised.
	ExpiryWarnedAt *time.Time `json:"expiry_warned_at,omitempty"`
}

// ExpiredOn reports whether the expiry date falls on a calendar day before t.
// A document expiring today is still valid today.
func (d *Document) ExpiredOn(t time.Time) bool {
	if d.ExpiryDate == nil {
		return false
	}
	return truncateDay(*d.ExpiryDate).Before(truncateDay(t))
}

// daysUntilExpiry is negative for expired documents.
func (d *Document) daysUntilExpiry(t time.Time) int {
	return int(truncateDay(*d.ExpiryDate).Sub(truncateDay(t)).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type UploadDocumentParams struct {
	Type       DocumentType
	FileName   string
	Locator    string
	MimeType   string
	Size       int64
	ExpiryDate *time.Time
	UploadedBy string
}

func (p UploadDocumentParams) validate() error {
	if !p.Type.Valid() {
		return invalidArg("document_type", fmt.Sprintf("unknown document type %q", p.Type))
	}
	if strings.TrimSpace(p.FileName) == "" {
		return invalidArg("file_name", "is required")
	}
	if strings.TrimSpace(p.Locator) == "" {
		return invalidArg("locator", "is required")
	}
	if strings.TrimSpace(p.MimeType) == "" {
		return invalidArg("mime_type", "is required")
	}
	if p.Size <= 0 {
		return invalidArg("size", "must be positive")
	}
	return requireActor("uploaded_by", p.UploadedBy)
}

type VerifyDocumentParams struct {
	Type       DocumentType
	VerifiedBy string
	// WarningWindow overrides DefaultExpiryWarningWindow when positive.
	// Tenant settings never store a zero window.
	WarningWindow time.Duration
}

// Document returns the document of the given type.
func (a *Application) Document(t DocumentType) (*Document, bool) {
	for _, d := range a.Documents {
		if d.Type == t {
			return d, true
		}
	}
	return nil, false
}

// MissingDocumentTypes lists the required types not uploaded yet, in the
// order of RequiredDocumentTypes.
func (a *Application) MissingDocumentTypes() []DocumentType {
	var missing []DocumentType
	for _, t := range RequiredDocumentTypes {
		if _, ok := a.Document(t); !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

// AllDocumentsVerified is false for an application without documents.
func (a *Application) AllDocumentsVerified() bool {
	if len(a.Documents) == 0 {
		return false
	}
	for _, d := range a.Documents {
		if d.Status != DocumentStatusVerified {
			return false
		}
	}
	return true
}

func (a *Application) unverifiedDocumentTypes() []string {
	var types []string
	for _, d := range a.Documents {
		if d.Status != DocumentStatusVerified {
			types = append(types, string(d.Type))
		}
	}
	return types
}

// UploadDocument attaches a document, replacing any previous document of the
// same type. The replaced document is returned so its blob can be removed.
func (a *Application) UploadDocument(p UploadDocumentParams, now time.Time) (*Document, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := a.requireStatus("upload document to",
		StatusDraft, StatusSubmitted, StatusUnderReview, StatusPendingDocuments); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:         uuid.New(),
		Type:       p.Type,
		FileName:   p.FileName,
		Locator:    p.Locator,
		MimeType:   p.MimeType,
		Size:       p.Size,
		Status:     DocumentStatusPending,
		ExpiryDate: p.ExpiryDate,
		UploadedBy: p.UploadedBy,
		UploadedAt: now,
	}

	var replaced *Document
	for i, d := range a.Documents {
		if d.Type == p.Type {
			replaced = d
			a.Documents[i] = doc
			break
		}
	}
	if replaced == nil {
		a.Documents = append(a.Documents, doc)
	}

	a.touch(now)
	a.record(DocumentUploaded{
		EventHeader:  a.header(now),
		DocumentType: doc.Type,
		Locator:      doc.Locator,
		Replaced:     replaced != nil,
	})
	return replaced, nil
}

// VerifyDocument marks one document verified. The expiry date is checked
// against now, not the upload time; an expired document yields
// *DocumentExpiredError and leaves the application untouched.
//
// When every document is verified and the application is waiting on
// documents, it goes back under review.
func (a *Application) VerifyDocument(p VerifyDocumentParams, now time.Time) error {
	if err := requireActor("verified_by", p.VerifiedBy); err != nil {
		return err
	}
	if err := a.requireStatus("verify document of", nonTerminalStatuses...); err != nil {
		return err
	}
	doc, ok := a.Document(p.Type)
	if !ok {
		return &NotFoundError{Kind: "document", Key: string(p.Type)}
	}
	if doc.ExpiredOn(now) {
		return &DocumentExpiredError{
			DocumentType: doc.Type,
			ExpiryDate:   *doc.ExpiryDate,
			AttemptedAt:  now,
			Event: DocumentVerificationFailedDueToExpiry{
				EventHeader:  a.header(now),
				DocumentType: doc.Type,
				ExpiryDate:   *doc.ExpiryDate,
				AttemptedBy:  p.VerifiedBy,
			},
		}
	}

	doc.Status = DocumentStatusVerified
	doc.VerifiedBy = p.VerifiedBy
	doc.VerifiedAt = timePtr(now)
	doc.RejectedBy = ""
	doc.RejectedAt = nil
	doc.RejectionReason = ""

	if a.Status == StatusPendingDocuments && a.AllDocumentsVerified() {
		a.Status = StatusUnderReview
	}
	a.touch(now)
	a.record(DocumentVerified{EventHeader: a.header(now), DocumentType: doc.Type, VerifiedBy: p.VerifiedBy})

	a.warnExpiring(doc, p.WarningWindow, now)
	return nil
}

// warnExpiring raises DocumentExpiringSoon when the document expires within
// window of now. Each document is warned about once.
func (a *Application) warnExpiring(d *Document, window time.Duration, now time.Time) bool {
	if d.ExpiryDate == nil || d.ExpiryWarnedAt != nil || d.ExpiredOn(now) {
		return false
	}
	if window <= 0 {
		window = DefaultExpiryWarningWindow
	}
	days := d.daysUntilExpiry(now)
	if time.Duration(days)*24*time.Hour > window {
		return false
	}
	d.ExpiryWarnedAt = timePtr(now)
	a.record(DocumentExpiringSoon{
		EventHeader:   a.header(now),
		DocumentType:  d.Type,
		ExpiryDate:    *d.ExpiryDate,
		DaysRemaining: days,
	})
	return true
}

// WarnExpiringDocuments raises DocumentExpiringSoon for verified documents
// expiring within window that have not been warned about yet, and returns
// their types. Terminal applications are left alone.
func (a *Application) WarnExpiringDocuments(window time.Duration, now time.Time) []DocumentType {
	if a.Status.Terminal() {
		return nil
	}
	var warned []DocumentType
	for _, d := range a.Documents {
		if d.Status == DocumentStatusVerified && a.warnExpiring(d, window, now) {
			warned = append(warned, d.Type)
		}
	}
	if len(warned) > 0 {
		a.touch(now)
	}
	return warned
}

// RejectDocument rejects one document and sends the application back to
// PendingDocuments whatever the state of the others. A payment still in
// flight is cancelled.
func (a *Application) RejectDocument(t DocumentType, reason, rejectedBy string, now time.Time) error {
	if err := requireActor("reason", reason); err != nil {
		return err
	}
	if err := requireActor("rejected_by", rejectedBy); err != nil {
		return err
	}
	if err := a.requireStatus("reject document of",
		StatusSubmitted, StatusUnderReview, StatusPendingDocuments, StatusPendingPayment); err != nil {
		return err
	}
	doc, ok := a.Document(t)
	if !ok {
		return &NotFoundError{Kind: "document", Key: string(t)}
	}

	doc.Status = DocumentStatusRejected
	doc.RejectedBy = rejectedBy
	doc.RejectedAt = timePtr(now)
	doc.RejectionReason = reason
	doc.VerifiedBy = ""
	doc.VerifiedAt = nil

	a.cancelActivePayment(now)
	a.Status = StatusPendingDocuments
	a.touch(now)
	a.record(DocumentRejected{EventHeader: a.header(now), DocumentType: t, RejectedBy: rejectedBy, Reason: reason})
	return nil
}

// ExpireDocuments marks every pending or verified document whose expiry date
// has passed as Expired and returns their types. Terminal applications are
// left alone.
func (a *Application) ExpireDocuments(now time.Time) []DocumentType {
	if a.Status.Terminal() {
		return nil
	}
	var expired []DocumentType
	for _, d := range a.Documents {
		if d.Status != DocumentStatusPending && d.Status != DocumentStatusVerified {
			continue
		}
		if !d.ExpiredOn(now) {
			continue
		}
		d.Status = DocumentStatusExpired
		expired = append(expired, d.Type)
		a.record(DocumentExpired{EventHeader: a.header(now), DocumentType: d.Type, ExpiryDate: *d.ExpiryDate})
	}
	if len(expired) > 0 {
		a.touch(now)
	}
	return expired
}
