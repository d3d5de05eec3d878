// internal/models/application.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/civilaviation/fop-backend/internal/permit"
)

type PermitApplication struct {
	BaseModel
	TenantID   string            `json:"tenant_id" gorm:"size:64;not null;index"`
	Number     string            `json:"number" gorm:"size:32;not null;uniqueIndex"`
	PermitType permit.PermitType `json:"permit_type" gorm:"type:varchar(20);not null"`
	Status     permit.Status     `json:"status" gorm:"type:varchar(30);default:'draft';index"`
	OperatorID uuid.UUID         `json:"operator_id" gorm:"type:uuid;not null;index"`
	AircraftID uuid.UUID         `json:"aircraft_id" gorm:"type:uuid;not null;index"`

	FlightPurpose      string          `json:"flight_purpose" gorm:"size:30;not null"`
	DepartureAirport   string          `json:"departure_airport" gorm:"size:8;not null"`
	ArrivalAirport     string          `json:"arrival_airport" gorm:"size:8;not null"`
	FlightDate         time.Time       `json:"flight_date" gorm:"not null"`
	PassengerCount     int             `json:"passenger_count"`
	CargoDescription   string          `json:"cargo_description,omitempty" gorm:"type:text"`
	CargoWeightKg      decimal.Decimal `json:"cargo_weight_kg" gorm:"type:decimal(12,2)"`
	SeatCount          int             `json:"seat_count"`
	MaxTakeoffWeightKg decimal.Decimal `json:"max_takeoff_weight_kg" gorm:"type:decimal(12,2)"`
	ValidFrom          time.Time       `json:"valid_from" gorm:"not null"`
	ValidTo            time.Time       `json:"valid_to" gorm:"not null"`

	Currency      string          `json:"currency" gorm:"size:3;not null"`
	CalculatedFee decimal.Decimal `json:"calculated_fee" gorm:"type:decimal(12,2);not null"`
	OriginalFee   decimal.Decimal `json:"original_fee" gorm:"type:decimal(12,2);not null"`

	SubmittedAt        *time.Time `json:"submitted_at"`
	SubmittedBy        string     `json:"submitted_by,omitempty" gorm:"size:255"`
	ReviewedAt         *time.Time `json:"reviewed_at"`
	ReviewedBy         string     `json:"reviewed_by,omitempty" gorm:"size:255"`
	ApprovedAt         *time.Time `json:"approved_at"`
	ApprovedBy         string     `json:"approved_by,omitempty" gorm:"size:255"`
	RejectedAt         *time.Time `json:"rejected_at"`
	RejectedBy         string     `json:"rejected_by,omitempty" gorm:"size:255"`
	RejectionReason    string     `json:"rejection_reason,omitempty" gorm:"type:text"`
	CancelledAt        *time.Time `json:"cancelled_at"`
	CancelledBy        string     `json:"cancelled_by,omitempty" gorm:"size:255"`
	CancellationReason string     `json:"cancellation_reason,omitempty" gorm:"type:text"`

	OverridePreviousFee   *decimal.Decimal `json:"override_previous_fee,omitempty" gorm:"type:decimal(12,2)"`
	OverrideNewFee        *decimal.Decimal `json:"override_new_fee,omitempty" gorm:"type:decimal(12,2)"`
	OverrideJustification string           `json:"override_justification,omitempty" gorm:"type:text"`
	OverriddenBy          string           `json:"overridden_by,omitempty" gorm:"size:255"`
	OverriddenAt          *time.Time       `json:"overridden_at"`

	Flagged     bool       `json:"flagged" gorm:"default:false;index"`
	FlagReason  string     `json:"flag_reason,omitempty" gorm:"type:text"`
	FlaggedBy   string     `json:"flagged_by,omitempty" gorm:"size:255"`
	FlaggedAt   *time.Time `json:"flagged_at"`
	UnflaggedBy string     `json:"unflagged_by,omitempty" gorm:"size:255"`
	UnflaggedAt *time.Time `json:"unflagged_at"`

	Version   int64  `json:"version" gorm:"not null;default:1"`
	CreatedBy string `json:"created_by" gorm:"size:255;not null"`

	// Relationships
	Documents []PermitDocument `json:"documents,omitempty" gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE"`
	Payments  []PermitPayment  `json:"payments,omitempty" gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE"`
	Waivers   []FeeWaiver      `json:"waivers,omitempty" gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE"`
}

type PermitDocument struct {
	BaseModel
	ApplicationID   uuid.UUID             `json:"application_id" gorm:"type:uuid;not null;uniqueIndex:idx_permit_documents_app_type"`
	Type            permit.DocumentType   `json:"type" gorm:"type:varchar(30);not null;uniqueIndex:idx_permit_documents_app_type"`
	FileName        string                `json:"file_name" gorm:"size:255;not null"`
	Locator         string                `json:"locator" gorm:"size:512;not null"`
	MimeType        string                `json:"mime_type" gorm:"size:100;not null"`
	Size            int64                 `json:"size"`
	Status          permit.DocumentStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	ExpiryDate      *time.Time            `json:"expiry_date" gorm:"index"`
	UploadedBy      string                `json:"uploaded_by" gorm:"size:255"`
	UploadedAt      time.Time             `json:"uploaded_at"`
	VerifiedBy      string                `json:"verified_by,omitempty" gorm:"size:255"`
	VerifiedAt      *time.Time            `json:"verified_at"`
	RejectedBy      string                `json:"rejected_by,omitempty" gorm:"size:255"`
	RejectedAt      *time.Time            `json:"rejected_at"`
	RejectionReason string                `json:"rejection_reason,omitempty" gorm:"type:text"`
	ExpiryWarnedAt  *time.Time            `json:"expiry_warned_at"`
}

// PermitPayment rows are kept after a retry; the latest requested one is the
// application's current payment.
type PermitPayment struct {
	BaseModel
	ApplicationID        uuid.UUID            `json:"application_id" gorm:"type:uuid;not null;index"`
	Amount               decimal.Decimal      `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency             string               `json:"currency" gorm:"size:3;not null"`
	Method               permit.PaymentMethod `json:"method" gorm:"type:varchar(20);not null"`
	Status               permit.PaymentStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	TransactionReference string               `json:"transaction_reference,omitempty" gorm:"size:255;index"`
	ReceiptNumber        string               `json:"receipt_number,omitempty" gorm:"size:100"`
	ReceiptURL           string               `json:"receipt_url,omitempty" gorm:"size:512"`
	FailureReason        string               `json:"failure_reason,omitempty" gorm:"type:text"`
	RefundReason         string               `json:"refund_reason,omitempty" gorm:"type:text"`
	RequestedAt          time.Time            `json:"requested_at" gorm:"not null;index"`
	ProcessingAt         *time.Time           `json:"processing_at"`
	CompletedAt          *time.Time           `json:"completed_at"`
	FailedAt             *time.Time           `json:"failed_at"`
	RefundedAt           *time.Time           `json:"refunded_at"`
	CancelledAt          *time.Time           `json:"cancelled_at"`
	Verified             bool                 `json:"verified" gorm:"default:false"`
	VerifiedBy           string               `json:"verified_by,omitempty" gorm:"size:255"`
	VerifiedAt           *time.Time           `json:"verified_at"`
}

type FeeWaiver struct {
	BaseModel
	ApplicationID  uuid.UUID           `json:"application_id" gorm:"type:uuid;not null;index"`
	Type           permit.WaiverType   `json:"type" gorm:"type:varchar(20);not null"`
	Status         permit.WaiverStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Reason         string              `json:"reason" gorm:"type:text;not null"`
	RequestedBy    string              `json:"requested_by" gorm:"size:255;not null"`
	RequestedAt    time.Time           `json:"requested_at" gorm:"not null"`
	DecidedBy      string              `json:"decided_by,omitempty" gorm:"size:255"`
	DecidedAt      *time.Time          `json:"decided_at"`
	DecisionNotes  string              `json:"decision_notes,omitempty" gorm:"type:text"`
	Percentage     decimal.Decimal     `json:"percentage" gorm:"type:decimal(5,2)"`
	WaivedAmount   *decimal.Decimal    `json:"waived_amount,omitempty" gorm:"type:decimal(12,2)"`
	WaivedCurrency string              `json:"waived_currency,omitempty" gorm:"size:3"`
}

// ApplicationFromDomain flattens the aggregate into its records. Version is
// copied as is; the repository decides what to write.
func ApplicationFromDomain(a *permit.Application) *PermitApplication {
	rec := &PermitApplication{
		BaseModel:          BaseModel{ID: a.ID, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt},
		TenantID:           a.TenantID,
		Number:             a.Number,
		PermitType:         a.PermitType,
		Status:             a.Status,
		OperatorID:         a.OperatorID,
		AircraftID:         a.AircraftID,
		FlightPurpose:      string(a.Flight.Purpose),
		DepartureAirport:   a.Flight.DepartureAirport,
		ArrivalAirport:     a.Flight.ArrivalAirport,
		FlightDate:         a.Flight.FlightDate,
		PassengerCount:     a.Flight.PassengerCount,
		CargoDescription:   a.Flight.CargoDescription,
		CargoWeightKg:      a.Flight.CargoWeightKg,
		SeatCount:          a.Flight.SeatCount,
		MaxTakeoffWeightKg: a.Flight.MaxTakeoffWeightKg,
		ValidFrom:          a.Validity.Start,
		ValidTo:            a.Validity.End,
		Currency:           a.CalculatedFee.Currency,
		CalculatedFee:      a.CalculatedFee.Amount,
		OriginalFee:        a.OriginalFee.Amount,
		SubmittedAt:        a.SubmittedAt,
		SubmittedBy:        a.SubmittedBy,
		ReviewedAt:         a.ReviewedAt,
		ReviewedBy:         a.ReviewedBy,
		ApprovedAt:         a.ApprovedAt,
		ApprovedBy:         a.ApprovedBy,
		RejectedAt:         a.RejectedAt,
		RejectedBy:         a.RejectedBy,
		RejectionReason:    a.RejectionReason,
		CancelledAt:        a.CancelledAt,
		CancelledBy:        a.CancelledBy,
		CancellationReason: a.CancellationReason,
		Flagged:            a.Flagging.Flagged,
		FlagReason:         a.Flagging.Reason,
		FlaggedBy:          a.Flagging.FlaggedBy,
		FlaggedAt:          a.Flagging.FlaggedAt,
		UnflaggedBy:        a.Flagging.UnflaggedBy,
		UnflaggedAt:        a.Flagging.UnflaggedAt,
		Version:            a.Version,
		CreatedBy:          a.CreatedBy,
	}
	if o := a.FeeOverride; o != nil {
		prev, next := o.PreviousFee.Amount, o.NewFee.Amount
		rec.OverridePreviousFee = &prev
		rec.OverrideNewFee = &next
		rec.OverrideJustification = o.Justification
		rec.OverriddenBy = o.OverriddenBy
		rec.OverriddenAt = &o.OverriddenAt
	}

	for _, d := range a.Documents {
		rec.Documents = append(rec.Documents, PermitDocument{
			BaseModel:       BaseModel{ID: d.ID, CreatedAt: d.UploadedAt},
			ApplicationID:   a.ID,
			Type:            d.Type,
			FileName:        d.FileName,
			Locator:         d.Locator,
			MimeType:        d.MimeType,
			Size:            d.Size,
			Status:          d.Status,
			ExpiryDate:      d.ExpiryDate,
			UploadedBy:      d.UploadedBy,
			UploadedAt:      d.UploadedAt,
			VerifiedBy:      d.VerifiedBy,
			VerifiedAt:      d.VerifiedAt,
			RejectedBy:      d.RejectedBy,
			RejectedAt:      d.RejectedAt,
			RejectionReason: d.RejectionReason,
			ExpiryWarnedAt:  d.ExpiryWarnedAt,
		})
	}

	if p := a.Payment; p != nil {
		rec.Payments = append(rec.Payments, PermitPayment{
			BaseModel:            BaseModel{ID: p.ID, CreatedAt: p.RequestedAt},
			ApplicationID:        a.ID,
			Amount:               p.Amount.Amount,
			Currency:             p.Amount.Currency,
			Method:               p.Method,
			Status:               p.Status,
			TransactionReference: p.TransactionReference,
			ReceiptNumber:        p.ReceiptNumber,
			ReceiptURL:           p.ReceiptURL,
			FailureReason:        p.FailureReason,
			RefundReason:         p.RefundReason,
			RequestedAt:          p.RequestedAt,
			ProcessingAt:         p.ProcessingAt,
			CompletedAt:          p.CompletedAt,
			FailedAt:             p.FailedAt,
			RefundedAt:           p.RefundedAt,
			CancelledAt:          p.CancelledAt,
			Verified:             p.Verified,
			VerifiedBy:           p.VerifiedBy,
			VerifiedAt:           p.VerifiedAt,
		})
	}

	for _, w := range a.Waivers {
		wr := FeeWaiver{
			BaseModel:     BaseModel{ID: w.ID, CreatedAt: w.RequestedAt},
			ApplicationID: a.ID,
			Type:          w.Type,
			Status:        w.Status,
			Reason:        w.Reason,
			RequestedBy:   w.RequestedBy,
			RequestedAt:   w.RequestedAt,
			DecidedBy:     w.DecidedBy,
			DecidedAt:     w.DecidedAt,
			DecisionNotes: w.DecisionNotes,
			Percentage:    w.Percentage,
		}
		if w.WaivedAmount != nil {
			amount := w.WaivedAmount.Amount
			wr.WaivedAmount = &amount
			wr.WaivedCurrency = w.WaivedAmount.Currency
		}
		rec.Waivers = append(rec.Waivers, wr)
	}
	return rec
}

// ToDomain rebuilds the aggregate. Payments must be ordered oldest first.
func (r *PermitApplication) ToDomain() *permit.Application {
	money := func(d decimal.Decimal) permit.Money {
		return permit.Money{Amount: d, Currency: r.Currency}
	}

	a := &permit.Application{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Number:     r.Number,
		PermitType: r.PermitType,
		Status:     r.Status,
		OperatorID: r.OperatorID,
		AircraftID: r.AircraftID,
		Flight: permit.FlightDetails{
			Purpose:            permit.FlightPurpose(r.FlightPurpose),
			DepartureAirport:   r.DepartureAirport,
			ArrivalAirport:     r.ArrivalAirport,
			FlightDate:         r.FlightDate,
			PassengerCount:     r.PassengerCount,
			CargoDescription:   r.CargoDescription,
			CargoWeightKg:      r.CargoWeightKg,
			SeatCount:          r.SeatCount,
			MaxTakeoffWeightKg: r.MaxTakeoffWeightKg,
		},
		Validity:           permit.Period{Start: r.ValidFrom, End: r.ValidTo},
		CalculatedFee:      money(r.CalculatedFee),
		OriginalFee:        money(r.OriginalFee),
		SubmittedAt:        r.SubmittedAt,
		SubmittedBy:        r.SubmittedBy,
		ReviewedAt:         r.ReviewedAt,
		ReviewedBy:         r.ReviewedBy,
		ApprovedAt:         r.ApprovedAt,
		ApprovedBy:         r.ApprovedBy,
		RejectedAt:         r.RejectedAt,
		RejectedBy:         r.RejectedBy,
		RejectionReason:    r.RejectionReason,
		CancelledAt:        r.CancelledAt,
		CancelledBy:        r.CancelledBy,
		CancellationReason: r.CancellationReason,
		Flagging: permit.FlagState{
			Flagged:     r.Flagged,
			Reason:      r.FlagReason,
			FlaggedBy:   r.FlaggedBy,
			FlaggedAt:   r.FlaggedAt,
			UnflaggedBy: r.UnflaggedBy,
			UnflaggedAt: r.UnflaggedAt,
		},
		Version:   r.Version,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	if r.OverrideNewFee != nil && r.OverriddenAt != nil {
		prev := decimal.Zero
		if r.OverridePreviousFee != nil {
			prev = *r.OverridePreviousFee
		}
		a.FeeOverride = &permit.FeeOverride{
			PreviousFee:   money(prev),
			NewFee:        money(*r.OverrideNewFee),
			Justification: r.OverrideJustification,
			OverriddenBy:  r.OverriddenBy,
			OverriddenAt:  *r.OverriddenAt,
		}
	}

	for _, d := range r.Documents {
		a.Documents = append(a.Documents, &permit.Document{
			ID:              d.ID,
			Type:            d.Type,
			FileName:        d.FileName,
			Locator:         d.Locator,
			MimeType:        d.MimeType,
			Size:            d.Size,
			Status:          d.Status,
			ExpiryDate:      d.ExpiryDate,
			UploadedBy:      d.UploadedBy,
			UploadedAt:      d.UploadedAt,
			VerifiedBy:      d.VerifiedBy,
			VerifiedAt:      d.VerifiedAt,
			RejectedBy:      d.RejectedBy,
			RejectedAt:      d.RejectedAt,
			RejectionReason: d.RejectionReason,
			ExpiryWarnedAt:  d.ExpiryWarnedAt,
		})
	}

	if n := len(r.Payments); n > 0 {
		p := r.Payments[n-1]
		a.Payment = &permit.Payment{
			ID:                   p.ID,
			Amount:               permit.Money{Amount: p.Amount, Currency: p.Currency},
			Method:               p.Method,
			Status:               p.Status,
			TransactionReference: p.TransactionReference,
			ReceiptNumber:        p.ReceiptNumber,
			ReceiptURL:           p.ReceiptURL,
			FailureReason:        p.FailureReason,
			RefundReason:         p.RefundReason,
			RequestedAt:          p.RequestedAt,
			ProcessingAt:         p.ProcessingAt,
			CompletedAt:          p.CompletedAt,
			FailedAt:             p.FailedAt,
			RefundedAt:           p.RefundedAt,
			CancelledAt:          p.CancelledAt,
			Verified:             p.Verified,
			VerifiedBy:           p.VerifiedBy,
			VerifiedAt:           p.VerifiedAt,
		}
	}

	for _, w := range r.Waivers {
		waiver := &permit.Waiver{
			ID:            w.ID,
			Type:          w.Type,
			Status:        w.Status,
			Reason:        w.Reason,
			RequestedBy:   w.RequestedBy,
			RequestedAt:   w.RequestedAt,
			DecidedBy:     w.DecidedBy,
			DecidedAt:     w.DecidedAt,
			DecisionNotes: w.DecisionNotes,
			Percentage:    w.Percentage,
		}
		if w.WaivedAmount != nil {
			waiver.WaivedAmount = &permit.Money{Amount: *w.WaivedAmount, Currency: w.WaivedCurrency}
		}
		a.Waivers = append(a.Waivers, waiver)
	}
	return a
}
