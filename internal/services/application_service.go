// internal/services/application_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/civilaviation/fop-backend/internal/database"
	"github.com/civilaviation/fop-backend/internal/fees"
	"github.com/civilaviation/fop-backend/internal/metrics"
	"github.com/civilaviation/fop-backend/internal/models"
	"github.com/civilaviation/fop-backend/internal/permit"
	"github.com/civilaviation/fop-backend/internal/utils"
)

const (
	numberAttempts  = 5
	restoreAttempts = 3

	// MaxExpiryWarningDays bounds a tenant's expiry warning window.
	MaxExpiryWarningDays = 365
)

// errUnchanged lets a mutation finish without writing anything.
var errUnchanged = errors.New("application unchanged")

type ApplicationService struct {
	db            *gorm.DB
	fees          *FeeService
	storage       *StorageService
	gateway       PaymentGateway
	notifications *NotificationService
	repo          applicationRepository
	now           func() time.Time
}

type CreateApplicationRequest struct {
	PermitType         string          `json:"permit_type" validate:"required,oneof=one_time blanket emergency"`
	OperatorID         uuid.UUID       `json:"operator_id" validate:"required"`
	AircraftID         uuid.UUID       `json:"aircraft_id" validate:"required"`
	FlightPurpose      string          `json:"flight_purpose" validate:"required,oneof=scheduled charter cargo private medevac technical_stop diplomatic"`
	DepartureAirport   string          `json:"departure_airport" validate:"required,icao"`
	ArrivalAirport     string          `json:"arrival_airport" validate:"required,icao"`
	FlightDate         time.Time       `json:"flight_date" validate:"required"`
	PassengerCount     int             `json:"passenger_count" validate:"min=0"`
	CargoDescription   string          `json:"cargo_description,omitempty"`
	CargoWeightKg      decimal.Decimal `json:"cargo_weight_kg"`
	SeatCount          int             `json:"seat_count" validate:"min=0"`
	MaxTakeoffWeightKg decimal.Decimal `json:"max_takeoff_weight_kg"`
	ValidFrom          time.Time       `json:"valid_from" validate:"required"`
	ValidTo            time.Time       `json:"valid_to" validate:"required"`
}

type UploadDocumentRequest struct {
	Type       string     `form:"type" validate:"required"`
	ExpiryDate *time.Time `form:"expiry_date" time_format:"2006-01-02"`
	FileName   string
	Data       []byte
}

type ApplicationFilter struct {
	utils.PaginationParams
	Status     *permit.Status     `json:"status,omitempty"`
	PermitType *permit.PermitType `json:"permit_type,omitempty"`
	OperatorID *uuid.UUID         `json:"operator_id,omitempty"`
	Flagged    *bool              `json:"flagged,omitempty"`
}

// PaymentResult is the application after a payment operation plus the
// gateway intent, when one was created.
type PaymentResult struct {
	Application *permit.Application `json:"application"`
	Intent      *PaymentIntent      `json:"intent,omitempty"`
}

func NewApplicationService(db *gorm.DB, fees *FeeService, storage *StorageService, gateway PaymentGateway, notifications *NotificationService) *ApplicationService {
	return &ApplicationService{
		db:            db,
		fees:          fees,
		storage:       storage,
		gateway:       gateway,
		notifications: notifications,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create prices a new draft application with the tenant's permit fee
// schedule and stores it.
func (s *ApplicationService) Create(ctx context.Context, tenantID, actor string, req *CreateApplicationRequest) (*permit.Application, error) {
	calc, err := s.fees.PermitCalculator(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	quote, err := calc.Calculate(fees.PermitFeeRequest{
		PermitType:         permit.PermitType(req.PermitType),
		SeatCount:          req.SeatCount,
		MaxTakeoffWeightKg: req.MaxTakeoffWeightKg,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	number, err := s.nextNumber(ctx, now)
	if err != nil {
		return nil, err
	}

	app, err := permit.New(permit.NewApplicationParams{
		TenantID:   tenantID,
		Number:     number,
		PermitType: permit.PermitType(req.PermitType),
		OperatorID: req.OperatorID,
		AircraftID: req.AircraftID,
		Flight: permit.FlightDetails{
			Purpose:            permit.FlightPurpose(req.FlightPurpose),
			DepartureAirport:   req.DepartureAirport,
			ArrivalAirport:     req.ArrivalAirport,
			FlightDate:         req.FlightDate,
			PassengerCount:     req.PassengerCount,
			CargoDescription:   req.CargoDescription,
			CargoWeightKg:      req.CargoWeightKg,
			SeatCount:          req.SeatCount,
			MaxTakeoffWeightKg: req.MaxTakeoffWeightKg,
		},
		Validity:  permit.Period{Start: req.ValidFrom, End: req.ValidTo},
		Fee:       quote.Total,
		CreatedBy: actor,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, app); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id":      tenantID,
		"application_id": app.ID,
		"number":         app.Number,
	}).Info("Permit application created")
	return app, nil
}

// nextNumber draws a random six digit suffix until it finds one not taken.
func (s *ApplicationService) nextNumber(ctx context.Context, now time.Time) (string, error) {
	for i := 0; i < numberAttempts; i++ {
		code, err := utils.GenerateNumericCode(6)
		if err != nil {
			return "", fmt.Errorf("failed to generate application number: %w", err)
		}
		number := permit.FormatNumber(now.Year(), code)

		var count int64
		if err := s.db.WithContext(ctx).Model(&models.PermitApplication{}).
			Where("number = ?", number).Count(&count).Error; err != nil {
			return "", fmt.Errorf("failed to check application number: %w", err)
		}
		if count == 0 {
			return number, nil
		}
	}
	return "", fmt.Errorf("no free application number after %d attempts", numberAttempts)
}

func (s *ApplicationService) Get(ctx context.Context, tenantID string, id uuid.UUID) (*permit.Application, error) {
	rec, err := s.repo.load(s.db.WithContext(ctx), tenantID, id)
	if err != nil {
		return nil, err
	}
	return rec.ToDomain(), nil
}

// List returns application rows without their documents, payments or
// waivers.
func (s *ApplicationService) List(ctx context.Context, tenantID string, filter ApplicationFilter) ([]models.PermitApplication, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.PermitApplication{}).Where("tenant_id = ?", tenantID)

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PermitType != nil {
		query = query.Where("permit_type = ?", *filter.PermitType)
	}
	if filter.OperatorID != nil {
		query = query.Where("operator_id = ?", *filter.OperatorID)
	}
	if filter.Flagged != nil {
		query = query.Where("flagged = ?", *filter.Flagged)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "flight_date", "number", "status", "calculated_fee"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var apps []models.PermitApplication
	if err := query.Find(&apps).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, total, nil
}

// mutate loads the application, applies fn and commits the result. The load
// runs outside the write transaction; the version check in commit catches a
// concurrent writer.
func (s *ApplicationService) mutate(ctx context.Context, tenantID string, id uuid.UUID, fn func(app *permit.Application, now time.Time) error) (*permit.Application, error) {
	app, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(app, s.now()); err != nil {
		if errors.Is(err, errUnchanged) {
			return app, nil
		}
		return nil, err
	}
	if err := s.commit(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// commit writes the aggregate and its pending events in one transaction and
// dispatches the events once committed.
func (s *ApplicationService) commit(ctx context.Context, app *permit.Application) error {
	events := app.PullEvents()
	var outbox []uuid.UUID
	err := database.WithTransactionContext(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		if app.Version == 0 {
			err = s.repo.insert(tx, app)
		} else {
			err = s.repo.update(tx, app)
		}
		if err != nil {
			return err
		}
		outbox, err = s.repo.appendOutbox(tx, events)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			metrics.RecordConflict()
		}
		return err
	}

	for _, e := range events {
		metrics.RecordEvent(string(e.Type()))
	}
	s.dispatch(ctx, outbox)
	return nil
}

// recordEvents stores events that are not tied to a state change.
func (s *ApplicationService) recordEvents(ctx context.Context, events ...permit.Event) error {
	var outbox []uuid.UUID
	err := database.WithTransactionContext(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		outbox, err = s.repo.appendOutbox(tx, events)
		return err
	})
	if err != nil {
		return err
	}
	for _, e := range events {
		metrics.RecordEvent(string(e.Type()))
	}
	s.dispatch(ctx, outbox)
	return nil
}

// dispatch hands committed events to the notifier. Failures stay in the
// outbox for the background dispatcher.
func (s *ApplicationService) dispatch(ctx context.Context, ids []uuid.UUID) {
	if s.notifications == nil || len(ids) == 0 {
		return
	}
	if err := s.notifications.DispatchEvents(ctx, ids); err != nil {
		logrus.WithError(err).WithField("events", len(ids)).Warn("Event dispatch deferred")
	}
}

func (s *ApplicationService) Submit(ctx context.Context, tenantID string, id uuid.UUID, actor string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.Submit(actor, now)
	})
}

func (s *ApplicationService) StartReview(ctx context.Context, tenantID string, id uuid.UUID, reviewer string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.StartReview(reviewer, now)
	})
}

func (s *ApplicationService) Approve(ctx context.Context, tenantID string, id uuid.UUID, approver string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.Approve(approver, now)
	})
}

func (s *ApplicationService) Reject(ctx context.Context, tenantID string, id uuid.UUID, actor, reason string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.Reject(reason, actor, now)
	})
}

func (s *ApplicationService) Cancel(ctx context.Context, tenantID string, id uuid.UUID, actor, reason string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.Cancel(reason, actor, now)
	})
}

// UploadDocument stores the file and attaches it. The blob of a replaced
// document is removed after commit; the new blob is removed if the
// application refuses it.
func (s *ApplicationService) UploadDocument(ctx context.Context, tenantID string, id uuid.UUID, actor string, req *UploadDocumentRequest) (*permit.Application, error) {
	docType := permit.DocumentType(req.Type)
	if !docType.Valid() {
		return nil, &permit.ArgumentError{Field: "type", Reason: fmt.Sprintf("unknown document type %q", req.Type)}
	}

	stored, err := s.storage.Upload(ctx, tenantID, req.Data, req.FileName)
	if err != nil {
		return nil, err
	}

	var replaced *permit.Document
	app, err := s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		var err error
		replaced, err = app.UploadDocument(permit.UploadDocumentParams{
			Type:       docType,
			FileName:   req.FileName,
			Locator:    stored.Locator,
			MimeType:   stored.MimeType,
			Size:       stored.Size,
			ExpiryDate: req.ExpiryDate,
			UploadedBy: actor,
		}, now)
		return err
	})
	if err != nil {
		s.removeBlob(ctx, stored.Locator)
		return nil, err
	}
	if replaced != nil {
		s.removeBlob(ctx, replaced.Locator)
	}
	return app, nil
}

func (s *ApplicationService) removeBlob(ctx context.Context, locator string) {
	if _, err := s.storage.Remove(ctx, locator); err != nil {
		logrus.WithError(err).WithField("locator", locator).Warn("Failed to remove document blob")
	}
}

// VerifyDocument verifies one document using the tenant's expiry warning
// window. Verifying an expired document records the failure notice and
// returns *permit.DocumentExpiredError.
func (s *ApplicationService) VerifyDocument(ctx context.Context, tenantID string, id uuid.UUID, officer string, docType permit.DocumentType) (*permit.Application, error) {
	settings, err := s.fees.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	window := time.Duration(settings.ExpiryWarningDays) * 24 * time.Hour

	app, err := s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.VerifyDocument(permit.VerifyDocumentParams{
			Type:          docType,
			VerifiedBy:    officer,
			WarningWindow: window,
		}, now)
	})

	var expired *permit.DocumentExpiredError
	if errors.As(err, &expired) {
		if recErr := s.recordEvents(ctx, expired.Event); recErr != nil {
			return nil, errors.Join(err, recErr)
		}
	}
	return app, err
}

func (s *ApplicationService) RejectDocument(ctx context.Context, tenantID string, id uuid.UUID, officer string, docType permit.DocumentType, reason string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.RejectDocument(docType, reason, officer, now)
	})
}

// DocumentURL returns a download link for a stored document, or ok=false when
// the store cannot presign and the caller should stream the bytes instead.
func (s *ApplicationService) DocumentURL(ctx context.Context, tenantID string, id uuid.UUID, docType permit.DocumentType) (*permit.Document, string, bool, error) {
	app, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, "", false, err
	}
	doc, found := app.Document(docType)
	if !found {
		return nil, "", false, &permit.NotFoundError{Kind: "document", Key: string(docType)}
	}
	url, ok, err := s.storage.DownloadURL(doc.Locator)
	if err != nil {
		return nil, "", false, err
	}
	return doc, url, ok, nil
}

func (s *ApplicationService) DocumentContent(ctx context.Context, locator string) ([]byte, error) {
	return s.storage.Fetch(ctx, locator)
}

// RequestPayment moves the application to PendingPayment. Card payments open
// a gateway intent and go straight to Processing.
func (s *ApplicationService) RequestPayment(ctx context.Context, tenantID string, id uuid.UUID, method permit.PaymentMethod) (*PaymentResult, error) {
	var intent *PaymentIntent
	app, err := s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		p, err := app.RequestPayment(method, now)
		if err != nil {
			return err
		}
		intent, err = s.openIntent(ctx, app, p, now)
		return err
	})
	if err != nil {
		s.abandonIntent(ctx, intent)
		return nil, err
	}
	return &PaymentResult{Application: app, Intent: intent}, nil
}

func (s *ApplicationService) RetryPayment(ctx context.Context, tenantID string, id uuid.UUID, method permit.PaymentMethod) (*PaymentResult, error) {
	var intent *PaymentIntent
	app, err := s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		p, err := app.RetryPayment(method, now)
		if err != nil {
			return err
		}
		intent, err = s.openIntent(ctx, app, p, now)
		return err
	})
	if err != nil {
		s.abandonIntent(ctx, intent)
		return nil, err
	}
	return &PaymentResult{Application: app, Intent: intent}, nil
}

func (s *ApplicationService) openIntent(ctx context.Context, app *permit.Application, p *permit.Payment, now time.Time) (*PaymentIntent, error) {
	if p.Method != permit.PaymentMethodCard || p.Status != permit.PaymentStatusPending || s.gateway == nil {
		return nil, nil
	}
	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		Amount:            p.Amount,
		TenantID:          app.TenantID,
		ApplicationID:     app.ID,
		ApplicationNumber: app.Number,
		PaymentID:         p.ID,
	})
	if err != nil {
		return nil, err
	}
	if err := app.StartPaymentProcessing(intent.ID, now); err != nil {
		return intent, err
	}
	return intent, nil
}

// abandonIntent cancels a gateway intent whose payment was never committed,
// for instance because a concurrent writer won the version check.
func (s *ApplicationService) abandonIntent(ctx context.Context, intent *PaymentIntent) {
	if intent == nil || s.gateway == nil {
		return
	}
	if err := s.gateway.CancelIntent(context.WithoutCancel(ctx), intent.ID); err != nil {
		logrus.WithError(err).WithField("intent", intent.ID).Warn("Failed to cancel abandoned payment intent")
	}
}

// SyncPayment asks the gateway about the processing payment and applies the
// outcome.
func (s *ApplicationService) SyncPayment(ctx context.Context, tenantID string, id uuid.UUID) (*permit.Application, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: no card gateway configured", ErrGateway)
	}
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		p := app.Payment
		if p == nil || p.Status != permit.PaymentStatusProcessing || p.TransactionReference == "" {
			return errUnchanged
		}
		intent, err := s.gateway.GetIntent(ctx, p.TransactionReference)
		if err != nil {
			return err
		}
		return applyIntent(app, intent, now)
	})
}

// HandleGatewayEvent applies a webhook notification. Notifications for
// payments that are no longer in flight are ignored so redelivery is safe.
func (s *ApplicationService) HandleGatewayEvent(ctx context.Context, intent *PaymentIntent) error {
	if intent == nil || intent.TenantID == "" || intent.ApplicationID == uuid.Nil {
		return nil
	}
	_, err := s.mutate(ctx, intent.TenantID, intent.ApplicationID, func(app *permit.Application, now time.Time) error {
		p := app.Payment
		if p == nil || !p.Status.Active() || p.TransactionReference != intent.ID {
			return errUnchanged
		}
		return applyIntent(app, intent, now)
	})
	var nf *permit.NotFoundError
	if errors.As(err, &nf) {
		logrus.WithField("intent", intent.ID).Warn("Gateway event for unknown application")
		return nil
	}
	return err
}

func applyIntent(app *permit.Application, intent *PaymentIntent, now time.Time) error {
	switch intent.Status {
	case GatewaySucceeded:
		return app.CompletePayment(permit.CompletePaymentParams{
			TransactionReference: intent.ID,
			ReceiptNumber:        intent.ReceiptNumber,
			ReceiptURL:           intent.ReceiptURL,
		}, now)
	case GatewayFailed, GatewayCancelled:
		reason := intent.FailureReason
		if reason == "" {
			reason = "payment " + string(intent.Status) + " at gateway"
		}
		return app.FailPayment(reason, now)
	}
	return errUnchanged
}

// CompletePayment settles a bank transfer or cash payment by hand.
func (s *ApplicationService) CompletePayment(ctx context.Context, tenantID string, id uuid.UUID, params permit.CompletePaymentParams) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.CompletePayment(params, now)
	})
}

func (s *ApplicationService) FailPayment(ctx context.Context, tenantID string, id uuid.UUID, reason string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.FailPayment(reason, now)
	})
}

// RefundPayment commits the refunded payment first and only then refunds a
// card payment at the gateway, so a concurrent writer fails its version check
// before any money moves. A refused gateway refund restores the completed
// payment. PaymentRefunded is recorded once the gateway has refunded.
func (s *ApplicationService) RefundPayment(ctx context.Context, tenantID string, id uuid.UUID, reason string) (*permit.Application, error) {
	var (
		intentID string
		events   []permit.Event
	)
	app, err := s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		if err := app.RefundPayment(reason, now); err != nil {
			return err
		}
		p := app.Payment
		if p.Method != permit.PaymentMethodCard || p.TransactionReference == permit.WaivedTransactionReference {
			return nil
		}
		if s.gateway == nil {
			return fmt.Errorf("%w: no card gateway configured", ErrGateway)
		}
		intentID = p.TransactionReference
		events = app.PullEvents()
		return nil
	})
	if err != nil || intentID == "" {
		return app, err
	}

	if _, err := s.gateway.Refund(ctx, intentID, reason); err != nil {
		if restoreErr := s.restoreRefundedPayment(context.WithoutCancel(ctx), tenantID, id); restoreErr != nil {
			logrus.WithError(restoreErr).WithField("application_id", id).Error("Refund failed at gateway and payment could not be restored")
			return nil, errors.Join(err, restoreErr)
		}
		return nil, err
	}
	if err := s.recordEvents(ctx, events...); err != nil {
		logrus.WithError(err).WithField("application_id", id).Warn("Refund event not recorded")
	}
	return app, nil
}

// restoreRefundedPayment retries when another writer commits in between.
func (s *ApplicationService) restoreRefundedPayment(ctx context.Context, tenantID string, id uuid.UUID) error {
	var err error
	for attempt := 0; attempt < restoreAttempts; attempt++ {
		_, err = s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
			return app.RestoreRefundedPayment(now)
		})
		if !errors.Is(err, ErrConcurrentModification) {
			return err
		}
	}
	return err
}

func (s *ApplicationService) VerifyPayment(ctx context.Context, tenantID string, id uuid.UUID, officer string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.VerifyPayment(officer, now)
	})
}

func (s *ApplicationService) OverrideFee(ctx context.Context, tenantID string, id uuid.UUID, actor string, fee permit.Money, justification string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.OverrideFee(fee, justification, actor, now)
	})
}

func (s *ApplicationService) RequestWaiver(ctx context.Context, tenantID string, id uuid.UUID, actor string, waiverType permit.WaiverType, reason string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		_, err := app.RequestWaiver(waiverType, reason, actor, now)
		return err
	})
}

func (s *ApplicationService) ApproveWaiver(ctx context.Context, tenantID string, id, waiverID uuid.UUID, actor string, percentage decimal.Decimal, notes string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		_, err := app.ApproveWaiver(waiverID, percentage, notes, actor, now)
		return err
	})
}

func (s *ApplicationService) RejectWaiver(ctx context.Context, tenantID string, id, waiverID uuid.UUID, actor, reason string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		_, err := app.RejectWaiver(waiverID, reason, actor, now)
		return err
	})
}

func (s *ApplicationService) Flag(ctx context.Context, tenantID string, id uuid.UUID, actor, reason string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.Flag(reason, actor, now)
	})
}

func (s *ApplicationService) Unflag(ctx context.Context, tenantID string, id uuid.UUID, actor string) (*permit.Application, error) {
	return s.mutate(ctx, tenantID, id, func(app *permit.Application, now time.Time) error {
		return app.Unflag(actor, now)
	})
}

// ExpireDocuments sweeps every tenant for open applications holding a
// document past its expiry date and returns how many documents expired.
// Applications that change concurrently are left for the next sweep.
func (s *ApplicationService) ExpireDocuments(ctx context.Context) (int, error) {
	today := startOfDay(s.now())

	type candidate struct {
		ID       uuid.UUID
		TenantID string
	}
	var candidates []candidate
	err := s.db.WithContext(ctx).Model(&models.PermitApplication{}).
		Distinct("permit_applications.id", "permit_applications.tenant_id").
		Joins("JOIN permit_documents ON permit_documents.application_id = permit_applications.id").
		Where("permit_applications.status NOT IN ?", []permit.Status{permit.StatusApproved, permit.StatusRejected, permit.StatusCancelled}).
		Where("permit_documents.status IN ?", []permit.DocumentStatus{permit.DocumentStatusPending, permit.DocumentStatusVerified}).
		Where("permit_documents.expiry_date < ?", today).
		Scan(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find expiring documents: %w", err)
	}

	total := 0
	for _, c := range candidates {
		count := 0
		_, err := s.mutate(ctx, c.TenantID, c.ID, func(app *permit.Application, now time.Time) error {
			count = len(app.ExpireDocuments(now))
			if count == 0 {
				return errUnchanged
			}
			return nil
		})
		if err != nil {
			logrus.WithError(err).WithField("application_id", c.ID).Warn("Document expiry skipped")
			continue
		}
		total += count
	}

	metrics.RecordExpiredDocuments(total)
	if total > 0 {
		logrus.WithField("documents", total).Info("Expired documents marked")
	}
	return total, nil
}

// WarnExpiringDocuments raises DocumentExpiringSoon for verified documents of
// open applications that expire within their tenant's warning window and
// returns how many warnings were raised. A document is warned about once.
func (s *ApplicationService) WarnExpiringDocuments(ctx context.Context) (int, error) {
	today := startOfDay(s.now())

	type candidate struct {
		ID       uuid.UUID
		TenantID string
	}
	var candidates []candidate
	err := s.db.WithContext(ctx).Model(&models.PermitApplication{}).
		Distinct("permit_applications.id", "permit_applications.tenant_id").
		Joins("JOIN permit_documents ON permit_documents.application_id = permit_applications.id").
		Where("permit_applications.status NOT IN ?", []permit.Status{permit.StatusApproved, permit.StatusRejected, permit.StatusCancelled}).
		Where("permit_documents.status = ?", permit.DocumentStatusVerified).
		Where("permit_documents.expiry_warned_at IS NULL").
		Where("permit_documents.expiry_date >= ? AND permit_documents.expiry_date < ?",
			today, today.AddDate(0, 0, MaxExpiryWarningDays+1)).
		Scan(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find documents nearing expiry: %w", err)
	}

	windows := make(map[string]time.Duration)
	total := 0
	for _, c := range candidates {
		window, ok := windows[c.TenantID]
		if !ok {
			settings, err := s.fees.Settings(ctx, c.TenantID)
			if err != nil {
				logrus.WithError(err).WithField("tenant_id", c.TenantID).Warn("Expiry warnings skipped")
				continue
			}
			window = time.Duration(settings.ExpiryWarningDays) * 24 * time.Hour
			windows[c.TenantID] = window
		}

		count := 0
		_, err := s.mutate(ctx, c.TenantID, c.ID, func(app *permit.Application, now time.Time) error {
			count = len(app.WarnExpiringDocuments(window, now))
			if count == 0 {
				return errUnchanged
			}
			return nil
		})
		if err != nil {
			logrus.WithError(err).WithField("application_id", c.ID).Warn("Expiry warning skipped")
			continue
		}
		total += count
	}

	metrics.RecordExpiryWarnings(total)
	if total > 0 {
		logrus.WithField("documents", total).Info("Expiry warnings raised")
	}
	return total, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
