// internal/services/application_service_test.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/civilaviation/fop-backend/internal/config"
	"github.com/civilaviation/fop-backend/internal/database"
	"github.com/civilaviation/fop-backend/internal/models"
	"github.com/civilaviation/fop-backend/internal/permit"
)

const testTenant = "sxm-caa"

var pdf = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

type fakeGateway struct {
	mu         sync.Mutex
	seq        int
	intents    map[string]*PaymentIntent
	refunds    []string
	cancelled  []string
	refundErr  error
	createErr  error
	lastAmount permit.Money

	// Run outside the lock, before the call returns, to let a test commit a
	// concurrent write.
	onCreate func()
	onRefund func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*PaymentIntent{}}
}

func (g *fakeGateway) CreateIntent(_ context.Context, req IntentRequest) (*PaymentIntent, error) {
	intent, err := g.createIntent(req)
	if err == nil && g.onCreate != nil {
		g.onCreate()
	}
	return intent, err
}

func (g *fakeGateway) createIntent(req IntentRequest) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	intent := &PaymentIntent{
		ID:            fmt.Sprintf("pi_%d", g.seq),
		ClientSecret:  "secret",
		Status:        GatewayPending,
		TenantID:      req.TenantID,
		ApplicationID: req.ApplicationID,
	}
	g.intents[intent.ID] = intent
	g.lastAmount = req.Amount
	return intent, nil
}

func (g *fakeGateway) CancelIntent(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return fmt.Errorf("%w: no intent %s", ErrGateway, id)
	}
	intent.Status = GatewayCancelled
	g.cancelled = append(g.cancelled, id)
	return nil
}

func (g *fakeGateway) GetIntent(_ context.Context, id string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: no intent %s", ErrGateway, id)
	}
	copied := *intent
	return &copied, nil
}

func (g *fakeGateway) Refund(_ context.Context, id, _ string) (string, error) {
	if g.onRefund != nil {
		g.onRefund()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refunds = append(g.refunds, id)
	return "re_" + id, nil
}

func (g *fakeGateway) settle(id string, status GatewayStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[id].Status = status
	if status == GatewaySucceeded {
		g.intents[id].ReceiptNumber = "R-" + id
	}
	if status == GatewayFailed {
		g.intents[id].FailureReason = "card declined"
	}
}

type ApplicationServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	cfg     *config.Config
	clock   time.Time
	gateway *fakeGateway
	mails   []string
	service *ApplicationService
}

func testConfig(storagePath string) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{
			Driver:       "local",
			LocalPath:    storagePath,
			MaxUploadMB:  1,
			AllowedTypes: []string{"application/pdf"},
		},
		Email: config.EmailConfig{AdminEmail: "duty@caa.example"},
		Fees: config.FeesConfig{
			Currency:          "USD",
			BaseFee:           150,
			PerSeatFee:        10,
			PerKgFee:          0.02,
			ExpiryWarningDays: 30,
			PrimaryAirports:   []string{"TNCM"},
			OutboxBatchSize:   50,
		},
		Frontend: config.FrontendConfig{BaseURL: "https://permits.example"},
	}
}

func (suite *ApplicationServiceTestSuite) SetupTest() {
	db, err := database.OpenInMemory()
	suite.Require().NoError(err)
	suite.db = db
	suite.cfg = testConfig(suite.T().TempDir())
	suite.clock = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	suite.gateway = newFakeGateway()
	suite.mails = nil

	storage, err := NewStorageService(suite.cfg)
	suite.Require().NoError(err)
	notifications := NewNotificationService(db, suite.cfg).WithMailer(func(to, subject, _ string) error {
		suite.mails = append(suite.mails, to+": "+subject)
		return nil
	})
	notifications.now = suite.now
	suite.service = NewApplicationService(db, NewFeeService(db, suite.cfg), storage, suite.gateway, notifications)
	suite.service.now = suite.now
}

func (suite *ApplicationServiceTestSuite) TearDownTest() {
	database.Close(suite.db)
}

func (suite *ApplicationServiceTestSuite) now() time.Time {
	return suite.clock
}

func (suite *ApplicationServiceTestSuite) ctx() context.Context {
	return context.Background()
}

func (suite *ApplicationServiceTestSuite) create() *permit.Application {
	app, err := suite.service.Create(suite.ctx(), testTenant, "operator@example.com", &CreateApplicationRequest{
		PermitType:         "one_time",
		OperatorID:         uuid.New(),
		AircraftID:         uuid.New(),
		FlightPurpose:      "charter",
		DepartureAirport:   "KMIA",
		ArrivalAirport:     "TNCM",
		FlightDate:         suite.clock.AddDate(0, 0, 14),
		PassengerCount:     40,
		SeatCount:          50,
		MaxTakeoffWeightKg: decimal.NewFromInt(30000),
		ValidFrom:          suite.clock.AddDate(0, 0, 14),
		ValidTo:            suite.clock.AddDate(0, 0, 15),
	})
	suite.Require().NoError(err)
	return app
}

func (suite *ApplicationServiceTestSuite) upload(id uuid.UUID, docType permit.DocumentType, expiry time.Time) *permit.Application {
	app, err := suite.service.UploadDocument(suite.ctx(), testTenant, id, "operator@example.com", &UploadDocumentRequest{
		Type:       string(docType),
		ExpiryDate: &expiry,
		FileName:   string(docType) + ".pdf",
		Data:       pdf,
	})
	suite.Require().NoError(err)
	return app
}

// reviewed returns an application under review with every document verified.
func (suite *ApplicationServiceTestSuite) reviewed() *permit.Application {
	app := suite.create()
	for _, t := range permit.RequiredDocumentTypes {
		suite.upload(app.ID, t, suite.clock.AddDate(1, 0, 0))
	}
	_, err := suite.service.Submit(suite.ctx(), testTenant, app.ID, "operator@example.com")
	suite.Require().NoError(err)
	_, err = suite.service.StartReview(suite.ctx(), testTenant, app.ID, "officer")
	suite.Require().NoError(err)
	for _, t := range permit.RequiredDocumentTypes {
		app, err = suite.service.VerifyDocument(suite.ctx(), testTenant, app.ID, "officer", t)
		suite.Require().NoError(err)
	}
	return app
}

func (suite *ApplicationServiceTestSuite) TestCreatePricesAndNumbersApplication() {
	app := suite.create()

	quote, err := NewFeeService(suite.db, suite.cfg).QuotePermit(suite.ctx(), testTenant, &PermitQuoteRequest{
		PermitType:         "one_time",
		SeatCount:          50,
		MaxTakeoffWeightKg: decimal.NewFromInt(30000),
	})
	suite.Require().NoError(err)

	assert.Regexp(suite.T(), `^FOP-2026-\d{6}$`, app.Number)
	assert.Equal(suite.T(), permit.StatusDraft, app.Status)
	assert.Equal(suite.T(), int64(1), app.Version)
	assert.True(suite.T(), app.CalculatedFee.Equal(quote.Total))

	loaded, err := suite.service.Get(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), app.Number, loaded.Number)

	_, err = suite.service.Get(suite.ctx(), "other-tenant", app.ID)
	assert.ErrorIs(suite.T(), err, permit.ErrNotFound)

	var outbox []models.OutboxEvent
	suite.Require().NoError(suite.db.Find(&outbox).Error)
	suite.Require().Len(outbox, 1)
	assert.Equal(suite.T(), string(permit.EventApplicationCreated), outbox[0].EventType)
	assert.NotNil(suite.T(), outbox[0].DispatchedAt)
}

func (suite *ApplicationServiceTestSuite) TestCardPaymentThroughApproval() {
	app := suite.reviewed()

	res, err := suite.service.RequestPayment(suite.ctx(), testTenant, app.ID, permit.PaymentMethodCard)
	suite.Require().NoError(err)
	suite.Require().NotNil(res.Intent)
	assert.Equal(suite.T(), permit.StatusPendingPayment, res.Application.Status)
	assert.Equal(suite.T(), permit.PaymentStatusProcessing, res.Application.Payment.Status)
	assert.Equal(suite.T(), res.Intent.ID, res.Application.Payment.TransactionReference)
	assert.True(suite.T(), suite.gateway.lastAmount.Equal(app.CalculatedFee))

	// Still processing at the gateway: nothing changes.
	synced, err := suite.service.SyncPayment(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.PaymentStatusProcessing, synced.Payment.Status)

	suite.gateway.settle(res.Intent.ID, GatewaySucceeded)
	synced, err = suite.service.SyncPayment(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.PaymentStatusCompleted, synced.Payment.Status)
	assert.Equal(suite.T(), "R-"+res.Intent.ID, synced.Payment.ReceiptNumber)

	_, err = suite.service.VerifyPayment(suite.ctx(), testTenant, app.ID, "finance")
	suite.Require().NoError(err)
	approved, err := suite.service.Approve(suite.ctx(), testTenant, app.ID, "director")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.StatusApproved, approved.Status)

	_, err = suite.service.RefundPayment(suite.ctx(), testTenant, app.ID, "changed plans")
	assert.ErrorIs(suite.T(), err, permit.ErrInvalidTransition)
	assert.Empty(suite.T(), suite.gateway.refunds)

	var notifications []models.AdminNotification
	suite.Require().NoError(suite.db.Where("tenant_id = ?", testTenant).Find(&notifications).Error)
	types := make([]string, 0, len(notifications))
	for _, n := range notifications {
		types = append(types, n.Type)
	}
	assert.Contains(suite.T(), types, string(permit.EventApplicationSubmitted))
	assert.Contains(suite.T(), types, string(permit.EventApplicationApproved))
}

func (suite *ApplicationServiceTestSuite) TestGatewayEventsAreIdempotent() {
	app := suite.reviewed()
	res, err := suite.service.RequestPayment(suite.ctx(), testTenant, app.ID, permit.PaymentMethodCard)
	suite.Require().NoError(err)

	suite.gateway.settle(res.Intent.ID, GatewayFailed)
	intent, err := suite.gateway.GetIntent(suite.ctx(), res.Intent.ID)
	suite.Require().NoError(err)

	suite.Require().NoError(suite.service.HandleGatewayEvent(suite.ctx(), intent))
	suite.Require().NoError(suite.service.HandleGatewayEvent(suite.ctx(), intent))

	loaded, err := suite.service.Get(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.PaymentStatusFailed, loaded.Payment.Status)
	assert.Equal(suite.T(), "card declined", loaded.Payment.FailureReason)

	var failed int64
	suite.Require().NoError(suite.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", permit.EventPaymentFailed).Count(&failed).Error)
	assert.Equal(suite.T(), int64(1), failed)

	retry, err := suite.service.RetryPayment(suite.ctx(), testTenant, app.ID, permit.PaymentMethodBankTransfer)
	suite.Require().NoError(err)
	assert.Nil(suite.T(), retry.Intent)
	assert.Equal(suite.T(), permit.PaymentStatusPending, retry.Application.Payment.Status)

	var payments int64
	suite.Require().NoError(suite.db.Model(&models.PermitPayment{}).
		Where("application_id = ?", app.ID).Count(&payments).Error)
	assert.Equal(suite.T(), int64(2), payments)

	// Events for unknown applications are dropped.
	assert.NoError(suite.T(), suite.service.HandleGatewayEvent(suite.ctx(), &PaymentIntent{
		ID: "pi_x", Status: GatewaySucceeded, TenantID: testTenant, ApplicationID: uuid.New(),
	}))
}

func (suite *ApplicationServiceTestSuite) TestGatewayFailureLeavesApplicationUnchanged() {
	app := suite.reviewed()
	suite.gateway.createErr = fmt.Errorf("%w: unavailable", ErrGateway)

	_, err := suite.service.RequestPayment(suite.ctx(), testTenant, app.ID, permit.PaymentMethodCard)
	assert.ErrorIs(suite.T(), err, ErrGateway)

	loaded, err := suite.service.Get(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.StatusUnderReview, loaded.Status)
	assert.Nil(suite.T(), loaded.Payment)
}

// paidByCard returns an application whose card payment has completed.
func (suite *ApplicationServiceTestSuite) paidByCard() (*permit.Application, string) {
	app := suite.reviewed()
	res, err := suite.service.RequestPayment(suite.ctx(), testTenant, app.ID, permit.PaymentMethodCard)
	suite.Require().NoError(err)
	suite.gateway.settle(res.Intent.ID, GatewaySucceeded)
	app, err = suite.service.SyncPayment(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	suite.Require().Equal(permit.PaymentStatusCompleted, app.Payment.Status)
	return app, res.Intent.ID
}

func (suite *ApplicationServiceTestSuite) outboxCount(eventType permit.EventType) int64 {
	var count int64
	suite.Require().NoError(suite.db.Model(&models.OutboxEvent{}).Where("event_type = ?", string(eventType)).Count(&count).Error)
	return count
}

func (suite *ApplicationServiceTestSuite) TestRefundGatewayFailureRestoresPayment() {
	app, intentID := suite.paidByCard()

	suite.gateway.refundErr = fmt.Errorf("%w: timeout", ErrGateway)
	_, err := suite.service.RefundPayment(suite.ctx(), testTenant, app.ID, "duplicate charge")
	assert.ErrorIs(suite.T(), err, ErrGateway)
	loaded, err := suite.service.Get(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.PaymentStatusCompleted, loaded.Payment.Status)
	assert.Empty(suite.T(), loaded.Payment.RefundReason)
	assert.Zero(suite.T(), suite.outboxCount(permit.EventPaymentRefunded))

	suite.gateway.refundErr = nil
	refunded, err := suite.service.RefundPayment(suite.ctx(), testTenant, app.ID, "duplicate charge")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.PaymentStatusRefunded, refunded.Payment.Status)
	assert.Equal(suite.T(), []string{intentID}, suite.gateway.refunds)
	assert.Equal(suite.T(), int64(1), suite.outboxCount(permit.EventPaymentRefunded))
}

func (suite *ApplicationServiceTestSuite) TestApprovalCannotRaceGatewayRefund() {
	app, intentID := suite.paidByCard()

	var approveErr error
	suite.gateway.onRefund = func() {
		_, approveErr = suite.service.Approve(suite.ctx(), testTenant, app.ID, "director")
	}
	refunded, err := suite.service.RefundPayment(suite.ctx(), testTenant, app.ID, "flight withdrawn")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.PaymentStatusRefunded, refunded.Payment.Status)
	assert.Equal(suite.T(), []string{intentID}, suite.gateway.refunds)

	assert.ErrorIs(suite.T(), approveErr, permit.ErrRuleViolation)
	loaded, err := suite.service.Get(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	assert.NotEqual(suite.T(), permit.StatusApproved, loaded.Status)
	assert.Equal(suite.T(), permit.PaymentStatusRefunded, loaded.Payment.Status)
}

func (suite *ApplicationServiceTestSuite) TestConflictingPaymentRequestCancelsIntent() {
	app := suite.reviewed()

	suite.gateway.onCreate = func() {
		_, err := suite.service.Flag(suite.ctx(), testTenant, app.ID, "officer", "operator called")
		suite.Require().NoError(err)
	}
	_, err := suite.service.RequestPayment(suite.ctx(), testTenant, app.ID, permit.PaymentMethodCard)
	assert.ErrorIs(suite.T(), err, ErrConcurrentModification)
	assert.Equal(suite.T(), []string{"pi_1"}, suite.gateway.cancelled)

	loaded, err := suite.service.Get(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	assert.Nil(suite.T(), loaded.Payment)
	assert.True(suite.T(), loaded.Flagging.Flagged)
}

func (suite *ApplicationServiceTestSuite) TestDocumentReplacementRemovesOldBlob() {
	app := suite.create()
	first := suite.upload(app.ID, permit.DocumentInsurance, suite.clock.AddDate(1, 0, 0))
	oldDoc, ok := first.Document(permit.DocumentInsurance)
	suite.Require().True(ok)

	second := suite.upload(app.ID, permit.DocumentInsurance, suite.clock.AddDate(2, 0, 0))
	newDoc, ok := second.Document(permit.DocumentInsurance)
	suite.Require().True(ok)
	assert.NotEqual(suite.T(), oldDoc.Locator, newDoc.Locator)

	_, err := suite.service.DocumentContent(suite.ctx(), oldDoc.Locator)
	assert.ErrorIs(suite.T(), err, permit.ErrNotFound)
	data, err := suite.service.DocumentContent(suite.ctx(), newDoc.Locator)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), pdf, data)

	var rows int64
	suite.Require().NoError(suite.db.Model(&models.PermitDocument{}).
		Where("application_id = ?", app.ID).Count(&rows).Error)
	assert.Equal(suite.T(), int64(1), rows)
}

func (suite *ApplicationServiceTestSuite) TestUploadRejectsDisallowedContent() {
	app := suite.create()
	_, err := suite.service.UploadDocument(suite.ctx(), testTenant, app.ID, "operator@example.com", &UploadDocumentRequest{
		Type: string(permit.DocumentInsurance), FileName: "notes.txt", Data: []byte("plain text"),
	})
	assert.ErrorIs(suite.T(), err, permit.ErrInvalidArgument)

	_, err = suite.service.UploadDocument(suite.ctx(), testTenant, app.ID, "operator@example.com", &UploadDocumentRequest{
		Type: "passport", FileName: "p.pdf", Data: pdf,
	})
	assert.ErrorIs(suite.T(), err, permit.ErrInvalidArgument)
}

func (suite *ApplicationServiceTestSuite) TestVerifyingExpiredDocumentRecordsNotice() {
	app := suite.create()
	for _, t := range permit.RequiredDocumentTypes {
		suite.upload(app.ID, t, suite.clock.AddDate(0, 0, 3))
	}
	_, err := suite.service.Submit(suite.ctx(), testTenant, app.ID, "operator@example.com")
	suite.Require().NoError(err)

	suite.clock = suite.clock.AddDate(0, 0, 5)
	_, err = suite.service.VerifyDocument(suite.ctx(), testTenant, app.ID, "officer", permit.DocumentInsurance)
	var expired *permit.DocumentExpiredError
	suite.Require().ErrorAs(err, &expired)

	loaded, err := suite.service.Get(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	doc, _ := loaded.Document(permit.DocumentInsurance)
	assert.Equal(suite.T(), permit.DocumentStatusPending, doc.Status)

	var notices []models.AdminNotification
	suite.Require().NoError(suite.db.Where("type = ?", permit.EventDocumentVerificationFailedDueToExpiry).Find(&notices).Error)
	suite.Require().Len(notices, 1)
	assert.Contains(suite.T(), notices[0].Message, "officer")
}

func (suite *ApplicationServiceTestSuite) TestVerifyWarnsAboutExpiringDocument() {
	app := suite.create()
	suite.upload(app.ID, permit.DocumentInsurance, suite.clock.AddDate(0, 0, 10))

	_, err := suite.service.VerifyDocument(suite.ctx(), testTenant, app.ID, "officer", permit.DocumentInsurance)
	suite.Require().NoError(err)

	var notices []models.AdminNotification
	suite.Require().NoError(suite.db.Where("type = ?", permit.EventDocumentExpiringSoon).Find(&notices).Error)
	suite.Require().Len(notices, 1)
	assert.Contains(suite.T(), notices[0].Message, "10 days")
	assert.Equal(suite.T(), []string{"duty@caa.example: Document expiring soon"}, suite.mails)

	// Already warned at verification.
	n, err := suite.service.WarnExpiringDocuments(suite.ctx())
	suite.Require().NoError(err)
	assert.Zero(suite.T(), n)
}

func (suite *ApplicationServiceTestSuite) TestExpiryWarningSweep() {
	app := suite.create()
	suite.upload(app.ID, permit.DocumentInsurance, suite.clock.AddDate(0, 0, 60))
	suite.upload(app.ID, permit.DocumentRegistration, suite.clock.AddDate(0, 0, 40))
	suite.upload(app.ID, permit.DocumentAirworthiness, suite.clock.AddDate(0, 0, 45))
	for _, t := range []permit.DocumentType{permit.DocumentInsurance, permit.DocumentRegistration} {
		_, err := suite.service.VerifyDocument(suite.ctx(), testTenant, app.ID, "officer", t)
		suite.Require().NoError(err)
	}

	n, err := suite.service.WarnExpiringDocuments(suite.ctx())
	suite.Require().NoError(err)
	assert.Zero(suite.T(), n)

	// Registration and airworthiness are now inside the 30 day window, but
	// only verified documents are warned about.
	suite.clock = suite.clock.AddDate(0, 0, 15)
	n, err = suite.service.WarnExpiringDocuments(suite.ctx())
	suite.Require().NoError(err)
	assert.Equal(suite.T(), 1, n)

	n, err = suite.service.WarnExpiringDocuments(suite.ctx())
	suite.Require().NoError(err)
	assert.Zero(suite.T(), n)

	loaded, err := suite.service.Get(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	registration, _ := loaded.Document(permit.DocumentRegistration)
	suite.Require().NotNil(registration.ExpiryWarnedAt)
	insurance, _ := loaded.Document(permit.DocumentInsurance)
	assert.Nil(suite.T(), insurance.ExpiryWarnedAt)

	var notices []models.AdminNotification
	suite.Require().NoError(suite.db.Where("type = ?", permit.EventDocumentExpiringSoon).Find(&notices).Error)
	suite.Require().Len(notices, 1)
	assert.Contains(suite.T(), notices[0].Message, "25 days")
}

func (suite *ApplicationServiceTestSuite) TestExpireDocumentsSweep() {
	app := suite.create()
	suite.upload(app.ID, permit.DocumentInsurance, suite.clock.AddDate(0, 0, 1))
	suite.upload(app.ID, permit.DocumentRegistration, suite.clock.AddDate(1, 0, 0))

	// Expiring tomorrow: valid today and tomorrow.
	suite.clock = suite.clock.AddDate(0, 0, 1)
	n, err := suite.service.ExpireDocuments(suite.ctx())
	suite.Require().NoError(err)
	assert.Zero(suite.T(), n)

	suite.clock = suite.clock.AddDate(0, 0, 1)
	n, err = suite.service.ExpireDocuments(suite.ctx())
	suite.Require().NoError(err)
	assert.Equal(suite.T(), 1, n)

	loaded, err := suite.service.Get(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	doc, _ := loaded.Document(permit.DocumentInsurance)
	assert.Equal(suite.T(), permit.DocumentStatusExpired, doc.Status)

	n, err = suite.service.ExpireDocuments(suite.ctx())
	suite.Require().NoError(err)
	assert.Zero(suite.T(), n)
}

func (suite *ApplicationServiceTestSuite) TestConcurrentWriterLoses() {
	app := suite.create()

	_, err := suite.service.mutate(suite.ctx(), testTenant, app.ID, func(stale *permit.Application, now time.Time) error {
		// Another writer commits between our load and commit.
		_, err := suite.service.Flag(suite.ctx(), testTenant, app.ID, "officer", "watch list")
		require.NoError(suite.T(), err)
		return stale.OverrideFee(permit.MustMoney("10", "USD"), "typo", "director", now)
	})
	assert.ErrorIs(suite.T(), err, ErrConcurrentModification)

	loaded, err := suite.service.Get(suite.ctx(), testTenant, app.ID)
	suite.Require().NoError(err)
	assert.True(suite.T(), loaded.Flagging.Flagged)
	assert.Nil(suite.T(), loaded.FeeOverride)
	assert.Equal(suite.T(), int64(2), loaded.Version)
}

func (suite *ApplicationServiceTestSuite) TestWaiverAndFlagLifecycle() {
	app := suite.create()

	withWaiver, err := suite.service.RequestWaiver(suite.ctx(), testTenant, app.ID, "operator@example.com", permit.WaiverTypeHumanitarian, "hurricane relief")
	suite.Require().NoError(err)
	suite.Require().Len(withWaiver.Waivers, 1)

	approved, err := suite.service.ApproveWaiver(suite.ctx(), testTenant, app.ID, withWaiver.Waivers[0].ID, "director", decimal.NewFromInt(100), "full")
	suite.Require().NoError(err)
	assert.True(suite.T(), approved.CalculatedFee.IsZero())

	_, err = suite.service.RejectWaiver(suite.ctx(), testTenant, app.ID, withWaiver.Waivers[0].ID, "director", "late")
	assert.ErrorIs(suite.T(), err, permit.ErrRuleViolation)

	_, err = suite.service.Unflag(suite.ctx(), testTenant, app.ID, "officer")
	assert.ErrorIs(suite.T(), err, permit.ErrRuleViolation)
	_, err = suite.service.Flag(suite.ctx(), testTenant, app.ID, "officer", "sanctions check")
	suite.Require().NoError(err)
	unflagged, err := suite.service.Unflag(suite.ctx(), testTenant, app.ID, "officer")
	suite.Require().NoError(err)
	assert.False(suite.T(), unflagged.Flagging.Flagged)

	cancelled, err := suite.service.Cancel(suite.ctx(), testTenant, app.ID, "operator@example.com", "trip cancelled")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.StatusCancelled, cancelled.Status)
}

func (suite *ApplicationServiceTestSuite) TestFullyWaivedPaymentSettlesWithoutGateway() {
	app := suite.reviewed()
	_, err := suite.service.OverrideFee(suite.ctx(), testTenant, app.ID, "director", permit.MustMoney("0", "USD"), "state visit")
	suite.Require().NoError(err)

	res, err := suite.service.RequestPayment(suite.ctx(), testTenant, app.ID, permit.PaymentMethodCard)
	suite.Require().NoError(err)
	assert.Nil(suite.T(), res.Intent)
	assert.Equal(suite.T(), permit.PaymentStatusCompleted, res.Application.Payment.Status)
	assert.Equal(suite.T(), permit.WaivedTransactionReference, res.Application.Payment.TransactionReference)
}

func (suite *ApplicationServiceTestSuite) TestManualPaymentAndDocumentRejection() {
	app := suite.reviewed()
	_, err := suite.service.RequestPayment(suite.ctx(), testTenant, app.ID, permit.PaymentMethodBankTransfer)
	suite.Require().NoError(err)

	paid, err := suite.service.CompletePayment(suite.ctx(), testTenant, app.ID, permit.CompletePaymentParams{
		TransactionReference: "WIRE-778", ReceiptNumber: "RCPT-1",
	})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.PaymentStatusCompleted, paid.Payment.Status)

	_, err = suite.service.FailPayment(suite.ctx(), testTenant, app.ID, "bounced")
	assert.ErrorIs(suite.T(), err, permit.ErrRuleViolation)

	sentBack, err := suite.service.RejectDocument(suite.ctx(), testTenant, app.ID, "officer", permit.DocumentInsurance, "illegible")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.StatusPendingDocuments, sentBack.Status)
	assert.Equal(suite.T(), permit.PaymentStatusCompleted, sentBack.Payment.Status)

	rejected, err := suite.service.Reject(suite.ctx(), testTenant, app.ID, "director", "incomplete")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), permit.StatusRejected, rejected.Status)
}

func (suite *ApplicationServiceTestSuite) TestListFilters() {
	first := suite.create()
	suite.create()
	_, err := suite.service.Flag(suite.ctx(), testTenant, first.ID, "officer", "check")
	suite.Require().NoError(err)

	flagged := true
	rows, total, err := suite.service.List(suite.ctx(), testTenant, ApplicationFilter{Flagged: &flagged})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(1), total)
	suite.Require().Len(rows, 1)
	assert.Equal(suite.T(), first.ID, rows[0].ID)

	draft := permit.StatusDraft
	_, total, err = suite.service.List(suite.ctx(), testTenant, ApplicationFilter{Status: &draft})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(2), total)

	_, total, err = suite.service.List(suite.ctx(), "other-tenant", ApplicationFilter{})
	suite.Require().NoError(err)
	assert.Zero(suite.T(), total)
}

func (suite *ApplicationServiceTestSuite) TestOutboxRetriesFailedDispatch() {
	boom := errors.New("smtp down")
	suite.service.notifications.WithMailer(func(string, string, string) error { return boom })

	app := suite.create()
	suite.upload(app.ID, permit.DocumentInsurance, suite.clock.AddDate(0, 0, 5))
	_, err := suite.service.VerifyDocument(suite.ctx(), testTenant, app.ID, "officer", permit.DocumentInsurance)
	suite.Require().NoError(err)

	var pending models.OutboxEvent
	suite.Require().NoError(suite.db.Where("event_type = ?", permit.EventDocumentExpiringSoon).First(&pending).Error)
	assert.Nil(suite.T(), pending.DispatchedAt)
	assert.Contains(suite.T(), pending.LastError, "smtp down")

	suite.service.notifications.WithMailer(func(string, string, string) error { return nil })
	handled, err := suite.service.notifications.DispatchPending(suite.ctx(), 10)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), 1, handled)
}

func TestApplicationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ApplicationServiceTestSuite))
}
