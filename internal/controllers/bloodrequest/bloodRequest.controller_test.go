package bloodRequestController

import (
	"context"
	"errors"
	"fmt"
	"server/config"
	"server/internal/database"
	"server/internal/events"
	. "server/internal/models"
	"server/internal/repositories"
	"server/internal/services"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sendCall struct {
	to   string
	body string
}

type fakeDispatcher struct {
	mu      sync.Mutex
	sends   []sendCall
	failFor map[string]bool
}

func (d *fakeDispatcher) Send(ctx context.Context, to, body string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sends = append(d.sends, sendCall{to: to, body: body})
	if d.failFor[to] {
		return "", errors.New("provider unreachable")
	}
	return fmt.Sprintf("SM%04d", len(d.sends)), nil
}

type fakeDirectory struct {
	donors []CandidateDonor
	err    error
}

func (f *fakeDirectory) Rank(ctx context.Context, bloodGroup string, latitude, longitude float64) ([]CandidateDonor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.donors, nil
}

func newTestController(t *testing.T) (*BloodRequestController, repositories.BloodRequestRepository, *fakeDispatcher, *fakeDirectory) {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(&BloodRequest{}, &DonorResponse{}))

	db := database.DB{SQL: gormDB}
	repo := repositories.NewBloodRequest(db)
	transactions := services.NewTransactionService(db)

	dispatcher := &fakeDispatcher{failFor: map[string]bool{}}
	directoryClient := &fakeDirectory{}

	testConfig := config.Config{
		ResponseLinkBase:   "http://localhost:5173/donor/respond",
		DefaultLatitude:    19.0760,
		DefaultLongitude:   72.8777,
		MissingPhonePolicy: "skip",
	}

	controller := New(repo, transactions, directoryClient, dispatcher, events.New(nil, testConfig), testConfig)

	return controller, repo, dispatcher, directoryClient
}

func twoCandidates() []CandidateDonor {
	return []CandidateDonor{
		{
			DonorID:            "donor-a",
			Name:               "Donor A",
			Phone:              "+911111111111",
			BloodGroup:         "O+",
			CompatibilityScore: 96.5,
			DistanceKm:         2.4,
		}, {
			DonorID:            "donor-b",
			Name:               "Donor B",
			Phone:              "+912222222222",
			BloodGroup:         "O-",
			CompatibilityScore: 88.0,
			DistanceKm:         5.1,
		},
	}
}

func validCreateRequest() *CreateBloodRequestRequest {
	return &CreateBloodRequestRequest{
		PatientName: "Anita Desai",
		BloodGroup:  "O+",
		UnitsNeeded: 2,
		Urgency:     UrgencyHigh,
		Donors:      twoCandidates(),
	}
}

func TestCreate_Validation(t *testing.T) {
	controller, _, dispatcher, _ := newTestController(t)

	tests := []struct {
		name    string
		mutate  func(req *CreateBloodRequestRequest)
	}{
		{
			name:   "missing patient name",
			mutate: func(req *CreateBloodRequestRequest) { req.PatientName = "" },
		},
		{
			name:   "missing blood group",
			mutate: func(req *CreateBloodRequestRequest) { req.BloodGroup = "" },
		},
		{
			name:   "zero units",
			mutate: func(req *CreateBloodRequestRequest) { req.UnitsNeeded = 0 },
		},
		{
			name:   "negative units",
			mutate: func(req *CreateBloodRequestRequest) { req.UnitsNeeded = -1 },
		},
		{
			name:   "unknown urgency",
			mutate: func(req *CreateBloodRequestRequest) { req.Urgency = "Critical" },
		},
		{
			name:   "empty candidate list",
			mutate: func(req *CreateBloodRequestRequest) { req.Donors = []CandidateDonor{} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(req)

			_, err := controller.Create(context.Background(), "doctor-1", req)

			assert.ErrorIs(t, err, ErrValidation)
			// Rejected before any side effect
			assert.Empty(t, dispatcher.sends)
		})
	}
}

func TestCreate_PopulatesOneResponsePerCandidate(t *testing.T) {
	controller, _, _, _ := newTestController(t)

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, request.RequestID)
	assert.Equal(t, "doctor-1", request.DoctorID)
	assert.Equal(t, RequestStatusPending, request.Status)
	require.Len(t, request.DonorResponses, 2)

	for i, response := range request.DonorResponses {
		assert.Equal(t, i, response.Position)
		assert.Equal(t, ResponseStatusPending, response.Status)
		assert.NotEmpty(t, response.Token)
		assert.Contains(t, response.UniqueLink, request.RequestID)
		assert.Contains(t, response.UniqueLink, response.Token)
	}

	// Tokens are unique per donor
	assert.NotEqual(t, request.DonorResponses[0].Token, request.DonorResponses[1].Token)
}

func TestCreate_NotificationOutcomesAreIndependent(t *testing.T) {
	controller, repo, dispatcher, _ := newTestController(t)
	dispatcher.failFor["+912222222222"] = true

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	// Both recipients were attempted
	assert.Len(t, dispatcher.sends, 2)

	// One failure never aborts the request or the other recipient
	assert.Equal(t, SMSStatusSent, request.DonorResponses[0].SMSStatus)
	assert.NotNil(t, request.DonorResponses[0].SMSSid)
	assert.Equal(t, SMSStatusFailed, request.DonorResponses[1].SMSStatus)
	assert.Nil(t, request.DonorResponses[1].SMSSid)
	assert.Equal(t, RequestStatusPending, request.Status)

	// The persisted record reflects the final outcomes
	stored, err := repo.GetByRequestID(context.Background(), request.RequestID)
	require.NoError(t, err)
	assert.Equal(t, SMSStatusSent, stored.DonorResponses[0].SMSStatus)
	assert.Equal(t, SMSStatusFailed, stored.DonorResponses[1].SMSStatus)
}

func TestCreate_NoEntryLeftPending(t *testing.T) {
	controller, _, dispatcher, _ := newTestController(t)
	dispatcher.failFor["+911111111111"] = true
	dispatcher.failFor["+912222222222"] = true

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	for _, response := range request.DonorResponses {
		assert.Contains(t, []string{SMSStatusSent, SMSStatusFailed}, response.SMSStatus)
	}
}

func TestCreate_SMSBodyContainsMatchDetails(t *testing.T) {
	controller, _, dispatcher, _ := newTestController(t)

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	require.Len(t, dispatcher.sends, 2)
	for _, send := range dispatcher.sends {
		assert.Contains(t, send.body, "O+")
		assert.Contains(t, send.body, request.RequestID)
	}

	first := dispatcher.sends[0]
	if first.to != "+911111111111" {
		first = dispatcher.sends[1]
	}
	assert.Contains(t, first.body, "Donor A")
	assert.Contains(t, first.body, "96.5%")
	assert.Contains(t, first.body, "2.4km")
}

func TestCreate_RanksWhenNoDonorsProvided(t *testing.T) {
	controller, _, _, directoryClient := newTestController(t)
	directoryClient.donors = twoCandidates()

	req := validCreateRequest()
	req.Donors = nil

	request, err := controller.Create(context.Background(), "doctor-1", req)
	require.NoError(t, err)
	assert.Len(t, request.DonorResponses, 2)
}

func TestCreate_DirectoryFailureAbortsCreation(t *testing.T) {
	controller, repo, dispatcher, directoryClient := newTestController(t)
	directoryClient.err = errors.New("connection refused")

	req := validCreateRequest()
	req.Donors = nil

	_, err := controller.Create(context.Background(), "doctor-1", req)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.Empty(t, dispatcher.sends)

	_, err = repo.GetByRequestID(context.Background(), "any")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestCreate_MissingPhonePolicies(t *testing.T) {
	t.Run("skip marks the entry failed without a provider call", func(t *testing.T) {
		controller, _, dispatcher, _ := newTestController(t)

		req := validCreateRequest()
		req.Donors[1].Phone = ""

		request, err := controller.Create(context.Background(), "doctor-1", req)
		require.NoError(t, err)

		require.Len(t, request.DonorResponses, 2)
		assert.Equal(t, SMSStatusFailed, request.DonorResponses[1].SMSStatus)
		assert.Len(t, dispatcher.sends, 1)
	})

	t.Run("placeholder fabricates a logged demo number", func(t *testing.T) {
		controller, _, dispatcher, _ := newTestController(t)
		controller.config.MissingPhonePolicy = "placeholder"

		req := validCreateRequest()
		req.Donors[1].Phone = ""

		request, err := controller.Create(context.Background(), "doctor-1", req)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(request.DonorResponses[1].DonorPhone, "+91"))
		assert.Len(t, dispatcher.sends, 2)
	})

	t.Run("fail rejects the whole request", func(t *testing.T) {
		controller, _, dispatcher, _ := newTestController(t)
		controller.config.MissingPhonePolicy = "fail"

		req := validCreateRequest()
		req.Donors[1].Phone = ""

		_, err := controller.Create(context.Background(), "doctor-1", req)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Empty(t, dispatcher.sends)
	})
}

func TestRecordResponse_UnknownRequestOrToken(t *testing.T) {
	controller, _, _, _ := newTestController(t)

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	tests := []struct {
		name      string
		requestID string
		token     string
	}{
		{
			name:      "unknown request id",
			requestID: "does-not-exist",
			token:     request.DonorResponses[0].Token,
		},
		{
			name:      "unknown token",
			requestID: request.RequestID,
			token:     "not-a-token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := controller.RecordResponse(context.Background(), tt.requestID, tt.token, ResponseStatusAccepted)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}

	// Nothing was mutated
	stored, err := controller.GetStatus(context.Background(), request.RequestID, "doctor-1")
	require.NoError(t, err)
	for _, response := range stored.DonorResponses {
		assert.Equal(t, ResponseStatusPending, response.Status)
		assert.Nil(t, response.ResponseDate)
	}
}

func TestRecordResponse_InvalidDecision(t *testing.T) {
	controller, _, _, _ := newTestController(t)

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	_, err = controller.RecordResponse(context.Background(), request.RequestID, request.DonorResponses[0].Token, "maybe")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecordResponse_AcceptUpdatesOnlyMatchingEntry(t *testing.T) {
	controller, _, _, _ := newTestController(t)

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	ack, err := controller.RecordResponse(
		context.Background(), request.RequestID, request.DonorResponses[0].Token, ResponseStatusAccepted)
	require.NoError(t, err)

	assert.Equal(t, "Donor A", ack.DonorName)
	assert.Equal(t, ResponseStatusAccepted, ack.Response)
	assert.Equal(t, "Anita Desai", ack.PatientName)

	stored, err := controller.GetStatus(context.Background(), request.RequestID, "doctor-1")
	require.NoError(t, err)

	assert.Equal(t, ResponseStatusAccepted, stored.DonorResponses[0].Status)
	assert.NotNil(t, stored.DonorResponses[0].ResponseDate)

	// The other entry is untouched
	assert.Equal(t, ResponseStatusPending, stored.DonorResponses[1].Status)
	assert.Nil(t, stored.DonorResponses[1].ResponseDate)

	// The parent status is advanced server-side
	assert.Equal(t, RequestStatusFulfilled, stored.Status)
}

func TestRecordResponse_DeclineDoesNotFulfill(t *testing.T) {
	controller, _, _, _ := newTestController(t)

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	_, err = controller.RecordResponse(
		context.Background(), request.RequestID, request.DonorResponses[0].Token, ResponseStatusDeclined)
	require.NoError(t, err)

	stored, err := controller.GetStatus(context.Background(), request.RequestID, "doctor-1")
	require.NoError(t, err)
	assert.Equal(t, ResponseStatusDeclined, stored.DonorResponses[0].Status)
	assert.Equal(t, RequestStatusPending, stored.Status)
}

func TestRecordResponse_DoubleSubmissionKeepsFirstDecision(t *testing.T) {
	controller, _, _, _ := newTestController(t)

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	token := request.DonorResponses[0].Token

	_, err = controller.RecordResponse(context.Background(), request.RequestID, token, ResponseStatusAccepted)
	require.NoError(t, err)

	// A second submission must never flip an accepted entry to declined
	_, err = controller.RecordResponse(context.Background(), request.RequestID, token, ResponseStatusDeclined)
	assert.ErrorIs(t, err, ErrAlreadyResponded)

	stored, err := controller.GetStatus(context.Background(), request.RequestID, "doctor-1")
	require.NoError(t, err)
	assert.Equal(t, ResponseStatusAccepted, stored.DonorResponses[0].Status)
}

func TestRecordResponse_ConcurrentDonorsBothRecorded(t *testing.T) {
	controller, _, _, _ := newTestController(t)

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	// Two donors respond at the same instant; neither decision may be lost
	// to a stale whole-record save.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	decisions := []string{ResponseStatusAccepted, ResponseStatusDeclined}
	for i := range decisions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = controller.RecordResponse(
				context.Background(), request.RequestID, request.DonorResponses[i].Token, decisions[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	stored, err := controller.GetStatus(context.Background(), request.RequestID, "doctor-1")
	require.NoError(t, err)
	assert.Equal(t, ResponseStatusAccepted, stored.DonorResponses[0].Status)
	assert.NotNil(t, stored.DonorResponses[0].ResponseDate)
	assert.Equal(t, ResponseStatusDeclined, stored.DonorResponses[1].Status)
	assert.NotNil(t, stored.DonorResponses[1].ResponseDate)
	assert.Equal(t, RequestStatusFulfilled, stored.Status)
}

func TestRecordResponse_PublishesStatusEvent(t *testing.T) {
	controller, _, _, _ := newTestController(t)

	var received []events.Event
	controller.eventBus.Subscribe(func(event events.Event) {
		received = append(received, event)
	})

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	_, err = controller.RecordResponse(
		context.Background(), request.RequestID, request.DonorResponses[0].Token, ResponseStatusAccepted)
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, events.TypeRequestUpdated, received[0].Type)
	assert.Equal(t, "doctor-1", received[0].DoctorID)
	assert.Equal(t, request.RequestID, received[0].RequestID)
	assert.Equal(t, RequestStatusFulfilled, received[0].Status)
}

func TestGetStatus_OwnerScoping(t *testing.T) {
	controller, _, _, _ := newTestController(t)

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	// The owner sees the record
	stored, err := controller.GetStatus(context.Background(), request.RequestID, "doctor-1")
	require.NoError(t, err)
	assert.Equal(t, request.RequestID, stored.RequestID)

	// Anyone else gets the same answer as for a missing request
	_, err = controller.GetStatus(context.Background(), request.RequestID, "doctor-2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = controller.GetStatus(context.Background(), "missing", "doctor-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetDonorView_SanitizedFields(t *testing.T) {
	controller, _, _, _ := newTestController(t)

	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	view, err := controller.GetDonorView(context.Background(), request.RequestID, request.DonorResponses[1].Token)
	require.NoError(t, err)

	assert.Equal(t, request.RequestID, view.RequestID)
	assert.Equal(t, "Anita Desai", view.PatientName)
	assert.Equal(t, "O+", view.BloodGroup)
	assert.Equal(t, 2, view.UnitsNeeded)
	assert.Equal(t, UrgencyHigh, view.Urgency)
	assert.Equal(t, "Donor B", view.DonorName)
	assert.Equal(t, "O-", view.DonorBloodGroup)
	assert.Equal(t, ResponseStatusPending, view.CurrentStatus)

	_, err = controller.GetDonorView(context.Background(), request.RequestID, "bogus")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEndToEndScenario(t *testing.T) {
	controller, _, dispatcher, _ := newTestController(t)
	dispatcher.failFor["+912222222222"] = true

	// Create a High urgency O+ request for two candidates
	request, err := controller.Create(context.Background(), "doctor-1", validCreateRequest())
	require.NoError(t, err)

	// A was notified, B's notification failed, request still pending
	assert.Equal(t, SMSStatusSent, request.DonorResponses[0].SMSStatus)
	assert.Equal(t, SMSStatusFailed, request.DonorResponses[1].SMSStatus)
	assert.Equal(t, RequestStatusPending, request.Status)

	// Donor A accepts via their token
	_, err = controller.RecordResponse(
		context.Background(), request.RequestID, request.DonorResponses[0].Token, ResponseStatusAccepted)
	require.NoError(t, err)

	// A status poll observes the accepted entry and the fulfilled request
	stored, err := controller.GetStatus(context.Background(), request.RequestID, "doctor-1")
	require.NoError(t, err)
	assert.Equal(t, RequestStatusFulfilled, stored.Status)
	assert.Equal(t, ResponseStatusAccepted, stored.DonorResponses[0].Status)
	assert.NotNil(t, stored.DonorResponses[0].ResponseDate)

	// B's entry is unchanged
	assert.Equal(t, ResponseStatusPending, stored.DonorResponses[1].Status)
	assert.Equal(t, SMSStatusFailed, stored.DonorResponses[1].SMSStatus)
}
