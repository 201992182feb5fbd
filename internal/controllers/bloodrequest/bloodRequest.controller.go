package bloodRequestController

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"server/config"
	"server/internal/directory"
	"server/internal/events"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/notify"
	"server/internal/repositories"
	"server/internal/services"
	"sync"
	"time"
)

var (
	ErrValidation           = errors.New("invalid blood request")
	ErrNotFound             = repositories.ErrNotFound
	ErrAlreadyResponded     = errors.New("donor has already responded")
	ErrDirectoryUnavailable = errors.New("donor directory is unavailable")
)

const updateRetryAttempts = 3

type BloodRequestController struct {
	requestRepo  repositories.BloodRequestRepository
	transactions *services.TransactionService
	directory    directory.Client
	dispatcher   notify.Dispatcher
	eventBus     *events.EventBus
	config       config.Config
	log          logger.Logger
}

func New(
	requestRepo repositories.BloodRequestRepository,
	transactions *services.TransactionService,
	directoryClient directory.Client,
	dispatcher notify.Dispatcher,
	eventBus *events.EventBus,
	config config.Config,
) *BloodRequestController {
	return &BloodRequestController{
		requestRepo:  requestRepo,
		transactions: transactions,
		directory:    directoryClient,
		dispatcher:   dispatcher,
		eventBus:     eventBus,
		config:       config,
		log:          logger.New("BloodRequestController"),
	}
}

// Create validates and persists a new blood request with one pending response
// entry per candidate donor, then fans out SMS notifications and persists the
// per-recipient outcome. The pending record is durable before the first send
// goes out, so a donor link can never reference a request the store does not
// have.
func (bc *BloodRequestController) Create(
	ctx context.Context,
	doctorID string,
	req *CreateBloodRequestRequest,
) (*BloodRequest, error) {
	log := bc.log.Function("Create")

	if err := bc.validateCreate(req); err != nil {
		return nil, err
	}

	latitude := bc.config.DefaultLatitude
	longitude := bc.config.DefaultLongitude

	// An omitted donor list means "rank for me"; an explicitly empty one is a
	// validation error below.
	candidates := req.Donors
	if candidates == nil {
		ranked, err := bc.directory.Rank(ctx, req.BloodGroup, latitude, longitude)
		if err != nil {
			log.Er("donor directory lookup failed", err, "bloodGroup", req.BloodGroup)
			return nil, ErrDirectoryUnavailable
		}
		candidates = ranked
	}

	if len(candidates) == 0 {
		log.Warn("no candidate donors for blood request", "bloodGroup", req.BloodGroup)
		return nil, fmt.Errorf("%w: no candidate donors", ErrValidation)
	}

	requestID, err := generateToken()
	if err != nil {
		return nil, log.Err("failed to generate request id", err)
	}

	request := &BloodRequest{
		RequestID:   requestID,
		DoctorID:    doctorID,
		PatientName: req.PatientName,
		BloodGroup:  req.BloodGroup,
		UnitsNeeded: req.UnitsNeeded,
		Urgency:     req.Urgency,
		Latitude:    latitude,
		Longitude:   longitude,
		Status:      RequestStatusPending,
		Version:     1,
	}

	for i, candidate := range candidates {
		token, err := generateToken()
		if err != nil {
			return nil, log.Err("failed to generate response token", err)
		}

		phone, err := bc.resolvePhone(candidate, i)
		if err != nil {
			return nil, err
		}

		request.DonorResponses = append(request.DonorResponses, DonorResponse{
			Position:           i,
			DonorID:            candidate.DonorID,
			DonorName:          candidate.Name,
			DonorPhone:         phone,
			BloodGroup:         candidate.BloodGroup,
			CompatibilityScore: candidate.CompatibilityScore,
			DistanceKm:         candidate.DistanceKm,
			Token:              token,
			UniqueLink:         fmt.Sprintf("%s/%s/%s", bc.config.ResponseLinkBase, requestID, token),
			Status:             ResponseStatusPending,
			SMSStatus:          SMSStatusPending,
		})
	}

	if err := bc.requestRepo.Create(ctx, request); err != nil {
		return nil, log.Err("failed to persist blood request", err, "requestID", requestID)
	}

	bc.notifyDonors(ctx, request)

	if err := bc.requestRepo.Update(ctx, request); err != nil {
		return nil, log.Err("failed to persist notification outcomes", err, "requestID", requestID)
	}

	log.Info("blood request created",
		"requestID", requestID, "doctorID", doctorID, "donors", len(request.DonorResponses))

	return request, nil
}

// notifyDonors attempts delivery to every recipient concurrently. One
// recipient's failure never affects another's attempt; each entry ends up
// sent or failed, never pending.
func (bc *BloodRequestController) notifyDonors(ctx context.Context, request *BloodRequest) {
	log := bc.log.Function("notifyDonors")

	var wg sync.WaitGroup
	for i := range request.DonorResponses {
		response := &request.DonorResponses[i]

		if response.DonorPhone == "" {
			response.SMSStatus = SMSStatusFailed
			log.Warn("skipping notification for donor without contact number",
				"requestID", request.RequestID, "donorID", response.DonorID)
			continue
		}

		wg.Add(1)
		go func(response *DonorResponse) {
			defer wg.Done()

			body := smsBody(request.BloodGroup, response)
			sid, err := bc.dispatcher.Send(ctx, response.DonorPhone, body)
			if err != nil {
				response.SMSStatus = SMSStatusFailed
				log.Warn("notification failed",
					"requestID", request.RequestID, "donorID", response.DonorID, "error", err)
				return
			}

			response.SMSStatus = SMSStatusSent
			response.SMSSid = &sid
		}(response)
	}
	wg.Wait()
}

// RecordResponse records a donor's accept/decline decision. The token is the
// donor's only credential; an unknown request and an unknown token are
// reported identically. A decided entry is never overwritten.
func (bc *BloodRequestController) RecordResponse(
	ctx context.Context,
	requestID, token, decision string,
) (*RespondAck, error) {
	log := bc.log.Function("RecordResponse")

	if !ValidDecision(decision) {
		return nil, fmt.Errorf("%w: decision must be accepted or declined", ErrValidation)
	}

	for attempt := 0; attempt < updateRetryAttempts; attempt++ {
		var request *BloodRequest
		var ack *RespondAck

		// Read and write share one transaction; the version check on the
		// parent row catches writers racing on a stale copy.
		err := bc.transactions.Execute(ctx, func(txCtx context.Context) error {
			var err error
			request, err = bc.requestRepo.GetByRequestID(txCtx, requestID)
			if err != nil {
				return err
			}

			response := request.ResponseByToken(token)
			if response == nil {
				return ErrNotFound
			}

			if response.Status != ResponseStatusPending {
				return ErrAlreadyResponded
			}

			now := time.Now().UTC()
			response.Status = decision
			response.ResponseDate = &now

			if decision == ResponseStatusAccepted && request.Status == RequestStatusPending {
				request.Status = RequestStatusFulfilled
			}

			if err := bc.requestRepo.Update(txCtx, request); err != nil {
				return err
			}

			ack = &RespondAck{
				DonorName:   response.DonorName,
				Response:    decision,
				PatientName: request.PatientName,
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				log.Warn("concurrent update on blood request, retrying",
					"requestID", requestID, "attempt", attempt+1)
				continue
			}
			return nil, err
		}

		bc.publishUpdate(ctx, request)

		return ack, nil
	}

	return nil, bc.log.Function("RecordResponse").
		Error("failed to record donor response after retries", "requestID", requestID)
}

// GetStatus returns the full record to its owning doctor only.
func (bc *BloodRequestController) GetStatus(ctx context.Context, requestID, doctorID string) (*BloodRequest, error) {
	return bc.requestRepo.GetByRequestIDForDoctor(ctx, requestID, doctorID)
}

// GetDonorView returns the token-authorized donor-facing slice of a request.
func (bc *BloodRequestController) GetDonorView(ctx context.Context, requestID, token string) (*DonorView, error) {
	request, err := bc.requestRepo.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	response := request.ResponseByToken(token)
	if response == nil {
		return nil, ErrNotFound
	}

	return &DonorView{
		RequestID:          request.RequestID,
		PatientName:        request.PatientName,
		BloodGroup:         request.BloodGroup,
		UnitsNeeded:        request.UnitsNeeded,
		Urgency:            request.Urgency,
		DonorName:          response.DonorName,
		DonorBloodGroup:    response.BloodGroup,
		CompatibilityScore: response.CompatibilityScore,
		DistanceKm:         response.DistanceKm,
		CurrentStatus:      response.Status,
	}, nil
}

func (bc *BloodRequestController) validateCreate(req *CreateBloodRequestRequest) error {
	if req.PatientName == "" {
		return fmt.Errorf("%w: patient name is required", ErrValidation)
	}
	if req.BloodGroup == "" {
		return fmt.Errorf("%w: blood group is required", ErrValidation)
	}
	if req.UnitsNeeded <= 0 {
		return fmt.Errorf("%w: units needed must be positive", ErrValidation)
	}
	if !ValidUrgency(req.Urgency) {
		return fmt.Errorf("%w: urgency must be Low, Medium or High", ErrValidation)
	}
	return nil
}

// resolvePhone applies the configured missing-contact policy. Fabricating a
// contact number is opt-in and logged, never a silent default.
func (bc *BloodRequestController) resolvePhone(candidate CandidateDonor, position int) (string, error) {
	log := bc.log.Function("resolvePhone")

	if candidate.Phone != "" {
		return candidate.Phone, nil
	}

	switch bc.config.MissingPhonePolicy {
	case "placeholder":
		phone := fmt.Sprintf("+91%d", 9000000000+position)
		log.Warn("assigned placeholder contact number",
			"donorID", candidate.DonorID, "phone", phone)
		return phone, nil
	case "fail":
		return "", fmt.Errorf("%w: donor %s has no contact number", ErrValidation, candidate.DonorID)
	default: // skip
		log.Warn("donor has no contact number, notification will be skipped",
			"donorID", candidate.DonorID)
		return "", nil
	}
}

func (bc *BloodRequestController) publishUpdate(ctx context.Context, request *BloodRequest) {
	if bc.eventBus == nil {
		return
	}

	if err := bc.eventBus.Publish(ctx, events.Event{
		Type:      events.TypeRequestUpdated,
		DoctorID:  request.DoctorID,
		RequestID: request.RequestID,
		Status:    request.Status,
	}); err != nil {
		bc.log.Function("publishUpdate").
			Warn("failed to publish request update", "requestID", request.RequestID, "error", err)
	}
}

func smsBody(bloodGroup string, response *DonorResponse) string {
	return fmt.Sprintf(
		"URGENT BLOOD DONATION REQUEST\n\nHi %s!\n\nA patient needs %s blood urgently at a nearby hospital.\n\nYour compatibility: %.1f%%\nDistance: %.1fkm\n\nCan you help save a life?\n\nRespond here: %s\n\nEvery minute counts!",
		response.DonorName,
		bloodGroup,
		response.CompatibilityScore,
		response.DistanceKm,
		response.UniqueLink,
	)
}

func generateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
