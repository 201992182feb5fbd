package models

import "time"

const (
	RequestStatusPending   = "pending"
	RequestStatusFulfilled = "fulfilled"
	RequestStatusCancelled = "cancelled"

	ResponseStatusPending  = "pending"
	ResponseStatusAccepted = "accepted"
	ResponseStatusDeclined = "declined"

	SMSStatusPending = "pending"
	SMSStatusSent    = "sent"
	SMSStatusFailed  = "failed"

	UrgencyLow    = "Low"
	UrgencyMedium = "Medium"
	UrgencyHigh   = "High"
)

type BloodRequest struct {
	BaseUUIDModel
	RequestID      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"requestId"`
	DoctorID       string          `gorm:"type:varchar(64);not null;index"       json:"doctorId"`
	PatientName    string          `gorm:"type:varchar(255);not null"            json:"patientName"`
	BloodGroup     string          `gorm:"type:varchar(8);not null"              json:"bloodGroup"`
	UnitsNeeded    int             `gorm:"not null"                              json:"unitsNeeded"`
	Urgency        string          `gorm:"type:varchar(20);not null"             json:"urgency"` // 'Low', 'Medium', 'High'
	Latitude       float64         `gorm:"not null"                              json:"latitude"`
	Longitude      float64         `gorm:"not null"                              json:"longitude"`
	Status         string          `gorm:"type:varchar(20);not null;default:pending" json:"status"` // 'pending', 'fulfilled', 'cancelled'
	Version        int             `gorm:"not null;default:1"                    json:"version"`
	DonorResponses []DonorResponse `gorm:"foreignKey:BloodRequestID;constraint:OnDelete:CASCADE" json:"donorResponses"`
}

// DonorResponse is a snapshot of one candidate donor at matching time. Later
// changes to the donor's own profile never affect this record.
type DonorResponse struct {
	BaseUUIDModel
	BloodRequestID     string     `gorm:"type:varchar(64);not null;index"   json:"bloodRequestId"`
	Position           int        `gorm:"not null"                          json:"position"`
	DonorID            string     `gorm:"type:varchar(64);not null"         json:"donorId"`
	DonorName          string     `gorm:"type:varchar(255);not null"        json:"donorName"`
	DonorPhone         string     `gorm:"type:varchar(32)"                  json:"donorPhone"`
	BloodGroup         string     `gorm:"type:varchar(8);not null"          json:"bloodGroup"`
	CompatibilityScore float64    `gorm:"not null"                          json:"compatibilityScore"`
	DistanceKm         float64    `gorm:"not null"                          json:"distanceKm"`
	Token              string     `gorm:"type:varchar(64);not null;index"   json:"token"`
	UniqueLink         string     `gorm:"type:varchar(512);not null"        json:"uniqueLink"`
	Status             string     `gorm:"type:varchar(20);not null;default:pending" json:"status"` // 'pending', 'accepted', 'declined'
	ResponseDate       *time.Time `json:"responseDate,omitempty"`
	SMSStatus          string     `gorm:"type:varchar(20);not null;default:pending" json:"smsStatus"` // 'pending', 'sent', 'failed'
	SMSSid             *string    `gorm:"type:varchar(64)"                  json:"smsSid,omitempty"`
}

func (r *BloodRequest) Decided() bool {
	return r.Status != RequestStatusPending
}

// ResponseByToken returns the donor response whose token matches, or nil.
func (r *BloodRequest) ResponseByToken(token string) *DonorResponse {
	if token == "" {
		return nil
	}
	for i := range r.DonorResponses {
		if r.DonorResponses[i].Token == token {
			return &r.DonorResponses[i]
		}
	}
	return nil
}

// CandidateDonor is one entry of the ranked list produced by the donor
// directory. Field names follow the directory's wire format.
type CandidateDonor struct {
	DonorID            string  `json:"donor_id"`
	Name               string  `json:"name"`
	Phone              string  `json:"phone"`
	BloodGroup         string  `json:"blood_group"`
	CompatibilityScore float64 `json:"compatibility_score"`
	DistanceKm         float64 `json:"distance_km"`
}

type CreateBloodRequestRequest struct {
	PatientName string           `json:"patientName"`
	BloodGroup  string           `json:"bloodGroup"`
	UnitsNeeded int              `json:"unitsNeeded"`
	Urgency     string           `json:"urgency"`
	Donors      []CandidateDonor `json:"donors"`
}

type RespondRequest struct {
	Response string `json:"response"` // 'accepted' or 'declined'
}

type RespondAck struct {
	DonorName   string `json:"donorName"`
	Response    string `json:"response"`
	PatientName string `json:"patientName"`
}

// DonorView is the public, token-authorized slice of a blood request. It never
// carries other donors' entries or the requesting doctor's identity.
type DonorView struct {
	RequestID          string  `json:"requestId"`
	PatientName        string  `json:"patientName"`
	BloodGroup         string  `json:"bloodGroup"`
	UnitsNeeded        int     `json:"unitsNeeded"`
	Urgency            string  `json:"urgency"`
	DonorName          string  `json:"donorName"`
	DonorBloodGroup    string  `json:"donorBloodGroup"`
	CompatibilityScore float64 `json:"compatibilityScore"`
	DistanceKm         float64 `json:"distanceKm"`
	CurrentStatus      string  `json:"currentStatus"`
}

func ValidUrgency(urgency string) bool {
	return urgency == UrgencyLow || urgency == UrgencyMedium || urgency == UrgencyHigh
}

func ValidDecision(decision string) bool {
	return decision == ResponseStatusAccepted || decision == ResponseStatusDeclined
}
