package models

import "time"

const (
	UserTypeDoctor = "doctor"
	UserTypeDonor  = "donor"
)

type User struct {
	BaseUUIDModel
	Name     string `gorm:"type:varchar(255);not null"             json:"name"`
	Email    string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password string `gorm:"type:varchar(255);not null"             json:"-"`
	Phone    string `gorm:"type:varchar(32)"                       json:"phone"`
	UserType string `gorm:"type:varchar(20);not null;index"        json:"userType"` // 'doctor' or 'donor'

	// Donor fields
	BloodGroup        *string    `gorm:"type:varchar(8)"  json:"bloodGroup,omitempty"`
	LastDonationDate  *string    `gorm:"type:varchar(64)" json:"lastDonationDate,omitempty"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	LocationUpdatedAt *time.Time `json:"locationUpdatedAt,omitempty"`

	// Doctor fields
	HospitalName  *string `gorm:"type:varchar(255)" json:"hospitalName,omitempty"`
	LicenseNumber *string `gorm:"type:varchar(64)"  json:"licenseNumber,omitempty"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type RegisterRequest struct {
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Password         string    `json:"password"`
	Phone            string    `json:"phone"`
	UserType         string    `json:"userType"`
	BloodGroup       string    `json:"bloodGroup"`
	LastDonationDate string    `json:"lastDonationDate"`
	HospitalName     string    `json:"hospitalName"`
	LicenseNumber    string    `json:"licenseNumber"`
	Location         *GeoPoint `json:"location"`
}

type LoginRequest struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	UserType string    `json:"userType"`
	Location *GeoPoint `json:"location"`
}
