package seed

import (
	"server/config"
	"server/internal/logger"
	. "server/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func stringPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

func Seed(db *gorm.DB, config config.Config, log logger.Logger) error {
	log = log.Function("seed")
	log.Info("Seeding development data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return log.Err("failed to hash seed password", err)
	}

	users := []User{
		{
			Name:          "Asha Mehta",
			Email:         "asha.mehta@example.com",
			Password:      string(hash),
			Phone:         "+919812345670",
			UserType:      UserTypeDoctor,
			HospitalName:  stringPtr("City General Hospital"),
			LicenseNumber: stringPtr("MH-2021-48213"),
		}, {
			Name:          "Rahul Iyer",
			Email:         "rahul.iyer@example.com",
			Password:      string(hash),
			Phone:         "+919812345671",
			UserType:      UserTypeDoctor,
			HospitalName:  stringPtr("Lakeside Medical Centre"),
			LicenseNumber: stringPtr("MH-2019-11842"),
		}, {
			Name:       "Priya Nair",
			Email:      "priya.nair@example.com",
			Password:   string(hash),
			Phone:      "+919812345672",
			UserType:   UserTypeDonor,
			BloodGroup: stringPtr("O+"),
			Latitude:   floatPtr(19.0820),
			Longitude:  floatPtr(72.8810),
		}, {
			Name:       "Vikram Shah",
			Email:      "vikram.shah@example.com",
			Password:   string(hash),
			Phone:      "+919812345673",
			UserType:   UserTypeDonor,
			BloodGroup: stringPtr("AB-"),
			Latitude:   floatPtr(19.0650),
			Longitude:  floatPtr(72.8690),
		},
	}

	for i := range users {
		if err := db.Where("email = ?", users[i].Email).
			FirstOrCreate(&users[i]).Error; err != nil {
			return log.Err("failed to seed user", err, "email", users[i].Email)
		}
	}

	log.Info("Seeding complete", "users", len(users))
	return nil
}
