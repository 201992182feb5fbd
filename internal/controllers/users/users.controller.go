package userController

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"server/config"
	"server/internal/database"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/repositories"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
	ErrValidation         = errors.New("invalid registration")
)

type Session struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserController struct {
	userRepo repositories.UserRepository
	db       database.DB
	config   config.Config
	log      logger.Logger
}

func New(userRepo repositories.UserRepository, db database.DB, config config.Config) *UserController {
	return &UserController{
		userRepo: userRepo,
		db:       db,
		config:   config,
		log:      logger.New("UserController"),
	}
}

func (uc *UserController) Register(ctx context.Context, req *RegisterRequest) (*User, string, error) {
	log := uc.log.Function("Register")

	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, "", fmt.Errorf("%w: name, email and password are required", ErrValidation)
	}
	if req.UserType != UserTypeDoctor && req.UserType != UserTypeDonor {
		return nil, "", fmt.Errorf("%w: user type must be doctor or donor", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", log.Err("failed to hash password", err)
	}

	user := &User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hash),
		Phone:    req.Phone,
		UserType: req.UserType,
	}

	switch req.UserType {
	case UserTypeDonor:
		if req.BloodGroup != "" {
			user.BloodGroup = &req.BloodGroup
		}
		if req.LastDonationDate != "" {
			user.LastDonationDate = &req.LastDonationDate
		}
		if req.Location != nil {
			now := time.Now().UTC()
			user.Latitude = &req.Location.Lat
			user.Longitude = &req.Location.Lng
			user.LocationUpdatedAt = &now
		}
	case UserTypeDoctor:
		if req.HospitalName != "" {
			user.HospitalName = &req.HospitalName
		}
		if req.LicenseNumber != "" {
			user.LicenseNumber = &req.LicenseNumber
		}
	}

	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("%w: email may already be registered", ErrValidation)
	}

	token, err := uc.createSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

func (uc *UserController) Login(ctx context.Context, req *LoginRequest) (*User, string, error) {
	log := uc.log.Function("Login")

	if req.Email == "" || req.Password == "" {
		return nil, "", ErrInvalidCredentials
	}

	user, err := uc.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	if req.UserType != "" && user.UserType != req.UserType {
		return nil, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	// Donors refresh their location on login so ranking can use it.
	if user.UserType == UserTypeDonor && req.Location != nil {
		now := time.Now().UTC()
		user.Latitude = &req.Location.Lat
		user.Longitude = &req.Location.Lng
		user.LocationUpdatedAt = &now
		if err := uc.userRepo.Update(ctx, user); err != nil {
			log.Warn("failed to update donor location", "userID", user.ID, "error", err)
		}
	}

	token, err := uc.createSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

func (uc *UserController) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := database.NewCacheBuilder(uc.db.Cache.Session, SessionKey(token)).
		WithContext(ctx).
		Delete(); err != nil {
		uc.log.Function("Logout").Warn("failed to delete session", "error", err)
	}
}

// GetUserBySession resolves a session token to its user, for the auth
// middleware.
func (uc *UserController) GetUserBySession(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	var session Session
	found, err := database.NewCacheBuilder(uc.db.Cache.Session, SessionKey(token)).
		WithContext(ctx).
		Get(&session)
	if err != nil {
		return nil, uc.log.Function("GetUserBySession").Err("failed to read session", err)
	}
	if !found {
		return nil, ErrInvalidSession
	}

	user, err := uc.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, ErrInvalidSession
	}

	return user, nil
}

func (uc *UserController) createSession(ctx context.Context, userID string) (string, error) {
	log := uc.log.Function("createSession")

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", log.Err("failed to generate session token", err)
	}
	token := hex.EncodeToString(buf)

	session := Session{UserID: userID, CreatedAt: time.Now().UTC()}
	if err := database.NewCacheBuilder(uc.db.Cache.Session, SessionKey(token)).
		WithStruct(session).
		WithTTL(time.Duration(uc.config.SessionExpiryHours) * time.Hour).
		WithContext(ctx).
		Set(); err != nil {
		return "", log.Err("failed to store session", err, "userID", userID)
	}

	return token, nil
}

// SessionKey builds the cache key for a session token. Shared with the auth
// middleware.
func SessionKey(token string) string {
	return "session:" + token
}
