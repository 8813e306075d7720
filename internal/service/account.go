package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/validator"
)

// LoginInput holds customer credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=100"`
}

// RegisterInput holds the fields of a new customer account.
type RegisterInput struct {
	FirstName        string `json:"first_name" validate:"required,max=100"`
	LastName         string `json:"last_name" validate:"required,max=100"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=8,max=100"`
	Phone            string `json:"phone" validate:"omitempty,e164"`
	AcceptsMarketing bool   `json:"accepts_marketing"`
}

// UpdateProfileInput is a partial profile update.
type UpdateProfileInput struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,e164"`
}

// UpdatePasswordInput holds the new password.
type UpdatePasswordInput struct {
	Password string `json:"password" validate:"required,min=8,max=100"`
}

// AccountService forwards account operations to the commerce platform on
// behalf of the session's customer.
type AccountService struct {
	platform CustomerPlatform
	sessions SessionIssuer
	logger   *slog.Logger
}

// NewAccountService creates a new account service.
func NewAccountService(platform CustomerPlatform, sessions SessionIssuer, logger *slog.Logger) *AccountService {
	return &AccountService{
		platform: platform,
		sessions: sessions,
		logger:   logger,
	}
}

// Login exchanges credentials for a platform access token and returns a
// session wrapping it.
func (s *AccountService) Login(ctx context.Context, input LoginInput) (*domain.Session, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	access, err := s.platform.CreateAccessToken(ctx, input.Email, input.Password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return s.openSession(ctx, access)
}

// Register creates a customer account and logs the customer in.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*domain.Session, error) {
	input.Email = normalizeEmail(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	id, err := s.platform.CreateCustomer(ctx, domain.NewCustomer{
		FirstName:        input.FirstName,
		LastName:         input.LastName,
		Email:            input.Email,
		Password:         input.Password,
		Phone:            input.Phone,
		AcceptsMarketing: input.AcceptsMarketing,
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	s.logger.InfoContext(ctx, "customer registered", slog.String("customer_id", id))

	return s.Login(ctx, LoginInput{Email: input.Email, Password: input.Password})
}

// Logout revokes the platform access token. A token the platform no longer
// knows counts as logged out.
func (s *AccountService) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return apperrors.Unauthorized("missing session")
	}

	if err := s.platform.DeleteAccessToken(ctx, accessToken); err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			return nil
		}
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// RecoverPassword asks the platform to email a reset link. The outcome is
// not revealed, so that the endpoint cannot be used to discover accounts.
func (s *AccountService) RecoverPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validator.Validate(struct {
		Email string `json:"email" validate:"required,email"`
	}{email}); err != nil {
		return err
	}

	if err := s.platform.Recover(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "password recovery request failed", slog.String("error", err.Error()))
	}
	return nil
}

// Profile returns the session's customer with addresses.
func (s *AccountService) Profile(ctx context.Context, accessToken string) (*domain.Customer, error) {
	customer, err := s.platform.Customer(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return customer, nil
}

// UpdateProfile changes the name or phone of the customer.
func (s *AccountService) UpdateProfile(ctx context.Context, accessToken string, input UpdateProfileInput) (*domain.Customer, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}
	if input.FirstName == nil && input.LastName == nil && input.Phone == nil {
		return nil, apperrors.InvalidInput("nothing to update")
	}

	customer, _, err := s.platform.UpdateCustomer(ctx, accessToken, domain.CustomerUpdate{
		FirstName: trimmed(input.FirstName),
		LastName:  trimmed(input.LastName),
		Phone:     input.Phone,
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.logger.InfoContext(ctx, "customer profile updated", slog.String("customer_id", customer.ID))
	return customer, nil
}

// UpdatePassword changes the password. The platform rotates the access
// token, so a new session is returned.
func (s *AccountService) UpdatePassword(ctx context.Context, accessToken string, input UpdatePasswordInput) (*domain.Session, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	customer, access, err := s.platform.UpdateCustomer(ctx, accessToken, domain.CustomerUpdate{Password: &input.Password})
	if err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	if access == nil {
		return nil, apperrors.BadGateway("commerce-storefront", "password changed but no new access token returned", nil)
	}

	s.logger.InfoContext(ctx, "customer password updated", slog.String("customer_id", customer.ID))
	return s.issue(customer, access)
}

// ListAddresses returns the customer's saved addresses.
func (s *AccountService) ListAddresses(ctx context.Context, accessToken string) ([]domain.Address, error) {
	customer, err := s.Profile(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if customer.Addresses == nil {
		return []domain.Address{}, nil
	}
	return customer.Addresses, nil
}

// CreateAddress saves a new address.
func (s *AccountService) CreateAddress(ctx context.Context, accessToken string, addr domain.Address) (*domain.Address, error) {
	addr.ID = ""
	if err := validator.Validate(addr); err != nil {
		return nil, err
	}

	created, err := s.platform.CreateAddress(ctx, accessToken, addr)
	if err != nil {
		return nil, fmt.Errorf("create address: %w", err)
	}
	return created, nil
}

// UpdateAddress replaces the address with id.
func (s *AccountService) UpdateAddress(ctx context.Context, accessToken, id string, addr domain.Address) (*domain.Address, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("address id is required")
	}
	addr.ID = ""
	if err := validator.Validate(addr); err != nil {
		return nil, err
	}

	updated, err := s.platform.UpdateAddress(ctx, accessToken, id, addr)
	if err != nil {
		return nil, fmt.Errorf("update address: %w", err)
	}
	return updated, nil
}

// DeleteAddress removes the address with id.
func (s *AccountService) DeleteAddress(ctx context.Context, accessToken, id string) error {
	if id == "" {
		return apperrors.InvalidInput("address id is required")
	}
	if err := s.platform.DeleteAddress(ctx, accessToken, id); err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	return nil
}

// SetDefaultAddress makes the address with id the default.
func (s *AccountService) SetDefaultAddress(ctx context.Context, accessToken, id string) error {
	if id == "" {
		return apperrors.InvalidInput("address id is required")
	}
	if err := s.platform.SetDefaultAddress(ctx, accessToken, id); err != nil {
		return fmt.Errorf("set default address: %w", err)
	}
	return nil
}

func (s *AccountService) openSession(ctx context.Context, access *domain.AccessToken) (*domain.Session, error) {
	customer, err := s.platform.Customer(ctx, access.Token)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}

	sess, err := s.issue(customer, access)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "customer logged in", slog.String("customer_id", customer.ID))
	return sess, nil
}

func (s *AccountService) issue(customer *domain.Customer, access *domain.AccessToken) (*domain.Session, error) {
	sess, err := s.sessions.Issue(customer, access)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return sess, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
