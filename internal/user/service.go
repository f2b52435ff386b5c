package user

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"campusaccess/internal/qrtoken"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateEmail     = errors.New("user with this email already exists")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid password")
	ErrAccountDeactivated = errors.New("account is deactivated")
)

// Store is what the service needs from persistence.
type Store interface {
	Create(ctx context.Context, u User) (User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	ByID(ctx context.Context, id string) (*User, error)
	All(ctx context.Context) ([]User, error)
	ByRole(ctx context.Context, role string) ([]User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	TouchLastLogin(ctx context.Context, id string) error
}

// CredentialMailer delivers generated credentials. Delivery failure is
// reported as a flag on the creation result, never as a request failure.
type CredentialMailer interface {
	Send(to, subject, body string) error
}

// Service owns account lifecycle: creation with generated credentials,
// login, password changes.
type Service struct {
	store Store
	mail  CredentialMailer
}

// NewService creates a user service. mail may be nil when SMTP is not
// configured; creation then reports emailSent=false.
func NewService(store Store, mail CredentialMailer) *Service {
	return &Service{store: store, mail: mail}
}

// CreateResult reports a creation outcome including whether the credential
// email went out.
type CreateResult struct {
	User      User
	EmailSent bool
}

// Create registers a new account for the given role, generating a college
// login email and a random password. The password is stored hashed and
// mailed to the personal address.
func (s *Service) Create(ctx context.Context, fullName, personalEmail, role string) (CreateResult, error) {
	if fullName == "" || personalEmail == "" || role == "" {
		return CreateResult{}, fmt.Errorf("%w: all fields are required", ErrInvalidInput)
	}
	r, err := qrtoken.ParseRole(role)
	if err != nil || r == qrtoken.RoleAdmin {
		return CreateResult{}, fmt.Errorf("%w: role must be teacher, student, or guard", ErrInvalidInput)
	}

	existing, err := s.store.ByEmail(ctx, personalEmail)
	if err != nil {
		return CreateResult{}, err
	}
	if existing != nil {
		return CreateResult{}, ErrDuplicateEmail
	}

	loginEmail := GenerateLoginEmail(fullName, string(r))
	password, err := GeneratePassword(8)
	if err != nil {
		return CreateResult{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return CreateResult{}, err
	}

	created, err := s.store.Create(ctx, User{
		FullName:      fullName,
		Email:         loginEmail,
		PersonalEmail: strings.ToLower(personalEmail),
		Role:          string(r),
		PasswordHash:  string(hash),
		IsActive:      true,
		CreatedBy:     "admin",
	})
	if err != nil {
		return CreateResult{}, err
	}

	emailSent := false
	if s.mail != nil {
		subject := "Welcome to College Access Management System"
		if err := s.mail.Send(personalEmail, subject, credentialMail(fullName, loginEmail, password, string(r))); err != nil {
			log.Printf("credential email to %s failed: %v", personalEmail, err)
		} else {
			emailSent = true
		}
	}
	return CreateResult{User: created, EmailSent: emailSent}, nil
}

// Register creates an account with a caller-chosen password, stored hashed.
// Unlike Create it performs no credential generation or mailing.
func (s *Service) Register(ctx context.Context, fullName, email, role, password string) (User, error) {
	if fullName == "" || email == "" || role == "" || password == "" {
		return User{}, fmt.Errorf("%w: all fields are required", ErrInvalidInput)
	}
	r, err := qrtoken.ParseRole(role)
	if err != nil {
		return User{}, fmt.Errorf("%w: unknown role", ErrInvalidInput)
	}
	existing, err := s.store.ByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if existing != nil {
		return User{}, ErrDuplicateEmail
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.store.Create(ctx, User{
		FullName:     fullName,
		Email:        strings.ToLower(email),
		Role:         string(r),
		PasswordHash: string(hash),
		IsActive:     true,
	})
}

// Login checks credentials and stamps the login time.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	if email == "" || password == "" {
		return User{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	u, err := s.store.ByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{}, ErrNotFound
	}
	if !u.IsActive {
		return User{}, ErrAccountDeactivated
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	if err := s.store.TouchLastLogin(ctx, u.ID); err != nil {
		log.Printf("last-login update for %s failed: %v", u.ID, err)
	}
	return *u, nil
}

// ChangePassword verifies the old password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return fmt.Errorf("%w: new password too short", ErrInvalidInput)
	}
	u, err := s.Login(ctx, email, oldPassword)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, u.ID, string(hash))
}

// All lists every account.
func (s *Service) All(ctx context.Context) ([]User, error) {
	return s.store.All(ctx)
}

// RoleCounts tallies accounts per role in a single pass.
func RoleCounts(users []User) map[string]int {
	counts := map[string]int{}
	for _, u := range users {
		counts[strings.ToLower(u.Role)]++
	}
	return counts
}

// GenerateLoginEmail derives the college login address:
// <roleInitial>.<dotted lowercase name>.<random>@college.edu.
func GenerateLoginEmail(fullName, role string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(fullName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		}
	}
	name := strings.Join(strings.Fields(b.String()), ".")
	n, _ := rand.Int(rand.Reader, big.NewInt(1000))
	return fmt.Sprintf("%c.%s.%d@college.edu", role[0], name, n.Int64())
}

const (
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	digitChars  = "0123456789"
	symbolChars = "@#$"
)

// GeneratePassword returns a random password guaranteed to contain an upper,
// a lower, a digit, and a symbol.
func GeneratePassword(length int) (string, error) {
	if length < 4 {
		length = 8
	}
	all := upperChars + lowerChars + digitChars + symbolChars
	chars := make([]byte, 0, length)
	for _, set := range []string{upperChars, lowerChars, digitChars, symbolChars} {
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for i := len(chars) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		chars[i], chars[j.Int64()] = chars[j.Int64()], chars[i]
	}
	return string(chars), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}

func credentialMail(fullName, loginEmail, password, role string) string {
	return fmt.Sprintf(`Dear %s,

Welcome to the College Access Management System!

Your account has been created with the following details:

Login Credentials:
Email: %s
Password: %s
Role: %s

Use these credentials to log into the College Access Management app.
Keep your password secure and change it after your first login.

Best regards,
College Administration Team
`, fullName, loginEmail, password, strings.ToUpper(role[:1])+role[1:])
}
