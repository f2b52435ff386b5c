package user

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	users    map[string]User // by id
	lastSeen string
}

func newMemStore() *memStore { return &memStore{users: map[string]User{}} }

func (m *memStore) Create(_ context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = "id-" + u.Email
	}
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) ByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email || u.PersonalEmail == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ByID(_ context.Context, id string) (*User, error) {
	if u, ok := m.users[id]; ok {
		cp := u
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) All(_ context.Context) ([]User, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memStore) ByRole(ctx context.Context, role string) ([]User, error) {
	if role == "all" {
		return m.All(ctx)
	}
	var out []User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) UpdatePassword(_ context.Context, id, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return errors.New("no such user")
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memStore) TouchLastLogin(_ context.Context, id string) error {
	m.lastSeen = id
	return nil
}

type memMailer struct {
	sent []string
	fail error
}

func (m *memMailer) Send(to, _, body string) error {
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, to+"\n"+body)
	return nil
}

func TestCreateGeneratesCredentials(t *testing.T) {
	store := newMemStore()
	mail := &memMailer{}
	svc := NewService(store, mail)

	res, err := svc.Create(context.Background(), "Asha Verma", "asha@example.com", "student")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !regexp.MustCompile(`^s\.asha\.verma\.\d{1,3}@college\.edu$`).MatchString(res.User.Email) {
		t.Fatalf("login email %q does not match pattern", res.User.Email)
	}
	if res.User.PersonalEmail != "asha@example.com" || res.User.Role != "student" || !res.User.IsActive {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if res.User.PasswordHash == "" || strings.HasPrefix(res.User.PasswordHash, "pass") {
		t.Fatal("password must be stored hashed")
	}
	if !res.EmailSent || len(mail.sent) != 1 {
		t.Fatalf("credential email not sent: %+v", mail.sent)
	}
	// The mailed password must verify against the stored hash.
	body := mail.sent[0]
	line := body[strings.Index(body, "Password: ")+len("Password: "):]
	password := strings.TrimSpace(line[:strings.IndexByte(line, '\n')])
	if bcrypt.CompareHashAndPassword([]byte(res.User.PasswordHash), []byte(password)) != nil {
		t.Fatal("mailed password does not match stored hash")
	}
}

func TestCreateRejectsDuplicateAndBadRole(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	if _, err := svc.Create(context.Background(), "A B", "a@example.com", "student"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(context.Background(), "A B", "a@example.com", "teacher"); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	for _, role := range []string{"", "admin", "janitor"} {
		if _, err := svc.Create(context.Background(), "C D", "c@example.com", role); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("role %q: expected ErrInvalidInput, got %v", role, err)
		}
	}
}

func TestCreateReportsMailFailureAsFlag(t *testing.T) {
	store := newMemStore()
	mail := &memMailer{fail: errors.New("smtp down")}
	svc := NewService(store, mail)
	res, err := svc.Create(context.Background(), "A B", "a@example.com", "guard")
	if err != nil {
		t.Fatalf("create should survive mail failure, got %v", err)
	}
	if res.EmailSent {
		t.Fatal("emailSent should be false")
	}
	if len(store.users) != 1 {
		t.Fatal("user record should still be created")
	}
}

func TestLogin(t *testing.T) {
	store := newMemStore()
	mail := &memMailer{}
	svc := NewService(store, mail)
	res, err := svc.Create(context.Background(), "A B", "a@example.com", "teacher")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	body := mail.sent[0]
	line := body[strings.Index(body, "Password: ")+len("Password: "):]
	password := strings.TrimSpace(line[:strings.IndexByte(line, '\n')])

	got, err := svc.Login(context.Background(), res.User.Email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != res.User.ID || store.lastSeen != res.User.ID {
		t.Fatal("login did not stamp last seen user")
	}
	if _, err := svc.Login(context.Background(), res.User.Email, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody@college.edu", password); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	u := store.users[res.User.ID]
	u.IsActive = false
	store.users[res.User.ID] = u
	if _, err := svc.Login(context.Background(), res.User.Email, password); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	store := newMemStore()
	mail := &memMailer{}
	svc := NewService(store, mail)
	res, _ := svc.Create(context.Background(), "A B", "a@example.com", "student")
	body := mail.sent[0]
	line := body[strings.Index(body, "Password: ")+len("Password: "):]
	old := strings.TrimSpace(line[:strings.IndexByte(line, '\n')])

	if err := svc.ChangePassword(context.Background(), res.User.Email, old, "newpass123"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Login(context.Background(), res.User.Email, "newpass123"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := svc.Login(context.Background(), res.User.Email, old); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("old password should no longer work")
	}
	if err := svc.ChangePassword(context.Background(), res.User.Email, "newpass123", "tiny"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
}

func TestGeneratePassword(t *testing.T) {
	for i := 0; i < 20; i++ {
		pw, err := GeneratePassword(8)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(pw) != 8 {
			t.Fatalf("len = %d", len(pw))
		}
		var upper, lower, digit, symbol bool
		for _, c := range pw {
			switch {
			case c >= 'A' && c <= 'Z':
				upper = true
			case c >= 'a' && c <= 'z':
				lower = true
			case c >= '0' && c <= '9':
				digit = true
			default:
				symbol = true
			}
		}
		if !upper || !lower || !digit || !symbol {
			t.Fatalf("password %q missing a character class", pw)
		}
	}
}

func TestRoleCounts(t *testing.T) {
	counts := RoleCounts([]User{{Role: "student"}, {Role: "Student"}, {Role: "guard"}})
	if counts["student"] != 2 || counts["guard"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}
