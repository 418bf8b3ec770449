package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Local provider limits.
const (
	MinPasswordLength = 6
	maxFailures       = 5
	lockout           = time.Minute
	resetCodeTTL      = time.Hour
)

// LocalProvider is an identity provider backed by a JSON file in the data
// directory. Passwords are stored as bcrypt hashes.
type LocalProvider struct {
	dataDir  string
	resetURL string
	mailer   Mailer

	// Cost is the bcrypt cost for new hashes.
	Cost int
	// Now is the clock; nil means time.Now.
	Now func() time.Time

	mu       sync.Mutex
	users    map[string]*userRecord
	resets   map[string]resetCode
	failures map[string]*failureWindow
}

type userRecord struct {
	User
	PasswordHash string `json:"passwordHash,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Disabled     bool   `json:"disabled,omitempty"`
}

type resetCode struct {
	uid     string
	expires time.Time
}

type failureWindow struct {
	count       int
	lockedUntil time.Time
}

// NewLocalProvider loads users from dataDir. resetURL is the page that
// accepts the reset code (the code is added as the "oobCode" query parameter).
func NewLocalProvider(dataDir, resetURL string, mailer Mailer) *LocalProvider {
	if mailer == nil {
		mailer = LogMailer{}
	}
	p := &LocalProvider{
		dataDir:  dataDir,
		resetURL: resetURL,
		mailer:   mailer,
		Cost:     bcrypt.DefaultCost,
		users:    make(map[string]*userRecord),
		resets:   make(map[string]resetCode),
		failures: make(map[string]*failureWindow),
	}
	p.loadFromDisk()
	return p
}

func (p *LocalProvider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", providerErr(CodeInvalidEmail)
	}
	return email, nil
}

// findByEmail must be called with p.mu held.
func (p *LocalProvider) findByEmail(email string) *userRecord {
	for _, u := range p.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (p *LocalProvider) CreateUser(ctx context.Context, email, password string) (User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if len([]rune(password)) < MinPasswordLength {
		return User{}, providerErr(CodeWeakPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.Cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.findByEmail(email) != nil {
		return User{}, providerErr(CodeEmailAlreadyInUse)
	}
	rec := &userRecord{
		User: User{
			ID:        uuid.NewString(),
			Email:     email,
			Provider:  ProviderPassword,
			CreatedAt: p.now().UTC(),
		},
		PasswordHash: string(hash),
	}
	p.users[rec.ID] = rec
	if err := p.saveToDisk(); err != nil {
		delete(p.users, rec.ID)
		return User{}, err
	}
	return rec.User, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	fw := p.failures[email]
	if fw != nil && now.Before(fw.lockedUntil) {
		return User{}, providerErr(CodeTooManyRequests)
	}

	rec := p.findByEmail(email)
	if rec == nil {
		return User{}, providerErr(CodeUserNotFound)
	}
	if rec.Disabled {
		return User{}, providerErr(CodeUserDisabled)
	}
	if rec.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		if fw == nil {
			fw = &failureWindow{}
			p.failures[email] = fw
		}
		fw.count++
		if fw.count >= maxFailures {
			fw.count = 0
			fw.lockedUntil = now.Add(lockout)
			log.Warn().Str("email", email).Msg("auth: sign-in locked after repeated failures")
		}
		return User{}, providerErr(CodeWrongPassword)
	}
	delete(p.failures, email)
	return rec.User, nil
}

// SignInFederated signs in the user for id, creating it on first use. An
// existing password account with the same email is linked.
func (p *LocalProvider) SignInFederated(ctx context.Context, id FederatedIdentity) (User, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return User{}, providerErr(CodeOperationNotAllowed)
	}
	email, err := normalizeEmail(id.Email)
	if err != nil {
		return User{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, u := range p.users {
		if u.Subject == id.Subject {
			if u.Disabled {
				return User{}, providerErr(CodeUserDisabled)
			}
			return u.User, nil
		}
	}
	if rec := p.findByEmail(email); rec != nil {
		if rec.Disabled {
			return User{}, providerErr(CodeUserDisabled)
		}
		rec.Subject = id.Subject
		if rec.DisplayName == "" {
			rec.DisplayName = id.DisplayName
		}
		return rec.User, p.saveToDisk()
	}

	rec := &userRecord{
		User: User{
			ID:          uuid.NewString(),
			Email:       email,
			DisplayName: id.DisplayName,
			Provider:    ProviderFederated,
			CreatedAt:   p.now().UTC(),
		},
		Subject: id.Subject,
	}
	p.users[rec.ID] = rec
	if err := p.saveToDisk(); err != nil {
		delete(p.users, rec.ID)
		return User{}, err
	}
	return rec.User, nil
}

func (p *LocalProvider) SendPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	p.mu.Lock()
	rec := p.findByEmail(email)
	if rec == nil {
		p.mu.Unlock()
		return providerErr(CodeUserNotFound)
	}
	code, err := newResetCode()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.resets[code] = resetCode{uid: rec.ID, expires: p.now().Add(resetCodeTTL)}
	p.mu.Unlock()

	return p.mailer.SendPasswordReset(ctx, email, p.resetLink(code))
}

func (p *LocalProvider) resetLink(code string) string {
	u, err := url.Parse(p.resetURL)
	if err != nil || p.resetURL == "" {
		return "/login?mode=resetPassword&oobCode=" + url.QueryEscape(code)
	}
	q := u.Query()
	q.Set("mode", "resetPassword")
	q.Set("oobCode", code)
	u.RawQuery = q.Encode()
	return u.String()
}

func newResetCode() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (p *LocalProvider) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	if len([]rune(newPassword)) < MinPasswordLength {
		return providerErr(CodeWeakPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.Cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rc, ok := p.resets[code]
	if !ok || p.now().After(rc.expires) {
		delete(p.resets, code)
		return providerErr(CodeInvalidActionCode)
	}
	delete(p.resets, code)

	rec, ok := p.users[rc.uid]
	if !ok {
		return providerErr(CodeUserNotFound)
	}
	rec.PasswordHash = string(hash)
	delete(p.failures, rec.Email)
	return p.saveToDisk()
}

func (p *LocalProvider) DeleteUser(ctx context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.users[uid]
	if !ok {
		return providerErr(CodeUserNotFound)
	}
	delete(p.users, uid)
	for code, rc := range p.resets {
		if rc.uid == uid {
			delete(p.resets, code)
		}
	}
	if err := p.saveToDisk(); err != nil {
		p.users[uid] = rec
		return err
	}
	return nil
}

// configFile returns the path to the users file.
func (p *LocalProvider) configFile() string {
	return filepath.Join(p.dataDir, "auth", "users.json")
}

// loadFromDisk loads users from disk.
func (p *LocalProvider) loadFromDisk() {
	if p.dataDir == "" {
		return
	}
	data, err := os.ReadFile(p.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var users map[string]*userRecord
	if err := json.Unmarshal(data, &users); err != nil {
		log.Error().Err(err).Str("file", p.configFile()).Msg("auth: invalid users file, starting empty")
		return
	}
	// A "null" file or null entries leave nothing to load.
	for id, u := range users {
		if u != nil {
			p.users[id] = u
		}
	}
}

// saveToDisk persists users. An empty dataDir keeps them in memory only.
func (p *LocalProvider) saveToDisk() error {
	if p.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.configFile()), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(p.users, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(p.configFile(), data, 0600)
}
