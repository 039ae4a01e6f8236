package auth

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/marketbay/server/internal/mail"
	"github.com/marketbay/server/internal/model"
	"github.com/marketbay/server/internal/repo"
)

// In-memory repo fakes. They mirror the Postgres constraints that the
// services rely on: unique email (case-insensitive), unique google_id,
// one unconsumed challenge per email.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]model.User)}
}

func uniqueViolation() error {
	return &pq.Error{Code: "23505"}
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (r *fakeUserRepo) FindByGoogleID(_ context.Context, googleID string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.GoogleID != nil && *u.GoogleID == googleID {
			return u, nil
		}
	}
	return model.User{}, repo.ErrNotFound
}

func (r *fakeUserRepo) Insert(_ context.Context, p repo.NewUserParams) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, p.Email) {
			return model.User{}, uniqueViolation()
		}
		if p.GoogleID != nil && u.GoogleID != nil && *u.GoogleID == *p.GoogleID {
			return model.User{}, uniqueViolation()
		}
	}
	u := model.User{
		ID:            uuid.New(),
		Email:         strings.ToLower(p.Email),
		PasswordHash:  p.PasswordHash,
		GoogleID:      p.GoogleID,
		Name:          p.Name,
		AvatarURL:     p.AvatarURL,
		Role:          model.RoleUser,
		Status:        model.StatusActive,
		VerifiedEmail: p.VerifiedEmail,
		CreatedAt:     time.Now(),
	}
	r.users[u.ID] = u
	return u, nil
}

func (r *fakeUserRepo) LinkGoogleID(_ context.Context, id uuid.UUID, googleID string, avatarURL *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.GoogleID != nil {
		return repo.ErrNotFound
	}
	u.GoogleID = &googleID
	if u.AvatarURL == nil {
		u.AvatarURL = avatarURL
	}
	u.VerifiedEmail = true
	r.users[id] = u
	return nil
}

func (r *fakeUserRepo) UpdatePasswordHash(_ context.Context, id uuid.UUID, passwordHash string) error {
	return r.update(id, func(u *model.User) { u.PasswordHash = &passwordHash })
}

func (r *fakeUserRepo) UpdateRole(_ context.Context, id uuid.UUID, role model.Role) error {
	return r.update(id, func(u *model.User) { u.Role = role })
}

func (r *fakeUserRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.Status) error {
	return r.update(id, func(u *model.User) { u.Status = status })
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.update(id, func(u *model.User) { u.LastLoginAt = &now })
}

func (r *fakeUserRepo) update(id uuid.UUID, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	fn(&u)
	r.users[id] = u
	return nil
}

type fakeOtpRepo struct {
	mu         sync.Mutex
	challenges map[string]model.OtpChallenge // keyed by email, unconsumed only
	latest     map[string]time.Time
}

func newFakeOtpRepo() *fakeOtpRepo {
	return &fakeOtpRepo{
		challenges: make(map[string]model.OtpChallenge),
		latest:     make(map[string]time.Time),
	}
}

func (r *fakeOtpRepo) CreateOrReplace(_ context.Context, email, codeHashHex string, expiresAt time.Time) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(email)
	c := model.OtpChallenge{
		ID:        uuid.New(),
		Email:     email,
		CodeHash:  mustHexDecode(codeHashHex),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	r.challenges[email] = c
	r.latest[email] = c.CreatedAt
	return c.ID, nil
}

func (r *fakeOtpRepo) FindActiveByEmail(_ context.Context, email string) (model.OtpChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[strings.ToLower(email)]
	if !ok {
		return model.OtpChallenge{}, repo.ErrNotFound
	}
	return c, nil
}

func (r *fakeOtpRepo) LatestCreatedAt(_ context.Context, email string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.latest[strings.ToLower(email)]
	if !ok {
		return time.Time{}, repo.ErrNotFound
	}
	return t, nil
}

func (r *fakeOtpRepo) MarkConsumed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for email, c := range r.challenges {
		if c.ID == id {
			delete(r.challenges, email)
			return nil
		}
	}
	return repo.ErrNotFound
}

func (r *fakeOtpRepo) IncrementAttempt(_ context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for email, c := range r.challenges {
		if c.ID == id {
			c.AttemptCount++
			r.challenges[email] = c
			return c.AttemptCount, nil
		}
	}
	return 0, repo.ErrNotFound
}

func (r *fakeOtpRepo) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for email, c := range r.challenges {
		if c.ExpiresAt.Before(cutoff) {
			delete(r.challenges, email)
			n++
		}
	}
	return n, nil
}

// expire backdates the live challenge for tests.
func (r *fakeOtpRepo) expire(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(email)
	if c, ok := r.challenges[email]; ok {
		c.ExpiresAt = time.Now().Add(-time.Minute)
		r.challenges[email] = c
	}
}

// clearCooldown lets tests issue a second code immediately.
func (r *fakeOtpRepo) clearCooldown(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.latest, strings.ToLower(email))
}

type fakeRefreshRepo struct {
	mu       sync.Mutex
	sessions map[string]model.RefreshSession // keyed by token hash
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{sessions: make(map[string]model.RefreshSession)}
}

func (r *fakeRefreshRepo) Create(_ context.Context, s model.RefreshSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.CreatedAt = time.Now()
	r.sessions[s.TokenHash] = s
	return nil
}

func (r *fakeRefreshRepo) FindByTokenHash(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tokenHash]
	if !ok {
		return model.RefreshSession{}, repo.ErrNotFound
	}
	return s, nil
}

func (r *fakeRefreshRepo) RevokeAndReplace(_ context.Context, id uuid.UUID, replacedBy uuid.UUID) error {
	return r.revokeMatching(func(s model.RefreshSession) bool {
		return s.ID == id && s.RevokedAt == nil
	}, &replacedBy)
}

func (r *fakeRefreshRepo) Revoke(_ context.Context, id uuid.UUID) error {
	return r.revokeMatching(func(s model.RefreshSession) bool {
		return s.ID == id && s.RevokedAt == nil
	}, nil)
}

func (r *fakeRefreshRepo) RevokeFamily(_ context.Context, familyID uuid.UUID) error {
	_ = r.revokeMatching(func(s model.RefreshSession) bool {
		return s.FamilyID == familyID && s.RevokedAt == nil
	}, nil)
	return nil
}

func (r *fakeRefreshRepo) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	_ = r.revokeMatching(func(s model.RefreshSession) bool {
		return s.UserID == userID && s.RevokedAt == nil
	}, nil)
	return nil
}

func (r *fakeRefreshRepo) DeleteDead(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, s := range r.sessions {
		if s.ExpiresAt.Before(cutoff) || (s.RevokedAt != nil && s.RevokedAt.Before(cutoff)) {
			delete(r.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (r *fakeRefreshRepo) revokeMatching(match func(model.RefreshSession) bool, replacedBy *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	found := false
	for hash, s := range r.sessions {
		if match(s) {
			s.RevokedAt = &now
			s.ReplacedBy = replacedBy
			r.sessions[hash] = s
			found = true
		}
	}
	if !found {
		return repo.ErrNotFound
	}
	return nil
}

func (r *fakeRefreshRepo) liveCount(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && s.Live(time.Now()) {
			n++
		}
	}
	return n
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail bool
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return context.DeadlineExceeded
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) lastMessage() (mail.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return mail.Message{}, false
	}
	return m.sent[len(m.sent)-1], true
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
