package services

import (
	"bytes"
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/sfm-market/storefront/internal/authz"
	"github.com/sfm-market/storefront/internal/credential"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/internal/store"
	"github.com/sfm-market/storefront/types"
)

const minPasswordLength = 8

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.User, int, error)
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id string) error
}

// PasswordHasher hashes passwords and checks them against stored hashes.
// Verify returns credential.ErrMismatch for a wrong password.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// RegisterInput is the payload of a self-service sign up.
type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone"`
}

// ProfileInput is what users may change about themselves. Email, role,
// status and password are not part of it.
type ProfileInput struct {
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Phone     string        `json:"phone"`
	Avatar    string        `json:"avatar"`
	Address   types.Address `json:"address"`
}

// AdminUserInput changes the role and/or status of an account. Nil fields
// are left untouched.
type AdminUserInput struct {
	Role   *string `json:"role"`
	Status *string `json:"status"`
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo     UserRepository
	hasher   PasswordHasher
	media    MediaStore
	janitor  mediaJanitor
	notifier notifier
	log      logr.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(repo UserRepository, hasher PasswordHasher, media MediaStore, events EventPublisher, log logr.Logger) *UserService {
	log = log.WithName("users")
	return &UserService{
		repo:     repo,
		hasher:   hasher,
		media:    media,
		janitor:  mediaJanitor{media: media, log: log},
		notifier: newNotifier(events, log),
		log:      log,
	}
}

// Claims projects user onto the claims carried in its session.
func Claims(user types.User) session.Claims {
	return session.Claims{
		SubjectID:   user.ID,
		Email:       user.Email,
		DisplayName: user.FirstName,
		Role:        user.Role,
		AvatarRef:   user.Avatar,
	}
}

// Register creates an ACTIVE account with the USER role.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return types.User{}, err
	}
	if len(in.Password) < minPasswordLength {
		return types.User{}, invalid("password", "must be at least %d characters", minPasswordLength)
	}
	user := types.User{
		Email:  email,
		Role:   types.RoleUser,
		Status: types.UserStatusActive,
	}
	if err := applyNames(&user, in.FirstName, in.LastName, in.Phone); err != nil {
		return types.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, err
	}
	user.PasswordHash = hash

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}
	s.notifier.notify(ctx, "user", "registered", created.ID, created.ID)
	return created, nil
}

// Authenticate checks email and password. Unknown emails and wrong passwords
// both yield ErrInvalidCredentials; a correct password on a non-ACTIVE
// account yields ErrAccountInactive.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return types.User{}, ErrInvalidCredentials
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.burnHash(password)
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, credential.ErrMismatch) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if user.Status != types.UserStatusActive {
		return types.User{}, ErrAccountInactive
	}
	return user, nil
}

// burnHash spends the same work as a real verification so unknown emails
// cannot be told apart by response time.
func (s *UserService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("storefront-dummy-password")
		if err != nil {
			s.log.Error(err, "failed to prepare dummy hash")
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(s.dummyHash, password)
	}
}

// Profile loads the account behind sess.
func (s *UserService) Profile(ctx context.Context, sess *session.Session) (types.User, error) {
	if _, err := authz.RequireAuthenticated(sess); err != nil {
		return types.User{}, err
	}
	return s.repo.GetByID(ctx, sess.SubjectID)
}

// UpdateProfile applies in to the account behind sess. A replaced avatar is
// deleted after the write commits.
func (s *UserService) UpdateProfile(ctx context.Context, sess *session.Session, in ProfileInput) (types.User, error) {
	current, err := s.Profile(ctx, sess)
	if err != nil {
		return types.User{}, err
	}

	next := current
	if err := applyNames(&next, in.FirstName, in.LastName, in.Phone); err != nil {
		return types.User{}, err
	}
	next.Avatar = strings.TrimSpace(in.Avatar)
	next.Address = in.Address
	scope := mediaScope(avatarFolder, current.ID)
	if next.Avatar != current.Avatar {
		if err := checkMedia(s.media, "avatar", []string{next.Avatar}, scope); err != nil {
			return types.User{}, err
		}
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return types.User{}, err
	}
	if current.Avatar != updated.Avatar {
		s.janitor.cleanup(ctx, "avatar", []string{scope}, current.Avatar)
	}
	return updated, nil
}

// UploadAvatar stores up as the avatar of the account behind sess and
// deletes the previous one.
func (s *UserService) UploadAvatar(ctx context.Context, sess *session.Session, up Upload) (types.User, error) {
	current, err := s.Profile(ctx, sess)
	if err != nil {
		return types.User{}, err
	}
	if err := up.validate("file", MaxAvatarBytes); err != nil {
		return types.User{}, err
	}

	url, err := s.media.Save(ctx, uploadFolder(avatarFolder, current.ID), bytes.NewReader(up.Data), int64(len(up.Data)), up.ContentType)
	if err != nil {
		return types.User{}, err
	}

	scopes := []string{mediaScope(avatarFolder, current.ID)}
	next := current
	next.Avatar = url
	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		s.janitor.cleanup(ctx, "avatar", scopes, url)
		return types.User{}, err
	}
	s.janitor.cleanup(ctx, "avatar", scopes, current.Avatar)
	return updated, nil
}

// List returns a page of accounts. Admin only.
func (s *UserService) List(ctx context.Context, sess *session.Session, offset, limit int) ([]types.User, int, error) {
	if err := authz.RequireRole(sess, types.RoleAdmin); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, offset, clampLimit(limit))
}

// AdminUpdate changes the role and/or status of account id. Admin only.
func (s *UserService) AdminUpdate(ctx context.Context, sess *session.Session, id string, in AdminUserInput) (types.User, error) {
	if err := authz.RequireRole(sess, types.RoleAdmin); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if in.Role != nil {
		role, ok := types.ParseRole(*in.Role)
		if !ok {
			return types.User{}, invalid("role", "must be one of USER, SELLER, ADMIN")
		}
		user.Role = role
	}
	if in.Status != nil {
		status, ok := types.ParseUserStatus(*in.Status)
		if !ok {
			return types.User{}, invalid("status", "must be one of ACTIVE, INACTIVE, DISABLED")
		}
		user.Status = status
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, err
	}
	s.notifier.notify(ctx, "user", "updated", updated.ID, sess.SubjectID)
	return updated, nil
}

// Delete removes account id, which must be DISABLED. Admin only.
func (s *UserService) Delete(ctx context.Context, sess *session.Session, id string) error {
	if err := authz.RequireRole(sess, types.RoleAdmin); err != nil {
		return err
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.Status != types.UserStatusDisabled {
		return ErrUserNotDisabled
	}
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return err
	}

	s.janitor.cleanup(ctx, "avatar", []string{mediaScope(avatarFolder, user.ID)}, user.Avatar)
	s.notifier.notify(ctx, "user", "deleted", user.ID, sess.SubjectID)
	return nil
}

// SetRole changes the role of the account registered under email. It is
// meant for operators bootstrapping the first admin and bypasses sessions.
func (s *UserService) SetRole(ctx context.Context, email string, role types.Role) (types.User, error) {
	if !role.Valid() {
		return types.User{}, invalid("role", "unknown role %q", role)
	}
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return types.User{}, err
	}
	user.Role = role
	return s.repo.Update(ctx, user)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "must be a valid email address")
	}
	return email, nil
}

func applyNames(user *types.User, firstName, lastName, phone string) error {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	phone = strings.TrimSpace(phone)
	if len([]rune(firstName)) < 2 {
		return invalid("first_name", "must be at least 2 characters")
	}
	if len([]rune(lastName)) < 2 {
		return invalid("last_name", "must be at least 2 characters")
	}
	if phone != "" && len(phone) < 10 {
		return invalid("phone", "must be at least 10 characters")
	}
	user.FirstName = firstName
	user.LastName = lastName
	user.Phone = phone
	return nil
}
