package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creditswap/creditswap-api/internal/domain/credit"
	"github.com/creditswap/creditswap-api/internal/domain/user"
	"github.com/creditswap/creditswap-api/internal/pkg/jwt"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]*user.User{}}
}

func (f *fakeUserRepo) Create(ctx context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.users {
		if e.Email == strings.ToLower(u.Email) {
			return user.ErrEmailAlreadyExists
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*user.User, error) {
	out := make(map[uuid.UUID]*user.User, len(ids))
	for _, id := range ids {
		if u, _ := f.GetByID(ctx, id); u != nil {
			out[id] = u
		}
	}
	return out, nil
}

type fakeLedger struct {
	users   *fakeUserRepo
	grants  []credit.Meta
	failErr error
}

func (l *fakeLedger) Grant(ctx context.Context, userID uuid.UUID, amount int, typ credit.Type, meta credit.Meta) (*credit.Transaction, error) {
	if l.failErr != nil {
		return nil, l.failErr
	}
	if typ != credit.TypeSignupBonus {
		return nil, errors.New("unexpected grant type " + string(typ))
	}
	l.users.mu.Lock()
	defer l.users.mu.Unlock()
	u, ok := l.users.users[userID]
	if !ok {
		return nil, credit.ErrUserNotFound
	}
	u.Credits += amount
	l.grants = append(l.grants, meta)
	return &credit.Transaction{ID: uuid.New(), ReceiverID: userID, Amount: amount, Type: typ}, nil
}

// snapshotTx drops users created inside a failed unit of work.
type snapshotTx struct {
	users *fakeUserRepo
}

func (s snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.users.mu.Lock()
	before := make(map[uuid.UUID]user.User, len(s.users.users))
	for id, u := range s.users.users {
		before[id] = *u
	}
	s.users.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.users.mu.Lock()
		s.users.users = make(map[uuid.UUID]*user.User, len(before))
		for id, u := range before {
			cp := u
			s.users.users[id] = &cp
		}
		s.users.mu.Unlock()
		return err
	}
	return nil
}

func newTestService(signupCredits int) (*Service, *fakeUserRepo, *fakeLedger) {
	repo := newFakeUserRepo()
	ledger := &fakeLedger{users: repo}
	jwtService := jwt.NewService("secret", time.Hour)
	return NewService(repo, ledger, snapshotTx{users: repo}, jwtService, signupCredits), repo, ledger
}

func TestRegisterGrantsSignupCredits(t *testing.T) {
	svc, repo, ledger := newTestService(50)

	resp, err := svc.Register(context.Background(), &RegisterRequest{
		Email:       "  Ada@Example.com ",
		Password:    "password123",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if resp.User.Credits != 50 {
		t.Fatalf("expected 50 credits, got %d", resp.User.Credits)
	}
	if resp.User.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", resp.User.Email)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.TokenType != "Bearer" {
		t.Fatalf("expected bearer token, got %+v", resp.Tokens)
	}

	stored, _ := repo.GetByID(context.Background(), resp.User.ID)
	if stored == nil || stored.Credits != 50 {
		t.Fatalf("expected stored balance 50, got %+v", stored)
	}
	if len(ledger.grants) != 1 || ledger.grants[0].RelatedEntityID != resp.User.ID {
		t.Fatalf("expected one signup grant, got %+v", ledger.grants)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(50)
	req := RegisterRequest{Email: "dup@example.com", Password: "password123", DisplayName: "Dup"}

	first := req
	if _, err := svc.Register(context.Background(), &first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	second := req
	second.Email = "DUP@example.com"
	if _, err := svc.Register(context.Background(), &second); !errors.Is(err, user.ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
}

func TestRegisterRollsBackWhenGrantFails(t *testing.T) {
	svc, repo, ledger := newTestService(50)
	ledger.failErr = errors.New("ledger down")

	_, err := svc.Register(context.Background(), &RegisterRequest{Email: "x@example.com", Password: "password123", DisplayName: "X"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(repo.users) != 0 {
		t.Fatal("user must not exist without its signup credits")
	}
}

func TestRegisterWithoutSignupCredits(t *testing.T) {
	svc, _, ledger := newTestService(0)

	resp, err := svc.Register(context.Background(), &RegisterRequest{Email: "z@example.com", Password: "password123", DisplayName: "Z"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if resp.User.Credits != 0 || len(ledger.grants) != 0 {
		t.Fatalf("expected no grant, got credits %d", resp.User.Credits)
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(50)
	reg, err := svc.Register(context.Background(), &RegisterRequest{Email: "l@example.com", Password: "password123", DisplayName: "L"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	resp, err := svc.Login(context.Background(), &LoginRequest{Email: "L@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.User.ID != reg.User.ID || resp.User.Credits != 50 {
		t.Fatalf("unexpected user %+v", resp.User)
	}

	claims, err := svc.jwtService.ValidateAccessToken(resp.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != reg.User.ID || claims.Role != string(user.RoleMember) {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := svc.Login(context.Background(), &LoginRequest{Email: "l@example.com", Password: "wrong-password"}); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := svc.Login(context.Background(), &LoginRequest{Email: "nobody@example.com", Password: "password123"}); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestGetCurrentUser(t *testing.T) {
	svc, _, _ := newTestService(50)
	reg, err := svc.Register(context.Background(), &RegisterRequest{Email: "me@example.com", Password: "password123", DisplayName: "Me"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	me, err := svc.GetCurrentUser(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("GetCurrentUser: %v", err)
	}
	if me.DisplayName != "Me" || me.Credits != 50 {
		t.Fatalf("unexpected user %+v", me)
	}

	if _, err := svc.GetCurrentUser(context.Background(), uuid.New()); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
