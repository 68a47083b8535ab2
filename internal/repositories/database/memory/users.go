package memory

import (
	"context"
	"sort"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

func (s *scope) allUsers() map[string]domain.User {
	merged := make(map[string]domain.User)
	s.db.mu.RLock()
	for id, u := range s.db.users {
		merged[id] = cloneUser(u)
	}
	s.db.mu.RUnlock()
	if s.tx != nil {
		for id, u := range s.tx.users {
			merged[id] = cloneUser(u)
		}
	}
	return merged
}

func (s *scope) FindUserByID(_ context.Context, userID string) (*domain.User, error) {
	u, ok := s.allUsers()[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &u, nil
}

func (s *scope) FindUserByEmail(_ context.Context, tenantID *string, email string) (*domain.User, error) {
	want := userEmailKey(domain.User{TenantID: tenantID, Email: email})
	for _, u := range s.allUsers() {
		if userEmailKey(u) == want {
			return &u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *scope) ListUsersByTenant(_ context.Context, tenantID string) ([]domain.User, error) {
	var out []domain.User
	for _, u := range s.allUsers() {
		if u.TenantID != nil && *u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *scope) SaveUser(_ context.Context, user domain.User) error {
	return s.mutate(func(st *txState) error {
		st.users[user.UserID] = cloneUser(user)
		st.newUsers[user.UserID] = true
		return nil
	})
}

func (s *scope) UpdateUser(ctx context.Context, user domain.User) error {
	if _, err := s.FindUserByID(ctx, user.UserID); err != nil {
		return err
	}
	return s.mutate(func(st *txState) error {
		st.users[user.UserID] = cloneUser(user)
		return nil
	})
}
