package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Ampplex/InfluencerFlow-sub001/model"
)

// ContractRepository persists contract rows
type ContractRepository interface {
	Create(ctx context.Context, contract *model.Contract) error
	Get(ctx context.Context, id string) (*model.Contract, error)
	ListByParty(ctx context.Context, role model.Role, partyID string) ([]*model.Contract, error)
	SetContractURL(ctx context.Context, id, url string, updatedAt time.Time) error
	// MarkSigned moves a contract from PENDING_SIGNATURE to SIGNED. Any other
	// current status is left alone and reported.
	MarkSigned(ctx context.Context, id string, signing model.Signing) (*model.Contract, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps contracts in process memory. Suitable for local runs
// and tests; contents are lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[string]*model.Contract
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contracts: make(map[string]*model.Contract)}
}

func (s *MemoryStore) Create(_ context.Context, contract *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[contract.ID]; ok {
		return ErrContractExists
	}
	s.contracts[contract.ID] = contract.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, ErrContractNotFound
	}
	return c.Clone(), nil
}

// ListByParty returns contracts where the role's id column matches, newest first
func (s *MemoryStore) ListByParty(_ context.Context, role model.Role, partyID string) ([]*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Contract, 0)
	for _, c := range s.contracts {
		var id string
		if role == model.RoleBrand {
			id = c.BrandID
		} else {
			id = c.InfluencerID
		}
		if id == partyID {
			result = append(result, c.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) SetContractURL(_ context.Context, id, url string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return ErrContractNotFound
	}
	c.ContractURL = url
	c.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryStore) MarkSigned(_ context.Context, id string, signing model.Signing) (*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, ErrContractNotFound
	}
	switch c.Status {
	case model.StatusPendingSignature:
	case model.StatusSigned:
		return nil, ErrContractAlreadySigned
	default:
		return nil, ErrContractNotPending
	}

	signedBy := signing.SignedBy
	signedAt := signing.SignedAt
	signatureURL := signing.SignatureURL

	c.Status = model.StatusSigned
	c.SignedBy = &signedBy
	c.SignedAt = &signedAt
	c.SignatureURL = &signatureURL
	c.ContractURL = signing.ContractURL
	c.UpdatedAt = signing.SignedAt

	return c.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[id]; !ok {
		return ErrContractNotFound
	}
	delete(s.contracts, id)
	return nil
}

// Count returns the number of contracts in the store
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}
