package repository

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
)

type memProvider struct {
	name      string
	specialty string
}

type voteKey struct {
	verificationID string
	ipHash         string
}

type memState struct {
	providers     map[string]memProvider
	plans         map[string]string
	acceptances   map[int64]model.AcceptanceAggregate
	pairs         map[model.PairKey]int64
	verifications map[string]model.VerificationRecord
	votes         map[int64]model.VoteRecord
	voteKeys      map[voteKey]int64

	nextAcceptanceID int64
	nextVoteID       int64
}

func newMemState() *memState {
	return &memState{
		providers:     make(map[string]memProvider),
		plans:         make(map[string]string),
		acceptances:   make(map[int64]model.AcceptanceAggregate),
		pairs:         make(map[model.PairKey]int64),
		verifications: make(map[string]model.VerificationRecord),
		votes:         make(map[int64]model.VoteRecord),
		voteKeys:      make(map[voteKey]int64),
	}
}

// clone copies the state. Record structs are copied by value; their pointer
// fields are never mutated in place.
func (s *memState) clone() *memState {
	return &memState{
		providers:        maps.Clone(s.providers),
		plans:            maps.Clone(s.plans),
		acceptances:      maps.Clone(s.acceptances),
		pairs:            maps.Clone(s.pairs),
		verifications:    maps.Clone(s.verifications),
		votes:            maps.Clone(s.votes),
		voteKeys:         maps.Clone(s.voteKeys),
		nextAcceptanceID: s.nextAcceptanceID,
		nextVoteID:       s.nextVoteID,
	}
}

// MemoryStore implements Store in process memory. Transactions run one at a
// time on a private copy of the state that replaces it on success, so
// callers observe the same atomicity as with Postgres.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState

	// TallyHook, when set, runs before every transactional TallyPair and can fail it.
	TallyHook func(npi, planID string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// AddProvider registers a provider for existence and specialty lookups.
func (m *MemoryStore) AddProvider(npi, name, specialty string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.providers[npi] = memProvider{name: name, specialty: specialty}
}

// AddPlan registers an insurance plan for existence lookups.
func (m *MemoryStore) AddPlan(planID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.plans[planID] = name
}

// PutAcceptance stores a, assigning an ID when a.ID is zero.
func (m *MemoryStore) PutAcceptance(a model.AcceptanceAggregate) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		m.state.nextAcceptanceID++
		a.ID = m.state.nextAcceptanceID
	}
	m.state.acceptances[a.ID] = a
	m.state.pairs[model.PairKey{ProviderNPI: a.ProviderNPI, PlanID: a.PlanID}] = a.ID
	return a.ID
}

// VoteCount returns the number of stored votes.
func (m *MemoryStore) VoteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.votes)
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: work, hook: m.TallyHook}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) GetAcceptance(_ context.Context, npi, planID string) (*model.AcceptanceAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.state.pairs[model.PairKey{ProviderNPI: npi, PlanID: planID}]
	if !ok {
		return nil, ErrNotFound
	}
	a := m.state.acceptances[id]
	return &a, nil
}

func (m *MemoryStore) ListAcceptancePage(_ context.Context, afterID int64, limit int) ([]model.AcceptanceAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := slices.Sorted(maps.Keys(m.state.acceptances))
	var out []model.AcceptanceAggregate
	for _, id := range ids {
		if id <= afterID {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, m.state.acceptances[id])
	}
	return out, nil
}

func (m *MemoryStore) RecentForPair(_ context.Context, npi, planID string, now time.Time, limit int) ([]model.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.recent(func(v *model.VerificationRecord) bool {
		return v.ProviderNPI == npi && v.PlanID == planID && !v.Expired(now)
	}, limit), nil
}

func (m *MemoryStore) RecentVerifications(_ context.Context, now time.Time, limit int) ([]model.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.recent(func(v *model.VerificationRecord) bool { return !v.Expired(now) }, limit), nil
}

func (s *memState) recent(keep func(*model.VerificationRecord) bool, limit int) []model.VerificationRecord {
	var out []model.VerificationRecord
	for _, v := range s.verifications {
		if keep(&v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b model.VerificationRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryStore) ProviderSpecialty(_ context.Context, npi string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.specialty(npi)
}

func (s *memState) specialty(npi string) (string, error) {
	p, ok := s.providers[npi]
	if !ok {
		return "", ErrNotFound
	}
	return p.specialty, nil
}

func (m *MemoryStore) Stats(_ context.Context, now time.Time) (model.StatsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := model.StatsResponse{
		TotalVerifications: len(m.state.verifications),
		TotalVotes:         len(m.state.votes),
		ByStatus:           make(map[string]int),
	}
	monthAgo := now.AddDate(0, 0, -30)
	for _, v := range m.state.verifications {
		if !v.Expired(now) {
			s.ActiveVerifications++
		}
		if v.CreatedAt.After(monthAgo) {
			s.Last30Days++
		}
	}
	for _, a := range m.state.acceptances {
		s.ByStatus[string(a.Status)]++
	}
	return s, nil
}

func (m *MemoryStore) CountExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.state.verifications {
		if v.Expired(now) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []model.VerificationRecord
	for _, v := range m.state.verifications {
		if v.Expired(now) {
			expired = append(expired, v)
		}
	}
	slices.SortFunc(expired, func(a, b model.VerificationRecord) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}

	for _, v := range expired {
		delete(m.state.verifications, v.ID)
		for key, voteID := range m.state.voteKeys {
			if key.verificationID == v.ID {
				delete(m.state.votes, voteID)
				delete(m.state.voteKeys, key)
			}
		}
	}
	return len(expired), nil
}

// memTx implements Tx over a private copy of the store's state.
type memTx struct {
	s    *memState
	hook func(npi, planID string) error
}

func (t *memTx) ProviderExists(_ context.Context, npi string) (bool, error) {
	_, ok := t.s.providers[npi]
	return ok, nil
}

func (t *memTx) PlanExists(_ context.Context, planID string) (bool, error) {
	_, ok := t.s.plans[planID]
	return ok, nil
}

func (t *memTx) ProviderSpecialty(_ context.Context, npi string) (string, error) {
	return t.s.specialty(npi)
}

func (t *memTx) LockAcceptance(_ context.Context, npi, planID string, now time.Time) (*model.AcceptanceAggregate, error) {
	key := model.PairKey{ProviderNPI: npi, PlanID: planID}
	id, ok := t.s.pairs[key]
	if !ok {
		t.s.nextAcceptanceID++
		id = t.s.nextAcceptanceID
		t.s.pairs[key] = id
		t.s.acceptances[id] = model.AcceptanceAggregate{
			ID:              id,
			ProviderNPI:     npi,
			PlanID:          planID,
			Status:          model.StatusUnknown,
			ConfidenceLevel: model.LevelVeryLow,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}
	a := t.s.acceptances[id]
	return &a, nil
}

func (t *memTx) LockAcceptanceByID(_ context.Context, id int64) (*model.AcceptanceAggregate, error) {
	a, ok := t.s.acceptances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (t *memTx) UpdateAcceptance(_ context.Context, a *model.AcceptanceAggregate) error {
	if _, ok := t.s.acceptances[a.ID]; !ok {
		return ErrNotFound
	}
	t.s.acceptances[a.ID] = *a
	return nil
}

func (t *memTx) HasRecentSubmission(_ context.Context, npi, planID, ipHash, contactHash string, since time.Time) (SybilMatch, error) {
	var m SybilMatch
	for _, v := range t.s.verifications {
		if v.ProviderNPI != npi || v.PlanID != planID || v.CreatedAt.Before(since) {
			continue
		}
		if v.SourceIPHash == ipHash {
			m.SameIP = true
		}
		if contactHash != "" && v.ContactHash == contactHash {
			m.SameContact = true
		}
	}
	return m, nil
}

func (t *memTx) InsertVerification(_ context.Context, v *model.VerificationRecord) error {
	if _, ok := t.s.verifications[v.ID]; ok {
		return ErrDuplicate
	}
	t.s.verifications[v.ID] = *v
	return nil
}

func (t *memTx) LockVerification(_ context.Context, id string) (*model.VerificationRecord, error) {
	v, ok := t.s.verifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *MemoryStore) TallyPair(_ context.Context, npi, planID string, now time.Time) (model.Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.tally(npi, planID, now), nil
}

func (t *memTx) TallyPair(_ context.Context, npi, planID string, now time.Time) (model.Tally, error) {
	if t.hook != nil {
		if err := t.hook(npi, planID); err != nil {
			return model.Tally{}, err
		}
	}
	return t.s.tally(npi, planID, now), nil
}

func (s *memState) tally(npi, planID string, now time.Time) model.Tally {
	var tally model.Tally
	for _, v := range s.verifications {
		if v.ProviderNPI != npi || v.PlanID != planID || v.Expired(now) {
			continue
		}
		if v.AcceptsInsurance {
			tally.Accepted++
			tally.AcceptUpvotes += v.Upvotes
			tally.AcceptDownvotes += v.Downvotes
		} else {
			tally.Rejected++
			tally.RejectUpvotes += v.Upvotes
			tally.RejectDownvotes += v.Downvotes
		}
		if tally.LastVerifiedAt == nil || v.CreatedAt.After(*tally.LastVerifiedAt) {
			created := v.CreatedAt
			tally.LastVerifiedAt = &created
		}
	}
	return tally
}

func (t *memTx) GetVote(_ context.Context, verificationID, ipHash string) (*model.VoteRecord, error) {
	id, ok := t.s.voteKeys[voteKey{verificationID, ipHash}]
	if !ok {
		return nil, ErrNotFound
	}
	v := t.s.votes[id]
	return &v, nil
}

func (t *memTx) InsertVote(_ context.Context, v *model.VoteRecord) error {
	key := voteKey{v.VerificationID, v.SourceIPHash}
	if _, ok := t.s.voteKeys[key]; ok {
		return ErrDuplicate
	}
	t.s.nextVoteID++
	v.ID = t.s.nextVoteID
	t.s.votes[v.ID] = *v
	t.s.voteKeys[key] = v.ID
	return nil
}

func (t *memTx) UpdateVoteDirection(_ context.Context, id int64, dir model.VoteDirection, now time.Time) error {
	v, ok := t.s.votes[id]
	if !ok {
		return ErrNotFound
	}
	v.Direction = dir
	v.UpdatedAt = now
	t.s.votes[id] = v
	return nil
}

func (t *memTx) AdjustVoteCounts(_ context.Context, verificationID string, dUp, dDown int) (int, int, error) {
	v, ok := t.s.verifications[verificationID]
	if !ok {
		return 0, 0, ErrNotFound
	}
	v.Upvotes += dUp
	v.Downvotes += dDown
	t.s.verifications[verificationID] = v
	return v.Upvotes, v.Downvotes, nil
}
