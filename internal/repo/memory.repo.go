package repo

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"founding-members/internal/domain"
)

// The in-memory repositories enforce the same uniqueness rules as the
// Postgres schema. They back the simulator, local runs and unit tests.

type memoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[string]domain.PendingOrder
}

func NewMemoryOrderRepo() OrderRepo {
	return &memoryOrderRepo{orders: make(map[string]domain.PendingOrder)}
}

func (r *memoryOrderRepo) CreateOrder(_ context.Context, _ *sql.Tx, order *domain.PendingOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.GatewayOrderID]; !exists {
		r.orders[order.GatewayOrderID] = *order
	}
	return nil
}

func (r *memoryOrderRepo) FindById(_ context.Context, id string) (*domain.PendingOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *memoryOrderRepo) UpdateOrderStatus(_ context.Context, _ *sql.Tx, id string, status domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		o.Status = status
		r.orders[id] = o
	}
	return nil
}

type memoryPayment struct {
	payment domain.Payment
	channel Channel
}

type memoryPaymentRepo struct {
	mu       sync.RWMutex
	payments map[string]memoryPayment
}

func NewMemoryPaymentRepo() PaymentRepo {
	return &memoryPaymentRepo{payments: make(map[string]memoryPayment)}
}

func (r *memoryPaymentRepo) RecordPayment(_ context.Context, _ *sql.Tx, _ string, p *domain.Payment, channel Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[p.ID]; !exists {
		r.payments[p.ID] = memoryPayment{payment: *p, channel: channel}
	}
	return nil
}

func (r *memoryPaymentRepo) FindById(_ context.Context, id string) (*domain.Payment, Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mp, ok := r.payments[id]
	if !ok {
		return nil, "", nil
	}
	p := mp.payment
	return &p, mp.channel, nil
}

type memoryMembershipRepo struct {
	mu        sync.RWMutex
	members   map[string]domain.FoundingMember
	numbers   map[string]string
	sequences map[int]int64
}

func NewMemoryMembershipRepo() MembershipRepo {
	return &memoryMembershipRepo{
		members:   make(map[string]domain.FoundingMember),
		numbers:   make(map[string]string),
		sequences: make(map[int]int64),
	}
}

func (r *memoryMembershipRepo) FindByUserId(_ context.Context, userID string) (*domain.FoundingMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[userID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *memoryMembershipRepo) Create(ctx context.Context, m *domain.FoundingMember, year int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[m.UserID]; exists {
		return ErrAlreadyMember
	}
	seq, ok := r.sequences[year]
	if !ok {
		seq = domain.FirstMemberSequence - 1
	}
	seq++
	number := domain.FormatMemberNumber(year, seq)
	if _, taken := r.numbers[number]; taken {
		r.sequences[year] = seq
		return ErrMemberNumberTaken
	}

	r.sequences[year] = seq
	m.MemberNumber = number
	r.members[m.UserID] = *m
	r.numbers[number] = m.UserID
	return nil
}

func (r *memoryMembershipRepo) ListByYear(_ context.Context, year int) ([]domain.FoundingMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type entry struct {
		seq int64
		m   domain.FoundingMember
	}
	var entries []entry
	for _, m := range r.members {
		y, seq, err := domain.ParseMemberNumber(m.MemberNumber)
		if err != nil || y != year {
			continue
		}
		entries = append(entries, entry{seq, m})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	members := make([]domain.FoundingMember, 0, len(entries))
	for _, e := range entries {
		members = append(members, e.m)
	}
	return members, nil
}

type memorySubscriptionRepo struct {
	mu   sync.RWMutex
	subs map[string]domain.Subscription
}

func NewMemorySubscriptionRepo() SubscriptionRepo {
	return &memorySubscriptionRepo{subs: make(map[string]domain.Subscription)}
}

func (r *memorySubscriptionRepo) CreateSubscription(_ context.Context, s *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subs[s.GatewaySubscriptionID]; !exists {
		r.subs[s.GatewaySubscriptionID] = *s
	}
	return nil
}

func (r *memorySubscriptionRepo) FindById(_ context.Context, id string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type memoryProfileRepo struct {
	mu       sync.RWMutex
	profiles map[string]domain.UserProfile
}

func NewMemoryProfileRepo() ProfileRepo {
	return &memoryProfileRepo{profiles: make(map[string]domain.UserProfile)}
}

func (r *memoryProfileRepo) FindByUserId(_ context.Context, userID string) (*domain.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memoryProfileRepo) MarkFoundingMember(_ context.Context, userID, memberNumber string, purchasedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profiles[userID]
	p.UserID = userID
	p.IsPremium = true
	p.IsFoundingMember = true
	p.FoundingMemberNumber = memberNumber
	p.LifetimeAccess = true
	p.PurchasedDate = &purchasedAt
	r.profiles[userID] = p
	return nil
}
