package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cicconel11/TeamNetwork-sub008/internal/gateway"
	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/redis"
)

// memoryAttempts mirrors the conditional-update semantics of the postgres store.
type memoryAttempts struct {
	mu      sync.Mutex
	byID    map[string]*models.PaymentAttempt
	byKey   map[string]string
	seq     int
	now     func() time.Time
	ensures int
	// updateErrs fail the next UpdateAttempt calls in order.
	updateErrs []error
}

func newMemoryAttempts() *memoryAttempts {
	return &memoryAttempts{
		byID:  map[string]*models.PaymentAttempt{},
		byKey: map[string]string{},
		now:   time.Now,
	}
}

func copyAttempt(a *models.PaymentAttempt) *models.PaymentAttempt {
	cp := *a
	if a.ClaimedAt != nil {
		t := *a.ClaimedAt
		cp.ClaimedAt = &t
	}
	return &cp
}

func (m *memoryAttempts) EnsureAttempt(_ context.Context, p models.EnsureAttemptParams) (*models.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensures++

	if p.AttemptID != "" {
		a, ok := m.byID[p.AttemptID]
		if !ok {
			return nil, fmt.Errorf("attempt %s: %w", p.AttemptID, models.ErrNotFound)
		}
		return copyAttempt(a), nil
	}
	if p.IdempotencyKey != "" {
		if id, ok := m.byKey[p.IdempotencyKey]; ok {
			return copyAttempt(m.byID[id]), nil
		}
	}

	m.seq++
	f := p.Fields
	a := &models.PaymentAttempt{
		ID:                 fmt.Sprintf("att-%d", m.seq),
		IdempotencyKey:     p.IdempotencyKey,
		FlowType:           f.FlowType,
		AmountCents:        f.AmountCents,
		PlatformFeeCents:   f.PlatformFeeCents,
		Currency:           f.Currency,
		OrganizationID:     f.OrganizationID,
		ConnectedAccountID: f.ConnectedAccountID,
		TargetEntityID:     f.TargetEntityID,
		Purpose:            f.Purpose,
		RequestFingerprint: f.Fingerprint,
		Status:             models.AttemptStatusInitiated,
		Metadata:           f.Metadata,
		CreatedAt:          m.now(),
		UpdatedAt:          m.now(),
	}
	m.byID[a.ID] = a
	if p.IdempotencyKey != "" {
		m.byKey[p.IdempotencyKey] = a.ID
	}
	return copyAttempt(a), nil
}

func (m *memoryAttempts) ClaimAttempt(_ context.Context, attempt *models.PaymentAttempt, p models.ClaimParams) (*models.PaymentAttempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[attempt.ID]
	if !ok {
		return nil, false, models.ErrNotFound
	}
	if a.RequestFingerprint != p.Fingerprint || a.AmountCents != p.AmountCents ||
		a.Currency != p.Currency || a.ConnectedAccountID != p.ConnectedAccountID {
		return nil, false, models.ErrIdempotencyConflict
	}

	now := m.now()
	noResource := a.ProviderPaymentIntentID == "" && a.ProviderCheckoutSessionID == "" && a.ProviderSubscriptionID == ""
	stale := a.ClaimedAt == nil || a.ClaimedAt.Before(now.Add(-p.Lease))
	if a.Status == models.AttemptStatusInitiated || (a.Status == models.AttemptStatusClaimed && noResource && stale) {
		a.Status = models.AttemptStatusClaimed
		a.ClaimedAt = &now
		return copyAttempt(a), true, nil
	}
	return copyAttempt(a), false, nil
}

func (m *memoryAttempts) UpdateAttempt(_ context.Context, id string, u models.AttemptUpdate) (*models.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.updateErrs) > 0 {
		err := m.updateErrs[0]
		m.updateErrs = m.updateErrs[1:]
		return nil, err
	}
	a, ok := m.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&a.ProviderPaymentIntentID, u.PaymentIntentID)
	fill(&a.ProviderCheckoutSessionID, u.CheckoutSessionID)
	fill(&a.CheckoutURL, u.CheckoutURL)
	fill(&a.ClientSecret, u.ClientSecret)
	fill(&a.ProviderSubscriptionID, u.SubscriptionID)
	if u.Status != nil {
		for _, src := range models.AllowedSources(*u.Status) {
			if a.Status == src {
				a.Status = *u.Status
				break
			}
		}
	}
	if u.LastError != nil {
		a.LastError = *u.LastError
	}
	if u.ReleaseClaim {
		a.ClaimedAt = nil
	}
	a.UpdatedAt = m.now()
	return copyAttempt(a), nil
}

func (m *memoryAttempts) GetAttempt(_ context.Context, id string) (*models.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("attempt %s: %w", id, models.ErrNotFound)
	}
	return copyAttempt(a), nil
}

func (m *memoryAttempts) FindAttemptByProviderRef(_ context.Context, ref models.ProviderRef) (*models.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if (ref.PaymentIntentID != "" && a.ProviderPaymentIntentID == ref.PaymentIntentID) ||
			(ref.CheckoutSessionID != "" && a.ProviderCheckoutSessionID == ref.CheckoutSessionID) ||
			(ref.SubscriptionID != "" && a.ProviderSubscriptionID == ref.SubscriptionID) {
			return copyAttempt(a), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memoryAttempts) setNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *memoryAttempts) ensureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensures
}

func (m *memoryAttempts) byKeyAttempt(key string) *models.PaymentAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[key]; ok {
		return copyAttempt(m.byID[id])
	}
	return nil
}

type memoryOrgs struct {
	orgs map[string]*models.Organization
}

func newMemoryOrgs(orgs ...*models.Organization) *memoryOrgs {
	m := &memoryOrgs{orgs: map[string]*models.Organization{}}
	for _, o := range orgs {
		m.orgs[o.ID] = o
	}
	return m
}

func (m *memoryOrgs) GetByID(_ context.Context, id string) (*models.Organization, error) {
	if o, ok := m.orgs[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, models.ErrNotFound
}

func (m *memoryOrgs) GetBySlug(_ context.Context, slug string) (*models.Organization, error) {
	for _, o := range m.orgs {
		if o.Slug == slug {
			cp := *o
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

// fakeGateway behaves like the provider's idempotency: the same token
// always yields the same object.
type fakeGateway struct {
	mu            sync.Mutex
	delay         time.Duration
	account       models.AccountStatus
	accountErr    error
	failures      []error
	subscription  *gateway.SubscriptionResult
	calls         map[string]int
	tokens        []string
	sessions      map[string]*gateway.CheckoutSessionResult
	intents       map[string]*gateway.PaymentIntentResult
	lastCheckout  gateway.CheckoutSessionParams
	lastIntent    gateway.PaymentIntentParams
	lastSubUpdate gateway.SubscriptionUpdateParams
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		account:  models.AccountStatus{AccountID: "acct_1", ChargesEnabled: true, DetailsSubmitted: true},
		calls:    map[string]int{},
		sessions: map[string]*gateway.CheckoutSessionResult{},
		intents:  map[string]*gateway.PaymentIntentResult{},
	}
}

func (g *fakeGateway) callCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// begin records a call and pops a queued failure.
func (g *fakeGateway) begin(ctx context.Context, op, token string) error {
	g.mu.Lock()
	g.calls[op]++
	if token != "" {
		g.tokens = append(g.tokens, token)
	}
	var err error
	if len(g.failures) > 0 {
		err, g.failures = g.failures[0], g.failures[1:]
	}
	delay := g.delay
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, p gateway.CheckoutSessionParams) (*gateway.CheckoutSessionResult, error) {
	if err := g.begin(ctx, "checkout", p.IdempotencyKey); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastCheckout = p
	if s, ok := g.sessions[p.IdempotencyKey]; ok {
		return s, nil
	}
	id := fmt.Sprintf("cs_test_%d", len(g.sessions)+1)
	s := &gateway.CheckoutSessionResult{ID: id, URL: "https://checkout.example/" + id}
	g.sessions[p.IdempotencyKey] = s
	return s, nil
}

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, p gateway.PaymentIntentParams) (*gateway.PaymentIntentResult, error) {
	if err := g.begin(ctx, "payment_intent", p.IdempotencyKey); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastIntent = p
	if pi, ok := g.intents[p.IdempotencyKey]; ok {
		return pi, nil
	}
	id := fmt.Sprintf("pi_test_%d", len(g.intents)+1)
	pi := &gateway.PaymentIntentResult{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}
	g.intents[p.IdempotencyKey] = pi
	return pi, nil
}

func (g *fakeGateway) GetSubscription(ctx context.Context, _, subscriptionID string) (*gateway.SubscriptionResult, error) {
	if err := g.begin(ctx, "get_subscription", ""); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subscription == nil {
		return nil, &models.GatewayError{Op: "retrieve subscription", UserFacing: true, Err: fmt.Errorf("no such subscription %s", subscriptionID)}
	}
	cp := *g.subscription
	return &cp, nil
}

func (g *fakeGateway) UpdateSubscription(ctx context.Context, p gateway.SubscriptionUpdateParams) (*gateway.SubscriptionResult, error) {
	if err := g.begin(ctx, "update_subscription", p.IdempotencyKey); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSubUpdate = p
	return &gateway.SubscriptionResult{ID: p.SubscriptionID, Status: "active", FirstItemID: p.ItemID, PriceID: p.PriceID}, nil
}

func (g *fakeGateway) GetAccountStatus(ctx context.Context, accountID string) (*models.AccountStatus, error) {
	g.mu.Lock()
	g.calls["account"]++
	err := g.accountErr
	status := g.account
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	status.AccountID = accountID
	return &status, nil
}

type memoryLedger struct {
	mu     sync.Mutex
	events map[string]*models.ProcessedEvent
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{events: map[string]*models.ProcessedEvent{}}
}

func (l *memoryLedger) RegisterEvent(_ context.Context, eventID, eventType string, snapshot []byte) (*models.ProcessedEvent, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev, ok := l.events[eventID]
	if !ok {
		ev = &models.ProcessedEvent{EventID: eventID, Type: eventType, PayloadSnapshot: snapshot, ReceivedAt: time.Now()}
		l.events[eventID] = ev
	}
	ev.DeliveryCount++
	cp := *ev
	return &cp, ev.ProcessedAt != nil, nil
}

func (l *memoryLedger) MarkProcessed(_ context.Context, eventID string, outcome models.EventOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev, ok := l.events[eventID]
	if !ok {
		return models.ErrNotFound
	}
	if ev.ProcessedAt == nil {
		now := time.Now()
		ev.ProcessedAt = &now
		ev.Outcome = outcome
	}
	return nil
}

func (l *memoryLedger) get(eventID string) *models.ProcessedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ev, ok := l.events[eventID]; ok {
		cp := *ev
		return &cp
	}
	return nil
}

// memoryRecords applies the same sticky-success and count-once rules as
// the postgres record store.
type memoryRecords struct {
	mu            sync.Mutex
	donations     map[string]*models.Donation
	subscriptions map[string]*models.Subscription
	stats         map[string]*models.DonationStats
	failNext      error
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{
		donations:     map[string]*models.Donation{},
		subscriptions: map[string]*models.Subscription{},
		stats:         map[string]*models.DonationStats{},
	}
}

func (r *memoryRecords) UpsertDonation(_ context.Context, d *models.Donation) (*models.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		return nil, err
	}

	key := d.OrganizationID + "|" + d.ProviderPaymentIntentID
	cur, ok := r.donations[key]
	if !ok {
		cp := *d
		cp.ID = fmt.Sprintf("don-%d", len(r.donations)+1)
		cur = &cp
		r.donations[key] = cur
	} else {
		if cur.Status != models.DonationStatusSucceeded {
			cur.Status = d.Status
		}
		if cur.CountedAt == nil && d.AmountCents > 0 {
			cur.AmountCents = d.AmountCents
		}
		if cur.PaymentAttemptID == "" {
			cur.PaymentAttemptID = d.PaymentAttemptID
		}
		if cur.ProviderCheckoutSessionID == "" {
			cur.ProviderCheckoutSessionID = d.ProviderCheckoutSessionID
		}
	}

	if cur.Status == models.DonationStatusSucceeded && cur.CountedAt == nil {
		now := time.Now()
		cur.CountedAt = &now
		st, ok := r.stats[cur.OrganizationID]
		if !ok {
			st = &models.DonationStats{OrganizationID: cur.OrganizationID}
			r.stats[cur.OrganizationID] = st
		}
		st.TotalCents += cur.AmountCents
		st.DonationCount++
	}
	cp := *cur
	return &cp, nil
}

func (r *memoryRecords) UpsertSubscription(_ context.Context, s *models.Subscription) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		return nil, err
	}

	key := s.OrganizationID + "|" + s.ProviderSubscriptionID
	cur, ok := r.subscriptions[key]
	if !ok {
		cp := *s
		cur = &cp
		r.subscriptions[key] = cur
	} else if !s.LastEventAt.Before(cur.LastEventAt) {
		cur.Status = s.Status
		cur.LastEventAt = s.LastEventAt
		if s.LatestInvoiceID != "" {
			cur.LatestInvoiceID = s.LatestInvoiceID
		}
	}
	cp := *cur
	return &cp, nil
}

func (r *memoryRecords) FindSubscriptionByProviderID(_ context.Context, subscriptionID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subscriptions {
		if s.ProviderSubscriptionID == subscriptionID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memoryRecords) donation(orgID, paymentIntentID string) *models.Donation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.donations[orgID+"|"+paymentIntentID]; ok {
		cp := *d
		return &cp
	}
	return nil
}

func (r *memoryRecords) statsFor(orgID string) models.DonationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stats[orgID]; ok {
		return *st
	}
	return models.DonationStats{OrganizationID: orgID}
}

// memoryKV stands in for redis in cache tests.
type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (kv *memoryKV) Get(_ context.Context, key string) (string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.err != nil {
		return "", kv.err
	}
	v, ok := kv.data[key]
	if !ok {
		return "", redis.ErrCacheMiss
	}
	return v, nil
}

func (kv *memoryKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.err != nil {
		return kv.err
	}
	if kv.data == nil {
		kv.data = map[string]string{}
	}
	switch v := value.(type) {
	case []byte:
		kv.data[key] = string(v)
	default:
		kv.data[key] = fmt.Sprint(v)
	}
	return nil
}
