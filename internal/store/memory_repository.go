package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bookpay/settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryRepository is an in-process Repository. It keeps the same uniqueness and
// forward-only rules as the Postgres schema and counts every write, which makes it the
// backing store for handler and reconciler tests.
type MemoryRepository struct {
	mutex sync.Mutex
	now   func() time.Time

	bookings             map[uuid.UUID]*domain.Booking
	businesses           map[uuid.UUID]*domain.Business
	clientTransactions   []*domain.ClientBusinessTransaction
	ledger               []*domain.PaymentTransaction
	revenue              map[string]*domain.RevenueEntry
	clients              []*domain.Client
	subscriptions        map[uuid.UUID]*domain.Subscription
	subscriptionPayments []*domain.SubscriptionPayment
	settlements          map[string]*domain.Settlement
	outbox               []*memoryOutboxRow
	securityEvents       []*domain.SecurityEvent
	allowedOrigins       []string

	writes int

	// FailNext makes the next call of the named method return the error once.
	failNext map[string]error
}

type memoryOutboxRow struct {
	msg           domain.OutboxMessage
	status        string
	nextAttemptAt time.Time
	lastError     string
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:           time.Now,
		bookings:      make(map[uuid.UUID]*domain.Booking),
		businesses:    make(map[uuid.UUID]*domain.Business),
		revenue:       make(map[string]*domain.RevenueEntry),
		subscriptions: make(map[uuid.UUID]*domain.Subscription),
		settlements:   make(map[string]*domain.Settlement),
		failNext:      make(map[string]error),
	}
}

// WithClock swaps the repository's time source.
func (m *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	m.now = now
	return m
}

// FailNext arms a one-shot failure for the named repository method.
func (m *MemoryRepository) FailNext(method string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failNext[method] = err
}

func (m *MemoryRepository) takeFailure(method string) error {
	if err, ok := m.failNext[method]; ok {
		delete(m.failNext, method)
		return err
	}
	return nil
}

// Seed helpers. They do not count as writes.

func (m *MemoryRepository) SeedBooking(b domain.Booking) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	copyB := b
	m.bookings[b.ID] = &copyB
}

func (m *MemoryRepository) SeedBusiness(b domain.Business) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	copyB := b
	m.businesses[b.ID] = &copyB
}

func (m *MemoryRepository) SeedClient(c domain.Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	copyC := c
	copyC.Email = strings.ToLower(copyC.Email)
	m.clients = append(m.clients, &copyC)
}

func (m *MemoryRepository) SeedClientTransaction(tx domain.ClientBusinessTransaction) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	copyTx := tx
	m.clientTransactions = append(m.clientTransactions, &copyTx)
}

func (m *MemoryRepository) SetAllowedOrigins(origins []string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.allowedOrigins = append([]string(nil), origins...)
}

// Inspection helpers.

// Writes returns how many mutating calls succeeded, security events excluded.
func (m *MemoryRepository) Writes() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.writes
}

func (m *MemoryRepository) Booking(id uuid.UUID) domain.Booking {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if b, ok := m.bookings[id]; ok {
		return *b
	}
	return domain.Booking{}
}

func (m *MemoryRepository) LedgerEntries() []domain.PaymentTransaction {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]domain.PaymentTransaction, 0, len(m.ledger))
	for _, e := range m.ledger {
		out = append(out, *e)
	}
	return out
}

func (m *MemoryRepository) Clients() []domain.Client {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]domain.Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, *c)
	}
	return out
}

func (m *MemoryRepository) ClientTransactions() []domain.ClientBusinessTransaction {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]domain.ClientBusinessTransaction, 0, len(m.clientTransactions))
	for _, tx := range m.clientTransactions {
		out = append(out, *tx)
	}
	return out
}

func (m *MemoryRepository) SubscriptionPayments() []domain.SubscriptionPayment {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]domain.SubscriptionPayment, 0, len(m.subscriptionPayments))
	for _, p := range m.subscriptionPayments {
		out = append(out, *p)
	}
	return out
}

func (m *MemoryRepository) Revenue() []domain.RevenueEntry {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]domain.RevenueEntry, 0, len(m.revenue))
	for _, r := range m.revenue {
		out = append(out, *r)
	}
	return out
}

func (m *MemoryRepository) SecurityEvents() []domain.SecurityEvent {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]domain.SecurityEvent, 0, len(m.securityEvents))
	for _, e := range m.securityEvents {
		out = append(out, *e)
	}
	return out
}

// SecurityEventCount counts audit rows of the given type.
func (m *MemoryRepository) SecurityEventCount(eventType string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := 0
	for _, e := range m.securityEvents {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// OutboxRoutingKeys lists the routing keys of every enqueued message, published or not.
func (m *MemoryRepository) OutboxRoutingKeys() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	keys := make([]string, 0, len(m.outbox))
	for _, row := range m.outbox {
		keys = append(keys, row.msg.RoutingKey)
	}
	return keys
}

// OutboxStatus returns the delivery status of an outbox message.
func (m *MemoryRepository) OutboxStatus(id int64) string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, row := range m.outbox {
		if row.msg.ID == id {
			return row.status
		}
	}
	return ""
}

// ExpireSettlementLease makes a processing settlement look abandoned.
func (m *MemoryRepository) ExpireSettlementLease(reference string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if s, ok := m.settlements[reference]; ok {
		past := m.now().Add(-time.Second)
		s.LeaseUntil = &past
	}
}

// Repository implementation.

func (m *MemoryRepository) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("FindBookingByID"); err != nil {
		return nil, err
	}
	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, ErrBookingNotFound
	}
	out := *b
	return &out, nil
}

func (m *MemoryRepository) ConfirmBookingPayment(ctx context.Context, bookingID uuid.UUID, reference string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("ConfirmBookingPayment"); err != nil {
		return false, err
	}
	b, ok := m.bookings[bookingID]
	if !ok || b.PaymentStatus == domain.PaymentStatusCompleted {
		return false, nil
	}
	b.Status, b.PaymentStatus, _ = b.ConfirmTransition()
	ref := reference
	b.PaymentReference = &ref
	b.UpdatedAt = m.now()
	m.writes++
	return true, nil
}

func (m *MemoryRepository) FindBusinessByID(ctx context.Context, businessID uuid.UUID) (*domain.Business, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("FindBusinessByID"); err != nil {
		return nil, err
	}
	b, ok := m.businesses[businessID]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	out := *b
	return &out, nil
}

func (m *MemoryRepository) CreateClientTransaction(ctx context.Context, tx *domain.ClientBusinessTransaction) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("CreateClientTransaction"); err != nil {
		return err
	}
	for _, existing := range m.clientTransactions {
		if existing.PaymentReference == tx.PaymentReference {
			return ErrDuplicateReference
		}
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	now := m.now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	copyTx := *tx
	m.clientTransactions = append(m.clientTransactions, &copyTx)
	m.writes++
	return nil
}

func (m *MemoryRepository) FindClientTransactionByReference(ctx context.Context, paymentReference string) (*domain.ClientBusinessTransaction, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, tx := range m.clientTransactions {
		if tx.PaymentReference == paymentReference || (tx.PaystackReference != nil && *tx.PaystackReference == paymentReference) {
			out := *tx
			return &out, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *MemoryRepository) FindClientTransactionByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.ClientBusinessTransaction, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("FindClientTransactionByBookingID"); err != nil {
		return nil, err
	}
	var found *domain.ClientBusinessTransaction
	for _, tx := range m.clientTransactions {
		if tx.BookingID == bookingID && (found == nil || !tx.CreatedAt.Before(found.CreatedAt)) {
			found = tx
		}
	}
	if found == nil {
		return nil, ErrTransactionNotFound
	}
	out := *found
	return &out, nil
}

func (m *MemoryRepository) CompleteClientTransaction(ctx context.Context, transactionID uuid.UUID, paystackReference string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("CompleteClientTransaction"); err != nil {
		return false, err
	}
	for _, tx := range m.clientTransactions {
		if tx.ID == transactionID && tx.Status != domain.PaymentStatusCompleted {
			tx.Status = domain.PaymentStatusCompleted
			ref := paystackReference
			tx.PaystackReference = &ref
			tx.UpdatedAt = m.now()
			m.writes++
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) FailClientTransaction(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, tx := range m.clientTransactions {
		if tx.ID == transactionID && tx.Status == domain.PaymentStatusPending {
			tx.Status = domain.PaymentStatusFailed
			tx.UpdatedAt = m.now()
			m.writes++
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) FlagClientTransactionForReview(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("FlagClientTransactionForReview"); err != nil {
		return false, err
	}
	for _, tx := range m.clientTransactions {
		if tx.ID == transactionID && tx.Status == domain.PaymentStatusPending {
			tx.Status = domain.PaymentStatusNeedsReview
			tx.UpdatedAt = m.now()
			m.writes++
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) ListStalePendingClientTransactions(ctx context.Context, createdBefore time.Time, limit int) ([]domain.ClientBusinessTransaction, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var out []domain.ClientBusinessTransaction
	for _, tx := range m.clientTransactions {
		if tx.Status == domain.PaymentStatusPending && tx.CreatedAt.Before(createdBefore) {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) InsertLedgerEntry(ctx context.Context, entry *domain.PaymentTransaction) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("InsertLedgerEntry"); err != nil {
		return false, err
	}
	for _, existing := range m.ledger {
		if existing.PaystackReference == entry.PaystackReference {
			return false, nil
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = m.now()
	copyEntry := *entry
	m.ledger = append(m.ledger, &copyEntry)
	m.writes++
	return true, nil
}

func (m *MemoryRepository) AddBusinessRevenue(ctx context.Context, entry domain.RevenueEntry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("AddBusinessRevenue"); err != nil {
		return err
	}
	key := entry.BusinessID.String() + "|" + entry.Period.Format("2006-01-02")
	bucket, ok := m.revenue[key]
	if !ok {
		bucket = &domain.RevenueEntry{BusinessID: entry.BusinessID, Period: entry.Period}
		m.revenue[key] = bucket
	}
	bucket.GrossAmount = bucket.GrossAmount.Add(entry.GrossAmount)
	bucket.PlatformFees = bucket.PlatformFees.Add(entry.PlatformFees)
	bucket.NetAmount = bucket.NetAmount.Add(entry.NetAmount)
	bucket.PaymentCount += entry.PaymentCount
	bucket.LastReference = entry.LastReference
	m.writes++
	return nil
}

func (m *MemoryRepository) RecordClientPayment(ctx context.Context, client domain.Client, amount decimal.Decimal, bookedAt time.Time) (*domain.Client, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("RecordClientPayment"); err != nil {
		return nil, err
	}
	email := strings.ToLower(client.Email)
	now := m.now()
	for _, existing := range m.clients {
		if existing.BusinessID == client.BusinessID && existing.Email == email {
			return m.addClientSpend(existing, amount, bookedAt), nil
		}
	}
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	booked := bookedAt
	created := client
	created.Email = email
	created.Status = domain.ClientStatusActive
	created.TotalSpent = amount
	created.LastBookingDate = &booked
	created.CreatedAt, created.UpdatedAt = now, now
	m.clients = append(m.clients, &created)
	m.writes++
	out := created
	return &out, nil
}

func (m *MemoryRepository) RecordClientPaymentByID(ctx context.Context, businessID, clientID uuid.UUID, amount decimal.Decimal, bookedAt time.Time) (*domain.Client, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("RecordClientPaymentByID"); err != nil {
		return nil, err
	}
	for _, existing := range m.clients {
		if existing.ID == clientID && existing.BusinessID == businessID {
			return m.addClientSpend(existing, amount, bookedAt), nil
		}
	}
	return nil, ErrClientNotFound
}

// addClientSpend must be called with the mutex held.
func (m *MemoryRepository) addClientSpend(existing *domain.Client, amount decimal.Decimal, bookedAt time.Time) *domain.Client {
	existing.TotalSpent = existing.TotalSpent.Add(amount)
	existing.Status = domain.ClientStatusActive
	if existing.LastBookingDate == nil || bookedAt.After(*existing.LastBookingDate) {
		booked := bookedAt
		existing.LastBookingDate = &booked
	}
	existing.UpdatedAt = m.now()
	m.writes++
	out := *existing
	return &out
}

func (m *MemoryRepository) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("UpsertSubscription"); err != nil {
		return err
	}
	now := m.now()
	if existing, ok := m.subscriptions[sub.BusinessID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		if sub.ID == uuid.Nil {
			sub.ID = uuid.New()
		}
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	copySub := *sub
	m.subscriptions[sub.BusinessID] = &copySub
	m.writes++
	return nil
}

func (m *MemoryRepository) FindSubscriptionByBusinessID(ctx context.Context, businessID uuid.UUID) (*domain.Subscription, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	sub, ok := m.subscriptions[businessID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	out := *sub
	return &out, nil
}

func (m *MemoryRepository) CreateSubscriptionPayment(ctx context.Context, payment *domain.SubscriptionPayment) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("CreateSubscriptionPayment"); err != nil {
		return err
	}
	for _, existing := range m.subscriptionPayments {
		if existing.PaystackReference == payment.PaystackReference {
			return ErrDuplicateReference
		}
	}
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	now := m.now()
	payment.CreatedAt, payment.UpdatedAt = now, now
	copyPayment := *payment
	m.subscriptionPayments = append(m.subscriptionPayments, &copyPayment)
	m.writes++
	return nil
}

func (m *MemoryRepository) CompleteSubscriptionPayment(ctx context.Context, paystackReference string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("CompleteSubscriptionPayment"); err != nil {
		return false, err
	}
	for _, p := range m.subscriptionPayments {
		if p.PaystackReference == paystackReference && p.Status != domain.PaymentStatusCompleted {
			p.Status = domain.PaymentStatusCompleted
			p.UpdatedAt = m.now()
			m.writes++
			return true, nil
		}
	}
	return false, nil
}

func cloneSettlement(s *domain.Settlement) *domain.Settlement {
	out := *s
	out.CompletedSteps = append([]string(nil), s.CompletedSteps...)
	out.Payload = append([]byte(nil), s.Payload...)
	return &out
}

func (m *MemoryRepository) ClaimSettlement(ctx context.Context, settlement domain.Settlement, lease time.Duration) (*domain.Settlement, domain.ClaimOutcome, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("ClaimSettlement"); err != nil {
		return nil, "", err
	}
	now := m.now()
	leaseUntil := now.Add(lease)

	existing, ok := m.settlements[settlement.Reference]
	if !ok {
		payload := settlement.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		created := &domain.Settlement{
			Reference:   settlement.Reference,
			PaymentType: settlement.PaymentType,
			Payload:     append([]byte(nil), payload...),
			Status:      domain.SettlementStatusProcessing,
			Attempts:    1,
			LeaseUntil:  &leaseUntil,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		m.settlements[settlement.Reference] = created
		m.writes++
		return cloneSettlement(created), domain.ClaimAcquired, nil
	}

	switch {
	case existing.Status == domain.SettlementStatusCompleted:
		return cloneSettlement(existing), domain.ClaimCompleted, nil
	case existing.Status == domain.SettlementStatusPartial,
		existing.Status == domain.SettlementStatusProcessing && existing.LeaseUntil != nil && existing.LeaseUntil.Before(now):
		existing.Status = domain.SettlementStatusProcessing
		existing.Attempts++
		existing.LeaseUntil = &leaseUntil
		existing.UpdatedAt = now
		m.writes++
		return cloneSettlement(existing), domain.ClaimAcquired, nil
	default:
		return cloneSettlement(existing), domain.ClaimInProgress, nil
	}
}

func (m *MemoryRepository) MarkSettlementStep(ctx context.Context, reference string, step string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("MarkSettlementStep"); err != nil {
		return err
	}
	s, ok := m.settlements[reference]
	if !ok {
		return ErrSettlementNotFound
	}
	if !s.HasStep(step) {
		s.CompletedSteps = append(s.CompletedSteps, step)
		s.UpdatedAt = m.now()
		m.writes++
	}
	return nil
}

func (m *MemoryRepository) FinishSettlement(ctx context.Context, reference string, status domain.SettlementStatus, lastError *string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("FinishSettlement"); err != nil {
		return err
	}
	s, ok := m.settlements[reference]
	if !ok {
		return ErrSettlementNotFound
	}
	s.Status = status
	s.LastError = lastError
	s.LeaseUntil = nil
	s.UpdatedAt = m.now()
	m.writes++
	return nil
}

func (m *MemoryRepository) FindSettlement(ctx context.Context, reference string) (*domain.Settlement, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	s, ok := m.settlements[reference]
	if !ok {
		return nil, ErrSettlementNotFound
	}
	return cloneSettlement(s), nil
}

func (m *MemoryRepository) ListResumableSettlements(ctx context.Context, limit int) ([]domain.Settlement, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := m.now()
	var out []domain.Settlement
	for _, s := range m.settlements {
		expired := s.Status == domain.SettlementStatusProcessing && s.LeaseUntil != nil && s.LeaseUntil.Before(now)
		if s.Status == domain.SettlementStatusPartial || expired {
			out = append(out, *cloneSettlement(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) EnqueueOutboxEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("EnqueueOutboxEvent"); err != nil {
		return err
	}
	now := m.now()
	m.outbox = append(m.outbox, &memoryOutboxRow{
		msg: domain.OutboxMessage{
			ID:         int64(len(m.outbox) + 1),
			Exchange:   strings.TrimSpace(exchange),
			RoutingKey: strings.TrimSpace(routingKey),
			Payload:    blob,
			CreatedAt:  now,
		},
		status:        "pending",
		nextAttemptAt: now,
	})
	m.writes++
	return nil
}

func (m *MemoryRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]domain.OutboxMessage, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := m.now()
	var out []domain.OutboxMessage
	for _, row := range m.outbox {
		if limit > 0 && len(out) >= limit {
			break
		}
		if row.status == "pending" && !row.nextAttemptAt.After(now) {
			row.status = "processing"
			row.msg.Attempts++
			out = append(out, row.msg)
		}
	}
	return out, nil
}

func (m *MemoryRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, row := range m.outbox {
		if row.msg.ID == id {
			row.status = "published"
			row.lastError = ""
		}
	}
	return nil
}

func (m *MemoryRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, row := range m.outbox {
		if row.msg.ID == id {
			row.status = "pending"
			row.nextAttemptAt = m.now().Add(time.Duration(retryAfterSeconds) * time.Second)
			row.lastError = reason
		}
	}
	return nil
}

func (m *MemoryRepository) InsertSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("InsertSecurityEvent"); err != nil {
		return err
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = m.now()
	copyEvent := *event
	m.securityEvents = append(m.securityEvents, &copyEvent)
	return nil
}

func (m *MemoryRepository) GetAllowedOrigins(ctx context.Context) ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := m.takeFailure("GetAllowedOrigins"); err != nil {
		return nil, err
	}
	return append([]string(nil), m.allowedOrigins...), nil
}
