package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
)

// --- Calendar client ---

type listCall struct {
	calendarID string
	query      domain.EventQuery
}

type listResponse struct {
	page *domain.EventPage
	err  error
}

// mockCalendarClient replays scripted ListEvents responses in order.
// Once the script runs out, the last response repeats.
type mockCalendarClient struct {
	mu        sync.Mutex
	responses []listResponse
	byCal     map[string][]listResponse
	calls     []listCall
	calendars []domain.Calendar
	calErr    error
	watchResp *driven.WatchResponse
	watchErr  error
	watches   []driven.WatchRequest
	stopErr   error
	stopped   []string
}

func (m *mockCalendarClient) script(rs ...listResponse) *mockCalendarClient {
	m.responses = append(m.responses, rs...)
	return m
}

func (m *mockCalendarClient) ListEvents(
	_ context.Context,
	calendarID string,
	query domain.EventQuery,
) (*domain.EventPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, listCall{calendarID: calendarID, query: query})

	queue := &m.responses
	if rs, ok := m.byCal[calendarID]; ok {
		queue = &rs
		defer func() { m.byCal[calendarID] = *queue }()
	}
	if len(*queue) == 0 {
		return &domain.EventPage{}, nil
	}
	r := (*queue)[0]
	if len(*queue) > 1 {
		*queue = (*queue)[1:]
	}
	return r.page, r.err
}

func (m *mockCalendarClient) ListCalendars(_ context.Context) ([]domain.Calendar, error) {
	return m.calendars, m.calErr
}

func (m *mockCalendarClient) Watch(
	_ context.Context,
	_ string,
	req driven.WatchRequest,
) (*driven.WatchResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches = append(m.watches, req)
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	if m.watchResp != nil {
		return m.watchResp, nil
	}
	return &driven.WatchResponse{ResourceID: "res-" + req.ChannelID}, nil
}

func (m *mockCalendarClient) StopChannel(_ context.Context, channelID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, channelID)
	return m.stopErr
}

func (m *mockCalendarClient) Calls() []listCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]listCall(nil), m.calls...)
}

// mockClientProvider hands out the same client for every user.
type mockClientProvider struct {
	client driven.CalendarClient
	err    error

	mu          sync.Mutex
	invalidated []string
}

func (p *mockClientProvider) Client(_ context.Context, _ string) (driven.CalendarClient, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}

func (p *mockClientProvider) Invalidate(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated = append(p.invalidated, userID)
}

func (p *mockClientProvider) Invalidated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.invalidated...)
}

// --- Stores ---

type tokenKey struct{ user, cal string }

type mockTokenStore struct {
	mu     sync.Mutex
	tokens map[tokenKey]string
	sets   []string
	getErr error
	setErr error
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[tokenKey]string)}
}

func (m *mockTokenStore) Get(_ context.Context, userID, calendarID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	return m.tokens[tokenKey{userID, calendarID}], nil
}

func (m *mockTokenStore) Set(_ context.Context, userID, calendarID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = append(m.sets, token)
	if m.setErr != nil {
		return m.setErr
	}
	m.tokens[tokenKey{userID, calendarID}] = token
	return nil
}

func (m *mockTokenStore) State(_ context.Context, userID, calendarID string) (*domain.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[tokenKey{userID, calendarID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.SyncState{UserID: userID, CalendarID: calendarID, SyncToken: token}, nil
}

func (m *mockTokenStore) List(_ context.Context, userID string) ([]domain.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SyncState
	for k, v := range m.tokens {
		if k.user == userID {
			out = append(out, domain.SyncState{UserID: k.user, CalendarID: k.cal, SyncToken: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalendarID < out[j].CalendarID })
	return out, nil
}

func (m *mockTokenStore) token(userID, calendarID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[tokenKey{userID, calendarID}]
}

type mockConnectionStore struct {
	mu      sync.Mutex
	conns   map[string]domain.Connection
	updates []domain.StatusUpdate
	err     error
}

func newMockConnectionStore() *mockConnectionStore {
	return &mockConnectionStore{conns: make(map[string]domain.Connection)}
}

func (m *mockConnectionStore) Get(_ context.Context, userID string) (*domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *mockConnectionStore) UpdateStatus(_ context.Context, u domain.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
	if m.err != nil {
		return m.err
	}
	var prev *domain.Connection
	if c, ok := m.conns[u.UserID]; ok {
		prev = &c
	}
	m.conns[u.UserID] = u.Apply(prev, time.Now())
	return nil
}

func (m *mockConnectionStore) ListByStatus(_ context.Context, status domain.ConnectionStatus) ([]domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Connection
	for _, c := range m.conns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *mockConnectionStore) Updates() []domain.StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StatusUpdate(nil), m.updates...)
}

func (m *mockConnectionStore) status(userID string) domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[userID].Status
}

type mockChannelStore struct {
	mu       sync.Mutex
	channels map[string]domain.WebhookChannel
	getErr   error
	saveErr  error
}

func newMockChannelStore(chs ...domain.WebhookChannel) *mockChannelStore {
	m := &mockChannelStore{channels: make(map[string]domain.WebhookChannel)}
	for _, ch := range chs {
		m.channels[ch.ID] = ch
	}
	return m
}

func (m *mockChannelStore) Save(_ context.Context, ch domain.WebhookChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.channels[ch.ID] = ch
	return nil
}

func (m *mockChannelStore) Get(_ context.Context, channelID string) (*domain.WebhookChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	ch, ok := m.channels[channelID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ch, nil
}

func (m *mockChannelStore) Delete(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, channelID)
	return nil
}

func (m *mockChannelStore) ListByUser(_ context.Context, userID string) ([]domain.WebhookChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WebhookChannel
	for _, ch := range m.channels {
		if ch.UserID == userID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockChannelStore) ListExpiring(_ context.Context, before time.Time) ([]domain.WebhookChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WebhookChannel
	for _, ch := range m.channels {
		if ch.Expiration.Before(before) {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Memory sink ---

type sinkOp struct {
	op     string
	userID string
	id     string
	memory domain.Memory
}

// mockSink records operations. Upserts of ids in failIDs fail.
type mockSink struct {
	mu      sync.Mutex
	ops     []sinkOp
	stored  map[string]domain.Memory
	failIDs   map[string]bool
	deleteErr error
	panicOn   string
	block     chan struct{}
}

func newMockSink() *mockSink {
	return &mockSink{stored: make(map[string]domain.Memory), failIDs: make(map[string]bool)}
}

var errSinkRejected = errors.New("vault rejected memory")

func (m *mockSink) Upsert(_ context.Context, userID string, memory domain.Memory) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, sinkOp{op: "upsert", userID: userID, id: memory.ExternalID, memory: memory})
	if memory.ExternalID == m.panicOn && m.panicOn != "" {
		panic("sink exploded")
	}
	if m.failIDs[memory.ExternalID] {
		return errSinkRejected
	}
	m.stored[userID+"/"+memory.ExternalID] = memory
	return nil
}

func (m *mockSink) Delete(_ context.Context, userID, externalID string) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, sinkOp{op: "delete", userID: userID, id: externalID})
	if m.failIDs[externalID] {
		return errSinkRejected
	}
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.stored, userID+"/"+externalID)
	return nil
}

func (m *mockSink) Ops() []sinkOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sinkOp(nil), m.ops...)
}

// Ensure mocks implement interfaces
var (
	_ driven.CalendarClient         = (*mockCalendarClient)(nil)
	_ driven.CalendarClientProvider = (*mockClientProvider)(nil)
	_ driven.SyncTokenStore         = (*mockTokenStore)(nil)
	_ driven.ConnectionStore        = (*mockConnectionStore)(nil)
	_ driven.ChannelStore           = (*mockChannelStore)(nil)
	_ driven.MemorySink             = (*mockSink)(nil)
)

// --- Helpers ---

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEvent(id string) domain.EventSnapshot {
	return domain.EventSnapshot{
		ID:         id,
		CalendarID: "primary",
		Status:     "confirmed",
		Summary:    "Event " + id,
		Created:    testEpoch,
		Updated:    testEpoch,
		Start:      domain.EventTime{DateTime: testEpoch.Add(time.Hour)},
		End:        domain.EventTime{DateTime: testEpoch.Add(2 * time.Hour)},
	}
}

func updatedEvent(id string) domain.EventSnapshot {
	e := newEvent(id)
	e.Updated = testEpoch.Add(time.Minute)
	return e
}

func cancelledEvent(id string) domain.EventSnapshot {
	e := newEvent(id)
	e.Status = domain.EventStatusCancelled
	return e
}

func respond(events []domain.EventSnapshot, syncToken string) listResponse {
	return listResponse{page: &domain.EventPage{Events: events, NextSyncToken: syncToken}}
}

func failWith(err error) listResponse {
	return listResponse{err: err}
}

// recordingSleeper replaces time.Sleep in fetch retries.
type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return nil
}

func (s *recordingSleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}
