package attendance

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventpass/checkin-backend/internal/models"
)

// memStore is an in-memory RegistrationStore, AttendanceStore and Transactor.
// WithinRegistration holds a per-registration mutex, mirroring the row lock.
type memStore struct {
	mu      sync.Mutex
	regs    map[uuid.UUID]*models.RegistrationDetail
	codes   map[string]uuid.UUID
	events  []*models.AttendanceEvent
	nextID  int64
	writes  int
	statusW int

	lockMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex

	findErr   error
	createErr error
	// inLock runs after the lock is taken and before fn.
	inLock func(id uuid.UUID)
}

func newMemStore() *memStore {
	return &memStore{
		regs:  make(map[uuid.UUID]*models.RegistrationDetail),
		codes: make(map[string]uuid.UUID),
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *memStore) addRegistration(code string, status models.RegistrationStatus) *models.RegistrationDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg := &models.RegistrationDetail{
		Registration: models.Registration{
			ID:            uuid.New(),
			ParticipantID: uuid.New(),
			EventID:       uuid.New(),
			ScanCode:      code,
			Status:        status,
		},
	}
	reg.Participant = models.Participant{ID: reg.ParticipantID, Name: "Ana Souza", Email: "ana@example.com", Company: "ACME"}
	reg.Event = models.Event{ID: reg.EventID, Name: "Tech Summit"}
	m.regs[reg.ID] = reg
	m.codes[code] = reg.ID
	return reg
}

func (m *memStore) setStatusDirect(id uuid.UUID, status models.RegistrationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[id].Status = status
}

func (m *memStore) FindByScanCode(_ context.Context, code string) (*models.RegistrationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	id, ok := m.codes[code]
	if !ok {
		return nil, nil
	}
	cp := *m.regs[id]
	return &cp, nil
}

func (m *memStore) SetStatus(_ context.Context, id uuid.UUID, status models.RegistrationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[id]
	if !ok {
		return fmt.Errorf("registration %s missing", id)
	}
	reg.Status = status
	m.statusW++
	return nil
}

func (m *memStore) FindLatest(_ context.Context, registrationID uuid.UUID) (*models.AttendanceEvent, error) {
	m.mu.Lock()
	var latest *models.AttendanceEvent
	for _, ev := range m.events {
		if ev.RegistrationID != registrationID {
			continue
		}
		if latest == nil || ev.CheckInAt.After(latest.CheckInAt) ||
			(ev.CheckInAt.Equal(latest.CheckInAt) && ev.ID > latest.ID) {
			latest = ev
		}
	}
	m.mu.Unlock()
	// Widen the read-decide-write window for the concurrency test.
	runtime.Gosched()
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, ev *models.AttendanceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	ev.ID = m.nextID
	ev.CreatedAt = ev.CheckInAt
	cp := *ev
	m.events = append(m.events, &cp)
	m.writes++
	return nil
}

func (m *memStore) UpdateCheckout(_ context.Context, id int64, at time.Time) (*models.AttendanceEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.ID == id {
			if ev.CheckOutAt != nil {
				return nil, fmt.Errorf("attendance %d is not open", id)
			}
			t := at
			ev.CheckOutAt = &t
			ev.Status = models.AttendanceCheckedOut
			m.writes++
			cp := *ev
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("attendance %d missing", id)
}

func (m *memStore) WithinRegistration(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, s Stores) error) error {
	m.lockMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()
	if m.inLock != nil {
		m.inLock(id)
	}
	return fn(ctx, Stores{Registrations: m, Attendance: m})
}

func (m *memStore) rowsFor(id uuid.UUID) []models.AttendanceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AttendanceEvent
	for _, ev := range m.events {
		if ev.RegistrationID == id {
			out = append(out, *ev)
		}
	}
	return out
}

func (m *memStore) status(id uuid.UUID) models.RegistrationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[id].Status
}

// stepClock returns a clock that advances by one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}
