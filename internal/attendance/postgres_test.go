package attendance_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/attendance"
	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/internal/registrations"
	"github.com/eventpass/checkin-backend/pkg/database"
)

// newTestPool connects to DATABASE_URL and applies the schema. Tests are
// skipped when it is unset.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, 0, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool, nil))
	return pool
}

// seedRegistration inserts a participant, an event and a confirmed registration,
// and removes them when the test ends.
func seedRegistration(t *testing.T, pool *pgxpool.Pool) (regID uuid.UUID, code string) {
	t.Helper()
	ctx := context.Background()
	code = "QR-TEST-" + uuid.NewString()

	var participantID, eventID uuid.UUID
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO participants (name, email) VALUES ('Ana Souza', $1) RETURNING id`,
		uuid.NewString()+"@example.com").Scan(&participantID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO events (name, slug, starts_at, ends_at) VALUES ('Tech Summit', 'tech-summit', NOW(), NOW() + INTERVAL '1 day') RETURNING id`).
		Scan(&eventID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO registrations (participant_id, event_id, scan_code) VALUES ($1, $2, $3) RETURNING id`,
		participantID, eventID, code).Scan(&regID))

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM attendance_events WHERE registration_id = $1`, regID)
		_, _ = pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, regID)
		_, _ = pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID)
		_, _ = pool.Exec(ctx, `DELETE FROM participants WHERE id = $1`, participantID)
	})
	return regID, code
}

func newPGLedger(pool *pgxpool.Pool, opts ...attendance.Option) *attendance.Ledger {
	tx := attendance.NewPGTransactor(pool, func(db database.DBTX) attendance.Stores {
		return attendance.Stores{
			Registrations: registrations.NewRepository(db),
			Attendance:    attendance.NewRepository(db),
		}
	})
	return attendance.NewLedger(registrations.NewRepository(pool), tx, nil, opts...)
}

func countRows(t *testing.T, pool *pgxpool.Pool, regID uuid.UUID) (total, open int) {
	t.Helper()
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE check_out_at IS NULL) FROM attendance_events WHERE registration_id = $1`,
		regID).Scan(&total, &open)
	require.NoError(t, err)
	return total, open
}

func TestPostgresConcurrentScans(t *testing.T) {
	const scans = 20
	pool := newTestPool(t)
	regID, code := seedRegistration(t, pool)
	ledger := newPGLedger(pool)

	var wg sync.WaitGroup
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.ProcessScan(context.Background(), code, "op@example.com")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total, open := countRows(t, pool, regID)
	assert.Equal(t, scans/2, total)
	assert.Zero(t, open)

	var status string
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT status FROM registrations WHERE id = $1`, regID).Scan(&status))
	assert.Equal(t, string(models.RegistrationAttended), status)
}

func TestPostgresClockSteppingBack(t *testing.T) {
	pool := newTestPool(t)
	regID, code := seedRegistration(t, pool)
	base := time.Now().UTC().Truncate(time.Microsecond)
	steps := []time.Time{base.Add(10 * time.Second), base.Add(11 * time.Second), base.Add(5 * time.Second), base.Add(6 * time.Second), base.Add(7 * time.Second)}
	i := 0
	ledger := newPGLedger(pool, attendance.WithClock(func() time.Time {
		at := steps[i]
		i++
		return at
	}))

	want := []attendance.Action{attendance.ActionCheckIn, attendance.ActionCheckOut, attendance.ActionCheckIn, attendance.ActionCheckOut, attendance.ActionCheckIn}
	for n, action := range want {
		res, err := ledger.ProcessScan(context.Background(), code, "op@example.com")
		require.NoError(t, err, "scan %d", n+1)
		assert.Equal(t, action, res.Action, "scan %d", n+1)
	}
	total, open := countRows(t, pool, regID)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, open)
}

func TestPostgresOneOpenRowBackstop(t *testing.T) {
	pool := newTestPool(t)
	regID, _ := seedRegistration(t, pool)
	repo := attendance.NewRepository(pool)
	ctx := context.Background()

	var eventID uuid.UUID
	require.NoError(t, pool.QueryRow(ctx, `SELECT event_id FROM registrations WHERE id = $1`, regID).Scan(&eventID))

	first := &models.AttendanceEvent{RegistrationID: regID, EventID: eventID, CheckInAt: time.Now(), Status: models.AttendanceCheckedIn, ScannedBy: "op"}
	require.NoError(t, repo.Create(ctx, first))

	second := &models.AttendanceEvent{RegistrationID: regID, EventID: eventID, CheckInAt: time.Now().Add(time.Second), Status: models.AttendanceCheckedIn, ScannedBy: "op"}
	err := repo.Create(ctx, second)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err, "attendance_events_one_open_key"))

	closed, err := repo.UpdateCheckout(ctx, first.ID, first.CheckInAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceCheckedOut, closed.Status)

	_, err = repo.UpdateCheckout(ctx, first.ID, first.CheckInAt.Add(2*time.Minute))
	assert.Error(t, err)
}

func TestPostgresTransactorUnknownRegistration(t *testing.T) {
	pool := newTestPool(t)
	tx := attendance.NewPGTransactor(pool, func(db database.DBTX) attendance.Stores {
		return attendance.Stores{Registrations: registrations.NewRepository(db), Attendance: attendance.NewRepository(db)}
	})
	called := false
	err := tx.WithinRegistration(context.Background(), uuid.New(), func(context.Context, attendance.Stores) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, attendance.ErrNotFound)
	assert.False(t, called)
}
