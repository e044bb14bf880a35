package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/akarakonline-arch/hggzk-sub012/config"
	"github.com/akarakonline-arch/hggzk-sub012/models"
)

// Regression: two concurrent booking attempts for overlapping nights of the
// same unit must never both succeed. The per-unit advisory lock plus the
// in-transaction re-check is the guarantee under test.
func TestConcurrentBookingsNeverDoubleBook(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	unit := seedUnit(t, db, "Sea View")

	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	const attempts = 8
	results := make([]*models.ConflictResult, attempts)
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Overlapping stays shifted by one night each.
			s := start.AddDate(0, 0, i%3)
			e := s.AddDate(0, 0, 3)
			results[i], errs[i] = models.ApplyBooking(ctx, db, unit.ID, uint(100+i), s, e)
		}(i)
	}
	wg.Wait()

	booked := map[string]uint{}
	for i := 0; i < attempts; i++ {
		if errs[i] != nil {
			t.Fatalf("attempt %d errored: %v", i, errs[i])
		}
		if !results[i].IsAvailable {
			continue
		}
		s := start.AddDate(0, 0, i%3)
		for d := s; d.Before(s.AddDate(0, 0, 3)); d = d.AddDate(0, 0, 1) {
			key := d.Format("2006-01-02")
			if prev, taken := booked[key]; taken {
				t.Fatalf("night %s booked by both %d and %d", key, prev, uint(100+i))
			}
			booked[key] = uint(100 + i)
		}
	}
	if len(booked) == 0 {
		t.Fatal("no attempt succeeded")
	}

	// The stored grid must agree with the winners.
	periods, err := models.GetAvailabilityPeriods(ctx, db, unit.ID, start, end.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("GetAvailabilityPeriods: %v", err)
	}
	for _, p := range periods {
		if p.Status == models.DayStatusBooked && p.BookingID == nil {
			t.Fatalf("booked period without owner: %+v", p)
		}
	}
}

func TestBlocksNeverDisplaceBookings(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	unit := seedUnit(t, db, "Garden Suite")
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	res, err := models.ApplyBooking(ctx, db, unit.ID, 501, start, start.AddDate(0, 0, 2))
	if err != nil || !res.IsAvailable {
		t.Fatalf("seed booking: %v %+v", err, res)
	}

	blockRes, err := models.ApplyBlock(ctx, db, unit.ID, start, start.AddDate(0, 0, 4), "maintenance")
	if err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}
	if blockRes.IsAvailable {
		t.Fatal("block over a booking must report the conflict")
	}

	// Booked nights untouched, nothing blocked.
	periods, err := models.GetAvailabilityPeriods(ctx, db, unit.ID, start, start.AddDate(0, 0, 4))
	if err != nil {
		t.Fatalf("GetAvailabilityPeriods: %v", err)
	}
	for _, p := range periods {
		if p.Status == models.DayStatusBlocked {
			t.Fatalf("block was written despite the booking conflict: %+v", p)
		}
	}
}

// Regression: the unit schedule lock must span the booking COMMIT. A
// contender that wins the lock afterwards has to see the committed nights;
// releasing inside the transaction lets its availability check read a
// snapshot without them and both bookings succeed.
func TestScheduleLockHeldUntilBookingCommits(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	unit := seedUnit(t, db, "Loft")
	start := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 3)
	lockName := fmt.Sprintf("unitsched:%d", unit.ID)

	held := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		// First writer in the order ApplyBooking must follow: lock on a
		// pinned connection, write, COMMIT, then release.
		firstDone <- db.Connection(func(conn *gorm.DB) error {
			var ok int
			if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil || ok != 1 {
				return fmt.Errorf("lock: ok=%d err=%v", ok, err)
			}
			close(held)
			<-release
			first := uint(701)
			txErr := conn.Transaction(func(tx *gorm.DB) error {
				var rows []models.DailyScheduleEntry
				for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
					rows = append(rows, models.DailyScheduleEntry{
						UnitID:    unit.ID,
						Date:      d,
						Status:    models.DayStatusBooked,
						BookingID: &first,
					})
				}
				return tx.Create(&rows).Error
			})
			var ignored int
			_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&ignored).Error
			return txErr
		})
	}()
	<-held

	type bookingOutcome struct {
		res *models.ConflictResult
		err error
	}
	second := make(chan bookingOutcome, 1)
	go func() {
		res, err := models.ApplyBooking(ctx, db, unit.ID, 702, start, end)
		second <- bookingOutcome{res, err}
	}()

	select {
	case <-second:
		t.Fatal("booking proceeded while the schedule lock was held elsewhere")
	case <-time.After(500 * time.Millisecond):
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first writer: %v", err)
	}
	out := <-second
	if out.err != nil {
		t.Fatalf("second booking: %v", out.err)
	}
	if out.res.IsAvailable {
		t.Fatal("second booking did not see the committed nights")
	}
}

func TestReleaseBookingKeepsPriceOverrides(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	unit := seedUnit(t, db, "Studio")
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	price := decimal.NewFromInt(150)
	if err := models.SetPriceOverride(ctx, db, unit.ID, start, &price); err != nil {
		t.Fatalf("SetPriceOverride: %v", err)
	}
	res, err := models.ApplyBooking(ctx, db, unit.ID, 601, start, start.AddDate(0, 0, 2))
	if err != nil || !res.IsAvailable {
		t.Fatalf("ApplyBooking: %v %+v", err, res)
	}
	if err := models.ReleaseBooking(ctx, db, unit.ID, 601); err != nil {
		t.Fatalf("ReleaseBooking: %v", err)
	}

	check, err := models.CheckAvailability(ctx, db, unit.ID, start, start.AddDate(0, 0, 2), nil)
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if !check.IsAvailable {
		t.Fatalf("nights still taken after release: %+v", check.Conflicts)
	}

	pricing, err := models.CalculatePriceForPeriod(ctx, db, unit.ID, start, start.AddDate(0, 0, 2), unit.BasePrice, unit.Currency)
	if err != nil {
		t.Fatalf("CalculatePriceForPeriod: %v", err)
	}
	if pricing.DaysWithCustomPricing != 1 {
		t.Fatalf("override lost on release: %+v", pricing)
	}
	if !pricing.TotalPrice.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("TotalPrice = %s, want 250", pricing.TotalPrice)
	}
}

func setupIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "booking_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	return config.GetDB()
}

func seedUnit(t *testing.T, db *gorm.DB, name string) *models.Unit {
	t.Helper()
	property := models.Property{Name: name + " House", City: "Aden", Country: "Yemen", Rating: 4.5}
	if err := db.Create(&property).Error; err != nil {
		t.Fatalf("create property: %v", err)
	}
	unit := models.Unit{
		PropertyID: property.ID,
		Name:       name,
		UnitType:   models.UnitTypeEntirePlace,
		BasePrice:  decimal.NewFromInt(100),
		Currency:   "YER",
		MaxGuests:  2,
	}
	if err := db.Create(&unit).Error; err != nil {
		t.Fatalf("create unit: %v", err)
	}
	return &unit
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("booking-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=booking_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
