package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/policy"
	"github.com/lakany/clinic-api/internal/repository"
	"github.com/lakany/clinic-api/internal/repository/memory"
	"github.com/lakany/clinic-api/internal/service/audit"
	"github.com/lakany/clinic-api/internal/service/event"
	"github.com/lakany/clinic-api/internal/service/schedule"
	apperrors "github.com/lakany/clinic-api/pkg/errors"
	"github.com/lakany/clinic-api/pkg/metrics"
)

const mahatet = "Mahatet al Raml Clinic"

type fixture struct {
	store   *memory.Store
	svc     *Service
	loc     *time.Location
	doctor  *model.User
	patient *model.User
	other   *model.User
	manager *model.User
}

func newFixture(t *testing.T, opts ...memory.Option) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Cairo")
	require.NoError(t, err)

	store := memory.NewStore(opts...)
	phone := "01000000000"
	f := &fixture{
		store:   store,
		loc:     loc,
		doctor:  store.AddUser(&model.User{Username: "dr.lakany", Email: "dr@example.com", Role: model.RoleDoctor}),
		patient: store.AddUser(&model.User{Username: "mona", Email: "mona@example.com", Phone: &phone, Role: model.RolePatient}),
		other:   store.AddUser(&model.User{Username: "omar", Email: "omar@example.com", Role: model.RolePatient}),
		manager: store.AddUser(&model.User{Username: "reception", Email: "desk@example.com", Role: model.RoleManagement}),
	}
	f.svc = NewService(
		store.Appointments(),
		store.Users(),
		audit.NewService(store.Audits()),
		event.NewService(store.Outbox()),
		metrics.New("test", nil),
		Config{Clock: schedule.NewClock(loc)},
	)
	return f
}

func as(u *model.User) policy.Identity {
	return policy.Identity{ID: u.ID, Role: policy.Role(u.Role)}
}

func (f *fixture) book(t *testing.T, patient *model.User, at time.Time, clinic string) *model.Appointment {
	t.Helper()
	apt, err := f.svc.CreateAppointment(context.Background(), as(patient), &model.CreateAppointmentRequest{
		DoctorID:   f.doctor.ID,
		Date:       at,
		ClinicName: clinic,
	})
	require.NoError(t, err)
	return apt
}

func (f *fixture) slots(t *testing.T, clinic, date string) *model.SlotAvailability {
	t.Helper()
	res, err := f.svc.GetAvailableSlots(context.Background(), as(f.patient), model.SlotQuery{
		Date:       date,
		ClinicName: clinic,
		DoctorID:   f.doctor.ID.String(),
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) closeGate(t *testing.T) {
	t.Helper()
	_, err := f.svc.SetAvailability(context.Background(), as(f.doctor), nil, false)
	require.NoError(t, err)
}

func labelsOf(slots []model.TimeSlot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Time)
	}
	return out
}

func TestSlotsMahatetWithoutBookings(t *testing.T) {
	f := newFixture(t)

	res := f.slots(t, mahatet, "2024-05-01")
	assert.Equal(t, []model.TimeSlot{{Time: "13:00", Available: true}, {Time: "13:30", Available: true}}, res.Slots)
	assert.Empty(t, res.Message)
}

func TestSlotsDefaultClinic(t *testing.T) {
	f := newFixture(t)

	res := f.slots(t, "Unknown Clinic", "2024-05-01")
	require.Len(t, res.Slots, 12)
	assert.Equal(t, "10:00", res.Slots[0].Time)
	assert.Equal(t, "15:30", res.Slots[11].Time)
	for _, s := range res.Slots {
		assert.True(t, s.Available, s.Time)
	}
}

func TestSlotsBookedLabelIsOccupied(t *testing.T) {
	f := newFixture(t)
	// 10:00 UTC is 13:00 in Cairo on this date
	f.book(t, f.patient, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), mahatet)

	res := f.slots(t, mahatet, "2024-05-01")
	assert.Equal(t, []model.TimeSlot{{Time: "13:00", Available: false}, {Time: "13:30", Available: true}}, res.Slots)
}

func TestSlotsCancelledFreesLabel(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)

	_, err := f.svc.CancelAppointment(context.Background(), as(f.patient), apt.ID)
	require.NoError(t, err)

	res := f.slots(t, mahatet, "2024-05-01")
	assert.True(t, res.Slots[0].Available)
	assert.True(t, res.Slots[1].Available)
}

func TestSlotsTerminalStatusesStillOccupy(t *testing.T) {
	statuses := []model.AppointmentStatus{
		model.AppointmentStatusCompleted,
		model.AppointmentStatusDone,
		model.AppointmentStatusNoShow,
	}

	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 30, 0, 0, f.loc), mahatet)

			_, err := f.svc.UpdateAppointment(context.Background(), as(f.manager), apt.ID,
				&model.AppointmentPatch{Status: &status})
			require.NoError(t, err)

			res := f.slots(t, mahatet, "2024-05-01")
			assert.True(t, res.Slots[0].Available)
			assert.False(t, res.Slots[1].Available)
		})
	}
}

func TestSlotsIgnoreOtherDaysAndDoctors(t *testing.T) {
	f := newFixture(t)
	otherDoctor := f.store.AddUser(&model.User{Username: "dr.two", Role: model.RoleDoctor})

	f.book(t, f.patient, time.Date(2024, 5, 2, 13, 0, 0, 0, f.loc), mahatet)
	_, err := f.svc.CreateAppointment(context.Background(), as(f.patient), &model.CreateAppointmentRequest{
		DoctorID: otherDoctor.ID,
		Date:     time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc),
	})
	require.NoError(t, err)

	res := f.slots(t, mahatet, "2024-05-01")
	assert.True(t, res.Slots[0].Available)
}

func TestSlotsDayIsClinicCalendarDay(t *testing.T) {
	f := newFixture(t)
	// 23:00 UTC on Apr 30 is 02:00 on May 1 in Cairo
	f.book(t, f.patient, time.Date(2024, 4, 30, 23, 0, 0, 0, time.UTC), "")

	occupied, err := f.svc.conflicts.OccupiedLabels(context.Background(), f.doctor.ID, time.Date(2024, 5, 1, 12, 0, 0, 0, f.loc))
	require.NoError(t, err)
	assert.Contains(t, occupied, "02:00")

	occupied, err = f.svc.conflicts.OccupiedLabels(context.Background(), f.doctor.ID, time.Date(2024, 4, 30, 12, 0, 0, 0, f.loc))
	require.NoError(t, err)
	assert.Empty(t, occupied)
}

func TestSlotsRequireDateAndDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	queries := []model.SlotQuery{
		{DoctorID: f.doctor.ID.String()},
		{Date: "2024-05-01"},
		{Date: "2024-05-01", DoctorID: "not-a-uuid"},
		{Date: "yesterday", DoctorID: f.doctor.ID.String()},
	}
	for _, q := range queries {
		_, err := f.svc.GetAvailableSlots(ctx, as(f.patient), q)
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "%+v", q)
	}

	_, err := f.svc.GetAvailableSlots(ctx, as(f.patient), model.SlotQuery{})
	require.Error(t, err)
	assert.Equal(t, MissingSlotParams, err.Error())
}

func TestGateClosed(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)
	f.closeGate(t)

	res := f.slots(t, mahatet, "2024-05-01")
	assert.Empty(t, res.Slots)
	assert.NotNil(t, res.Slots)
	assert.Equal(t, ClosedSlotsMessage, res.Message)

	_, err := f.svc.CreateAppointment(context.Background(), as(f.patient), &model.CreateAppointmentRequest{
		DoctorID: f.doctor.ID,
		Date:     time.Date(2024, 5, 1, 13, 30, 0, 0, f.loc),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPolicy))
	assert.False(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, ClosedBookingMessage, err.Error())
}

func TestGateFailsOpen(t *testing.T) {
	f := newFixture(t)
	unknown := uuid.New()

	res, err := f.svc.GetAvailableSlots(context.Background(), as(f.patient), model.SlotQuery{
		Date:       "2024-05-01",
		ClinicName: mahatet,
		DoctorID:   unknown.String(),
	})
	require.NoError(t, err)
	assert.Len(t, res.Slots, 2)

	open, err := f.svc.gate.IsOpen(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	assert.True(t, open, "unconfigured doctor is bookable")
}

func TestGateDecisionTable(t *testing.T) {
	yes, no := true, false
	assert.True(t, GateOpen(nil))
	assert.True(t, GateOpen(&model.User{}))
	assert.True(t, GateOpen(&model.User{IsAvailable: &yes}))
	assert.False(t, GateOpen(&model.User{IsAvailable: &no}))
}

func TestCreateForcesCallerAsPatient(t *testing.T) {
	f := newFixture(t)
	spoofed := f.other.ID

	apt, err := f.svc.CreateAppointment(context.Background(), as(f.patient), &model.CreateAppointmentRequest{
		PatientID:  &spoofed,
		DoctorID:   f.doctor.ID,
		Date:       time.Date(2024, 5, 1, 11, 0, 0, 0, f.loc),
		ClinicName: "Somewhere",
		Notes:      "first visit",
	})
	require.NoError(t, err)

	assert.Equal(t, f.patient.ID, apt.PatientID)
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
	assert.Equal(t, "Somewhere", apt.ClinicName)
	assert.Nil(t, apt.Price)

	events := f.store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAppointmentCreated, events[0].EventType)
	assert.Equal(t, apt.ID, events[0].AggregateID)
}

func TestCreateOnlyByPatients(t *testing.T) {
	f := newFixture(t)
	for _, u := range []*model.User{f.doctor, f.manager} {
		_, err := f.svc.CreateAppointment(context.Background(), as(u), &model.CreateAppointmentRequest{
			DoctorID: f.doctor.ID,
			Date:     time.Now(),
		})
		assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden), u.Role)
	}
}

func TestCancelTwice(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)

	cancelled, err := f.svc.CancelAppointment(context.Background(), as(f.patient), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)

	_, err = f.svc.CancelAppointment(context.Background(), as(f.patient), apt.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Contains(t, err.Error(), "cancelled")
}

func TestCancelGuards(t *testing.T) {
	tests := []struct {
		status  model.AppointmentStatus
		allowed bool
	}{
		{model.AppointmentStatusScheduled, true},
		{model.AppointmentStatusNoShow, true},
		{model.AppointmentStatusCompleted, false},
		{model.AppointmentStatusDone, false},
		{model.AppointmentStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t)
			apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)
			if tt.status != model.AppointmentStatusScheduled {
				status := tt.status
				_, err := f.svc.UpdateAppointment(context.Background(), as(f.manager), apt.ID,
					&model.AppointmentPatch{Status: &status})
				require.NoError(t, err)
			}

			_, err := f.svc.CancelAppointment(context.Background(), as(f.patient), apt.ID)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, "Cannot cancel "+string(tt.status)+" appointment.", err.Error())
		})
	}
}

func TestCancelOwnershipAndRoles(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)

	for _, u := range []*model.User{f.other, f.manager, f.doctor} {
		_, err := f.svc.CancelAppointment(context.Background(), as(u), apt.ID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden), u.Username)
	}

	_, err := f.svc.CancelAppointment(context.Background(), as(f.patient), uuid.New())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestGetAppointmentOwnership(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)
	ctx := context.Background()

	_, err := f.svc.GetAppointment(ctx, as(f.other), apt.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	got, err := f.svc.GetAppointment(ctx, as(f.patient), apt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Patient)
	assert.Equal(t, "mona", got.Patient.Username)
	assert.Equal(t, "mona@example.com", got.Patient.Email)
	assert.Nil(t, got.Patient.Phone)
	require.NotNil(t, got.Doctor)
	assert.Equal(t, "dr.lakany", got.Doctor.Username)
	assert.Empty(t, got.Doctor.Email)

	// any doctor may read any appointment
	otherDoctor := f.store.AddUser(&model.User{Username: "dr.two", Role: model.RoleDoctor})
	_, err = f.svc.GetAppointment(ctx, as(otherDoctor), apt.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetAppointment(ctx, as(f.manager), apt.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetAppointment(ctx, as(f.manager), uuid.New())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestFinalizeOverwritesCancelled(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)
	_, err := f.svc.CancelAppointment(context.Background(), as(f.patient), apt.ID)
	require.NoError(t, err)

	done, err := f.svc.FinalizeAppointment(context.Background(), as(f.manager), apt.ID, 350)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, done.Status)
	require.NotNil(t, done.Price)
	assert.Equal(t, 350.0, *done.Price)

	again, err := f.svc.FinalizeAppointment(context.Background(), as(f.manager), apt.ID, 400)
	require.NoError(t, err)
	assert.Equal(t, 400.0, *again.Price)
}

func TestFinalizeErrors(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)
	ctx := context.Background()

	_, err := f.svc.FinalizeAppointment(ctx, as(f.manager), uuid.New(), 100)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	_, err = f.svc.FinalizeAppointment(ctx, as(f.manager), apt.ID, -1)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	for _, u := range []*model.User{f.patient, f.doctor} {
		_, err = f.svc.FinalizeAppointment(ctx, as(u), apt.ID, 100)
		assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden), u.Role)
	}
}

func TestMarkNoShowUnguarded(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)
	ctx := context.Background()

	_, err := f.svc.FinalizeAppointment(ctx, as(f.manager), apt.ID, 100)
	require.NoError(t, err)

	got, err := f.svc.MarkNoShow(ctx, as(f.manager), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusNoShow, got.Status)

	_, err = f.svc.MarkNoShow(ctx, as(f.patient), apt.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	_, err = f.svc.MarkNoShow(ctx, as(f.manager), uuid.New())
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestOverrideReopensTerminalWithAudit(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)
	ctx := context.Background()

	_, err := f.svc.FinalizeAppointment(ctx, as(f.manager), apt.ID, 100)
	require.NoError(t, err)

	scheduled := model.AppointmentStatusScheduled
	notes := "rebooked by phone"
	got, err := f.svc.UpdateAppointment(ctx, as(f.manager), apt.ID, &model.AppointmentPatch{
		Status: &scheduled,
		Notes:  &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, got.Status)
	assert.Equal(t, notes, got.Notes)

	logs := f.store.AuditLogs()
	require.Len(t, logs, 1, "finalize is not audited")
	override := logs[0]
	assert.Equal(t, model.AuditActionOverride, override.Action)
	assert.Equal(t, apt.ID, override.EntityID)
	assert.Equal(t, f.manager.ID, override.ActorID)
	assert.ElementsMatch(t, []string{model.FlagReopenedTerminal, model.FlagStatusOutsideLifecycle}, []string(override.Flags))
	assert.Contains(t, string(override.Before), `"completed"`)
	assert.Contains(t, string(override.After), `"scheduled"`)

	history, err := f.svc.AppointmentHistory(ctx, as(f.manager), apt.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, override.ID, history[0].ID)
}

func TestOverrideValidation(t *testing.T) {
	f := newFixture(t)
	apt := f.book(t, f.patient, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)
	ctx := context.Background()

	bogus := model.AppointmentStatus("archived")
	_, err := f.svc.UpdateAppointment(ctx, as(f.manager), apt.ID, &model.AppointmentPatch{Status: &bogus})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = f.svc.UpdateAppointment(ctx, as(f.manager), apt.ID, &model.AppointmentPatch{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	notes := "x"
	_, err = f.svc.UpdateAppointment(ctx, as(f.patient), apt.ID, &model.AppointmentPatch{Notes: &notes})
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	_, err = f.svc.UpdateAppointment(ctx, as(f.manager), uuid.New(), &model.AppointmentPatch{Notes: &notes})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestListOrderingAndSummaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	early := f.book(t, f.patient, time.Date(2024, 5, 1, 10, 0, 0, 0, f.loc), "")
	late := f.book(t, f.patient, time.Date(2024, 5, 3, 10, 0, 0, 0, f.loc), "")
	mid := f.book(t, f.other, time.Date(2024, 5, 2, 10, 0, 0, 0, f.loc), "")

	all, err := f.svc.ListAppointments(ctx, as(f.manager))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uuid.UUID{late.ID, mid.ID, early.ID}, ids(all))
	require.NotNil(t, all[0].Patient)
	assert.Equal(t, "01000000000", *all[0].Patient.Phone)

	sched, err := f.svc.GetDoctorSchedule(ctx, as(f.doctor))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{early.ID, mid.ID, late.ID}, ids(sched))
	assert.NotNil(t, sched[0].Patient)

	mine, err := f.svc.GetMyAppointments(ctx, as(f.patient))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{late.ID, early.ID}, ids(mine))
	require.NotNil(t, mine[0].Doctor)
	assert.Equal(t, "dr.lakany", mine[0].Doctor.Username)
	assert.Empty(t, mine[0].Doctor.Email)
	assert.Nil(t, mine[0].Patient)
}

func TestListCapabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListAppointments(ctx, as(f.doctor))
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
	_, err = f.svc.GetDoctorSchedule(ctx, as(f.manager))
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
	_, err = f.svc.GetMyAppointments(ctx, as(f.doctor))
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func TestDoubleBookingRaceAllowedByDefault(t *testing.T) {
	f := newFixture(t)
	errs := raceBookings(f, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc))

	for _, err := range errs {
		assert.NoError(t, err)
	}

	list, err := f.svc.ListAppointments(context.Background(), as(f.manager))
	require.NoError(t, err)
	assert.Len(t, list, 2, "both bookings land on the same slot")
}

func TestDoubleBookingRaceRejectedWithUniqueSlots(t *testing.T) {
	f := newFixture(t, memory.WithUniqueSlots())
	errs := raceBookings(f, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc))

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperrors.ErrSlotConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	list, err := f.svc.ListAppointments(context.Background(), as(f.manager))
	require.NoError(t, err)
	require.Len(t, list, 1)

	// cancelling releases the slot under the index
	winner := f.patient
	if list[0].PatientID == f.other.ID {
		winner = f.other
	}
	_, err = f.svc.CancelAppointment(context.Background(), as(winner), list[0].ID)
	require.NoError(t, err)
	f.book(t, winner, time.Date(2024, 5, 1, 13, 0, 0, 0, f.loc), mahatet)
}

func raceBookings(f *fixture, at time.Time) []error {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i, p := range []*model.User{f.patient, f.other} {
		wg.Add(1)
		go func(i int, p *model.User) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.CreateAppointment(context.Background(), as(p), &model.CreateAppointmentRequest{
				DoctorID:   f.doctor.ID,
				Date:       at,
				ClinicName: mahatet,
			})
		}(i, p)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestClinicStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("no doctor is closed", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewService(store.Appointments(), store.Users(), audit.NewService(store.Audits()),
			event.NewService(store.Outbox()), metrics.New("test", nil), Config{})

		status, err := svc.GetClinicStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.ClinicClosed, status.Status)
		assert.Equal(t, ClosedStatusMessage, status.Message)
	})

	t.Run("follows the gate and invalidates on change", func(t *testing.T) {
		f := newFixture(t)

		status, err := f.svc.GetClinicStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.ClinicOpen, status.Status)
		assert.Equal(t, OpenStatusMessage, status.Message)

		f.closeGate(t)

		status, err = f.svc.GetClinicStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.ClinicClosed, status.Status)
	})

	t.Run("designated doctor", func(t *testing.T) {
		f := newFixture(t)
		no := false
		second := f.store.AddUser(&model.User{
			Username:    "dr.two",
			Role:        model.RoleDoctor,
			IsAvailable: &no,
			CreatedAt:   time.Now().Add(time.Hour),
		})
		svc := NewService(f.store.Appointments(), f.store.Users(), audit.NewService(f.store.Audits()),
			event.NewService(f.store.Outbox()), metrics.New("test", nil), Config{StatusDoctorID: &second.ID})

		status, err := svc.GetClinicStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.ClinicClosed, status.Status)
	})
}

// pausingUsers holds FirstByRole after the read until release is closed
type pausingUsers struct {
	repository.UserRepository
	read    chan struct{}
	release chan struct{}
}

func (u *pausingUsers) FirstByRole(ctx context.Context, role string) (*model.User, error) {
	user, err := u.UserRepository.FirstByRole(ctx, role)
	close(u.read)
	<-u.release
	return user, err
}

func TestClinicStatusReadRacingAvailabilityChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := &pausingUsers{UserRepository: f.store.Users(), read: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(f.store.Appointments(), users, audit.NewService(f.store.Audits()),
		event.NewService(f.store.Outbox()), metrics.New("test", nil), Config{})

	done := make(chan *model.ClinicStatus)
	go func() {
		status, err := svc.GetClinicStatus(ctx)
		assert.NoError(t, err)
		done <- status
	}()

	<-users.read
	_, err := svc.SetAvailability(ctx, as(f.doctor), nil, false)
	require.NoError(t, err)
	close(users.release)

	assert.Equal(t, model.ClinicOpen, (<-done).Status, "the racing read saw the old gate")

	users.read = make(chan struct{})
	status, err := svc.GetClinicStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ClinicClosed, status.Status)
}

func TestSetAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.SetAvailability(ctx, as(f.doctor), nil, false)
	require.NoError(t, err)
	assert.Equal(t, f.doctor.ID, got.DoctorID)
	assert.False(t, got.IsAvailable)

	_, err = f.svc.SetAvailability(ctx, as(f.manager), &f.doctor.ID, true)
	require.NoError(t, err)
	open, err := f.svc.gate.IsOpen(ctx, f.doctor.ID)
	require.NoError(t, err)
	assert.True(t, open)

	otherDoctor := f.store.AddUser(&model.User{Username: "dr.two", Role: model.RoleDoctor})
	_, err = f.svc.SetAvailability(ctx, as(f.doctor), &otherDoctor.ID, false)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	_, err = f.svc.SetAvailability(ctx, as(f.patient), nil, false)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	_, err = f.svc.SetAvailability(ctx, as(f.manager), &f.patient.ID, false)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	logs := f.store.AuditLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, model.AuditActionAvailability, logs[0].Action)
	assert.Nil(t, logs[0].Before, "never configured before the first toggle")
}

func ids(list []*model.Appointment) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(list))
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}
