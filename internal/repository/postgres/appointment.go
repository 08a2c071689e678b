package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

// appointmentRow carries the joined user columns alongside the appointment
type appointmentRow struct {
	model.Appointment
	PatientUsername sql.NullString `db:"patient_username"`
	PatientEmail    sql.NullString `db:"patient_email"`
	PatientPhone    sql.NullString `db:"patient_phone"`
	DoctorUsername  sql.NullString `db:"doctor_username"`
	DoctorEmail     sql.NullString `db:"doctor_email"`
}

func (row *appointmentRow) toModel(withPatient, withDoctor bool) *model.Appointment {
	apt := row.Appointment
	if withPatient && row.PatientUsername.Valid {
		apt.Patient = &model.UserSummary{
			ID:       apt.PatientID,
			Username: row.PatientUsername.String,
			Email:    row.PatientEmail.String,
		}
		if row.PatientPhone.Valid {
			phone := row.PatientPhone.String
			apt.Patient.Phone = &phone
		}
	}
	if withDoctor && row.DoctorUsername.Valid {
		apt.Doctor = &model.UserSummary{
			ID:       apt.DoctorID,
			Username: row.DoctorUsername.String,
			Email:    row.DoctorEmail.String,
		}
	}
	return &apt
}

const appointmentColumns = `
	a.id, a.patient_id, a.doctor_id, a.date, a.clinic_name, a.status,
	a.price, a.notes, a.created_at, a.updated_at`

const detailedSelect = `
	SELECT` + appointmentColumns + `,
		p.username AS patient_username, p.email AS patient_email, p.phone AS patient_phone,
		d.username AS doctor_username, d.email AS doctor_email
	FROM appointments a
	LEFT JOIN users p ON p.id = a.patient_id
	LEFT JOIN users d ON d.id = a.doctor_id`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, date, clinic_name,
			status, price, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now().UTC()
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = now
	}
	appointment.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.Date,
		appointment.ClinicName,
		appointment.Status,
		appointment.Price,
		appointment.Notes,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	return translate(err, "create appointment")
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT` + appointmentColumns + ` FROM appointments a WHERE a.id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, translate(err, "get appointment")
	}
	return &appointment, nil
}

func (r *appointmentRepository) GetDetailed(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := detailedSelect + ` WHERE a.id = $1`

	var row appointmentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, translate(err, "get appointment")
	}
	return row.toModel(true, true), nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET patient_id = $1, doctor_id = $2, date = $3, clinic_name = $4,
			status = $5, price = $6, notes = $7, updated_at = $8
		WHERE id = $9
	`
	appointment.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.Date,
		appointment.ClinicName,
		appointment.Status,
		appointment.Price,
		appointment.Notes,
		appointment.UpdatedAt,
		appointment.ID,
	)
	if err != nil {
		return translate(err, "update appointment")
	}
	return requireAffected(result, "update appointment")
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	if filters == nil {
		filters = &model.AppointmentFilters{}
	}

	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filters.PatientID != nil {
		add("a.patient_id = $%d", *filters.PatientID)
	}
	if filters.DoctorID != nil {
		add("a.doctor_id = $%d", *filters.DoctorID)
	}
	if filters.From != nil {
		add("a.date >= $%d", *filters.From)
	}
	if filters.To != nil {
		add("a.date <= $%d", *filters.To)
	}
	if filters.ExcludeCancelled {
		add("a.status <> $%d", model.AppointmentStatusCancelled)
	}

	query := detailedSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filters.Ascending {
		query += " ORDER BY a.date ASC"
	} else {
		query += " ORDER BY a.date DESC"
	}

	var rows []appointmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, translate(err, "list appointments")
	}

	appointments := make([]*model.Appointment, 0, len(rows))
	for i := range rows {
		appointments = append(appointments, rows[i].toModel(filters.WithPatient, filters.WithDoctor))
	}
	return appointments, nil
}
