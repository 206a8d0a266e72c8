package store

import (
	"context"
	"database/sql"
	"fmt"

	"fulfillment-service/internal/models"
)

// CreateCourierTask persists a newly dispatched courier task
func (s *Store) CreateCourierTask(ctx context.Context, task *models.CourierTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courier_tasks
			(task_id, split_id, request_id, status, status_code, tracking_url)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		task.TaskID, task.SplitID, task.RequestID, task.Status, task.StatusCode, task.TrackingURL)
	if err != nil {
		return fmt.Errorf("failed to create courier task %s: %w", task.TaskID, err)
	}
	return nil
}

// GetCourierTask retrieves a courier task by ID
func (s *Store) GetCourierTask(ctx context.Context, taskID string) (*models.CourierTask, error) {
	var task models.CourierTask
	err := s.db.GetContext(ctx, &task, "SELECT * FROM courier_tasks WHERE task_id = $1", taskID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("courier task not found: %s", taskID)
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetCourierTaskBySplit retrieves the courier task linked to a split, if any
func (s *Store) GetCourierTaskBySplit(ctx context.Context, splitID string) (*models.CourierTask, error) {
	var task models.CourierTask
	err := s.db.GetContext(ctx, &task,
		"SELECT * FROM courier_tasks WHERE split_id = $1 ORDER BY created_at DESC LIMIT 1", splitID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// AdvanceCourierTask applies a status callback only when the incoming code is
// later than the last applied one. Returns false when the callback is stale.
// Rider fields overwrite only when present, so a rider-less callback keeps the
// last known location.
func (s *Store) AdvanceCourierTask(ctx context.Context, taskID, status string, code int, message string, rider *models.RiderInfo) (bool, error) {
	var name, phone, vehicle string
	var lat, lng sql.NullFloat64
	if rider != nil {
		name, phone, vehicle = rider.Name, rider.Phone, rider.Vehicle
		if rider.Latitude != 0 || rider.Longitude != 0 {
			lat = sql.NullFloat64{Float64: rider.Latitude, Valid: true}
			lng = sql.NullFloat64{Float64: rider.Longitude, Valid: true}
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE courier_tasks
		SET status = $1, status_code = $2, message = $3,
		    partner_name = COALESCE(NULLIF($4, ''), partner_name),
		    partner_phone = COALESCE(NULLIF($5, ''), partner_phone),
		    vehicle = COALESCE(NULLIF($6, ''), vehicle),
		    latitude = COALESCE($7, latitude),
		    longitude = COALESCE($8, longitude),
		    updated_at = NOW()
		WHERE task_id = $9 AND status_code < $2`,
		status, code, message, name, phone, vehicle, lat, lng, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to advance courier task %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateCourierLocation updates only the live rider location
func (s *Store) UpdateCourierLocation(ctx context.Context, taskID string, lat, lng float64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE courier_tasks SET latitude = $1, longitude = $2, updated_at = NOW() WHERE task_id = $3",
		lat, lng, taskID)
	return err
}
