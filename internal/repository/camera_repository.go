package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"xcam-worker-go/internal/models"
)

type CameraRepository struct {
	db *sql.DB
}

func NewCameraRepository(db *sql.DB) *CameraRepository {
	return &CameraRepository{db: db}
}

// ByMACs retrieves cameras by MAC address set, ordered by position.
func (r *CameraRepository) ByMACs(ctx context.Context, macs []string) ([]models.Camera, error) {
	query := `
		SELECT id, mac_address, ip_address, ip_type, username, password, position, updated_at
		FROM xcam_cameras
		WHERE mac_address = ANY($1)
		ORDER BY position, id
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(macs))
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	return scanCameras(rows)
}

// List retrieves all known cameras ordered by position.
func (r *CameraRepository) List(ctx context.Context) ([]models.Camera, error) {
	query := `
		SELECT id, mac_address, ip_address, ip_type, username, password, position, updated_at
		FROM xcam_cameras
		ORDER BY position, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	defer rows.Close()

	return scanCameras(rows)
}

// UpsertEndpoints records fresh discovery results, keyed by MAC address. A
// camera seen again under a new IP gets its address refreshed in place.
func (r *CameraRepository) UpsertEndpoints(ctx context.Context, endpoints []models.CameraEndpoint) error {
	query := `
		INSERT INTO xcam_cameras (mac_address, ip_address, ip_type, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (mac_address) DO UPDATE
		SET ip_address = EXCLUDED.ip_address,
			ip_type = EXCLUDED.ip_type,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	for _, endpoint := range endpoints {
		if _, err := r.db.ExecContext(ctx, query, endpoint.MAC, endpoint.IP, endpoint.Type, now); err != nil {
			return fmt.Errorf("failed to upsert camera %s: %w", endpoint.MAC, err)
		}
	}
	return nil
}

func scanCameras(rows *sql.Rows) ([]models.Camera, error) {
	var cameras []models.Camera
	for rows.Next() {
		var camera models.Camera
		err := rows.Scan(
			&camera.ID,
			&camera.MACAddress,
			&camera.IPAddress,
			&camera.IPType,
			&camera.Username,
			&camera.Password,
			&camera.Position,
			&camera.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cameras = append(cameras, camera)
	}
	return cameras, rows.Err()
}
