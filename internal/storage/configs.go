package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/veritrail/sla-monitor/internal/model"
)

// ConfigSource provides the active SLA configurations. Configs are
// operator-maintained and read-only to the monitor; the full set is
// re-fetched each sweep, no caching.
type ConfigSource interface {
	// ListActiveConfigs returns all active SLA configurations in creation order
	ListActiveConfigs(ctx context.Context) ([]*model.SLAConfig, error)
}

// SQLiteConfigSource implements ConfigSource over the shared SQLite handle
type SQLiteConfigSource struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteConfigSource creates a new SQLite-backed config source
func NewSQLiteConfigSource(db *sql.DB, logger *zap.Logger) *SQLiteConfigSource {
	return &SQLiteConfigSource{
		logger: logger.Named("config-source"),
		db:     db,
	}
}

// ListActiveConfigs implements ConfigSource.ListActiveConfigs
func (s *SQLiteConfigSource) ListActiveConfigs(ctx context.Context) ([]*model.SLAConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, client_id, package_id, service_type,
			target_tat_days, warning_threshold_hrs, critical_threshold_hrs,
			is_active, created_at, updated_at
		FROM sla_configs
		WHERE is_active = 1
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list SLA configs: %w", err)
	}
	defer rows.Close()

	var configs []*model.SLAConfig
	for rows.Next() {
		config := &model.SLAConfig{}
		var clientID, packageID, serviceType sql.NullString

		err := rows.Scan(
			&config.ID,
			&config.Name,
			&clientID,
			&packageID,
			&serviceType,
			&config.TargetTATDays,
			&config.WarningThresholdHrs,
			&config.CriticalThresholdHrs,
			&config.IsActive,
			&config.CreatedAt,
			&config.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan SLA config: %w", err)
		}

		if clientID.Valid {
			config.ClientID = &clientID.String
		}
		if packageID.Valid {
			config.PackageID = &packageID.String
		}
		if serviceType.Valid {
			config.ServiceType = &serviceType.String
		}

		configs = append(configs, config)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return configs, nil
}
