package grni_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"orvit/internal/domain/grni"
	"orvit/internal/infrastructure/storage/postgres"
)

var (
	_ grni.OwnerDirectory = (*OwnerDirectory)(nil)
	_ grni.ConfigSource   = (*AlertConfigReader)(nil)
)

// OwnerDirectory resolves follow-up owners from company_user_roles.
type OwnerDirectory struct {
	txManager *postgres.TxManager
}

// NewOwnerDirectory creates the directory reader.
func NewOwnerDirectory(txManager *postgres.TxManager) *OwnerDirectory {
	return &OwnerDirectory{txManager: txManager}
}

func candidatesQuery(companyID int64, role string) (string, []any, error) {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("u.id AS user_id", "u.name").
		From("company_user_roles r").
		Join("users u ON u.id = r.user_id").
		Where(squirrel.Eq{
			"r.company_id": companyID,
			"r.role":       role,
			"r.active":     true,
			"u.active":     true,
		}).
		OrderBy("u.id").
		ToSql()
}

// CandidatesForRole implements grni.OwnerDirectory.
func (d *OwnerDirectory) CandidatesForRole(ctx context.Context, companyID int64, role string) ([]grni.Candidate, error) {
	sql, args, err := candidatesQuery(companyID, role)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []grni.Candidate
	if err := pgxscan.Select(ctx, d.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	return out, nil
}

// AlertConfigReader reads grni_alert_config.
type AlertConfigReader struct {
	txManager *postgres.TxManager
}

// NewAlertConfigReader creates the config reader.
func NewAlertConfigReader(txManager *postgres.TxManager) *AlertConfigReader {
	return &AlertConfigReader{txManager: txManager}
}

func activeConfigQuery(companyID int64) (string, []any, error) {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("company_id", "owner_role_default", "yellow_days", "red_days", "critical_days", "active").
		From("grni_alert_config").
		Where(squirrel.Eq{"company_id": companyID, "active": true}).
		Limit(1).
		ToSql()
}

// ActiveAlertConfig implements grni.ConfigSource. Nil without error means
// the company has no active configuration.
func (c *AlertConfigReader) ActiveAlertConfig(ctx context.Context, companyID int64) (*grni.AlertConfig, error) {
	sql, args, err := activeConfigQuery(companyID)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var cfg grni.AlertConfig
	if err := pgxscan.Get(ctx, c.txManager.GetQuerier(ctx), &cfg, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert config: %w", err)
	}
	return &cfg, nil
}

// ActiveCompanies lists companies with an active alert configuration.
// The worker sweeps exactly these.
func (c *AlertConfigReader) ActiveCompanies(ctx context.Context) ([]int64, error) {
	sql, args, err := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("company_id").
		From("grni_alert_config").
		Where(squirrel.Eq{"active": true}).
		OrderBy("company_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []int64
	if err := pgxscan.Select(ctx, c.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select companies: %w", err)
	}
	return out, nil
}
