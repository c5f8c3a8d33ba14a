package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"orvit/internal/core/id"
	"orvit/internal/domain/grni"
)

// CompressionAlgo specifies how audit metadata is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 8 * 1024

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Compile-time check.
var _ grni.AuditLog = (*AuditLog)(nil)

// AuditLog is the append-only accrual audit trail (grni_audit_log).
// Metadata above the threshold is stored zstd-compressed in a bytea column.
type AuditLog struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditLog creates the audit writer.
func NewAuditLog(txManager *TxManager) (*AuditLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditLog{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// storedMetadata is the on-disk form of AuditEntry.Metadata.
type storedMetadata struct {
	Plain      []byte
	Compressed []byte
	Algo       CompressionAlgo
}

func (l *AuditLog) encodeMetadata(meta map[string]any) (storedMetadata, error) {
	if len(meta) == 0 {
		return storedMetadata{Algo: CompressionNone}, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return storedMetadata{}, fmt.Errorf("marshal metadata: %w", err)
	}
	if len(raw) <= l.compressThreshold {
		return storedMetadata{Plain: raw, Algo: CompressionNone}, nil
	}
	return storedMetadata{Compressed: l.encoder.EncodeAll(raw, nil), Algo: CompressionZstd}, nil
}

func (l *AuditLog) decodeMetadata(m storedMetadata) (map[string]any, error) {
	raw := m.Plain
	if m.Algo == CompressionZstd && len(m.Compressed) > 0 {
		var err error
		raw, err = l.decoder.DecodeAll(m.Compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress metadata: %w", err)
		}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return out, nil
}

func (l *AuditLog) insertQuery(e *grni.AuditEntry) (string, []any, error) {
	meta, err := l.encodeMetadata(e.Metadata)
	if err != nil {
		return "", nil, err
	}
	return psql.Insert("grni_audit_log").
		SetMap(map[string]any{
			"id":                  e.ID,
			"accrual_id":          e.AccrualID,
			"company_id":          e.CompanyID,
			"action":              e.Action,
			"from_status":         e.FromStatus,
			"to_status":           e.ToStatus,
			"amount_before":       e.AmountBefore,
			"amount_after":        e.AmountAfter,
			"from_owner_id":       e.FromOwnerID,
			"to_owner_id":         e.ToOwnerID,
			"reason_code":         e.ReasonCode,
			"reason":              e.Reason,
			"metadata":            meta.Plain,
			"metadata_compressed": meta.Compressed,
			"compression_algo":    meta.Algo,
			"user_id":             e.UserID,
			"created_at":          e.CreatedAt,
		}).
		ToSql()
}

// Append implements grni.AuditLog.
func (l *AuditLog) Append(ctx context.Context, e *grni.AuditEntry) error {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	sql, args, err := l.insertQuery(e)
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := l.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

type auditRow struct {
	grni.AuditEntry
	Metadata           []byte          `db:"metadata"`
	MetadataCompressed []byte          `db:"metadata_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
}

func historyQuery(companyID int64, accrualID id.ID) (string, []any, error) {
	return psql.Select(
		"l.id", "l.accrual_id", "l.company_id", "l.action",
		"l.from_status", "l.to_status", "l.amount_before", "l.amount_after",
		"l.from_owner_id", "l.to_owner_id", "l.reason_code", "l.reason",
		"l.metadata", "l.metadata_compressed", "l.compression_algo",
		"l.user_id", "l.created_at",
		"CASE WHEN l.user_id = 0 THEN 'Sistema' ELSE COALESCE(u.name, '') END AS user_name",
	).
		From("grni_audit_log l").
		LeftJoin("users u ON u.id = l.user_id").
		Where(squirrel.Eq{"l.company_id": companyID, "l.accrual_id": accrualID}).
		OrderBy("l.created_at DESC", "l.id DESC").
		ToSql()
}

// History implements grni.AuditLog.
func (l *AuditLog) History(ctx context.Context, companyID int64, accrualID id.ID) ([]grni.AuditEntry, error) {
	sql, args, err := historyQuery(companyID, accrualID)
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var rows []auditRow
	if err := pgxscan.Select(ctx, l.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	out := make([]grni.AuditEntry, len(rows))
	for i, r := range rows {
		meta, err := l.decodeMetadata(storedMetadata{Plain: r.Metadata, Compressed: r.MetadataCompressed, Algo: r.CompressionAlgo})
		if err != nil {
			return nil, fmt.Errorf("audit %s: %w", r.ID, err)
		}
		out[i] = r.AuditEntry
		out[i].Metadata = meta
	}
	return out, nil
}
