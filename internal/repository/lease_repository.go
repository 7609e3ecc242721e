package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leaseline/internal/entities"
	"leaseline/internal/interfaces"
)

// LeaseRepository resolves an inbound sender to the full lease context in one
// read. It never caches: every inbound message gets a fresh snapshot.
type LeaseRepository struct {
	db *pgxpool.Pool
}

func NewLeaseRepository(db *pgxpool.Pool) *LeaseRepository {
	return &LeaseRepository{db: db}
}

// Resolve looks up the active lease for a normalized phone number.
func (r *LeaseRepository) Resolve(ctx context.Context, phone string) (entities.LeaseContext, error) {
	return r.query(ctx, "t.phone = $1 AND l.status = 'active'", phone)
}

// ByLeaseID loads the snapshot for a known lease, regardless of status.
func (r *LeaseRepository) ByLeaseID(ctx context.Context, leaseID int) (entities.LeaseContext, error) {
	return r.query(ctx, "l.id = $1", leaseID)
}

func (r *LeaseRepository) query(ctx context.Context, where string, arg any) (entities.LeaseContext, error) {
	var (
		lease entities.LeaseContext
		prefs []byte
	)
	err := r.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT l.id, l.monthly_rent_cents,
		       COALESCE(l.start_date::text, ''), COALESCE(l.end_date::text, ''),
		       t.id, t.name, t.phone,
		       u.id, u.street_address, u.unit_number,
		       o.id, o.name, o.phone, o.telegram_chat_id, o.notification_prefs
		FROM leases l
		JOIN tenants t ON t.id = l.tenant_id
		JOIN units u ON u.id = l.unit_id
		JOIN landlords o ON o.id = u.landlord_id
		WHERE %s
		ORDER BY l.id DESC
		LIMIT 1
	`, where), arg).Scan(
		&lease.LeaseID, &lease.MonthlyRentCents, &lease.StartDate, &lease.EndDate,
		&lease.Tenant.ID, &lease.Tenant.Name, &lease.Tenant.Phone,
		&lease.Unit.ID, &lease.Unit.StreetAddress, &lease.Unit.UnitNumber,
		&lease.Landlord.ID, &lease.Landlord.Name, &lease.Landlord.Phone,
		&lease.Landlord.TelegramChatID, &prefs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entities.LeaseContext{}, interfaces.ErrLeaseNotFound
		}
		return entities.LeaseContext{}, fmt.Errorf("resolve lease context: %w", err)
	}

	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &lease.Landlord.Preferences); err != nil {
			return entities.LeaseContext{}, fmt.Errorf("decode notification prefs: %w", err)
		}
	}
	return lease, nil
}
