package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"founding-members/internal/domain"
)

type MembershipRepo interface {
	// FindByUserId returns nil, nil when the user is not a member.
	FindByUserId(ctx context.Context, userID string) (*domain.FoundingMember, error)
	// Create allocates the next member number for year and inserts m in a
	// single transaction, filling m.MemberNumber. A losing concurrent insert
	// returns ErrAlreadyMember and consumes no number.
	Create(ctx context.Context, m *domain.FoundingMember, year int) error
	// ListByYear returns the members of year ordered by sequence.
	ListByYear(ctx context.Context, year int) ([]domain.FoundingMember, error)
}

type membershipRepo struct {
	db *sql.DB
}

func NewMembershipRepo(db *sql.DB) MembershipRepo {
	return &membershipRepo{db: db}
}

const memberColumns = `user_id, tier, member_number, price_paid, currency, badge, purchased_at, display_on_wall`

func scanMember(row interface{ Scan(...any) error }) (*domain.FoundingMember, error) {
	var m domain.FoundingMember
	err := row.Scan(&m.UserID, &m.Tier, &m.MemberNumber, &m.PricePaid, &m.Currency, &m.Badge, &m.PurchasedAt, &m.DisplayOnWall)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepo) FindByUserId(ctx context.Context, userID string) (*domain.FoundingMember, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM founding_members WHERE user_id = $1", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find member %s: %w", userID, err)
	}
	return m, nil
}

func (r *membershipRepo) Create(ctx context.Context, m *domain.FoundingMember, year int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The upsert takes a row lock on the year's counter that is held until
	// commit, so allocations for the same year are serialized.
	var seq int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO member_sequences (year, last_value) VALUES ($1, $2)
		ON CONFLICT (year) DO UPDATE SET last_value = member_sequences.last_value + 1
		RETURNING last_value`, year, domain.FirstMemberSequence,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("allocate member number for %d: %w", year, err)
	}
	number := domain.FormatMemberNumber(year, seq)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO founding_members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.UserID, m.Tier, number, m.PricePaid, m.Currency, m.Badge, m.PurchasedAt, m.DisplayOnWall,
	)
	if constraint, ok := uniqueConstraint(err); ok {
		if constraint == "founding_members_member_number_key" {
			return r.skipTakenNumber(ctx, tx, year, seq)
		}
		return ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("insert member %s: %w", m.UserID, err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	m.MemberNumber = number
	return nil
}

// skipTakenNumber moves the year's counter past a number that is already
// in use, so the caller's next attempt allocates a fresh one.
func (r *membershipRepo) skipTakenNumber(ctx context.Context, tx *sql.Tx, year int, seq int64) error {
	_ = tx.Rollback()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO member_sequences (year, last_value) VALUES ($1, $2)
		ON CONFLICT (year) DO UPDATE SET last_value = GREATEST(member_sequences.last_value, EXCLUDED.last_value)`,
		year, seq)
	if err != nil {
		return fmt.Errorf("skip member number %d-%d: %w", year, seq, err)
	}
	return fmt.Errorf("%w: %s", ErrMemberNumberTaken, domain.FormatMemberNumber(year, seq))
}

func (r *membershipRepo) ListByYear(ctx context.Context, year int) ([]domain.FoundingMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+` FROM founding_members
		WHERE member_number LIKE $1
		ORDER BY CAST(split_part(member_number, '-', 2) AS BIGINT)`,
		domain.MemberNumberPrefix(year)+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.FoundingMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}
