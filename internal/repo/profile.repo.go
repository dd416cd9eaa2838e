package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"founding-members/internal/domain"
)

type ProfileRepo interface {
	// FindByUserId returns nil, nil when no profile row exists.
	FindByUserId(ctx context.Context, userID string) (*domain.UserProfile, error)
	// MarkFoundingMember sets the premium flags, creating the row if the
	// account system has not written one yet.
	MarkFoundingMember(ctx context.Context, userID, memberNumber string, purchasedAt time.Time) error
}

type profileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) ProfileRepo {
	return &profileRepo{db: db}
}

func (r *profileRepo) FindByUserId(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var (
		p      domain.UserProfile
		number sql.NullString
		bought sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, email, display_name, is_premium, is_founding_member,
		       founding_member_number, lifetime_access, purchased_date
		FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Email, &p.DisplayName, &p.IsPremium, &p.IsFoundingMember, &number, &p.LifetimeAccess, &bought)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile %s: %w", userID, err)
	}
	p.FoundingMemberNumber = number.String
	if bought.Valid {
		p.PurchasedDate = &bought.Time
	}
	return &p, nil
}

func (r *profileRepo) MarkFoundingMember(ctx context.Context, userID, memberNumber string, purchasedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, is_premium, is_founding_member, founding_member_number, lifetime_access, purchased_date)
		VALUES ($1, TRUE, TRUE, $2, TRUE, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			is_premium = TRUE,
			is_founding_member = TRUE,
			founding_member_number = EXCLUDED.founding_member_number,
			lifetime_access = TRUE,
			purchased_date = EXCLUDED.purchased_date`,
		userID, memberNumber, purchasedAt,
	)
	if err != nil {
		return fmt.Errorf("mark profile %s: %w", userID, err)
	}
	return nil
}
