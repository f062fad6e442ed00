package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

const userAdColumns = `id, user_id, images, city, rooms, price, address, description, phone, created_at, status`

func joinImages(paths []string) sql.NullString {
	if len(paths) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.Join(paths, ","), Valid: true}
}

func splitImages(raw sql.NullString) []string {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw.String, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserAd(row rowScanner) (domain.UserAd, error) {
	var (
		ad     domain.UserAd
		images sql.NullString
		status string
	)
	if err := row.Scan(&ad.ID, &ad.UserID, &images, &ad.City, &ad.Rooms, &ad.Price, &ad.Address, &ad.Description, &ad.Phone, &ad.CreatedAt, &status); err != nil {
		return domain.UserAd{}, err
	}
	ad.Images = splitImages(images)
	ad.Status = domain.ModerationStatus(status)
	return ad, nil
}

// CreateUserAd реализует domain.UserAdRepo; объявление всегда создаётся в статусе pending.
func (p *Postgres) CreateUserAd(ctx context.Context, ad domain.UserAd) (domain.UserAd, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if ad.CreatedAt.IsZero() {
		ad.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO user_ads (user_id, images, city, rooms, price, address, description, phone, created_at, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'pending')
RETURNING `+userAdColumns,
		ad.UserID, joinImages(ad.Images), ad.City, ad.Rooms, ad.Price, ad.Address, ad.Description, ad.Phone, ad.CreatedAt)
	created, err := scanUserAd(row)
	metrics.ObserveNetworkRequest("postgres", "user_ads_insert", "user_ads", start, err)
	if err != nil {
		return domain.UserAd{}, err
	}
	return created, nil
}

// GetUserAd реализует domain.UserAdRepo.
func (p *Postgres) GetUserAd(ctx context.Context, id int64) (domain.UserAd, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	ad, err := scanUserAd(p.pool.QueryRow(ctx, `SELECT `+userAdColumns+` FROM user_ads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "user_ads_get", "user_ads", start, nil)
		return domain.UserAd{}, domain.ErrUserAdNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "user_ads_get", "user_ads", start, err)
	return ad, err
}

// UpdateUserAdStatus переводит объявление из статуса from в to. Если объявление
// в другом статусе, возвращается domain.ErrInvalidTransition.
func (p *Postgres) UpdateUserAdStatus(ctx context.Context, id int64, from, to domain.ModerationStatus) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE user_ads SET status = $3 WHERE id = $1 AND status = $2`, id, string(from), string(to))
	metrics.ObserveNetworkRequest("postgres", "user_ads_update_status", "user_ads", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := p.GetUserAd(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
}

// DeleteUserAd реализует domain.UserAdRepo.
func (p *Postgres) DeleteUserAd(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM user_ads WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "user_ads_delete", "user_ads", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserAdNotFound
	}
	return nil
}

// DeleteUserAdIfStatus удаляет объявление, только если оно всё ещё в статусе status.
// Иначе возвращается domain.ErrInvalidTransition.
func (p *Postgres) DeleteUserAdIfStatus(ctx context.Context, id int64, status domain.ModerationStatus) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM user_ads WHERE id = $1 AND status = $2`, id, string(status))
	metrics.ObserveNetworkRequest("postgres", "user_ads_delete_guarded", "user_ads", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	ad, err := p.GetUserAd(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, ad.Status, domain.ModerationRejected)
}

// ListUserAdsByStatus возвращает объявления в статусе, новые первыми.
func (p *Postgres) ListUserAdsByStatus(ctx context.Context, status domain.ModerationStatus) ([]domain.UserAd, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+userAdColumns+` FROM user_ads WHERE status = $1 ORDER BY created_at DESC, id DESC`, string(status))
	metrics.ObserveNetworkRequest("postgres", "user_ads_list", "user_ads", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserAd, 0)
	for rows.Next() {
		ad, err := scanUserAd(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ad)
	}
	return out, rows.Err()
}
