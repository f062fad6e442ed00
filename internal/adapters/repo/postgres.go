package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ListingStore = (*Postgres)(nil)
	_ domain.UserAdRepo   = (*Postgres)(nil)
)

// storeBatchAttempts — сколько раз повторяется транзакция дедупликации при конфликте сериализации.
const storeBatchAttempts = 3

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// StoreBatch реализует domain.ListingStore. Новые объявления определяются относительно
// того, что запрашивающий уже видел (seen_ads), в той же транзакции, в которой они
// попадают во «входящие» и в общий корпус.
func (p *Postgres) StoreBatch(ctx context.Context, requester string, batch []domain.Listing) ([]domain.Listing, error) {
	batch = uniqueByLink(batch)
	if len(batch) == 0 {
		return nil, nil
	}
	if strings.TrimSpace(requester) == "" {
		requester = domain.DefaultRequester
	}

	var lastErr error
	for attempt := 0; attempt < storeBatchAttempts; attempt++ {
		newOnes, err := p.storeBatchOnce(ctx, requester, batch)
		if err == nil {
			return newOnes, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("store batch: serialization retries exhausted: %w", lastErr)
}

func (p *Postgres) storeBatchOnce(ctx context.Context, requester string, batch []domain.Listing) ([]domain.Listing, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "ads", start, err)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	links := make([]string, 0, len(batch))
	for _, l := range batch {
		links = append(links, l.Link)
	}

	start = time.Now()
	rows, err := tx.Query(ctx, `SELECT link FROM seen_ads WHERE user_id = $1 AND link = ANY($2)`, requester, links)
	metrics.ObserveNetworkRequest("postgres", "seen_ads_select", "seen_ads", start, err)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]struct{}, len(links))
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			rows.Close()
			return nil, err
		}
		existing[link] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var newOnes []domain.Listing
	for _, l := range batch {
		if _, ok := existing[l.Link]; !ok {
			newOnes = append(newOnes, l)
		}
	}
	if len(newOnes) == 0 {
		start = time.Now()
		err = tx.Commit(ctx)
		metrics.ObserveNetworkRequest("postgres", "commit", "ads", start, err)
		return nil, err
	}

	queued := &pgx.Batch{}
	for _, l := range batch {
		queued.Queue(`
INSERT INTO ads (link, source, city, price, rooms, address, image, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (link) DO NOTHING
`, l.Link, l.Source, l.City, l.Price, l.Rooms, l.Address, l.Image, l.Description)
	}
	for _, l := range newOnes {
		queued.Queue(`
INSERT INTO new_ads (user_id, link, source, city, price, rooms, address, image, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT DO NOTHING
`, requester, l.Link, l.Source, l.City, l.Price, l.Rooms, l.Address, l.Image, l.Description)
		queued.Queue(`INSERT INTO seen_ads (user_id, link) VALUES ($1,$2) ON CONFLICT DO NOTHING`, requester, l.Link)
	}
	start = time.Now()
	br := tx.SendBatch(ctx, queued)
	for i := 0; i < queued.Len(); i++ {
		if _, err = br.Exec(); err != nil {
			break
		}
	}
	closeErr := br.Close()
	if err == nil {
		err = closeErr
	}
	metrics.ObserveNetworkRequest("postgres", "ads_insert_batch", "ads", start, err)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "ads", start, err)
	if err != nil {
		return nil, err
	}
	return newOnes, nil
}

func uniqueByLink(batch []domain.Listing) []domain.Listing {
	seen := make(map[string]struct{}, len(batch))
	out := make([]domain.Listing, 0, len(batch))
	for _, l := range batch {
		if l.Link == "" {
			continue
		}
		if _, ok := seen[l.Link]; ok {
			continue
		}
		seen[l.Link] = struct{}{}
		out = append(out, l)
	}
	return out
}

// buildAdsQuery собирает выборку из корпуса; предикат совпадает с SearchFilter.Allows.
func buildAdsQuery(q domain.AdsQuery) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT link, source, city, price, rooms, address, image, description FROM ads WHERE 1=1`)
	add := func(cond string, v any) {
		args = append(args, v)
		fmt.Fprintf(&sb, " AND %s $%d", cond, len(args))
	}
	if q.City != "" {
		add("city =", q.City)
	}
	if q.Filter.MinPrice != nil {
		add("price >=", *q.Filter.MinPrice)
	}
	if q.Filter.MaxPrice != nil {
		add("price <=", *q.Filter.MaxPrice)
	}
	if q.Filter.Rooms != nil {
		add("rooms =", *q.Filter.Rooms)
	}
	sb.WriteString(" ORDER BY seq")
	if q.Limit > 0 {
		args = append(args, q.Limit+1)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}

// ListAds реализует domain.ListingStore: окно offset/limit в порядке добавления.
func (p *Postgres) ListAds(ctx context.Context, q domain.AdsQuery) (domain.AdsPage, error) {
	if q.Offset < 0 {
		q.Offset = 0
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	query, args := buildAdsQuery(q)
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "ads_list", "ads", start, err)
	if err != nil {
		return domain.AdsPage{}, err
	}
	defer rows.Close()

	items := make([]domain.Listing, 0)
	for rows.Next() {
		var l domain.Listing
		if err := rows.Scan(&l.Link, &l.Source, &l.City, &l.Price, &l.Rooms, &l.Address, &l.Image, &l.Description); err != nil {
			return domain.AdsPage{}, err
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return domain.AdsPage{}, err
	}

	page := domain.AdsPage{Items: items}
	if q.Limit > 0 && len(items) > q.Limit {
		page.Items = items[:q.Limit]
		page.HasMore = true
	}
	page.NextOffset = q.Offset + len(page.Items)
	return page, nil
}

// ListInbox реализует domain.ListingStore.
func (p *Postgres) ListInbox(ctx context.Context, requester string) ([]domain.InboxListing, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, link, source, city, price, rooms, address, image, description
FROM new_ads WHERE user_id = $1
ORDER BY created_at, link
`, requester)
	metrics.ObserveNetworkRequest("postgres", "new_ads_list", "new_ads", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.InboxListing, 0)
	for rows.Next() {
		var l domain.InboxListing
		if err := rows.Scan(&l.UserID, &l.Link, &l.Source, &l.City, &l.Price, &l.Rooms, &l.Address, &l.Image, &l.Description); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ResetInbox реализует domain.ListingStore.
func (p *Postgres) ResetInbox(ctx context.Context, requester string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM new_ads WHERE user_id = $1`, requester)
	metrics.ObserveNetworkRequest("postgres", "new_ads_delete", "new_ads", start, err)
	return err
}
