package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maltedev/price-monitor/internal/events"
	"github.com/maltedev/price-monitor/internal/models"
	"github.com/maltedev/price-monitor/internal/normalize"
	"github.com/maltedev/price-monitor/internal/provider"
	"github.com/maltedev/price-monitor/internal/stats"
)

const urlColumns = `id, address, provider, status, last_error, last_scraped_at, added_at`

// Store persists monitored URLs and scrape results in Postgres. When stream
// is set, every stored result also writes a SCRAPE_COMPLETED outbox event in
// the same transaction.
type Store struct {
	db     *DB
	outbox *OutboxRepository
	stream string
	now    func() time.Time
}

func NewStore(db *DB, stream string) *Store {
	return &Store{
		db:     db,
		outbox: NewOutboxRepository(db),
		stream: stream,
		now:    time.Now,
	}
}

func (s *Store) AddURL(ctx context.Context, address string) (models.URL, error) {
	address = normalize.CleanText(address)
	if !normalize.IsHTTPURL(address) {
		return models.URL{}, models.ErrInvalidURL
	}

	u := models.URL{
		ID:       uuid.NewString(),
		Address:  address,
		Provider: provider.Resolve(address),
		Status:   models.URLPending,
		AddedAt:  s.now(),
	}
	tag, err := s.db.pool.Exec(ctx, insertURLQuery,
		uuid.MustParse(u.ID), u.Address, u.Provider, u.Status, u.AddedAt)
	if err != nil {
		return models.URL{}, fmt.Errorf("failed to insert url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.URL{}, models.ErrDuplicateURL
	}
	return u, nil
}

const insertURLQuery = `
	INSERT INTO urls (id, address, provider, status, added_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $5)
	ON CONFLICT (address) DO NOTHING`

// AddURLs inserts every valid address in one transaction, skipping ones
// already monitored, and reports how many rows were added.
func (s *Store) AddURLs(ctx context.Context, addresses []string) (int, error) {
	added := 0
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, a := range addresses {
			a = normalize.CleanText(a)
			if !normalize.IsHTTPURL(a) {
				continue
			}
			tag, err := tx.Exec(ctx, insertURLQuery,
				uuid.New(), a, provider.Resolve(a), models.URLPending, s.now())
			if err != nil {
				return fmt.Errorf("failed to insert url %s: %w", a, err)
			}
			added += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *Store) GetURL(ctx context.Context, id string) (models.URL, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return models.URL{}, models.ErrNotFound
	}
	row := s.db.pool.QueryRow(ctx, `SELECT `+urlColumns+` FROM urls WHERE id = $1`, uid)
	return scanURL(row)
}

func (s *Store) ListURLs(ctx context.Context, status models.URLStatus, limit int) ([]models.URL, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT `+urlColumns+`
		FROM urls
		WHERE ($1 = '' OR status = $1)
		ORDER BY added_at ASC, id ASC
		LIMIT NULLIF($2, 0)`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	return collectURLs(rows)
}

// UpdateURL changes the address and queues the URL for a fresh scrape.
func (s *Store) UpdateURL(ctx context.Context, id, address string) (models.URL, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return models.URL{}, models.ErrNotFound
	}
	address = normalize.CleanText(address)
	if !normalize.IsHTTPURL(address) {
		return models.URL{}, models.ErrInvalidURL
	}

	row := s.db.pool.QueryRow(ctx, `
		UPDATE urls
		SET address = $2, provider = $3, status = $4, last_error = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING `+urlColumns,
		uid, address, provider.Resolve(address), models.URLPending)
	u, err := scanURL(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return models.URL{}, models.ErrDuplicateURL
	}
	return u, err
}

func (s *Store) ResetURL(ctx context.Context, id string) error {
	return s.execOne(ctx, `
		UPDATE urls SET status = $2, last_error = NULL, updated_at = NOW()
		WHERE id = $1`, id, models.URLPending)
}

// DeleteURL removes the URL; its results go with it through the foreign key.
func (s *Store) DeleteURL(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM urls WHERE id = $1`, id)
}

func (s *Store) PendingURLs(ctx context.Context, limit int) ([]models.URL, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT `+urlColumns+`
		FROM urls
		WHERE status = $1
		ORDER BY added_at ASC, id ASC
		LIMIT $2`, models.URLPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending urls: %w", err)
	}
	return collectURLs(rows)
}

// ClaimURL only moves the row when it is still pending, so two overlapping
// runs never scrape the same URL.
func (s *Store) ClaimURL(ctx context.Context, id string) (bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE urls SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		uid, models.URLProcessing, models.URLPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim url: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteAttempt writes the result, the URL patch and, when enabled, the
// outbox event in one transaction.
func (s *Store) CompleteAttempt(ctx context.Context, urlID string, outcome models.Outcome) error {
	uid, err := uuid.Parse(urlID)
	if err != nil {
		return models.ErrNotFound
	}
	result := models.NewResult(uuid.NewString(), urlID, outcome)
	patch := models.PatchFromOutcome(outcome)

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE urls
			SET status = $2, provider = $3, last_error = $4, last_scraped_at = $5, updated_at = NOW()
			WHERE id = $1`,
			uid, patch.Status, patch.Provider, patch.LastError, patch.LastScrapedAt)
		if err != nil {
			return fmt.Errorf("failed to update url status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO results (
				id, url_id, address, name, price, list_price,
				discount, category, provider, status, error, scraped_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.MustParse(result.ID), uid, result.URL, result.Name, result.Price, result.ListPrice,
			result.Discount, result.Category, result.Provider, result.Status, result.Error, result.ScrapedAt)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}

		if s.stream == "" {
			return nil
		}
		event, err := NewScrapeCompletedEvent(events.NewScrapeCompleted(result), s.stream)
		if err != nil {
			return err
		}
		return s.outbox.InsertWithTx(ctx, tx, event)
	})
}

// MarkFailed is the status-only write used when the paired write could not
// be stored.
func (s *Store) MarkFailed(ctx context.Context, id string, message string) error {
	return s.execOne(ctx, `
		UPDATE urls SET status = $2, last_error = $3, last_scraped_at = $4, updated_at = NOW()
		WHERE id = $1`, id, models.URLError, message, s.now())
}

func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM urls WHERE status = $1`, models.URLPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending urls: %w", err)
	}
	return n, nil
}

func (s *Store) StatusCounts(ctx context.Context) (map[models.URLStatus]int, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT status, COUNT(*) FROM urls GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count urls: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.URLStatus]int, len(models.AllURLStatuses))
	for _, st := range models.AllURLStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[models.URLStatus(st)] = n
	}
	return counts, rows.Err()
}

func (s *Store) PriceSeries(ctx context.Context, urlID string, limit int) ([]models.PricePoint, error) {
	if _, err := s.GetURL(ctx, urlID); err != nil {
		return nil, err
	}
	rows, err := s.db.pool.Query(ctx, `
		SELECT scraped_at, price, provider FROM (
			SELECT scraped_at, price, provider
			FROM results
			WHERE url_id = $1 AND status = $2 AND price > 0
			ORDER BY scraped_at DESC
			LIMIT $3
		) newest
		ORDER BY scraped_at ASC`,
		uuid.MustParse(urlID), models.ScrapeSuccess, stats.SeriesLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query price series: %w", err)
	}
	defer rows.Close()

	points := []models.PricePoint{}
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Timestamp, &p.Price, &p.Provider); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Store) PriceAnalysis(ctx context.Context, search string) ([]models.PriceStats, error) {
	latest, err := s.latestResults(ctx)
	if err != nil {
		return nil, err
	}
	return stats.PriceAnalysis(latest, search), nil
}

func (s *Store) ProviderStats(ctx context.Context) ([]models.ProviderStats, error) {
	latest, err := s.latestResults(ctx)
	if err != nil {
		return nil, err
	}
	return stats.ProviderSummary(latest), nil
}

func (s *Store) PurgeResults(ctx context.Context) (int64, error) {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM results`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge results: %w", err)
	}
	return tag.RowsAffected(), nil
}

// OutboxBacklog reports outbox events per status for health checks.
func (s *Store) OutboxBacklog(ctx context.Context) (map[string]int64, error) {
	return s.outbox.CountByStatus(ctx)
}

func (s *Store) latestResults(ctx context.Context) ([]models.Result, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT DISTINCT ON (url_id)
			id, url_id, address, name, price, list_price,
			discount, category, provider, status, error, scraped_at
		FROM results
		WHERE status = $1
		ORDER BY url_id, scraped_at DESC`, models.ScrapeSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest results: %w", err)
	}
	defer rows.Close()

	var out []models.Result
	for rows.Next() {
		var (
			r         models.Result
			id, urlID uuid.UUID
			status    string
		)
		err := rows.Scan(&id, &urlID, &r.URL, &r.Name, &r.Price, &r.ListPrice,
			&r.Discount, &r.Category, &r.Provider, &status, &r.Error, &r.ScrapedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.ID, r.URLID, r.Status = id.String(), urlID.String(), models.ScrapeStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) execOne(ctx context.Context, query string, id string, args ...any) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return models.ErrNotFound
	}
	tag, err := s.db.pool.Exec(ctx, query, append([]any{uid}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanURL(row pgx.Row) (models.URL, error) {
	var (
		u      models.URL
		id     uuid.UUID
		status string
	)
	err := row.Scan(&id, &u.Address, &u.Provider, &status, &u.LastError, &u.LastScrapedAt, &u.AddedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.URL{}, models.ErrNotFound
	}
	if err != nil {
		return models.URL{}, err
	}
	u.ID, u.Status = id.String(), models.URLStatus(status)
	return u, nil
}

func collectURLs(rows pgx.Rows) ([]models.URL, error) {
	defer rows.Close()

	urls := []models.URL{}
	for rows.Next() {
		u, err := scanURL(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return urls, nil
}
