// Package storage is a JSON-file backed store for monitored URLs and their
// scrape results, used when no database is configured.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/price-monitor/internal/models"
	"github.com/maltedev/price-monitor/internal/normalize"
	"github.com/maltedev/price-monitor/internal/provider"
	"github.com/maltedev/price-monitor/internal/stats"
)

type snapshot struct {
	URLs    []*models.URL   `json:"urls"`
	Results []models.Result `json:"results"`
}

// FileStore keeps everything in memory and rewrites the file after each
// change. A change whose write fails is undone in memory too. Claims are
// memory-only: a processing URL is written as pending, so a restart re-queues
// it. An empty filename keeps the store purely in memory.
type FileStore struct {
	mu       sync.RWMutex
	urls     map[string]*models.URL
	results  []models.Result
	filename string
	now      func() time.Time
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		urls:     make(map[string]*models.URL),
		filename: filename,
		now:      time.Now,
	}

	if filename == "" {
		return fs, nil
	}
	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", filename, err)
	}
	return fs, nil
}

func (fs *FileStore) AddURL(ctx context.Context, address string) (models.URL, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	u, err := fs.addLocked(address)
	if err != nil {
		return models.URL{}, err
	}
	if err := fs.commit(func() { delete(fs.urls, u.ID) }); err != nil {
		return models.URL{}, err
	}
	return *u, nil
}

// AddURLs adds every valid address not already monitored and reports how
// many were added.
func (fs *FileStore) AddURLs(ctx context.Context, addresses []string) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var added []string
	for _, a := range addresses {
		if u, err := fs.addLocked(a); err == nil {
			added = append(added, u.ID)
		}
	}
	if len(added) == 0 {
		return 0, nil
	}
	err := fs.commit(func() {
		for _, id := range added {
			delete(fs.urls, id)
		}
	})
	if err != nil {
		return 0, err
	}
	return len(added), nil
}

func (fs *FileStore) addLocked(address string) (*models.URL, error) {
	address = normalize.CleanText(address)
	if !normalize.IsHTTPURL(address) {
		return nil, models.ErrInvalidURL
	}
	for _, u := range fs.urls {
		if u.Address == address {
			return nil, models.ErrDuplicateURL
		}
	}
	u := &models.URL{
		ID:       uuid.NewString(),
		Address:  address,
		Provider: provider.Resolve(address),
		Status:   models.URLPending,
		AddedAt:  fs.now(),
	}
	fs.urls[u.ID] = u
	return u, nil
}

func (fs *FileStore) GetURL(ctx context.Context, id string) (models.URL, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	u, ok := fs.urls[id]
	if !ok {
		return models.URL{}, models.ErrNotFound
	}
	return *u, nil
}

// ListURLs returns URLs oldest first, optionally filtered by status.
func (fs *FileStore) ListURLs(ctx context.Context, status models.URLStatus, limit int) ([]models.URL, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return fs.listLocked(status, limit), nil
}

func (fs *FileStore) listLocked(status models.URLStatus, limit int) []models.URL {
	out := make([]models.URL, 0, len(fs.urls))
	for _, u := range fs.urls {
		if status == "" || u.Status == status {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UpdateURL changes the address and queues the URL for a fresh scrape.
func (fs *FileStore) UpdateURL(ctx context.Context, id, address string) (models.URL, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	u, ok := fs.urls[id]
	if !ok {
		return models.URL{}, models.ErrNotFound
	}
	address = normalize.CleanText(address)
	if !normalize.IsHTTPURL(address) {
		return models.URL{}, models.ErrInvalidURL
	}
	for _, other := range fs.urls {
		if other.ID != id && other.Address == address {
			return models.URL{}, models.ErrDuplicateURL
		}
	}

	prev := *u
	u.Address = address
	u.Provider = provider.Resolve(address)
	u.Status = models.URLPending
	u.LastError = nil
	if err := fs.commit(func() { *u = prev }); err != nil {
		return models.URL{}, err
	}
	return *u, nil
}

func (fs *FileStore) ResetURL(ctx context.Context, id string) error {
	return fs.mutate(id, func(u *models.URL) {
		u.Status = models.URLPending
		u.LastError = nil
	})
}

// DeleteURL removes the URL and all of its results.
func (fs *FileStore) DeleteURL(ctx context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	u, ok := fs.urls[id]
	if !ok {
		return models.ErrNotFound
	}
	delete(fs.urls, id)

	all := fs.results
	kept := make([]models.Result, 0, len(all))
	for _, r := range all {
		if r.URLID != id {
			kept = append(kept, r)
		}
	}
	fs.results = kept
	return fs.commit(func() {
		fs.urls[id] = u
		fs.results = all
	})
}

func (fs *FileStore) PendingURLs(ctx context.Context, limit int) ([]models.URL, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return fs.listLocked(models.URLPending, limit), nil
}

func (fs *FileStore) ClaimURL(ctx context.Context, id string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	u, ok := fs.urls[id]
	if !ok || u.Status != models.URLPending {
		return false, nil
	}
	u.Status = models.URLProcessing
	return true, nil
}

// CompleteAttempt appends the result and patches the URL under one lock, so
// readers never see one without the other. Both are undone when the write
// fails.
func (fs *FileStore) CompleteAttempt(ctx context.Context, urlID string, outcome models.Outcome) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	u, ok := fs.urls[urlID]
	if !ok {
		return models.ErrNotFound
	}

	prev, n := *u, len(fs.results)
	fs.results = append(fs.results, models.NewResult(uuid.NewString(), urlID, outcome))
	patch := models.PatchFromOutcome(outcome)
	u.Status = patch.Status
	u.Provider = patch.Provider
	u.LastError = patch.LastError
	scraped := patch.LastScrapedAt
	u.LastScrapedAt = &scraped

	return fs.commit(func() {
		fs.results = fs.results[:n]
		*u = prev
	})
}

// MarkFailed is the status-only write used when the paired write could not
// be stored.
func (fs *FileStore) MarkFailed(ctx context.Context, id string, message string) error {
	return fs.mutate(id, func(u *models.URL) {
		now := fs.now()
		u.Status = models.URLError
		u.LastError = &message
		u.LastScrapedAt = &now
	})
}

func (fs *FileStore) CountPending(ctx context.Context) (int, error) {
	counts, err := fs.StatusCounts(ctx)
	return counts[models.URLPending], err
}

func (fs *FileStore) StatusCounts(ctx context.Context) (map[models.URLStatus]int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	counts := make(map[models.URLStatus]int, len(models.AllURLStatuses))
	for _, s := range models.AllURLStatuses {
		counts[s] = 0
	}
	for _, u := range fs.urls {
		counts[u.Status]++
	}
	return counts, nil
}

func (fs *FileStore) Results(ctx context.Context, urlID string) ([]models.Result, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var out []models.Result
	for _, r := range fs.results {
		if r.URLID == urlID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (fs *FileStore) PriceSeries(ctx context.Context, urlID string, limit int) ([]models.PricePoint, error) {
	if _, err := fs.GetURL(ctx, urlID); err != nil {
		return nil, err
	}
	results, err := fs.Results(ctx, urlID)
	if err != nil {
		return nil, err
	}
	return stats.PriceSeries(results, limit), nil
}

func (fs *FileStore) PriceAnalysis(ctx context.Context, search string) ([]models.PriceStats, error) {
	return stats.PriceAnalysis(fs.latest(), search), nil
}

func (fs *FileStore) ProviderStats(ctx context.Context) ([]models.ProviderStats, error) {
	return stats.ProviderSummary(fs.latest()), nil
}

// PurgeResults deletes every stored result and reports how many there were.
func (fs *FileStore) PurgeResults(ctx context.Context) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	all := fs.results
	fs.results = nil
	if err := fs.commit(func() { fs.results = all }); err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

// latest returns the newest successful result of every URL still monitored.
func (fs *FileStore) latest() []models.Result {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	live := make([]models.Result, 0, len(fs.results))
	for _, r := range fs.results {
		if _, ok := fs.urls[r.URLID]; ok {
			live = append(live, r)
		}
	}
	return stats.LatestSuccessful(live)
}

func (fs *FileStore) mutate(id string, fn func(*models.URL)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	u, ok := fs.urls[id]
	if !ok {
		return models.ErrNotFound
	}
	prev := *u
	fn(u)
	return fs.commit(func() { *u = prev })
}

// commit writes the snapshot, running undo when the write fails. Callers hold
// the write lock.
func (fs *FileStore) commit(undo func()) error {
	if err := fs.save(); err != nil {
		undo()
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

func (fs *FileStore) save() error {
	if fs.filename == "" {
		return nil
	}

	snap := snapshot{URLs: make([]*models.URL, 0, len(fs.urls)), Results: fs.results}
	for _, u := range fs.urls {
		if u.Status == models.URLProcessing {
			c := *u
			c.Status = models.URLPending
			u = &c
		}
		snap.URLs = append(snap.URLs, u)
	}
	sort.Slice(snap.URLs, func(i, j int) bool { return snap.URLs[i].ID < snap.URLs[j].ID })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(fs.filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpFile, fs.filename)
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	for _, u := range snap.URLs {
		fs.urls[u.ID] = u
	}
	fs.results = snap.Results
	return nil
}
