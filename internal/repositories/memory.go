package repositories

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/vectorvault/internal/models"
)

// MemoryStore is an in-process Store with brute-force cosine search. It is
// used when no DB_URL is configured and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	files  map[uuid.UUID]*models.File
	chunks map[uuid.UUID][]models.Chunk
	order  map[uuid.UUID]uint64 // commit sequence per file
	seq    uint64
	users  map[uuid.UUID]*models.User
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:  make(map[uuid.UUID]*models.File),
		chunks: make(map[uuid.UUID][]models.Chunk),
		order:  make(map[uuid.UUID]uint64),
		users:  make(map[uuid.UUID]*models.User),
		now:    time.Now,
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateFile(_ context.Context, file *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.UploadDate.IsZero() {
		file.UploadDate = s.now()
	}
	file.UpdatedAt = file.UploadDate
	stored := *file
	s.files[file.ID] = &stored
	return nil
}

func (s *MemoryStore) GetFile(_ context.Context, id uuid.UUID) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *f
	return &out, nil
}

func (s *MemoryStore) ListFiles(_ context.Context) ([]models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]models.File, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, *f)
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].UploadDate.Equal(files[j].UploadDate) {
			return files[i].ID.String() < files[j].ID.String()
		}
		return files[i].UploadDate.After(files[j].UploadDate)
	})
	return files, nil
}

func (s *MemoryStore) ClaimFile(_ context.Context, id uuid.UUID) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	if f.Status.InFlight() {
		return nil, ErrConflict
	}
	f.Status = models.StatusProcessing
	f.ErrorMessage = ""
	f.TotalChunks = 0
	f.UpdatedAt = s.now()
	delete(s.chunks, id)
	delete(s.order, id)
	out := *f
	return &out, nil
}

func (s *MemoryStore) AdvanceStatus(_ context.Context, id uuid.UUID, from, to models.FileStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	if f.Status != from {
		return ErrConflict
	}
	f.Status = to
	f.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) FailFile(_ context.Context, id uuid.UUID, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	if !f.Status.InFlight() {
		return ErrConflict
	}
	f.Status = models.StatusError
	f.ErrorMessage = cause
	f.TotalChunks = 0
	f.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) CommitChunks(_ context.Context, id uuid.UUID, chunks []models.Chunk) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !f.Status.InFlight() {
		return nil, ErrConflict
	}
	set := make([]models.Chunk, len(chunks))
	copy(set, chunks)
	sort.SliceStable(set, func(i, j int) bool { return set[i].ChunkNumber < set[j].ChunkNumber })
	s.chunks[id] = set
	s.seq++
	s.order[id] = s.seq
	f.Status = models.StatusStored
	f.TotalChunks = len(set)
	f.ErrorMessage = ""
	f.UpdatedAt = s.now()
	out := *f
	return &out, nil
}

func (s *MemoryStore) DeleteFile(_ context.Context, id uuid.UUID) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.files, id)
	delete(s.chunks, id)
	delete(s.order, id)
	return f, nil
}

func (s *MemoryStore) FailInFlight(_ context.Context, cause string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, f := range s.files {
		if f.Status.InFlight() {
			f.Status = models.StatusError
			f.ErrorMessage = cause
			f.TotalChunks = 0
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListChunks(_ context.Context, fileID uuid.UUID) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Chunk, len(s.chunks[fileID]))
	copy(out, s.chunks[fileID])
	return out, nil
}

func (s *MemoryStore) GetFileWithChunks(_ context.Context, id uuid.UUID) (*models.File, []models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	file := *f
	chunks := make([]models.Chunk, len(s.chunks[id]))
	copy(chunks, s.chunks[id])
	return &file, chunks, nil
}

func (s *MemoryStore) SearchChunks(_ context.Context, embedding []float32, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fileIDs := make([]uuid.UUID, 0, len(s.chunks))
	for id := range s.chunks {
		if f, ok := s.files[id]; ok && f.Status == models.StatusStored {
			fileIDs = append(fileIDs, id)
		}
	}
	sort.Slice(fileIDs, func(i, j int) bool { return s.order[fileIDs[i]] < s.order[fileIDs[j]] })

	var hits []models.SearchHit
	for _, id := range fileIDs {
		filename := s.files[id].Filename
		for _, c := range s.chunks[id] {
			hits = append(hits, models.SearchHit{
				ID:          c.ID,
				Text:        c.Text,
				TokenCount:  c.TokenCount,
				ChunkNumber: c.ChunkNumber,
				FileID:      c.FileID,
				Filename:    filename,
				Similarity:  clampSimilarity(cosine(embedding, c.Embedding.Slice())),
				CreatedAt:   c.CreatedAt,
			})
		}
	}
	// hits are already in creation order, a stable sort keeps it for ties
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit < len(hits) {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	return hits, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(user.Email, uuid.Nil) {
		return ErrEmailTaken
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *MemoryStore) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, id uuid.UUID, mutate func(u *models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := *current
	if err := mutate(&next); err != nil {
		return nil, err
	}
	if current.ActiveAdmin() && !next.ActiveAdmin() && s.activeAdmins() <= 1 {
		return nil, ErrLastAdmin
	}
	if !strings.EqualFold(current.Email, next.Email) && s.emailTaken(next.Email, id) {
		return nil, ErrEmailTaken
	}
	next.UpdatedAt = s.now()
	s.users[id] = &next
	out := next
	return &out, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, id uuid.UUID, check func(u *models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := check(u); err != nil {
		return nil, err
	}
	if u.ActiveAdmin() && s.activeAdmins() <= 1 {
		return nil, ErrLastAdmin
	}
	delete(s.users, id)
	return u, nil
}

func (s *MemoryStore) activeAdmins() int {
	n := 0
	for _, u := range s.users {
		if u.ActiveAdmin() {
			n++
		}
	}
	return n
}

func (s *MemoryStore) emailTaken(email string, except uuid.UUID) bool {
	for id, u := range s.users {
		if id != except && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
