package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/rohits-web03/vectorvault/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var inFlight = []string{string(models.StatusProcessing), string(models.StatusEmbedded)}

// PostgresStore keeps files, users and pgvector chunk embeddings in PostgreSQL.
type PostgresStore struct {
	db *gorm.DB
}

// ConnectDatabase opens the database, enables pgvector and runs migrations.
func ConnectDatabase(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}
	// Run migrations
	err = db.AutoMigrate(
		&models.User{},
		&models.File{},
		&models.Chunk{},
	)
	if err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Successfully connected to database")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) CreateFile(ctx context.Context, file *models.File) error {
	return s.db.WithContext(ctx).Create(file).Error
}

func (s *PostgresStore) GetFile(ctx context.Context, id uuid.UUID) (*models.File, error) {
	var file models.File
	if err := s.db.WithContext(ctx).First(&file, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &file, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context) ([]models.File, error) {
	files := []models.File{}
	err := s.db.WithContext(ctx).Order("upload_date DESC").Find(&files).Error
	return files, err
}

func (s *PostgresStore) ClaimFile(ctx context.Context, id uuid.UUID) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.File{}).
			Where("id = ? AND status NOT IN ?", id, inFlight).
			Updates(map[string]any{
				"status":        models.StatusProcessing,
				"error_message": "",
				"total_chunks":  0,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrConflict(tx, id)
		}
		if err := tx.Where("file_id = ?", id).Delete(&models.Chunk{}).Error; err != nil {
			return err
		}
		return tx.First(&file, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *PostgresStore) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to models.FileStatus) error {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.File{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(db, id)
	}
	return nil
}

func (s *PostgresStore) FailFile(ctx context.Context, id uuid.UUID, cause string) error {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.File{}).
		Where("id = ? AND status IN ?", id, inFlight).
		Updates(map[string]any{"status": models.StatusError, "error_message": cause, "total_chunks": 0})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(db, id)
	}
	return nil
}

func (s *PostgresStore) CommitChunks(ctx context.Context, id uuid.UUID, chunks []models.Chunk) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&file, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if !file.Status.InFlight() {
			return ErrConflict
		}
		if err := tx.Where("file_id = ?", id).Delete(&models.Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) > 0 {
			if err := tx.CreateInBatches(chunks, 100).Error; err != nil {
				return fmt.Errorf("failed to insert chunks: %w", err)
			}
		}
		file.Status = models.StatusStored
		file.TotalChunks = len(chunks)
		file.ErrorMessage = ""
		return tx.Model(&file).Updates(map[string]any{
			"status":        file.Status,
			"total_chunks":  file.TotalChunks,
			"error_message": "",
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, id uuid.UUID) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&file, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Where("file_id = ?", id).Delete(&models.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.File{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *PostgresStore) FailInFlight(ctx context.Context, cause string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.File{}).
		Where("status IN ?", inFlight).
		Updates(map[string]any{"status": models.StatusError, "error_message": cause, "total_chunks": 0})
	return res.RowsAffected, res.Error
}

func (s *PostgresStore) ListChunks(ctx context.Context, fileID uuid.UUID) ([]models.Chunk, error) {
	chunks := []models.Chunk{}
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("chunk_number ASC").
		Find(&chunks).Error
	return chunks, err
}

func (s *PostgresStore) GetFileWithChunks(ctx context.Context, id uuid.UUID) (*models.File, []models.Chunk, error) {
	var (
		file   models.File
		chunks = []models.Chunk{}
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&file, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		return tx.Where("file_id = ?", id).Order("chunk_number ASC").Find(&chunks).Error
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, err
	}
	return &file, chunks, nil
}

type hitRow struct {
	models.SearchHit
	Distance float64
}

// SearchChunks orders by pgvector cosine distance; ties fall back to
// creation order.
func (s *PostgresStore) SearchChunks(ctx context.Context, embedding []float32, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	var rows []hitRow
	err := s.db.WithContext(ctx).
		Table("chunks").
		Select(`chunks.id, chunks.text, chunks.token_count, chunks.chunk_number, chunks.file_id,
			chunks.created_at, files.filename, chunks.embedding <=> ? AS distance`, pgvector.NewVector(embedding)).
		Joins("JOIN files ON files.id = chunks.file_id").
		Where("files.status = ?", string(models.StatusStored)).
		Order("distance ASC, chunks.created_at ASC, chunks.chunk_number ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	hits := make([]models.SearchHit, 0, len(rows))
	for _, r := range rows {
		hit := r.SearchHit
		hit.Similarity = clampSimilarity(1 - r.Distance)
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	return uniqueEmail(s.db.WithContext(ctx).Create(user).Error)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "lower(email) = ?", strings.ToLower(email)).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&users).Error
	return users, err
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id uuid.UUID, mutate func(u *models.User) error) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		admins, err := lockActiveAdmins(tx)
		if err != nil {
			return err
		}
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		wasAdmin := user.ActiveAdmin()
		if err := mutate(&user); err != nil {
			return err
		}
		if wasAdmin && !user.ActiveAdmin() && admins <= 1 {
			return ErrLastAdmin
		}
		return uniqueEmail(tx.Save(&user).Error)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID, check func(u *models.User) error) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		admins, err := lockActiveAdmins(tx)
		if err != nil {
			return err
		}
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if err := check(&user); err != nil {
			return err
		}
		if user.ActiveAdmin() && admins <= 1 {
			return ErrLastAdmin
		}
		return tx.Delete(&models.User{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// lockActiveAdmins serialises admin-affecting writes and returns the
// current number of active admins.
func lockActiveAdmins(tx *gorm.DB) (int, error) {
	var ids []uuid.UUID
	err := tx.Model(&models.User{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("is_admin = ? AND is_active = ?", true, true).
		Pluck("id", &ids).Error
	return len(ids), err
}

func missingOrConflict(db *gorm.DB, id uuid.UUID) error {
	var n int64
	if err := db.Model(&models.File{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func uniqueEmail(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}
