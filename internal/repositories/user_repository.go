package repositories

import (
	"context"
	"errors"

	"dm-chat-service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// InsertIfAbsent creates the user unless a row with the same id exists.
// An existing row is left untouched, so the first stored email wins.
func (r *UserRepository) InsertIfAbsent(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(user).Error
}

// UpsertEmail creates the user or refreshes the email of an existing row
func (r *UserRepository) UpsertEmail(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email"}),
		}).
		Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListExcept returns every user but excludeID, ordered by email
func (r *UserRepository) ListExcept(ctx context.Context, excludeID string) ([]models.User, error) {
	users := make([]models.User, 0)
	err := r.db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Order("email ASC").
		Find(&users).Error
	return users, err
}

// DeleteByIDs removes the given users and reports how many rows went away
func (r *UserRepository) DeleteByIDs(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.User{})
	return res.RowsAffected, res.Error
}
