package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/peakpoint/backend/internal/models"
	"github.com/peakpoint/backend/internal/services"
	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

var _ services.UserStore = (*UserRepository)(nil)

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *UserRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.DB.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *UserRepository) FindUserByProviderID(ctx context.Context, provider models.OAuthProvider, providerID string) (*models.User, error) {
	column, ok := provider.Column()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	var user models.User
	if err := r.DB.WithContext(ctx).Where(column+" = ?", providerID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := r.DB.WithContext(ctx).Omit("RecoveryCodes").Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", services.ErrConflict, err)
		}
		return err
	}
	return nil
}

// LinkProvider sets the provider column only while it is still NULL, so a
// repeated link is a no-op and an existing link is never overwritten.
func (r *UserRepository) LinkProvider(ctx context.Context, userID uuid.UUID, provider models.OAuthProvider, providerID string) error {
	column, ok := provider.Column()
	if !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}

	result := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND "+column+" IS NULL", userID).
		Update(column, providerID)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return fmt.Errorf("%w: %v", services.ErrConflict, result.Error)
		}
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	user, err := r.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if linked := user.ProviderID(provider); linked != nil && *linked == providerID {
		return nil
	}
	return fmt.Errorf("%w: user already linked to another %s account", services.ErrConflict, provider)
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash string) error {
	result := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_hash", hash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return services.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetPendingTwoFactorSecret(ctx context.Context, userID uuid.UUID, encryptedSecret string) error {
	result := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("pending_two_factor_secret", encryptedSecret)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return services.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) EnableTwoFactor(ctx context.Context, userID uuid.UUID, pendingSecret string, codeHashes []string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).
			Where("id = ? AND pending_two_factor_secret = ?", userID, pendingSecret).
			Updates(map[string]interface{}{
				"two_factor_secret":         pendingSecret,
				"pending_two_factor_secret": "",
				"two_factor_enabled":        true,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return services.ErrNoSecret
		}

		if err := tx.Where("user_id = ?", userID).Delete(&models.RecoveryCode{}).Error; err != nil {
			return err
		}

		codes := make([]models.RecoveryCode, len(codeHashes))
		for i, hash := range codeHashes {
			codes[i] = models.RecoveryCode{UserID: userID, Position: i, CodeHash: hash}
		}
		if len(codes) == 0 {
			return nil
		}
		return tx.Create(&codes).Error
	})
}

// ConsumeRecoveryCode marks a matching unused code as used. The conditional
// update guarantees that concurrent redemptions of one code succeed at most once.
func (r *UserRepository) ConsumeRecoveryCode(ctx context.Context, userID uuid.UUID, codeHash string) (bool, error) {
	result := r.DB.WithContext(ctx).
		Model(&models.RecoveryCode{}).
		Where("user_id = ? AND code_hash = ? AND used_at IS NULL", userID, codeHash).
		Update("used_at", time.Now().UTC())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *UserRepository) CountUnusedRecoveryCodes(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&models.RecoveryCode{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

func (r *UserRepository) DisableTwoFactor(ctx context.Context, userID uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"two_factor_enabled":        false,
				"two_factor_secret":         "",
				"pending_two_factor_secret": "",
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return services.ErrUserNotFound
		}
		return tx.Where("user_id = ?", userID).Delete(&models.RecoveryCode{}).Error
	})
}

func (r *UserRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.RecoveryCode{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.User{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return services.ErrUserNotFound
		}
		return nil
	})
}

func (r *UserRepository) DeleteAllUsers(ctx context.Context) (int64, error) {
	var deleted int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.RecoveryCode{}).Error; err != nil {
			return err
		}
		result := tx.Where("1 = 1").Delete(&models.User{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return services.ErrUserNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
