package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/exam_prep_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureExists 用户不存在时创建，已存在时不做任何修改
func (r *UserRepository) EnsureExists(ctx context.Context, user *model.User) (bool, error) {
	if user.SubscriptionStatus == "" {
		user.SubscriptionStatus = model.SubscriptionInactive
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(user)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateSubscription 单次写入订阅状态，customerID 非空时一并写入账单引用
func (r *UserRepository) UpdateSubscription(ctx context.Context, id, status string, customerID *string) (int64, error) {
	fields := map[string]interface{}{
		"subscription_status": status,
	}
	if customerID != nil {
		fields["stripe_customer_id"] = *customerID
	}
	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	return result.RowsAffected, result.Error
}

func (r *UserRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}
