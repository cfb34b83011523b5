package service

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/qs3c/exam_prep_server/internal/model/dto"
	"github.com/qs3c/exam_prep_server/internal/repository"
)

type UserService struct {
	userRepo    *repository.UserRepository
	entitlement *EntitlementService
}

func NewUserService(userRepo *repository.UserRepository, entitlement *EntitlementService) *UserService {
	return &UserService{
		userRepo:    userRepo,
		entitlement: entitlement,
	}
}

// GetProfile 用户信息，附带权益快照
func (s *UserService) GetProfile(ctx context.Context, userID string) (*dto.UserInfo, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr("user.GetProfile", err)
	}

	ent, err := s.entitlement.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &dto.UserInfo{
		ID:                 user.ID,
		Email:              user.Email,
		DisplayName:        user.DisplayName,
		SubscriptionStatus: user.SubscriptionStatus,
		HasBillingAccount:  user.StripeCustomerID != nil && *user.StripeCustomerID != "",
		Preferences:        user.Preferences,
		Entitlement:        ent,
		CreatedAt:          user.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// UpdateProfile 只允许修改昵称和偏好设置，订阅字段不可由用户修改
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	updates := make(map[string]interface{})
	if req.DisplayName != nil {
		if name := strings.TrimSpace(*req.DisplayName); name != "" {
			updates["display_name"] = name
		}
	}
	if req.Preferences != nil {
		updates["preferences"] = datatypes.JSONMap(req.Preferences)
	}

	if len(updates) > 0 {
		if err := s.userRepo.UpdateFields(ctx, userID, updates); err != nil {
			return nil, storeErr("user.UpdateProfile", err)
		}
	}

	return s.GetProfile(ctx, userID)
}
