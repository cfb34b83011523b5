package dto

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID                 string                 `json:"id"`
	Email              string                 `json:"email,omitempty"`
	DisplayName        string                 `json:"display_name"`
	SubscriptionStatus string                 `json:"subscription_status"`
	HasBillingAccount  bool                   `json:"has_billing_account"`
	Preferences        map[string]interface{} `json:"preferences,omitempty"`
	Entitlement        *Entitlement           `json:"entitlement,omitempty"`
	CreatedAt          string                 `json:"created_at,omitempty"`
}

// UpdateProfileRequest 更新用户信息请求
type UpdateProfileRequest struct {
	DisplayName *string                `json:"display_name,omitempty" binding:"omitempty,min=1,max=100"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
}

// RedirectResponse 结账/账单门户跳转地址
type RedirectResponse struct {
	URL string `json:"url"`
}
