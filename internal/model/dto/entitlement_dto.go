package dto

import "strconv"

// Unlimited 订阅用户的配额上限
const Unlimited Limit = -1

// Limit 配额上限，-1 序列化为 "unlimited"
type Limit int

func (l Limit) MarshalJSON() ([]byte, error) {
	if l < 0 {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.Itoa(int(l))), nil
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	if string(data) == `"unlimited"` {
		*l = Unlimited
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	*l = Limit(n)
	return nil
}

func (l Limit) IsUnlimited() bool {
	return l < 0
}

// TestPermission canCreateTest 的结果
type TestPermission struct {
	Allowed    bool   `json:"allowed"`
	TestsUsed  int    `json:"tests_used"`
	TestsLimit Limit  `json:"tests_limit"`
	Reason     string `json:"reason,omitempty"`
}

// UploadPermission canUploadFile 的结果
type UploadPermission struct {
	Allowed      bool   `json:"allowed"`
	UploadsUsed  int    `json:"uploads_used"`
	UploadsLimit Limit  `json:"uploads_limit"`
	Reason       string `json:"reason,omitempty"`
}

// Entitlement 权益快照（实时计算，不落库）
type Entitlement struct {
	IsSubscribed       bool   `json:"is_subscribed"`
	SubscriptionStatus string `json:"subscription_status"`
	TestsUsed          int    `json:"tests_used"`
	TestsLimit         Limit  `json:"tests_limit"`
	UploadsUsed        int    `json:"uploads_used"`
	UploadsLimit       Limit  `json:"uploads_limit"`
}

// QuotaErrorData 配额不足时返回给前端的结构化信息
type QuotaErrorData struct {
	Resource string `json:"resource"`
	Used     int    `json:"used"`
	Limit    int    `json:"limit"`
}
