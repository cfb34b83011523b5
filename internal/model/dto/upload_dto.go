package dto

// UploadResponse 上传文件的响应
type UploadResponse struct {
	UploadID     string `json:"upload_id"`
	FileName     string `json:"file_name"`
	Size         int64  `json:"size"`
	ContentType  string `json:"content_type"`
	TextLength   int    `json:"text_length"`
	ExpiresAt    string `json:"expires_at"`
	CreatedAt    string `json:"created_at"`
	UploadsUsed  int    `json:"uploads_used"`
	UploadsLimit Limit  `json:"uploads_limit"`
}

// UploadListResponse 上传列表响应
type UploadListResponse struct {
	Uploads []UploadResponse `json:"uploads"`
}
