package speech

import "time"

// TTSResponse 语音合成响应
type TTSResponse struct {
	AudioURL  string    `json:"audioUrl"`
	FileName  string    `json:"fileName"`
	Size      int64     `json:"size"`
	Format    string    `json:"format"`
	Truncated bool      `json:"truncated"`
	CreatedAt time.Time `json:"createdAt"`
}
