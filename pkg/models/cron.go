package models

// CronJob is a recurring scheduled message. Schedule is a standard 5-field
// cron expression (minute, hour, day-of-month, month, day-of-week).
type CronJob struct {
	Name     string `json:"name" yaml:"name"`
	Schedule string `json:"schedule" yaml:"schedule"`
	Message  string `json:"message" yaml:"message"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	UserID   string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
}
