package model

import "context"

// ConfigService owns the configuration document.
type ConfigService interface {
	Get() Config
	Save(patch ConfigPatch) (Config, error)
}

type Preview struct {
	Content  string `json:"content"`
	FileName string `json:"file_name"`
}

type SendResult struct {
	Message string `json:"message"`
}

// DocumentService turns a homework document into a message and delivers it.
type DocumentService interface {
	SelectFile(ctx context.Context) (string, error)
	Preview(ctx context.Context, path string) (Preview, error)
	SendFromFile(ctx context.Context, path string) (SendResult, error)
	SendContent(ctx context.Context, content string) (SendResult, error)
	AutoSend(ctx context.Context) (SendResult, error)
}

type AutostartStatus struct {
	UIAutostart bool   `json:"ui_autostart"`
	UIPath      string `json:"ui_path"`
}

// AutostartResult reports the outcome per autostart entry.
type AutostartResult struct {
	UIAutostart bool   `json:"ui_autostart"`
	Error       string `json:"error,omitempty"`
}

func (r AutostartResult) OK() bool {
	return r.UIAutostart
}

type AutostartService interface {
	Status() (AutostartStatus, error)
	Apply(patch ConfigPatch) (AutostartResult, error)
}

type WindowService interface {
	Minimize() error
	Close() error
	Show() error
}
