// Package homework turns the selected homework document into a message and
// hands it to a Sender.
package homework

import (
	"context"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"homework-agent/internal/model"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	ErrNoFileConfigured = errors.New("no homework file configured")
	ErrEmptyContent     = errors.New("no homework content")
	ErrNoPicker         = errors.New("no file picker available")
)

const sentMessage = "Homework sent"

type Service struct {
	config     model.ConfigService
	sender     Sender
	extractors map[string]Extractor
	goos       string
	pick       pickFunc
}

func NewService(config model.ConfigService, sender Sender) *Service {
	return &Service{
		config:     config,
		sender:     sender,
		extractors: defaultExtractors(),
		goos:       runtime.GOOS,
		pick:       runPicker,
	}
}

// SelectFile shows a native file dialog and stores the chosen path. A
// cancelled dialog returns "" and leaves the configuration alone.
func (s *Service) SelectFile(ctx context.Context) (string, error) {
	initialDir := ""
	if stored := s.config.Get().PPTFilePath; stored != "" {
		initialDir = filepath.Dir(stored)
	}
	cmd, args := buildPickCommand(s.goos, initialDir)
	if cmd == "" {
		return "", fmt.Errorf("%w on %s", ErrNoPicker, s.goos)
	}
	path, err := s.pick(ctx, cmd, args...)
	if err != nil {
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	if path == "" {
		log.Debug("File selection cancelled")
		return "", nil
	}
	if _, err := s.config.Save(model.ConfigPatch{PPTFilePath: &path}); err != nil {
		return "", fmt.Errorf("failed storing selected file: %w", err)
	}
	log.WithField("path", path).Info("Homework file selected")
	return path, nil
}

func (s *Service) Preview(ctx context.Context, path string) (model.Preview, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Preview{}, fmt.Errorf("homework file %s: %w", path, model.ErrorNotFound)
		}
		return model.Preview{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	extractor, ok := s.extractors[ext]
	if !ok {
		return model.Preview{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	content, err := extractor.Extract(path)
	if err != nil {
		return model.Preview{}, err
	}
	return model.Preview{Content: content, FileName: filepath.Base(path)}, nil
}

func (s *Service) SendFromFile(ctx context.Context, path string) (model.SendResult, error) {
	preview, err := s.Preview(ctx, path)
	if err != nil {
		return model.SendResult{}, err
	}
	return s.SendContent(ctx, preview.Content)
}

func (s *Service) SendContent(ctx context.Context, content string) (model.SendResult, error) {
	if strings.TrimSpace(content) == "" {
		return model.SendResult{}, ErrEmptyContent
	}
	token := s.config.Get().AccessToken
	if err := s.sender.Send(ctx, token, content); err != nil {
		return model.SendResult{}, fmt.Errorf("failed sending homework: %w", err)
	}
	return model.SendResult{Message: sentMessage}, nil
}

// AutoSend sends the stored homework file. It is the scheduler's job body.
func (s *Service) AutoSend(ctx context.Context) (model.SendResult, error) {
	path := s.config.Get().PPTFilePath
	if path == "" {
		return model.SendResult{}, ErrNoFileConfigured
	}
	return s.SendFromFile(ctx, path)
}
