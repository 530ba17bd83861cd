package homework

import (
	"context"
	"errors"
	log "github.com/sirupsen/logrus"
	"unicode/utf8"
)

var ErrNoAccessToken = errors.New("no access token configured")

// Sender delivers a rendered homework message to the class group.
type Sender interface {
	Send(ctx context.Context, accessToken, message string) error
}

// DryRunSender only logs what would be delivered.
type DryRunSender struct{}

func (DryRunSender) Send(ctx context.Context, accessToken, message string) error {
	if accessToken == "" {
		return ErrNoAccessToken
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"chars":   utf8.RuneCountInString(message),
		"message": message,
	}).Info("Dry run: homework message not delivered")
	return nil
}
