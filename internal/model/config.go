package model

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const fallbackSendTime = "09:00"

// Config is the persisted configuration document. JSON keys are shared with
// the front end and must not change.
type Config struct {
	AccessToken     string `json:"access_token"`
	AutoSendEnabled bool   `json:"auto_send_enabled"`
	AutoSendTime    string `json:"auto_send_time"`
	WeekdaySendTime string `json:"weekday_send_time"`
	FridaySendTime  string `json:"friday_send_time"`
	PPTFilePath     string `json:"ppt_file_path"`
	Theme           string `json:"theme"`
	AutoStartUI     bool   `json:"auto_start_ui"`
}

func DefaultConfig() Config {
	return Config{
		AutoSendTime:    "17:00",
		WeekdaySendTime: "17:00",
		FridaySendTime:  "15:00",
		Theme:           "dark",
		AutoStartUI:     true,
	}
}

// EffectiveWeekdayTime falls back to the legacy single send time.
func (c Config) EffectiveWeekdayTime() string {
	return firstNonEmpty(c.WeekdaySendTime, c.AutoSendTime, fallbackSendTime)
}

// EffectiveFridayTime falls back to the legacy single send time.
func (c Config) EffectiveFridayTime() string {
	return firstNonEmpty(c.FridaySendTime, c.AutoSendTime, fallbackSendTime)
}

// ConfigPatch is a partial configuration write. Nil fields are left untouched.
type ConfigPatch struct {
	AccessToken     *string `json:"access_token,omitempty"`
	AutoSendEnabled *bool   `json:"auto_send_enabled,omitempty"`
	AutoSendTime    *string `json:"auto_send_time,omitempty" validate:"omitempty,clock"`
	WeekdaySendTime *string `json:"weekday_send_time,omitempty" validate:"omitempty,clock"`
	FridaySendTime  *string `json:"friday_send_time,omitempty" validate:"omitempty,clock"`
	PPTFilePath     *string `json:"ppt_file_path,omitempty"`
	Theme           *string `json:"theme,omitempty" validate:"omitempty,max=32"`
	AutoStartUI     *bool   `json:"auto_start_ui,omitempty"`
}

func (p ConfigPatch) Apply(c Config) Config {
	if p.AccessToken != nil {
		c.AccessToken = *p.AccessToken
	}
	if p.AutoSendEnabled != nil {
		c.AutoSendEnabled = *p.AutoSendEnabled
	}
	if p.AutoSendTime != nil {
		c.AutoSendTime = strings.TrimSpace(*p.AutoSendTime)
	}
	if p.WeekdaySendTime != nil {
		c.WeekdaySendTime = strings.TrimSpace(*p.WeekdaySendTime)
	}
	if p.FridaySendTime != nil {
		c.FridaySendTime = strings.TrimSpace(*p.FridaySendTime)
	}
	if p.PPTFilePath != nil {
		c.PPTFilePath = *p.PPTFilePath
	}
	if p.Theme != nil {
		c.Theme = *p.Theme
	}
	if p.AutoStartUI != nil {
		c.AutoStartUI = *p.AutoStartUI
	}
	return c
}

// NormalizeAccessToken accepts either a bare token or a full webhook URL
// carrying an access_token query parameter and returns the bare token.
func NormalizeAccessToken(token string) string {
	token = strings.TrimSpace(token)
	if !strings.Contains(token, "access_token=") {
		return token
	}
	parsed, err := url.Parse(token)
	if err != nil {
		return token
	}
	if value := parsed.Query().Get("access_token"); value != "" {
		return value
	}
	return token
}

var ErrInvalidClock = errors.New("invalid clock time")

// ParseClock parses a 24-hour "HH:MM" time of day.
func ParseClock(value string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return hour, minute, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
