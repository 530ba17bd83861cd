package http

import (
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"homework-agent/internal/model"
)

const (
	stagePersist   = "persist"
	stageSchedule  = "schedule"
	stageAutostart = "autostart"
)

type stageResult struct {
	Stage string `json:"stage"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// configWriteResult is the outcome of one configuration write. Stages run in
// order and stop at the first failure; nothing is rolled back.
type configWriteResult struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Persisted bool                   `json:"persisted"`
	Stages    []stageResult          `json:"stages"`
	Config    *model.Config          `json:"config,omitempty"`
	Autostart *model.AutostartResult `json:"autostart,omitempty"`

	err error
}

func (r *configWriteResult) pass(stage string) {
	r.Stages = append(r.Stages, stageResult{Stage: stage, OK: true})
}

func (r *configWriteResult) fail(stage, prefix string, err error) {
	if prefix != "" {
		err = fmt.Errorf("%s: %w", prefix, err)
	}
	r.err = err
	r.Error = err.Error()
	r.Stages = append(r.Stages, stageResult{Stage: stage, OK: false, Error: err.Error()})
}

type configPipeline struct {
	config    model.ConfigService
	scheduler ConfigApplier
	autostart model.AutostartService
}

// run persists patch, reschedules from the stored document, then reconciles
// autostart. A stage only runs when every earlier stage succeeded.
func (p *configPipeline) run(patch model.ConfigPatch) configWriteResult {
	result := configWriteResult{Stages: make([]stageResult, 0, 3)}

	saved, err := p.config.Save(patch)
	if err != nil {
		result.fail(stagePersist, "failed to save configuration", err)
		return result
	}
	result.Persisted = true
	result.Config = &saved
	result.pass(stagePersist)

	if err := p.scheduler.ApplyConfig(p.config.Get()); err != nil {
		result.fail(stageSchedule, "configuration saved, but scheduler update failed", err)
		return result
	}
	result.pass(stageSchedule)

	// A write that leaves auto_start_ui out reconciles against the stored value.
	if patch.AutoStartUI == nil {
		stored := saved.AutoStartUI
		patch.AutoStartUI = &stored
	}
	autostart, err := p.autostart.Apply(patch)
	if err == nil && !autostart.OK() {
		msg := autostart.Error
		if msg == "" {
			msg = "autostart entry was not updated"
		}
		err = errors.New(msg)
		result.Autostart = &autostart
	}
	if err != nil {
		result.fail(stageAutostart, "configuration saved, but autostart update failed", err)
		return result
	}
	result.Autostart = &autostart
	result.pass(stageAutostart)

	log.WithFields(log.Fields{
		"auto_send_enabled": saved.AutoSendEnabled,
		"weekday_send_time": saved.EffectiveWeekdayTime(),
		"friday_send_time":  saved.EffectiveFridayTime(),
	}).Info("Configuration updated")
	result.Success = true
	return result
}
