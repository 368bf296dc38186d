package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"neocore/logging"
)

type ConsoleSink struct {
	logger *log.Logger
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	if w == nil {
		w = io.Discard
	}
	return &ConsoleSink{logger: log.New(w, cfg.Prefix, log.LstdFlags)}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	message := ""
	if event.Message != "" {
		message = fmt.Sprintf(" msg=%q", event.Message)
	}
	payload := formatPayload(event.Payload)
	s.logger.Printf("[%s] frame=%d source=%s severity=%s%s%s", event.Type, event.Frame, formatSource(event.Source), event.Severity, message, payload)
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func formatSource(ref logging.SourceRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}
