package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/glimte/gdn-bridge/bridge"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	timeStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	eventStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Width(24)
	warnStyle  = lipgloss.NewStyle().Foreground(warningColor).Bold(true).Width(24)
	errorStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true).Width(24)
)

// renderPretty formats an event for a terminal
func renderPretty(kind string, at time.Time, data interface{}) string {
	style := eventStyle
	switch kind {
	case eventHeartbeatFailed:
		style = errorStyle
	case bridge.EventLoggingReceived:
		style = warnStyle
	}

	detail, err := json.Marshal(data)
	if err != nil {
		detail = []byte(err.Error())
	}
	if string(detail) == "{}" {
		detail = nil
	}

	return fmt.Sprintf("%s %s %s", timeStyle.Render(at.Format("15:04:05.000")), style.Render(kind), string(detail))
}
