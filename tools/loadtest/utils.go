// Package main provides helper functions for the loadtest CLI
package main

import (
	"fmt"
	"time"
)

// formatRate formats a rate (items per second)
func formatRate(count int, duration time.Duration) string {
	if duration.Seconds() == 0 {
		return "N/A"
	}
	rate := float64(count) / duration.Seconds()
	return fmt.Sprintf("%.2f/s", rate)
}

// percentageString calculates and formats a percentage
func percentageString(part, total int) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)/float64(total)*100)
}

// formatDuration renders a duration at millisecond granularity
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	return d.Round(10 * time.Millisecond).String()
}

// resultEmoji summarizes a request type's outcome
func resultEmoji(rs *RequestStats) string {
	if rs.Sent == 0 {
		return "⚪"
	}
	if rs.Failed > 0 {
		return "❌"
	}
	return "✅"
}
