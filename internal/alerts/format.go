package alerts

import (
	"fmt"
	"math"
	"strings"
	"time"

	"lecca.io/oasys-watchtower/internal/status"
	"lecca.io/oasys-watchtower/internal/utils"
)

func FormatCritical(vals []status.ValidatorStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 **CRITICAL ALERT** - %d validator(s) have critical issues!\n\n", len(vals))
	for _, v := range vals {
		state := "🔴 Inactive"
		if v.IsActive {
			state = "🟢 Active"
		}
		if v.IsJailed {
			state += " 🔒 Jailed"
		}
		fmt.Fprintf(&b, "**%s**\n", v.ShortAddress)
		fmt.Fprintf(&b, "• Status: %s\n", state)
		fmt.Fprintf(&b, "• Blocks (24h): %s\n", blocksLabel(v))
		fmt.Fprintf(&b, "• Issues: %s\n\n", strings.Join(v.Issues, ", "))
	}
	b.WriteString("⚡ **Immediate action required!**")
	return b.String()
}

func FormatWarning(vals []status.ValidatorStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ **WARNING** - %d validator(s) need attention\n\n", len(vals))
	for _, v := range vals {
		fmt.Fprintf(&b, "**%s**\n", v.ShortAddress)
		fmt.Fprintf(&b, "• Blocks (24h): %s\n", blocksLabel(v))
		fmt.Fprintf(&b, "• Issues: %s\n\n", strings.Join(v.Issues, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatError(vals []status.ValidatorStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔥 **MONITOR ERROR** - Unable to check %d validator(s)\n\n", len(vals))
	for _, v := range vals {
		fmt.Fprintf(&b, "**%s**\n", v.ShortAddress)
		fmt.Fprintf(&b, "• Error: %s\n\n", strings.Join(v.Issues, ", "))
	}
	b.WriteString("🔧 Please check the monitoring system")
	return b.String()
}

func FormatAllClear(vals []status.ValidatorStatus) string {
	lines := make([]string, 0, len(vals))
	for _, v := range vals {
		lines = append(lines, fmt.Sprintf("• %s: %s blocks/24h", v.ShortAddress, blocksLabel(v)))
	}
	return fmt.Sprintf("✅ **All Clear** - %d validator(s) operating normally\n\n%s", len(vals), strings.Join(lines, "\n"))
}

// FormatDailySummary renders the report with dates in loc.
func FormatDailySummary(vals []status.ValidatorStatus, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	g := Group(vals)

	var b strings.Builder
	fmt.Fprintf(&b, "📊 **Daily Validator Summary** - %s\n\n", local.Format("2006/1/2"))

	b.WriteString("**📈 Status Overview**\n")
	fmt.Fprintf(&b, "• ✅ Healthy: %d\n", len(g.Healthy))
	fmt.Fprintf(&b, "• ⚠️ Warning: %d\n", len(g.Warning))
	fmt.Fprintf(&b, "• 🚨 Critical: %d\n", len(g.Critical))
	fmt.Fprintf(&b, "• 🔥 Error: %d\n\n", len(g.Error))

	b.WriteString("**📋 Validator Details**\n")
	total := 0
	for _, v := range vals {
		total += v.BlocksValidated24h
		fmt.Fprintf(&b, "%s **%s**\n", v.Severity.Icon(), v.ShortAddress)
		fmt.Fprintf(&b, "   • Blocks (24h): %s\n", blocksLabel(v))
		if v.Stake != nil {
			fmt.Fprintf(&b, "   • Stake: %s OAS\n", utils.FormatStake(v.Stake))
		}
		if age, ok := v.MinutesSinceLastBlock(now); ok {
			fmt.Fprintf(&b, "   • Last block: %d minutes ago\n", age)
		}
		if len(v.Issues) > 0 {
			fmt.Fprintf(&b, "   • Issues: %s\n", strings.Join(v.Issues, ", "))
		}
		b.WriteString("\n")
	}

	avg := 0
	if len(vals) > 0 {
		avg = int(math.Round(float64(total) / float64(len(vals))))
	}
	health := "🟢 Good"
	if len(g.Critical) > 0 || len(g.Error) > 0 {
		health = "🔴 Issues detected"
	}

	b.WriteString("**⚡ Performance Metrics**\n")
	fmt.Fprintf(&b, "• Total blocks (24h): %d\n", total)
	fmt.Fprintf(&b, "• Average per validator: %d\n", avg)
	fmt.Fprintf(&b, "• Network health: %s\n\n", health)

	fmt.Fprintf(&b, "Generated at %s", local.Format("15:04:05 MST"))
	return b.String()
}

type SetupInfo struct {
	Validators    int
	CheckInterval time.Duration
	DailySummary  bool
	SummaryHour   int
	Timezone      string
}

func FormatSetup(info SetupInfo) string {
	summary := "Disabled"
	if info.DailySummary {
		summary = fmt.Sprintf("Enabled (%02d:00 %s)", info.SummaryHour, info.Timezone)
	}
	// Zero means the validator list could not be resolved at startup.
	monitoring := "Monitoring validators from the staking contract"
	if info.Validators > 0 {
		monitoring = fmt.Sprintf("Monitoring %d validator(s)", info.Validators)
	}
	return fmt.Sprintf("✅ **Oasys Validator Monitor Setup Complete**\n\n"+
		"• %s\n"+
		"• Check interval: %s\n"+
		"• Daily summary: %s\n\n"+
		"Monitor is now active! 🚀",
		monitoring, formatInterval(info.CheckInterval), summary)
}

func FormatMonitorError(err error) string {
	return fmt.Sprintf("🚨 **Monitor Error**: %v", err)
}

func FormatSummaryError(err error) string {
	return fmt.Sprintf("🚨 **Daily Summary Error**: %v", err)
}

// blocksLabel marks extrapolated counts.
func blocksLabel(v status.ValidatorStatus) string {
	if v.Approximate {
		return fmt.Sprintf("~%d (sampled)", v.BlocksValidated24h)
	}
	return fmt.Sprintf("%d", v.BlocksValidated24h)
}

func formatInterval(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	return d.String()
}
