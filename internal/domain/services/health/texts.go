package health

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
)

// Headline renders a check name for chat, e.g. "wallet_monitoring" -> "WALLET MONITORING"
func Headline(check string) string {
	// a Caser is stateful, so one per call
	return cases.Upper(language.English).String(strings.ReplaceAll(check, "_", " "))
}

func onOff(running bool) string {
	if running {
		return "🟢 Active"
	}
	return "🔴 Inactive"
}

func (s *Service) healthyText(snapshot *entities.HealthSnapshot) string {
	m := snapshot.Metrics
	return fmt.Sprintf("🏥 *SYSTEM HEALTH REPORT* 🏥\n\n"+
		"✅ *STATUS:* ALL SYSTEMS OPERATIONAL\n"+
		"⏱️ *UPTIME:* %d hours\n"+
		"👥 *ACTIVE USERS:* %d/%d\n"+
		"👁️ *MONITORING:* %s\n"+
		"💰 *BOT BALANCE:* %s\n"+
		"💵 *SOL PRICE:* $%s\n"+
		"📊 *MEMORY:* %dMB\n\n"+
		"🎯 All surveillance systems operational\n"+
		"_Next health check in %d hours_",
		m.UptimeSeconds/3600,
		m.Users.Active, m.Users.Total,
		onOff(m.Monitor.Running),
		s.notifier.FormatSOL(m.BotBalance),
		m.SolPrice.StringFixed(2),
		m.HeapAllocBytes/(1<<20),
		int(s.config.BroadcastInterval.Hours()))
}

func (s *Service) warningText(snapshot *entities.HealthSnapshot) string {
	issues := make([]string, 0, len(snapshot.Warnings))
	for _, name := range snapshot.Warnings {
		issues = append(issues, "• "+Headline(name))
	}

	m := snapshot.Metrics
	return fmt.Sprintf("⚠️ *SYSTEM WARNING DETECTED* ⚠️\n\n"+
		"🔶 *STATUS:* WARNING LEVEL\n"+
		"📋 *ISSUES DETECTED:*\n%s\n\n"+
		"🔧 *ACTION REQUIRED:* System monitoring detected potential issues\n"+
		"👨‍💻 *RECOMMENDATION:* Check system logs and investigate warnings\n\n"+
		"📊 *CURRENT METRICS:*\n"+
		"• Uptime: %d hours\n"+
		"• Memory: %dMB\n"+
		"• Monitoring: %s\n\n"+
		"_Continuous monitoring active_",
		strings.Join(issues, "\n"),
		m.UptimeSeconds/3600,
		m.HeapAllocBytes/(1<<20),
		onOff(m.Monitor.Running))
}

func (s *Service) criticalText(snapshot *entities.HealthSnapshot) string {
	errs := snapshot.Errors
	if len(errs) == 0 {
		errs = []string{"System health check failed"}
	}
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, "• "+escape(e))
	}

	return fmt.Sprintf("🚨 *CRITICAL SYSTEM ALERT* 🚨\n\n"+
		"🔴 *STATUS:* CRITICAL ERROR DETECTED\n"+
		"⚠️ *IMMEDIATE ATTENTION REQUIRED*\n\n"+
		"❌ *ERRORS:*\n%s\n\n"+
		"🚨 *IMPACT:* System functionality may be compromised\n"+
		"👨‍💻 *ACTION:* Immediate investigation and resolution required\n\n"+
		"⏰ *TIME:* %s\n\n"+
		"_This is an automated critical alert_",
		strings.Join(lines, "\n"),
		snapshot.Timestamp.Format("2006-01-02 15:04:05 MST"))
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escape(s string) string {
	return markdownEscaper.Replace(s)
}

// ReportText renders a report for the /health command
func ReportText(report *entities.HealthReport) string {
	snap := report.Snapshot
	var b strings.Builder

	icon := map[entities.HealthStatus]string{
		entities.HealthHealthy:  "✅",
		entities.HealthWarning:  "⚠️",
		entities.HealthCritical: "🚨",
	}[snap.Status]
	fmt.Fprintf(&b, "🏥 *HEALTH REPORT*\n\n%s *STATUS:* %s\n", icon, Headline(string(snap.Status)))
	fmt.Fprintf(&b, "⏱️ *UPTIME:* %d hours\n\n", snap.Metrics.UptimeSeconds/3600)

	for _, name := range []string{CheckBotStatus, CheckWalletMonitoring, CheckSolanaConnection, CheckNotificationSystem, CheckUserData} {
		c, ok := snap.Checks[name]
		if !ok {
			continue
		}
		mark := "🟢"
		switch c.Status {
		case entities.CheckWarning:
			mark = "🟡"
		case entities.CheckError:
			mark = "🔴"
		}
		fmt.Fprintf(&b, "%s %s", mark, Headline(name))
		if c.Error != "" {
			fmt.Fprintf(&b, ": %s", escape(c.Error))
		}
		b.WriteString("\n")
	}

	if len(report.Recommendations) > 0 {
		b.WriteString("\n💡 *RECOMMENDATIONS:*\n")
		for _, r := range report.Recommendations {
			fmt.Fprintf(&b, "• %s\n", r)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
