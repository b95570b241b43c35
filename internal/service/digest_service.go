package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/onoki/glance/internal/model"
)

// DigestService builds the human-readable daily summary of the dashboard.
type DigestService struct {
	tasks *TaskService
	loc   *time.Location
}

func NewDigestService(tasks *TaskService, loc *time.Location) *DigestService {
	if loc == nil {
		loc = time.Local
	}
	return &DigestService{tasks: tasks, loc: loc}
}

// Build renders the digest for the day containing now as Telegram HTML.
func (s *DigestService) Build(ctx context.Context, now time.Time) (string, error) {
	now = now.In(s.loc)
	dash, err := s.tasks.Dashboard(ctx, StartOfDay(now, s.loc))
	if err != nil {
		return "", err
	}
	scheduled, err := s.tasks.ListScheduledOn(ctx, now.Format(dateLayout))
	if err != nil {
		return "", err
	}
	return FormatDigest(dash, scheduled, now), nil
}

// FormatDigest renders a dashboard snapshot. Tasks scheduled for today come
// first, then other open tasks, then what was already finished today.
// scheduled adds tasks due today that live outside the main page.
func FormatDigest(dash model.Dashboard, scheduled []model.TaskView, now time.Time) string {
	today := now.Format(dateLayout)

	var dueToday, open, done []model.TaskView
	upcoming := 0
	onMain := make(map[string]bool, len(dash.Main))
	for _, t := range dash.Main {
		onMain[t.ID] = true
		switch {
		case t.CompletedAt != nil:
			done = append(done, t)
		case t.Recurrence != nil:
			// templates are not work items
		case t.ScheduledDate != nil && *t.ScheduledDate > today:
			upcoming++
		case t.ScheduledDate != nil:
			dueToday = append(dueToday, t)
		default:
			open = append(open, t)
		}
	}
	for _, t := range scheduled {
		if !onMain[t.ID] && t.Recurrence == nil && t.CompletedAt == nil {
			dueToday = append(dueToday, t)
		}
	}

	var b strings.Builder
	b.WriteString("📋 <b>Glance</b>\n")
	b.WriteString(fmt.Sprintf("🗓 %s\n", now.Format("Mon 02.01.2006")))

	section(&b, "📌 <b>Today</b>", dueToday, "nothing scheduled", func(t model.TaskView) string {
		if t.ScheduledDate != nil && *t.ScheduledDate < today {
			return "⚠️ " + title(t) + " <i>(since " + html.EscapeString(*t.ScheduledDate) + ")</i>"
		}
		if t.Page != model.PageDashboardMain {
			return "⏳ " + title(t) + " <i>(" + html.EscapeString(t.Page) + ")</i>"
		}
		return "⏳ " + title(t)
	})
	section(&b, "🟢 <b>Open</b>", open, "no open tasks", func(t model.TaskView) string {
		return "• " + title(t)
	})
	section(&b, "✅ <b>Done today</b>", done, "nothing yet", func(t model.TaskView) string {
		return "✓ " + title(t)
	})

	if upcoming > 0 {
		b.WriteString(fmt.Sprintf("\n🔜 %d scheduled later\n", upcoming))
	}
	if n := len(dash.New); n > 0 {
		b.WriteString(fmt.Sprintf("\n📥 %d new task(s) waiting in the inbox\n", n))
	}
	return strings.TrimSpace(b.String())
}

func section(b *strings.Builder, heading string, tasks []model.TaskView, empty string, line func(model.TaskView) string) {
	b.WriteString("\n" + heading + "\n")
	if len(tasks) == 0 {
		b.WriteString("- " + empty + "\n")
		return
	}
	for _, t := range tasks {
		b.WriteString(line(t))
		b.WriteByte('\n')
	}
}

func title(t model.TaskView) string {
	s := strings.TrimSpace(t.PlainTitle())
	if s == "" {
		s = "(untitled)"
	}
	return html.EscapeString(s)
}
