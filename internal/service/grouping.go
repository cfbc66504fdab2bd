package service

import (
	"time"

	"gemini-chat/internal/domain"
)

const (
	GroupToday     = "today"
	GroupYesterday = "yesterday"
	GroupThisWeek  = "thisWeek"
	GroupOlder     = "older"
)

// ConversationGroup es un bucket de recencia para la lista lateral.
type ConversationGroup struct {
	Label         string                `json:"label"`
	Conversations []domain.Conversation `json:"conversations"`
}

// GroupByRecency reparte las conversaciones (ya ordenadas) en buckets
// today / yesterday / thisWeek / older. Los límites son medianoche local:
// una conversación cae en "today" solo si la fecha calendario local de su
// updatedAt coincide con la fecha local actual, sin importar la hora.
func GroupByRecency(convs []domain.Conversation, now time.Time) []ConversationGroup {
	loc := now.Location()
	today := midnight(now, loc)
	yesterday := today.AddDate(0, 0, -1)
	weekAgo := today.AddDate(0, 0, -7)

	groups := map[string][]domain.Conversation{}
	for _, conv := range convs {
		day := midnight(conv.UpdatedAt, loc)
		switch {
		case day.Equal(today):
			groups[GroupToday] = append(groups[GroupToday], conv)
		case day.Equal(yesterday):
			groups[GroupYesterday] = append(groups[GroupYesterday], conv)
		case day.After(weekAgo):
			groups[GroupThisWeek] = append(groups[GroupThisWeek], conv)
		default:
			groups[GroupOlder] = append(groups[GroupOlder], conv)
		}
	}

	out := make([]ConversationGroup, 0, 4)
	for _, label := range []string{GroupToday, GroupYesterday, GroupThisWeek, GroupOlder} {
		convs := groups[label]
		if convs == nil {
			convs = []domain.Conversation{}
		}
		out = append(out, ConversationGroup{Label: label, Conversations: convs})
	}
	return out
}

func midnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
