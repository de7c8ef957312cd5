package compaction

import "github.com/haasonsaas/aide/pkg/models"

// group is a run of messages that compaction treats atomically: an assistant
// message carrying tool calls together with the contiguous tool-result
// messages that follow it, or a single message otherwise.
type group struct {
	start, end int // half-open index range into the conversation
	toolGroup  bool
}

func (g group) size() int { return g.end - g.start }

// splitGroups partitions the conversation into atomic groups in order.
func splitGroups(messages []models.Message) []group {
	var groups []group
	for i := 0; i < len(messages); {
		if messages[i].HasToolCalls() {
			j := i + 1
			for j < len(messages) && messages[j].Role == models.RoleTool {
				j++
			}
			groups = append(groups, group{start: i, end: j, toolGroup: true})
			i = j
			continue
		}
		groups = append(groups, group{start: i, end: i + 1})
		i++
	}
	return groups
}

// groupTokens estimates the tokens of one group.
func groupTokens(messages []models.Message, g group) int {
	return EstimateAll(messages[g.start:g.end])
}

// protectedIndexes computes the set of message indexes a pass must keep:
// the last message, the first user message when the strategy preserves the
// task description, pinned roles, and every member of the trailing
// PreserveRecentToolPairs tool groups.
func protectedIndexes(messages []models.Message, groups []group, s Strategy) map[int]bool {
	protected := make(map[int]bool)
	if len(messages) == 0 {
		return protected
	}
	protected[len(messages)-1] = true

	if s.PreserveTaskDescription {
		for i := range messages {
			if messages[i].Role == models.RoleUser {
				protected[i] = true
				break
			}
		}
	}
	if len(s.PinnedRoles) > 0 {
		for i := range messages {
			if s.pinned(messages[i].Role) {
				protected[i] = true
			}
		}
	}

	remaining := s.PreserveRecentToolPairs
	for gi := len(groups) - 1; gi >= 0 && remaining > 0; gi-- {
		if !groups[gi].toolGroup {
			continue
		}
		for i := groups[gi].start; i < groups[gi].end; i++ {
			protected[i] = true
		}
		remaining--
	}
	return protected
}

// groupProtected reports whether any member of the group is protected.
func groupProtected(g group, protected map[int]bool) bool {
	for i := g.start; i < g.end; i++ {
		if protected[i] {
			return true
		}
	}
	return false
}
