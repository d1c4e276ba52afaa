package chatsync

// AggregateReactions folds raw reaction events into the per-emoji tally.
//
// Pure and deterministic: the same events always yield the same tally, with
// no dependence on prior tallies. Duplicate events for one emoji merge into
// a single group, participant sets are deduplicated so a double-delivered
// event cannot inflate a count, and groups left without participants are
// dropped. The result is never nil.
func AggregateReactions(events []ReactionEvent) ReactionTally {
	tally := make(ReactionTally, len(events))
	for _, ev := range events {
		if ev.Emoji == "" {
			continue
		}
		group := tally[ev.Emoji]
		for _, pid := range ev.ParticipantIDs {
			if pid == "" || containsID(group.ParticipantIDs, pid) {
				continue
			}
			group.ParticipantIDs = append(group.ParticipantIDs, pid)
		}
		group.Count = len(group.ParticipantIDs)
		tally[ev.Emoji] = group
	}
	for emoji, group := range tally {
		if group.Count == 0 {
			delete(tally, emoji)
		}
	}
	return tally
}

// toggleReactionEvents flips participantID's emoji reaction within events.
// Present removes, absent adds. Returns the new event slice and whether the
// toggle ended with the reaction present. The input is never mutated.
func toggleReactionEvents(events []ReactionEvent, emoji, participantID string) ([]ReactionEvent, bool) {
	present := false
	for _, ev := range events {
		if ev.Emoji == emoji && containsID(ev.ParticipantIDs, participantID) {
			present = true
			break
		}
	}

	if present {
		out := make([]ReactionEvent, 0, len(events))
		for _, ev := range events {
			if ev.Emoji != emoji {
				out = append(out, ev)
				continue
			}
			kept := make([]string, 0, len(ev.ParticipantIDs))
			for _, pid := range ev.ParticipantIDs {
				if pid != participantID {
					kept = append(kept, pid)
				}
			}
			// An event emptied by the removal is dropped entirely.
			if len(kept) > 0 {
				out = append(out, ReactionEvent{Emoji: ev.Emoji, ParticipantIDs: kept})
			}
		}
		return out, false
	}

	out := cloneReactionEvents(events)
	for i, ev := range out {
		if ev.Emoji == emoji {
			out[i].ParticipantIDs = append(ev.ParticipantIDs, participantID)
			return out, true
		}
	}
	return append(out, ReactionEvent{Emoji: emoji, ParticipantIDs: []string{participantID}}), true
}

func cloneReactionEvents(events []ReactionEvent) []ReactionEvent {
	if events == nil {
		return nil
	}
	out := make([]ReactionEvent, len(events))
	for i, ev := range events {
		out[i] = ReactionEvent{
			Emoji:          ev.Emoji,
			ParticipantIDs: append([]string(nil), ev.ParticipantIDs...),
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
