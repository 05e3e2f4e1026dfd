package analytics

// Merge rules for all-agents mode. Counts always sum. In legacy
// mode mean durations fold pairwise as (a + b) / 2 and lead counts
// sum per agent; accurate mode weights means by sample count and
// counts each visitor once across agents.

func mergeLeads(
	aIDs, bIDs map[string]struct{}, aCount, bCount int, mode MergeMode,
) (map[string]struct{}, int) {
	ids := make(map[string]struct{}, len(aIDs)+len(bIDs))
	unionInto(ids, aIDs)
	unionInto(ids, bIDs)
	if mode == MergeAccurate {
		return ids, len(ids)
	}
	return ids, aCount + bCount
}

func mergeAvg(
	aAvg, bAvg *float64, merged durationStats, mode MergeMode,
) *float64 {
	if mode == MergeAccurate {
		return merged.mean()
	}
	return legacyAverage(aAvg, bAvg)
}

func mergeDay(a, b dayAcc, mode MergeMode) dayAcc {
	out := dayAcc{
		date:          a.date,
		messages:      a.messages + b.messages,
		conversations: a.conversations + b.conversations,
		dur:           a.dur.merge(b.dur),
	}
	out.leadIDs, out.leadCount = mergeLeads(
		a.leadIDs, b.leadIDs, a.leadCount, b.leadCount, mode,
	)
	out.avg = mergeAvg(a.avg, b.avg, out.dur, mode)
	return out
}

func mergeKPI(a, b kpiAcc, mode MergeMode) kpiAcc {
	out := kpiAcc{
		messages:      a.messages + b.messages,
		conversations: a.conversations + b.conversations,
		dur:           a.dur.merge(b.dur),
	}
	out.leadIDs, out.leadCount = mergeLeads(
		a.leadIDs, b.leadIDs, a.leadCount, b.leadCount, mode,
	)
	out.avg = mergeAvg(a.avg, b.avg, out.dur, mode)
	return out
}

func mergeFunnel(a, b funnelAcc, mode MergeMode) funnelAcc {
	out := funnelAcc{
		started: a.started + b.started,
		engaged: a.engaged + b.engaged,
	}
	out.leadIDs, out.leadCount = mergeLeads(
		a.leadIDs, b.leadIDs, a.leadCount, b.leadCount, mode,
	)
	return out
}

// fold merges accs left to right starting from zero.
func fold[T any](accs []T, zero T, merge func(a, b T) T) T {
	if len(accs) == 0 {
		return zero
	}
	out := accs[0]
	for _, a := range accs[1:] {
		out = merge(out, a)
	}
	return out
}
