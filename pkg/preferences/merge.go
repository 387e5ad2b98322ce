package preferences

import "strings"

// Merge folds delta into existing and returns a new record. It never mutates
// its inputs and gives the same output for the same inputs.
//
// A scalar stated by delta becomes explicit. A scalar the delta omits keeps
// its value and is demoted to inherited if it was set, or stays default.
// Array fields are unioned in existing order, then new items, deduplicated.
// Include/avoid contradictions are kept as stated.
func Merge(existing PreferenceRecord, delta PreferenceDelta) PreferenceRecord {
	return PreferenceRecord{
		Intensity:        mergeScalar(existing.Intensity, delta.Intensity),
		SessionGoal:      mergeScalar(existing.SessionGoal, delta.SessionGoal),
		NeedsFollowUp:    mergeScalar(existing.NeedsFollowUp, delta.NeedsFollowUp),
		MuscleTargets:    unionStrings(existing.MuscleTargets, delta.MuscleTargets),
		MuscleLessens:    unionStrings(existing.MuscleLessens, delta.MuscleLessens),
		IncludeExercises: unionRefs(existing.IncludeExercises, delta.IncludeExercises),
		AvoidExercises:   unionRefs(existing.AvoidExercises, delta.AvoidExercises),
		AvoidJoints:      unionStrings(existing.AvoidJoints, delta.AvoidJoints),
	}
}

func mergeScalar[T comparable](existing Scalar[T], stated *T) Scalar[T] {
	if stated != nil {
		return Scalar[T]{Value: *stated, Source: SourceExplicit}
	}
	switch existing.Source {
	case SourceExplicit, SourceInherited:
		return Scalar[T]{Value: existing.Value, Source: SourceInherited}
	}
	var zero T
	return Scalar[T]{Value: zero, Source: SourceDefault}
}

func unionStrings(existing, added []string) []string {
	if len(existing) == 0 && len(added) == 0 {
		return nil
	}
	out := make([]string, 0, len(existing)+len(added))
	seen := make(map[string]struct{}, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, v := range list {
			key := strings.ToLower(strings.TrimSpace(v))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func unionRefs(existing, added []ExerciseRef) []ExerciseRef {
	if len(existing) == 0 && len(added) == 0 {
		return nil
	}
	out := make([]ExerciseRef, 0, len(existing)+len(added))
	seen := make(map[string]struct{}, len(existing)+len(added))
	for _, list := range [][]ExerciseRef{existing, added} {
		for _, ref := range list {
			if ref.ID == "" {
				continue
			}
			if _, ok := seen[ref.ID]; ok {
				continue
			}
			seen[ref.ID] = struct{}{}
			out = append(out, ref)
		}
	}
	return out
}
