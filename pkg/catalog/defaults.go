package catalog

// DefaultEntries is the built-in starter catalog used when no catalog file or
// store table is configured.
func DefaultEntries() []Entry {
	return []Entry{
		{ID: "back-squat", Name: "Back Squat", Type: "strength", Equipment: []string{"barbell", "rack"}, MovementPattern: "squat", Tags: []string{"compound", "lower"}, Muscles: []string{"quads", "glutes"}},
		{ID: "front-squat", Name: "Front Squat", Type: "strength", Equipment: []string{"barbell", "rack"}, MovementPattern: "squat", Tags: []string{"compound", "lower"}, Muscles: []string{"quads", "core"}},
		{ID: "goblet-squat", Name: "Goblet Squat", Type: "strength", Equipment: []string{"dumbbell", "kettlebell"}, MovementPattern: "squat", Tags: []string{"lower"}, Muscles: []string{"quads", "glutes"}},
		{ID: "bulgarian-split-squat", Name: "Bulgarian Split Squat", Type: "strength", Equipment: []string{"dumbbell", "bench"}, MovementPattern: "lunge", Tags: []string{"unilateral", "lower"}, Muscles: []string{"quads", "glutes"}},
		{ID: "deadlift", Name: "Deadlift", Type: "strength", Equipment: []string{"barbell"}, MovementPattern: "hinge", Tags: []string{"compound", "posterior"}, Muscles: []string{"hamstrings", "glutes", "lower_back"}},
		{ID: "romanian-deadlift", Name: "Romanian Deadlift", Type: "strength", Equipment: []string{"barbell", "dumbbell"}, MovementPattern: "hinge", Tags: []string{"posterior"}, Muscles: []string{"hamstrings", "glutes"}},
		{ID: "kettlebell-swing", Name: "Kettlebell Swing", Type: "power", Equipment: []string{"kettlebell"}, MovementPattern: "hinge", Tags: []string{"conditioning", "posterior"}, Muscles: []string{"glutes", "hamstrings"}},
		{ID: "bench-press", Name: "Bench Press", Type: "strength", Equipment: []string{"barbell", "bench"}, MovementPattern: "push", Tags: []string{"compound", "upper"}, Muscles: []string{"chest", "triceps", "shoulders"}},
		{ID: "push-up", Name: "Push-Up", Type: "strength", Equipment: []string{"bodyweight"}, MovementPattern: "push", Tags: []string{"upper"}, Muscles: []string{"chest", "triceps"}},
		{ID: "overhead-press", Name: "Overhead Press", Type: "strength", Equipment: []string{"barbell"}, MovementPattern: "push", Tags: []string{"compound", "upper"}, Muscles: []string{"shoulders", "triceps"}},
		{ID: "pull-up", Name: "Pull-Up", Type: "strength", Equipment: []string{"pullup_bar", "bodyweight"}, MovementPattern: "pull", Tags: []string{"upper"}, Muscles: []string{"back", "biceps"}},
		{ID: "bent-over-row", Name: "Bent Over Row", Type: "strength", Equipment: []string{"barbell"}, MovementPattern: "pull", Tags: []string{"compound", "upper"}, Muscles: []string{"back", "biceps"}},
		{ID: "band-pull-apart", Name: "Band Pull-Apart", Type: "mobility", Equipment: []string{"bands"}, MovementPattern: "pull", Tags: []string{"prehab", "upper"}, Muscles: []string{"rear_delts", "upper_back"}},
		{ID: "banded-glute-bridge", Name: "Banded Glute Bridge", Type: "strength", Equipment: []string{"bands"}, MovementPattern: "hinge", Tags: []string{"activation", "lower"}, Muscles: []string{"glutes"}},
		{ID: "walking-lunge", Name: "Walking Lunge", Type: "strength", Equipment: []string{"dumbbell", "bodyweight"}, MovementPattern: "lunge", Tags: []string{"unilateral", "lower"}, Muscles: []string{"quads", "glutes"}},
		{ID: "farmers-carry", Name: "Farmer's Carry", Type: "strength", Equipment: []string{"dumbbell", "kettlebell"}, MovementPattern: "carry", Tags: []string{"grip", "core"}, Muscles: []string{"forearms", "traps", "core"}},
		{ID: "plank", Name: "Plank", Type: "stability", Equipment: []string{"bodyweight"}, MovementPattern: "core", Tags: []string{"stability", "core"}, Muscles: []string{"core"}},
		{ID: "pallof-press", Name: "Pallof Press", Type: "stability", Equipment: []string{"cable", "bands"}, MovementPattern: "rotation", Tags: []string{"anti-rotation", "stability", "core"}, Muscles: []string{"core"}},
		{ID: "box-jump", Name: "Box Jump", Type: "power", Equipment: []string{"box"}, MovementPattern: "plyo", Tags: []string{"explosive", "lower"}, Muscles: []string{"quads", "calves"}},
		{ID: "burpee", Name: "Burpee", Type: "conditioning", Equipment: []string{"bodyweight"}, MovementPattern: "plyo", Tags: []string{"conditioning", "full_body"}, Muscles: []string{"full_body"}},
		{ID: "row-erg", Name: "Row Erg Sprint", Type: "conditioning", Equipment: []string{"row_erg"}, MovementPattern: "cardio", Tags: []string{"conditioning", "cardio"}, Muscles: []string{"back", "quads"}},
		{ID: "assault-bike", Name: "Assault Bike", Type: "conditioning", Equipment: []string{"assault_bike"}, MovementPattern: "cardio", Tags: []string{"conditioning", "cardio"}, Muscles: []string{"quads", "full_body"}},
		{ID: "bicep-curl", Name: "Bicep Curl", Type: "hypertrophy", Equipment: []string{"dumbbell"}, MovementPattern: "pull", Tags: []string{"isolation", "arms"}, Muscles: []string{"biceps"}},
		{ID: "tricep-pushdown", Name: "Tricep Pushdown", Type: "hypertrophy", Equipment: []string{"cable"}, MovementPattern: "push", Tags: []string{"isolation", "arms"}, Muscles: []string{"triceps"}},
	}
}
