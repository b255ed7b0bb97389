// Package planner turns a natural-language request into a dependency-aware
// task plan and scores each step's complexity.
package planner

import (
	"strings"

	"github.com/crewkit/crew/pkg/models"
)

// keywordClass is one severity class of description keywords.
// Classes are checked in order; the first class containing a match wins.
type keywordClass struct {
	points   int
	keywords []string
}

// scoreKeywordClasses is the single source of truth for description scoring.
// Ordered by descending severity.
var scoreKeywordClasses = []keywordClass{
	{30, []string{"refactor", "rewrite", "redesign", "migrate", "restructure"}},
	{20, []string{"implement", "create", "add feature", "build", "develop", "integrate"}},
	{15, []string{"fix", "update", "modify", "test", "change", "adjust"}},
	{5, []string{"read", "analyze", "check", "document", "review", "explore", "find"}},
}

// Scoring caps. Each contribution is capped independently before summing.
const (
	maxScoredFiles       = 5
	pointsPerFile        = 4
	descCharsPerPoint    = 20
	maxScoredDescChars   = 300
	pointsPerDependency  = 5
	maxScoredDeps        = 3
	instrCharsPerPoint   = 50
	maxScoredInstrChars  = 1000
	maxScore             = 100
	simpleTierUpperBound = 30
	mediumTierUpperBound = 60
)

// Score computes the complexity score for a step. It is a pure function of
// the step's contents: identical inputs always yield identical scores, and
// the result is always in [0,100].
func Score(task *models.Task) int {
	score := 0

	files := len(task.RelevantFiles)
	if files > maxScoredFiles {
		files = maxScoredFiles
	}
	score += files * pointsPerFile

	score += keywordScore(task.Description)

	descChars := len(task.Description)
	if descChars > maxScoredDescChars {
		descChars = maxScoredDescChars
	}
	score += descChars / descCharsPerPoint

	deps := len(task.DependsOn)
	if deps > maxScoredDeps {
		deps = maxScoredDeps
	}
	score += deps * pointsPerDependency

	instrChars := len(task.Instructions)
	if instrChars > maxScoredInstrChars {
		instrChars = maxScoredInstrChars
	}
	score += instrChars / instrCharsPerPoint

	if score > maxScore {
		score = maxScore
	}
	return score
}

// keywordScore returns the points for the first keyword class matching the
// lower-cased description.
func keywordScore(description string) int {
	lower := strings.ToLower(description)
	for _, class := range scoreKeywordClasses {
		for _, kw := range class.keywords {
			if strings.Contains(lower, kw) {
				return class.points
			}
		}
	}
	return 0
}

// TierFor maps a score to its complexity tier.
func TierFor(score int) models.Complexity {
	switch {
	case score <= simpleTierUpperBound:
		return models.ComplexitySimple
	case score <= mediumTierUpperBound:
		return models.ComplexityMedium
	default:
		return models.ComplexityComplex
	}
}

// AssignTask decides the execution placement for a scored step.
//
// Subagent placement is currently disabled: every step is assigned Inline
// regardless of tier. The branch structure is kept so the scheduler can route
// complex steps to subagents later without a data-model change.
func AssignTask(task *models.Task) models.Assignment {
	switch task.Complexity {
	case models.ComplexityComplex:
		// Would return AssignmentSubagent once subagent routing is re-enabled.
		return models.AssignmentInline
	case models.ComplexityMedium:
		return models.AssignmentInline
	default:
		return models.AssignmentInline
	}
}

// ScoreTask populates ComplexityScore, Complexity, and Assignment on a step.
func ScoreTask(task *models.Task) {
	task.ComplexityScore = Score(task)
	task.Complexity = TierFor(task.ComplexityScore)
	task.Assignment = AssignTask(task)
}
