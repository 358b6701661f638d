package domain

import (
	"sort"
	"strings"
	"unicode"
)

// InputType selects the answer comparison policy of a level.
type InputType string

const (
	// InputNumber compares the trimmed answer with exact string equality.
	InputNumber InputType = "number"
	// InputText compares trimmed answers case-insensitively.
	InputText InputType = "text"
)

// Level is one puzzle of a competition.
type Level struct {
	Number         int       `json:"level"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	InputType      InputType `json:"inputType"`
	Placeholder    string    `json:"placeholder,omitempty"`
	Hint           string    `json:"hint,omitempty"`
	InputFile      string    `json:"inputFile,omitempty"`
	ExpectedAnswer string    `json:"-"`
}

// Summary holds the optional Summary.md sections of a competition.
type Summary struct {
	Overview           string `json:"overview,omitempty"`
	Story              string `json:"story,omitempty"`
	LevelProgression   string `json:"levelProgression,omitempty"`
	LearningObjectives string `json:"learningObjectives,omitempty"`
	DifficultyCurve    string `json:"difficultyCurve,omitempty"`
	Context            string `json:"context,omitempty"`
	EstimatedTime      string `json:"estimatedTime,omitempty"`
}

// Competition is a named, ordered set of levels. Loaded once and never mutated.
type Competition struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Folder      string        `json:"-"`
	Summary     *Summary      `json:"summary,omitempty"`
	Levels      map[int]Level `json:"levels"`
}

// Level returns the level definition for number.
func (c Competition) Level(number int) (Level, bool) {
	level, ok := c.Levels[number]
	return level, ok
}

// LevelNumbers returns the level numbers in ascending order.
func (c Competition) LevelNumbers() []int {
	numbers := make([]int, 0, len(c.Levels))
	for n := range c.Levels {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// NextLevel returns the level following number, or 0 when number is the last one.
func (c Competition) NextLevel(number int) int {
	for _, n := range c.LevelNumbers() {
		if n > number {
			return n
		}
	}
	return 0
}

// Record is the persisted row of a competition.
func (c Competition) Record() CompetitionRecord {
	return CompetitionRecord{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		LevelCount:  len(c.Levels),
	}
}

// CompetitionRecord is the stored projection of a Competition.
type CompetitionRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	LevelCount  int    `json:"levelCount"`
}

// CompetitionState tracks activation of a single competition.
type CompetitionState struct {
	CompetitionID string `json:"competitionId"`
	IsActive      bool   `json:"isActive"`
	// StartTime is in epoch seconds; 0 means never started.
	StartTime int64 `json:"startTime"`
	// ReferencedAt is the unix millisecond of the last select/start/stop.
	ReferencedAt int64 `json:"referencedAt"`
}

// Result is a user's personal best for one level.
type Result struct {
	User          string `json:"user"`
	CompetitionID string `json:"competitionId"`
	Level         int    `json:"level"`
	BestMs        int64  `json:"bestMs"`
	Ts            int64  `json:"ts"`
}

// Submission is an append-only audit record of a validated answer.
type Submission struct {
	ID            string `json:"id"`
	User          string `json:"user"`
	CompetitionID string `json:"competitionId"`
	Level         int    `json:"level"`
	Ms            int64  `json:"ms"`
	Timestamp     int64  `json:"timestamp"`
	IsCorrect     bool   `json:"isCorrect"`
}

// LevelStanding is the per-level cell of a leaderboard row.
type LevelStanding struct {
	ElapsedMs  int64 `json:"ms"`
	AchievedTs int64 `json:"ts"`
}

// UserStanding is one ranked leaderboard row.
type UserStanding struct {
	Rank           int                   `json:"rank"`
	User           string                `json:"user"`
	Levels         map[int]LevelStanding `json:"levels"`
	TotalElapsedMs int64                 `json:"totalMs"`
	MaxLevel       int                   `json:"maxLevel"`
	EarliestTs     int64                 `json:"earliestTs"`
}

// Leaderboard is the ranked view of a competition.
type Leaderboard struct {
	CompetitionID  string         `json:"competitionId"`
	Name           string         `json:"name,omitempty"`
	StartTime      int64          `json:"startTime"`
	EffectiveStart int64          `json:"effectiveStart"`
	Standings      []UserStanding `json:"standings"`
	GeneratedAt    int64          `json:"generatedAt"`
}

// Stats summarizes activity of a competition for the admin panel.
type Stats struct {
	CompetitionID   string `json:"competitionId"`
	Users           int    `json:"users"`
	Submissions     int    `json:"submissions"`
	CompletedLevels int    `json:"completedLevels"`
}

// ValidUser reports whether name is a non-empty user name made of letters and digits
// of any script.
func ValidUser(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
