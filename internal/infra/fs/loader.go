// Package fs loads competition definitions from a directory tree:
//
//	<dir>/<folder>/config.json         competition id, name and description
//	<dir>/<folder>/Summary.md          optional markdown sections
//	<dir>/<folder>/levelN/config.json  one level each
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"competition-service/internal/domain"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

const inputPlaceholder = "{{input}}"

type competitionConfig struct {
	ID          interface{} `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
}

type levelConfig struct {
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	InputType      string      `json:"input_type"`
	Placeholder    string      `json:"placeholder"`
	ExpectedAnswer interface{} `json:"expected_answer"`
	Hint           string      `json:"hint"`
	InputFile      string      `json:"input_file"`
}

// Loader reads competitions from a directory. Broken folders are skipped with a warning.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

func (l *Loader) LoadCompetitions(ctx context.Context) (map[string]domain.Competition, error) {
	competitions := make(map[string]domain.Competition)

	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		log.Warnf("competitions directory %q not found", l.dir)
		return competitions, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read competitions dir: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		comp, ok := l.loadCompetition(filepath.Join(l.dir, entry.Name()))
		if !ok {
			continue
		}
		if _, dup := competitions[comp.ID]; dup {
			log.Warnf("duplicate competition id %s in %q, skipping", comp.ID, entry.Name())
			continue
		}
		competitions[comp.ID] = comp
		log.Infof("loaded competition %s: %s (%d levels)", short(comp.ID), comp.Name, len(comp.Levels))
	}
	log.Infof("loaded %d competition(s) from %s", len(competitions), l.dir)
	return competitions, nil
}

func (l *Loader) loadCompetition(folder string) (domain.Competition, bool) {
	name := filepath.Base(folder)
	var cfg competitionConfig
	if err := readJSON(filepath.Join(folder, "config.json"), &cfg); err != nil {
		log.Warnf("competition %q: %v, skipping", name, err)
		return domain.Competition{}, false
	}

	var id string
	if cfg.ID == nil {
		id = uuid.NewString()
		log.Warnf("competition %q has no id, generated %s", name, id)
	} else {
		id = scalarString(cfg.ID)
		if _, err := uuid.Parse(id); err != nil {
			log.Warnf("competition %q has invalid id %q, skipping", name, id)
			return domain.Competition{}, false
		}
	}

	comp := domain.Competition{
		ID:          id,
		Name:        cfg.Name,
		Description: cfg.Description,
		Folder:      name,
		Summary:     loadSummary(folder),
		Levels:      make(map[int]domain.Level),
	}
	if comp.Name == "" {
		comp.Name = "Competition " + short(id)
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		log.Warnf("competition %q: %v, skipping", name, err)
		return domain.Competition{}, false
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "level") {
			continue
		}
		number, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), "level"))
		if err != nil {
			log.Warnf("competition %s: cannot parse level from %q", short(id), entry.Name())
			continue
		}
		level, ok := loadLevel(filepath.Join(folder, entry.Name()), number)
		if !ok {
			continue
		}
		comp.Levels[number] = level
	}
	if len(comp.Levels) == 0 {
		log.Warnf("competition %s has no levels, skipping", short(id))
		return domain.Competition{}, false
	}
	return comp, true
}

func loadLevel(dir string, number int) (domain.Level, bool) {
	var cfg levelConfig
	if err := readJSON(filepath.Join(dir, "config.json"), &cfg); err != nil {
		log.Warnf("level %q: %v, skipping", dir, err)
		return domain.Level{}, false
	}

	level := domain.Level{
		Number:         number,
		Title:          cfg.Title,
		Description:    cfg.Description,
		InputType:      domain.InputType(cfg.InputType),
		Placeholder:    cfg.Placeholder,
		Hint:           cfg.Hint,
		ExpectedAnswer: scalarString(cfg.ExpectedAnswer),
	}
	if level.Title == "" {
		level.Title = fmt.Sprintf("Level %d", number)
	}
	if level.InputType == "" {
		level.InputType = domain.InputText
	}

	if cfg.InputFile != "" {
		if _, err := os.Stat(filepath.Join(dir, cfg.InputFile)); err != nil {
			log.Warnf("input file %q not found for level %d", filepath.Join(dir, cfg.InputFile), number)
		} else {
			level.InputFile = cfg.InputFile
			if strings.Contains(level.Description, inputPlaceholder) {
				level.Description = strings.TrimSpace(strings.ReplaceAll(level.Description, inputPlaceholder, ""))
			}
		}
	}
	return level, true
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return nil
}

// scalarString renders a JSON scalar as written in the file ("42" stays "42").
func scalarString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// loadSummary extracts the known "## <Title>" sections of Summary.md. A section
// ends at the next line starting with "##".
func loadSummary(folder string) *domain.Summary {
	data, err := os.ReadFile(filepath.Join(folder, "Summary.md"))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("read Summary.md in %q: %v", filepath.Base(folder), err)
		}
		return nil
	}

	sections := make(map[string]*strings.Builder)
	var current *strings.Builder
	for _, line := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n") {
		if strings.HasPrefix(line, "##") {
			current = nil
			title := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "#")))
			if strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "##\t") {
				if _, seen := sections[title]; !seen {
					current = &strings.Builder{}
					sections[title] = current
				}
			}
			continue
		}
		if current != nil {
			current.WriteString(line)
			current.WriteByte('\n')
		}
	}

	section := func(title string) string {
		b, ok := sections[title]
		if !ok {
			return ""
		}
		return blankRuns.ReplaceAllString(strings.TrimSpace(b.String()), "\n\n")
	}
	summary := &domain.Summary{
		Overview:           section("overview"),
		Story:              section("story"),
		LevelProgression:   section("level progression"),
		LearningObjectives: section("learning objectives"),
		DifficultyCurve:    section("difficulty curve"),
		Context:            section("context"),
		EstimatedTime:      section("estimated time"),
	}

	var missing []string
	for _, title := range []string{"overview", "story", "level progression", "learning objectives"} {
		if _, ok := sections[title]; !ok {
			missing = append(missing, title)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		log.Warnf("Summary.md in %q is missing sections: %s", filepath.Base(folder), strings.Join(missing, ", "))
	}
	return summary
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
