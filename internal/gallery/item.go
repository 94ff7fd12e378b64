package gallery

import (
	"fmt"
	"strings"
)

// Entry is one record from a listing page.
type Entry struct {
	ID    string
	Title string
	Tags  []string
}

// Manifest is the resolved download plan for one item.
type Manifest struct {
	AssetURLs []string
	Title     string
	Tags      []string
}

// Stats summarizes a classification pass.
type Stats struct {
	Total   int
	Flagged int
}

// Item is one content unit tracked through the pipeline. An Item is owned by
// exactly one worker at a time and is not safe for concurrent mutation.
type Item struct {
	ID    string
	Title string
	Tags  []string
	State State

	// AssetDir is set while the item holds a scratch directory.
	AssetDir string
	// CoverPath is set after classification until rendering releases it.
	CoverPath string
	Assets    int

	score  float64
	stats  Stats
	scored bool
}

// NewItem creates a listed item from a listing entry.
func NewItem(entry Entry) *Item {
	return &Item{
		ID:    strings.TrimSpace(entry.ID),
		Title: strings.TrimSpace(entry.Title),
		Tags:  cleanTags(entry.Tags),
		State: StateListed,
	}
}

// Advance moves the item to the next lifecycle state.
func (i *Item) Advance(to State) error {
	if i.State.Terminal() {
		return fmt.Errorf("item %s: state %s is terminal", i.ID, i.State)
	}
	if !CanAdvance(i.State, to) {
		return fmt.Errorf("item %s: illegal transition %s -> %s", i.ID, i.State, to)
	}
	i.State = to
	return nil
}

// Merge folds resolved manifest metadata into the item.
func (i *Item) Merge(m Manifest) {
	if title := strings.TrimSpace(m.Title); title != "" {
		i.Title = title
	}
	if tags := cleanTags(m.Tags); len(tags) > 0 {
		i.Tags = tags
	}
	i.Assets = len(m.AssetURLs)
}

// SetResult records score and stats together.
func (i *Item) SetResult(score float64, stats Stats) {
	i.score = score
	i.stats = stats
	i.scored = true
}

// Score returns the classification score, or 0 before SetResult.
func (i *Item) Score() float64 { return i.score }

// Stats returns the classification stats and whether they were recorded.
func (i *Item) Stats() (Stats, bool) { return i.stats, i.scored }

// DisplayTitle returns the title or a placeholder when unknown.
func (i *Item) DisplayTitle() string {
	if i.Title == "" {
		return "Unknown Title"
	}
	return i.Title
}

func cleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
