package souschef

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Timestamp decodes the API's ISO 8601 timestamps, which may omit the zone.
// A timestamp without a zone is taken to be UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ID identifies an entity. The API sends ids as strings, but numeric ids are
// accepted too.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Recipe is a saved recipe.
type Recipe struct {
	ID           ID        `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	Ingredients  []string  `json:"ingredients"`
	Instructions []string  `json:"instructions"`
	CookingTime  *int      `json:"cooking_time"`
	Servings     *int      `json:"servings"`
	Cuisine      *string   `json:"cuisine"`
	DietaryInfo  []string  `json:"dietary_info"`
	ImageURL     *string   `json:"image_url"`
	SourcePrompt *string   `json:"source_prompt"`
	CreatedAt    Timestamp `json:"created_at"`
	UpdatedAt    Timestamp `json:"updated_at"`
}

func (r Recipe) entityID() string { return string(r.ID) }

// RecipeCreate is the structured create payload. SourcePrompt records the
// prompt a generated recipe came from.
type RecipeCreate struct {
	Title        string   `json:"title"`
	Description  *string  `json:"description,omitempty"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	CookingTime  *int     `json:"cooking_time,omitempty"`
	Servings     *int     `json:"servings,omitempty"`
	Cuisine      *string  `json:"cuisine,omitempty"`
	DietaryInfo  []string `json:"dietary_info,omitempty"`
	ImageURL     *string  `json:"image_url,omitempty"`
	SourcePrompt *string  `json:"source_prompt,omitempty"`
}

// ErrPromptOnlyCreate rejects the legacy create shape that carried nothing but
// a prompt.
var ErrPromptOnlyCreate = errors.New("prompt-only create is no longer supported; send a structured payload")

func (c RecipeCreate) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		if c.SourcePrompt != nil && *c.SourcePrompt != "" {
			return ErrPromptOnlyCreate
		}
		return errors.New("title is required")
	}
	if c.Ingredients == nil {
		return errors.New("ingredients are required")
	}
	if c.Instructions == nil {
		return errors.New("instructions are required")
	}
	return nil
}

// RecipeUpdate is a partial update; nil fields are left unchanged.
type RecipeUpdate struct {
	Title        *string  `json:"title,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Ingredients  []string `json:"ingredients,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
	CookingTime  *int     `json:"cooking_time,omitempty"`
	Servings     *int     `json:"servings,omitempty"`
	Cuisine      *string  `json:"cuisine,omitempty"`
	DietaryInfo  []string `json:"dietary_info,omitempty"`
	ImageURL     *string  `json:"image_url,omitempty"`
}

// Wine is a saved wine.
type Wine struct {
	ID           ID        `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Producer     *string   `json:"producer"`
	Vintage      *int      `json:"vintage"`
	Varietal     *string   `json:"varietal"`
	Region       *string   `json:"region"`
	Country      *string   `json:"country"`
	TastingNotes *string   `json:"tasting_notes"`
	FoodPairings []string  `json:"food_pairings"`
	Rating       *float64  `json:"rating"`
	Price        *float64  `json:"price"`
	ImageURL     *string   `json:"image_url"`
	SourcePrompt *string   `json:"source_prompt"`
	CreatedAt    Timestamp `json:"created_at"`
	UpdatedAt    Timestamp `json:"updated_at"`
}

func (w Wine) entityID() string { return string(w.ID) }

type WineCreate struct {
	Name         string   `json:"name"`
	Producer     *string  `json:"producer,omitempty"`
	Vintage      *int     `json:"vintage,omitempty"`
	Varietal     *string  `json:"varietal,omitempty"`
	Region       *string  `json:"region,omitempty"`
	Country      *string  `json:"country,omitempty"`
	TastingNotes *string  `json:"tasting_notes,omitempty"`
	FoodPairings []string `json:"food_pairings,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	ImageURL     *string  `json:"image_url,omitempty"`
	SourcePrompt *string  `json:"source_prompt,omitempty"`
}

func (c WineCreate) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		if c.SourcePrompt != nil && *c.SourcePrompt != "" {
			return ErrPromptOnlyCreate
		}
		return errors.New("name is required")
	}
	return nil
}

type WineUpdate struct {
	Name         *string  `json:"name,omitempty"`
	Producer     *string  `json:"producer,omitempty"`
	Vintage      *int     `json:"vintage,omitempty"`
	Varietal     *string  `json:"varietal,omitempty"`
	Region       *string  `json:"region,omitempty"`
	Country      *string  `json:"country,omitempty"`
	TastingNotes *string  `json:"tasting_notes,omitempty"`
	FoodPairings []string `json:"food_pairings,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	ImageURL     *string  `json:"image_url,omitempty"`
}

// WineAnalysis is a sommelier's text answer. It is never saved.
type WineAnalysis struct {
	Answer string `json:"answer"`
}

type wineAsk struct {
	Prompt string `json:"prompt"`
}

// User is the signed-in user's profile.
type User struct {
	ID          ID        `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name"`
	PhotoURL    *string   `json:"photo_url"`
	CreatedAt   Timestamp `json:"created_at"`
}

func (u User) entityID() string { return string(u.ID) }

// entity is a payload addressed by an id.
type entity interface {
	entityID() string
}
