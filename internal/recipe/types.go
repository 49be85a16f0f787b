package recipe

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/JakeFAU/recipe-ingest/internal/textnorm"
)

// The decoders in this file never return errors: linked-data in the wild mixes scalars,
// lists and objects freely, and one odd field must not discard the whole Recipe.

// Text is a field that may be a string, a number or a list of either.
type Text []string

// UnmarshalJSON accepts strings, numbers and lists of those. Other shapes decode to empty.
func (t *Text) UnmarshalJSON(data []byte) error {
	*t = decodeScalars(data)
	return nil
}

// String joins the values with ", ".
func (t Text) String() string {
	return strings.Join(t, ", ")
}

// First returns the first value or "".
func (t Text) First() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Present reports whether any non-blank value was decoded.
func (t Text) Present() bool {
	for _, v := range t {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func decodeScalars(data []byte) []string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		return []string{s}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil
		}
		var out []string
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) > 0 && (item[0] == '[' || item[0] == '{') {
				continue
			}
			out = append(out, decodeScalars(item)...)
		}
		return out
	case '{', 'n', 't', 'f':
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil
		}
		return []string{n.String()}
	}
}

// TypeSet is the JSON-LD @type, which may be a single name or a list.
type TypeSet []string

// UnmarshalJSON accepts a string or a list of strings.
func (ts *TypeSet) UnmarshalJSON(data []byte) error {
	*ts = decodeScalars(data)
	return nil
}

// Has reports whether name is among the declared types.
func (ts TypeSet) Has(name string) bool {
	for _, t := range ts {
		if t == name {
			return true
		}
	}
	return false
}

// Ingredients is recipeIngredient: a single string or a list of strings.
type Ingredients []string

// UnmarshalJSON keeps scalar entries and drops nested structures.
func (in *Ingredients) UnmarshalJSON(data []byte) error {
	*in = decodeScalars(data)
	return nil
}

// InstructionKind tags the shape an instruction entry arrived in.
type InstructionKind int

// Instruction shapes.
const (
	KindUnknown InstructionKind = iota
	KindPlain
	KindStep
	KindSection
)

// Instruction is one recipeInstructions entry.
type Instruction struct {
	Kind InstructionKind
	// Text is set for plain and step entries.
	Text string
	// Name and Steps are set for sections.
	Name  string
	Steps []Instruction
}

// Instructions is recipeInstructions in any of its accepted shapes.
type Instructions []Instruction

var lineBreaks = regexp.MustCompile(`\n+`)

// UnmarshalJSON splits a plain string on newlines, or decodes each list entry as a
// plain string, a step object or a HowToSection.
func (ins *Instructions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*ins = nil
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*ins = nil
			return nil
		}
		var out Instructions
		for _, line := range lineBreaks.Split(s, -1) {
			if strings.TrimSpace(line) == "" {
				continue
			}
			out = append(out, Instruction{Kind: KindPlain, Text: line})
		}
		*ins = out
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			*ins = nil
			return nil
		}
		out := make(Instructions, 0, len(items))
		for _, item := range items {
			out = append(out, decodeInstruction(item))
		}
		*ins = out
	case '{':
		*ins = Instructions{decodeInstruction(data)}
	default:
		*ins = nil
	}
	return nil
}

type instructionObject struct {
	Type            TypeSet           `json:"@type"`
	Text            Text              `json:"text"`
	Name            Text              `json:"name"`
	ItemListElement []json.RawMessage `json:"itemListElement"`
}

func decodeInstruction(data []byte) Instruction {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Instruction{Kind: KindUnknown}
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Instruction{Kind: KindUnknown}
		}
		return Instruction{Kind: KindPlain, Text: s}
	}
	if data[0] != '{' {
		return Instruction{Kind: KindUnknown}
	}
	var obj instructionObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return Instruction{Kind: KindUnknown}
	}
	switch {
	case obj.Text.Present():
		return Instruction{Kind: KindStep, Text: obj.Text.String()}
	case obj.Type.Has("HowToSection"):
		section := Instruction{Kind: KindSection, Name: obj.Name.String()}
		for _, raw := range obj.ItemListElement {
			step := decodeInstruction(raw)
			if step.Kind == KindPlain || step.Kind == KindStep {
				section.Steps = append(section.Steps, step)
			}
		}
		return section
	case obj.Type.Has("HowToStep") && obj.Name.Present():
		return Instruction{Kind: KindStep, Text: obj.Name.String()}
	default:
		return Instruction{Kind: KindUnknown}
	}
}

// ImageKind tags the shape an image field arrived in.
type ImageKind int

// Image shapes.
const (
	ImageUnknown ImageKind = iota
	ImageURL
	ImageObject
	ImageList
)

// Image is the Recipe image field.
type Image struct {
	Kind  ImageKind
	url   string
	items []Image
}

// UnmarshalJSON accepts a URL string, an object with a url field, or a list of either.
func (img *Image) UnmarshalJSON(data []byte) error {
	*img = decodeImage(data)
	return nil
}

func decodeImage(data []byte) Image {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Image{}
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Image{}
		}
		return Image{Kind: ImageURL, url: s}
	case '{':
		var obj struct {
			URL Text `json:"url"`
		}
		if err := json.Unmarshal(data, &obj); err != nil || !obj.URL.Present() {
			return Image{}
		}
		return Image{Kind: ImageObject, url: obj.URL.First()}
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return Image{}
		}
		list := Image{Kind: ImageList}
		for _, r := range raw {
			list.items = append(list.items, decodeImage(r))
		}
		return list
	default:
		return Image{}
	}
}

// URL resolves the image to a single URL. Lists use their first element only.
func (img Image) URL() string {
	switch img.Kind {
	case ImageURL, ImageObject:
		return img.url
	case ImageList:
		if len(img.items) == 0 || img.items[0].Kind == ImageList {
			return ""
		}
		return img.items[0].URL()
	default:
		return ""
	}
}

// Nutrition is schema.org NutritionInformation restricted to the summarized fields.
type Nutrition struct {
	Calories            Text `json:"calories"`
	ProteinContent      Text `json:"proteinContent"`
	CarbohydrateContent Text `json:"carbohydrateContent"`
	FatContent          Text `json:"fatContent"`
}

// UnmarshalJSON ignores anything that is not an object.
func (n *Nutrition) UnmarshalJSON(data []byte) error {
	type plain Nutrition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*n = Nutrition{}
		return nil
	}
	*n = Nutrition(p)
	return nil
}

func (n *Nutrition) summary() string {
	if n == nil {
		return ""
	}
	return textnorm.FormatNutrition(&textnorm.Nutrition{
		Calories:      n.Calories.String(),
		Protein:       n.ProteinContent.String(),
		Carbohydrates: n.CarbohydrateContent.String(),
		Fat:           n.FatContent.String(),
	})
}

// Object is a decoded schema.org Recipe.
type Object struct {
	Type               TypeSet      `json:"@type"`
	Name               Text         `json:"name"`
	Description        Text         `json:"description"`
	Image              Image        `json:"image"`
	PrepTime           Text         `json:"prepTime"`
	CookTime           Text         `json:"cookTime"`
	TotalTime          Text         `json:"totalTime"`
	RecipeYield        Text         `json:"recipeYield"`
	Nutrition          *Nutrition   `json:"nutrition"`
	RecipeIngredient   Ingredients  `json:"recipeIngredient"`
	RecipeInstructions Instructions `json:"recipeInstructions"`
	RecipeNotes        Text         `json:"recipeNotes"`
	Keywords           Text         `json:"keywords"`
}

// NormalizedRecipe is the record written to the store.
type NormalizedRecipe struct {
	FocusKeyword string `json:"focus_keyword"`
	FullRecipe   string `json:"full_recipe"`
	PAA          string `json:"paa"`
	ImageURL     string `json:"image_url"`
	SourceURL    string `json:"source_url"`
}
