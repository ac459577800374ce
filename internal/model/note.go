package model

import "fmt"

// NoteType discriminates the note block variants.
type NoteType string

const (
	NoteText    NoteType = "text"
	NoteSticky  NoteType = "sticky"
	NoteIdea    NoteType = "idea"
	NoteWarning NoteType = "warning"
	// NoteAI marks a block produced by the AI proxy.
	NoteAI NoteType = "ai"
)

// NoteBlock is one block inside a lesson's notes collection. The type field
// is the discriminant; content is the only payload every variant carries.
type NoteBlock struct {
	Type    NoteType `json:"type"`
	Content string   `json:"content"`
}

// Valid reports whether t is one of the known note variants.
func (t NoteType) Valid() bool {
	switch t {
	case NoteText, NoteSticky, NoteIdea, NoteWarning, NoteAI:
		return true
	}
	return false
}

// NewNoteBlock validates the variant and builds a NoteBlock.
func NewNoteBlock(t NoteType, content string) (NoteBlock, error) {
	if !t.Valid() {
		return NoteBlock{}, fmt.Errorf("unknown note type %q", t)
	}
	return NoteBlock{Type: t, Content: content}, nil
}

// Fields returns the record fields for the block.
func (b NoteBlock) Fields() map[string]any {
	return map[string]any{"type": string(b.Type), "content": b.Content}
}

// NoteBlockFromRecord decodes a stored record back into a NoteBlock.
func NoteBlockFromRecord(r Record) (NoteBlock, error) {
	t, _ := r["type"].(string)
	content, _ := r["content"].(string)
	return NewNoteBlock(NoteType(t), content)
}
