package domain

import (
	"github.com/google/uuid"
)

// ItemKind distinguishes inline binary content from inline text content.
type ItemKind string

const (
	ItemImage ItemKind = "image"
	ItemText  ItemKind = "text"
)

// ContentItem is one unit of input handed to the model: an image with its
// MIME type, or a labelled block of text.
type ContentItem struct {
	Kind     ItemKind
	MIMEType string // for images, e.g. "image/png"
	Data     []byte // raw image bytes
	Text     string // for text items
	Label    string // file name or node name the item came from
}

// NewImageItem creates an image ContentItem.
func NewImageItem(label, mimeType string, data []byte) ContentItem {
	return ContentItem{Kind: ItemImage, MIMEType: mimeType, Data: data, Label: label}
}

// NewTextItem creates a text ContentItem.
func NewTextItem(label, text string) ContentItem {
	return ContentItem{Kind: ItemText, Text: text, Label: label}
}

// TestCaseRecord is one row of the generated QA sheet.
type TestCaseRecord struct {
	ID             string `json:"id" yaml:"id"`
	No             int    `json:"no" yaml:"no"`
	Title          string `json:"title" yaml:"title"`
	Depth1         string `json:"depth1" yaml:"depth1"`
	Depth2         string `json:"depth2" yaml:"depth2"`
	Depth3         string `json:"depth3" yaml:"depth3"`
	Precondition   string `json:"precondition" yaml:"precondition"`
	Steps          string `json:"steps" yaml:"steps"`
	ExpectedResult string `json:"expectedResult" yaml:"expectedResult"`
}

// NewRecord returns an empty record with a fresh process-unique ID.
func NewRecord() TestCaseRecord {
	return TestCaseRecord{ID: uuid.NewString()}
}

// PhaseResult is what one pipeline phase contributes before merging.
type PhaseResult struct {
	Records   []TestCaseRecord
	Questions []string
	Summary   string
	HasMore   bool
}

// NodeKind is a design-tool node type tag.
type NodeKind string

const (
	NodeFrame     NodeKind = "FRAME"
	NodeSection   NodeKind = "SECTION"
	NodeComponent NodeKind = "COMPONENT"
	NodeInstance  NodeKind = "INSTANCE"
	NodeGroup     NodeKind = "GROUP"
	NodeText      NodeKind = "TEXT"
	NodeCanvas    NodeKind = "CANVAS"
)

// IsContainer reports whether the node can be rendered to an image.
func (k NodeKind) IsContainer() bool {
	switch k {
	case NodeFrame, NodeSection, NodeComponent, NodeInstance, NodeGroup:
		return true
	}
	return false
}

// IsImportable reports whether the node is a candidate import target.
func (k NodeKind) IsImportable() bool {
	return k.IsContainer() || k == NodeText
}

// ImportTarget is a design-document node selected for conversion.
type ImportTarget struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Kind NodeKind `json:"type"`
}

// Page is a top-level canvas of a design document.
type Page struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// QAPair is a user answer to a question raised by the model.
type QAPair struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// ParsedDocument holds the result of parsing a single text-spec file.
type ParsedDocument struct {
	FilePath string
	FileType string // "markdown", "asciidoc", "plaintext"
	Title    string
	Sections []Section
}

// Section is a heading and the text beneath it.
type Section struct {
	Level   int
	Heading string
	Body    string
	Line    int
}
