package model

// Node is a child element appended under a mount element of a page.
type Node struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}
