package domain

import "time"

// Article is a single content item produced by a source.
type Article struct {
	UID    string
	Source string
	Date   time.Time
	Title  string
	URL    string
	Entry  time.Time
}

// LabelScore is one (name, score) pair emitted by a classifier or the label aggregator.
type LabelScore struct {
	Name  string
	Score float64
}

// Label is a classification value persisted for an article.
type Label struct {
	Article  string
	Category string
	Name     string
	Value    float64
}

// IndexEntry is a stored article handed to the embedding index builder.
type IndexEntry struct {
	UID   string
	Title string
}
