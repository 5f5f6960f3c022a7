package service

import (
	goaway "github.com/TwiN/go-away"
)

// TextFilter - внешний фильтр текста сообщений (чистое преобразование)
type TextFilter interface {
	Filter(text string) string
}

type profanityFilter struct{}

// NewProfanityFilter заменяет нецензурные слова звездочками
func NewProfanityFilter() TextFilter {
	return profanityFilter{}
}

func (profanityFilter) Filter(text string) string {
	return goaway.Censor(text)
}

type nopFilter struct{}

func NewNopFilter() TextFilter { return nopFilter{} }

func (nopFilter) Filter(text string) string { return text }
